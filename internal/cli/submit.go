package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cuongbtq/report-autofill/internal/domain"
	"github.com/cuongbtq/report-autofill/internal/engine"
)

type SubmitOptions struct {
	GlobalOptions

	All         bool
	Concurrency int
	Watch       bool
}

func NewCmdSubmit() *cobra.Command {
	o := &SubmitOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:   "submit (PROFILE_ID... | --all)",
		Short: "Submit the current revision of profiles to the report form.",
		Long: "Submit the current revision of profiles to the report form. Revisions already " +
			"submitted successfully are skipped. Interrupting stops pending retries; attempts " +
			"in flight finish and are recorded.",
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *SubmitOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVar(&o.All, "all", o.All, "Submit every stored profile")
	fs.IntVar(&o.Concurrency, "concurrency", o.Concurrency, "Maximum simultaneous submissions (default from config)")
	fs.BoolVarP(&o.Watch, "watch", "w", o.Watch, "Print every job state change to stderr")
}

func (o *SubmitOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.All == (len(args) > 0) {
		return fmt.Errorf("give profile IDs or --all, not both or neither")
	}
	if o.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}
	return nil
}

func (o *SubmitOptions) Run(ctx context.Context, out io.Writer, args []string) error {
	s, err := o.Open()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.cfg.ValidateEngineConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var observers []engine.Observer
	if o.Watch {
		observers = append(observers, engine.ObserverFunc(func(u domain.JobUpdate) {
			fmt.Fprintf(os.Stderr, "%s %s rev=%d attempt=%d %s %s\n",
				u.At.Format("15:04:05.000"), u.ProfileID, u.Revision, u.Attempt, u.Status, u.Detail)
		}))
	}
	if err := s.services.InitEngine(s.cfg, s.logger.Logger, nil, observers...); err != nil {
		return err
	}

	ids := args
	if o.All {
		profiles, err := s.services.Profiles.List(ctx, domain.ProfileFilter{})
		if err != nil {
			return fmt.Errorf("listing profiles: %w", err)
		}
		for _, p := range profiles {
			ids = append(ids, p.ID)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := s.services.Engine.SubmitBatch(ctx, ids, o.Concurrency)

	if err := o.printResult(out, result); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", result.Failed, len(result.Jobs))
	}
	return nil
}

func (o *SubmitOptions) printResult(out io.Writer, result *domain.BatchResult) error {
	if result == nil {
		return errors.New("no batch result")
	}
	if o.Output != tableFormat {
		return printStructured(out, o.Output, result)
	}

	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "PROFILE\tREVISION\tSTATUS\tATTEMPTS\tERROR")
	for _, job := range result.Jobs {
		status := string(job.Status)
		if job.Deduplicated {
			status += " (already submitted)"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%s\n", job.ProfileID, job.Revision, status, job.Attempts, job.Error)
	}
	fmt.Fprintf(w, "\nbatch %s: %d succeeded, %d failed, %d skipped\n", result.BatchID, result.Succeeded, result.Failed, result.Skipped)
	return w.Flush()
}
