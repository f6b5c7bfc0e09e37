package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

type SubmissionsOptions struct {
	GlobalOptions

	Revision int64
}

func NewCmdSubmissions() *cobra.Command {
	o := &SubmissionsOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:          "submissions PROFILE_ID",
		Short:        "Display the submission log of a profile, oldest first.",
		Args:         cobra.ExactArgs(1),
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *SubmissionsOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.Int64Var(&o.Revision, "revision", o.Revision, "Only show attempts for this revision")
}

func (o *SubmissionsOptions) Run(ctx context.Context, out io.Writer, args []string) error {
	s, err := o.Open()
	if err != nil {
		return err
	}
	defer s.Close()

	records := []domain.SubmissionRecord{}
	for rec, err := range s.services.Recorder.StreamAll(ctx, args[0]) {
		if err != nil {
			return fmt.Errorf("reading submissions of %s: %w", args[0], err)
		}
		if o.Revision > 0 && rec.Revision != o.Revision {
			continue
		}
		records = append(records, rec)
	}

	if o.Output != tableFormat {
		return printStructured(out, o.Output, records)
	}

	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "CREATED\tREVISION\tATTEMPT\tOUTCOME\tBATCH\tDETAIL")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
			rec.CreatedAt.Format(time.RFC3339), rec.Revision, rec.Attempt, rec.Outcome, rec.BatchID, rec.Detail)
	}
	return w.Flush()
}
