package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/report-autofill/internal/domain"
)

func NewCmdProfile() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage student profiles.",
	}
	cmd.AddCommand(NewCmdProfilePut())
	cmd.AddCommand(NewCmdProfileGet())
	cmd.AddCommand(NewCmdProfileHistory())
	cmd.AddCommand(NewCmdProfileList())
	return cmd
}

// runner is the Complete / Validate / Run contract of every command
type runner interface {
	Complete(cmd *cobra.Command, args []string) error
	Validate(args []string) error
	Run(ctx context.Context, out io.Writer, args []string) error
}

func runE(o runner) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := o.Complete(cmd, args); err != nil {
			return err
		}
		if err := o.Validate(args); err != nil {
			return err
		}
		return o.Run(cmd.Context(), cmd.OutOrStdout(), args)
	}
}

type ProfilePutOptions struct {
	GlobalOptions

	Set      []string
	FromFile string
	Note     string

	fields domain.Fields
}

func NewCmdProfilePut() *cobra.Command {
	o := &ProfilePutOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:          "put PROFILE_ID",
		Short:        "Store a new revision of a profile.",
		Args:         cobra.ExactArgs(1),
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ProfilePutOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringArrayVar(&o.Set, "set", o.Set, "Field assignment NAME=VALUE, repeatable")
	fs.StringVarP(&o.FromFile, "from-file", "f", o.FromFile, "YAML or JSON file of fields; --set values override it")
	fs.StringVar(&o.Note, "note", o.Note, "Note stored with the revision")
}

func (o *ProfilePutOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}

	o.fields = domain.Fields{}
	if o.FromFile != "" {
		data, err := os.ReadFile(o.FromFile)
		if err != nil {
			return fmt.Errorf("reading fields file: %w", err)
		}
		// YAML is a superset of JSON
		if err := yaml.Unmarshal(data, &o.fields); err != nil {
			return fmt.Errorf("parsing fields file: %w", err)
		}
	}

	for _, assignment := range o.Set {
		name, value, ok := strings.Cut(assignment, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("invalid --set %q, want NAME=VALUE", assignment)
		}
		o.fields[strings.TrimSpace(name)] = value
	}
	return nil
}

func (o *ProfilePutOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(o.fields) == 0 {
		return fmt.Errorf("no fields given, use --set or --from-file")
	}
	return nil
}

func (o *ProfilePutOptions) Run(ctx context.Context, out io.Writer, args []string) error {
	s, err := o.Open()
	if err != nil {
		return err
	}
	defer s.Close()

	revision, err := s.services.Profiles.Put(ctx, args[0], o.fields, o.Note)
	if err != nil {
		return fmt.Errorf("storing profile %s: %w", args[0], err)
	}

	if o.Output != tableFormat {
		return printStructured(out, o.Output, map[string]any{"profile_id": args[0], "revision": revision})
	}
	_, err = fmt.Fprintf(out, "profile %s stored at revision %d\n", args[0], revision)
	return err
}

type ProfileGetOptions struct {
	GlobalOptions
}

func NewCmdProfileGet() *cobra.Command {
	o := &ProfileGetOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:          "get PROFILE_ID",
		Short:        "Display the current revision of a profile.",
		Args:         cobra.ExactArgs(1),
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ProfileGetOptions) Run(ctx context.Context, out io.Writer, args []string) error {
	s, err := o.Open()
	if err != nil {
		return err
	}
	defer s.Close()

	profile, err := s.services.Profiles.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("reading profile %s: %w", args[0], err)
	}

	if o.Output != tableFormat {
		return printStructured(out, o.Output, profile)
	}

	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintf(w, "PROFILE\t%s\n", profile.ID)
	fmt.Fprintf(w, "REVISION\t%d\n", profile.Revision)
	fmt.Fprintf(w, "UPDATED\t%s\n", profile.UpdatedAt.Format(time.RFC3339))
	for _, name := range profile.Fields.Names() {
		fmt.Fprintf(w, "%s\t%s\n", name, profile.Fields.String(name))
	}
	return w.Flush()
}

type ProfileHistoryOptions struct {
	GlobalOptions
}

func NewCmdProfileHistory() *cobra.Command {
	o := &ProfileHistoryOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:          "history PROFILE_ID",
		Short:        "Display every revision of a profile, oldest first.",
		Args:         cobra.ExactArgs(1),
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ProfileHistoryOptions) Run(ctx context.Context, out io.Writer, args []string) error {
	s, err := o.Open()
	if err != nil {
		return err
	}
	defer s.Close()

	var revisions []domain.Revision
	for rev, err := range s.services.Profiles.History(ctx, args[0]) {
		if err != nil {
			return fmt.Errorf("reading history of %s: %w", args[0], err)
		}
		revisions = append(revisions, rev)
	}

	if o.Output != tableFormat {
		return printStructured(out, o.Output, revisions)
	}

	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "REVISION\tCREATED\tCHANGED\tNOTE")
	for _, rev := range revisions {
		changed := make([]string, 0, len(rev.Changes))
		for name := range rev.Changes {
			changed = append(changed, name)
		}
		slices.Sort(changed)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", rev.Number, rev.CreatedAt.Format(time.RFC3339), strings.Join(changed, ","), rev.Note)
	}
	return w.Flush()
}

type ProfileListOptions struct {
	GlobalOptions

	Query  string
	Fields []string
}

func NewCmdProfileList() *cobra.Command {
	o := &ProfileListOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:          "list",
		Short:        "List profiles, optionally filtered by a search query.",
		Args:         cobra.NoArgs,
		RunE:         runE(o),
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ProfileListOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Query, "query", "q", o.Query, "Case-insensitive substring to search for")
	fs.StringSliceVar(&o.Fields, "fields", o.Fields, fmt.Sprintf("Fields to search (default %s)", strings.Join(domain.DefaultSearchFields, ",")))
}

func (o *ProfileListOptions) Run(ctx context.Context, out io.Writer, args []string) error {
	s, err := o.Open()
	if err != nil {
		return err
	}
	defer s.Close()

	profiles, err := s.services.Profiles.List(ctx, domain.ProfileFilter{Query: o.Query, Fields: o.Fields})
	if err != nil {
		return fmt.Errorf("listing profiles: %w", err)
	}

	if o.Output != tableFormat {
		if profiles == nil {
			profiles = []domain.Profile{}
		}
		return printStructured(out, o.Output, profiles)
	}

	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintln(w, "ID\tREVISION\tSTUDENT\tUPDATED")
	for _, p := range profiles {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", p.ID, p.Revision, p.Fields.String("student_name"), p.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
