package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/fwgen/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit   int
		offset  int
		project string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded builds",
		Long: `Show builds recorded with "fwgen compile --record", newest first.`,
		Example: `  # Last 20 builds
  fwgen history

  # Builds of one project
  fwgen history --project thread-node --limit 5

  # Details of a single build
  fwgen history show 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := current.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			builds, err := store.ListBuilds(ctx, project, limit, offset)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, builds)
			}
			return writeBuilds(out, builds)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of builds to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of builds to skip")
	cmd.Flags().StringVarP(&project, "project", "p", "", "only show builds of this project")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryDeleteCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <build-id>",
		Short: "Show one recorded build with its registrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := current.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.GetBuild(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, rec)
			}
			return writeBuild(out, rec)
		},
	}
}

func newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <build-id>",
		Short: "Delete a recorded build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := current.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteBuild(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted build %s\n", args[0])
			return nil
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}

			ctx := cmd.Context()
			store, err := current.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.PruneBuilds(ctx, keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d build(s)\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 50, "number of recent builds to keep")

	return cmd
}

func writeBuilds(w io.Writer, builds []*stores.BuildRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROJECT\tSTATUS\tSTARTED\tDURATION\tCOMPONENTS")
	for _, b := range builds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			b.ID, b.Project, b.Status, b.StartedAt.Local().Format(time.DateTime),
			b.Duration.Round(time.Millisecond), len(b.Components))
	}
	return tw.Flush()
}

func writeBuild(w io.Writer, b *stores.BuildRecord) error {
	fmt.Fprintf(w, "build %s\n", b.ID)
	fmt.Fprintf(w, "  source:   %s\n", b.Source)
	fmt.Fprintf(w, "  project:  %s\n", b.Project)
	fmt.Fprintf(w, "  status:   %s\n", b.Status)
	fmt.Fprintf(w, "  started:  %s (%s)\n", b.StartedAt.Local().Format(time.DateTime), b.Duration.Round(time.Millisecond))
	if b.ConfigHash != "" {
		fmt.Fprintf(w, "  config:   %s\n", b.ConfigHash)
	}

	for _, r := range b.Registrations {
		fmt.Fprintf(w, "  %2d. %s", r.Position, r.Component)
		if r.InstanceID != "" {
			fmt.Fprintf(w, " (%s)", r.InstanceID)
		}
		fmt.Fprintln(w)
		for _, stmt := range r.Statements {
			fmt.Fprintf(w, "        %s\n", stmt)
		}
	}
	for _, d := range b.Defines {
		fmt.Fprintf(w, "  define: %s\n", d)
	}

	for _, e := range b.Errors {
		if _, err := fmt.Fprintf(w, "  error: %s\n", e.Message); err != nil {
			return err
		}
	}
	return nil
}
