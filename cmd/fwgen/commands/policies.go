package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPoliciesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List the policies checked during builds",
		Long: `List the built-in policies and any policies loaded with --policy or the
settings file. A policy with the same name as a built-in one replaces it.`,
		Example: `  # Built-in policies only
  fwgen policies

  # Include a directory of Rego policies
  fwgen policies --policy ./policies`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pe, err := current.policyEngine(cmd.Context())
			if err != nil {
				return err
			}

			policies := pe.ListPolicies()
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, policies)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSEVERITY\tENABLED\tSOURCE\tDESCRIPTION")
			for _, p := range policies {
				source := p.Source
				if p.Builtin {
					source = "builtin"
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", p.Name, p.Severity, p.Enabled, source, p.Description)
			}
			return tw.Flush()
		},
	}

	return cmd
}
