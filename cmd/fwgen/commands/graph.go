package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/fwgen/pkg/engine"
)

func newGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <config>",
		Short: "Print the resolved component graph",
		Long: `Resolve the components of a configuration and print the ordering graph
in Graphviz DOT format. Auto-loaded components are drawn dashed.

Only the component set is resolved; options are not validated.`,
		Example: `  # Render the graph as SVG
  fwgen graph node.yaml | dot -Tsvg > node.svg

  # Registration order, levels and edges as JSON
  fwgen graph --json node.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := current
			out := cmd.OutOrStdout()

			doc, err := s.loader().LoadFile(cmd.Context(), args[0])
			if err != nil {
				_ = newBuildReport(args[0], nil, err).write(out)
				return errInvalidConfig
			}

			res, err := engine.NewResolver(s.registry, s.logger("resolver")).Resolve(doc.Raw.Order, doc.Raw.Disabled)
			if err != nil {
				_ = newBuildReport(doc.File, nil, err).write(out)
				return errInvalidConfig
			}

			if jsonOutput {
				return writeJSON(out, res)
			}
			_, err = fmt.Fprint(out, res.ToDOT())
			return err
		},
	}

	return cmd
}
