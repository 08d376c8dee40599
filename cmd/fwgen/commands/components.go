package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/fwgen/pkg/engine"
)

// componentInfo is the catalog view of one component schema.
type componentInfo struct {
	ID           string       `json:"id"`
	ClassName    string       `json:"class_name,omitempty"`
	Description  string       `json:"description,omitempty"`
	Priority     float64      `json:"priority"`
	Options      []optionInfo `json:"options"`
	Dependencies []string     `json:"dependencies,omitempty"`
	Conflicts    []string     `json:"conflicts,omitempty"`
	AutoLoad     []string     `json:"auto_load,omitempty"`
}

type optionInfo struct {
	Name        string      `json:"name"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
}

func describeComponent(schema *engine.ComponentSchema) componentInfo {
	info := componentInfo{
		ID:           schema.ID,
		ClassName:    schema.ClassName,
		Description:  schema.Description,
		Priority:     schema.Priority,
		Options:      []optionInfo{},
		Dependencies: schema.Dependencies(),
		Conflicts:    schema.Conflicts(),
		AutoLoad:     schema.AutoLoad(),
	}
	for _, opt := range schema.Options() {
		info.Options = append(info.Options, optionInfo{
			Name:        opt.Name,
			Required:    opt.Requiredness == engine.Required,
			Default:     opt.Default,
			Description: opt.Description,
		})
	}
	return info
}

func newComponentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "components [id...]",
		Short: "List the component catalog",
		Long: `List the components fwgen knows about with their constraints. Given
component identifiers, show each component's options in detail.`,
		Example: `  # Catalog overview
  fwgen components

  # Options of the wifi component
  fwgen components wifi`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := current
			out := cmd.OutOrStdout()

			ids := args
			if len(ids) == 0 {
				ids = s.registry.IDs()
			}

			infos := make([]componentInfo, 0, len(ids))
			for _, id := range ids {
				schema, ok := s.registry.Schema(id)
				if !ok {
					return engine.NewConfigError(engine.KindUnknownComponent, id, "component is not in the catalog")
				}
				infos = append(infos, describeComponent(schema))
			}

			if jsonOutput {
				return writeJSON(out, infos)
			}
			if len(args) == 0 {
				return writeCatalog(out, infos)
			}
			for _, info := range infos {
				if err := writeComponent(out, info); err != nil {
					return err
				}
			}
			return nil
		},
	}

	return cmd
}

func writeCatalog(w io.Writer, infos []componentInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRIORITY\tDEPENDS ON\tCONFLICTS\tAUTO-LOADS")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%g\t%s\t%s\t%s\n",
			info.ID, info.Priority, list(info.Dependencies), list(info.Conflicts), list(info.AutoLoad))
	}
	return tw.Flush()
}

func writeComponent(w io.Writer, info componentInfo) error {
	fmt.Fprintf(w, "%s", info.ID)
	if info.ClassName != "" {
		fmt.Fprintf(w, " (%s)", info.ClassName)
	}
	fmt.Fprintln(w)
	if info.Description != "" {
		fmt.Fprintf(w, "  %s\n", info.Description)
	}
	fmt.Fprintf(w, "  priority: %g\n", info.Priority)
	if len(info.Dependencies) > 0 {
		fmt.Fprintf(w, "  depends on: %s\n", list(info.Dependencies))
	}
	if len(info.Conflicts) > 0 {
		fmt.Fprintf(w, "  conflicts with: %s\n", list(info.Conflicts))
	}
	if len(info.AutoLoad) > 0 {
		fmt.Fprintf(w, "  auto-loads: %s\n", list(info.AutoLoad))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  OPTION\tREQUIRED\tDEFAULT\tDESCRIPTION")
	for _, opt := range info.Options {
		def := ""
		if opt.Default != nil {
			def = fmt.Sprint(opt.Default)
		}
		fmt.Fprintf(tw, "  %s\t%t\t%s\t%s\n", opt.Name, opt.Required, def, opt.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func list(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ",")
}
