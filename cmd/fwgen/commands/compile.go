package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/fwgen/pkg/codegen"
	"github.com/openfroyo/fwgen/pkg/config"
	"github.com/openfroyo/fwgen/pkg/engine"
	"github.com/openfroyo/fwgen/pkg/stores"
	"github.com/openfroyo/fwgen/pkg/telemetry"
)

func newCompileCommand() *cobra.Command {
	var (
		outDir string
		dryRun bool
		record bool
	)

	cmd := &cobra.Command{
		Use:   "compile <config>",
		Short: "Generate firmware sources from a configuration",
		Long: `Validate a configuration, register every component in dependency order
and write the generated sources (main.cpp, defines.h, sdkconfig.defaults)
together with a manifest.

Nothing is written unless validation, resolution and policy evaluation all
succeed. The output directory defaults to the project's build_path, relative
to the configuration file.`,
		Example: `  # Compile into the project's build path
  fwgen compile node.yaml

  # Print the generated sources instead of writing them
  fwgen compile --dry-run node.yaml

  # Compile and keep the outcome in the build history
  fwgen compile --record --out ./build node.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := current
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			doc, err := s.loader().LoadFile(ctx, args[0])
			if err != nil {
				_ = newBuildReport(args[0], nil, err).write(out)
				return errInvalidConfig
			}

			if dryRun {
				backend := codegen.NewMemoryBackend()
				result, err := s.compile(ctx, doc, backend, record)
				if err != nil {
					_ = newBuildReport(doc.File, nil, err).write(out)
					return errInvalidConfig
				}
				rendered, err := backend.Render()
				if err != nil {
					return err
				}
				return writeSources(out, result.ID, rendered)
			}

			dir := outDir
			if dir == "" {
				dir = filepath.Join(filepath.Dir(doc.File), doc.BuildPath())
			}
			backend := codegen.NewCppBackend(dir, s.logger("codegen"))

			result, err := s.compile(ctx, doc, backend, record)
			if err != nil {
				_ = newBuildReport(doc.File, nil, err).write(out)
				return errInvalidConfig
			}

			manifest, err := backend.Flush(ctx, result.ID)
			if err != nil {
				return fmt.Errorf("failed to write sources: %w", err)
			}

			if jsonOutput {
				return writeJSON(out, manifest)
			}
			fmt.Fprintf(out, "%s: wrote %d files to %s (build %s)\n", doc.File, len(manifest.Files), backend.OutDir(), result.ID)
			fmt.Fprintf(out, "  order: %s\n", strings.Join(manifest.Order, ", "))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: the project's build_path)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the generated sources instead of writing them")
	cmd.Flags().BoolVar(&record, "record", false, "record the build in the history database")

	return cmd
}

// compile builds doc into backend and optionally records the outcome,
// successful or not.
func (s *session) compile(ctx context.Context, doc *config.Document, backend engine.Backend, record bool) (*engine.BuildResult, error) {
	ctx, span := s.tel.Tracer.StartCommandSpan(ctx, "compile", doc.File)
	defer span.End()

	startedAt := time.Now()
	b, err := s.builder(ctx, backend)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result, buildErr := b.Build(ctx, doc.Raw)
	if buildErr != nil {
		telemetry.RecordError(span, buildErr)
	} else {
		span.SetAttributes(telemetry.AttrBuildID.String(result.ID))
		telemetry.RecordSuccess(span)
	}

	if record {
		if err := s.record(ctx, doc, startedAt, result, buildErr); err != nil {
			s.tel.Logger.WithError(err).Warn("Failed to record build")
		}
	}

	return result, buildErr
}

// record stores the outcome of a build in the history database.
func (s *session) record(ctx context.Context, doc *config.Document, startedAt time.Time, result *engine.BuildResult, buildErr error) error {
	project := ""
	if doc.Project != nil {
		project = doc.Project.Name
	}

	var rec *stores.BuildRecord
	if buildErr != nil {
		rec = stores.NewFailedRecord(doc.Raw.Source, project, startedAt, buildErr)
	} else {
		var err error
		if rec, err = stores.NewSucceededRecord(result, project); err != nil {
			return err
		}
	}

	store, err := s.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RecordBuild(ctx, rec); err != nil {
		return err
	}

	s.tel.Logger.WithBuildID(rec.ID).WithField("status", string(rec.Status)).Debug("Build recorded")
	return nil
}

// writeSources prints rendered sources, one section per file.
func writeSources(w io.Writer, buildID string, out *codegen.Output) error {
	files := out.Files()
	if jsonOutput {
		text := make(map[string]string, len(files))
		for name, data := range files {
			text[name] = string(data)
		}
		return writeJSON(w, map[string]interface{}{"build_id": buildID, "files": text})
	}

	for _, name := range codegen.FileNames() {
		if _, err := fmt.Fprintf(w, "// ==> %s <==\n%s\n", name, files[name]); err != nil {
			return err
		}
	}
	return nil
}
