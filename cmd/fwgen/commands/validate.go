package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/fwgen/pkg/codegen"
	"github.com/openfroyo/fwgen/pkg/config"
	"github.com/openfroyo/fwgen/pkg/policy"
	"github.com/openfroyo/fwgen/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var (
		watch    bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a firmware configuration",
		Long: `Validate a firmware configuration without writing any sources.

This command checks:
  - YAML syntax and the document shape
  - Every component's options against its schema
  - Dependencies, conflicts and auto-loaded components
  - Policy compliance (OPA/rego)

Registration runs against an in-memory backend, so a configuration that
validates also compiles. With --watch, policy files given with --policy are
reloaded as they change.`,
		Example: `  # Validate a configuration
  fwgen validate node.yaml

  # Re-validate every time the file changes
  fwgen validate --watch node.yaml

  # Machine-readable output with extra policies
  fwgen validate --json --policy ./policies node.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := current
			path := args[0]

			if !watch {
				report, err := s.validate(cmd.Context(), path)
				if err != nil {
					return err
				}
				if err := report.write(cmd.OutOrStdout()); err != nil {
					return err
				}
				if !report.Valid {
					return errInvalidConfig
				}
				return nil
			}

			if err := s.watchPolicies(cmd.Context()); err != nil {
				return err
			}

			loader := s.loader()
			return loader.Watch(cmd.Context(), path, debounce, func(doc *config.Document, err error) {
				var report *buildReport
				if err != nil {
					report = newBuildReport(path, nil, err)
				} else {
					report = s.check(cmd.Context(), doc)
				}
				if werr := report.write(cmd.OutOrStdout()); werr != nil {
					s.tel.Logger.WithError(werr).Error("Failed to write report")
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-validate whenever the file changes")
	cmd.Flags().DurationVar(&debounce, "debounce", config.DefaultDebounce, "wait this long after a change before re-validating")

	return cmd
}

// watchPolicies rebuilds the policy engine's user policies from the
// configured paths whenever a policy file changes, until ctx is done.
func (s *session) watchPolicies(ctx context.Context) error {
	if len(s.settings.Policies) == 0 {
		return nil
	}

	pe, err := s.policyEngine(ctx)
	if err != nil {
		return err
	}

	pl := policy.NewLoader(s.logger("policy"))
	return pl.Watch(ctx, s.settings.Policies, func(policies []policy.Policy) error {
		return pe.ReplacePolicies(ctx, policies)
	})
}

// validate loads and checks one configuration file. Invalid configurations
// are reported, not returned as errors.
func (s *session) validate(ctx context.Context, path string) (*buildReport, error) {
	op := telemetry.StartOperation(ctx, "fwgen.validate", telemetry.AttrBuildSource.String(path))

	doc, err := s.loader().LoadFile(op.Ctx, path)
	if err != nil {
		op.End(err)
		return newBuildReport(path, nil, err), nil
	}

	report := s.check(op.Ctx, doc)
	if !report.Valid {
		op.End(errInvalidConfig)
	} else {
		op.End(nil)
	}
	return report, nil
}

// check builds a loaded document against an in-memory backend.
func (s *session) check(ctx context.Context, doc *config.Document) *buildReport {
	b, err := s.builder(ctx, codegen.NewMemoryBackend())
	if err != nil {
		return newBuildReport(doc.File, nil, err)
	}

	result, err := b.Build(ctx, doc.Raw)
	return newBuildReport(doc.File, result, err)
}
