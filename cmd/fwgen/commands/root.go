package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfroyo/fwgen/pkg/components"
	"github.com/openfroyo/fwgen/pkg/config"
	"github.com/openfroyo/fwgen/pkg/engine"
	"github.com/openfroyo/fwgen/pkg/policy"
	"github.com/openfroyo/fwgen/pkg/stores"
	"github.com/openfroyo/fwgen/pkg/telemetry"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	jsonOutput  bool
	dbPath      string
	metricsFile string
	policyPaths []string
)

// session holds what the root command sets up for the running subcommand.
type session struct {
	settings *Settings
	tel      *telemetry.Telemetry
	registry *engine.ComponentRegistry
	policies *policy.Engine
}

var current *session

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return run(ctx, newRootCommand(version, commit, buildDate), os.Stdout, os.Args[1:])
}

// run executes cmd with args and always shuts the session down, also when
// the command fails.
func run(ctx context.Context, cmd *cobra.Command, out io.Writer, args []string) error {
	cmd.SetOut(out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)

	if current != nil {
		if shutdownErr := current.tel.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
		current = nil
	}
	return err
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fwgen",
		Short: "fwgen - declarative firmware configuration compiler",
		Long: `fwgen validates a declarative device configuration and turns it into
firmware sources.

Each top-level key of the configuration names a component. fwgen checks every
component's options against its schema, resolves dependencies, conflicts and
auto-loaded components, and registers the components in an order where
dependencies come first.

Features:
  - YAML configuration with substitutions and Starlark expressions
  - Dependency resolution with deterministic ordering
  - Policy enforcement via OPA/Rego
  - Build history in SQLite
  - Upload of generated sources to a remote build host over SSH`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, version)
			if err != nil {
				return err
			}
			current = s
			cmd.SetContext(s.tel.WithContext(cmd.Context()))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "fwgen settings file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "build history database (default "+DefaultDatabasePath+")")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	rootCmd.PersistentFlags().StringSliceVar(&policyPaths, "policy", nil, "extra policy files, directories or globs")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newCompileCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newComponentsCommand())
	rootCmd.AddCommand(newPoliciesCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newUploadCommand())

	return rootCmd
}

// newSession merges the settings file with the global flags and sets up
// telemetry and the component catalog.
func newSession(cmd *cobra.Command, version string) (*session, error) {
	settings, err := LoadSettings(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		settings.Database = dbPath
	}
	if metricsFile != "" {
		settings.Metrics.Textfile = metricsFile
	}
	settings.Policies = append(settings.Policies, policyPaths...)

	telCfg := settings.Telemetry(version)
	if verbose {
		telCfg.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}

	s := &session{settings: settings, tel: tel}

	if telCfg.Metrics.ListenAddress != "" {
		go func() {
			if err := tel.Metrics.StartMetricsServer(cmd.Context(), s.logger("metrics")); err != nil {
				tel.Logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	registry, err := components.NewRegistry()
	if err != nil {
		_ = tel.Shutdown(cmd.Context())
		return nil, err
	}
	s.registry = registry

	return s, nil
}

// logger returns a zerolog logger tagged with subsystem.
func (s *session) logger(subsystem string) zerolog.Logger {
	return s.tel.Logger.NewComponentLogger(subsystem).Zerolog()
}

// policyEngine returns the policy engine with the built-in policies and any
// configured policy paths loaded.
func (s *session) policyEngine(ctx context.Context) (*policy.Engine, error) {
	if s.policies != nil {
		return s.policies, nil
	}

	pe, err := policy.NewEngine(s.logger("policy"))
	if err != nil {
		return nil, err
	}
	if len(s.settings.Policies) > 0 {
		if err := pe.LoadPolicies(ctx, s.settings.Policies); err != nil {
			return nil, fmt.Errorf("failed to load policies: %w", err)
		}
	}

	s.policies = pe
	return pe, nil
}

// loader returns a configuration loader with the CLI defaults.
func (s *session) loader() *config.Loader {
	return config.NewLoader(s.logger("config"), config.DefaultLoadOptions())
}

// builder returns an instrumented builder writing to backend and checked
// against the policy engine.
func (s *session) builder(ctx context.Context, backend engine.Backend) (*engine.Builder, error) {
	pe, err := s.policyEngine(ctx)
	if err != nil {
		return nil, err
	}

	b := engine.NewBuilder(s.registry, s.logger("engine")).
		WithBackend(backend).
		WithPolicy(pe)
	return s.tel.Instrument(b), nil
}

// openStore opens and migrates the build history database.
func (s *session) openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	path := s.settings.Database
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
