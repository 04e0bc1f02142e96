package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-relations/pkg/builder"
	"github.com/marshallshelly/pebble-relations/pkg/registry"
	"github.com/marshallshelly/pebble-relations/pkg/runtime"
	"github.com/marshallshelly/pebble-relations/pkg/schema"
)

// Version is the CLI version.
const Version = "0.4.0"

// options holds the global flags shared by every subcommand.
type options struct {
	dbURL       string
	schemaPath  string
	verbose     bool
	jsonOutput  bool
	isolateOr   bool
	concurrency int
}

// NewRootCmd builds the pebble command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "pebble",
		Short: "Pebble - relationship-aware queries for PostgreSQL",
		Long: `Pebble translates document filters that traverse entity relationships into
PostgreSQL joins, and batch-loads associations for query results.

Features:
  - Nested filters across oneToOne, oneToMany, manyToOne and manyToMany paths
  - Custom relationship strategies
  - Batched association loading, one query per association
  - Schemas from Go struct tags or YAML/TOML documents`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.dbURL, "db", "", "Database connection URL (defaults to $DATABASE_URL)")
	cmd.PersistentFlags().StringVarP(&opts.schemaPath, "schema", "s", "schema.yaml", "Schema document (.yaml, .yml or .toml)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVar(&opts.isolateOr, "isolate-or", false, "Resolve the joins of each OR branch separately with LEFT JOIN")
	cmd.PersistentFlags().IntVar(&opts.concurrency, "concurrency", 1, "Associations loaded in parallel")

	cmd.AddCommand(
		NewSchemaCmd(opts),
		NewTranslateCmd(opts),
		NewQueryCmd(opts),
	)

	return cmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *options) logger(cmd *cobra.Command) zerolog.Logger {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	return runtime.NewLogger(runtime.LogConfig{
		Level:  level,
		Pretty: !o.jsonOutput,
		Output: cmd.ErrOrStderr(),
	})
}

func (o *options) registry() (*registry.Registry, error) {
	tables, err := schema.LoadDocument(o.schemaPath)
	if err != nil {
		return nil, err
	}
	reg := registry.NewRegistry()
	if err := reg.RegisterTables(tables); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", o.schemaPath, err)
	}
	return reg, nil
}

func (o *options) connectionURL() (string, error) {
	if o.dbURL != "" {
		return o.dbURL, nil
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}
	return "", errors.New("database URL is required (use --db or $DATABASE_URL)")
}

func (o *options) adapter(q builder.Querier, reg *registry.Registry, logger zerolog.Logger) *builder.DB {
	opts := []builder.Option{
		builder.WithRegistry(reg),
		builder.WithLogger(logger),
		builder.WithConcurrency(o.concurrency),
	}
	if o.isolateOr {
		opts = append(opts, builder.WithIsolatedOrGroups())
	}
	return builder.New(q, opts...)
}
