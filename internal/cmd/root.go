package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/tirecode/internal/config"
	"github.com/felixgeelhaar/tirecode/internal/log"
	"github.com/felixgeelhaar/tirecode/internal/metrics"
	"github.com/felixgeelhaar/tirecode/internal/telemetry"
	"github.com/felixgeelhaar/tirecode/internal/version"
)

// skipConfig marks commands that run without a loaded configuration.
const skipConfig = "tirecode/skip-config"

// telemetryShutdownTimeout bounds the final span flush.
const telemetryShutdownTimeout = 5 * time.Second

// NewRootCmd builds the tirecode command tree.
func NewRootCmd() *cobra.Command {
	root, _ := newRootCmd()
	return root
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "tirecode",
		Short: "Tire code lookup and administration",
		Long: `tirecode looks up tire codes and sizes and manages the tire code
mapping database.

Public lookups need no account. Administrative commands (mappings, import,
analytics) need a session started with 'tirecode auth login'. The session is
kept in the configured token store and refreshed automatically before the
access token expires.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default is $HOME/.tirecode/config.yaml)")
	flags.String("api-url", "", "backend base URL (overrides api.url)")
	flags.Duration("timeout", 0, "per-request timeout (overrides api.timeout)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text or json")
	flags.Bool("debug", false, "debug logging with source locations and error details")
	flags.String("store", "", "token store backend: file, encrypted, vault, memory")
	flags.StringP("output", "o", "text", "output format: text, json, yaml")

	root.AddCommand(
		newAuthCmd(a),
		newLookupCmd(a),
		newMappingsCmd(a),
		newImportCmd(a),
		newAnalyticsCmd(a),
		newConfigCmd(a),
		newDoctorCmd(a),
		newVersionCmd(a),
	)

	return root, a
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which is canceled on
// interrupt by main.
func ExecuteContext(ctx context.Context) error {
	root, a := newRootCmd()
	err := root.ExecuteContext(ctx)
	a.finish(err)
	return err
}

// app carries the state shared by one command invocation.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	metrics *metrics.Metrics
	output  string
	debug   bool

	span     trace.Span
	shutdown func(context.Context) error
}

func (a *app) setup(cmd *cobra.Command) error {
	output, _ := cmd.Flags().GetString("output")
	if _, err := newFormatter(output, cmd.OutOrStdout()); err != nil {
		return usageError(err.Error())
	}
	a.output = output

	if cmd.Annotations[skipConfig] == "true" {
		a.logger = log.Discard()
		return nil
	}

	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return err
	}
	a.cfg = cfg

	a.debug, _ = cmd.Flags().GetBool("debug")
	lc := cfg.LoggerConfig(version.Version, a.debug)
	lc.Output = log.NewOutput(cmd.ErrOrStderr())
	a.logger = log.New(lc)
	log.SetDefaultLogger(a.logger)

	a.metrics = metrics.InitDefault()

	shutdown, err := telemetry.InitProvider(cmd.Context(), cfg.TracingConfig(version.Version))
	if err != nil {
		a.logger.Warn("tracing disabled", "error", err.Error())
	} else {
		a.shutdown = shutdown
	}

	ctx, span := telemetry.StartCommandSpan(cmd.Context(), cmd.CommandPath())
	a.span = span
	cmd.SetContext(ctx)

	a.logger.Debug("configuration loaded", "file", cfg.File, "api_url", cfg.API.URL, "store", cfg.Store.Backend)
	return nil
}

// finish ends the command span and flushes traces. In debug mode a failed
// command also logs its coded error details.
func (a *app) finish(err error) {
	if err != nil && a.debug && a.logger != nil {
		a.logger.LogErrorContext(context.Background(), err)
	}
	if a.span != nil {
		if err != nil {
			telemetry.RecordError(a.span, err)
		} else {
			telemetry.RecordSuccess(a.span)
		}
		a.span.End()
	}
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if serr := a.shutdown(ctx); serr != nil && a.logger != nil {
			a.logger.Debug("trace flush failed", "error", serr.Error())
		}
	}
}

// applyFlagOverrides copies explicitly set global flags over cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	changed := false

	if flags.Changed("api-url") {
		url, _ := flags.GetString("api-url")
		cfg.API.URL = strings.TrimRight(url, "/")
		changed = true
	}
	if flags.Changed("timeout") {
		cfg.API.Timeout, _ = flags.GetDuration("timeout")
		changed = true
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
		changed = true
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
		changed = true
	}
	if flags.Changed("store") {
		cfg.Store.Backend, _ = flags.GetString("store")
		changed = true
	}

	if !changed {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flag value: %w", err)
	}
	return nil
}
