package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"switchyard/internal/app"
	"switchyard/pkg/logging"
)

type serveOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	watch      bool
}

// newServeCmd defines the serve command, which runs a context until the
// process is interrupted.
func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the routes declared in the configuration directory",
		Long: `Loads the configuration directory, starts the context and its routes
and serves the admin API until interrupted (SIGINT or SIGTERM), then shuts
the routes down gracefully.

Configuration:
  The configuration directory (default ~/.config/switchyard) holds:
  - config.yaml (context, shutdown, supervising and admin settings)
  - routes/ (one YAML file per route)

  With --watch, route changes in either place are applied to the running
  context without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config-path", "", "Configuration directory (default ~/.config/switchyard)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	cmd.Flags().StringVar(&opts.logFormat, "log-format", app.LogFormatText, "Log format: text or json")
	cmd.Flags().BoolVar(&opts.watch, "watch", true, "Apply route changes from the configuration directory while running")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	if opts.logFormat != app.LogFormatText && opts.logFormat != app.LogFormatJSON {
		return fmt.Errorf("unsupported log format %q", opts.logFormat)
	}
	cfg := app.NewConfig(logging.ParseLevel(opts.logLevel), opts.logFormat, opts.configPath, opts.watch)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(ctx)
}
