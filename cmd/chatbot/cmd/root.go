// Package cmd provides the CLI commands for chatbot.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/internal/config"
	"github.com/NguyenDuy1910/chatbot/internal/logging"
	"github.com/NguyenDuy1910/chatbot/internal/profiling"
	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
	"github.com/NguyenDuy1910/chatbot/pkg/version"
)

// globalOptions holds the persistent flags shared by every command.
type globalOptions struct {
	dir     string
	debug   bool
	noColor bool

	profile  profiling.Options
	profiler *profiling.Session
}

// NewRootCmd creates the root command for the chatbot CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "chatbot",
		Short: "Hybrid keyword and semantic retrieval over your documents",
		Long: `chatbot keeps a document store, a keyword index and a vector index
consistent with each other and answers hybrid or structured queries.

Documents are written with add, update and delete, or ingested from a
directory with sync and watch. serve exposes the same operations to MCP
clients over stdio.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("chatbot version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "Project directory holding .chatbot.yaml")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to stderr and the log file")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = opts.startProfiling
	cmd.PersistentPostRunE = opts.stopProfiling

	cmd.AddCommand(newInitCmd(opts))
	cmd.AddCommand(newAddCmd(opts))
	cmd.AddCommand(newUpdateCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newGetCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newResetCmd(opts))
	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newTUICmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// startProfiling starts the profiles requested by the --profile-* flags.
func (o *globalOptions) startProfiling(_ *cobra.Command, _ []string) error {
	if !o.profile.Enabled() {
		return nil
	}
	s, err := profiling.Start(o.profile)
	if err != nil {
		return err
	}
	o.profiler = s
	return nil
}

// stopProfiling stops profiling and writes the heap profile if requested.
func (o *globalOptions) stopProfiling(_ *cobra.Command, _ []string) error {
	if o.debug {
		slog.Debug("run_complete", slog.String("memory", profiling.MemSummary()))
	}
	err := o.profiler.Stop()
	o.profiler = nil
	return err
}

// projectDir returns the absolute project directory.
func (o *globalOptions) projectDir() (string, error) {
	dir, err := filepath.Abs(o.dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project directory: %w", err)
	}
	return dir, nil
}

// loadConfig loads the configuration of the project directory.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	dir, err := o.projectDir()
	if err != nil {
		return nil, err
	}
	return config.Load(dir)
}

// openService loads the project config, starts file logging in its data
// directory and opens the engine. The returned function closes both.
func (o *globalOptions) openService(ctx context.Context) (*retrieval.Service, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	stopLogging := o.setupLogging(cfg)
	svc, err := retrieval.Open(ctx, cfg)
	if err != nil {
		stopLogging()
		return nil, nil, err
	}

	closeAll := func() {
		if err := svc.Close(); err != nil {
			slog.Warn("service_close_failed", slog.String("error", err.Error()))
		}
		stopLogging()
	}
	return svc, closeAll, nil
}

// setupLogging sends records to the rotating log file, and to stderr with
// --debug. A log file that cannot be opened falls back to discarding. The
// returned function restores the previous default logger.
func (o *globalOptions) setupLogging(cfg *config.Config) func() {
	prev := slog.Default()
	logCfg := logging.DefaultConfig(cfg.DataDir)
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = o.debug
	if o.debug {
		logCfg.Level = "debug"
	}

	restore := func() { slog.SetDefault(prev) }
	if err := logging.EnsureLogDir(cfg.DataDir); err != nil {
		slog.SetDefault(logging.Discard())
		return restore
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		slog.SetDefault(logging.Discard())
		return restore
	}
	slog.SetDefault(logger)
	return func() {
		restore()
		cleanup()
	}
}
