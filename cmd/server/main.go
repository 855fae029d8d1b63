package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trondhumbor/ChitChat/pkg/datastore"
	"github.com/trondhumbor/ChitChat/pkg/logging"
	"github.com/trondhumbor/ChitChat/pkg/protocol"
	"github.com/trondhumbor/ChitChat/pkg/server"
)

func main() {
	rootCmd := serveCmd()
	rootCmd.AddCommand(
		exportCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// serveFlags mirrors server.Config for the command line. Only flags the
// user actually set override the config file and environment.
type serveFlags struct {
	configPath         string
	listenAddr         string
	httpAddr           string
	framing            string
	sendTimeout        time.Duration
	outboxSize         int
	maxFrameSize       int
	archivePath        string
	metricsLogInterval time.Duration
	shutdownTimeout    time.Duration
	logLevel           string
	logFormat          string
}

func serveCmd() *cobra.Command {
	def := server.DefaultConfig()
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "chitchat-server",
		Short: "Run the ChitChat relay server",
		Long: `ChitChat is a relay chat server. Clients log in with a username and
every message is broadcast to everyone logged in. New arrivals receive
the full chat history of the running server.

Configuration is read from --config (YAML or TOML), then CHITCHAT_*
environment variables, then command-line flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := server.LoadConfig(f.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, &f, &cfg)

			if err := logging.Setup(logging.Options{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				Output: os.Stdout,
			}); err != nil {
				return fmt.Errorf("invalid logging config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			deps := server.Dependencies{}
			if cfg.ArchivePath != "" {
				st, err := datastore.NewProviderFactory(cfg.ArchivePath)
				if err != nil {
					return fmt.Errorf("open archive: %w", err)
				}
				deps.Archive = st
			}

			srv := server.New(cfg, deps)
			if err := srv.Run(context.Background()); err != nil {
				slog.Error("server error", "err", err)
				return err
			}
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML (.yaml/.yml) or TOML (.toml) config file")
	fl.StringVar(&f.listenAddr, "listen", def.ListenAddr, "TCP bind address for the chat protocol")
	fl.StringVar(&f.httpAddr, "http", def.HTTPAddr, "HTTP bind address for /metrics, /healthz and /ws (empty to disable)")
	fl.StringVar(&f.framing, "framing", string(def.Framing), "TCP framing: length or line")
	fl.DurationVar(&f.sendTimeout, "send-timeout", def.SendTimeout, "Per-write timeout for each client")
	fl.IntVar(&f.outboxSize, "outbox-size", def.OutboxSize, "Responses queued per client before it is disconnected")
	fl.IntVar(&f.maxFrameSize, "max-frame-size", def.MaxFrameSize, "Largest accepted envelope in bytes")
	fl.StringVar(&f.archivePath, "archive", def.ArchivePath, "SQLite file to archive messages to (empty to disable)")
	fl.DurationVar(&f.metricsLogInterval, "metrics-log-interval", def.MetricsLogInterval, "Periodic metrics log (0 to disable)")
	fl.DurationVar(&f.shutdownTimeout, "shutdown-timeout", def.ShutdownTimeout, "How long shutdown waits for clients")
	fl.StringVar(&f.logLevel, "log-level", def.LogLevel, "Log level: "+logging.LevelNames())
	fl.StringVar(&f.logFormat, "log-format", def.LogFormat, "Log format: text or json")

	return cmd
}

func applyFlags(cmd *cobra.Command, f *serveFlags, cfg *server.Config) {
	fl := cmd.Flags()
	if fl.Changed("listen") {
		cfg.ListenAddr = f.listenAddr
	}
	if fl.Changed("http") {
		cfg.HTTPAddr = f.httpAddr
	}
	if fl.Changed("framing") {
		cfg.Framing = protocol.Framing(f.framing)
	}
	if fl.Changed("send-timeout") {
		cfg.SendTimeout = f.sendTimeout
	}
	if fl.Changed("outbox-size") {
		cfg.OutboxSize = f.outboxSize
	}
	if fl.Changed("max-frame-size") {
		cfg.MaxFrameSize = f.maxFrameSize
	}
	if fl.Changed("archive") {
		cfg.ArchivePath = f.archivePath
	}
	if fl.Changed("metrics-log-interval") {
		cfg.MetricsLogInterval = f.metricsLogInterval
	}
	if fl.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = f.shutdownTimeout
	}
	if fl.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if fl.Changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
}
