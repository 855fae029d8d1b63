package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trondhumbor/ChitChat/pkg/client"
	"github.com/trondhumbor/ChitChat/pkg/logging"
	"github.com/trondhumbor/ChitChat/pkg/protocol"
	"github.com/trondhumbor/ChitChat/pkg/version"
)

func main() {
	rootCmd := chatCmd()
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func chatCmd() *cobra.Command {
	var (
		settingsPath string
		saveSettings bool
		logLevel     string
	)
	def := client.DefaultSettings()
	override := *def

	cmd := &cobra.Command{
		Use:   "chitchat",
		Short: "Terminal client for a ChitChat server",
		Long: `Connects to a ChitChat server and reads commands from stdin:

  login <username>   log in
  msg <text>         post a message
  names              list users online
  logout             log out and exit
  help               ask the server for help
  quit               exit without logging out`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logging.Setup(logging.Options{
				Level:  logLevel,
				Format: "text",
				Output: os.Stderr,
			}); err != nil {
				return err
			}

			s, err := client.LoadSettings(settingsPath)
			if err != nil {
				return err
			}
			fl := cmd.Flags()
			if fl.Changed("server") {
				s.Server = override.Server
			}
			if fl.Changed("ws") {
				s.WebSocket = override.WebSocket
			}
			if fl.Changed("framing") {
				s.Framing = override.Framing
			}
			if fl.Changed("user") {
				s.Username = override.Username
			}
			if fl.Changed("hide-own") {
				s.HideOwn = override.HideOwn
			}
			if fl.Changed("timestamps") {
				s.Timestamps = override.Timestamps
			}
			if fl.Changed("color") {
				s.Color = override.Color
			}
			if saveSettings {
				if settingsPath == "" {
					return fmt.Errorf("--save-settings needs --settings")
				}
				if err := s.Save(settingsPath); err != nil {
					return fmt.Errorf("save settings: %w", err)
				}
			}

			useColor, err := s.UseColor(client.IsTerminal(os.Stdout))
			if err != nil {
				return err
			}
			r := client.NewRenderer(os.Stdout, client.RenderOptions{
				Color:      useColor,
				HideOwn:    s.HideOwn,
				Timestamps: s.Timestamps,
			})

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var c *client.ChatClient
			if s.WebSocket != "" {
				c, err = client.DialWebSocket(ctx, s.WebSocket)
			} else {
				framing, ferr := protocol.ParseFraming(string(s.Framing))
				if ferr != nil {
					return ferr
				}
				c, err = client.Dial(ctx, s.Server, framing)
			}
			if err != nil {
				return err
			}
			return client.Run(ctx, c, os.Stdin, r, s.Username)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&settingsPath, "settings", "", "YAML settings file")
	fl.BoolVar(&saveSettings, "save-settings", false, "Write the effective settings back to --settings")
	fl.StringVar(&logLevel, "log-level", "warn", "Log level: "+logging.LevelNames())
	fl.StringVarP(&override.Server, "server", "s", def.Server, "Server host:port")
	fl.StringVar(&override.WebSocket, "ws", "", "WebSocket URL, e.g. ws://localhost:9999/ws (overrides --server)")
	fl.StringVar((*string)(&override.Framing), "framing", string(def.Framing), "TCP framing: length or line")
	fl.StringVarP(&override.Username, "user", "u", "", "Log in as this user after connecting")
	fl.BoolVar(&override.HideOwn, "hide-own", false, "Do not print your own messages")
	fl.BoolVar(&override.Timestamps, "timestamps", false, "Prefix messages with their time")
	fl.StringVar(&override.Color, "color", def.Color, "Colour output: auto, always or never")

	return cmd
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			if short {
				_, _ = fmt.Fprintln(out, version.String())
				return
			}
			_, _ = fmt.Fprintf(out, "chitchat %s\n", version.Full())
			_, _ = fmt.Fprintf(out, "  Go version: %s\n", runtime.Version())
			_, _ = fmt.Fprintf(out, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
