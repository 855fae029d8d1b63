package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trondhumbor/ChitChat/pkg/datastore"
)

func exportCmd() *cobra.Command {
	var (
		archivePath string
		sender      string
		since       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the message archive as YAML",
		Long: `Export reads a message archive written by a server started with
--archive and prints it as YAML. The running server never reads the
archive back; this is the only way to look at it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if archivePath == "" {
				return errors.New("--archive is required")
			}
			if _, err := os.Stat(archivePath); err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			st, err := datastore.NewProviderFactory(archivePath)
			if err != nil {
				return fmt.Errorf("open archive: %w", err)
			}
			defer func() { _ = st.Close() }()

			var filters datastore.MessageFilters
			if sender != "" {
				filters.Sender = &sender
			}
			now := time.Now()
			if since > 0 {
				cutoff := now.Add(-since).Unix()
				filters.Since = &cutoff
			}
			return datastore.ExportMessagesYAML(context.Background(), st.NonTx(), filters, cmd.OutOrStdout(), now)
		},
	}

	cmd.Flags().StringVarP(&archivePath, "archive", "a", "", "SQLite archive file")
	cmd.Flags().StringVar(&sender, "sender", "", "Only messages from this user")
	cmd.Flags().DurationVar(&since, "since", 0, "Only messages newer than this (e.g. 24h)")

	return cmd
}
