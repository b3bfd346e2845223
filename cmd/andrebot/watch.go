package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andresdev/backstage/internal/ayudaclient"
	"github.com/andresdev/backstage/internal/clock"
	"github.com/andresdev/backstage/internal/domain"
)

const defaultWatchInterval = 2500 * time.Millisecond

func newWatchCmd(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch <chatID>",
		Short: "Sigue una conversación guardada y muestra los mensajes nuevos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid chat id %q", args[0])
			}
			fetch := func(ctx context.Context) (*domain.ChatSession, error) {
				return a.client.GetChat(ctx, id)
			}
			return watchChat(cmd.Context(), fetch, a.clock, interval, cmd.OutOrStdout(), a.logger)
		},
	}

	cmd.Flags().DurationVar(&interval, "intervalo", defaultWatchInterval, "polling interval")
	return cmd
}

// watchChat polls a chat and prints each message once until ctx is canceled.
// Transient failures are logged and the next poll retries.
func watchChat(ctx context.Context, fetch func(context.Context) (*domain.ChatSession, error), clk clock.Clock, interval time.Duration, w io.Writer, logger *zap.Logger) error {
	seen := 0
	header := false
	for {
		chat, err := fetch(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case ayudaclient.IsNotFound(err):
			return fmt.Errorf("chat not found: %w", err)
		case err != nil:
			logger.Warn("failed to poll chat", zap.Error(err))
		default:
			if !header {
				fmt.Fprintf(w, "Chat de %s (%s)\n", chat.CreadoPorNombre, chat.CreadoPorEmail)
				header = true
			}
			// Transcripts only grow.
			if seen > len(chat.Messages) {
				seen = len(chat.Messages)
			}
			for _, m := range chat.Messages[seen:] {
				printMessage(w, m)
			}
			seen = len(chat.Messages)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-clk.After(interval):
		}
	}
}
