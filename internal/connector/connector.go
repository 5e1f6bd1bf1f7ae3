// Package connector holds what the chat host connectors share.
package connector

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/essembi/essembi-chat/internal/bot"
	"github.com/essembi/essembi-chat/internal/logbuf"
	"github.com/essembi/essembi-chat/pkg/protocol"
)

// Connector is a chat host that delivers activities on its own connection
// (Slack socket mode). HTTP-delivered hosts mount a handler instead.
type Connector interface {
	// Name returns the connector type (e.g., "slack").
	Name() string
	// Start begins listening for inbound activities. Blocks until context is cancelled.
	Start(ctx context.Context) error
}

// TurnHandler processes one inbound activity. Invoke activities return the
// response for the host; a returned error is fatal to the turn.
type TurnHandler func(ctx context.Context, host bot.Host, act *protocol.Activity) (*protocol.ActionResponse, error)

// Turns wraps h so every activity runs under a fresh turn id and is logged
// once it completes.
func Turns(h TurnHandler, logger *slog.Logger) TurnHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, host bot.Host, act *protocol.Activity) (*protocol.ActionResponse, error) {
		ctx = logbuf.WithTurn(ctx, uuid.NewString())
		start := time.Now()

		resp, err := h(ctx, host, act)
		if err != nil {
			logger.ErrorContext(ctx, "turn failed",
				"channel", act.ChannelID,
				"type", act.Type,
				"name", act.Name,
				"error", err,
			)
			return nil, err
		}
		logger.InfoContext(ctx, "turn handled",
			"channel", act.ChannelID,
			"type", act.Type,
			"name", act.Name,
			"duration", time.Since(start),
		)
		return resp, nil
	}
}
