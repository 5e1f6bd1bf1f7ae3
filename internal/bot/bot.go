// Package bot drives the ticket creation dialog and the free-text commands.
package bot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/essembi/essembi-chat/internal/card"
	"github.com/essembi/essembi-chat/internal/session"
	"github.com/essembi/essembi-chat/pkg/protocol"
)

// Host is the chat platform the activity came from.
type Host interface {
	// LookupMember resolves the activity's sender against the conversation roster.
	LookupMember(ctx context.Context, act *protocol.Activity) protocol.MemberLookup
	// Send posts a reply into the activity's conversation.
	Send(ctx context.Context, act *protocol.Activity, reply protocol.Reply) error
}

// Backend is the Essembi integration API.
type Backend interface {
	Authenticate(ctx context.Context, email string) (*protocol.IdentityResolution, error)
	Create(ctx context.Context, sub *protocol.TicketSubmission) (*protocol.TicketResult, error)
	Search(ctx context.Context, email, query string) ([]protocol.SearchResult, error)
}

// Bot handles one inbound activity per call. It keeps no per-turn state;
// the session store is the only state shared between turns.
type Bot struct {
	backend  Backend
	sessions session.Store
	cards    *card.Renderer
	logger   *slog.Logger
}

// New creates a bot. renderer and logger may be nil.
func New(backend Backend, sessions session.Store, renderer *card.Renderer, logger *slog.Logger) *Bot {
	if renderer == nil {
		renderer = card.NewRenderer(card.Links{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		backend:  backend,
		sessions: sessions,
		cards:    renderer,
		logger:   logger,
	}
}

// Handle dispatches an activity. Invoke activities return the response to
// send back to the host; other activities reply through host.Send and
// return nil. A returned error is fatal to the turn.
func (b *Bot) Handle(ctx context.Context, host Host, act *protocol.Activity) (*protocol.ActionResponse, error) {
	switch act.Type {
	case protocol.ActivityInvoke:
		return b.HandleInvoke(ctx, host, act)
	case protocol.ActivityMessage:
		return nil, b.HandleMessage(ctx, host, act)
	case protocol.ActivityConversationUpdate:
		return nil, b.HandleMembersAdded(ctx, host, act)
	default:
		b.logger.DebugContext(ctx, "ignoring activity", "type", act.Type)
		return nil, nil
	}
}

// HandleInvoke answers compose-box action invokes.
func (b *Bot) HandleInvoke(ctx context.Context, host Host, act *protocol.Activity) (*protocol.ActionResponse, error) {
	if act.Name != protocol.InvokeFetchTask && act.Name != protocol.InvokeSubmitAction {
		b.logger.DebugContext(ctx, "ignoring invoke", "name", act.Name)
		return &protocol.ActionResponse{}, nil
	}

	action, err := act.Action()
	if err != nil {
		b.logger.WarnContext(ctx, "undecodable action", "error", err)
		return b.errorResponse(ctx, act, newError(InvalidInput, err)), nil
	}
	if !isTicketCommand(action.CommandID) {
		return &protocol.ActionResponse{}, nil
	}

	if act.Name == protocol.InvokeFetchTask || !action.HasData() {
		return b.OnFetch(ctx, host, act, action)
	}
	return b.OnSubmit(ctx, act, action)
}

func isTicketCommand(id string) bool {
	return id == "createTicket" || id == "createTicketMessage"
}

func sessionKey(act *protocol.Activity) session.Key {
	return session.Key{ConversationID: act.Conversation.ID, UserID: act.From.ID}
}

// errorResponse renders a dialog error as an error window.
func (b *Bot) errorResponse(ctx context.Context, act *protocol.Activity, derr *DialogError) *protocol.ActionResponse {
	b.logger.WarnContext(ctx, "dialog error",
		"kind", derr.Kind.String(),
		"user", act.From.ID,
		"conversation", act.Conversation.ID,
		"error", derr.Err,
	)
	return protocol.Continue(b.cards.ErrorTask(derr.UserMessage()))
}

// logHostError records an unclassified host failure with the request context.
func (b *Bot) logHostError(ctx context.Context, act *protocol.Activity, err error) {
	b.logger.ErrorContext(ctx, "host lookup failed",
		"actor_role", act.From.Role,
		"actor_name", act.From.Name,
		"actor_id", act.From.ID,
		"conversation", act.Conversation.ID,
		"channel", act.ChannelID,
		"properties", act.ChannelData,
		"error", err,
	)
}

func isCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func memberEmail(m protocol.Member) string {
	if m.Email != "" {
		return m.Email
	}
	return m.UserPrincipalName
}
