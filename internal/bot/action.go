package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/essembi/essembi-chat/internal/card"
	"github.com/essembi/essembi-chat/internal/session"
	"github.com/essembi/essembi-chat/pkg/protocol"
)

const brMarker = "<br />"

var lineBreak = regexp.MustCompile(`\r\n|\r|\n`)

// OnFetch starts a new ticket dialog: it resolves the sender, authenticates
// them against Essembi and either shows the entry form directly or asks
// which environment to use.
func (b *Bot) OnFetch(ctx context.Context, host Host, act *protocol.Activity, action *protocol.Action) (*protocol.ActionResponse, error) {
	key := sessionKey(act)
	// A new dialog abandons any selection still pending for this user.
	if err := b.sessions.Clear(ctx, key); err != nil {
		b.logger.WarnContext(ctx, "clear pending selection", "key", key.String(), "error", err)
	}

	lookup := host.LookupMember(ctx, act)
	switch lookup.Status {
	case protocol.LookupOK:
	case protocol.LookupNotInstalled:
		task, err := card.InstallTask()
		if err != nil {
			return nil, err
		}
		return protocol.Continue(task), nil
	case protocol.LookupUnready:
		task, err := card.NotReadyTask()
		if err != nil {
			return nil, err
		}
		return protocol.Continue(task), nil
	default:
		b.logHostError(ctx, act, lookup.Err)
		return nil, fmt.Errorf("bot: member lookup: %w", lookup.Err)
	}

	email := memberEmail(lookup.Member)
	res, err := b.backend.Authenticate(ctx, email)
	if err != nil {
		if isCancelled(ctx, err) {
			return nil, err
		}
		return b.errorResponse(ctx, act, classifyAuthenticate(err)), nil
	}

	pre := messagePrefill(action)

	switch len(res.Apps) {
	case 0:
		return b.errorResponse(ctx, act, newError(NoEnvironmentsConfigured, nil)), nil
	case 1:
		return protocol.Continue(b.cards.EntryFormTask(email, pre, &res.Apps[0])), nil
	}

	sel := &protocol.PendingSelection{
		Apps:      res.Apps,
		Email:     email,
		Subject:   pre.Subject,
		Body:      pre.Body,
		CreatedAt: time.Now(),
	}
	if err := b.sessions.Put(ctx, key, sel); err != nil {
		return nil, fmt.Errorf("bot: store pending selection: %w", err)
	}
	b.logger.InfoContext(ctx, "environment choice shown", "key", key.String(), "apps", len(res.Apps))
	return protocol.Continue(b.cards.EnvironmentChoiceTask(res.Apps, email)), nil
}

// OnSubmit handles every submission of a dialog window: the environment
// choice, the final ticket form, and the data-less submits sent while the
// app is being installed.
func (b *Bot) OnSubmit(ctx context.Context, act *protocol.Activity, action *protocol.Action) (*protocol.ActionResponse, error) {
	fields, err := action.Fields()
	if err != nil {
		return b.errorResponse(ctx, act, newError(InvalidInput, err)), nil
	}

	if env, ok := fields["environment"]; ok {
		return b.onEnvironmentChosen(ctx, act, env)
	}
	if _, ok := fields["appId"]; !ok {
		// Install handshakes submit without dialog data.
		return &protocol.ActionResponse{}, nil
	}
	return b.onTicketSubmitted(ctx, act, fields)
}

func (b *Bot) onEnvironmentChosen(ctx context.Context, act *protocol.Activity, choice any) (*protocol.ActionResponse, error) {
	key := sessionKey(act)
	sel, err := b.sessions.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			b.logger.ErrorContext(ctx, "load pending selection", "key", key.String(), "error", err)
		}
		return b.errorResponse(ctx, act, newError(SessionExpired, err)), nil
	}

	id, err := strconv.ParseInt(strings.TrimSpace(stringValue(choice)), 10, 64)
	if err != nil {
		return b.errorResponse(ctx, act, newError(EnvironmentNotFound, err)), nil
	}
	env, ok := sel.FindApp(id)
	if !ok {
		return b.errorResponse(ctx, act, newError(EnvironmentNotFound, fmt.Errorf("environment %d not offered", id))), nil
	}

	if err := b.sessions.Clear(ctx, key); err != nil {
		b.logger.WarnContext(ctx, "clear pending selection", "key", key.String(), "error", err)
	}

	pre := card.Prefill{Subject: sel.Subject, Body: sel.Body}
	return protocol.Continue(b.cards.EntryFormTask(sel.Email, pre, env)), nil
}

func (b *Bot) onTicketSubmitted(ctx context.Context, act *protocol.Activity, fields map[string]any) (*protocol.ActionResponse, error) {
	sub, err := BuildSubmission(fields)
	if err != nil {
		return b.errorResponse(ctx, act, newError(InvalidInput, err)), nil
	}

	res, err := b.backend.Create(ctx, sub)
	if err != nil {
		if isCancelled(ctx, err) {
			return nil, err
		}
		return b.errorResponse(ctx, act, classifyCreate(err)), nil
	}

	b.logger.InfoContext(ctx, "ticket created", "app_id", sub.AppID, "number", res.Number)
	return b.cards.ResultResponse(res), nil
}

// BuildSubmission turns the submitted form into a creation request.
// appId and tableId become request fields; every other key, email included,
// is sent as a value with its line breaks normalized.
func BuildSubmission(fields map[string]any) (*protocol.TicketSubmission, error) {
	appID, err := strconv.ParseInt(strings.TrimSpace(stringValue(fields["appId"])), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bot: invalid appId: %w", err)
	}
	tableID, err := strconv.ParseInt(strings.TrimSpace(stringValue(fields["tableId"])), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bot: invalid tableId: %w", err)
	}

	sub := &protocol.TicketSubmission{
		Email:   stringValue(fields["email"]),
		AppID:   appID,
		TableID: tableID,
		Values:  make(map[string]string, len(fields)),
	}
	for k, v := range fields {
		if k == "appId" || k == "tableId" {
			continue
		}
		sub.Values[k] = NormalizeLineBreaks(stringValue(v))
	}
	return sub, nil
}

// NormalizeLineBreaks joins the trimmed lines of s with the rich-text
// line break marker. Values without line breaks are returned unchanged.
func NormalizeLineBreaks(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	lines := lineBreak.Split(s, -1)
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, brMarker)
}

// messagePrefill extracts subject and plain-text body from the message the
// action was invoked on.
func messagePrefill(action *protocol.Action) card.Prefill {
	var pre card.Prefill
	if action.MessagePayload == nil {
		return pre
	}
	pre.Subject = action.MessagePayload.Subject
	if action.MessagePayload.Body != nil {
		pre.Body = StripHTML(action.MessagePayload.Body.Content)
	}
	return pre
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}
