package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

const productName = "essembi"

// CommandKind is a recognized free-text command.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandSearch
	CommandHelp
	CommandDoc
)

// Command is a parsed chat message. Text keeps the user's casing with the
// mention and product name removed; Query is set for CommandSearch.
type Command struct {
	Kind  CommandKind
	Text  string
	Query string
}

// ParseCommand recognizes search, help and doc in a chat message.
func ParseCommand(raw string) Command {
	text := strings.TrimSpace(StripHTML(raw))
	text = dropLeadingToken(text, func(tok string) bool { return strings.HasPrefix(tok, "@") })
	text = dropLeadingToken(text, func(tok string) bool { return strings.EqualFold(tok, productName) })
	lower := strings.ToLower(text)

	switch {
	case isSearch(lower):
		return Command{Kind: CommandSearch, Text: text, Query: strings.TrimSpace(text[len("search"):])}
	case strings.Contains(lower, "help"):
		return Command{Kind: CommandHelp, Text: text}
	case strings.Contains(lower, "doc"):
		return Command{Kind: CommandDoc, Text: text}
	default:
		return Command{Kind: CommandUnknown, Text: text}
	}
}

// isSearch reports whether lower starts with the word "search".
func isSearch(lower string) bool {
	rest, ok := strings.CutPrefix(lower, "search")
	if !ok {
		return false
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return rest == "" || unicode.IsSpace(r)
}

func dropLeadingToken(text string, match func(string) bool) string {
	tok, rest, _ := strings.Cut(text, " ")
	if tok == "" || !match(tok) {
		return text
	}
	return strings.TrimSpace(rest)
}

// HandleMessage answers a free-text chat message.
func (b *Bot) HandleMessage(ctx context.Context, host Host, act *protocol.Activity) error {
	cmd := ParseCommand(act.Text)

	switch cmd.Kind {
	case CommandSearch:
		return b.search(ctx, host, act, cmd.Query)
	case CommandHelp:
		return b.reply(ctx, host, act, protocol.Reply{Attachments: []protocol.Attachment{b.cards.HelpCard()}})
	case CommandDoc:
		return b.reply(ctx, host, act, protocol.Reply{Attachments: []protocol.Attachment{b.cards.DocCard()}})
	default:
		return b.reply(ctx, host, act, protocol.Reply{Attachments: []protocol.Attachment{b.cards.SuggestionCard(cmd.Text)}})
	}
}

func (b *Bot) search(ctx context.Context, host Host, act *protocol.Activity, query string) error {
	lookup := host.LookupMember(ctx, act)
	switch lookup.Status {
	case protocol.LookupOK:
	case protocol.LookupNotInstalled:
		return b.replyText(ctx, host, act, newError(IdentityNotInstalled, nil).UserMessage())
	case protocol.LookupUnready:
		return b.replyText(ctx, host, act, newError(IdentityLookupUnready, nil).UserMessage())
	default:
		b.logHostError(ctx, act, lookup.Err)
		return b.replyText(ctx, host, act, newError(IdentityLookupOther, lookup.Err).UserMessage())
	}

	if query == "" {
		return b.replyText(ctx, host, act, "Please tell me what to search for, for example: search printer jam")
	}

	results, err := b.backend.Search(ctx, memberEmail(lookup.Member), query)
	if err != nil {
		if isCancelled(ctx, err) {
			return err
		}
		b.logger.WarnContext(ctx, "search failed", "user", act.From.ID, "error", err)
		return b.replyText(ctx, host, act, newError(SearchFailed, err).UserMessage())
	}
	if len(results) == 0 {
		return b.replyText(ctx, host, act, fmt.Sprintf("No results for '%s'.", query))
	}
	return b.reply(ctx, host, act, protocol.Reply{
		Attachments: []protocol.Attachment{b.cards.SearchResultsCard(query, results)},
	})
}

// HandleMembersAdded welcomes every new member except the app itself.
func (b *Bot) HandleMembersAdded(ctx context.Context, host Host, act *protocol.Activity) error {
	for _, m := range act.MembersAdded {
		if m.ID == act.Recipient.ID {
			continue
		}
		if err := b.reply(ctx, host, act, protocol.Reply{
			Attachments: []protocol.Attachment{b.cards.WelcomeCard()},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) replyText(ctx context.Context, host Host, act *protocol.Activity, text string) error {
	return b.reply(ctx, host, act, protocol.Reply{Text: text})
}

func (b *Bot) reply(ctx context.Context, host Host, act *protocol.Activity, r protocol.Reply) error {
	if err := host.Send(ctx, act, r); err != nil {
		return fmt.Errorf("bot: send reply: %w", err)
	}
	return nil
}
