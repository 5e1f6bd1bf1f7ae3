package slackconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/essembi/essembi-chat/internal/card"
	"github.com/essembi/essembi-chat/internal/connector"
	"github.com/essembi/essembi-chat/pkg/protocol"
)

// ChannelID is the activity channel id for Slack.
const ChannelID = "slack"

const threadKey = "thread_ts"

// Config holds Slack connector configuration.
type Config struct {
	BotToken string   // xoxb-... Bot User OAuth Token
	AppToken string   // xapp-... App-Level Token (for Socket Mode)
	Channels []string // Optional: only respond in these channels (empty = all)
}

// Connector runs the chat commands over Slack Socket Mode. It is also the
// bot.Host for the activities it delivers: members are resolved through
// users.info and replies posted with chat.postMessage.
type Connector struct {
	api     *slack.Client
	socket  *socketmode.Client
	config  Config
	handler connector.TurnHandler
	logger  *slog.Logger
	botID   string
}

// New creates a new Slack connector.
func New(cfg Config, handler connector.TurnHandler, logger *slog.Logger) (*Connector, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: app_token is required (Socket Mode)")
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))

	// Test auth and get bot user ID
	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}

	c := newConnector(api, cfg, handler, logger, authResp.UserID)
	c.logger.Info("slack bot authorized", "user", authResp.User, "team", authResp.Team)
	c.socket = socketmode.New(api)
	return c, nil
}

func newConnector(api *slack.Client, cfg Config, handler connector.TurnHandler, logger *slog.Logger, botID string) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		api:     api,
		config:  cfg,
		handler: handler,
		logger:  logger,
		botID:   botID,
	}
}

func (c *Connector) Name() string { return "slack" }

// Start begins listening for events via Socket Mode. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	go c.handleEvents(ctx)

	c.logger.Info("slack connector started (socket mode)")
	return c.socket.RunContext(ctx)
}

// LookupMember resolves the sender through users.info. A profile without
// an email means the app lacks the users:read.email scope.
func (c *Connector) LookupMember(ctx context.Context, act *protocol.Activity) protocol.MemberLookup {
	user, err := c.api.GetUserInfoContext(ctx, act.From.ID)
	if err != nil {
		var slackErr slack.SlackErrorResponse
		if errors.As(err, &slackErr) && slackErr.Err == "missing_scope" {
			return protocol.MemberLookup{Status: protocol.LookupUnready, Err: err}
		}
		return protocol.MemberLookup{Status: protocol.LookupFailed, Err: fmt.Errorf("slack: users.info: %w", err)}
	}
	if user.Profile.Email == "" {
		return protocol.MemberLookup{Status: protocol.LookupUnready}
	}
	return protocol.MemberLookup{
		Status: protocol.LookupOK,
		Member: protocol.Member{
			ID:    user.ID,
			Name:  user.RealName,
			Email: user.Profile.Email,
		},
	}
}

// Send posts reply to the activity's channel, in its thread when it has one.
// Cards are flattened to mrkdwn.
func (c *Connector) Send(ctx context.Context, act *protocol.Activity, reply protocol.Reply) error {
	text := MarkdownToMrkdwn(ReplyText(reply))
	if text == "" {
		return nil
	}

	opts := []slack.MsgOption{
		slack.MsgOptionText(text, false),
	}
	if ts, _ := act.ChannelData[threadKey].(string); ts != "" {
		opts = append(opts, slack.MsgOptionTS(ts))
	}

	_, _, err := c.api.PostMessageContext(ctx, act.Conversation.ID, opts...)
	if err != nil {
		return fmt.Errorf("slack: send message: %w", err)
	}
	return nil
}

// ReplyText joins the reply text and its attachments rendered as Markdown.
func ReplyText(reply protocol.Reply) string {
	var parts []string
	if reply.Text != "" {
		parts = append(parts, reply.Text)
	}
	for _, att := range reply.Attachments {
		if s := card.PlainText(att); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.socket.Events:
			switch event.Type {
			case socketmode.EventTypeEventsAPI:
				c.handleEventsAPI(ctx, event)
			case socketmode.EventTypeSlashCommand:
				c.handleSlashCommand(ctx, event)
			}
		}
	}
}

func (c *Connector) handleEventsAPI(ctx context.Context, event socketmode.Event) {
	eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}

	c.socket.Ack(*event.Request)

	var act *protocol.Activity
	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		act = c.messageActivity(ev)
	case *slackevents.AppMentionEvent:
		act = c.mentionActivity(ev)
	case *slackevents.MemberJoinedChannelEvent:
		act = c.joinActivity(ev)
	}
	if act != nil {
		c.dispatch(ctx, act)
	}
}

func (c *Connector) handleSlashCommand(ctx context.Context, event socketmode.Event) {
	cmd, ok := event.Data.(slack.SlashCommand)
	if !ok {
		return
	}

	c.socket.Ack(*event.Request)

	if act := c.commandActivity(cmd); act != nil {
		c.dispatch(ctx, act)
	}
}

func (c *Connector) dispatch(ctx context.Context, act *protocol.Activity) {
	if _, err := c.handler(ctx, c, act); err != nil {
		c.logger.Error("slack turn failed",
			"channel", act.Conversation.ID,
			"user", act.From.ID,
			"error", err,
		)
	}
}

// messageActivity converts a direct message. Channel messages arrive as
// app mentions instead.
func (c *Connector) messageActivity(ev *slackevents.MessageEvent) *protocol.Activity {
	// Ignore bot messages (including our own)
	if ev.BotID != "" || ev.User == "" || ev.User == c.botID {
		return nil
	}
	// Ignore message subtypes (edits, deletes, etc.)
	if ev.SubType != "" || ev.ChannelType != "im" {
		return nil
	}
	if strings.TrimSpace(ev.Text) == "" {
		return nil
	}
	return c.activity(protocol.ActivityMessage, ev.Channel, ev.ChannelType, ev.User, ev.TimeStamp, ev.ThreadTimeStamp, ev.Text)
}

func (c *Connector) mentionActivity(ev *slackevents.AppMentionEvent) *protocol.Activity {
	if ev.User == "" || ev.User == c.botID || !c.isAllowedChannel(ev.Channel) {
		return nil
	}
	text := StripMention(ev.Text, c.botID)
	return c.activity(protocol.ActivityMessage, ev.Channel, "channel", ev.User, ev.TimeStamp, ev.ThreadTimeStamp, text)
}

func (c *Connector) commandActivity(cmd slack.SlashCommand) *protocol.Activity {
	if !c.isAllowedChannel(cmd.ChannelID) {
		return nil
	}
	text := cmd.Text
	if text == "" {
		text = "help"
	}
	return c.activity(protocol.ActivityMessage, cmd.ChannelID, "", cmd.UserID, "", "", text)
}

func (c *Connector) joinActivity(ev *slackevents.MemberJoinedChannelEvent) *protocol.Activity {
	if !c.isAllowedChannel(ev.Channel) {
		return nil
	}
	act := c.activity(protocol.ActivityConversationUpdate, ev.Channel, ev.ChannelType, ev.User, "", "", "")
	act.MembersAdded = []protocol.Account{{ID: ev.User}}
	return act
}

func (c *Connector) activity(typ, channel, channelType, user, ts, threadTS, text string) *protocol.Activity {
	act := &protocol.Activity{
		Type:         typ,
		ID:           ts,
		ChannelID:    ChannelID,
		Conversation: protocol.Conversation{ID: channel, ConversationType: channelType},
		From:         protocol.Account{ID: user, Role: "user"},
		Recipient:    protocol.Account{ID: c.botID, Role: "bot"},
		Text:         text,
	}
	if threadTS != "" {
		act.ChannelData = map[string]any{threadKey: threadTS}
	}
	return act
}

func (c *Connector) isAllowedChannel(channel string) bool {
	if len(c.config.Channels) == 0 {
		return true
	}
	for _, ch := range c.config.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}

// StripMention removes the <@BOTID> mention from message text.
func StripMention(text, botID string) string {
	mention := fmt.Sprintf("<@%s>", botID)
	text = strings.Replace(text, mention, "", 1)
	return strings.TrimSpace(text)
}
