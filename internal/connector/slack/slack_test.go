package slackconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/essembi/essembi-chat/internal/bot"
	"github.com/essembi/essembi-chat/internal/card"
	"github.com/essembi/essembi-chat/pkg/protocol"
)

func newTestConnector(t *testing.T, srv *httptest.Server, cfg Config) *Connector {
	t.Helper()
	var api *slack.Client
	if srv != nil {
		api = slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/"))
	}
	noop := func(context.Context, bot.Host, *protocol.Activity) (*protocol.ActionResponse, error) { return nil, nil }
	return newConnector(api, cfg, noop, nil, "UBOT")
}

func TestStripMention(t *testing.T) {
	tests := []struct {
		input string
		botID string
		want  string
	}{
		{"<@U123> hello", "U123", "hello"},
		{"hey <@U123> there", "U123", "hey  there"},
		{"no mention here", "U123", "no mention here"},
		{"<@U999> hello", "U123", "<@U999> hello"},
	}

	for _, tt := range tests {
		got := StripMention(tt.input, tt.botID)
		if got != tt.want {
			t.Errorf("StripMention(%q, %q) = %q, want %q", tt.input, tt.botID, got, tt.want)
		}
	}
}

func TestIsAllowedChannel(t *testing.T) {
	c := &Connector{config: Config{Channels: []string{"C001", "C002"}}}

	if !c.isAllowedChannel("C001") {
		t.Error("C001 should be allowed")
	}
	if c.isAllowedChannel("C999") {
		t.Error("C999 should not be allowed")
	}
	if !(&Connector{}).isAllowedChannel("anything") {
		t.Error("empty channels list should allow all")
	}
}

func TestConnectorName(t *testing.T) {
	c := &Connector{}
	if c.Name() != "slack" {
		t.Errorf("Name() = %q", c.Name())
	}
}

func TestMessageActivity(t *testing.T) {
	c := newTestConnector(t, nil, Config{})

	act := c.messageActivity(&slackevents.MessageEvent{
		User: "U1", Channel: "D1", ChannelType: "im", Text: "search vpn", TimeStamp: "100.1", ThreadTimeStamp: "99.0",
	})
	if act == nil {
		t.Fatal("expected activity")
	}
	if act.Type != protocol.ActivityMessage || act.ChannelID != ChannelID || act.Text != "search vpn" {
		t.Errorf("activity = %+v", act)
	}
	if act.From.ID != "U1" || act.Recipient.ID != "UBOT" || act.Conversation.ID != "D1" {
		t.Errorf("routing = %+v", act)
	}
	if act.ChannelData[threadKey] != "99.0" {
		t.Errorf("thread = %v", act.ChannelData)
	}

	ignored := []*slackevents.MessageEvent{
		{User: "U1", Channel: "C1", ChannelType: "channel", Text: "search vpn"},
		{User: "U1", Channel: "D1", ChannelType: "im", Text: "edited", SubType: "message_changed"},
		{BotID: "B1", User: "U2", Channel: "D1", ChannelType: "im", Text: "hi"},
		{User: "UBOT", Channel: "D1", ChannelType: "im", Text: "echo"},
		{User: "U1", Channel: "D1", ChannelType: "im", Text: "  "},
	}
	for _, ev := range ignored {
		if act := c.messageActivity(ev); act != nil {
			t.Errorf("message %+v should be ignored", ev)
		}
	}
}

func TestMentionActivity(t *testing.T) {
	c := newTestConnector(t, nil, Config{Channels: []string{"C1"}})

	act := c.mentionActivity(&slackevents.AppMentionEvent{User: "U1", Channel: "C1", Text: "<@UBOT> help", TimeStamp: "1.0"})
	if act == nil || act.Text != "help" {
		t.Fatalf("activity = %+v", act)
	}
	if act.ChannelData != nil {
		t.Errorf("unthreaded mention has channel data %v", act.ChannelData)
	}
	if act := c.mentionActivity(&slackevents.AppMentionEvent{User: "U1", Channel: "C2", Text: "<@UBOT> help"}); act != nil {
		t.Error("mention outside allowed channels should be ignored")
	}
}

func TestCommandActivity(t *testing.T) {
	c := newTestConnector(t, nil, Config{})
	act := c.commandActivity(slack.SlashCommand{Command: "/essembi", Text: "search printer", UserID: "U1", ChannelID: "C1"})
	if act.Text != "search printer" || act.From.ID != "U1" {
		t.Errorf("activity = %+v", act)
	}
	if act := c.commandActivity(slack.SlashCommand{Command: "/essembi", UserID: "U1", ChannelID: "C1"}); act.Text != "help" {
		t.Errorf("bare command text = %q", act.Text)
	}
}

func TestJoinActivity(t *testing.T) {
	c := newTestConnector(t, nil, Config{})
	act := c.joinActivity(&slackevents.MemberJoinedChannelEvent{User: "U7", Channel: "C1"})
	if act.Type != protocol.ActivityConversationUpdate || len(act.MembersAdded) != 1 || act.MembersAdded[0].ID != "U7" {
		t.Errorf("activity = %+v", act)
	}
}

func TestLookupMember(t *testing.T) {
	tests := []struct {
		name string
		body string
		want protocol.LookupStatus
	}{
		{"ok", `{"ok":true,"user":{"id":"U1","real_name":"Alice","profile":{"email":"alice@example.com"}}}`, protocol.LookupOK},
		{"no email", `{"ok":true,"user":{"id":"U1","profile":{}}}`, protocol.LookupUnready},
		{"missing scope", `{"ok":false,"error":"missing_scope"}`, protocol.LookupUnready},
		{"user not found", `{"ok":false,"error":"user_not_found"}`, protocol.LookupFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, "/users.info") {
					t.Errorf("path = %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestConnector(t, srv, Config{})
			lookup := c.LookupMember(context.Background(), &protocol.Activity{From: protocol.Account{ID: "U1"}})
			if lookup.Status != tt.want {
				t.Fatalf("status = %s, want %s (err %v)", lookup.Status, tt.want, lookup.Err)
			}
			if tt.want == protocol.LookupOK && lookup.Member.Email != "alice@example.com" {
				t.Errorf("member = %+v", lookup.Member)
			}
		})
	}
}

func TestSend(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat.postMessage") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		form = map[string]string{
			"channel":   r.PostForm.Get("channel"),
			"text":      r.PostForm.Get("text"),
			"thread_ts": r.PostForm.Get("thread_ts"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C1","ts":"2.0"}`))
	}))
	defer srv.Close()

	c := newTestConnector(t, srv, Config{})
	act := &protocol.Activity{
		Conversation: protocol.Conversation{ID: "C1"},
		ChannelData:  map[string]any{threadKey: "1.0"},
	}
	renderer := card.NewRenderer(card.Links{})
	reply := protocol.Reply{Attachments: []protocol.Attachment{
		renderer.SearchResultsCard("vpn", []protocol.SearchResult{{URL: "https://x/1", Name: "VPN drops", Table: "Tickets"}}),
	}}

	if err := c.Send(context.Background(), act, reply); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if form["channel"] != "C1" || form["thread_ts"] != "1.0" {
		t.Errorf("form = %v", form)
	}
	want := "*Search results for 'vpn'*\nTickets: <https://x/1|VPN drops>"
	if form["text"] != want {
		t.Errorf("text = %q, want %q", form["text"], want)
	}
}

func TestReplyText(t *testing.T) {
	got := ReplyText(protocol.Reply{Text: "No results for 'vpn'."})
	if got != "No results for 'vpn'." {
		t.Errorf("got %q", got)
	}
	if ReplyText(protocol.Reply{}) != "" {
		t.Error("empty reply should render empty")
	}
}
