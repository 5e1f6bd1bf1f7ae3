package bot

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/essembi/essembi-chat/internal/card"
	"github.com/essembi/essembi-chat/internal/session"
	"github.com/essembi/essembi-chat/pkg/protocol"
)

// fakeHost implements Host with a canned lookup and records sent replies.
type fakeHost struct {
	lookup  protocol.MemberLookup
	lookups int
	sent    []protocol.Reply
	sendErr error
}

func (h *fakeHost) LookupMember(context.Context, *protocol.Activity) protocol.MemberLookup {
	h.lookups++
	return h.lookup
}

func (h *fakeHost) Send(_ context.Context, _ *protocol.Activity, r protocol.Reply) error {
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, r)
	return nil
}

func okHost(email string) *fakeHost {
	return &fakeHost{lookup: protocol.MemberLookup{
		Status: protocol.LookupOK,
		Member: protocol.Member{ID: "29:alice", Name: "Alice", Email: email},
	}}
}

// fakeBackend implements Backend with canned responses.
type fakeBackend struct {
	auth    *protocol.IdentityResolution
	authErr error
	emails  []string

	created   *protocol.TicketResult
	createErr error
	submitted []*protocol.TicketSubmission

	results   []protocol.SearchResult
	searchErr error
	searches  []string
}

func (f *fakeBackend) Authenticate(_ context.Context, email string) (*protocol.IdentityResolution, error) {
	f.emails = append(f.emails, email)
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.auth, nil
}

func (f *fakeBackend) Create(_ context.Context, sub *protocol.TicketSubmission) (*protocol.TicketResult, error) {
	f.submitted = append(f.submitted, sub)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeBackend) Search(_ context.Context, email, query string) ([]protocol.SearchResult, error) {
	f.searches = append(f.searches, email+"|"+query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results, nil
}

func newTestBot(backend *fakeBackend) (*Bot, *session.MemoryStore) {
	store := session.NewMemoryStore(time.Hour)
	return New(backend, store, card.NewRenderer(card.Links{}), nil), store
}

func invoke(t *testing.T, name string, action map[string]any) *protocol.Activity {
	t.Helper()
	value, err := json.Marshal(action)
	if err != nil {
		t.Fatalf("marshal action: %v", err)
	}
	return &protocol.Activity{
		Type:         protocol.ActivityInvoke,
		Name:         name,
		ChannelID:    "msteams",
		Conversation: protocol.Conversation{ID: "conv-1"},
		From:         protocol.Account{ID: "29:alice", Name: "Alice", Role: "user"},
		Recipient:    protocol.Account{ID: "28:bot", Name: "Essembi"},
		Value:        value,
	}
}

func taskCard(t *testing.T, resp *protocol.ActionResponse) (*protocol.TaskInfo, *card.Card) {
	t.Helper()
	if resp == nil || resp.Task == nil {
		t.Fatalf("response has no task: %+v", resp)
	}
	if resp.Task.Type != "continue" {
		t.Errorf("task type = %q", resp.Task.Type)
	}
	c, _ := resp.Task.Value.Card.Content.(*card.Card)
	return &resp.Task.Value, c
}

func errorText(t *testing.T, resp *protocol.ActionResponse) string {
	t.Helper()
	info, c := taskCard(t, resp)
	if info.Title != "An Issue has Occurred" {
		t.Fatalf("not an error task: %q", info.Title)
	}
	return c.Body[0].Text
}

func TestHandle_UnknownActivity(t *testing.T) {
	b, _ := newTestBot(&fakeBackend{})
	resp, err := b.Handle(context.Background(), okHost("a@b.com"), &protocol.Activity{Type: "typing"})
	if err != nil || resp != nil {
		t.Errorf("resp = %+v, err = %v", resp, err)
	}
}

func TestHandle_UnknownInvoke(t *testing.T) {
	b, _ := newTestBot(&fakeBackend{})
	act := invoke(t, "composeExtension/query", map[string]any{"commandId": "createTicket"})
	resp, err := b.Handle(context.Background(), okHost("a@b.com"), act)
	if err != nil || !resp.IsEmpty() {
		t.Errorf("resp = %+v, err = %v", resp, err)
	}
}

func TestHandle_UnknownCommandIgnored(t *testing.T) {
	backend := &fakeBackend{}
	b, _ := newTestBot(backend)
	host := okHost("a@b.com")
	for _, name := range []string{protocol.InvokeFetchTask, protocol.InvokeSubmitAction} {
		act := invoke(t, name, map[string]any{"commandId": "somethingNew", "data": map[string]any{"appId": 1}})
		resp, err := b.Handle(context.Background(), host, act)
		if err != nil || !resp.IsEmpty() {
			t.Errorf("%s: resp = %+v, err = %v", name, resp, err)
		}
	}
	if host.lookups != 0 || len(backend.emails) != 0 || len(backend.submitted) != 0 {
		t.Error("unknown command should not reach host or backend")
	}
}

func TestHandle_UndecodableValue(t *testing.T) {
	b, _ := newTestBot(&fakeBackend{})
	act := &protocol.Activity{Type: protocol.ActivityInvoke, Name: protocol.InvokeSubmitAction, Value: json.RawMessage(`"oops"`)}
	resp, err := b.Handle(context.Background(), okHost("a@b.com"), act)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if got := errorText(t, resp); got != userMessages[InvalidInput] {
		t.Errorf("text = %q", got)
	}
}

func TestDialogError_UserMessage(t *testing.T) {
	raw := errors.New("dial tcp 10.0.0.1: connection refused")
	for kind := IdentityNotInstalled; kind <= SearchFailed; kind++ {
		derr := newError(kind, raw)
		msg := derr.UserMessage()
		if msg == "" {
			t.Errorf("%s: empty message", kind)
		}
		if msg == raw.Error() {
			t.Errorf("%s: exposes raw error", kind)
		}
		if !errors.Is(derr, raw) {
			t.Errorf("%s: does not unwrap", kind)
		}
	}

	detail := &DialogError{Kind: SubmissionFailed, Detail: "Summary is required."}
	if detail.UserMessage() != "Summary is required." {
		t.Errorf("detail message = %q", detail.UserMessage())
	}
}
