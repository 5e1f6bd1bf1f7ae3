package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Activity types and invoke names delivered by the chat host.
const (
	ActivityMessage            = "message"
	ActivityInvoke             = "invoke"
	ActivityConversationUpdate = "conversationUpdate"

	InvokeFetchTask    = "composeExtension/fetchTask"
	InvokeSubmitAction = "composeExtension/submitAction"
)

// Activity is a single inbound event from the chat host.
type Activity struct {
	Type         string          `json:"type"`
	Name         string          `json:"name,omitempty"`
	ID           string          `json:"id,omitempty"`
	ChannelID    string          `json:"channelId,omitempty"`
	ServiceURL   string          `json:"serviceUrl,omitempty"`
	Conversation Conversation    `json:"conversation"`
	From         Account         `json:"from"`
	Recipient    Account         `json:"recipient"`
	Text         string          `json:"text,omitempty"`
	Value        json.RawMessage `json:"value,omitempty"`
	MembersAdded []Account       `json:"membersAdded,omitempty"`
	ChannelData  map[string]any  `json:"channelData,omitempty"`
}

// Account identifies a participant of a conversation.
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Conversation identifies where an activity happened.
type Conversation struct {
	ID               string `json:"id"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
}

// Action decodes the activity value as a compose-box action.
func (a *Activity) Action() (*Action, error) {
	var act Action
	if len(a.Value) == 0 {
		return &act, nil
	}
	if err := json.Unmarshal(a.Value, &act); err != nil {
		return nil, fmt.Errorf("protocol: decode action: %w", err)
	}
	return &act, nil
}

// Action is a structured compose-box submission.
type Action struct {
	CommandID      string          `json:"commandId"`
	CommandContext string          `json:"commandContext,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	MessagePayload *MessagePayload `json:"messagePayload,omitempty"`
}

// HasData reports whether the action carries a non-null data payload.
func (a *Action) HasData() bool {
	d := bytes.TrimSpace(a.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// Fields decodes the data payload as an object. Numbers are kept as json.Number.
func (a *Action) Fields() (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(a.Data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("protocol: action data is not an object: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("protocol: action data is not an object")
	}
	return fields, nil
}

// MessagePayload is the chat message an action was invoked on.
type MessagePayload struct {
	Subject string       `json:"subject,omitempty"`
	Body    *MessageBody `json:"body,omitempty"`
}

// MessageBody is the content of a chat message.
type MessageBody struct {
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content"`
}

// ActionResponse answers a compose-box action. A zero value is the empty response.
type ActionResponse struct {
	Task             *TaskResponse    `json:"task,omitempty"`
	ComposeExtension *ComposeResponse `json:"composeExtension,omitempty"`
}

// IsEmpty reports whether the response carries nothing.
func (r *ActionResponse) IsEmpty() bool {
	return r == nil || (r.Task == nil && r.ComposeExtension == nil)
}

// TaskResponse continues the dialog with a new task window.
type TaskResponse struct {
	Type  string   `json:"type"`
	Value TaskInfo `json:"value"`
}

// TaskInfo is a dialog window. Height and Width are either a size name or pixels.
type TaskInfo struct {
	Card   Attachment `json:"card"`
	Height any        `json:"height,omitempty"`
	Width  any        `json:"width,omitempty"`
	Title  string     `json:"title,omitempty"`
}

// ComposeResponse inserts result attachments into the compose box.
type ComposeResponse struct {
	Type             string       `json:"type"`
	AttachmentLayout string       `json:"attachmentLayout,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty"`
}

// Attachment content types.
const (
	ContentTypeAdaptiveCard = "application/vnd.microsoft.card.adaptive"
	ContentTypeHeroCard     = "application/vnd.microsoft.card.hero"
)

// Attachment is a card rendered by the chat client.
type Attachment struct {
	ContentType string      `json:"contentType"`
	Content     any         `json:"content"`
	Preview     *Attachment `json:"preview,omitempty"`
}

// Continue wraps a task window as a continue response.
func Continue(info TaskInfo) *ActionResponse {
	return &ActionResponse{Task: &TaskResponse{Type: "continue", Value: info}}
}

// Reply is an outbound chat message.
type Reply struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// LookupStatus is the outcome class of a host roster lookup.
type LookupStatus int

const (
	LookupOK LookupStatus = iota
	LookupNotInstalled
	LookupUnready
	LookupFailed
)

func (s LookupStatus) String() string {
	switch s {
	case LookupOK:
		return "ok"
	case LookupNotInstalled:
		return "not_installed"
	case LookupUnready:
		return "unready"
	default:
		return "failed"
	}
}

// Member is a conversation member as reported by the host.
type Member struct {
	ID                string `json:"id"`
	Name              string `json:"name,omitempty"`
	Email             string `json:"email,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
}

// MemberLookup is the result of resolving the acting user against the host roster.
// Err is set only when Status is LookupFailed.
type MemberLookup struct {
	Status LookupStatus
	Member Member
	Err    error
}
