package card

import "github.com/essembi/essembi-chat/pkg/protocol"

const adaptiveVersion = "1.0"

// Card is an adaptive card.
type Card struct {
	Type    string    `json:"type"`
	Version string    `json:"version"`
	Body    []Element `json:"body"`
	Actions []Action  `json:"actions,omitempty"`
}

// Element is a body element of an adaptive card. Only the fields relevant
// to Type are populated.
type Element struct {
	Type        string   `json:"type"`
	ID          string   `json:"id,omitempty"`
	Text        string   `json:"text,omitempty"`
	Size        string   `json:"size,omitempty"`
	Weight      string   `json:"weight,omitempty"`
	Wrap        bool     `json:"wrap,omitempty"`
	Label       string   `json:"label,omitempty"`
	IsRequired  bool     `json:"isRequired,omitempty"`
	IsMultiline bool     `json:"isMultiline,omitempty"`
	Value       string   `json:"value,omitempty"`
	Choices     []Choice `json:"choices,omitempty"`
}

// Choice is an option of a choice set input.
type Choice struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Action is an adaptive card action.
type Action struct {
	Type  string         `json:"type"`
	Title string         `json:"title"`
	URL   string         `json:"url,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Element and action type names.
const (
	TypeTextBlock   = "TextBlock"
	TypeTextInput   = "Input.Text"
	TypeChoiceInput = "Input.ChoiceSet"

	ActionSubmit  = "Action.Submit"
	ActionOpenURL = "Action.OpenUrl"
)

// New returns an empty adaptive card.
func New() *Card {
	return &Card{Type: "AdaptiveCard", Version: adaptiveVersion, Body: []Element{}}
}

// Text appends a wrapped text block.
func (c *Card) Text(text string) *Card {
	c.Body = append(c.Body, Element{Type: TypeTextBlock, Text: text, Wrap: true})
	return c
}

// Heading appends a bold, larger text block.
func (c *Card) Heading(text string) *Card {
	c.Body = append(c.Body, Element{Type: TypeTextBlock, Text: text, Size: "Medium", Weight: "Bolder", Wrap: true})
	return c
}

// OpenURL appends an open-url action.
func (c *Card) OpenURL(title, url string) *Card {
	c.Actions = append(c.Actions, Action{Type: ActionOpenURL, Title: title, URL: url})
	return c
}

// Submit appends a submit action carrying data.
func (c *Card) Submit(title string, data map[string]any) *Card {
	c.Actions = append(c.Actions, Action{Type: ActionSubmit, Title: title, Data: data})
	return c
}

// QuickReply appends a submit action that posts text back into the conversation.
func (c *Card) QuickReply(title, text string) *Card {
	return c.Submit(title, map[string]any{
		"msteams": map[string]any{"type": "imBack", "value": text},
	})
}

// Attachment wraps the card for delivery.
func (c *Card) Attachment() protocol.Attachment {
	return protocol.Attachment{ContentType: protocol.ContentTypeAdaptiveCard, Content: c}
}

// HeroCard is a simple title/subtitle/buttons card.
type HeroCard struct {
	Title    string       `json:"title,omitempty"`
	Subtitle string       `json:"subtitle,omitempty"`
	Text     string       `json:"text,omitempty"`
	Tap      *CardAction  `json:"tap,omitempty"`
	Buttons  []CardAction `json:"buttons,omitempty"`
}

// CardAction is a hero card button.
type CardAction struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// Attachment wraps the hero card. The preview repeats the card.
func (h *HeroCard) Attachment() protocol.Attachment {
	preview := protocol.Attachment{ContentType: protocol.ContentTypeHeroCard, Content: h}
	return protocol.Attachment{ContentType: protocol.ContentTypeHeroCard, Content: h, Preview: &preview}
}
