package card

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

// PlainText renders an attachment as Markdown for hosts without card support.
// Inputs are skipped and quick replies become inline code suggestions.
func PlainText(att protocol.Attachment) string {
	switch c := att.Content.(type) {
	case *Card:
		return cardText(c)
	case *HeroCard:
		return heroText(c)
	case json.RawMessage:
		var parsed Card
		if err := json.Unmarshal(c, &parsed); err != nil {
			return ""
		}
		return cardText(&parsed)
	default:
		return ""
	}
}

func cardText(c *Card) string {
	var lines []string
	for _, el := range c.Body {
		if el.Type == TypeTextBlock && el.Text != "" {
			if el.Weight == "Bolder" {
				lines = append(lines, "**"+el.Text+"**")
			} else {
				lines = append(lines, el.Text)
			}
		}
	}
	for _, a := range c.Actions {
		switch a.Type {
		case ActionOpenURL:
			lines = append(lines, fmt.Sprintf("[%s](%s)", a.Title, a.URL))
		case ActionSubmit:
			if v := imBackValue(a); v != "" {
				lines = append(lines, "`"+v+"`")
			}
		}
	}
	return strings.Join(lines, "\n")
}

func heroText(h *HeroCard) string {
	var lines []string
	if h.Title != "" {
		lines = append(lines, "**"+h.Title+"**")
	}
	if h.Subtitle != "" {
		lines = append(lines, h.Subtitle)
	}
	if h.Text != "" {
		lines = append(lines, h.Text)
	}
	for _, b := range h.Buttons {
		lines = append(lines, fmt.Sprintf("[%s](%s)", b.Title, b.Value))
	}
	return strings.Join(lines, "\n")
}

func imBackValue(a Action) string {
	ms, ok := a.Data["msteams"].(map[string]any)
	if !ok || ms["type"] != "imBack" {
		return ""
	}
	v, _ := ms["value"].(string)
	return v
}
