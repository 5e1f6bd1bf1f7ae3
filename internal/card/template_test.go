package card

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

func TestTemplate(t *testing.T) {
	for _, name := range []string{TemplateInstall, TemplateNotReady} {
		att, err := Template(name)
		if err != nil {
			t.Fatalf("Template(%s): %v", name, err)
		}
		if att.ContentType != protocol.ContentTypeAdaptiveCard {
			t.Errorf("%s: content type = %q", name, att.ContentType)
		}
		raw, ok := att.Content.(json.RawMessage)
		if !ok {
			t.Fatalf("%s: content = %T", name, att.Content)
		}
		var c Card
		if err := json.Unmarshal(raw, &c); err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if c.Type != "AdaptiveCard" || len(c.Body) == 0 {
			t.Errorf("%s: card = %+v", name, c)
		}
	}
}

func TestTemplate_Missing(t *testing.T) {
	_, err := Template("nope.json")
	if err == nil || !strings.Contains(err.Error(), "nope.json") {
		t.Errorf("err = %v", err)
	}
}

func TestInstallTask(t *testing.T) {
	task, err := InstallTask()
	if err != nil {
		t.Fatalf("InstallTask: %v", err)
	}
	if task.Height != 200 || task.Width != 400 {
		t.Errorf("size = %v x %v", task.Width, task.Height)
	}
}

func TestPlainText(t *testing.T) {
	r := NewRenderer(Links{})

	got := PlainText(r.SuggestionCard("vpn"))
	want := "I didn't understand that. Try one of these:\n`doc`\n`help`\n`search vpn`"
	if got != want {
		t.Errorf("suggestion:\ngot  %q\nwant %q", got, want)
	}

	got = PlainText(r.ResultAttachment(&protocol.TicketResult{URL: "https://x/1", Name: "Bug"}))
	if !strings.HasPrefix(got, "**Ticket has been created!**\nSummary: Bug") || !strings.HasSuffix(got, "[View Ticket](https://x/1)") {
		t.Errorf("result = %q", got)
	}

	att, _ := Template(TemplateNotReady)
	if got := PlainText(att); !strings.Contains(got, "[Contact Support](") {
		t.Errorf("template = %q", got)
	}

	if got := PlainText(protocol.Attachment{Content: 42}); got != "" {
		t.Errorf("unknown content = %q", got)
	}
}
