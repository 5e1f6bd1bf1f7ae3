package card

import (
	"fmt"
	"strconv"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

// Default external links.
const (
	DefaultSupportURL = "https://essembi.com/pages/support"
	DefaultDocsURL    = "https://essembi.com/pages/docs"
)

// Links are the external destinations referenced by cards.
type Links struct {
	SupportURL string
	DocsURL    string
}

// Renderer turns domain values into chat cards.
type Renderer struct {
	links Links
}

// NewRenderer creates a renderer. Empty links fall back to the defaults.
func NewRenderer(links Links) *Renderer {
	if links.SupportURL == "" {
		links.SupportURL = DefaultSupportURL
	}
	if links.DocsURL == "" {
		links.DocsURL = DefaultDocsURL
	}
	return &Renderer{links: links}
}

// ErrorTask is a small window with the message and a link to support.
func (r *Renderer) ErrorTask(message string) protocol.TaskInfo {
	c := New().Text(message).OpenURL("Contact Support", r.links.SupportURL)
	return protocol.TaskInfo{
		Card:   c.Attachment(),
		Height: "small",
		Width:  "small",
		Title:  "An Issue has Occurred",
	}
}

// EnvironmentChoiceTask asks the user which environment to file the ticket in.
// Each option submits the environment id.
func (r *Renderer) EnvironmentChoiceTask(apps []protocol.Environment, email string) protocol.TaskInfo {
	choices := make([]Choice, 0, len(apps))
	for _, app := range apps {
		choices = append(choices, Choice{Title: app.Name, Value: strconv.FormatInt(app.ID, 10)})
	}

	c := New().Text("You have access to multiple Essembi environments. Select the environment you want to create a ticket in.")
	c.Body = append(c.Body, Element{
		Type:       TypeChoiceInput,
		ID:         "environment",
		Label:      "Select Environment",
		IsRequired: true,
		Choices:    choices,
	})
	c.Submit("Submit", map[string]any{"email": email})

	return protocol.TaskInfo{
		Card:   c.Attachment(),
		Height: "small",
		Width:  "small",
		Title:  "Choose Your Essembi Environment",
	}
}

// EntryFormTask is the ticket entry form synthesized from the environment's fields.
func (r *Renderer) EntryFormTask(email string, pre Prefill, env *protocol.Environment) protocol.TaskInfo {
	inputs := BuildForm(env.Fields, pre)

	c := New()
	for _, in := range inputs {
		c.Body = append(c.Body, in.Element())
	}
	c.Submit("Submit", map[string]any{
		"email":   email,
		"appId":   env.ID,
		"tableId": env.TableID,
	})

	return protocol.TaskInfo{
		Card:   c.Attachment(),
		Height: FormHeight(len(inputs)),
		Width:  "medium",
		Title:  "Create a Ticket in Essembi",
	}
}

// ResultTitle is the headline of the ticket created card.
func ResultTitle(res *protocol.TicketResult) string {
	if res.Number == "" {
		return "Ticket has been created!"
	}
	return fmt.Sprintf("Ticket #%s has been created!", res.Number)
}

// ResultAttachment confirms a created ticket with a link to it.
func (r *Renderer) ResultAttachment(res *protocol.TicketResult) protocol.Attachment {
	view := CardAction{Type: "openUrl", Title: "View Ticket", Value: res.URL}
	hero := &HeroCard{
		Title:    ResultTitle(res),
		Subtitle: "Summary: " + res.Name,
		Text:     "A ticket has been created successfully. You may now view this ticket in Essembi.",
		Tap:      &view,
		Buttons:  []CardAction{view},
	}
	return hero.Attachment()
}

// ResultResponse inserts the result card into the compose box.
func (r *Renderer) ResultResponse(res *protocol.TicketResult) *protocol.ActionResponse {
	return &protocol.ActionResponse{
		ComposeExtension: &protocol.ComposeResponse{
			Type:             "result",
			AttachmentLayout: "list",
			Attachments:      []protocol.Attachment{r.ResultAttachment(res)},
		},
	}
}

var helpLines = []string{
	"**search <text>**: find Essembi tickets matching the text.",
	"**help**: show this message.",
	"**doc**: open the Essembi documentation.",
	"Use the **Create Ticket** message action to file a ticket from any message.",
}

// HelpCard lists the available commands.
func (r *Renderer) HelpCard() protocol.Attachment {
	c := New().Heading("Essembi")
	for _, line := range helpLines {
		c.Text(line)
	}
	return c.Attachment()
}

// DocCard links to the documentation.
func (r *Renderer) DocCard() protocol.Attachment {
	c := New().
		Heading("Essembi Documentation").
		Text("Learn how to create, search and manage tickets from your chats.").
		OpenURL("Open Documentation", r.links.DocsURL)
	return c.Attachment()
}

// WelcomeCard greets a new conversation member.
func (r *Renderer) WelcomeCard() protocol.Attachment {
	c := New().Heading("Welcome to Essembi")
	for _, line := range helpLines {
		c.Text(line)
	}
	c.Text("To get started, enable the Teams integration in Essembi under Settings > Integrations. Your chat account email must match your Essembi account.")
	c.OpenURL("Open Documentation", r.links.DocsURL)
	return c.Attachment()
}

// SuggestionCard offers quick replies for unrecognized text.
func (r *Renderer) SuggestionCard(text string) protocol.Attachment {
	c := New().
		Text("I didn't understand that. Try one of these:").
		QuickReply("doc", "doc").
		QuickReply("help", "help").
		QuickReply("search "+text, "search "+text)
	return c.Attachment()
}

// SearchResultsCard lists search results, one line each.
func (r *Renderer) SearchResultsCard(query string, results []protocol.SearchResult) protocol.Attachment {
	c := New().Heading(fmt.Sprintf("Search results for '%s'", query))
	for _, res := range results {
		c.Text(fmt.Sprintf("%s: [%s](%s)", res.Table, res.Name, res.URL))
	}
	return c.Attachment()
}
