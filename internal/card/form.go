package card

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/essembi/essembi-chat/pkg/protocol"
)

var lineBreak = regexp.MustCompile(`\r\n|\r|\n`)

// InputKind is the kind of form input.
type InputKind int

const (
	InputText InputKind = iota
	InputChoice
)

// InputSpec is a target-independent description of one form input.
type InputSpec struct {
	Kind      InputKind
	ID        string
	Label     string
	Required  bool
	Multiline bool
	Value     string
	Choices   []Choice
}

// Prefill carries the values derived from the message an action was invoked on.
type Prefill struct {
	Subject string
	Body    string
}

// BuildForm orders the fields of an environment into form inputs.
// Fields are sorted by name, ignoring case, and grouped shortText, record, longText.
// The subject fills only the first shortText input and the body only the
// first longText input.
func BuildForm(fields []protocol.Field, pre Prefill) []InputSpec {
	subject, body := pre.Subject, pre.Body
	if subject == "" && body != "" {
		subject = firstLine(body)
	}

	sorted := make([]protocol.Field, len(fields))
	copy(sorted, fields)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := strings.ToLower(sorted[i].Name), strings.ToLower(sorted[j].Name)
		if a != b {
			return a < b
		}
		return sorted[i].Name < sorted[j].Name
	})

	inputs := make([]InputSpec, 0, len(sorted))
	for _, f := range sorted {
		if f.Type != protocol.FieldShortText {
			continue
		}
		inputs = append(inputs, InputSpec{
			Kind:     InputText,
			ID:       fieldID(f),
			Label:    f.Name,
			Required: f.Required,
			Value:    subject,
		})
		subject = ""
	}
	for _, f := range sorted {
		if f.Type != protocol.FieldRecord {
			continue
		}
		choices := make([]Choice, 0, len(f.Values))
		for _, v := range f.Values {
			choices = append(choices, Choice{Title: v.Name, Value: strconv.FormatInt(v.ID, 10)})
		}
		inputs = append(inputs, InputSpec{
			Kind:     InputChoice,
			ID:       fieldID(f),
			Label:    f.Name,
			Required: f.Required,
			Choices:  choices,
		})
	}
	for _, f := range sorted {
		if f.Type != protocol.FieldLongText {
			continue
		}
		inputs = append(inputs, InputSpec{
			Kind:      InputText,
			ID:        fieldID(f),
			Label:     f.Name,
			Required:  f.Required,
			Multiline: true,
			Value:     body,
		})
		body = ""
	}
	return inputs
}

// FormHeight returns the window height for a form with n inputs.
func FormHeight(n int) string {
	if n <= 5 {
		return "medium"
	}
	return "large"
}

// Element renders the input as an adaptive card element.
func (in InputSpec) Element() Element {
	if in.Kind == InputChoice {
		return Element{
			Type:       TypeChoiceInput,
			ID:         in.ID,
			Label:      in.Label,
			IsRequired: in.Required,
			Choices:    in.Choices,
		}
	}
	return Element{
		Type:        TypeTextInput,
		ID:          in.ID,
		Label:       in.Label,
		IsRequired:  in.Required,
		IsMultiline: in.Multiline,
		Value:       in.Value,
	}
}

func firstLine(s string) string {
	for _, line := range lineBreak.Split(s, -1) {
		if line != "" {
			return line
		}
	}
	return ""
}

func fieldID(f protocol.Field) string {
	return strconv.FormatInt(f.ID, 10)
}
