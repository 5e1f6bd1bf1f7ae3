package protocol

import "time"

// FieldType identifies how a field is entered.
type FieldType string

const (
	FieldShortText FieldType = "shortText"
	FieldLongText  FieldType = "longText"
	FieldRecord    FieldType = "record"
)

// Environment is a configured backend destination ("app") a user may file tickets into.
type Environment struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	TableID int64   `json:"tableId"`
	Fields  []Field `json:"fields"`
}

// Field describes one input of the ticket entry form.
// Values is populated only for FieldRecord.
type Field struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Values   []Choice  `json:"values,omitempty"`
}

// Choice is one selectable option of a record field.
type Choice struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// IdentityResolution maps the caller's chat identity to the environments they can use.
type IdentityResolution struct {
	Apps []Environment `json:"apps"`
}

// FindApp returns the environment with the given id.
func (r *IdentityResolution) FindApp(id int64) (*Environment, bool) {
	for i := range r.Apps {
		if r.Apps[i].ID == id {
			return &r.Apps[i], true
		}
	}
	return nil, false
}

// PendingSelection is the state kept between the environment choice prompt
// and the user's reply. It lives for a single disambiguation round.
type PendingSelection struct {
	Apps      []Environment `json:"apps"`
	Email     string        `json:"email"`
	Subject   string        `json:"subject,omitempty"`
	Body      string        `json:"body,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// FindApp returns the stored environment with the given id.
func (p *PendingSelection) FindApp(id int64) (*Environment, bool) {
	r := IdentityResolution{Apps: p.Apps}
	env, ok := r.FindApp(id)
	return env, ok
}
