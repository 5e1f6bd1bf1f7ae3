package protocol

// TicketSubmission is the outbound ticket creation request.
// Values holds free text keyed by field id; line breaks are already
// normalized to the backend's rich-text marker.
type TicketSubmission struct {
	Email   string            `json:"email"`
	AppID   int64             `json:"appId"`
	TableID int64             `json:"tableId"`
	Values  map[string]string `json:"values"`
}

// TicketResult is the backend confirmation of a created ticket.
type TicketResult struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	Number string `json:"number,omitempty"`
}

// SearchResult is a single ticket returned by a search.
type SearchResult struct {
	URL   string `json:"url"`
	Name  string `json:"name"`
	Table string `json:"table"`
}

// SearchResults is the search response envelope.
type SearchResults struct {
	Results []SearchResult `json:"results"`
}

// MessageResponse is the optional error body returned by the backend.
type MessageResponse struct {
	Message string `json:"message"`
}
