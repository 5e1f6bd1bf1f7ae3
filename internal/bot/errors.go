package bot

import (
	"errors"
	"fmt"

	"github.com/essembi/essembi-chat/internal/essembi"
)

// Kind classifies a user-facing dialog failure.
type Kind int

const (
	IdentityNotInstalled Kind = iota + 1
	IdentityLookupUnready
	IdentityLookupOther
	AccountNotFound
	AuthenticationFailed
	NoEnvironmentsConfigured
	SessionExpired
	EnvironmentNotFound
	SubmissionFailed
	UnexpectedResponse
	InvalidInput
	SearchFailed
)

var kindNames = map[Kind]string{
	IdentityNotInstalled:     "identity_not_installed",
	IdentityLookupUnready:    "identity_lookup_unready",
	IdentityLookupOther:      "identity_lookup_other",
	AccountNotFound:          "account_not_found",
	AuthenticationFailed:     "authentication_failed",
	NoEnvironmentsConfigured: "no_environments_configured",
	SessionExpired:           "session_expired",
	EnvironmentNotFound:      "environment_not_found",
	SubmissionFailed:         "submission_failed",
	UnexpectedResponse:       "unexpected_response",
	InvalidInput:             "invalid_input",
	SearchFailed:             "search_failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

const (
	msgRetry        = "Please try again later. Contact Essembi support if this problem persists."
	msgInputError   = "An unexpected error occurred while processing the input. " + msgRetry
	msgUnexpected   = "An unexpected error occurred. " + msgRetry
	msgCreateFailed = "An error occurred while trying to create the ticket. " + msgRetry
)

var userMessages = map[Kind]string{
	IdentityNotInstalled:     "Please add the Essembi app to this conversation, then try again.",
	IdentityLookupUnready:    "Essembi can't look up your account in this chat yet. Send the Essembi app a message in a 1:1 chat, then try again.",
	IdentityLookupOther:      msgUnexpected,
	AccountNotFound:          "You do not have an Essembi account. Sign up today at essembi.com!",
	AuthenticationFailed:     "An error occurred while trying to authenticate your account. " + msgRetry,
	NoEnvironmentsConfigured: "You must enable the Teams integration in Essembi. This is done in Settings > Integrations.",
	SessionExpired:           "Your session has expired. Please try again.",
	EnvironmentNotFound:      msgInputError,
	SubmissionFailed:         msgCreateFailed,
	UnexpectedResponse:       msgUnexpected,
	InvalidInput:             msgInputError,
	SearchFailed:             "An error occurred while searching Essembi. " + msgRetry,
}

// DialogError is a failure shown to the user. Detail is a backend-supplied
// explanation safe to display; Err is the underlying cause and is only logged.
type DialogError struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *DialogError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bot: %s: %v", e.Kind, e.Err)
	}
	return "bot: " + e.Kind.String()
}

func (e *DialogError) Unwrap() error { return e.Err }

// UserMessage is the actionable text shown to the user. It never contains
// raw error text.
func (e *DialogError) UserMessage() string {
	if e.Detail != "" {
		return e.Detail
	}
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return msgUnexpected
}

func newError(kind Kind, err error) *DialogError {
	return &DialogError{Kind: kind, Err: err}
}

// classifyAuthenticate maps an Authenticate failure to a dialog error.
func classifyAuthenticate(err error) *DialogError {
	switch {
	case errors.Is(err, essembi.ErrAccountNotFound):
		return newError(AccountNotFound, err)
	case errors.Is(err, essembi.ErrUnexpectedResponse):
		return newError(UnexpectedResponse, err)
	default:
		return newError(AuthenticationFailed, err)
	}
}

// classifyCreate maps a Create failure to a dialog error, keeping the
// backend's explanation when it supplied one.
func classifyCreate(err error) *DialogError {
	if errors.Is(err, essembi.ErrUnexpectedResponse) {
		return newError(UnexpectedResponse, err)
	}
	derr := newError(SubmissionFailed, err)
	var se *essembi.StatusError
	if errors.As(err, &se) {
		derr.Detail = se.Message
	}
	return derr
}
