// internal/models/outcome.go
package models

// ErrorKind classifies why a send failed.
type ErrorKind string

const (
	ErrorKindTransport        ErrorKind = "transport"
	ErrorKindRateLimited      ErrorKind = "rate-limited-by-platform"
	ErrorKindRecipientInvalid ErrorKind = "recipient-invalid"
	ErrorKindRecipientBlocked ErrorKind = "recipient-blocked"
	ErrorKindUnknown          ErrorKind = "unknown"
)

// Retryable separates "try again later" from "stop contacting this person".
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindTransport || k == ErrorKindRateLimited
}

// SendOutcome is what a channel adapter reports for one send.
type SendOutcome struct {
	Succeeded    bool      `json:"succeeded"`
	ExternalID   string    `json:"externalId,omitempty"`
	ErrorKind    ErrorKind `json:"errorKind,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

func Sent(externalID string) SendOutcome {
	return SendOutcome{Succeeded: true, ExternalID: externalID}
}

func Failed(kind ErrorKind, message string) SendOutcome {
	if kind == "" {
		kind = ErrorKindUnknown
	}
	return SendOutcome{ErrorKind: kind, ErrorMessage: message}
}
