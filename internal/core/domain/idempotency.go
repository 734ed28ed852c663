package domain

// RecordedResponse is the first completed response for an idempotency key.
type RecordedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
	Pending     bool   `json:"pending,omitempty"`
}
