// Package gateway delivers single messages through the external WhatsApp provider.
package gateway

import (
	"context"

	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

// Gateway is the outbound message delivery port. Implementations do not retry.
type Gateway interface {
	Send(ctx context.Context, msg Message) (*Result, error)
}

// Message is one text, with an optional attachment, for one recipient.
type Message struct {
	PhoneNumber string
	Text        string
	Media       *domain.Media
}

// Result stores provider call metadata.
type Result struct {
	StatusCode int
	MessageID  string
}
