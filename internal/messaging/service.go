// Package messaging provides the chat transport abstraction for weighbot
// and the dispatcher that feeds inbound events into the flow router.
package messaging

import (
	"context"
	"regexp"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
)

// Constants for messaging service configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for the inbound event channel
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// phoneNumberRegex matches every character that is not a digit, for recipient
// canonicalization.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable chat transport abstraction.
// It supports sending text and media, and exposes a channel of inbound events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	// This allows each service to implement its own recipient validation rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// SendMedia sends an image with a caption. Transports without media
	// support return an error so callers can fall back to text.
	SendMedia(ctx context.Context, to string, caption string, media []byte) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Events returns a channel of inbound operator messages.
	Events() <-chan models.Event
}
