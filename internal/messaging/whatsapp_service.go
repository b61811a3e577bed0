package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/whatsapp"
)

// WhatsAppService implements Service using the Whatsmeow-based whatsapp client.
type WhatsAppService struct {
	client   whatsapp.Sender
	waClient *whatsapp.Client // Access to underlying client for event handling
	events   chan models.Event
	done     chan struct{}
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given Sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	service := &WhatsAppService{
		client: client,
		events: make(chan models.Event, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}

	// If the client is a full Client (not just an interface), store it for event handling
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient strips non-digit characters from a phone
// number. Group JIDs containing "@" pass through untouched.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", models.ErrEmptyRecipient
	}
	if strings.Contains(recipient, "@") {
		return recipient, nil
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug("WhatsAppService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start begins background processing (e.g., event polling).
func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService Start invoked")

	if s.waClient != nil {
		slog.Debug("WhatsAppService starting event handler")
		go s.handleEvents(ctx)
		slog.Debug("WhatsAppService event handler started")
	} else {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
	}

	return nil
}

// Stop stops background processing.
func (s *WhatsAppService) Stop() error {
	slog.Info("WhatsAppService Stop invoked")
	close(s.done)
	close(s.events)
	slog.Info("WhatsAppService stopped and event channel closed")
	return nil
}

// SendMessage sends a text message to an operator or group.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	slog.Debug("WhatsAppService SendMessage invoked", "to", to, "body_length", len(body))
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMessage validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", canonicalTo)
		return err
	}
	return nil
}

// SendMedia sends an image with a caption to an operator or group.
func (s *WhatsAppService) SendMedia(ctx context.Context, to string, caption string, media []byte) error {
	slog.Debug("WhatsAppService SendMedia invoked", "to", to, "bytes", len(media))
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService SendMedia validation error", "error", err, "to", to)
		return err
	}
	if err := s.client.SendImage(ctx, canonicalTo, caption, media); err != nil {
		slog.Error("WhatsAppService SendMedia error", "error", err, "to", canonicalTo)
		return err
	}
	return nil
}

// Events returns the channel of inbound operator messages.
func (s *WhatsAppService) Events() <-chan models.Event {
	return s.events
}

// handleEvents registers the Whatsmeow event handler and feeds inbound
// messages into the events channel.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	slog.Debug("WhatsAppService handleEvents starting")

	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(ctx, v)
		default:
			slog.Debug("WhatsAppService ignoring event type", "type", getEventType(v))
		}
	})

	slog.Debug("WhatsAppService event handler registered")

	// Keep handler running until context is cancelled
	<-ctx.Done()
	slog.Debug("WhatsAppService handleEvents stopping due to context cancellation")
}

// handleIncomingMessage converts a Whatsmeow message into a models.Event.
// Photo media is downloaded here so the router only ever sees bytes.
func (s *WhatsAppService) handleIncomingMessage(ctx context.Context, evt *events.Message) {
	if evt.Message == nil {
		return
	}
	// Group chatter is not operator input.
	if evt.Info.IsGroup {
		slog.Debug("WhatsAppService ignoring group message", "chat", evt.Info.Chat.String())
		return
	}

	event := models.Event{
		UserID: evt.Info.Sender.User,
		Time:   evt.Info.Timestamp.Unix(),
	}

	switch {
	case evt.Message.Conversation != nil:
		event.Kind = models.EventText
		event.Text = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil:
		event.Kind = models.EventText
		event.Text = *evt.Message.ExtendedTextMessage.Text
	case evt.Message.ImageMessage != nil:
		data, err := s.waClient.DownloadImage(ctx, evt.Message.ImageMessage)
		if err != nil {
			slog.Error("WhatsAppService photo download failed", "from", event.UserID, "error", err)
			return
		}
		event.Kind = models.EventPhoto
		event.Media = data
		if evt.Message.ImageMessage.Caption != nil {
			event.Text = *evt.Message.ImageMessage.Caption
		}
	default:
		// Skip audio, documents, reactions and the rest.
		slog.Debug("WhatsAppService ignoring unsupported message type", "from", evt.Info.Sender.String())
		return
	}

	slog.Debug("WhatsAppService processing incoming message", "from", event.UserID, "kind", event.Kind)

	// Send to events channel (non-blocking)
	select {
	case s.events <- event:
		slog.Info("WhatsAppService incoming message forwarded", "from", event.UserID, "kind", event.Kind)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService events channel blocked, dropping message", "from", event.UserID, "timeout", DefaultChannelTimeout)
	}
}

// getEventType returns a string representation of the event type for logging
func getEventType(evt interface{}) string {
	switch evt.(type) {
	case *events.Message:
		return "Message"
	case *events.Receipt:
		return "Receipt"
	case *events.Presence:
		return "Presence"
	case *events.Connected:
		return "Connected"
	case *events.Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}
