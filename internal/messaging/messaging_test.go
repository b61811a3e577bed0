package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/feedlotops/weighbot/internal/flow"
	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/session"
	"github.com/feedlotops/weighbot/internal/twiliowhatsapp"
)

func TestTwilioValidateAndCanonicalizeRecipient(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	got, err := s.ValidateAndCanonicalizeRecipient("+54 9 11 2345-6789")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "5491123456789" {
		t.Errorf("canonical = %q", got)
	}

	if _, err := s.ValidateAndCanonicalizeRecipient(""); !errors.Is(err, models.ErrEmptyRecipient) {
		t.Errorf("empty recipient error = %v", err)
	}
	if _, err := s.ValidateAndCanonicalizeRecipient("abc"); err == nil {
		t.Error("expected error for recipient without digits")
	}
	if _, err := s.ValidateAndCanonicalizeRecipient("123"); err == nil {
		t.Error("expected error for short number")
	}
}

func TestTwilioWebhookEmitsEvent(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{}
	form.Set("From", "whatsapp:+5491123456789")
	form.Set("Body", "hola")
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	s.TwilioWebhookHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	select {
	case ev := <-s.Events():
		if ev.UserID != "5491123456789" || ev.Kind != models.EventText || ev.Text != "hola" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event emitted")
	}
}

func TestTwilioWebhookRejectsMissingFields(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	form := url.Values{}
	form.Set("From", "whatsapp:+5491123456789")
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	s.TwilioWebhookHandler(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestTwilioStoppedServiceRefusesSends(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := s.SendMessage(context.Background(), "5491123456789", "hola"); !errors.Is(err, models.ErrServiceStopped) {
		t.Errorf("SendMessage after Stop = %v", err)
	}
	// Stop is idempotent.
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}

func TestTwilioSendMediaUnsupported(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := s.SendMedia(context.Background(), "5491123456789", "caption", []byte{1}); err == nil {
		t.Error("expected media to be unsupported")
	}
}

func TestWhatsAppServiceGroupRecipientPassthrough(t *testing.T) {
	s := NewWhatsAppService(newMockSender())

	got, err := s.ValidateAndCanonicalizeRecipient("1234567890-123@g.us")
	if err != nil || got != "1234567890-123@g.us" {
		t.Errorf("group JID = %q, %v", got, err)
	}

	got, err = s.ValidateAndCanonicalizeRecipient("+54 11 2345 6789")
	if err != nil || got != "541123456789" {
		t.Errorf("phone = %q, %v", got, err)
	}
}

// mockSender records text and media sends for service tests.
type mockSender struct {
	mu     sync.Mutex
	texts  []string
	images []string
}

func newMockSender() *mockSender {
	return &mockSender{}
}

func (m *mockSender) SendMessage(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, to+": "+body)
	return nil
}

func (m *mockSender) SendImage(_ context.Context, to, caption string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = append(m.images, to+": "+caption)
	return nil
}

func TestWhatsAppServiceSendPaths(t *testing.T) {
	sender := newMockSender()
	s := NewWhatsAppService(sender)
	ctx := context.Background()

	if err := s.SendMessage(ctx, "5491123456789", "hola"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if err := s.SendMedia(ctx, "channel@g.us", "foto", []byte{0xFF}); err != nil {
		t.Fatalf("SendMedia() error = %v", err)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.texts) != 1 || len(sender.images) != 1 {
		t.Errorf("texts=%v images=%v", sender.texts, sender.images)
	}
}

// fakeTransport is an in-memory Service for dispatcher tests.
type fakeTransport struct {
	events chan models.Event
	mu     sync.Mutex
	sends  map[string][]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events: make(chan models.Event, 32),
		sends:  make(map[string][]string),
	}
}

func (f *fakeTransport) ValidateAndCanonicalizeRecipient(r string) (string, error) { return r, nil }

func (f *fakeTransport) SendMessage(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends[to] = append(f.sends[to], body)
	return nil
}

func (f *fakeTransport) SendMedia(_ context.Context, to, caption string, _ []byte) error {
	return f.SendMessage(context.Background(), to, caption)
}

func (f *fakeTransport) Start(_ context.Context) error { return nil }
func (f *fakeTransport) Stop() error                   { close(f.events); return nil }

func (f *fakeTransport) Events() <-chan models.Event { return f.events }

func (f *fakeTransport) sent(user string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends[user]...)
}

func newDispatcherFixture(t *testing.T) (*Dispatcher, *fakeTransport) {
	t.Helper()
	reg, err := flow.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}
	cls, err := flow.NewClassifier()
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	router := flow.NewRouter(reg, cls, session.NewStore(), flow.Dependencies{})
	transport := newFakeTransport()
	return NewDispatcher(transport, router, nil), transport
}

func TestDispatcherRoutesEventToRouterAndReplies(t *testing.T) {
	d, transport := newDispatcherFixture(t)

	done := make(chan struct{})
	go func() {
		d.Run(context.Background())
		close(done)
	}()

	transport.events <- models.Event{UserID: "u1", Kind: models.EventText, Text: "hola", Time: time.Now().Unix()}

	deadline := time.After(2 * time.Second)
	for len(transport.sent("u1")) == 0 {
		select {
		case <-deadline:
			t.Fatal("no reply delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if !strings.Contains(transport.sent("u1")[0], "1") {
		t.Errorf("expected the menu as first reply, got %q", transport.sent("u1")[0])
	}

	transport.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop on channel close")
	}
}

func TestDispatcherUsersDoNotShareMailboxes(t *testing.T) {
	d, transport := newDispatcherFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	for _, user := range []string{"u1", "u2", "u3"} {
		transport.events <- models.Event{UserID: user, Kind: models.EventText, Text: "hola", Time: time.Now().Unix()}
	}

	deadline := time.After(2 * time.Second)
	for {
		if len(transport.sent("u1")) > 0 && len(transport.sent("u2")) > 0 && len(transport.sent("u3")) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("missing replies: u1=%d u2=%d u3=%d",
				len(transport.sent("u1")), len(transport.sent("u2")), len(transport.sent("u3")))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDispatcherDropsEventWithoutUser(t *testing.T) {
	d, transport := newDispatcherFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	transport.events <- models.Event{Kind: models.EventText, Text: "hola", Time: time.Now().Unix()}
	transport.events <- models.Event{UserID: "u1", Kind: models.EventText, Text: "hola", Time: time.Now().Unix()}

	deadline := time.After(2 * time.Second)
	for len(transport.sent("u1")) == 0 {
		select {
		case <-deadline:
			t.Fatal("valid event after anonymous one was not processed")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
