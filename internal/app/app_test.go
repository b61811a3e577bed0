package app

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/feedlotops/weighbot/internal/messaging"
	"github.com/feedlotops/weighbot/internal/twiliowhatsapp"
)

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	healthHandler(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "healthy") {
		t.Errorf("body = %q", rr.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	rr = httptest.NewRecorder()
	healthHandler(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rr.Code)
	}
}

func TestHTTPServerRegistersTwilioWebhook(t *testing.T) {
	svc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	srv := newHTTPServer(":0", svc)

	form := url.Values{}
	form.Set("From", "whatsapp:+5491123456789")
	form.Set("Body", "hola")
	req := httptest.NewRequest(http.MethodPost, "/webhook/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("webhook status = %d", rr.Code)
	}
}

func TestHTTPServerServesMetrics(t *testing.T) {
	svc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	srv := newHTTPServer(":0", svc)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("metrics status = %d", rr.Code)
	}
}
