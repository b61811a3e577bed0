// Package anomaly flags chat users who confirm an identity number they
// never used before, a weak signal of a borrowed phone or a mistyped
// cédula that survived confirmation.
package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/feedlotops/weighbot/internal/metrics"
	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/store"
)

// Notifier delivers an alert to the supervising channel.
type Notifier interface {
	Alert(ctx context.Context, text string) error
}

// Detector observes confirmed identities and alerts whenever the user's
// history holds any identity other than the claimed one. A user's first
// ever identity is trusted.
type Detector struct {
	pool   *store.Pool
	notify Notifier
	now    func() time.Time
}

// NewDetector creates a detector over the given pool and notifier. A nil
// notifier disables alerting but still logs identity uses.
func NewDetector(pool *store.Pool, notify Notifier) *Detector {
	return &Detector{pool: pool, notify: notify, now: time.Now}
}

// IdentityConfirmed checks the claimed identity against the user's history
// and records the use. Failures degrade silently: the operator's flow never
// stalls on the detector.
func (d *Detector) IdentityConfirmed(ctx context.Context, userID, identity string, flowID models.FlowID) {
	s, err := d.pool.Get()
	if err != nil {
		slog.Error("Detector store unavailable, skipping identity check", "userID", userID, "error", err)
		return
	}
	priors, err := s.IdentitiesForUser(userID)
	if err != nil {
		slog.Error("Detector identity history lookup failed", "userID", userID, "error", err)
		d.pool.Invalidate(s)
		return
	}

	// Every identity other than the claimed one counts against the user,
	// even when the claimed one itself is already on record.
	var others []string
	for _, prior := range priors {
		if prior != identity {
			others = append(others, prior)
		}
	}

	if err := s.SaveIdentityUse(store.IdentityUse{
		UserID:   userID,
		Identity: identity,
		Flow:     flowID,
		Time:     d.now(),
	}); err != nil {
		slog.Error("Detector identity use save failed", "userID", userID, "error", err)
		d.pool.Invalidate(s)
	}

	if len(others) == 0 {
		return
	}

	metrics.AnomaliesFlagged.Inc()
	alert := models.AnomalyAlert{
		UserID:          userID,
		ClaimedIdentity: identity,
		PriorIdentities: others,
		Flow:            flowID,
		Timestamp:       d.now(),
	}
	slog.Info("Detector identity switch flagged", "userID", userID, "identity", identity, "priors", len(others))
	if d.notify == nil {
		return
	}
	if err := d.notify.Alert(ctx, renderAlert(alert)); err != nil {
		slog.Error("Detector alert delivery failed", "userID", userID, "error", err)
	}
}

func renderAlert(a models.AnomalyAlert) string {
	return fmt.Sprintf("🚨 ALERTA DE IDENTIDAD\n📱 Usuario: %s\n📋 Cédula reportada: %s\n📋 Cédulas anteriores: %s\n⚙️ Operación: %s\n🕒 %s",
		a.UserID, a.ClaimedIdentity, strings.Join(a.PriorIdentities, ", "), a.Flow, a.Timestamp.Format("02/01/2006 15:04"))
}
