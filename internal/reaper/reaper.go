// Package reaper expires idle sessions. A flow abandoned mid-way is
// checkpointed as an incomplete record so collected answers survive, then
// the operator is told the session timed out.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedlotops/weighbot/internal/flow"
	"github.com/feedlotops/weighbot/internal/metrics"
	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/session"
)

// DefaultTimeout is how long a session may sit idle before expiry.
const DefaultTimeout = 20 * time.Minute

// Checkpointer persists a reaped record as incomplete.
type Checkpointer interface {
	Checkpoint(ctx context.Context, rec models.Record) error
}

// Notifier sends the expiry notice to the operator.
type Notifier interface {
	Send(ctx context.Context, to, body string) error
}

// Alerter delivers a supervising-channel note for flows that opt in.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Reaper sweeps the session store on a schedule.
type Reaper struct {
	sessions   *session.Store
	registry   *flow.Registry
	checkpoint Checkpointer
	notify     Notifier
	alert      Alerter
	timeout    time.Duration
	now        func() time.Time
}

// New creates a reaper. notify and alert may be nil; checkpointing then
// still happens but the corresponding messages are skipped.
func New(sessions *session.Store, registry *flow.Registry, checkpoint Checkpointer, notify Notifier, alert Alerter, timeout time.Duration) *Reaper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reaper{
		sessions:   sessions,
		registry:   registry,
		checkpoint: checkpoint,
		notify:     notify,
		alert:      alert,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Sweep expires every session idle past the timeout. Eviction re-checks
// idleness under the per-user lock, so an event that arrives during the
// sweep refreshes the session and wins.
func (r *Reaper) Sweep(ctx context.Context) {
	threshold := r.now().Add(-r.timeout)
	for _, userID := range r.sessions.ListIdleSince(threshold) {
		sess, ok := r.sessions.Evict(userID, threshold)
		if !ok {
			continue
		}
		metrics.SessionsReaped.Inc()
		if sess.Idle() {
			slog.Debug("Reaper dropped idle menu session", "userID", userID)
			continue
		}
		r.expire(ctx, sess)
	}
}

// expire checkpoints a mid-flow session and tells the operator.
func (r *Reaper) expire(ctx context.Context, sess *models.Session) {
	slog.Info("Reaper expiring mid-flow session", "userID", sess.UserID, "flow", sess.FlowID, "state", sess.StateID)

	def, err := r.registry.Get(sess.FlowID)
	if err != nil {
		slog.Error("Reaper session references unknown flow, dropping", "userID", sess.UserID, "flow", sess.FlowID, "error", err)
		return
	}

	if def.Project != nil && sess.Fields.Len() > 0 && r.checkpoint != nil {
		rec := def.Project(sess, r.now())
		rec.UserID = sess.UserID
		rec.Flow = def.ID
		rec.Status = models.RecordIncomplete
		if err := r.checkpoint.Checkpoint(ctx, rec); err != nil {
			slog.Error("Reaper checkpoint failed, partial answers lost", "userID", sess.UserID, "flow", sess.FlowID, "error", err)
		}
	}

	if def.NotifyIncomplete && r.alert != nil {
		note := fmt.Sprintf("⏰ Sesión expirada sin completar\n📱 Usuario: %s\n⚙️ Operación: %s", sess.UserID, sess.FlowID)
		if err := r.alert.Alert(ctx, note); err != nil {
			slog.Error("Reaper channel note failed", "userID", sess.UserID, "error", err)
		}
	}

	if r.notify != nil {
		msg := "⏰ Su sesión expiró por inactividad. El registro quedó incompleto.\n\nEscriba cualquier mensaje para comenzar de nuevo."
		if err := r.notify.Send(ctx, sess.UserID, msg); err != nil {
			slog.Error("Reaper expiry notice failed", "userID", sess.UserID, "error", err)
		}
	}
}
