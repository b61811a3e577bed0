package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/feedlotops/weighbot/internal/flow"
	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/session"
)

type fakeCheckpointer struct {
	records []models.Record
}

func (f *fakeCheckpointer) Checkpoint(_ context.Context, rec models.Record) error {
	f.records = append(f.records, rec)
	return nil
}

type fakeNotifier struct {
	notices map[string]string
}

func (f *fakeNotifier) Send(_ context.Context, to, body string) error {
	if f.notices == nil {
		f.notices = make(map[string]string)
	}
	f.notices[to] = body
	return nil
}

func newTestReaper(t *testing.T) (*Reaper, *session.Store, *fakeCheckpointer, *fakeNotifier) {
	t.Helper()
	reg, err := flow.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry() error = %v", err)
	}
	sessions := session.NewStore()
	cp := &fakeCheckpointer{}
	notify := &fakeNotifier{}
	return New(sessions, reg, cp, notify, nil, DefaultTimeout), sessions, cp, notify
}

func midFlowSession(userID string, idle time.Duration) *models.Session {
	sess := models.NewSession(userID, time.Now().Add(-idle))
	sess.FlowID = models.FlowWeighing
	sess.StateID = "plate"
	sess.Fields.Set(models.FieldIdentity, models.StringValue("12345678"))
	sess.LastActivity = time.Now().Add(-idle)
	return sess
}

func TestSweepExpiresMidFlowSession(t *testing.T) {
	r, sessions, cp, notify := newTestReaper(t)
	sessions.Put("u1", midFlowSession("u1", 30*time.Minute))

	r.Sweep(context.Background())

	if sessions.Len() != 0 {
		t.Error("expected expired session removed")
	}
	if len(cp.records) != 1 {
		t.Fatalf("expected one checkpoint, got %d", len(cp.records))
	}
	rec := cp.records[0]
	if rec.Status != models.RecordIncomplete || rec.Identity != "12345678" {
		t.Errorf("checkpoint = %+v", rec)
	}
	if _, ok := notify.notices["u1"]; !ok {
		t.Error("expected expiry notice to the operator")
	}
}

func TestSweepLeavesActiveSessions(t *testing.T) {
	r, sessions, cp, _ := newTestReaper(t)
	sessions.Put("u1", midFlowSession("u1", time.Minute))

	r.Sweep(context.Background())

	if sessions.Len() != 1 {
		t.Error("active session must survive the sweep")
	}
	if len(cp.records) != 0 {
		t.Errorf("expected no checkpoints, got %d", len(cp.records))
	}
}

func TestSweepDropsIdleMenuSessionSilently(t *testing.T) {
	r, sessions, cp, notify := newTestReaper(t)
	sess := models.NewSession("u1", time.Now().Add(-time.Hour))
	sess.LastActivity = time.Now().Add(-time.Hour)
	sessions.Put("u1", sess)

	r.Sweep(context.Background())

	if sessions.Len() != 0 {
		t.Error("expected idle menu session removed")
	}
	if len(cp.records) != 0 || len(notify.notices) != 0 {
		t.Error("menu sessions expire without checkpoint or notice")
	}
}

func TestSweepRaceRefreshedSessionWins(t *testing.T) {
	r, sessions, cp, _ := newTestReaper(t)
	sessions.Put("u1", midFlowSession("u1", 30*time.Minute))

	// An event lands between listing and eviction.
	sessions.Apply("u1", time.Now(), func(sess *models.Session) bool {
		sess.LastActivity = time.Now()
		return true
	})

	r.Sweep(context.Background())

	if sessions.Len() != 1 {
		t.Error("refreshed session must suppress eviction")
	}
	if len(cp.records) != 0 {
		t.Error("refreshed session must not be checkpointed")
	}
}
