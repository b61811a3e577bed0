package session

import (
	"sync"
	"testing"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
)

func TestStoreGetAbsent(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get("nobody"); ok {
		t.Error("Get on absent key should report absence, not a session")
	}
}

func TestStorePutGetRemove(t *testing.T) {
	s := NewStore()
	now := time.Now()
	sess := models.NewSession("user1", now)
	sess.FlowID = models.FlowWeighing

	s.Put("user1", sess)
	got, ok := s.Get("user1")
	if !ok {
		t.Fatal("expected session after Put")
	}
	if got.FlowID != models.FlowWeighing {
		t.Errorf("FlowID = %q, want %q", got.FlowID, models.FlowWeighing)
	}

	s.Remove("user1")
	if _, ok := s.Get("user1"); ok {
		t.Error("expected absence after Remove")
	}
	// Removing again is a no-op.
	s.Remove("user1")
}

func TestApplyCreatesFreshSession(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Apply("user1", now, func(sess *models.Session) bool {
		if !sess.Idle() {
			t.Error("fresh session should be idle")
		}
		sess.FlowID = models.FlowSiloLoad
		sess.LastActivity = now
		return true
	})
	got, ok := s.Get("user1")
	if !ok || got.FlowID != models.FlowSiloLoad {
		t.Fatalf("session not kept after Apply: %v, %v", got, ok)
	}
}

func TestApplyDiscard(t *testing.T) {
	s := NewStore()
	now := time.Now()
	s.Apply("user1", now, func(sess *models.Session) bool { return true })
	s.Apply("user1", now, func(sess *models.Session) bool { return false })
	if _, ok := s.Get("user1"); ok {
		t.Error("session should be removed when fn reports keep=false")
	}
}

func TestApplySerializesPerUser(t *testing.T) {
	s := NewStore()
	now := time.Now()
	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Apply("user1", now, func(sess *models.Session) bool {
				sess.Fields.Set("counter", models.IntValue(sess.Fields.Int("counter")+1))
				return true
			})
		}()
	}
	wg.Wait()
	got, _ := s.Get("user1")
	if got.Fields.Int("counter") != n {
		t.Errorf("counter = %d, want %d: concurrent Apply calls must be atomic", got.Fields.Int("counter"), n)
	}
}

func TestListIdleSince(t *testing.T) {
	s := NewStore()
	base := time.Now()

	old := models.NewSession("old", base.Add(-30*time.Minute))
	old.LastActivity = base.Add(-30 * time.Minute)
	fresh := models.NewSession("fresh", base)
	fresh.LastActivity = base

	s.Put("old", old)
	s.Put("fresh", fresh)

	idle := s.ListIdleSince(base.Add(-20 * time.Minute))
	if len(idle) != 1 || idle[0] != "old" {
		t.Errorf("ListIdleSince = %v, want [old]", idle)
	}

	// A session idle for exactly the threshold is included.
	exact := s.ListIdleSince(base.Add(-30 * time.Minute))
	if len(exact) != 1 || exact[0] != "old" {
		t.Errorf("ListIdleSince at exact threshold = %v, want [old]", exact)
	}
}

func TestEvict(t *testing.T) {
	s := NewStore()
	base := time.Now()
	sess := models.NewSession("user1", base.Add(-time.Hour))
	sess.LastActivity = base.Add(-time.Hour)
	s.Put("user1", sess)

	got, ok := s.Evict("user1", base.Add(-20*time.Minute))
	if !ok || got.UserID != "user1" {
		t.Fatalf("Evict = %v, %v, want the idle session", got, ok)
	}
	if _, ok := s.Get("user1"); ok {
		t.Error("session should be gone after eviction")
	}

	// A refreshed session is not evicted.
	fresh := models.NewSession("user2", base)
	fresh.LastActivity = base
	s.Put("user2", fresh)
	if _, ok := s.Evict("user2", base.Add(-20*time.Minute)); ok {
		t.Error("fresh session must not be evicted")
	}
}

func TestEvictClearsEntryHeldByConcurrentApply(t *testing.T) {
	s := NewStore()
	base := time.Now()
	sess := models.NewSession("user1", base.Add(-time.Hour))
	sess.FlowID = models.FlowWeighing
	sess.StateID = "plate"
	sess.LastActivity = base.Add(-time.Hour)
	s.Put("user1", sess)

	// What an in-flight Apply holds after resolving its slot but before
	// taking the per-key lock.
	e := s.slot("user1")

	if _, ok := s.Evict("user1", base.Add(-20*time.Minute)); !ok {
		t.Fatal("expected eviction of the idle session")
	}

	e.mu.Lock()
	stale := e.session
	e.mu.Unlock()
	if stale != nil {
		t.Fatal("evicted entry still holds the session; a delayed event would resurrect it")
	}

	// The delayed event starts over from the idle menu.
	s.Apply("user1", base, func(got *models.Session) bool {
		if !got.Idle() {
			t.Errorf("event after eviction must see a fresh session, got flow %q", got.FlowID)
		}
		return true
	})
}

func TestEvictRacingApplyNeverResurrects(t *testing.T) {
	base := time.Now()
	for i := 0; i < 200; i++ {
		s := NewStore()
		sess := models.NewSession("user1", base.Add(-time.Hour))
		sess.FlowID = models.FlowWeighing
		sess.LastActivity = base.Add(-time.Hour)
		s.Put("user1", sess)

		var evicted, sawMidFlow bool
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, evicted = s.Evict("user1", base.Add(-20*time.Minute))
		}()
		go func() {
			defer wg.Done()
			s.Apply("user1", time.Now(), func(got *models.Session) bool {
				sawMidFlow = !got.Idle()
				got.LastActivity = time.Now()
				return true
			})
		}()
		wg.Wait()

		// Either the event arrived first and refreshed the session, or the
		// reaper won and the event saw a fresh one. Both at once means the
		// checkpointed session kept running.
		if evicted && sawMidFlow {
			t.Fatalf("iteration %d: session was both reaped and continued", i)
		}
	}
}
