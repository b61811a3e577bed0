package delivery

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/feedlotops/weighbot/internal/blob"
	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/silo"
	"github.com/feedlotops/weighbot/internal/store"
)

// fakeChannel records sends in order, optionally failing some.
type fakeChannel struct {
	sends      []string
	media      []string
	failMedia  bool
	failAlways bool
}

func (f *fakeChannel) Send(_ context.Context, _, body string) error {
	if f.failAlways {
		return errors.New("channel down")
	}
	f.sends = append(f.sends, body)
	return nil
}

func (f *fakeChannel) SendMedia(_ context.Context, _, caption string, _ []byte) error {
	if f.failAlways || f.failMedia {
		return errors.New("media rejected")
	}
	f.media = append(f.media, caption)
	return nil
}

type fixture struct {
	pipeline *Pipeline
	pool     *store.Pool
	channel  *fakeChannel
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	pool := store.NewPool(func() (store.Store, error) {
		return store.NewSQLiteStore(store.WithDSN(filepath.Join(dir, "weighbot.db")))
	})
	t.Cleanup(func() { pool.Close() })

	blobs, err := blob.NewLocalStore(filepath.Join(dir, "photos"))
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	ch := &fakeChannel{}
	opts = append([]Option{WithBlobs(blobs), WithChannel(ch, "channel@g.us")}, opts...)
	return &fixture{
		pipeline: NewPipeline(pool, silo.NewLedger(pool), opts...),
		pool:     pool,
		channel:  ch,
	}
}

func TestCompletePersistsAndNotifies(t *testing.T) {
	fx := newFixture(t)
	rec := fx.pipeline.Complete(context.Background(), models.Record{
		UserID: "u1", Flow: models.FlowWeighing, Status: models.RecordComplete,
		Identity: "12345678", Plate: "ABC123", WeighKind: models.WeighKindOrigin,
		GrossWeight: 9500, Photo: []byte{0xFF, 0xD8}, CreatedAt: time.Now(),
	})

	if !rec.Saved {
		t.Error("expected record marked saved")
	}
	if rec.PhotoRef == "" {
		t.Error("expected resolved photo reference")
	}
	if len(fx.channel.media) != 1 {
		t.Fatalf("expected one media notification, got %d", len(fx.channel.media))
	}
	if !strings.Contains(fx.channel.media[0], "ABC123") {
		t.Errorf("caption missing plate: %q", fx.channel.media[0])
	}

	s, err := fx.pool.Get()
	if err != nil {
		t.Fatal(err)
	}
	w, err := s.LastOriginWeight("ABC123")
	if err != nil || w == nil || *w != 9500 {
		t.Errorf("LastOriginWeight = %v, %v", w, err)
	}
}

func TestCompleteResolvesOriginForDestination(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.pipeline.Complete(ctx, models.Record{
		UserID: "u1", Flow: models.FlowWeighing, Status: models.RecordComplete,
		Plate: "ABC123", WeighKind: models.WeighKindOrigin, GrossWeight: 9000,
		CreatedAt: time.Now().Add(-time.Hour),
	})

	rec := fx.pipeline.Complete(ctx, models.Record{
		UserID: "u1", Flow: models.FlowWeighing, Status: models.RecordComplete,
		Plate: "ABC123", WeighKind: models.WeighKindDestination, GrossWeight: 8999.5,
		Items: []models.SubRecord{{Index: 1, Weight: 8999.5}}, ItemsTotal: 8999.5,
		CreatedAt: time.Now(),
	})

	if rec.OriginWeight == nil || *rec.OriginWeight != 9000 {
		t.Errorf("OriginWeight = %v, want 9000", rec.OriginWeight)
	}

	// Destination unloads must land in the silo ledger.
	s, _ := fx.pool.Get()
	total, err := s.SiloTotal(1)
	if err != nil || total != 8999.5 {
		t.Errorf("SiloTotal(1) = %v, %v", total, err)
	}
}

func TestCompleteMediaFallbackToText(t *testing.T) {
	fx := newFixture(t)
	fx.channel.failMedia = true

	fx.pipeline.Complete(context.Background(), models.Record{
		UserID: "u1", Flow: models.FlowWeighing, Status: models.RecordComplete,
		Plate: "ABC123", WeighKind: models.WeighKindOrigin, GrossWeight: 100,
		Photo: []byte{1}, CreatedAt: time.Now(),
	})

	if len(fx.channel.media) != 0 || len(fx.channel.sends) != 1 {
		t.Errorf("expected plain-text fallback, media=%d sends=%d", len(fx.channel.media), len(fx.channel.sends))
	}
}

func TestCompleteSurvivesDeadChannel(t *testing.T) {
	fx := newFixture(t)
	fx.channel.failAlways = true

	rec := fx.pipeline.Complete(context.Background(), models.Record{
		UserID: "u1", Flow: models.FlowPenTransfer, Status: models.RecordComplete,
		FromPen: 1, ToPen: 2, HeadCount: 10, CreatedAt: time.Now(),
	})
	if !rec.Saved {
		t.Error("persistence must not depend on notification delivery")
	}
}

func TestCompleteDegradesWithoutStore(t *testing.T) {
	pool := store.NewPool(func() (store.Store, error) {
		return nil, errors.New("connection refused")
	})
	ch := &fakeChannel{}
	p := NewPipeline(pool, silo.NewLedger(pool), WithChannel(ch, "channel@g.us"))

	rec := p.Complete(context.Background(), models.Record{
		UserID: "u1", Flow: models.FlowPenTransfer, Status: models.RecordComplete,
		FromPen: 1, ToPen: 2, HeadCount: 10, CreatedAt: time.Now(),
	})
	if rec.Saved {
		t.Error("expected degraded record with store down")
	}
	// The channel still hears about the degraded record.
	if len(ch.sends) != 1 || !strings.Contains(ch.sends[0], "NO guardado") {
		t.Errorf("expected degraded notification, got %v", ch.sends)
	}
}

func TestCheckpointPersistsWithoutNotification(t *testing.T) {
	fx := newFixture(t)
	err := fx.pipeline.Checkpoint(context.Background(), models.Record{
		UserID: "u1", Flow: models.FlowWeighing,
		Identity: "12345678", Plate: "ABC123", WeighKind: models.WeighKindOrigin,
		GrossWeight: 500, CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
	if len(fx.channel.sends) != 0 || len(fx.channel.media) != 0 {
		t.Error("checkpoints must not notify the channel")
	}

	// Incomplete checkpoints never serve as origin weights.
	s, _ := fx.pool.Get()
	w, err := s.LastOriginWeight("ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if w != nil {
		t.Errorf("LastOriginWeight = %v, want nil", *w)
	}
}

func TestAlertWithoutChannelIsNoOp(t *testing.T) {
	pool := store.NewPool(func() (store.Store, error) {
		return nil, errors.New("unused")
	})
	p := NewPipeline(pool, silo.NewLedger(pool))
	if err := p.Alert(context.Background(), "alarm"); err != nil {
		t.Errorf("Alert() without channel error = %v", err)
	}
}
