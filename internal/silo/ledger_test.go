package silo

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/store"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "weighbot.db")
	pool := store.NewPool(func() (store.Store, error) {
		return store.NewSQLiteStore(store.WithDSN(dsn))
	})
	t.Cleanup(func() { pool.Close() })
	return NewLedger(pool)
}

func TestLedgerApplyAndSummary(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	load := models.Record{
		ID: "r1", Flow: models.FlowSiloLoad, LotCode: "LOTE-7",
		Items: []models.SubRecord{
			{Index: 1, Weight: 8000},
			{Index: 2, Weight: 4000},
		},
		CreatedAt: time.Now(),
	}
	if err := l.ApplyRecord(ctx, load); err != nil {
		t.Fatalf("ApplyRecord(load) error = %v", err)
	}

	unload := models.Record{
		ID: "r2", Flow: models.FlowWeighing, WeighKind: models.WeighKindDestination,
		Items:     []models.SubRecord{{Index: 1, Weight: 2500}},
		CreatedAt: time.Now(),
	}
	if err := l.ApplyRecord(ctx, unload); err != nil {
		t.Fatalf("ApplyRecord(unload) error = %v", err)
	}

	summary, err := l.Summary(ctx, 1)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if !strings.Contains(summary, "Silo 1") || !strings.Contains(summary, "10500.0 kg") {
		t.Errorf("Summary(1) = %q, want total 10500.0 kg", summary)
	}
	if !strings.Contains(summary, "LOTE-7") {
		t.Errorf("Summary(1) missing lot code: %q", summary)
	}
}

func TestLedgerSubtract(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.ApplyRecord(ctx, models.Record{
		ID: "r1", Flow: models.FlowSiloLoad,
		Items:     []models.SubRecord{{Index: 3, Weight: 5000}},
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("ApplyRecord() error = %v", err)
	}

	total, err := l.Subtract(ctx, 3, 1200.5)
	if err != nil {
		t.Fatalf("Subtract() error = %v", err)
	}
	if total != 3799.5 {
		t.Errorf("Subtract() total = %v, want 3799.5", total)
	}
}

func TestLedgerIgnoresNonSiloFlows(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	rec := models.Record{
		ID: "r1", Flow: models.FlowPenCount,
		Items:     []models.SubRecord{{Index: 1, Index2: 5, Count: 100}},
		CreatedAt: time.Now(),
	}
	if err := l.ApplyRecord(ctx, rec); err != nil {
		t.Fatalf("ApplyRecord() error = %v", err)
	}
	summary, err := l.Summary(ctx, 1)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if !strings.Contains(summary, "Sin movimientos") {
		t.Errorf("pen counts must not move the ledger, got %q", summary)
	}
}

func TestLedgerOriginWeighingNoMovement(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	rec := models.Record{
		ID: "r1", Flow: models.FlowWeighing, WeighKind: models.WeighKindOrigin,
		GrossWeight: 9000, CreatedAt: time.Now(),
	}
	if err := l.ApplyRecord(ctx, rec); err != nil {
		t.Fatalf("ApplyRecord() error = %v", err)
	}
	summary, err := l.Summary(ctx, 1)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if !strings.Contains(summary, "Sin movimientos") {
		t.Errorf("origin weighings must not move the ledger, got %q", summary)
	}
}
