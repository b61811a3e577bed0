// Package silo maintains the per-silo content ledger derived from
// completed records and manual adjustments.
package silo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/store"
)

// HistoryLimit caps how many movement rows the operator summary shows.
const HistoryLimit = 20

// Ledger answers silo queries and applies movements through the store pool.
type Ledger struct {
	pool *store.Pool
	now  func() time.Time
}

// NewLedger creates a ledger over the given pool.
func NewLedger(pool *store.Pool) *Ledger {
	return &Ledger{pool: pool, now: time.Now}
}

// Summary renders one silo's movement history and running total for the
// operator.
func (l *Ledger) Summary(_ context.Context, silo int) (string, error) {
	s, err := l.pool.Get()
	if err != nil {
		return "", err
	}
	history, err := s.SiloHistory(silo)
	if err != nil {
		l.pool.Invalidate(s)
		return "", err
	}
	total, err := s.SiloTotal(silo)
	if err != nil {
		l.pool.Invalidate(s)
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📦 Silo %d\n", silo)
	if len(history) == 0 {
		b.WriteString("Sin movimientos registrados.\n")
	} else {
		if len(history) > HistoryLimit {
			history = history[len(history)-HistoryLimit:]
		}
		b.WriteString("Movimientos:\n")
		for _, ev := range history {
			fmt.Fprintf(&b, "  • %s %s: %v kg", ev.Time.Format("02/01 15:04"), eventLabel(ev.Kind), ev.Amount)
			if ev.LotCode != "" {
				fmt.Fprintf(&b, " (lote %s)", ev.LotCode)
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "━━━━━━━━━━━━━━━━\nCapacidad actual: %.1f kg", total)
	return b.String(), nil
}

// Subtract records a manual consumption and returns the new total.
func (l *Ledger) Subtract(_ context.Context, silo int, kg float64) (float64, error) {
	s, err := l.pool.Get()
	if err != nil {
		return 0, err
	}
	ev := store.SiloEvent{Silo: silo, Kind: store.SiloConsume, Amount: -kg, Time: l.now()}
	if err := s.AddSiloEvent(ev); err != nil {
		l.pool.Invalidate(s)
		return 0, err
	}
	total, err := s.SiloTotal(silo)
	if err != nil {
		l.pool.Invalidate(s)
		return 0, err
	}
	slog.Info("Ledger silo consumption recorded", "silo", silo, "kg", kg, "total", total)
	return total, nil
}

// ApplyRecord derives ledger movements from a completed record: destination
// weighings unload into silos, silo loads fill them. Other flows produce no
// movements.
func (l *Ledger) ApplyRecord(_ context.Context, rec models.Record) error {
	var kind store.SiloEventKind
	switch {
	case rec.Flow == models.FlowWeighing && rec.WeighKind == models.WeighKindDestination:
		kind = store.SiloUnload
	case rec.Flow == models.FlowSiloLoad:
		kind = store.SiloFill
	default:
		return nil
	}

	s, err := l.pool.Get()
	if err != nil {
		return err
	}
	for _, item := range rec.Items {
		ev := store.SiloEvent{
			Silo:    item.Index,
			Kind:    kind,
			Amount:  item.Weight,
			LotCode: rec.LotCode,
			Time:    rec.CreatedAt,
		}
		if err := s.AddSiloEvent(ev); err != nil {
			l.pool.Invalidate(s)
			return fmt.Errorf("failed to apply record %s to silo ledger: %w", rec.ID, err)
		}
	}
	slog.Debug("Ledger record applied", "recordID", rec.ID, "flow", rec.Flow, "movements", len(rec.Items))
	return nil
}

func eventLabel(kind store.SiloEventKind) string {
	switch kind {
	case store.SiloFill:
		return "Carga"
	case store.SiloUnload:
		return "Descarga"
	case store.SiloConsume:
		return "Consumo"
	}
	return string(kind)
}
