// Package delivery turns completed flow records into durable rows and
// supervising-channel notifications. Persistence always happens before any
// notification, and a failed side-effect never discards the operator's
// answers.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feedlotops/weighbot/internal/blob"
	"github.com/feedlotops/weighbot/internal/metrics"
	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/silo"
	"github.com/feedlotops/weighbot/internal/store"
)

// Channel delivers messages to the supervising group.
type Channel interface {
	Send(ctx context.Context, to, body string) error
	SendMedia(ctx context.Context, to, caption string, media []byte) error
}

// Opts holds configuration for the pipeline.
type Opts struct {
	Blobs     blob.Uploader
	Channel   Channel
	ChannelID string
}

// Option configures pipeline creation.
type Option func(*Opts)

// WithBlobs sets the photo uploader.
func WithBlobs(b blob.Uploader) Option {
	return func(o *Opts) { o.Blobs = b }
}

// WithChannel sets the supervising channel transport and destination.
func WithChannel(ch Channel, id string) Option {
	return func(o *Opts) {
		o.Channel = ch
		o.ChannelID = id
	}
}

// Pipeline is the record completion path shared by the router and the
// session reaper.
type Pipeline struct {
	pool   *store.Pool
	ledger *silo.Ledger
	opts   Opts
	now    func() time.Time
}

// NewPipeline creates a pipeline over the given pool and ledger.
func NewPipeline(pool *store.Pool, ledger *silo.Ledger, opts ...Option) *Pipeline {
	p := &Pipeline{pool: pool, ledger: ledger, now: time.Now}
	for _, opt := range opts {
		opt(&p.opts)
	}
	return p
}

// Complete persists a finished record, applies silo movements, and notifies
// the supervising channel. The returned record carries the Saved flag and
// resolved photo reference for the operator summary.
func (p *Pipeline) Complete(ctx context.Context, rec models.Record) models.Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	if len(rec.Photo) > 0 && p.opts.Blobs != nil {
		ref, err := p.opts.Blobs.Upload(ctx, rec.ID+".jpg", rec.Photo)
		if err != nil {
			slog.Error("Pipeline photo upload failed, record kept without reference", "recordID", rec.ID, "error", err)
		} else {
			rec.PhotoRef = ref
		}
	}

	if rec.Flow == models.FlowWeighing && rec.WeighKind == models.WeighKindDestination {
		rec.OriginWeight = p.resolveOrigin(rec.Plate)
	}

	rec.Saved = p.persist(rec)
	if rec.Saved {
		if err := p.ledger.ApplyRecord(ctx, rec); err != nil {
			slog.Error("Pipeline silo ledger update failed", "recordID", rec.ID, "error", err)
		}
	}

	p.notify(ctx, rec)
	return rec
}

// Checkpoint persists a reaped record as incomplete. No notification goes
// out and no ledger movement applies: partial answers are evidence, not
// inventory.
func (p *Pipeline) Checkpoint(_ context.Context, rec models.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Status = models.RecordIncomplete
	if !p.persist(rec) {
		return fmt.Errorf("failed to checkpoint record %s: %w", rec.ID, models.ErrStoreUnavailable)
	}
	slog.Info("Pipeline incomplete record checkpointed", "recordID", rec.ID, "flow", rec.Flow, "userID", rec.UserID)
	return nil
}

// Alert sends a text to the supervising channel. Used by the anomaly
// detector and the reconciliation alarms.
func (p *Pipeline) Alert(ctx context.Context, text string) error {
	if p.opts.Channel == nil || p.opts.ChannelID == "" {
		slog.Debug("Pipeline alert dropped, no supervising channel configured")
		return nil
	}
	if err := p.opts.Channel.Send(ctx, p.opts.ChannelID, text); err != nil {
		return fmt.Errorf("failed to send channel alert: %w", err)
	}
	return nil
}

func (p *Pipeline) persist(rec models.Record) bool {
	s, err := p.pool.Get()
	if err != nil {
		slog.Error("Pipeline store unavailable, record degraded to summary-only", "recordID", rec.ID, "error", err)
		metrics.RecordsDegraded.Inc()
		return false
	}
	if err := s.SaveRecord(rec); err != nil {
		slog.Error("Pipeline record save failed", "recordID", rec.ID, "error", err)
		p.pool.Invalidate(s)
		metrics.RecordsDegraded.Inc()
		return false
	}
	metrics.RecordsPersisted.Inc()
	return true
}

func (p *Pipeline) resolveOrigin(plate string) *float64 {
	if plate == "" {
		return nil
	}
	s, err := p.pool.Get()
	if err != nil {
		slog.Error("Pipeline origin lookup skipped, store unavailable", "plate", plate, "error", err)
		return nil
	}
	w, err := s.LastOriginWeight(plate)
	if err != nil {
		slog.Error("Pipeline origin lookup failed", "plate", plate, "error", err)
		p.pool.Invalidate(s)
		return nil
	}
	return w
}

// notify sends the record to the supervising channel: photo with caption
// when available, plain text otherwise. Caption delivery failures fall back
// to plain text so the channel always hears about the record.
func (p *Pipeline) notify(ctx context.Context, rec models.Record) {
	if p.opts.Channel == nil || p.opts.ChannelID == "" {
		return
	}
	caption := channelCaption(rec)
	if len(rec.Photo) > 0 {
		err := p.opts.Channel.SendMedia(ctx, p.opts.ChannelID, caption, rec.Photo)
		if err == nil {
			return
		}
		slog.Error("Pipeline media notification failed, falling back to text", "recordID", rec.ID, "error", err)
	}
	if err := p.opts.Channel.Send(ctx, p.opts.ChannelID, caption); err != nil {
		slog.Error("Pipeline channel notification failed", "recordID", rec.ID, "error", err)
	}
}

// channelCaption renders the supervising-channel view of a record.
func channelCaption(rec models.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Nuevo registro: %s\n", flowLabel(rec.Flow))
	if rec.Identity != "" {
		fmt.Fprintf(&b, "👤 Cédula: %s\n", rec.Identity)
	}
	if rec.Plate != "" {
		fmt.Fprintf(&b, "🚚 Placa: %s\n", rec.Plate)
	}
	if rec.WeighKind != "" {
		fmt.Fprintf(&b, "⚖️ Peso: %v kg\n", rec.GrossWeight)
	}
	if rec.CargoType != "" {
		fmt.Fprintf(&b, "📦 Carga: %s\n", rec.CargoType)
	}
	if len(rec.Items) > 0 {
		fmt.Fprintf(&b, "📊 Total registrado: %v\n", rec.ItemsTotal)
	}
	if rec.FromPen != 0 || rec.ToPen != 0 {
		fmt.Fprintf(&b, "🏠 Corrales: %d → %d\n", rec.FromPen, rec.ToPen)
	}
	if rec.OriginWeight != nil {
		fmt.Fprintf(&b, "📍 Peso de origen: %v kg\n", *rec.OriginWeight)
	}
	if !rec.Saved {
		b.WriteString("⚠️ Registro NO guardado en la base de datos\n")
	}
	fmt.Fprintf(&b, "🕒 %s", rec.CreatedAt.Format("02/01/2006 15:04"))
	return b.String()
}

func flowLabel(id models.FlowID) string {
	switch id {
	case models.FlowWeighing:
		return "Pesaje"
	case models.FlowHaul:
		return "Carga"
	case models.FlowPenCount:
		return "Conteo por corrales"
	case models.FlowSiloLoad:
		return "Llenado de silos"
	case models.FlowPenTransfer:
		return "Traslado entre corrales"
	}
	return string(id)
}
