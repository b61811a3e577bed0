package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/feedlotops/weighbot/internal/flow"
	"github.com/feedlotops/weighbot/internal/models"
)

// DefaultMailboxSize is the per-user buffer for queued inbound events.
const DefaultMailboxSize = 16

// Alerter delivers supervising-channel alerts raised by the router.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Dispatcher consumes the transport's inbound events and drives the flow
// router. Each operator gets a private mailbox goroutine, so events from
// one user are processed in order while users never block each other.
type Dispatcher struct {
	service Service
	router  *flow.Router
	alerter Alerter

	mu        sync.Mutex
	mailboxes map[string]chan models.Event
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

// NewDispatcher creates a dispatcher over the given transport and router.
// alerter may be nil; alerts are then logged and dropped.
func NewDispatcher(service Service, router *flow.Router, alerter Alerter) *Dispatcher {
	return &Dispatcher{
		service:   service,
		router:    router,
		alerter:   alerter,
		mailboxes: make(map[string]chan models.Event),
	}
}

// Run consumes inbound events until the transport channel closes or the
// context is cancelled. It blocks; callers usually run it in a goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	slog.Info("Dispatcher running")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Dispatcher stopping due to context cancellation")
			d.drain()
			return
		case ev, ok := <-d.service.Events():
			if !ok {
				slog.Info("Dispatcher inbound channel closed")
				d.drain()
				return
			}
			d.deliver(ctx, ev)
		}
	}
}

// Stop cancels the run loop and waits for every mailbox to drain.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// deliver routes an event into its user's mailbox, creating the mailbox
// goroutine on first contact. A full mailbox drops the event rather than
// stalling the shared intake loop.
func (d *Dispatcher) deliver(ctx context.Context, ev models.Event) {
	if ev.UserID == "" {
		slog.Warn("Dispatcher dropping event without user ID")
		return
	}

	d.mu.Lock()
	box, ok := d.mailboxes[ev.UserID]
	if !ok {
		box = make(chan models.Event, DefaultMailboxSize)
		d.mailboxes[ev.UserID] = box
		d.wg.Add(1)
		go d.serve(ctx, ev.UserID, box)
	}
	d.mu.Unlock()

	select {
	case box <- ev:
	default:
		slog.Warn("Dispatcher mailbox full, dropping event", "userID", ev.UserID, "kind", ev.Kind)
	}
}

// serve processes one user's events in arrival order.
func (d *Dispatcher) serve(ctx context.Context, userID string, box chan models.Event) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-box:
			d.handle(ctx, userID, ev)
		}
	}
}

// handle runs one event through the router and delivers the outcome.
func (d *Dispatcher) handle(ctx context.Context, userID string, ev models.Event) {
	out := d.router.OnEvent(ctx, ev)

	for _, reply := range out.Replies {
		if err := d.service.SendMessage(ctx, userID, reply); err != nil {
			slog.Error("Dispatcher reply delivery failed", "userID", userID, "error", err)
		}
	}

	for _, alert := range out.Alerts {
		if d.alerter == nil {
			slog.Warn("Dispatcher dropping alert, no channel configured", "userID", userID)
			continue
		}
		if err := d.alerter.Alert(ctx, alert); err != nil {
			slog.Error("Dispatcher alert delivery failed", "userID", userID, "error", err)
		}
	}
}

// drain closes every mailbox goroutine.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
