// Package app wires weighbot's modules together: store pool, silo ledger,
// blob storage, delivery pipeline, anomaly detector, flow router, transport
// dispatcher, and the reaper schedule. It owns the HTTP surface (health,
// metrics, Twilio webhook) and graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/feedlotops/weighbot/internal/anomaly"
	"github.com/feedlotops/weighbot/internal/blob"
	"github.com/feedlotops/weighbot/internal/delivery"
	"github.com/feedlotops/weighbot/internal/flow"
	"github.com/feedlotops/weighbot/internal/messaging"
	"github.com/feedlotops/weighbot/internal/reaper"
	"github.com/feedlotops/weighbot/internal/scheduler"
	"github.com/feedlotops/weighbot/internal/session"
	"github.com/feedlotops/weighbot/internal/silo"
	"github.com/feedlotops/weighbot/internal/store"
)

// Default configuration constants
const (
	// DefaultAddr is the default HTTP listen address.
	DefaultAddr = ":8080"
	// DefaultReaperCron sweeps idle sessions every five minutes.
	DefaultReaperCron = "*/5 * * * *"
	// DefaultShutdownTimeout bounds the HTTP server drain on shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Opts holds application configuration.
type Opts struct {
	Addr          string
	DSN           string
	BlobDir       string
	ChannelJID    string
	ReaperCron    string
	ReaperTimeout time.Duration
}

// Option defines an application configuration option.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithDSN sets the relational store connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithBlobDir sets the directory for stored photos.
func WithBlobDir(dir string) Option {
	return func(o *Opts) { o.BlobDir = dir }
}

// WithChannelJID sets the supervising channel destination.
func WithChannelJID(jid string) Option {
	return func(o *Opts) { o.ChannelJID = jid }
}

// WithReaperCron sets the idle-session sweep schedule.
func WithReaperCron(expr string) Option {
	return func(o *Opts) { o.ReaperCron = expr }
}

// WithReaperTimeout sets the idle timeout before a session expires.
func WithReaperTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ReaperTimeout = d }
}

// transportChannel adapts the messaging service to the interfaces the
// delivery pipeline and reaper expect.
type transportChannel struct {
	svc messaging.Service
}

func (t transportChannel) Send(ctx context.Context, to, body string) error {
	return t.svc.SendMessage(ctx, to, body)
}

func (t transportChannel) SendMedia(ctx context.Context, to, caption string, media []byte) error {
	return t.svc.SendMedia(ctx, to, caption, media)
}

// Run assembles the application around the given transport and blocks until
// SIGINT or SIGTERM. The relational store may be unreachable at startup;
// the pool reconnects lazily and flows degrade in the meantime.
func Run(service messaging.Service, opts ...Option) error {
	cfg := Opts{
		Addr:       DefaultAddr,
		ReaperCron: DefaultReaperCron,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("App configuration resolved",
		"addr", cfg.Addr, "dsn_set", cfg.DSN != "", "blob_dir", cfg.BlobDir,
		"channel_set", cfg.ChannelJID != "", "reaper_cron", cfg.ReaperCron)

	pool := store.NewPool(func() (store.Store, error) {
		return store.New(store.WithDSN(cfg.DSN))
	})
	defer pool.Close()

	ledger := silo.NewLedger(pool)

	deliveryOpts := []delivery.Option{}
	if cfg.BlobDir != "" {
		blobs, err := blob.NewLocalStore(cfg.BlobDir)
		if err != nil {
			return fmt.Errorf("failed to prepare blob directory: %w", err)
		}
		deliveryOpts = append(deliveryOpts, delivery.WithBlobs(blobs))
	} else {
		slog.Warn("No blob directory configured, photos will not be archived")
	}
	channel := transportChannel{svc: service}
	if cfg.ChannelJID != "" {
		deliveryOpts = append(deliveryOpts, delivery.WithChannel(channel, cfg.ChannelJID))
	} else {
		slog.Warn("No supervising channel configured, record notifications disabled")
	}
	pipeline := delivery.NewPipeline(pool, ledger, deliveryOpts...)

	detector := anomaly.NewDetector(pool, pipeline)

	registry, err := flow.NewDefaultRegistry()
	if err != nil {
		return fmt.Errorf("failed to build flow registry: %w", err)
	}
	classifier, err := flow.NewClassifier()
	if err != nil {
		return fmt.Errorf("failed to build classifier: %w", err)
	}
	sessions := session.NewStore()
	router := flow.NewRouter(registry, classifier, sessions, flow.Dependencies{
		Completer: pipeline,
		Identity:  detector,
		Silo:      ledger,
	})

	dispatcher := messaging.NewDispatcher(service, router, pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	defer func() {
		if err := service.Stop(); err != nil {
			slog.Error("Messaging service stop failed", "error", err)
		}
	}()

	go dispatcher.Run(ctx)
	defer dispatcher.Stop()

	rp := reaper.New(sessions, registry, pipeline, channel, pipeline, cfg.ReaperTimeout)
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(cfg.ReaperCron, func() { rp.Sweep(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule session reaper: %w", err)
	}

	srv := newHTTPServer(cfg.Addr, service)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("weighbot HTTP server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server failed", "error", err)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	return nil
}

// newHTTPServer builds the HTTP surface: health, Prometheus metrics, and
// the Twilio webhook when that transport is active.
func newHTTPServer(addr string, service messaging.Service) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	if twilioSvc, ok := service.(*messaging.TwilioService); ok {
		slog.Info("Registering Twilio webhook endpoint", "path", "/webhook/twilio")
		mux.HandleFunc("/webhook/twilio", twilioSvc.TwilioWebhookHandler)
	}
	return &http.Server{Addr: addr, Handler: mux}
}

// healthHandler provides a health check endpoint for monitoring.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"healthy","timestamp":%q}`, time.Now().UTC().Format(time.RFC3339))
}
