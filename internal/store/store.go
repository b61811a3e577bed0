// Package store provides the persistent storage backends for weighbot:
// PostgreSQL for production and SQLite for single-host deployments. Both
// carry the same schema of completed records, their sub-items, the silo
// ledger, and the identity confirmation log.
package store

import (
	"strings"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
)

// SiloEventKind tags one movement in the silo ledger.
type SiloEventKind string

const (
	// SiloFill is feed loaded into a silo.
	SiloFill SiloEventKind = "fill"
	// SiloUnload is feed weighed into a silo at the destination scale.
	SiloUnload SiloEventKind = "unload"
	// SiloConsume is feed manually subtracted.
	SiloConsume SiloEventKind = "consume"
)

// SiloEvent is one row of the silo ledger. Amount is negative for
// consumption.
type SiloEvent struct {
	Silo    int
	Kind    SiloEventKind
	Amount  float64
	LotCode string
	Time    time.Time
}

// IdentityUse is one confirmed identity entry for a chat user.
type IdentityUse struct {
	UserID   string
	Identity string
	Flow     models.FlowID
	Time     time.Time
}

// Store is the persistence interface the delivery pipeline, silo ledger,
// and anomaly detector depend on.
type Store interface {
	// SaveRecord persists a completed or checkpointed record with its
	// sub-items.
	SaveRecord(rec models.Record) error
	// LastOriginWeight returns the most recent origin weighing for plate,
	// or nil when none exists.
	LastOriginWeight(plate string) (*float64, error)

	// AddSiloEvent appends one movement to the silo ledger.
	AddSiloEvent(ev SiloEvent) error
	// SiloHistory returns the ledger for one silo, oldest first.
	SiloHistory(silo int) ([]SiloEvent, error)
	// SiloTotal returns the current net content of one silo in kg.
	SiloTotal(silo int) (float64, error)

	// SaveIdentityUse logs one confirmed identity for a chat user.
	SaveIdentityUse(use IdentityUse) error
	// IdentitiesForUser returns the distinct identities previously
	// confirmed by a chat user.
	IdentitiesForUser(userID string) ([]string, error)

	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	// DSN is the database connection string.
	DSN string
}

// Option configures store creation.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType determines whether a DSN targets Postgres or SQLite.
// Anything that is not recognizably Postgres is treated as a SQLite path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// New opens the backend matching the DSN type.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		return NewPostgresStore(opts...)
	}
	return NewSQLiteStore(opts...)
}
