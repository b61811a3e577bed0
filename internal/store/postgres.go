package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/feedlotops/weighbot/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is the production storage backend.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// SaveRecord persists a record and its sub-items in one transaction.
func (s *PostgresStore) SaveRecord(rec models.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("PostgresStore SaveRecord begin failed", "error", err)
		return fmt.Errorf("failed to begin record transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO records (id, user_id, flow, status, identity, employee_type, plate, weigh_kind,
			cargo_type, gross_weight, items_total, head_count, liters, from_pen, to_pen, lot_code,
			origin_weight, photo_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		rec.ID, rec.UserID, string(rec.Flow), string(rec.Status),
		nilIfEmpty(rec.Identity), nilIfEmpty(rec.EmployeeType), nilIfEmpty(rec.Plate), nilIfEmpty(rec.WeighKind),
		nilIfEmpty(rec.CargoType), rec.GrossWeight, rec.ItemsTotal, rec.HeadCount, rec.Liters,
		rec.FromPen, rec.ToPen, nilIfEmpty(rec.LotCode), rec.OriginWeight, nilIfEmpty(rec.PhotoRef), rec.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveRecord insert failed", "error", err, "recordID", rec.ID, "flow", rec.Flow)
		return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
	}

	for i, item := range rec.Items {
		_, err = tx.Exec(`
			INSERT INTO record_items (record_id, position, idx, idx2, item_count, weight, label)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.ID, i, item.Index, item.Index2, item.Count, item.Weight, nilIfEmpty(item.Label))
		if err != nil {
			slog.Error("PostgresStore SaveRecord item insert failed", "error", err, "recordID", rec.ID, "position", i)
			return fmt.Errorf("failed to insert record item %d of %s: %w", i, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("PostgresStore SaveRecord commit failed", "error", err, "recordID", rec.ID)
		return fmt.Errorf("failed to commit record %s: %w", rec.ID, err)
	}
	slog.Debug("PostgresStore SaveRecord succeeded", "recordID", rec.ID, "flow", rec.Flow, "items", len(rec.Items))
	return nil
}

// LastOriginWeight returns the most recent origin weighing for plate.
func (s *PostgresStore) LastOriginWeight(plate string) (*float64, error) {
	var weight float64
	err := s.db.QueryRow(`
		SELECT gross_weight FROM records
		WHERE plate = $1 AND weigh_kind = $2 AND status = $3
		ORDER BY created_at DESC LIMIT 1`,
		plate, models.WeighKindOrigin, models.RecordComplete).Scan(&weight)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore LastOriginWeight not found", "plate", plate)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore LastOriginWeight failed", "error", err, "plate", plate)
		return nil, fmt.Errorf("failed to query origin weight for %s: %w", plate, err)
	}
	return &weight, nil
}

// AddSiloEvent appends one movement to the silo ledger.
func (s *PostgresStore) AddSiloEvent(ev SiloEvent) error {
	_, err := s.db.Exec(`INSERT INTO silo_events (silo, kind, amount, lot_code, time) VALUES ($1, $2, $3, $4, $5)`,
		ev.Silo, string(ev.Kind), ev.Amount, nilIfEmpty(ev.LotCode), ev.Time)
	if err != nil {
		slog.Error("PostgresStore AddSiloEvent failed", "error", err, "silo", ev.Silo, "kind", ev.Kind)
		return fmt.Errorf("failed to insert silo event for silo %d: %w", ev.Silo, err)
	}
	slog.Debug("PostgresStore AddSiloEvent succeeded", "silo", ev.Silo, "kind", ev.Kind, "amount", ev.Amount)
	return nil
}

// SiloHistory returns the ledger for one silo, oldest first.
func (s *PostgresStore) SiloHistory(silo int) ([]SiloEvent, error) {
	rows, err := s.db.Query(`SELECT silo, kind, amount, COALESCE(lot_code, ''), time FROM silo_events WHERE silo = $1 ORDER BY time`, silo)
	if err != nil {
		slog.Error("PostgresStore SiloHistory query failed", "error", err, "silo", silo)
		return nil, fmt.Errorf("failed to query silo %d history: %w", silo, err)
	}
	defer rows.Close()
	var events []SiloEvent
	for rows.Next() {
		var ev SiloEvent
		var kind string
		if err := rows.Scan(&ev.Silo, &kind, &ev.Amount, &ev.LotCode, &ev.Time); err != nil {
			slog.Error("PostgresStore SiloHistory scan failed", "error", err, "silo", silo)
			return nil, fmt.Errorf("failed to scan silo event row: %w", err)
		}
		ev.Kind = SiloEventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore SiloHistory rows iteration failed", "error", err, "silo", silo)
		return nil, fmt.Errorf("failed to iterate silo event rows: %w", err)
	}
	slog.Debug("PostgresStore SiloHistory succeeded", "silo", silo, "count", len(events))
	return events, nil
}

// SiloTotal returns the current net content of one silo in kg.
func (s *PostgresStore) SiloTotal(silo int) (float64, error) {
	var total float64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM silo_events WHERE silo = $1`, silo).Scan(&total)
	if err != nil {
		slog.Error("PostgresStore SiloTotal failed", "error", err, "silo", silo)
		return 0, fmt.Errorf("failed to query silo %d total: %w", silo, err)
	}
	return total, nil
}

// SaveIdentityUse logs one confirmed identity for a chat user.
func (s *PostgresStore) SaveIdentityUse(use IdentityUse) error {
	_, err := s.db.Exec(`INSERT INTO identity_log (user_id, identity, flow, time) VALUES ($1, $2, $3, $4)`,
		use.UserID, use.Identity, string(use.Flow), use.Time)
	if err != nil {
		slog.Error("PostgresStore SaveIdentityUse failed", "error", err, "userID", use.UserID)
		return fmt.Errorf("failed to insert identity use for %s: %w", use.UserID, err)
	}
	slog.Debug("PostgresStore SaveIdentityUse succeeded", "userID", use.UserID)
	return nil
}

// IdentitiesForUser returns the distinct identities previously confirmed by
// a chat user.
func (s *PostgresStore) IdentitiesForUser(userID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT identity FROM identity_log WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore IdentitiesForUser query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query identities for %s: %w", userID, err)
	}
	defer rows.Close()
	var identities []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("PostgresStore IdentitiesForUser scan failed", "error", err, "userID", userID)
			return nil, fmt.Errorf("failed to scan identity row: %w", err)
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore IdentitiesForUser rows iteration failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to iterate identity rows: %w", err)
	}
	return identities, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
