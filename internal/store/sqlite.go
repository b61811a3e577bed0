package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/feedlotops/weighbot/internal/models"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is the single-host storage backend.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store based on provided options.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore: creating SQLite store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite database", "error", err, "dsn", dsn)
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids lock errors.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err, "dsn", dsn)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")
	return &SQLiteStore{db: db}, nil
}

// SaveRecord persists a record and its sub-items in one transaction.
func (s *SQLiteStore) SaveRecord(rec models.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("SQLiteStore SaveRecord begin failed", "error", err)
		return fmt.Errorf("failed to begin record transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO records (id, user_id, flow, status, identity, employee_type, plate, weigh_kind,
			cargo_type, gross_weight, items_total, head_count, liters, from_pen, to_pen, lot_code,
			origin_weight, photo_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, string(rec.Flow), string(rec.Status),
		nilIfEmpty(rec.Identity), nilIfEmpty(rec.EmployeeType), nilIfEmpty(rec.Plate), nilIfEmpty(rec.WeighKind),
		nilIfEmpty(rec.CargoType), rec.GrossWeight, rec.ItemsTotal, rec.HeadCount, rec.Liters,
		rec.FromPen, rec.ToPen, nilIfEmpty(rec.LotCode), rec.OriginWeight, nilIfEmpty(rec.PhotoRef), rec.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveRecord insert failed", "error", err, "recordID", rec.ID, "flow", rec.Flow)
		return fmt.Errorf("failed to insert record %s: %w", rec.ID, err)
	}

	for i, item := range rec.Items {
		_, err = tx.Exec(`
			INSERT INTO record_items (record_id, position, idx, idx2, item_count, weight, label)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, item.Index, item.Index2, item.Count, item.Weight, nilIfEmpty(item.Label))
		if err != nil {
			slog.Error("SQLiteStore SaveRecord item insert failed", "error", err, "recordID", rec.ID, "position", i)
			return fmt.Errorf("failed to insert record item %d of %s: %w", i, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("SQLiteStore SaveRecord commit failed", "error", err, "recordID", rec.ID)
		return fmt.Errorf("failed to commit record %s: %w", rec.ID, err)
	}
	slog.Debug("SQLiteStore SaveRecord succeeded", "recordID", rec.ID, "flow", rec.Flow, "items", len(rec.Items))
	return nil
}

// LastOriginWeight returns the most recent origin weighing for plate.
func (s *SQLiteStore) LastOriginWeight(plate string) (*float64, error) {
	var weight float64
	err := s.db.QueryRow(`
		SELECT gross_weight FROM records
		WHERE plate = ? AND weigh_kind = ? AND status = ?
		ORDER BY created_at DESC LIMIT 1`,
		plate, models.WeighKindOrigin, models.RecordComplete).Scan(&weight)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore LastOriginWeight not found", "plate", plate)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LastOriginWeight failed", "error", err, "plate", plate)
		return nil, fmt.Errorf("failed to query origin weight for %s: %w", plate, err)
	}
	return &weight, nil
}

// AddSiloEvent appends one movement to the silo ledger.
func (s *SQLiteStore) AddSiloEvent(ev SiloEvent) error {
	_, err := s.db.Exec(`INSERT INTO silo_events (silo, kind, amount, lot_code, time) VALUES (?, ?, ?, ?, ?)`,
		ev.Silo, string(ev.Kind), ev.Amount, nilIfEmpty(ev.LotCode), ev.Time)
	if err != nil {
		slog.Error("SQLiteStore AddSiloEvent failed", "error", err, "silo", ev.Silo, "kind", ev.Kind)
		return fmt.Errorf("failed to insert silo event for silo %d: %w", ev.Silo, err)
	}
	slog.Debug("SQLiteStore AddSiloEvent succeeded", "silo", ev.Silo, "kind", ev.Kind, "amount", ev.Amount)
	return nil
}

// SiloHistory returns the ledger for one silo, oldest first.
func (s *SQLiteStore) SiloHistory(silo int) ([]SiloEvent, error) {
	rows, err := s.db.Query(`SELECT silo, kind, amount, COALESCE(lot_code, ''), time FROM silo_events WHERE silo = ? ORDER BY time`, silo)
	if err != nil {
		slog.Error("SQLiteStore SiloHistory query failed", "error", err, "silo", silo)
		return nil, fmt.Errorf("failed to query silo %d history: %w", silo, err)
	}
	defer rows.Close()
	var events []SiloEvent
	for rows.Next() {
		var ev SiloEvent
		var kind string
		if err := rows.Scan(&ev.Silo, &kind, &ev.Amount, &ev.LotCode, &ev.Time); err != nil {
			slog.Error("SQLiteStore SiloHistory scan failed", "error", err, "silo", silo)
			return nil, fmt.Errorf("failed to scan silo event row: %w", err)
		}
		ev.Kind = SiloEventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore SiloHistory rows iteration failed", "error", err, "silo", silo)
		return nil, fmt.Errorf("failed to iterate silo event rows: %w", err)
	}
	slog.Debug("SQLiteStore SiloHistory succeeded", "silo", silo, "count", len(events))
	return events, nil
}

// SiloTotal returns the current net content of one silo in kg.
func (s *SQLiteStore) SiloTotal(silo int) (float64, error) {
	var total float64
	err := s.db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM silo_events WHERE silo = ?`, silo).Scan(&total)
	if err != nil {
		slog.Error("SQLiteStore SiloTotal failed", "error", err, "silo", silo)
		return 0, fmt.Errorf("failed to query silo %d total: %w", silo, err)
	}
	return total, nil
}

// SaveIdentityUse logs one confirmed identity for a chat user.
func (s *SQLiteStore) SaveIdentityUse(use IdentityUse) error {
	_, err := s.db.Exec(`INSERT INTO identity_log (user_id, identity, flow, time) VALUES (?, ?, ?, ?)`,
		use.UserID, use.Identity, string(use.Flow), use.Time)
	if err != nil {
		slog.Error("SQLiteStore SaveIdentityUse failed", "error", err, "userID", use.UserID)
		return fmt.Errorf("failed to insert identity use for %s: %w", use.UserID, err)
	}
	slog.Debug("SQLiteStore SaveIdentityUse succeeded", "userID", use.UserID)
	return nil
}

// IdentitiesForUser returns the distinct identities previously confirmed by
// a chat user.
func (s *SQLiteStore) IdentitiesForUser(userID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT identity FROM identity_log WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore IdentitiesForUser query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query identities for %s: %w", userID, err)
	}
	defer rows.Close()
	var identities []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("SQLiteStore IdentitiesForUser scan failed", "error", err, "userID", userID)
			return nil, fmt.Errorf("failed to scan identity row: %w", err)
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore IdentitiesForUser rows iteration failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to iterate identity rows: %w", err)
	}
	return identities, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
