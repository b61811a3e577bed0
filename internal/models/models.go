// Package models defines the core data structures for weighbot.
//
// It includes inbound chat events, collected field values, completed records,
// and anomaly alerts, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// EventKind classifies an inbound chat event.
type EventKind string

const (
	// EventText is a plain text message from the operator.
	EventText EventKind = "text"
	// EventPhoto is a photo message from the operator.
	EventPhoto EventKind = "photo"
)

// Event represents one inbound message from the chat transport.
type Event struct {
	UserID string    `json:"user_id"`
	Kind   EventKind `json:"kind"`
	Text   string    `json:"text,omitempty"`
	// Media carries the downloaded photo bytes for photo events. The
	// transport resolves media before the event reaches the router.
	Media []byte `json:"-"`
	Time  int64  `json:"time"`
}

// Error variables for better error handling and testability.
var (
	ErrEmptyRecipient   = errors.New("recipient cannot be empty")
	ErrEmptyBody        = errors.New("message body cannot be empty")
	ErrUnknownFlow      = errors.New("unknown flow")
	ErrUnknownState     = errors.New("state not declared in flow definition")
	ErrStoreUnavailable = errors.New("relational store unavailable")
	ErrServiceStopped   = errors.New("messaging service stopped")
)

// RecordStatus tags a persisted record as complete or checkpointed.
type RecordStatus string

const (
	// RecordComplete marks a record produced by a finished flow.
	RecordComplete RecordStatus = "COMPLETE"
	// RecordIncomplete marks a record checkpointed by the inactivity reaper.
	RecordIncomplete RecordStatus = "INCOMPLETE"
)

// SubRecord is one accumulated sub-item inside a flow: a silo unload, a pen
// assignment, a single fill event. Index2 is only used by pen ranges.
type SubRecord struct {
	Index  int     `json:"index"`
	Index2 int     `json:"index2,omitempty"`
	Count  int64   `json:"count,omitempty"`
	Weight float64 `json:"weight,omitempty"`
	Label  string  `json:"label,omitempty"`
}

// Record is the terminal output of a flow: a normalized projection of the
// session fields, immutable once constructed, owned by the delivery pipeline
// until persisted.
type Record struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Flow         FlowID       `json:"flow"`
	Status       RecordStatus `json:"status"`
	Identity     string       `json:"identity,omitempty"`
	EmployeeType string       `json:"employee_type,omitempty"`
	Plate        string       `json:"plate,omitempty"`
	WeighKind    string       `json:"weigh_kind,omitempty"`
	CargoType    string       `json:"cargo_type,omitempty"`
	GrossWeight  float64      `json:"gross_weight,omitempty"`
	ItemsTotal   float64      `json:"items_total,omitempty"`
	HeadCount    int64        `json:"head_count,omitempty"`
	Liters       float64      `json:"liters,omitempty"`
	FromPen      int          `json:"from_pen,omitempty"`
	ToPen        int          `json:"to_pen,omitempty"`
	LotCode      string       `json:"lot_code,omitempty"`
	Items        []SubRecord  `json:"items,omitempty"`
	// OriginWeight carries the last origin weighing for the same plate,
	// resolved by the delivery pipeline for the destination cross-check.
	OriginWeight *float64 `json:"origin_weight,omitempty"`
	// Photo holds the raw photo bytes until the delivery pipeline
	// resolves them to PhotoRef.
	Photo []byte `json:"-"`
	// PhotoRef is a URL when the blob upload succeeded, or a local file
	// path when it did not. Empty when the flow collects no photo.
	PhotoRef string `json:"photo_ref,omitempty"`
	// Saved reports whether the relational store acknowledged the record.
	// Delivery still confirms collected data to the operator when false.
	Saved     bool      `json:"saved"`
	CreatedAt time.Time `json:"created_at"`
}

// AnomalyAlert flags a user identity asserting more than one distinct
// real-world ID across sessions. Transient: constructed by the anomaly
// detector and handed straight to the notification collaborator.
type AnomalyAlert struct {
	UserID          string    `json:"user_id"`
	ClaimedIdentity string    `json:"claimed_identity"`
	PriorIdentities []string  `json:"prior_identities"`
	Flow            FlowID    `json:"flow"`
	Timestamp       time.Time `json:"timestamp"`
}
