// Package models defines session structures for weighbot flows.
package models

import "time"

// FieldKind tags the dynamic type of a collected value.
type FieldKind string

const (
	FieldString  FieldKind = "string"
	FieldInt     FieldKind = "int"
	FieldDecimal FieldKind = "decimal"
	FieldTag     FieldKind = "tag"
	FieldList    FieldKind = "list"
	FieldBytes   FieldKind = "bytes"
)

// FieldValue holds one typed answer collected from the operator.
type FieldValue struct {
	Kind FieldKind `json:"kind"`
	Text string    `json:"text,omitempty"`
	Int  int64     `json:"int,omitempty"`
	// Int2 carries the upper bound of range-valued fields.
	Int2  int64       `json:"int2,omitempty"`
	Dec   float64     `json:"dec,omitempty"`
	List  []SubRecord `json:"list,omitempty"`
	Bytes []byte      `json:"-"`
}

// StringValue builds a string field value.
func StringValue(s string) FieldValue { return FieldValue{Kind: FieldString, Text: s} }

// TagValue builds an enumerated tag field value.
func TagValue(s string) FieldValue { return FieldValue{Kind: FieldTag, Text: s} }

// IntValue builds an integer field value.
func IntValue(n int64) FieldValue { return FieldValue{Kind: FieldInt, Int: n} }

// DecimalValue builds a decimal field value.
func DecimalValue(d float64) FieldValue { return FieldValue{Kind: FieldDecimal, Dec: d} }

// Fields is an insertion-ordered mapping from field key to value. It only
// ever grows or is overwritten for the current flow and is discarded whole
// when the flow terminates or is cancelled.
type Fields struct {
	order []FieldKey
	m     map[FieldKey]FieldValue
}

// NewFields creates an empty field set.
func NewFields() *Fields {
	return &Fields{m: make(map[FieldKey]FieldValue)}
}

// Set stores a value, preserving first-insertion order on overwrite.
func (f *Fields) Set(key FieldKey, v FieldValue) {
	if _, exists := f.m[key]; !exists {
		f.order = append(f.order, key)
	}
	f.m[key] = v
}

// Get returns the value for key and whether it was set.
func (f *Fields) Get(key FieldKey) (FieldValue, bool) {
	v, ok := f.m[key]
	return v, ok
}

// Text returns the string content of a field, or "" when unset.
func (f *Fields) Text(key FieldKey) string {
	return f.m[key].Text
}

// Dec returns the decimal content of a field, or 0 when unset.
func (f *Fields) Dec(key FieldKey) float64 {
	return f.m[key].Dec
}

// Int returns the integer content of a field, or 0 when unset.
func (f *Fields) Int(key FieldKey) int64 {
	return f.m[key].Int
}

// List returns the accumulated sub-records of a field, or nil when unset.
func (f *Fields) List(key FieldKey) []SubRecord {
	return f.m[key].List
}

// Append adds one sub-record to a list field, creating it when absent.
func (f *Fields) Append(key FieldKey, item SubRecord) {
	v, ok := f.m[key]
	if !ok {
		v = FieldValue{Kind: FieldList}
	}
	v.List = append(v.List, item)
	f.Set(key, v)
}

// Keys returns field keys in insertion order.
func (f *Fields) Keys() []FieldKey {
	keys := make([]FieldKey, len(f.order))
	copy(keys, f.order)
	return keys
}

// Len returns the number of distinct fields set.
func (f *Fields) Len() int { return len(f.m) }

// Session tracks one user's position inside an active flow. FlowID is empty
// when the user is idle at the menu. Mutated exclusively by the workflow
// router under the session store's per-user serialization.
type Session struct {
	UserID       string    `json:"user_id"`
	FlowID       FlowID    `json:"flow_id,omitempty"`
	StateID      StateID   `json:"state_id,omitempty"`
	Fields       *Fields   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// NewSession creates an idle session for userID.
func NewSession(userID string, now time.Time) *Session {
	return &Session{
		UserID:       userID,
		Fields:       NewFields(),
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Idle reports whether the session has no active flow.
func (s *Session) Idle() bool { return s.FlowID == "" }

// ClearFlow discards the active flow and all collected fields.
func (s *Session) ClearFlow() {
	s.FlowID = ""
	s.StateID = ""
	s.Fields = NewFields()
}
