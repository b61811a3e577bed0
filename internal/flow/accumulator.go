package flow

import (
	"fmt"
	"strings"

	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/validate"
)

// Accumulator implements the recurring "collect K similar sub-records in one
// session" pattern shared by the silo-unload, pen-count, and silo-load
// loops. The embedded input/confirm sub-flow is independent of how many
// iterations have already run; only prompt text varies.
type Accumulator struct {
	// ListField is where confirmed items accumulate.
	ListField models.FieldKey
	// IndexField and ValueField stage the in-progress item.
	IndexField models.FieldKey
	ValueField models.FieldKey
	// Capacity, when non-nil, is the finite set of usable identifiers
	// (e.g. the numbered silos); each may be used once.
	Capacity []int
}

// Items returns the confirmed sub-records so far.
func (a Accumulator) Items(sess *models.Session) []models.SubRecord {
	return sess.Fields.List(a.ListField)
}

// Append commits one confirmed item to the list.
func (a Accumulator) Append(sess *models.Session, item models.SubRecord) {
	sess.Fields.Append(a.ListField, item)
}

// StagedIndex returns the identifier of the in-progress item.
func (a Accumulator) StagedIndex(sess *models.Session) int {
	return int(sess.Fields.Int(a.IndexField))
}

// StagedValue returns the decimal value of the in-progress item.
func (a Accumulator) StagedValue(sess *models.Session) float64 {
	return sess.Fields.Dec(a.ValueField)
}

// Remaining returns the capacity identifiers not yet used, in declared
// order. Nil capacity means unbounded.
func (a Accumulator) Remaining(sess *models.Session) []int {
	if a.Capacity == nil {
		return nil
	}
	used := make(map[int]bool)
	for _, item := range a.Items(sess) {
		used[item.Index] = true
	}
	var remaining []int
	for _, id := range a.Capacity {
		if !used[id] {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// Exhausted reports whether a finite capacity set has no identifiers left.
// The loop must then short-circuit to the next flow state without asking
// "add another?".
func (a Accumulator) Exhausted(sess *models.Session) bool {
	return a.Capacity != nil && len(a.Remaining(sess)) == 0
}

// WeightTotal sums the weights of confirmed items.
func (a Accumulator) WeightTotal(sess *models.Session) float64 {
	var total float64
	for _, item := range a.Items(sess) {
		total += item.Weight
	}
	return total
}

// CountTotal sums the counts of confirmed items.
func (a Accumulator) CountTotal(sess *models.Session) int64 {
	var total int64
	for _, item := range a.Items(sess) {
		total += item.Count
	}
	return total
}

// RemainingHint renders the unused identifiers for a prompt, e.g. "2, 3, 4".
func (a Accumulator) RemainingHint(sess *models.Session) string {
	remaining := a.Remaining(sess)
	parts := make([]string, len(remaining))
	for i, id := range remaining {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}

// IndexValidator validates a staged identifier against the remaining unused
// capacity, so a silo can never be unloaded into twice.
func (a Accumulator) IndexValidator() Validator {
	return func(sess *models.Session, raw string) (models.FieldValue, error) {
		rule := validate.IndexRule{Allowed: a.Capacity}
		if a.Capacity != nil {
			rule.Allowed = a.Remaining(sess)
		}
		idx, err := rule.Parse(raw)
		if err != nil {
			return models.FieldValue{}, err
		}
		return models.IntValue(int64(idx)), nil
	}
}
