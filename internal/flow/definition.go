package flow

import (
	"fmt"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
)

// StateKind tags what a state expects from the operator.
type StateKind string

const (
	// KindInput asks for one answer.
	KindInput StateKind = "input"
	// KindConfirm asks for a binary accept/reject of the previous answer.
	KindConfirm StateKind = "confirm"
	// KindAccumulate repeats an embedded sub-flow to build a list.
	KindAccumulate StateKind = "accumulate"
	// KindTerminal triggers record completion and session teardown.
	KindTerminal StateKind = "terminal"
)

// Validator parses a raw answer into a typed field value. Validators that
// depend on already-collected fields (remaining silo numbers, staged item
// values) receive the session read-only.
type Validator func(sess *models.Session, raw string) (models.FieldValue, error)

// Action applies an extra field mutation beyond the transition's single
// field set, such as committing a staged accumulator item.
type Action func(sess *models.Session, v models.FieldValue)

// OpKind names a collaborator operation a transition requests from the
// router's injected dependencies.
type OpKind string

const (
	// OpNone requests nothing.
	OpNone OpKind = ""
	// OpSiloSummary queries the silo fill history and running total.
	OpSiloSummary OpKind = "silo_summary"
	// OpSiloSubtract records a negative silo adjustment.
	OpSiloSubtract OpKind = "silo_subtract"
)

// Transition is one edge out of a state, selected by classifying the raw
// input. When/Equals restricts the edge to sessions whose recorded field
// matches exactly; there is no wildcard fallback.
type Transition struct {
	On     Class
	When   models.FieldKey
	Equals string

	Field    models.FieldKey
	Validate Validator
	Action   Action

	// ConfirmsIdentity marks the accept edge after which the anomaly
	// detector runs. Confirmation first, so a corrected typo never
	// triggers a false alarm.
	ConfirmsIdentity bool

	// Op requests a collaborator operation after the mutation applies.
	Op OpKind

	Next models.StateID
	// NextFunc overrides Next for transitions whose destination depends
	// on collected fields (accumulator short-circuits, reconciliation).
	NextFunc func(sess *models.Session) models.StateID

	// Note emits an extra reply line after the mutation, typically an
	// accumulator running summary or a reconciliation warning.
	Note func(sess *models.Session) string
	// Alert emits a supervising-channel message when non-empty, used by
	// the alarm reconciliation band.
	Alert func(sess *models.Session) string
}

// State is one node in a flow's graph: what the system is currently asking.
type State struct {
	ID          models.StateID
	Kind        StateKind
	Prompt      func(sess *models.Session) string
	Transitions []Transition
	// Error replaces the generic re-prompt preamble when set.
	Error string
}

// Definition is one top-level workflow, loaded at startup and never mutated
// at runtime.
type Definition struct {
	ID      models.FlowID
	Initial models.StateID
	States  map[models.StateID]*State

	// Project builds the completed record from collected fields.
	Project func(sess *models.Session, now time.Time) models.Record
	// Summary renders the operator-facing completion message.
	Summary func(rec models.Record) string
	// NotifyIncomplete lets a flow opt in to fan-out for reaped records.
	NotifyIncomplete bool
}

// Lookup returns the declared state or an error naming the violation.
func (d *Definition) Lookup(id models.StateID) (*State, error) {
	st, ok := d.States[id]
	if !ok {
		return nil, fmt.Errorf("%w: flow %s has no state %s", models.ErrUnknownState, d.ID, id)
	}
	return st, nil
}

// Check verifies the structural invariants of the definition: every
// non-terminal state has at least one outward transition, every confirm
// state exactly two (accept and reject), and every static destination is a
// declared state.
func (d *Definition) Check() error {
	if _, ok := d.States[d.Initial]; !ok {
		return fmt.Errorf("flow %s: initial state %s not declared", d.ID, d.Initial)
	}
	for id, st := range d.States {
		if st.Kind == KindTerminal {
			continue
		}
		if len(st.Transitions) == 0 {
			return fmt.Errorf("flow %s: non-terminal state %s has no transitions", d.ID, id)
		}
		if st.Kind == KindConfirm {
			if len(st.Transitions) != 2 {
				return fmt.Errorf("flow %s: confirm state %s has %d transitions, want 2", d.ID, id, len(st.Transitions))
			}
			if st.Transitions[0].On != ClassAccept || st.Transitions[1].On != ClassReject {
				return fmt.Errorf("flow %s: confirm state %s must declare accept then reject edges", d.ID, id)
			}
		}
		for _, tr := range st.Transitions {
			if tr.NextFunc != nil {
				continue
			}
			if _, ok := d.States[tr.Next]; !ok {
				return fmt.Errorf("flow %s: state %s transitions to undeclared state %s", d.ID, id, tr.Next)
			}
		}
	}
	return nil
}

// Registry holds the flow definitions active in this process.
type Registry struct {
	flows map[models.FlowID]*Definition
	menu  []MenuEntry
}

// MenuEntry binds a main-menu class to the flow it starts.
type MenuEntry struct {
	On   Class
	Flow models.FlowID
}

// NewRegistry checks and indexes the given definitions.
func NewRegistry(menu []MenuEntry, defs ...*Definition) (*Registry, error) {
	r := &Registry{flows: make(map[models.FlowID]*Definition), menu: menu}
	for _, def := range defs {
		if err := def.Check(); err != nil {
			return nil, err
		}
		r.flows[def.ID] = def
	}
	for _, entry := range menu {
		if _, ok := r.flows[entry.Flow]; !ok {
			return nil, fmt.Errorf("menu entry %s references unknown flow %s", entry.On, entry.Flow)
		}
	}
	return r, nil
}

// Get retrieves the definition for a flow ID.
func (r *Registry) Get(id models.FlowID) (*Definition, error) {
	def, ok := r.flows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownFlow, id)
	}
	return def, nil
}

// Menu returns the main-menu entries in declaration order.
func (r *Registry) Menu() []MenuEntry { return r.menu }
