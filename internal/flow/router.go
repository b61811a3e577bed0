package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedlotops/weighbot/internal/metrics"
	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/session"
)

// Completer receives the completed record when a flow reaches a terminal
// state. It returns the record as persisted (Saved flag, resolved photo
// reference) for the operator-facing summary.
type Completer interface {
	Complete(ctx context.Context, rec models.Record) models.Record
}

// IdentityObserver is notified after an identity field is confirmed. Its
// outcome never blocks or alters the flow.
type IdentityObserver interface {
	IdentityConfirmed(ctx context.Context, userID, identity string, flowID models.FlowID)
}

// SiloOps exposes the silo ledger operations the query and subtract flows
// consult mid-flow.
type SiloOps interface {
	Summary(ctx context.Context, silo int) (string, error)
	Subtract(ctx context.Context, silo int, kg float64) (float64, error)
}

// Dependencies holds the collaborators injected into the router. Nil
// members degrade the corresponding operation instead of failing the flow.
type Dependencies struct {
	Completer Completer
	Identity  IdentityObserver
	Silo      SiloOps
}

// Outcome is what the router asks the transport to deliver after one event.
type Outcome struct {
	// Replies go to the operator, in order.
	Replies []string
	// Alerts go to the supervising channel.
	Alerts []string
}

// Router is the generic interpreter over whichever flow definition is
// active for a session. It owns no per-flow logic: classification, field
// mutation, and branching are all declared in the definitions.
type Router struct {
	registry   *Registry
	classifier *Classifier
	sessions   *session.Store
	deps       Dependencies
	now        func() time.Time
}

// NewRouter creates a router over the given definitions and session store.
func NewRouter(reg *Registry, cls *Classifier, sessions *session.Store, deps Dependencies) *Router {
	return &Router{
		registry:   reg,
		classifier: cls,
		sessions:   sessions,
		deps:       deps,
		now:        time.Now,
	}
}

// pending captures collaborator work requested while the per-user lock was
// held; it executes only after the lock is released so the router never
// awaits a collaborator under a session lock.
type pending struct {
	identity   string
	flow       models.FlowID
	op         OpKind
	opSilo     int
	opAmount   float64
	completed  *models.Record
	summary    func(rec models.Record) string
	returnMenu bool
}

// OnEvent applies one inbound event to the user's session and returns the
// prompts to send. Invalid input never advances the state and never mutates
// fields, so duplicate delivery of a rejected event is idempotent.
func (r *Router) OnEvent(ctx context.Context, ev models.Event) Outcome {
	now := r.now()
	var out Outcome
	var work pending
	metrics.EventsProcessed.Inc()

	r.sessions.Apply(ev.UserID, now, func(sess *models.Session) bool {
		out, work = r.apply(sess, ev, now)
		return true
	})

	r.finish(ctx, ev.UserID, &out, work)
	return out
}

// apply mutates the session under its per-user lock and records any
// collaborator work for later. It returns the replies decided so far.
func (r *Router) apply(sess *models.Session, ev models.Event, now time.Time) (Outcome, pending) {
	var out Outcome
	var work pending

	if ev.Kind == models.EventText && r.classifier.IsCancel(ev.Text) {
		if !sess.Idle() {
			slog.Info("Router flow cancelled by operator", "userID", ev.UserID, "flow", sess.FlowID)
			sess.ClearFlow()
			sess.LastActivity = now
			out.Replies = append(out.Replies, msgCancelled, menuPrompt())
			return out, work
		}
	}

	if sess.Idle() {
		return r.applyIdle(sess, ev, now), work
	}

	def, err := r.registry.Get(sess.FlowID)
	if err != nil {
		// Definition set changed under a live session; recover to menu.
		slog.Error("Router session references unknown flow", "userID", ev.UserID, "flow", sess.FlowID, "error", err)
		sess.ClearFlow()
		out.Replies = append(out.Replies, menuPrompt())
		return out, work
	}
	state, err := def.Lookup(sess.StateID)
	if err != nil {
		slog.Error("Router session in undeclared state", "userID", ev.UserID, "flow", sess.FlowID, "state", sess.StateID, "error", err)
		sess.ClearFlow()
		out.Replies = append(out.Replies, menuPrompt())
		return out, work
	}

	tr := r.match(state, sess, ev)
	if tr == nil {
		slog.Debug("Router no transition matched", "userID", ev.UserID, "flow", sess.FlowID, "state", sess.StateID, "kind", ev.Kind)
		out.Replies = append(out.Replies, reAsk(state, sess, ""))
		return out, work
	}

	value, err := r.value(tr, sess, ev)
	if err != nil {
		slog.Debug("Router validation rejected input", "userID", ev.UserID, "flow", sess.FlowID, "state", sess.StateID, "reason", err)
		metrics.InputsRejected.Inc()
		out.Replies = append(out.Replies, reAsk(state, sess, err.Error()))
		return out, work
	}

	if tr.Field != "" {
		sess.Fields.Set(tr.Field, value)
	}
	if tr.Action != nil {
		tr.Action(sess, value)
	}
	if tr.ConfirmsIdentity {
		work.identity = sess.Fields.Text(models.FieldIdentity)
		work.flow = sess.FlowID
	}
	if tr.Op != OpNone {
		work.op = tr.Op
		work.opSilo = int(sess.Fields.Int(models.FieldSiloNumber))
		work.opAmount = sess.Fields.Dec(models.FieldSubtract)
	}
	if tr.Note != nil {
		if note := tr.Note(sess); note != "" {
			out.Replies = append(out.Replies, note)
		}
	}
	if tr.Alert != nil {
		if alert := tr.Alert(sess); alert != "" {
			out.Alerts = append(out.Alerts, alert)
		}
	}

	next := tr.Next
	if tr.NextFunc != nil {
		next = tr.NextFunc(sess)
	}
	sess.StateID = next
	sess.LastActivity = now

	nextState, err := def.Lookup(next)
	if err != nil {
		slog.Error("Router transition to undeclared state", "userID", ev.UserID, "flow", sess.FlowID, "state", next, "error", err)
		sess.ClearFlow()
		out.Replies = append(out.Replies, menuPrompt())
		return out, work
	}

	if nextState.Kind == KindTerminal {
		slog.Info("Router flow reached terminal state", "userID", ev.UserID, "flow", def.ID, "state", next)
		if def.Project != nil {
			rec := def.Project(sess, now)
			rec.UserID = ev.UserID
			rec.Flow = def.ID
			rec.Status = models.RecordComplete
			work.completed = &rec
			work.summary = def.Summary
		}
		work.returnMenu = true
		sess.ClearFlow()
		return out, work
	}

	if nextState.Prompt != nil {
		out.Replies = append(out.Replies, nextState.Prompt(sess))
	}
	return out, work
}

// applyIdle handles events with no active flow: menu selection or help.
func (r *Router) applyIdle(sess *models.Session, ev models.Event, now time.Time) Outcome {
	var out Outcome
	sess.LastActivity = now
	if ev.Kind == models.EventText {
		for _, entry := range r.registry.Menu() {
			if !r.classifier.Matches(entry.On, ev.Text) {
				continue
			}
			def, err := r.registry.Get(entry.Flow)
			if err != nil {
				continue
			}
			sess.FlowID = def.ID
			sess.StateID = def.Initial
			sess.Fields = models.NewFields()
			slog.Info("Router flow started", "userID", ev.UserID, "flow", def.ID)
			initial, lookupErr := def.Lookup(def.Initial)
			if lookupErr == nil && initial.Prompt != nil {
				out.Replies = append(out.Replies, initial.Prompt(sess))
			}
			return out
		}
	}
	out.Replies = append(out.Replies, menuPrompt())
	return out
}

// match selects the first declared transition whose class and field guard
// both hold. Guards are resolved by exact match on the recorded field.
func (r *Router) match(state *State, sess *models.Session, ev models.Event) *Transition {
	for i := range state.Transitions {
		tr := &state.Transitions[i]
		if tr.When != "" && sess.Fields.Text(tr.When) != tr.Equals {
			continue
		}
		switch tr.On {
		case ClassPhoto:
			if ev.Kind == models.EventPhoto {
				return tr
			}
		case ClassText:
			if ev.Kind == models.EventText {
				return tr
			}
		default:
			if ev.Kind == models.EventText && r.classifier.Matches(tr.On, ev.Text) {
				return tr
			}
		}
	}
	return nil
}

// value runs the transition validator, or adapts the event payload for
// transitions without one.
func (r *Router) value(tr *Transition, sess *models.Session, ev models.Event) (models.FieldValue, error) {
	if tr.Validate != nil {
		return tr.Validate(sess, ev.Text)
	}
	if tr.On == ClassPhoto {
		return models.FieldValue{Kind: models.FieldBytes, Bytes: ev.Media}, nil
	}
	return models.TagValue(ev.Text), nil
}

// finish executes collaborator work outside the per-user lock: the anomaly
// check, silo ledger operations, and record completion. Persistence of the
// operator's answers always wins over side-effects.
func (r *Router) finish(ctx context.Context, userID string, out *Outcome, work pending) {
	if work.identity != "" && r.deps.Identity != nil {
		r.deps.Identity.IdentityConfirmed(ctx, userID, work.identity, work.flow)
	}

	switch work.op {
	case OpSiloSummary:
		if r.deps.Silo == nil {
			out.Replies = append(out.Replies, msgStoreDown)
			break
		}
		summary, err := r.deps.Silo.Summary(ctx, work.opSilo)
		if err != nil {
			slog.Error("Router silo summary failed", "userID", userID, "silo", work.opSilo, "error", err)
			out.Replies = append(out.Replies, msgStoreDown)
			break
		}
		out.Replies = append(out.Replies, summary)
	case OpSiloSubtract:
		if r.deps.Silo == nil {
			out.Replies = append(out.Replies, msgStoreDown)
			break
		}
		total, err := r.deps.Silo.Subtract(ctx, work.opSilo, work.opAmount)
		if err != nil {
			slog.Error("Router silo subtract failed", "userID", userID, "silo", work.opSilo, "error", err)
			out.Replies = append(out.Replies, msgStoreDown)
			break
		}
		out.Replies = append(out.Replies, msgSiloSubtracted(work.opSilo, work.opAmount, total))
	}

	if work.completed != nil && r.deps.Completer != nil {
		rec := r.deps.Completer.Complete(ctx, *work.completed)
		if work.summary != nil {
			out.Replies = append(out.Replies, work.summary(rec))
		}
	}
	if work.returnMenu {
		out.Replies = append(out.Replies, menuFollowup())
	}
}

// reAsk builds the re-prompt for rejected input: the reason (or the state's
// declared error line) followed by the unchanged question.
func reAsk(state *State, sess *models.Session, reason string) string {
	line := state.Error
	if line == "" {
		line = msgInvalidInput
	}
	if reason != "" {
		line = fmt.Sprintf("%s %s", msgInvalidPrefix, reason)
	}
	if state.Prompt != nil {
		return line + "\n\n" + state.Prompt(sess)
	}
	return line
}
