package flow

import (
	"fmt"

	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/validate"
)

// The silo query and subtract flows consult the silo ledger instead of
// producing a record; both end with a collaborator operation and no
// projection.

// Silo query flow states.
const (
	stQuerySilo models.StateID = "silo_number"
	stQueryDone models.StateID = "done"
)

// NewSiloQueryFlow builds the silo inventory query flow: one silo number,
// answered with the ledger's fill history and running total.
func NewSiloQueryFlow() *Definition {
	return &Definition{
		ID:      models.FlowSiloQuery,
		Initial: stQuerySilo,
		States: map[models.StateID]*State{
			stQuerySilo: {
				ID:   stQuerySilo,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "¿Qué silo desea consultar? (1, 2, 3 o 4):"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldSiloNumber, Validate: IndexValidator(validate.IndexRule{Allowed: SiloSet}), Op: OpSiloSummary, Next: stQueryDone},
				},
			},
			stQueryDone: {ID: stQueryDone, Kind: KindTerminal},
		},
	}
}

// Silo subtract flow states.
const (
	stSubSilo    models.StateID = "silo_number"
	stSubAmount  models.StateID = "subtract_amount"
	stSubConfirm models.StateID = "confirm_subtract"
	stSubDone    models.StateID = "done"
)

// NewSiloSubtractFlow builds the silo consumption flow: a silo number and
// an amount, committed to the ledger as a negative adjustment.
func NewSiloSubtractFlow() *Definition {
	amount := WeightValidator(validate.WeightRule{Ceiling: MaxSiloFillKg})

	return &Definition{
		ID:      models.FlowSiloSub,
		Initial: stSubSilo,
		States: map[models.StateID]*State{
			stSubSilo: {
				ID:   stSubSilo,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "¿De qué silo desea descontar alimento? (1, 2, 3 o 4):"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldSiloNumber, Validate: IndexValidator(validate.IndexRule{Allowed: SiloSet}), Next: stSubAmount},
				},
			},
			stSubAmount: {
				ID:   stSubAmount,
				Kind: KindInput,
				Prompt: func(sess *models.Session) string {
					return fmt.Sprintf("¿Cuántos kg desea descontar del Silo %d? (use coma para decimales):", sess.Fields.Int(models.FieldSiloNumber))
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldSubtract, Validate: amount, Next: stSubConfirm},
				},
			},
			stSubConfirm: {
				ID:   stSubConfirm,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("➖ Descontar %v kg del Silo %d", sess.Fields.Dec(models.FieldSubtract), sess.Fields.Int(models.FieldSiloNumber)))
				},
				Transitions: []Transition{
					{On: ClassAccept, Op: OpSiloSubtract, Next: stSubDone},
					{On: ClassReject, Next: stSubAmount},
				},
			},
			stSubDone: {ID: stSubDone, Kind: KindTerminal},
		},
	}
}
