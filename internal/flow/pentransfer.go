package flow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/validate"
)

// ErrSamePen rejects a transfer whose destination equals its origin.
var ErrSamePen = errors.New("destination pen equals origin pen")

// Pen transfer flow states.
const (
	stXferFrom        models.StateID = "from_pen"
	stXferConfirmFrom models.StateID = "confirm_from_pen"
	stXferTo          models.StateID = "to_pen"
	stXferConfirmTo   models.StateID = "confirm_to_pen"
	stXferHead        models.StateID = "head_count"
	stXferConfirmHead models.StateID = "confirm_head_count"
	stXferDone        models.StateID = "done"
)

// NewPenTransferFlow builds the internal livestock movement flow: origin
// pen, destination pen, head count.
func NewPenTransferFlow() *Definition {
	penNumber := CountValidator(validate.CountRule{Min: 1, Max: MaxPenNumber})
	headCount := CountValidator(validate.CountRule{Min: 1, Max: MaxPenHead})

	toPen := func(sess *models.Session, raw string) (models.FieldValue, error) {
		v, err := penNumber(sess, raw)
		if err != nil {
			return models.FieldValue{}, err
		}
		if v.Int == sess.Fields.Int(models.FieldFromPen) {
			return models.FieldValue{}, ErrSamePen
		}
		return v, nil
	}

	return &Definition{
		ID:      models.FlowPenTransfer,
		Initial: stXferFrom,
		States: map[models.StateID]*State{
			stXferFrom: {
				ID:   stXferFrom,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "¿De qué corral salen los animales?"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldFromPen, Validate: penNumber, Next: stXferConfirmFrom},
				},
			},
			stXferConfirmFrom: {
				ID:   stXferConfirmFrom,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("🏠 Corral de origen: %d", sess.Fields.Int(models.FieldFromPen)))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stXferTo},
					{On: ClassReject, Next: stXferFrom},
				},
			},
			stXferTo: {
				ID:   stXferTo,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "¿A qué corral se trasladan?"
				},
				Error: "⚠️ El corral de destino debe ser distinto al de origen. Intente de nuevo.",
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldToPen, Validate: toPen, Next: stXferConfirmTo},
				},
			},
			stXferConfirmTo: {
				ID:   stXferConfirmTo,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("🏠 Corral de destino: %d", sess.Fields.Int(models.FieldToPen)))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stXferHead},
					{On: ClassReject, Next: stXferTo},
				},
			},
			stXferHead: {
				ID:   stXferHead,
				Kind: KindInput,
				Prompt: func(sess *models.Session) string {
					return fmt.Sprintf("¿Cuántos animales se trasladan del corral %d al %d?",
						sess.Fields.Int(models.FieldFromPen), sess.Fields.Int(models.FieldToPen))
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldHeadCount, Validate: headCount, Next: stXferConfirmHead},
				},
			},
			stXferConfirmHead: {
				ID:   stXferConfirmHead,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("🐂 Animales a trasladar: %d", sess.Fields.Int(models.FieldHeadCount)))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stXferDone},
					{On: ClassReject, Next: stXferHead},
				},
			},
			stXferDone: {ID: stXferDone, Kind: KindTerminal},
		},
		Project: projectPenTransfer,
		Summary: summarizePenTransfer,
	}
}

func projectPenTransfer(sess *models.Session, now time.Time) models.Record {
	return models.Record{
		FromPen:   int(sess.Fields.Int(models.FieldFromPen)),
		ToPen:     int(sess.Fields.Int(models.FieldToPen)),
		HeadCount: sess.Fields.Int(models.FieldHeadCount),
		CreatedAt: now,
	}
}

func summarizePenTransfer(rec models.Record) string {
	var b strings.Builder
	b.WriteString("✅ Traslado registrado\n")
	fmt.Fprintf(&b, "🏠 Origen: Corral %d\n", rec.FromPen)
	fmt.Fprintf(&b, "🏠 Destino: Corral %d\n", rec.ToPen)
	fmt.Fprintf(&b, "🐂 Animales: %d\n", rec.HeadCount)
	if !rec.Saved {
		b.WriteString("⚠️ No se pudo guardar en la base de datos; conserve este resumen.\n")
	}
	fmt.Fprintf(&b, "🕒 Fecha: %s", rec.CreatedAt.Format("02/01/2006 15:04"))
	return b.String()
}
