package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/validate"
)

// Pen count flow bounds.
const (
	// MaxPenHead caps one pen's animal count.
	MaxPenHead = 2000
	// MaxPenSpan caps how many pens a single range entry may register.
	MaxPenSpan = 20
)

// penCountPolicy reconciles the summed pen counts against the declared
// delivery total. A vehicle-level discrepancy notifies the supervising
// channel.
var penCountPolicy = ReconcilePolicy{AlarmThreshold: VehicleAlarmThreshold, WarnOnFinishOnly: true}

// penCounts accumulates one sub-record per confirmed pen range.
var penCounts = Accumulator{
	ListField:  models.FieldItems,
	IndexField: models.FieldItemIndex,
	ValueField: models.FieldItemValue,
}

// Pen count flow states.
const (
	stPenIdentity        models.StateID = "identity"
	stPenConfirmIdentity models.StateID = "confirm_identity"
	stPenDeclared        models.StateID = "declared_total"
	stPenConfirmDeclared models.StateID = "confirm_declared_total"
	stPenRange           models.StateID = "pen_range"
	stPenHead            models.StateID = "pen_head_count"
	stPenConfirm         models.StateID = "confirm_pen"
	stPenAskMore         models.StateID = "ask_more_pens"
	stPenDone            models.StateID = "done"
)

// NewPenCountFlow builds the livestock count logging flow: operator
// identity, declared delivery total, then a pen-range accumulate loop
// reconciled against the declared total.
func NewPenCountFlow() *Definition {
	declared := CountValidator(validate.CountRule{Min: 1, Max: MaxDeliveryHead})
	penHead := CountValidator(validate.CountRule{Min: 1, Max: MaxPenHead})
	penRange := RangeValidator(validate.RangeRule{ForbidZero: true, MaxSpan: MaxPenSpan})

	return &Definition{
		ID:      models.FlowPenCount,
		Initial: stPenIdentity,
		States: map[models.StateID]*State{
			stPenIdentity: {
				ID:   stPenIdentity,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "Por favor, ingrese su cédula:"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldIdentity, Validate: IdentityValidator(), Next: stPenConfirmIdentity},
				},
			},
			stPenConfirmIdentity: {
				ID:   stPenConfirmIdentity,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("📋 Cédula ingresada: %s", sess.Fields.Text(models.FieldIdentity)))
				},
				Transitions: []Transition{
					{On: ClassAccept, ConfirmsIdentity: true, Next: stPenDeclared},
					{On: ClassReject, Next: stPenIdentity},
				},
			},
			stPenDeclared: {
				ID:   stPenDeclared,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "¿Cuántos animales llegaron en total según la remisión?"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldDeclared, Validate: declared, Next: stPenConfirmDeclared},
				},
			},
			stPenConfirmDeclared: {
				ID:   stPenConfirmDeclared,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("🐂 Total declarado: %d animales", sess.Fields.Int(models.FieldDeclared)))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stPenRange},
					{On: ClassReject, Next: stPenDeclared},
				},
			},
			stPenRange: {
				ID:   stPenRange,
				Kind: KindAccumulate,
				Prompt: func(sess *models.Session) string {
					if len(penCounts.Items(sess)) == 0 {
						return "Ingrese el rango de corrales a registrar (ejemplo: 3-7):"
					}
					return "Ingrese el siguiente rango de corrales (ejemplo: 8-12):"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldItemIndex, Validate: penRange, Next: stPenHead},
				},
			},
			stPenHead: {
				ID:   stPenHead,
				Kind: KindInput,
				Prompt: func(sess *models.Session) string {
					rng, _ := sess.Fields.Get(models.FieldItemIndex)
					return fmt.Sprintf("¿Cuántos animales quedaron en los corrales %d-%d?", rng.Int, rng.Int2)
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldItemValue, Validate: penHead, Next: stPenConfirm},
				},
			},
			stPenConfirm: {
				ID:   stPenConfirm,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					rng, _ := sess.Fields.Get(models.FieldItemIndex)
					return confirmPrompt(fmt.Sprintf("🏠 Corrales %d-%d: %d animales", rng.Int, rng.Int2, sess.Fields.Int(models.FieldItemValue)))
				},
				Transitions: []Transition{
					{
						On: ClassAccept,
						Action: func(sess *models.Session, _ models.FieldValue) {
							rng, _ := sess.Fields.Get(models.FieldItemIndex)
							penCounts.Append(sess, models.SubRecord{
								Index:  int(rng.Int),
								Index2: int(rng.Int2),
								Count:  sess.Fields.Int(models.FieldItemValue),
							})
						},
						Note:     penSummary,
						Alert:    penOverAlarm,
						NextFunc: nextAfterPen,
					},
					{On: ClassReject, Next: stPenHead},
				},
			},
			stPenAskMore: {
				ID:   stPenAskMore,
				Kind: KindAccumulate,
				Prompt: func(*models.Session) string {
					return "¿Desea registrar otro rango de corrales?\n\n• Sí, agregar otro\n• No, terminar"
				},
				Transitions: []Transition{
					{On: ClassMore, Next: stPenRange},
					{On: ClassDone, Note: penFinishWarning, Alert: penAlarm, Next: stPenDone},
				},
			},
			stPenDone: {ID: stPenDone, Kind: KindTerminal},
		},
		Project: projectPenCount,
		Summary: summarizePenCount,
	}
}

// nextAfterPen ends the loop as soon as the counted total reaches the
// declared total; otherwise it asks for another range.
func nextAfterPen(sess *models.Session) models.StateID {
	if penCounts.CountTotal(sess) >= sess.Fields.Int(models.FieldDeclared) {
		return stPenDone
	}
	return stPenAskMore
}

func penSummary(sess *models.Session) string {
	items := penCounts.Items(sess)
	total := penCounts.CountTotal(sess)
	declared := sess.Fields.Int(models.FieldDeclared)

	var b strings.Builder
	b.WriteString("📊 Resumen actual:\n")
	for _, item := range items {
		fmt.Fprintf(&b, "  • Corrales %d-%d: %d animales\n", item.Index, item.Index2, item.Count)
	}
	fmt.Fprintf(&b, "━━━━━━━━━━━━━━━━\nTotal contado: %d\nTotal declarado: %d", total, declared)
	if total > declared {
		fmt.Fprintf(&b, "\n\n⚠️ EXCESO de %d animales sobre lo declarado. Verifique los valores.", total-declared)
	}
	return b.String()
}

// penFinishWarning fires only on the explicit finish step when the count is
// still under the declared total.
func penFinishWarning(sess *models.Session) string {
	total := penCounts.CountTotal(sess)
	declared := sess.Fields.Int(models.FieldDeclared)
	if total >= declared {
		return ""
	}
	return fmt.Sprintf("⚠️ ADVERTENCIA: Faltan %d animales por registrar\nTotal contado: %d\nTotal declarado: %d", declared-total, total, declared)
}

// penOverAlarm fires on a committed range that pushed the count past the
// declared total by more than the alarm threshold. Under-counts stay silent
// here because the loop may still continue.
func penOverAlarm(sess *models.Session) string {
	if penCounts.CountTotal(sess) <= sess.Fields.Int(models.FieldDeclared) {
		return ""
	}
	return penAlarm(sess)
}

// penAlarm notifies the supervising channel when the discrepancy crosses
// the vehicle-level alarm threshold.
func penAlarm(sess *models.Session) string {
	total := penCounts.CountTotal(sess)
	declared := sess.Fields.Int(models.FieldDeclared)
	if penCountPolicy.Classify(float64(declared), float64(total)) != BandAlarm {
		return ""
	}
	return fmt.Sprintf("🚨 DISCREPANCIA DE CONTEO\n👤 Cédula: %s\nTotal declarado: %d\nTotal contado: %d\nDiferencia: %d",
		sess.Fields.Text(models.FieldIdentity), declared, total, total-declared)
}

func projectPenCount(sess *models.Session, now time.Time) models.Record {
	rec := models.Record{
		Identity:  sess.Fields.Text(models.FieldIdentity),
		HeadCount: sess.Fields.Int(models.FieldDeclared),
		Items:     sess.Fields.List(models.FieldItems),
		CreatedAt: now,
	}
	for _, item := range rec.Items {
		rec.ItemsTotal += float64(item.Count)
	}
	return rec
}

func summarizePenCount(rec models.Record) string {
	var b strings.Builder
	b.WriteString("✅ Conteo por corrales completado\n")
	fmt.Fprintf(&b, "👤 Cédula: %s\n", rec.Identity)
	fmt.Fprintf(&b, "🐂 Total declarado: %d\n", rec.HeadCount)
	b.WriteString("🏠 Corrales:\n")
	for _, item := range rec.Items {
		fmt.Fprintf(&b, "  • %d-%d: %d animales\n", item.Index, item.Index2, item.Count)
	}
	fmt.Fprintf(&b, "🏋️ Total contado: %.0f\n", rec.ItemsTotal)
	if !rec.Saved {
		b.WriteString("⚠️ No se pudo guardar en la base de datos; conserve este resumen.\n")
	}
	fmt.Fprintf(&b, "🕒 Fecha: %s", rec.CreatedAt.Format("02/01/2006 15:04"))
	return b.String()
}
