package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/validate"
)

// MaxLoadTonnes caps the declared feed load of one truck.
const MaxLoadTonnes = 50

// Silo load flow states.
const (
	stLoadLot          models.StateID = "lot_code"
	stLoadConfirmLot   models.StateID = "confirm_lot_code"
	stLoadTotal        models.StateID = "load_total"
	stLoadConfirmTotal models.StateID = "confirm_load_total"
	stLoadSiloNumber   models.StateID = "silo_number"
	stLoadSiloWeight   models.StateID = "silo_fill_weight"
	stLoadConfirmSilo  models.StateID = "confirm_silo_fill"
	stLoadAskMore      models.StateID = "ask_more_silos"
	stLoadDone         models.StateID = "done"
)

// siloFills is the accumulator for the fill loop. Same silo set as the
// weighing flow, each silo fillable once per delivery.
var siloFills = Accumulator{
	ListField:  models.FieldItems,
	IndexField: models.FieldItemIndex,
	ValueField: models.FieldItemValue,
	Capacity:   SiloSet,
}

// NewSiloLoadFlow builds the feed intake flow: lot code, declared load in
// tonnes, then a per-silo fill loop reconciled against the declared load.
func NewSiloLoadFlow() *Definition {
	loadTonnes := WeightValidator(validate.WeightRule{Ceiling: MaxLoadTonnes})
	fillWeight := WeightValidator(validate.WeightRule{Ceiling: MaxSiloFillKg})

	return &Definition{
		ID:      models.FlowSiloLoad,
		Initial: stLoadLot,
		States: map[models.StateID]*State{
			stLoadLot: {
				ID:   stLoadLot,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "Ingrese el código de lote del alimento:"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldLotCode, Validate: LotCodeValidator(), Next: stLoadConfirmLot},
				},
			},
			stLoadConfirmLot: {
				ID:   stLoadConfirmLot,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("🌾 Lote ingresado: %s", sess.Fields.Text(models.FieldLotCode)))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stLoadTotal},
					{On: ClassReject, Next: stLoadLot},
				},
			},
			stLoadTotal: {
				ID:   stLoadTotal,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "¿Cuántas toneladas trae el camión según la remisión? (use coma para decimales):"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldDeclared, Validate: loadTonnes, Next: stLoadConfirmTotal},
				},
			},
			stLoadConfirmTotal: {
				ID:   stLoadConfirmTotal,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("🚚 Carga declarada: %v toneladas", sess.Fields.Dec(models.FieldDeclared)))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stLoadSiloNumber},
					{On: ClassReject, Next: stLoadTotal},
				},
			},
			stLoadSiloNumber: {
				ID:   stLoadSiloNumber,
				Kind: KindAccumulate,
				Prompt: func(sess *models.Session) string {
					if len(siloFills.Items(sess)) == 0 {
						return fmt.Sprintf("Ingrese el número del primer silo a llenar (%s):", siloFills.RemainingHint(sess))
					}
					return fmt.Sprintf("Ingrese el número del siguiente silo (%s):", siloFills.RemainingHint(sess))
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldItemIndex, Validate: siloFills.IndexValidator(), Next: stLoadSiloWeight},
				},
			},
			stLoadSiloWeight: {
				ID:   stLoadSiloWeight,
				Kind: KindInput,
				Prompt: func(sess *models.Session) string {
					return fmt.Sprintf("¿Cuánto peso se cargó en el Silo %d? (en kg, use coma para decimales):", siloFills.StagedIndex(sess))
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldItemValue, Validate: fillWeight, Next: stLoadConfirmSilo},
				},
			},
			stLoadConfirmSilo: {
				ID:   stLoadConfirmSilo,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("⚖️ Silo %d: %v kg", siloFills.StagedIndex(sess), siloFills.StagedValue(sess)))
				},
				Transitions: []Transition{
					{
						On: ClassAccept,
						Action: func(sess *models.Session, _ models.FieldValue) {
							siloFills.Append(sess, models.SubRecord{
								Index:  siloFills.StagedIndex(sess),
								Weight: siloFills.StagedValue(sess),
							})
						},
						Note:     fillSummary,
						NextFunc: nextAfterFill,
					},
					{On: ClassReject, Next: stLoadSiloWeight},
				},
			},
			stLoadAskMore: {
				ID:   stLoadAskMore,
				Kind: KindAccumulate,
				Prompt: func(*models.Session) string {
					return "¿Desea cargar otro silo?\n\n• Sí, agregar otro silo\n• No, terminar"
				},
				Transitions: []Transition{
					{On: ClassMore, Next: stLoadSiloNumber},
					{On: ClassDone, Note: underLoadWarning, Next: stLoadDone},
				},
			},
			stLoadDone: {ID: stLoadDone, Kind: KindTerminal},
		},
		Project: projectSiloLoad,
		Summary: summarizeSiloLoad,
	}
}

// declaredLoadKg converts the declared tonnes to kilograms for comparison
// against the accumulated fills.
func declaredLoadKg(sess *models.Session) float64 {
	return sess.Fields.Dec(models.FieldDeclared) * 1000
}

// nextAfterFill short-circuits the loop when every silo was used or the
// filled total reached the declared load.
func nextAfterFill(sess *models.Session) models.StateID {
	if siloFills.Exhausted(sess) || siloFills.WeightTotal(sess) >= declaredLoadKg(sess) {
		return stLoadDone
	}
	return stLoadAskMore
}

func fillSummary(sess *models.Session) string {
	items := siloFills.Items(sess)
	last := items[len(items)-1]
	total := siloFills.WeightTotal(sess)
	declared := declaredLoadKg(sess)

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Silo %d cargado: %v kg\n\n📊 Resumen actual:\n", last.Index, last.Weight)
	for _, item := range items {
		fmt.Fprintf(&b, "  • Silo %d: %v kg\n", item.Index, item.Weight)
	}
	fmt.Fprintf(&b, "━━━━━━━━━━━━━━━━\nTotal cargado: %v kg\nCarga declarada: %v kg", total, declared)

	if total >= declared {
		if siloScalePolicy.Classify(declared, total) == BandOK {
			b.WriteString("\n\n✅ Total correcto.")
		} else {
			fmt.Fprintf(&b, "\n\n⚠️ EXCESO de %v kg sobre la carga declarada. Verifique los valores.", total-declared)
		}
	} else if siloFills.Exhausted(sess) {
		b.WriteString("\n\n⚠️ Ya se usaron todos los silos.")
	}
	return b.String()
}

// underLoadWarning fires only on the explicit finish step.
func underLoadWarning(sess *models.Session) string {
	total := siloFills.WeightTotal(sess)
	declared := declaredLoadKg(sess)
	if siloScalePolicy.Classify(declared, total) == BandOK {
		return "✅ Totales verificados."
	}
	return fmt.Sprintf("⚠️ ADVERTENCIA: Falta cargar %v kg\nTotal silos: %v kg\nCarga declarada: %v kg", declared-total, total, declared)
}

func projectSiloLoad(sess *models.Session, now time.Time) models.Record {
	rec := models.Record{
		LotCode:     sess.Fields.Text(models.FieldLotCode),
		GrossWeight: declaredLoadKg(sess),
		Items:       sess.Fields.List(models.FieldItems),
		CreatedAt:   now,
	}
	for _, item := range rec.Items {
		rec.ItemsTotal += item.Weight
	}
	return rec
}

func summarizeSiloLoad(rec models.Record) string {
	var b strings.Builder
	b.WriteString("✅ Carga de silos completada\n")
	fmt.Fprintf(&b, "🌾 Lote: %s\n", rec.LotCode)
	fmt.Fprintf(&b, "🚚 Carga declarada: %v kg\n", rec.GrossWeight)
	b.WriteString("📦 Silos:\n")
	for _, item := range rec.Items {
		fmt.Fprintf(&b, "  • Silo %d: %v kg\n", item.Index, item.Weight)
	}
	fmt.Fprintf(&b, "🏋️ Total cargado: %v kg\n", rec.ItemsTotal)
	if !rec.Saved {
		b.WriteString("⚠️ No se pudo guardar en la base de datos; conserve este resumen.\n")
	}
	fmt.Fprintf(&b, "🕒 Fecha: %s", rec.CreatedAt.Format("02/01/2006 15:04"))
	return b.String()
}
