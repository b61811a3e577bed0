package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/validate"
)

// Weighing flow ceilings.
const (
	// MaxVehicleWeightKg caps a gross vehicle weight.
	MaxVehicleWeightKg = 100000
	// MaxSiloFillKg caps one silo fill or unload.
	MaxSiloFillKg = 25000
)

// SiloSet is the fixed set of numbered silos on site.
var SiloSet = []int{1, 2, 3, 4}

// Weighing flow states.
const (
	stWeighIdentity        models.StateID = "identity"
	stWeighConfirmIdentity models.StateID = "confirm_identity"
	stWeighEmployee        models.StateID = "employee_type"
	stWeighConfirmEmployee models.StateID = "confirm_employee_type"
	stWeighPlate           models.StateID = "plate"
	stWeighConfirmPlate    models.StateID = "confirm_plate"
	stWeighKind            models.StateID = "weigh_kind"
	stWeighOriginWeight    models.StateID = "origin_weight"
	stWeighConfirmOrigin   models.StateID = "confirm_origin_weight"
	stWeighScaleWeight     models.StateID = "scale_weight"
	stWeighConfirmScale    models.StateID = "confirm_scale_weight"
	stWeighSiloNumber      models.StateID = "silo_number"
	stWeighSiloWeight      models.StateID = "silo_weight"
	stWeighConfirmSilo     models.StateID = "confirm_silo_weight"
	stWeighAskMore         models.StateID = "ask_more_silos"
	stWeighPhoto           models.StateID = "photo"
	stWeighDone            models.StateID = "done"
)

// siloUnloads is the accumulator for the destination unload loop.
var siloUnloads = Accumulator{
	ListField:  models.FieldItems,
	IndexField: models.FieldItemIndex,
	ValueField: models.FieldItemValue,
	Capacity:   SiloSet,
}

// siloScalePolicy reconciles unloaded totals against the scale weight.
var siloScalePolicy = ReconcilePolicy{Tolerance: SiloScaleTolerance, WarnOnFinishOnly: true}

// NewWeighingFlow builds the vehicle weighing flow: operator identity,
// employee type, plate, then either a single origin weight or a destination
// scale weight with a silo unload loop, closed by a photo.
func NewWeighingFlow() *Definition {
	vehicleWeight := WeightValidator(validate.WeightRule{Ceiling: MaxVehicleWeightKg})
	siloWeight := WeightValidator(validate.WeightRule{Ceiling: MaxSiloFillKg})

	return &Definition{
		ID:      models.FlowWeighing,
		Initial: stWeighIdentity,
		States: map[models.StateID]*State{
			stWeighIdentity: {
				ID:   stWeighIdentity,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "Por favor, ingrese su cédula:"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldIdentity, Validate: IdentityValidator(), Next: stWeighConfirmIdentity},
				},
			},
			stWeighConfirmIdentity: {
				ID:   stWeighConfirmIdentity,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("📋 Cédula ingresada: %s", sess.Fields.Text(models.FieldIdentity)))
				},
				Transitions: []Transition{
					{On: ClassAccept, ConfirmsIdentity: true, Next: stWeighEmployee},
					{On: ClassReject, Next: stWeighIdentity},
				},
			},
			stWeighEmployee: {
				ID:   stWeighEmployee,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "¿Es usted transportador o trabajador?\n\n1️⃣ Transportador\n2️⃣ Trabajador\n\nEscriba el número de la opción:"
				},
				Error: "⚠️ Por favor escriba 1 para Transportador o 2 para Trabajador.",
				Transitions: []Transition{
					{On: "transporter", Field: models.FieldEmployeeType, Validate: tagValidator(models.EmployeeTransporter), Next: stWeighConfirmEmployee},
					{On: "worker", Field: models.FieldEmployeeType, Validate: tagValidator(models.EmployeeWorker), Next: stWeighConfirmEmployee},
				},
			},
			stWeighConfirmEmployee: {
				ID:   stWeighConfirmEmployee,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("👷 Tipo seleccionado: %s", employeeLabel(sess.Fields.Text(models.FieldEmployeeType))))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stWeighPlate},
					{On: ClassReject, Next: stWeighEmployee},
				},
			},
			stWeighPlate: {
				ID:   stWeighPlate,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "Ingrese la placa del camión (3 letras y 3 números):"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldPlate, Validate: PlateValidator(), Next: stWeighConfirmPlate},
				},
			},
			stWeighConfirmPlate: {
				ID:   stWeighConfirmPlate,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("🚚 Placa ingresada: %s", sess.Fields.Text(models.FieldPlate)))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stWeighKind},
					{On: ClassReject, Next: stWeighPlate},
				},
			},
			stWeighKind: {
				ID:   stWeighKind,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "Seleccione el tipo de pesaje (Origen o Destino):"
				},
				Transitions: []Transition{
					{On: "origin", Field: models.FieldWeighKind, Validate: tagValidator(models.WeighKindOrigin), Next: stWeighOriginWeight},
					{On: "destination", Field: models.FieldWeighKind, Validate: tagValidator(models.WeighKindDestination), Next: stWeighScaleWeight},
				},
			},
			stWeighOriginWeight: {
				ID:   stWeighOriginWeight,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "Ingrese el peso en kg (use coma para decimales):"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldGrossWeight, Validate: vehicleWeight, Next: stWeighConfirmOrigin},
				},
			},
			stWeighConfirmOrigin: {
				ID:   stWeighConfirmOrigin,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("⚖️ Peso ingresado: %v kg", sess.Fields.Dec(models.FieldGrossWeight)))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stWeighPhoto},
					{On: ClassReject, Next: stWeighOriginWeight},
				},
			},
			stWeighScaleWeight: {
				ID:   stWeighScaleWeight,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "Ingrese el peso de la báscula general (en kg, use coma para decimales):"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldGrossWeight, Validate: vehicleWeight, Next: stWeighConfirmScale},
				},
			},
			stWeighConfirmScale: {
				ID:   stWeighConfirmScale,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("⚖️ Peso de báscula: %v kg", sess.Fields.Dec(models.FieldGrossWeight)))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stWeighSiloNumber},
					{On: ClassReject, Next: stWeighScaleWeight},
				},
			},
			stWeighSiloNumber: {
				ID:   stWeighSiloNumber,
				Kind: KindAccumulate,
				Prompt: func(sess *models.Session) string {
					if len(siloUnloads.Items(sess)) == 0 {
						return fmt.Sprintf("Ingrese el número del primer silo (%s):", siloUnloads.RemainingHint(sess))
					}
					return fmt.Sprintf("Ingrese el número del siguiente silo (%s):", siloUnloads.RemainingHint(sess))
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldItemIndex, Validate: siloUnloads.IndexValidator(), Next: stWeighSiloWeight},
				},
			},
			stWeighSiloWeight: {
				ID:   stWeighSiloWeight,
				Kind: KindInput,
				Prompt: func(sess *models.Session) string {
					return fmt.Sprintf("¿Cuánto peso se descargó en el Silo %d? (en kg, use coma para decimales):", siloUnloads.StagedIndex(sess))
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldItemValue, Validate: siloWeight, Next: stWeighConfirmSilo},
				},
			},
			stWeighConfirmSilo: {
				ID:   stWeighConfirmSilo,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("⚖️ Silo %d: %v kg", siloUnloads.StagedIndex(sess), siloUnloads.StagedValue(sess)))
				},
				Transitions: []Transition{
					{
						On: ClassAccept,
						Action: func(sess *models.Session, _ models.FieldValue) {
							siloUnloads.Append(sess, models.SubRecord{
								Index:  siloUnloads.StagedIndex(sess),
								Weight: siloUnloads.StagedValue(sess),
							})
						},
						Note:     unloadSummary,
						NextFunc: nextAfterUnload,
					},
					{On: ClassReject, Next: stWeighSiloWeight},
				},
			},
			stWeighAskMore: {
				ID:   stWeighAskMore,
				Kind: KindAccumulate,
				Prompt: func(*models.Session) string {
					return "¿Desea descargar en otro silo?\n\n• Sí, agregar otro silo\n• No, terminar"
				},
				Transitions: []Transition{
					{On: ClassMore, Next: stWeighSiloNumber},
					{On: ClassDone, Note: underTargetWarning, Next: stWeighPhoto},
				},
			},
			stWeighPhoto: {
				ID:   stWeighPhoto,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "Envíe la foto del pesaje:"
				},
				Error: "⚠️ Por favor envíe una FOTO del pesaje (no texto).",
				Transitions: []Transition{
					{On: ClassPhoto, Field: models.FieldPhoto, Next: stWeighDone},
				},
			},
			stWeighDone: {ID: stWeighDone, Kind: KindTerminal},
		},
		Project: projectWeighing,
		Summary: summarizeWeighing,
	}
}

// nextAfterUnload decides where the unload loop goes after a committed
// item: straight to the photo when the unused silo set is exhausted or the
// unloaded total has reached the scale weight, otherwise ask for another.
func nextAfterUnload(sess *models.Session) models.StateID {
	total := siloUnloads.WeightTotal(sess)
	scale := sess.Fields.Dec(models.FieldGrossWeight)
	if siloUnloads.Exhausted(sess) || total >= scale {
		return stWeighPhoto
	}
	return stWeighAskMore
}

// unloadSummary renders the running summary after each committed unload,
// classifying the total against the scale weight.
func unloadSummary(sess *models.Session) string {
	items := siloUnloads.Items(sess)
	last := items[len(items)-1]
	total := siloUnloads.WeightTotal(sess)
	scale := sess.Fields.Dec(models.FieldGrossWeight)

	var b strings.Builder
	fmt.Fprintf(&b, "✅ Silo %d registrado: %v kg\n\n📊 Resumen actual:\n", last.Index, last.Weight)
	for _, item := range items {
		fmt.Fprintf(&b, "  • Silo %d: %v kg\n", item.Index, item.Weight)
	}
	fmt.Fprintf(&b, "━━━━━━━━━━━━━━━━\nTotal descargado: %v kg\nPeso báscula: %v kg\nRestante: %v kg", total, scale, scale-total)

	if total >= scale {
		switch siloScalePolicy.Classify(scale, total) {
		case BandOK:
			b.WriteString("\n\n✅ Total correcto.")
		default:
			fmt.Fprintf(&b, "\n\n⚠️ EXCESO de %v kg!\nSe superó el peso de la báscula. Verifique los valores.", total-scale)
		}
	} else if siloUnloads.Exhausted(sess) {
		b.WriteString("\n\n⚠️ Ya se usaron todos los silos.")
	}
	return b.String()
}

// underTargetWarning fires only on the explicit finish step, leaving partial
// entries silent. The exceeded case is classified on every commit instead.
func underTargetWarning(sess *models.Session) string {
	total := siloUnloads.WeightTotal(sess)
	scale := sess.Fields.Dec(models.FieldGrossWeight)
	if siloScalePolicy.Classify(scale, total) == BandOK {
		return "✅ Totales verificados."
	}
	return fmt.Sprintf("⚠️ ADVERTENCIA: Falta descargar %v kg\nTotal silos: %v kg\nPeso báscula: %v kg", scale-total, total, scale)
}

func projectWeighing(sess *models.Session, now time.Time) models.Record {
	rec := models.Record{
		Identity:     sess.Fields.Text(models.FieldIdentity),
		EmployeeType: sess.Fields.Text(models.FieldEmployeeType),
		Plate:        sess.Fields.Text(models.FieldPlate),
		WeighKind:    sess.Fields.Text(models.FieldWeighKind),
		GrossWeight:  sess.Fields.Dec(models.FieldGrossWeight),
		CreatedAt:    now,
	}
	if photo, ok := sess.Fields.Get(models.FieldPhoto); ok {
		rec.Photo = photo.Bytes
	}
	if rec.WeighKind == models.WeighKindDestination {
		rec.Items = sess.Fields.List(models.FieldItems)
		for _, item := range rec.Items {
			rec.ItemsTotal += item.Weight
		}
	}
	return rec
}

func summarizeWeighing(rec models.Record) string {
	var b strings.Builder
	b.WriteString("✅ Registro completado\n")
	fmt.Fprintf(&b, "👤 Cédula: %s\n", rec.Identity)
	fmt.Fprintf(&b, "👷 Tipo: %s\n", employeeLabel(rec.EmployeeType))
	fmt.Fprintf(&b, "🚚 Placa: %s\n", rec.Plate)
	fmt.Fprintf(&b, "⚖️ Pesaje: %s\n", weighKindLabel(rec.WeighKind))

	if rec.WeighKind == models.WeighKindDestination {
		b.WriteString("━━━━━━━━━━━━━━━\n")
		fmt.Fprintf(&b, "📍 Peso Báscula: %v kg\n", rec.GrossWeight)
		b.WriteString("📦 Silos:\n")
		for _, item := range rec.Items {
			fmt.Fprintf(&b, "  • Silo %d: %v kg\n", item.Index, item.Weight)
		}
		fmt.Fprintf(&b, "🏋️ Total Descargado: %v kg\n", rec.ItemsTotal)
		b.WriteString(originComparisonLine(rec))
		b.WriteString("━━━━━━━━━━━━━━━\n")
	} else {
		fmt.Fprintf(&b, "🏋️ Peso: %v kg\n", rec.GrossWeight)
	}

	if !rec.Saved {
		b.WriteString("⚠️ No se pudo guardar en la base de datos; conserve este resumen.\n")
	}
	fmt.Fprintf(&b, "🕒 Fecha: %s", rec.CreatedAt.Format("02/01/2006 15:04"))
	return b.String()
}

// originComparisonLine renders the origin-vs-destination cross-check band
// for a destination record, or the missing-origin note.
func originComparisonLine(rec models.Record) string {
	if rec.OriginWeight == nil {
		return "⚠️ Sin registro de origen previo\n"
	}
	origin := *rec.OriginWeight
	diff := rec.GrossWeight - origin
	abs := diff
	if abs < 0 {
		abs = -abs
	}
	if abs <= OriginDestTolerance {
		return fmt.Sprintf("✅ Origen: %v kg (Diferencia: %.1f kg)\n", origin, abs)
	}
	if diff > 0 {
		return fmt.Sprintf("⚠️ Origen: %v kg (Báscula %.1f kg mayor)\n", origin, abs)
	}
	return fmt.Sprintf("⚠️ Origen: %v kg (Báscula %.1f kg menor)\n", origin, abs)
}

func employeeLabel(tag string) string {
	switch tag {
	case models.EmployeeTransporter:
		return "Transportador"
	case models.EmployeeWorker:
		return "Trabajador"
	}
	return tag
}

func weighKindLabel(tag string) string {
	switch tag {
	case models.WeighKindOrigin:
		return "Origen"
	case models.WeighKindDestination:
		return "Destino"
	}
	return tag
}
