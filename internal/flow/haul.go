package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/feedlotops/weighbot/internal/models"
	"github.com/feedlotops/weighbot/internal/validate"
)

// Haul flow bounds.
const (
	// MaxDeliveryHead caps one livestock delivery.
	MaxDeliveryHead = 5000
	// MaxFuelLiters caps one fuel delivery.
	MaxFuelLiters = 10000
	// MaxFeedWeightKg caps one feed delivery.
	MaxFeedWeightKg = 25000
	// MaxPenNumber is the highest numbered pen on site.
	MaxPenNumber = 200
)

// Haul flow states. The detail states branch on the recorded cargo type:
// a driver hauling fuel is asked different questions than one hauling live
// animals.
const (
	stHaulPlate          models.StateID = "plate"
	stHaulConfirmPlate   models.StateID = "confirm_plate"
	stHaulCargo          models.StateID = "cargo_type"
	stHaulConfirmCargo   models.StateID = "confirm_cargo_type"
	stHaulDetail         models.StateID = "cargo_detail"
	stHaulConfirmDetail  models.StateID = "confirm_cargo_detail"
	stHaulDetail2        models.StateID = "cargo_detail_2"
	stHaulConfirmDetail2 models.StateID = "confirm_cargo_detail_2"
	stHaulDone           models.StateID = "done"
)

// NewHaulFlow builds the cargo haul flow: plate, cargo type, then a
// cargo-specific question pair resolved by exact match on the recorded
// cargo field.
func NewHaulFlow() *Definition {
	headCount := CountValidator(validate.CountRule{Min: 1, Max: MaxDeliveryHead})
	liters := WeightValidator(validate.WeightRule{Ceiling: MaxFuelLiters})
	feedWeight := WeightValidator(validate.WeightRule{Ceiling: MaxFeedWeightKg})
	penNumber := CountValidator(validate.CountRule{Min: 1, Max: MaxPenNumber})
	lotCode := LotCodeValidator()

	return &Definition{
		ID:      models.FlowHaul,
		Initial: stHaulPlate,
		States: map[models.StateID]*State{
			stHaulPlate: {
				ID:   stHaulPlate,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "Ingrese la placa del camión (3 letras y 3 números):"
				},
				Transitions: []Transition{
					{On: ClassText, Field: models.FieldPlate, Validate: PlateValidator(), Next: stHaulConfirmPlate},
				},
			},
			stHaulConfirmPlate: {
				ID:   stHaulConfirmPlate,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("🚚 Placa ingresada: %s", sess.Fields.Text(models.FieldPlate)))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stHaulCargo},
					{On: ClassReject, Next: stHaulPlate},
				},
			},
			stHaulCargo: {
				ID:   stHaulCargo,
				Kind: KindInput,
				Prompt: func(*models.Session) string {
					return "¿Qué transporta el camión?\n\n1️⃣ Ganado en pie\n2️⃣ Combustible\n3️⃣ Alimento\n\nEscriba el número de la opción:"
				},
				Error: "⚠️ Por favor escriba 1, 2 o 3 según el tipo de carga.",
				Transitions: []Transition{
					{On: "livestock", Field: models.FieldCargoType, Validate: tagValidator(models.CargoLivestock), Next: stHaulConfirmCargo},
					{On: "fuel", Field: models.FieldCargoType, Validate: tagValidator(models.CargoFuel), Next: stHaulConfirmCargo},
					{On: "feed", Field: models.FieldCargoType, Validate: tagValidator(models.CargoFeed), Next: stHaulConfirmCargo},
				},
			},
			stHaulConfirmCargo: {
				ID:   stHaulConfirmCargo,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					return confirmPrompt(fmt.Sprintf("📦 Carga seleccionada: %s", cargoLabel(sess.Fields.Text(models.FieldCargoType))))
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stHaulDetail},
					{On: ClassReject, Next: stHaulCargo},
				},
			},
			stHaulDetail: {
				ID:   stHaulDetail,
				Kind: KindInput,
				Prompt: func(sess *models.Session) string {
					switch sess.Fields.Text(models.FieldCargoType) {
					case models.CargoLivestock:
						return "¿Cuántos animales trae el camión?"
					case models.CargoFuel:
						return "¿Cuántos litros de combustible? (use coma para decimales):"
					default:
						return "Ingrese el código de lote del alimento:"
					}
				},
				Transitions: []Transition{
					{On: ClassText, When: models.FieldCargoType, Equals: models.CargoLivestock, Field: models.FieldHeadCount, Validate: headCount, Next: stHaulConfirmDetail},
					{On: ClassText, When: models.FieldCargoType, Equals: models.CargoFuel, Field: models.FieldLiters, Validate: liters, Next: stHaulConfirmDetail},
					{On: ClassText, When: models.FieldCargoType, Equals: models.CargoFeed, Field: models.FieldLotCode, Validate: lotCode, Next: stHaulConfirmDetail},
				},
			},
			stHaulConfirmDetail: {
				ID:   stHaulConfirmDetail,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					switch sess.Fields.Text(models.FieldCargoType) {
					case models.CargoLivestock:
						return confirmPrompt(fmt.Sprintf("🐂 Animales: %d", sess.Fields.Int(models.FieldHeadCount)))
					case models.CargoFuel:
						return confirmPrompt(fmt.Sprintf("⛽ Litros: %v", sess.Fields.Dec(models.FieldLiters)))
					default:
						return confirmPrompt(fmt.Sprintf("🌾 Lote: %s", sess.Fields.Text(models.FieldLotCode)))
					}
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stHaulDetail2},
					{On: ClassReject, Next: stHaulDetail},
				},
			},
			stHaulDetail2: {
				ID:   stHaulDetail2,
				Kind: KindInput,
				Prompt: func(sess *models.Session) string {
					switch sess.Fields.Text(models.FieldCargoType) {
					case models.CargoLivestock:
						return "¿A qué corral se destinan los animales?"
					case models.CargoFuel:
						return "Ingrese el número de factura o remisión:"
					default:
						return "Ingrese el peso del alimento en kg (use coma para decimales):"
					}
				},
				Transitions: []Transition{
					{On: ClassText, When: models.FieldCargoType, Equals: models.CargoLivestock, Field: models.FieldToPen, Validate: penNumber, Next: stHaulConfirmDetail2},
					{On: ClassText, When: models.FieldCargoType, Equals: models.CargoFuel, Field: models.FieldLotCode, Validate: lotCode, Next: stHaulConfirmDetail2},
					{On: ClassText, When: models.FieldCargoType, Equals: models.CargoFeed, Field: models.FieldGrossWeight, Validate: feedWeight, Next: stHaulConfirmDetail2},
				},
			},
			stHaulConfirmDetail2: {
				ID:   stHaulConfirmDetail2,
				Kind: KindConfirm,
				Prompt: func(sess *models.Session) string {
					switch sess.Fields.Text(models.FieldCargoType) {
					case models.CargoLivestock:
						return confirmPrompt(fmt.Sprintf("🏠 Corral destino: %d", sess.Fields.Int(models.FieldToPen)))
					case models.CargoFuel:
						return confirmPrompt(fmt.Sprintf("🧾 Factura: %s", sess.Fields.Text(models.FieldLotCode)))
					default:
						return confirmPrompt(fmt.Sprintf("⚖️ Peso: %v kg", sess.Fields.Dec(models.FieldGrossWeight)))
					}
				},
				Transitions: []Transition{
					{On: ClassAccept, Next: stHaulDone},
					{On: ClassReject, Next: stHaulDetail2},
				},
			},
			stHaulDone: {ID: stHaulDone, Kind: KindTerminal},
		},
		Project: projectHaul,
		Summary: summarizeHaul,
	}
}

func projectHaul(sess *models.Session, now time.Time) models.Record {
	return models.Record{
		Plate:       sess.Fields.Text(models.FieldPlate),
		CargoType:   sess.Fields.Text(models.FieldCargoType),
		HeadCount:   sess.Fields.Int(models.FieldHeadCount),
		Liters:      sess.Fields.Dec(models.FieldLiters),
		LotCode:     sess.Fields.Text(models.FieldLotCode),
		GrossWeight: sess.Fields.Dec(models.FieldGrossWeight),
		ToPen:       int(sess.Fields.Int(models.FieldToPen)),
		CreatedAt:   now,
	}
}

func summarizeHaul(rec models.Record) string {
	var b strings.Builder
	b.WriteString("✅ Registro de carga completado\n")
	fmt.Fprintf(&b, "🚚 Placa: %s\n", rec.Plate)
	fmt.Fprintf(&b, "📦 Carga: %s\n", cargoLabel(rec.CargoType))
	switch rec.CargoType {
	case models.CargoLivestock:
		fmt.Fprintf(&b, "🐂 Animales: %d\n🏠 Corral destino: %d\n", rec.HeadCount, rec.ToPen)
	case models.CargoFuel:
		fmt.Fprintf(&b, "⛽ Litros: %v\n🧾 Factura: %s\n", rec.Liters, rec.LotCode)
	default:
		fmt.Fprintf(&b, "🌾 Lote: %s\n⚖️ Peso: %v kg\n", rec.LotCode, rec.GrossWeight)
	}
	if !rec.Saved {
		b.WriteString("⚠️ No se pudo guardar en la base de datos; conserve este resumen.\n")
	}
	fmt.Fprintf(&b, "🕒 Fecha: %s", rec.CreatedAt.Format("02/01/2006 15:04"))
	return b.String()
}

func cargoLabel(tag string) string {
	switch tag {
	case models.CargoLivestock:
		return "Ganado en pie"
	case models.CargoFuel:
		return "Combustible"
	case models.CargoFeed:
		return "Alimento"
	}
	return tag
}
