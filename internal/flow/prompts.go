package flow

import "fmt"

// Shared operator-facing text. Flow-specific questions live beside their
// definitions.
const (
	msgCancelled     = "❌ Operación cancelada."
	msgInvalidInput  = "⚠️ Por favor siga las instrucciones del paso actual."
	msgInvalidPrefix = "⚠️ Entrada inválida:"
	msgStoreDown     = "⚠️ Error al consultar la base de datos. Intente más tarde."
)

func menuPrompt() string {
	return "👋 Bienvenido al sistema de registro.\n\n" +
		"¿Qué desea hacer?\n\n" +
		"1️⃣ Registrar Pesaje\n" +
		"2️⃣ Registrar Carga\n" +
		"3️⃣ Registrar Conteo por Corrales\n" +
		"4️⃣ Registrar Llenado de Silos\n" +
		"5️⃣ Registrar Traslado entre Corrales\n" +
		"6️⃣ Consultar Capacidad de Silos\n" +
		"7️⃣ Restar Peso de Silo\n\n" +
		"Escriba el número de la opción:\n\n" +
		"💡 Escriba 0 en cualquier momento para cancelar"
}

func menuFollowup() string {
	return "\n¿Desea hacer algo más?\n\n" +
		"1️⃣ Registrar Pesaje\n" +
		"2️⃣ Registrar Carga\n" +
		"3️⃣ Registrar Conteo por Corrales\n" +
		"4️⃣ Registrar Llenado de Silos\n" +
		"5️⃣ Registrar Traslado entre Corrales\n" +
		"6️⃣ Consultar Capacidad de Silos\n" +
		"7️⃣ Restar Peso de Silo\n\n" +
		"Escriba el número de la opción:"
}

// confirmPrompt renders the two-option confirm keyboard used after every
// collected answer.
func confirmPrompt(summary string) string {
	return summary + "\n\n" +
		"¿Es correcto?\n\n" +
		"1️⃣ Sí, confirmar\n" +
		"2️⃣ No, editar\n\n" +
		"Escriba el número de la opción:"
}

func msgSiloSubtracted(silo int, kg, total float64) string {
	return fmt.Sprintf("✅ Se restaron %v kg del Silo %d\n\n📦 Capacidad actual del Silo %d: %.1f kg", kg, silo, silo, total)
}
