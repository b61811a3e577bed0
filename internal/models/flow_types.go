// Package models defines flow type identifiers to avoid circular imports.
package models

// FlowID identifies a top-level guided workflow.
type FlowID string

// StateID identifies a node inside a flow's state graph.
type StateID string

// FieldKey names one collected answer inside a session.
type FieldKey string

// Flow identifiers.
const (
	FlowWeighing    FlowID = "weighing"
	FlowHaul        FlowID = "haul"
	FlowPenCount    FlowID = "pen_count"
	FlowSiloLoad    FlowID = "silo_load"
	FlowPenTransfer FlowID = "pen_transfer"
	FlowSiloQuery   FlowID = "silo_query"
	FlowSiloSub     FlowID = "silo_subtract"
)

// Field keys shared by several flows.
const (
	FieldIdentity     FieldKey = "identity"
	FieldEmployeeType FieldKey = "employee_type"
	FieldPlate        FieldKey = "plate"
	FieldWeighKind    FieldKey = "weigh_kind"
	FieldCargoType    FieldKey = "cargo_type"
	FieldGrossWeight  FieldKey = "gross_weight"
	FieldDeclared     FieldKey = "declared_total"
	FieldItems        FieldKey = "items"
	FieldItemIndex    FieldKey = "item_index"
	FieldItemValue    FieldKey = "item_value"
	FieldLotCode      FieldKey = "lot_code"
	FieldFuelKind     FieldKey = "fuel_kind"
	FieldLiters       FieldKey = "liters"
	FieldFromPen      FieldKey = "from_pen"
	FieldToPen        FieldKey = "to_pen"
	FieldHeadCount    FieldKey = "head_count"
	FieldSiloWeight   FieldKey = "silo_weight_t"
	FieldSiloNumber   FieldKey = "silo_number"
	FieldSubtract     FieldKey = "subtract_kg"
	FieldPhoto        FieldKey = "photo"
)

// Enumerated tags recorded by branching states.
const (
	WeighKindOrigin      = "origin"
	WeighKindDestination = "destination"

	CargoLivestock = "livestock"
	CargoFuel      = "fuel"
	CargoFeed      = "feed"

	EmployeeTransporter = "transporter"
	EmployeeWorker      = "worker"
)
