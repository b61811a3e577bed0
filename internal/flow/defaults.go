package flow

import "github.com/feedlotops/weighbot/internal/models"

// DefaultMenu binds the main-menu options, in display order, to their flows.
var DefaultMenu = []MenuEntry{
	{On: "menu_weighing", Flow: models.FlowWeighing},
	{On: "menu_haul", Flow: models.FlowHaul},
	{On: "menu_pen_count", Flow: models.FlowPenCount},
	{On: "menu_silo_load", Flow: models.FlowSiloLoad},
	{On: "menu_pen_transfer", Flow: models.FlowPenTransfer},
	{On: "menu_silo_query", Flow: models.FlowSiloQuery},
	{On: "menu_silo_subtract", Flow: models.FlowSiloSub},
}

// NewDefaultRegistry assembles every built-in flow under the default menu.
func NewDefaultRegistry() (*Registry, error) {
	return NewRegistry(DefaultMenu,
		NewWeighingFlow(),
		NewHaulFlow(),
		NewPenCountFlow(),
		NewSiloLoadFlow(),
		NewPenTransferFlow(),
		NewSiloQueryFlow(),
		NewSiloSubtractFlow(),
	)
}
