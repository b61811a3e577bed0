package flow

import "math"

// Band classifies a numeric reconciliation outcome.
type Band int

const (
	// BandOK: within tolerance, silent pass.
	BandOK Band = iota
	// BandWarn: over tolerance but not alarming; warn and continue.
	BandWarn
	// BandAlarm: over the alarm threshold; warn and notify the
	// supervising channel.
	BandAlarm
)

// Reconciliation tolerances observed across the flows.
const (
	// SiloScaleTolerance bounds sum(silo unloads) vs the declared scale
	// weight, in weight units.
	SiloScaleTolerance = 0.1
	// OriginDestTolerance bounds the destination scale weight vs the
	// last origin weight for the same plate.
	OriginDestTolerance = 1.0
	// VehicleAlarmThreshold is the vehicle-level discrepancy above which
	// the supervising channel is notified.
	VehicleAlarmThreshold = 100.0
)

// ReconcilePolicy is one flow's target-sum rule. The two observed
// under/over-target policies stay separate knobs: WarnOnFinishOnly defers
// the under-target warning to the explicit "finish" step, while the exceeded
// case always classifies immediately.
type ReconcilePolicy struct {
	Tolerance        float64
	AlarmThreshold   float64
	WarnOnFinishOnly bool
}

// Classify places the difference between target and sum into a band.
func (p ReconcilePolicy) Classify(target, sum float64) Band {
	diff := math.Abs(sum - target)
	if diff <= p.Tolerance {
		return BandOK
	}
	if p.AlarmThreshold > 0 && diff > p.AlarmThreshold {
		return BandAlarm
	}
	return BandWarn
}
