package core

import (
	"math"

	"github.com/signalsfoundry/gnss-prepro/kb"
)

// HatchFilter smooths the ionosphere-free code with the ionosphere-free
// phase. Its per-satellite memory lives in kb.SatelliteState.
type HatchFilter struct {
	// Time is the smoothing constant T in seconds.
	Time float64
	// SteadyFactor scales Time into the maturity threshold.
	SteadyFactor float64
}

// Smooth advances the filter by one epoch and returns the smoothed code.
//
// A pending reset restarts the filter with K = min(1, Time) and the raw
// code as the smoothed value. Otherwise K grows by dt (negative dt counts
// as zero) up to Time and the new value is blended with weight dt/K,
// capped at 1.
func (h HatchFilter) Smooth(st *kb.SatelliteState, ifCode, ifPhase, dt float64) float64 {
	if st.ResetHatch {
		st.Ksmooth = math.Min(1, h.Time)
		st.PrevSmooth = ifCode
		st.PrevIFPhase = ifPhase
		st.ResetHatch = false
		return ifCode
	}

	if dt < 0 {
		dt = 0
	}
	st.Ksmooth = math.Min(st.Ksmooth+dt, h.Time)
	alpha := math.Min(dt/st.Ksmooth, 1)
	smoothed := alpha*ifCode + (1-alpha)*(st.PrevSmooth+ifPhase-st.PrevIFPhase)

	st.PrevSmooth = smoothed
	st.PrevIFPhase = ifPhase
	return smoothed
}

// Steady reports whether the filter has accumulated enough smoothing time
// for its output to be trusted.
func (h HatchFilter) Steady(st *kb.SatelliteState) bool {
	return st.Ksmooth >= h.SteadyFactor*h.Time
}
