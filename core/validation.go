package core

import (
	"math"

	"github.com/signalsfoundry/gnss-prepro/internal/config"
	"github.com/signalsfoundry/gnss-prepro/model"
)

// Validator runs the threshold checks of the preprocessing pipeline. Every
// failing check overwrites the rejection cause of the ones before it.
type Validator struct {
	cfg config.Prepro
}

// NewValidator returns a validator reading thresholds from cfg.
func NewValidator(cfg config.Prepro) Validator {
	return Validator{cfg: cfg}
}

// GapVerdict is the outcome of the data-gap check.
type GapVerdict struct {
	// Reset is set when the gap is long enough to restart the satellite.
	Reset bool
	// Reject is set when the gap must also be reported as DATA_GAP.
	Reject bool
}

// CheckDataGap classifies the elapsed time since the satellite's previous
// epoch. Any gap above the threshold resets the satellite. Only gaps below
// the ceiling are rejected, and only when the check is enabled.
func (v Validator) CheckDataGap(dt float64) GapVerdict {
	if !(dt > v.cfg.MaxDataGap.Threshold) {
		return GapVerdict{}
	}
	return GapVerdict{
		Reset:  true,
		Reject: v.cfg.MaxDataGap.Enabled && dt < v.cfg.DataGapCeiling,
	}
}

// CheckMeasurements applies the elevation mask, C/N0 and pseudorange
// checks to obs.
func (v Validator) CheckMeasurements(obs *model.Observation) {
	if obs.Elevation < v.cfg.MaskAngle {
		obs.Reject(model.RejectMaskAngle)
	}

	if v.cfg.MinSNR.Enabled {
		if obs.S1 < v.cfg.MinSNR.Threshold {
			obs.Reject(model.RejectMinSNRF1)
		} else if obs.S2 < v.cfg.MinSNR.Threshold {
			obs.Reject(model.RejectMinSNRF2)
		}
	}

	if v.cfg.MaxPSROutOfRange.Enabled {
		if obs.C1 > v.cfg.MaxPSROutOfRange.Threshold {
			obs.Reject(model.RejectMaxPSROutOfRangeF1)
		} else if obs.C2 > v.cfg.MaxPSROutOfRange.Threshold {
			obs.Reject(model.RejectMaxPSROutOfRangeF2)
		}
	}
}

// CheckRates applies the phase and code rate checks to the rates already
// stored on obs. It reports whether any of them failed, in which case the
// smoother must restart on the next epoch.
func (v Validator) CheckRates(obs *model.Observation) bool {
	violated := false
	check := func(c config.Check, f1, f2 float64, cause1, cause2 model.RejectionCause) {
		if !c.Enabled {
			return
		}
		// Unset values are NaN and never exceed a threshold.
		if math.Abs(f1) > c.Threshold {
			obs.Reject(cause1)
			violated = true
		} else if math.Abs(f2) > c.Threshold {
			obs.Reject(cause2)
			violated = true
		}
	}

	check(v.cfg.MaxPhaseRate, obs.PhaseRateL1, obs.PhaseRateL2,
		model.RejectMaxPhaseRateF1, model.RejectMaxPhaseRateF2)
	check(v.cfg.MaxPhaseRateStep, obs.PhaseRateStepL1, obs.PhaseRateStepL2,
		model.RejectMaxPhaseRateStepF1, model.RejectMaxPhaseRateStepF2)
	check(v.cfg.MaxCodeRate, obs.CodeRateL1, obs.CodeRateL2,
		model.RejectMaxCodeRateF1, model.RejectMaxCodeRateF2)
	check(v.cfg.MaxCodeRateStep, obs.CodeRateStepL1, obs.CodeRateStepL2,
		model.RejectMaxCodeRateStepF1, model.RejectMaxCodeRateStepF2)

	return violated
}
