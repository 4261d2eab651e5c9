package core

import "github.com/signalsfoundry/gnss-prepro/model"

// Rate is a first derivative and its change since the previous epoch for
// one frequency.
type Rate struct {
	Rate float64 // m/s
	Step float64 // m/s^2
}

// RatePair holds the rates of both frequencies of one measurement type.
type RatePair struct {
	F1, F2 Rate
}

// RateInput carries the current and previous values a rate pair is built
// from. Prev values are unset when there is no baseline.
type RateInput struct {
	Cur1, Cur2   float64
	Prev1, Prev2 float64
	PrevRate1    float64
	PrevRate2    float64
	PrevStep1    float64
	PrevStep2    float64
	DeltaT       float64
}

// Skipped reports whether the rate update must be skipped for this epoch.
func (in RateInput) Skipped() bool {
	return !(in.DeltaT > 0)
}

// ComputeRates derives rate and rate step for both frequencies.
//
// With no positive elapsed time the stored rates and steps are returned
// unchanged. When both previous values are unset the whole pair is unset,
// and a step is unset whenever its previous rate is.
func ComputeRates(in RateInput) RatePair {
	if in.Skipped() {
		return RatePair{
			F1: Rate{Rate: in.PrevRate1, Step: in.PrevStep1},
			F2: Rate{Rate: in.PrevRate2, Step: in.PrevStep2},
		}
	}
	if model.IsUnset(in.Prev1) && model.IsUnset(in.Prev2) {
		return unsetRates()
	}
	return RatePair{
		F1: rateOf(in.Cur1, in.Prev1, in.PrevRate1, in.DeltaT),
		F2: rateOf(in.Cur2, in.Prev2, in.PrevRate2, in.DeltaT),
	}
}

func rateOf(cur, prev, prevRate, dt float64) Rate {
	r := Rate{Rate: model.Unset(), Step: model.Unset()}
	if model.IsUnset(prev) {
		return r
	}
	r.Rate = (cur - prev) / dt
	if !model.IsUnset(prevRate) {
		r.Step = (r.Rate - prevRate) / dt
	}
	return r
}

func unsetRates() RatePair {
	u := Rate{Rate: model.Unset(), Step: model.Unset()}
	return RatePair{F1: u, F2: u}
}
