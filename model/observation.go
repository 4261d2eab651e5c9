package model

import "math"

// Unset returns the sentinel used for values that have no valid baseline
// yet (previous-epoch measurements, rates, combinations).
func Unset() float64 { return math.NaN() }

// IsUnset reports whether v carries the unset sentinel.
func IsUnset(v float64) bool { return math.IsNaN(v) }

// CodeRecord is one "C" line of an OBS file: geometry, pseudoranges and
// carrier-to-noise ratios for one satellite at one epoch.
type CodeRecord struct {
	Label     string
	SoD       float64
	Elevation float64 // degrees
	Azimuth   float64 // degrees
	C1        float64 // metres
	C2        float64 // metres
	S1        float64 // dB-Hz
	S2        float64 // dB-Hz
}

// PhaseRecord is one "P" line of an OBS file: carrier phases in cycles.
type PhaseRecord struct {
	Label string
	SoD   float64
	L1    float64
	L2    float64
}

// Epoch groups every record sharing one sampling instant. Codes keep file
// order; that order is the output order of the processed epoch.
type Epoch struct {
	SoD    float64
	Codes  []CodeRecord
	Phases []PhaseRecord
}

// RawSample is one satellite's paired code and phase inputs for an epoch.
type RawSample struct {
	Label     string
	SoD       float64
	Elevation float64
	Azimuth   float64
	C1        float64
	C2        float64
	L1        float64 // cycles
	L2        float64 // cycles
	S1        float64
	S2        float64
}

// Observation is the cleaned per-satellite output of one epoch.
type Observation struct {
	Label     string
	SoD       float64
	Elevation float64
	Azimuth   float64

	C1       float64
	C2       float64
	L1       float64 // cycles
	L2       float64 // cycles
	L1Meters float64
	L2Meters float64
	S1       float64
	S2       float64

	// Valid is false when any check rejected the measurement.
	Valid          bool
	RejectionCause RejectionCause
	// Status is true once the Hatch filter reached steady state on a valid
	// measurement. Consumers should trust SmoothIF only when it is set.
	Status bool

	GeomFreePhase float64
	IFCode        float64
	IFPhase       float64
	SmoothIF      float64

	CodeRateL1      float64
	CodeRateStepL1  float64
	PhaseRateL1     float64
	PhaseRateStepL1 float64
	CodeRateL2      float64
	CodeRateStepL2  float64
	PhaseRateL2     float64
	PhaseRateStepL2 float64
}

// NewObservation seeds an observation from a raw sample. Derived values
// start unset and the measurement starts valid.
func NewObservation(raw RawSample) Observation {
	return Observation{
		Label:     raw.Label,
		SoD:       raw.SoD,
		Elevation: raw.Elevation,
		Azimuth:   raw.Azimuth,
		C1:        raw.C1,
		C2:        raw.C2,
		L1:        raw.L1,
		L2:        raw.L2,
		S1:        raw.S1,
		S2:        raw.S2,

		Valid: true,

		GeomFreePhase: Unset(),
		IFCode:        Unset(),
		IFPhase:       Unset(),
		SmoothIF:      Unset(),

		CodeRateL1:      Unset(),
		CodeRateStepL1:  Unset(),
		PhaseRateL1:     Unset(),
		PhaseRateStepL1: Unset(),
		CodeRateL2:      Unset(),
		CodeRateStepL2:  Unset(),
		PhaseRateL2:     Unset(),
		PhaseRateStepL2: Unset(),
	}
}

// Reject marks the observation invalid and records cause, replacing any
// earlier cause from the same epoch.
func (o *Observation) Reject(cause RejectionCause) {
	o.Valid = false
	o.RejectionCause = cause
}

// EpochResult is the ordered set of observations produced for one epoch.
type EpochResult struct {
	SoD          float64
	Observations []Observation
	// Skipped lists labels dropped from this epoch with the reason.
	Skipped []SkippedSatellite

	index map[string]int
}

// SkippedSatellite records a satellite left out of an epoch.
type SkippedSatellite struct {
	Label  string
	Reason error
}

// NewEpochResult allocates a result for n satellites.
func NewEpochResult(sod float64, n int) *EpochResult {
	return &EpochResult{
		SoD:          sod,
		Observations: make([]Observation, 0, n),
		index:        make(map[string]int, n),
	}
}

// Add appends obs, keeping insertion order.
func (r *EpochResult) Add(obs Observation) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	r.index[obs.Label] = len(r.Observations)
	r.Observations = append(r.Observations, obs)
}

// Lookup returns the observation for label, if present.
func (r *EpochResult) Lookup(label string) (Observation, bool) {
	if r == nil {
		return Observation{}, false
	}
	i, ok := r.index[label]
	if !ok {
		return Observation{}, false
	}
	return r.Observations[i], true
}

// Len returns the number of emitted observations.
func (r *EpochResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Observations)
}
