package core

import (
	"fmt"

	"github.com/signalsfoundry/gnss-prepro/model"
)

// AlignmentError reports a satellite whose code and phase records do not
// pair up within one epoch. The satellite is skipped for that epoch only.
type AlignmentError struct {
	Label  string
	SoD    float64
	Reason string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("epoch %.0f: satellite %s: %s", e.SoD, e.Label, e.Reason)
}

// Align pairs every code record of epoch with the phase record of the
// same satellite. Samples come back in code-record order. Records that
// cannot be paired are returned as *AlignmentError values.
func Align(epoch *model.Epoch) ([]model.RawSample, []error) {
	phases := make(map[string]model.PhaseRecord, len(epoch.Phases))
	var errs []error
	for _, p := range epoch.Phases {
		if _, dup := phases[p.Label]; dup {
			errs = append(errs, &AlignmentError{Label: p.Label, SoD: epoch.SoD, Reason: "duplicate phase record"})
			continue
		}
		phases[p.Label] = p
	}

	samples := make([]model.RawSample, 0, len(epoch.Codes))
	used := make(map[string]bool, len(epoch.Codes))
	for _, c := range epoch.Codes {
		if used[c.Label] {
			errs = append(errs, &AlignmentError{Label: c.Label, SoD: epoch.SoD, Reason: "duplicate code record"})
			continue
		}
		p, ok := phases[c.Label]
		if !ok {
			errs = append(errs, &AlignmentError{Label: c.Label, SoD: epoch.SoD, Reason: "code record without phase"})
			continue
		}
		used[c.Label] = true
		samples = append(samples, model.RawSample{
			Label:     c.Label,
			SoD:       epoch.SoD,
			Elevation: c.Elevation,
			Azimuth:   c.Azimuth,
			C1:        c.C1,
			C2:        c.C2,
			L1:        p.L1,
			L2:        p.L2,
			S1:        c.S1,
			S2:        c.S2,
		})
	}

	for _, p := range epoch.Phases {
		if _, seen := used[p.Label]; seen {
			continue
		}
		used[p.Label] = false
		errs = append(errs, &AlignmentError{Label: p.Label, SoD: epoch.SoD, Reason: "phase record without code"})
	}
	return samples, errs
}
