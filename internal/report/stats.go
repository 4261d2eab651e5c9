// Package report summarises a processing day per satellite and exports the
// summary as an XLSX workbook.
package report

import (
	"context"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/gnss-prepro/model"
)

// SatStats accumulates the outcome of one satellite over a day.
type SatStats struct {
	Label  string
	Epochs int
	Valid  int
	Steady int
	// Rejections counts invalid epochs by recorded cause.
	Rejections [model.NumRejectionCauses]int

	elevations []float64
	// IF code minus smoothed IF code on steady epochs.
	residuals []float64
}

// MeanElevation returns the mean elevation over all epochs, or NaN.
func (s *SatStats) MeanElevation() float64 {
	if len(s.elevations) == 0 {
		return math.NaN()
	}
	return stat.Mean(s.elevations, nil)
}

// Residual returns the mean and standard deviation of the code-minus-
// smoothed residuals. The deviation is NaN below two samples.
func (s *SatStats) Residual() (mean, std float64) {
	switch len(s.residuals) {
	case 0:
		return math.NaN(), math.NaN()
	case 1:
		return s.residuals[0], math.NaN()
	}
	return stat.MeanStdDev(s.residuals, nil)
}

// Residuals returns a copy of the steady-state residual series.
func (s *SatStats) Residuals() []float64 {
	return append([]float64(nil), s.residuals...)
}

// Stats collects SatStats for every satellite seen. It implements the
// sink interface so it can sit next to the file outputs.
type Stats struct {
	mu     sync.Mutex
	sats   map[string]*SatStats
	epochs int
}

// NewStats returns an empty accumulator.
func NewStats() *Stats {
	return &Stats{sats: make(map[string]*SatStats)}
}

// WriteEpoch folds one processed epoch into the statistics.
func (s *Stats) WriteEpoch(_ context.Context, res *model.EpochResult) error {
	if res == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs++
	for i := range res.Observations {
		s.add(&res.Observations[i])
	}
	return nil
}

func (s *Stats) add(obs *model.Observation) {
	st, ok := s.sats[obs.Label]
	if !ok {
		st = &SatStats{Label: obs.Label}
		s.sats[obs.Label] = st
	}
	st.Epochs++
	st.elevations = append(st.elevations, obs.Elevation)
	if !obs.Valid {
		if c := int(obs.RejectionCause); c >= 0 && c < model.NumRejectionCauses {
			st.Rejections[c]++
		}
		return
	}
	st.Valid++
	if obs.Status {
		st.Steady++
		r := obs.IFCode - obs.SmoothIF
		if !math.IsNaN(r) {
			st.residuals = append(st.residuals, r)
		}
	}
}

// Close implements the sink interface.
func (s *Stats) Close() error { return nil }

// Epochs returns the number of epochs folded in.
func (s *Stats) Epochs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epochs
}

// Satellites returns the per-satellite statistics sorted by label.
func (s *Stats) Satellites() []*SatStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*SatStats, 0, len(s.sats))
	for _, st := range s.sats {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// RejectionTotals sums rejections over all satellites, by cause.
func (s *Stats) RejectionTotals() [model.NumRejectionCauses]int {
	var total [model.NumRejectionCauses]int
	for _, st := range s.Satellites() {
		for c, n := range st.Rejections {
			total[c] += n
		}
	}
	return total
}
