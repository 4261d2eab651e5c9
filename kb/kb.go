package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/de-bkg/gognss/pkg/gnss"

	"github.com/signalsfoundry/gnss-prepro/model"
)

// EndOfDay is the previous-epoch value of a satellite that has never been
// seen. Any real epoch of the day yields a negative elapsed time against it.
const EndOfDay = 86400.0

// ErrUnknownSatellite indicates a label with no slot in the store.
var ErrUnknownSatellite = errors.New("satellite not tracked")

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	// EventStateReset fires whenever a satellite's state is fully reset.
	EventStateReset EventType = iota
	// EventHatchReset fires when a rate check requests a smoother restart.
	EventHatchReset
)

func (t EventType) String() string {
	switch t {
	case EventStateReset:
		return "state"
	case EventHatchReset:
		return "hatch"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when a slot is reset.
type Event struct {
	Type  EventType
	Label string
	SoD   float64
}

// CycleSlipDims sizes the reserved cycle-slip buffers.
type CycleSlipDims struct {
	Points int // geometry-free samples kept for the polynomial fit
	Epochs int // length of the recent-flags ring
}

// CycleSlipState holds the bookkeeping reserved for a future cycle-slip
// detector. Nothing in the preprocessing pipeline reads it yet.
type CycleSlipState struct {
	BuffIdx     int
	FlagIdx     int
	GFPhasePrev []float64
	GFEpochPrev []float64
	Flags       []float64
	Detected    bool
}

// SatelliteState is the persistent per-satellite record carried between
// epochs. Previous phases are stored in metres.
type SatelliteState struct {
	PrevEpoch float64

	PrevC1 float64
	PrevC2 float64
	PrevL1 float64
	PrevL2 float64

	PrevCodeRateL1  float64
	PrevCodeRateL2  float64
	PrevPhaseRateL1 float64
	PrevPhaseRateL2 float64

	// Rate steps of the last epoch that had a positive elapsed time.
	PrevCodeRateStepL1  float64
	PrevCodeRateStepL2  float64
	PrevPhaseRateStepL1 float64
	PrevPhaseRateStepL2 float64

	// ResetHatch forces the smoother to restart on the next epoch.
	ResetHatch  bool
	Ksmooth     float64
	PrevSmooth  float64
	PrevIFPhase float64

	CycleSlip CycleSlipState
}

func (s *SatelliteState) reset(prevEpoch float64, dims CycleSlipDims) {
	*s = SatelliteState{
		PrevEpoch: prevEpoch,

		PrevC1: model.Unset(),
		PrevC2: model.Unset(),
		PrevL1: model.Unset(),
		PrevL2: model.Unset(),

		PrevCodeRateL1:  model.Unset(),
		PrevCodeRateL2:  model.Unset(),
		PrevPhaseRateL1: model.Unset(),
		PrevPhaseRateL2: model.Unset(),

		PrevCodeRateStepL1:  model.Unset(),
		PrevCodeRateStepL2:  model.Unset(),
		PrevPhaseRateStepL1: model.Unset(),
		PrevPhaseRateStepL2: model.Unset(),

		ResetHatch: true,

		CycleSlip: CycleSlipState{
			GFPhasePrev: make([]float64, dims.Points),
			GFEpochPrev: make([]float64, dims.Points),
			Flags:       make([]float64, dims.Epochs),
		},
	}
}

// ClearRates drops the stored rates and steps so the next rate step
// starts unset.
func (s *SatelliteState) ClearRates() {
	s.PrevCodeRateL1 = model.Unset()
	s.PrevCodeRateL2 = model.Unset()
	s.PrevPhaseRateL1 = model.Unset()
	s.PrevPhaseRateL2 = model.Unset()
	s.PrevCodeRateStepL1 = model.Unset()
	s.PrevCodeRateStepL2 = model.Unset()
	s.PrevPhaseRateStepL1 = model.Unset()
	s.PrevPhaseRateStepL2 = model.Unset()
}

// Store is a fixed arena with one SatelliteState per tracked label. Slots
// are addressed by a compact index derived from the label, so lookups do
// not hash. Distinct slots may be mutated from different goroutines; a
// single slot must only be touched by one worker at a time.
type Store struct {
	dims  CycleSlipDims
	slots []SatelliteState

	mu   sync.RWMutex
	subs []func(Event)
}

// NewStore allocates and initialises one slot per tracked label.
func NewStore(dims CycleSlipDims) *Store {
	s := &Store{
		dims:  dims,
		slots: make([]SatelliteState, len(model.TrackedLabels())),
	}
	for i := range s.slots {
		s.slots[i].reset(EndOfDay, dims)
	}
	return s
}

// Len returns the number of slots.
func (s *Store) Len() int { return len(s.slots) }

// Index maps a label to its slot.
func (s *Store) Index(label string) (int, error) {
	sat, err := model.ParseSatellite(label)
	if err != nil {
		return -1, fmt.Errorf("%w: %v", ErrUnknownSatellite, err)
	}
	switch sat.Sys {
	case gnss.SysGPS:
		return sat.PRN - 1, nil
	case gnss.SysGAL:
		return model.MaxPRNGPS + sat.PRN - 1, nil
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownSatellite, label)
}

// State returns the live state for label. Callers mutate it in place.
func (s *Store) State(label string) (*SatelliteState, error) {
	i, err := s.Index(label)
	if err != nil {
		return nil, err
	}
	return s.at(i), nil
}

func (s *Store) at(i int) *SatelliteState {
	return &s.slots[i]
}

// Reset fully reinitialises label's state, taking sod as the new previous
// epoch, and notifies subscribers.
func (s *Store) Reset(label string, sod float64) error {
	st, err := s.State(label)
	if err != nil {
		return err
	}
	st.reset(sod, s.dims)
	s.publish(Event{Type: EventStateReset, Label: label, SoD: sod})
	return nil
}

// RequestHatchReset flags label's smoother for a restart and clears the
// stored rates.
func (s *Store) RequestHatchReset(label string, sod float64) error {
	st, err := s.State(label)
	if err != nil {
		return err
	}
	st.ResetHatch = true
	st.ClearRates()
	s.publish(Event{Type: EventHatchReset, Label: label, SoD: sod})
	return nil
}

// Subscribe registers a callback for store events. It returns an
// unsubscribe function.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
	idx := len(s.subs) - 1

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if idx < 0 || idx >= len(s.subs) {
			return
		}
		s.subs[idx] = nil
		idx = -1
	}
}

func (s *Store) publish(ev Event) {
	s.mu.RLock()
	subs := append([]func(Event){}, s.subs...)
	s.mu.RUnlock()

	// Notify outside the lock so subscribers may call back into the store.
	for _, sub := range subs {
		if sub != nil {
			sub(ev)
		}
	}
}
