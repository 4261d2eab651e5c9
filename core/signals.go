package core

import (
	"fmt"

	"github.com/de-bkg/gognss/pkg/gnss"

	"github.com/signalsfoundry/gnss-prepro/kb"
	"github.com/signalsfoundry/gnss-prepro/model"
)

// SpeedOfLight in m/s.
const SpeedOfLight = 299792458.0

// Carrier frequencies in Hz.
const (
	FreqGPSL1  = 1575.42e6
	FreqGPSL2  = 1227.60e6
	FreqGalE1  = 1575.42e6
	FreqGalE5a = 1176.45e6
)

// Signals holds the constants of the two frequencies a constellation is
// tracked on.
type Signals struct {
	F1, F2           float64 // Hz
	Lambda1, Lambda2 float64 // m
	// Gamma is (F1/F2)^2.
	Gamma float64
}

func newSignals(f1, f2 float64) Signals {
	return Signals{
		F1:      f1,
		F2:      f2,
		Lambda1: SpeedOfLight / f1,
		Lambda2: SpeedOfLight / f2,
		Gamma:   (f1 / f2) * (f1 / f2),
	}
}

var (
	gpsSignals = newSignals(FreqGPSL1, FreqGPSL2)
	galSignals = newSignals(FreqGalE1, FreqGalE5a)
)

// SignalsFor returns the frequency plan used for sys.
func SignalsFor(sys gnss.System) (Signals, error) {
	switch sys {
	case gnss.SysGPS:
		return gpsSignals, nil
	case gnss.SysGAL:
		return galSignals, nil
	}
	return Signals{}, fmt.Errorf("%w: no frequency plan for %s", kb.ErrUnknownSatellite, sys.Abbr())
}

// SignalsForLabel selects the frequency plan from a satellite label.
func SignalsForLabel(label string) (Signals, error) {
	sat, err := model.ParseSatellite(label)
	if err != nil {
		return Signals{}, fmt.Errorf("%w: %v", kb.ErrUnknownSatellite, err)
	}
	return SignalsFor(sat.Sys)
}
