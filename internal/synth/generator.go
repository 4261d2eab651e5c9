// Package synth produces synthetic dual-frequency observations from SGP4
// orbits, written in the OBS input format.
package synth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/gnss-prepro/core"
	"github.com/signalsfoundry/gnss-prepro/model"
)

// Generator simulates a static receiver tracking a set of orbits.
type Generator struct {
	Receiver Vec3
	Day      time.Time
	// MaskAngle drops satellites below this elevation (degrees).
	MaskAngle float64
	// ZenithIonoDelay is the first-order delay on f1 at zenith (metres);
	// it grows with 1/sin(elevation).
	ZenithIonoDelay float64

	orbits []*Orbit
}

// NewGenerator builds a generator for the element sets in tles.
func NewGenerator(receiver Vec3, day time.Time, tles []TLE) (*Generator, error) {
	if len(tles) == 0 {
		return nil, errors.New("no element sets")
	}
	g := &Generator{
		Receiver:        receiver,
		Day:             day,
		ZenithIonoDelay: 3,
	}
	for _, tle := range tles {
		o, err := NewOrbit(tle)
		if err != nil {
			return nil, err
		}
		if _, err := core.SignalsForLabel(o.Label); err != nil {
			return nil, err
		}
		g.orbits = append(g.orbits, o)
	}
	return g, nil
}

// Epoch returns the code and phase records of every satellite above the
// mask at sod.
func (g *Generator) Epoch(sod float64) *model.Epoch {
	at := g.Day.Add(time.Duration(sod * float64(time.Second)))
	ep := &model.Epoch{SoD: sod}
	for _, o := range g.orbits {
		elev, az, rng := LookAngles(g.Receiver, o.PositionAt(at))
		if elev < g.MaskAngle || elev <= 0 {
			continue
		}
		code, phase := g.measure(o.Label, sod, elev, az, rng)
		ep.Codes = append(ep.Codes, code)
		ep.Phases = append(ep.Phases, phase)
	}
	return ep
}

func (g *Generator) measure(label string, sod, elev, az, rng float64) (model.CodeRecord, model.PhaseRecord) {
	sig, _ := core.SignalsForLabel(label)
	sinE := math.Max(math.Sin(elev*math.Pi/180), 0.05)
	iono1 := g.ZenithIonoDelay / sinE
	iono2 := sig.Gamma * iono1

	// Constant ambiguities keep the carrier-phase cycles positive.
	sat, _ := model.ParseSatellite(label)
	n1 := float64(1_000_000 * sat.PRN)
	n2 := float64(800_000 * sat.PRN)

	snr := 32 + 18*sinE
	code := model.CodeRecord{
		Label:     label,
		SoD:       sod,
		Elevation: elev,
		Azimuth:   az,
		C1:        rng + iono1,
		C2:        rng + iono2,
		S1:        round(snr, 2),
		S2:        round(snr-4, 2),
	}
	phase := model.PhaseRecord{
		Label: label,
		SoD:   sod,
		L1:    (rng-iono1)/sig.Lambda1 + n1,
		L2:    (rng-iono2)/sig.Lambda2 + n2,
	}
	return code, phase
}

// Generate calls fn with every epoch from start to end inclusive, step
// seconds apart. Epochs with no visible satellite are skipped.
func (g *Generator) Generate(ctx context.Context, start, end, step float64, fn func(*model.Epoch) error) error {
	if step <= 0 {
		return fmt.Errorf("step must be positive, got %g", step)
	}
	for sod := start; sod <= end; sod += step {
		if err := ctx.Err(); err != nil {
			return err
		}
		ep := g.Epoch(sod)
		if len(ep.Codes) == 0 {
			continue
		}
		if err := fn(ep); err != nil {
			return err
		}
	}
	return nil
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
