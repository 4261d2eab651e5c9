package synth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/gnss-prepro/model"
)

// ErrBadTLE reports a two-line element set that cannot be propagated.
var ErrBadTLE = errors.New("invalid TLE")

// TLE is one named two-line element set.
type TLE struct {
	Label        string
	Line1, Line2 string
}

// Orbit propagates one satellite with SGP4/SDP4.
type Orbit struct {
	Label string
	sat   satellite.Satellite
}

// NewOrbit checks the element set and prepares it for propagation.
func NewOrbit(tle TLE) (*Orbit, error) {
	if _, err := model.ParseSatellite(tle.Label); err != nil {
		return nil, err
	}
	if err := checkTLE(tle.Line1, tle.Line2); err != nil {
		return nil, fmt.Errorf("%s: %w", tle.Label, err)
	}
	return &Orbit{
		Label: tle.Label,
		sat:   satellite.TLEToSat(tle.Line1, tle.Line2, satellite.GravityWGS72),
	}, nil
}

// PositionAt returns the ECEF position in metres at t. go-satellite works
// on whole seconds in kilometres; fractional seconds are interpolated.
func (o *Orbit) PositionAt(t time.Time) Vec3 {
	t = t.UTC()
	whole := t.Truncate(time.Second)
	p := o.positionAtSecond(whole)
	if frac := t.Sub(whole).Seconds(); frac > 0 {
		p = p.lerp(o.positionAtSecond(whole.Add(time.Second)), frac)
	}
	return p
}

func (o *Orbit) positionAtSecond(t time.Time) Vec3 {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(o.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	posECEF := satellite.ECIToECEF(posECI, satellite.ThetaG_JD(jd))

	const kmToM = 1000.0
	return Vec3{X: posECEF.X * kmToM, Y: posECEF.Y * kmToM, Z: posECEF.Z * kmToM}
}

// Column ranges of the fields go-satellite parses.
var tleFields = []struct {
	line     int
	from, to int
	name     string
}{
	{1, 18, 32, "epoch"},
	{2, 8, 16, "inclination"},
	{2, 17, 25, "right ascension"},
	{2, 26, 33, "eccentricity"},
	{2, 34, 42, "argument of perigee"},
	{2, 43, 51, "mean anomaly"},
	{2, 52, 63, "mean motion"},
}

func checkTLE(line1, line2 string) error {
	if len(line1) < 69 || !strings.HasPrefix(line1, "1 ") {
		return fmt.Errorf("%w: malformed line 1", ErrBadTLE)
	}
	if len(line2) < 69 || !strings.HasPrefix(line2, "2 ") {
		return fmt.Errorf("%w: malformed line 2", ErrBadTLE)
	}
	if strings.TrimSpace(line1[2:7]) != strings.TrimSpace(line2[2:7]) {
		return fmt.Errorf("%w: catalog numbers differ", ErrBadTLE)
	}
	for _, f := range tleFields {
		line := line1
		if f.line == 2 {
			line = line2
		}
		text := strings.TrimSpace(line[f.from:f.to])
		if f.name == "eccentricity" {
			text = "0." + text
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) {
			return fmt.Errorf("%w: %s %q", ErrBadTLE, f.name, text)
		}
	}
	return nil
}

var prnPattern = regexp.MustCompile(`PRN\s*([GE]?)(\d{1,2})`)

// labelFromName derives a satellite label from a TLE title line. Titles
// that already are labels are used as is; otherwise a "PRN nn" token is
// looked up, GPS unless prefixed with E.
func labelFromName(name string) (string, error) {
	name = strings.TrimSpace(strings.TrimPrefix(name, "0 "))
	if _, err := model.ParseSatellite(name); err == nil {
		return name, nil
	}
	m := prnPattern.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("%w: no satellite label in %q", ErrBadTLE, name)
	}
	sys := m[1]
	if sys == "" {
		sys = "G"
	}
	prn, _ := strconv.Atoi(m[2])
	label := fmt.Sprintf("%s%02d", sys, prn)
	if _, err := model.ParseSatellite(label); err != nil {
		return "", err
	}
	return label, nil
}

// ReadTLEs parses a three-line element file (title, line 1, line 2).
func ReadTLEs(r io.Reader) ([]TLE, error) {
	var (
		out   []TLE
		lines []string
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) < 3 {
			continue
		}
		label, err := labelFromName(lines[0])
		if err != nil {
			return nil, err
		}
		out = append(out, TLE{Label: label, Line1: lines[1], Line2: lines[2]})
		lines = lines[:0]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) != 0 {
		return nil, fmt.Errorf("%w: truncated element set after %q", ErrBadTLE, lines[0])
	}
	return out, nil
}
