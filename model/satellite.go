package model

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/de-bkg/gognss/pkg/gnss"
)

// Tracked constellation sizes. Labels outside these ranges are not
// preprocessed.
const (
	MaxPRNGPS     = 32
	MaxPRNGalileo = 36
)

// ErrBadLabel indicates a satellite label that cannot be parsed.
var ErrBadLabel = errors.New("invalid satellite label")

// Satellite identifies one space vehicle, e.g. G05 or E24.
type Satellite struct {
	Sys gnss.System
	PRN int
}

var sysByLetter = map[byte]gnss.System{
	'G': gnss.SysGPS,
	'E': gnss.SysGAL,
}

// ParseSatellite parses a three-character label such as "G01".
func ParseSatellite(label string) (Satellite, error) {
	if len(label) != 3 {
		return Satellite{}, fmt.Errorf("%w: %q", ErrBadLabel, label)
	}
	sys, ok := sysByLetter[label[0]]
	if !ok {
		return Satellite{}, fmt.Errorf("%w: unsupported constellation in %q", ErrBadLabel, label)
	}
	prn, err := strconv.Atoi(label[1:])
	if err != nil {
		return Satellite{}, fmt.Errorf("%w: %q: %v", ErrBadLabel, label, err)
	}
	sat := Satellite{Sys: sys, PRN: prn}
	if prn < 1 || prn > sat.MaxPRN() {
		return Satellite{}, fmt.Errorf("%w: PRN out of range in %q", ErrBadLabel, label)
	}
	return sat, nil
}

// MaxPRN returns the highest PRN tracked for the satellite's constellation.
func (s Satellite) MaxPRN() int {
	switch s.Sys {
	case gnss.SysGPS:
		return MaxPRNGPS
	case gnss.SysGAL:
		return MaxPRNGalileo
	default:
		return 0
	}
}

// String returns the label form, e.g. "G07".
func (s Satellite) String() string {
	return fmt.Sprintf("%s%02d", s.Sys.Abbr(), s.PRN)
}

// TrackedLabels lists every label the preprocessor keeps state for, GPS
// first, in PRN order.
func TrackedLabels() []string {
	labels := make([]string, 0, MaxPRNGPS+MaxPRNGalileo)
	for prn := 1; prn <= MaxPRNGPS; prn++ {
		labels = append(labels, fmt.Sprintf("G%02d", prn))
	}
	for prn := 1; prn <= MaxPRNGalileo; prn++ {
		labels = append(labels, fmt.Sprintf("E%02d", prn))
	}
	return labels
}
