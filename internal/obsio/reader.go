// Package obsio reads and writes the text observation files of the
// preprocessing chain: raw OBS input and PREPRO OBS output.
package obsio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/signalsfoundry/gnss-prepro/model"
)

// ErrMalformed wraps every parse failure of an OBS file.
var ErrMalformed = errors.New("malformed observation line")

// Column counts of the two record kinds, including the leading tag.
const (
	codeFields  = 9 // C SOD PRN ELEV AZIM C1 C2 S1 S2
	phaseFields = 5 // P SOD PRN L1 L2
)

type record struct {
	sod   float64
	code  *model.CodeRecord
	phase *model.PhaseRecord
}

// Reader yields one epoch at a time from an OBS stream. An epoch is the
// run of consecutive records sharing the same second of day.
type Reader struct {
	sc      *bufio.Scanner
	lineNum int
	pending *record
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{sc: sc}
}

// ReadEpoch returns the next epoch, or io.EOF once the stream is drained.
func (r *Reader) ReadEpoch() (*model.Epoch, error) {
	first := r.pending
	r.pending = nil
	if first == nil {
		rec, err := r.next()
		if err != nil {
			return nil, err
		}
		first = rec
	}

	ep := &model.Epoch{SoD: first.sod}
	add(ep, first)
	for {
		rec, err := r.next()
		if errors.Is(err, io.EOF) {
			return ep, nil
		}
		if err != nil {
			return nil, err
		}
		if rec.sod != ep.SoD {
			r.pending = rec
			return ep, nil
		}
		add(ep, rec)
	}
}

func add(ep *model.Epoch, rec *record) {
	if rec.code != nil {
		ep.Codes = append(ep.Codes, *rec.code)
	}
	if rec.phase != nil {
		ep.Phases = append(ep.Phases, *rec.phase)
	}
}

func (r *Reader) next() (*record, error) {
	for r.sc.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseLine(strings.Fields(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
		}
		return rec, nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("read obs: %w", err)
	}
	return nil, io.EOF
}

func parseLine(f []string) (*record, error) {
	switch f[0] {
	case "C":
		if len(f) != codeFields {
			return nil, fmt.Errorf("%w: code record has %d fields, want %d", ErrMalformed, len(f), codeFields)
		}
		v, err := floats(f, 3, 4, 5, 6, 7, 8)
		if err != nil {
			return nil, err
		}
		sod, err := parseFloat(f[1])
		if err != nil {
			return nil, err
		}
		return &record{sod: sod, code: &model.CodeRecord{
			Label:     f[2],
			SoD:       sod,
			Elevation: v[0],
			Azimuth:   v[1],
			C1:        v[2],
			C2:        v[3],
			S1:        v[4],
			S2:        v[5],
		}}, nil
	case "P":
		if len(f) != phaseFields {
			return nil, fmt.Errorf("%w: phase record has %d fields, want %d", ErrMalformed, len(f), phaseFields)
		}
		v, err := floats(f, 1, 3, 4)
		if err != nil {
			return nil, err
		}
		return &record{sod: v[0], phase: &model.PhaseRecord{
			Label: f[2],
			SoD:   v[0],
			L1:    v[1],
			L2:    v[2],
		}}, nil
	}
	return nil, fmt.Errorf("%w: unknown record type %q", ErrMalformed, f[0])
}

func floats(f []string, idx ...int) ([]float64, error) {
	out := make([]float64, len(idx))
	for i, j := range idx {
		v, err := parseFloat(f[j])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrMalformed, s)
	}
	return v, nil
}
