package config

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// param describes one numeric key of the scenario file: how many values it
// takes and the limits each value must respect.
type param struct {
	fields int
	lo, hi []float64
	apply  func(c *Config, v []float64)
}

func flag(v float64) bool { return v == 1 }

var numericParams = map[string]param{
	"SAMPLING_RATE": {1, []float64{1}, []float64{86400}, func(c *Config, v []float64) {
		c.SamplingRate = v[0]
	}},
	"PREPRO_OUT": {1, []float64{0}, []float64{1}, func(c *Config, v []float64) {
		c.PreproOut = flag(v[0])
	}},
	"RCVR_MASK": {1, []float64{0}, []float64{90}, func(c *Config, v []float64) {
		c.MaskAngle = v[0]
	}},
	"MIN_SNR": {2, []float64{0, 0}, []float64{1, 80}, func(c *Config, v []float64) {
		c.MinSNR = Check{Enabled: flag(v[0]), Threshold: v[1]}
	}},
	"CYCLE_SLIPS": {5, []float64{0, 0, 1, 0, 1}, []float64{1, 10, 10, 100, 10}, func(c *Config, v []float64) {
		c.CycleSlips = CycleSlips{
			Enabled:   flag(v[0]),
			Threshold: v[1],
			Epochs:    int(v[2]),
			Points:    int(v[3]),
			Degree:    int(v[4]),
		}
	}},
	"MAX_PSR_OUTRNG": {2, []float64{0, 0}, []float64{1, 400000000}, func(c *Config, v []float64) {
		c.MaxPSROutOfRange = Check{Enabled: flag(v[0]), Threshold: v[1]}
	}},
	"MAX_CODE_RATE": {2, []float64{0, 0}, []float64{1, 9000}, func(c *Config, v []float64) {
		c.MaxCodeRate = Check{Enabled: flag(v[0]), Threshold: v[1]}
	}},
	"MAX_CODE_RATE_STEP": {2, []float64{0, 0}, []float64{1, 100}, func(c *Config, v []float64) {
		c.MaxCodeRateStep = Check{Enabled: flag(v[0]), Threshold: v[1]}
	}},
	"MAX_PHASE_RATE": {2, []float64{0, 0}, []float64{1, 9000}, func(c *Config, v []float64) {
		c.MaxPhaseRate = Check{Enabled: flag(v[0]), Threshold: v[1]}
	}},
	"MAX_PHASE_RATE_STEP": {2, []float64{0, 0}, []float64{1, 100}, func(c *Config, v []float64) {
		c.MaxPhaseRateStep = Check{Enabled: flag(v[0]), Threshold: v[1]}
	}},
	"MAX_DATA_GAP": {2, []float64{0, 0}, []float64{1, 3600}, func(c *Config, v []float64) {
		c.MaxDataGap = Check{Enabled: flag(v[0]), Threshold: v[1]}
	}},
	"DATA_GAP_CEILING": {1, []float64{0}, []float64{86400}, func(c *Config, v []float64) {
		c.DataGapCeiling = v[0]
	}},
	"HATCH_TIME": {1, []float64{1}, []float64{3600}, func(c *Config, v []float64) {
		c.HatchTime = v[0]
	}},
	"HATCH_STATE_F": {1, []float64{0}, []float64{10}, func(c *Config, v []float64) {
		c.HatchSteadyFactor = v[0]
	}},
}

// Parse decodes the line-oriented scenario format. Keys the preprocessor
// does not use (navigation settings, receiver files) are skipped. Parse
// does not run Validate.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) == 1 {
			return Config{}, fmt.Errorf("%w: line %d: parameter %s has no value", ErrInvalid, lineNum, fields[0])
		}
		if err := cfg.set(fields[0], fields[1:]); err != nil {
			return Config{}, fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return cfg, nil
}

func (c *Config) set(key string, values []string) error {
	var err error
	switch key {
	case "INI_DATE":
		if len(values) != 1 {
			return fieldCountError(key, len(values), 1)
		}
		c.IniDate, err = parseDate(key, values[0])
		return err
	case "END_DATE":
		if len(values) != 1 {
			return fieldCountError(key, len(values), 1)
		}
		c.EndDate, err = parseDate(key, values[0])
		return err
	case "SAT_ACRONYM":
		if len(values) != 1 {
			return fieldCountError(key, len(values), 1)
		}
		c.SatAcronym = values[0]
		return nil
	}

	p, ok := numericParams[key]
	if !ok {
		return nil
	}
	if len(values) != p.fields {
		return fieldCountError(key, len(values), p.fields)
	}
	parsed := make([]float64, len(values))
	for i, raw := range values {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: wrong type for %s: %q", ErrInvalid, key, raw)
		}
		if math.IsNaN(v) || v < p.lo[i] || v > p.hi[i] {
			return fmt.Errorf("%w: %s field %d = %g out of range [%g, %g]", ErrInvalid, key, i+1, v, p.lo[i], p.hi[i])
		}
		parsed[i] = v
	}
	p.apply(c, parsed)
	return nil
}

func fieldCountError(key string, got, want int) error {
	if got < want {
		return fmt.Errorf("%w: too few fields (%d) for %s, want %d", ErrInvalid, got, key, want)
	}
	return fmt.Errorf("%w: too many fields (%d) for %s, want %d", ErrInvalid, got, key, want)
}
