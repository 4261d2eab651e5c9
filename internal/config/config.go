// Package config loads and validates the preprocessing configuration.
//
// Two encodings are accepted. The native one is the line-oriented scenario
// file used by the operational tool:
//
//	# comment
//	INI_DATE        11/01/2024
//	END_DATE        11/01/2024
//	SAMPLING_RATE   1
//	SAT_ACRONYM     s6an
//	PREPRO_OUT      1
//	RCVR_MASK       10
//	MIN_SNR         1 20
//	MAX_PSR_OUTRNG  1 330000000
//	MAX_DATA_GAP    1 10
//	HATCH_TIME      100
//	HATCH_STATE_F   1
//
// The same settings may also be written as YAML (see the yaml tags below).
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the calendar format of INI_DATE and END_DATE.
const DateLayout = "02/01/2006"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Check is a threshold test that can be switched off.
type Check struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
}

// CycleSlips carries the reserved cycle-slip detector parameters.
type CycleSlips struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"` // cycles
	Epochs    int     `yaml:"epochs"`    // flags kept
	Points    int     `yaml:"points"`    // geometry-free samples for the fit
	Degree    int     `yaml:"degree"`    // fit polynomial degree
}

// Prepro holds every threshold the preprocessing core reads.
type Prepro struct {
	MaskAngle        float64 `yaml:"mask_angle"` // degrees
	MinSNR           Check   `yaml:"min_snr"`    // dB-Hz
	MaxPSROutOfRange Check   `yaml:"max_psr_outrng"`
	MaxCodeRate      Check   `yaml:"max_code_rate"`       // m/s
	MaxCodeRateStep  Check   `yaml:"max_code_rate_step"`  // m/s^2
	MaxPhaseRate     Check   `yaml:"max_phase_rate"`      // m/s
	MaxPhaseRateStep Check   `yaml:"max_phase_rate_step"` // m/s^2
	MaxDataGap       Check   `yaml:"max_data_gap"`        // s
	// DataGapCeiling bounds the gaps that are still reported as DATA_GAP
	// rejections. Longer gaps only reset the satellite.
	DataGapCeiling float64 `yaml:"data_gap_ceiling"`
	// HatchTime is the smoothing time constant in seconds.
	HatchTime float64 `yaml:"hatch_time"`
	// HatchSteadyFactor scales HatchTime into the steady-state threshold.
	HatchSteadyFactor float64    `yaml:"hatch_state_f"`
	CycleSlips        CycleSlips `yaml:"cycle_slips"`
}

// Config is the full scenario configuration.
type Config struct {
	IniDate      time.Time `yaml:"-"`
	EndDate      time.Time `yaml:"-"`
	SamplingRate float64   `yaml:"sampling_rate"`
	SatAcronym   string    `yaml:"sat_acronym"`
	PreproOut    bool      `yaml:"prepro_out"`

	Prepro `yaml:",inline"`
}

// Default returns the documented defaults of the tool.
func Default() Config {
	return Config{
		SamplingRate: 1,
		PreproOut:    true,
		Prepro:       DefaultPrepro(),
	}
}

// DefaultPrepro returns the default thresholds.
func DefaultPrepro() Prepro {
	return Prepro{
		MaskAngle:         10,
		MinSNR:            Check{Enabled: true, Threshold: 20},
		MaxPSROutOfRange:  Check{Enabled: true, Threshold: 330000000},
		MaxCodeRate:       Check{Enabled: true, Threshold: 952},
		MaxCodeRateStep:   Check{Enabled: true, Threshold: 10},
		MaxPhaseRate:      Check{Enabled: true, Threshold: 952},
		MaxPhaseRateStep:  Check{Enabled: true, Threshold: 10},
		MaxDataGap:        Check{Enabled: true, Threshold: 10},
		DataGapCeiling:    1000,
		HatchTime:         100,
		HatchSteadyFactor: 1,
		CycleSlips:        CycleSlips{Threshold: 0.5, Epochs: 3, Points: 7, Degree: 2},
	}
}

// Load reads the configuration at path, picking the decoder from the file
// extension, and validates it.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = decodeYAML(f)
	default:
		cfg, err = Parse(f)
	}
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

type yamlDates struct {
	IniDate string `yaml:"ini_date"`
	EndDate string `yaml:"end_date"`
}

func decodeYAML(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode yaml: %w", err)
	}
	var dates yamlDates
	if err := yaml.Unmarshal(data, &dates); err != nil {
		return Config{}, fmt.Errorf("decode yaml dates: %w", err)
	}
	if cfg.IniDate, err = parseDate("ini_date", dates.IniDate); err != nil {
		return Config{}, err
	}
	if cfg.EndDate, err = parseDate("end_date", dates.EndDate); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseDate(key, value string) (time.Time, error) {
	parts := strings.Split(value, "/")
	if len(parts) != 3 || len(parts[0]) != 2 || len(parts[1]) != 2 || len(parts[2]) != 4 {
		return time.Time{}, fmt.Errorf("%w: wrong date format in %s: %q (want DD/MM/YYYY)", ErrInvalid, key, value)
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return t, nil
}

// Days lists every processing day from IniDate to EndDate inclusive.
func (c Config) Days() []time.Time {
	var days []time.Time
	for d := c.IniDate; !d.After(c.EndDate); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Validate reports every out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.IniDate.IsZero() || c.EndDate.IsZero() {
		add("INI_DATE and END_DATE are required")
	} else if c.EndDate.Before(c.IniDate) {
		add("END_DATE %s before INI_DATE %s", c.EndDate.Format(DateLayout), c.IniDate.Format(DateLayout))
	}
	if math.IsNaN(c.SamplingRate) || c.SamplingRate < 1 || c.SamplingRate > 86400 {
		add("SAMPLING_RATE %g out of range [1, 86400]", c.SamplingRate)
	}
	if c.SatAcronym == "" {
		add("SAT_ACRONYM is required")
	}
	if err := c.Prepro.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate checks the core thresholds against the limits of the tool.
func (p Prepro) Validate() error {
	var errs []error
	inRange := func(key string, v, lo, hi float64) {
		if math.IsNaN(v) || v < lo || v > hi {
			errs = append(errs, fmt.Errorf("%w: %s %g out of range [%g, %g]", ErrInvalid, key, v, lo, hi))
		}
	}

	inRange("RCVR_MASK", p.MaskAngle, 0, 90)
	inRange("MIN_SNR", p.MinSNR.Threshold, 0, 80)
	inRange("MAX_PSR_OUTRNG", p.MaxPSROutOfRange.Threshold, 0, 400000000)
	inRange("MAX_CODE_RATE", p.MaxCodeRate.Threshold, 0, 9000)
	inRange("MAX_CODE_RATE_STEP", p.MaxCodeRateStep.Threshold, 0, 100)
	inRange("MAX_PHASE_RATE", p.MaxPhaseRate.Threshold, 0, 9000)
	inRange("MAX_PHASE_RATE_STEP", p.MaxPhaseRateStep.Threshold, 0, 100)
	inRange("MAX_DATA_GAP", p.MaxDataGap.Threshold, 0, 3600)
	inRange("DATA_GAP_CEILING", p.DataGapCeiling, 0, 86400)
	inRange("HATCH_STATE_F", p.HatchSteadyFactor, 0, 10)
	inRange("HATCH_TIME", p.HatchTime, 1, 3600)

	cs := p.CycleSlips
	inRange("CYCLE_SLIPS threshold", cs.Threshold, 0, 10)
	inRange("CYCLE_SLIPS epochs", float64(cs.Epochs), 1, 10)
	inRange("CYCLE_SLIPS points", float64(cs.Points), 0, 100)
	inRange("CYCLE_SLIPS degree", float64(cs.Degree), 1, 10)

	return errors.Join(errs...)
}
