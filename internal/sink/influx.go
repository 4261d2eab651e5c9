package sink

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/signalsfoundry/gnss-prepro/model"
)

// DefaultMeasurement is the measurement name of preprocessed observations.
const DefaultMeasurement = "prepro_obs"

// InfluxConfig selects the InfluxDB 2.x bucket receiving observations.
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	// Timeout bounds each HTTP write. Zero keeps the client default.
	Timeout time.Duration
}

// Influx writes one point per emitted observation through the blocking
// write API, so write errors surface on the epoch that caused them.
type Influx struct {
	client      influxdb2.Client
	writer      api.WriteAPIBlocking
	measurement string

	mu  sync.RWMutex
	day time.Time
}

// NewInflux connects a sink to the configured bucket. Point times are
// SoD offsets from the day set with SetDay.
func NewInflux(cfg InfluxConfig) (*Influx, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, errors.New("influx sink requires url, org and bucket")
	}
	opts := influxdb2.DefaultOptions()
	if cfg.Timeout > 0 {
		opts.SetHTTPRequestTimeout(uint(math.Ceil(cfg.Timeout.Seconds())))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = DefaultMeasurement
	}
	return &Influx{
		client:      client,
		writer:      client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
	}, nil
}

// SetDay moves the sink to a new processing day.
func (s *Influx) SetDay(day time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.day = day
}

// WriteEpoch implements Sink.
func (s *Influx) WriteEpoch(ctx context.Context, res *model.EpochResult) error {
	if res == nil || res.Len() == 0 {
		return nil
	}
	s.mu.RLock()
	ts := s.day.Add(time.Duration(res.SoD * float64(time.Second)))
	s.mu.RUnlock()

	points := make([]*write.Point, 0, res.Len())
	for i := range res.Observations {
		points = append(points, s.point(&res.Observations[i], ts))
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write epoch %.0f: %w", res.SoD, err)
	}
	return nil
}

func (s *Influx) point(obs *model.Observation, ts time.Time) *write.Point {
	p := influxdb2.NewPointWithMeasurement(s.measurement).
		AddTag("sat", obs.Label).
		AddTag("const", constellation(obs.Label)).
		AddTag("valid", strconv.FormatBool(obs.Valid)).
		AddField("elevation", obs.Elevation).
		AddField("azimuth", obs.Azimuth).
		AddField("cause", int64(obs.RejectionCause)).
		AddField("status", obs.Status).
		SetTime(ts)
	// Line protocol has no NaN, so unset values are left out.
	for name, v := range map[string]float64{
		"c1":          obs.C1,
		"c2":          obs.C2,
		"s1":          obs.S1,
		"s2":          obs.S2,
		"l1_m":        obs.L1Meters,
		"l2_m":        obs.L2Meters,
		"geom_free":   obs.GeomFreePhase,
		"if_code":     obs.IFCode,
		"if_phase":    obs.IFPhase,
		"smooth_if":   obs.SmoothIF,
		"code_rate1":  obs.CodeRateL1,
		"code_rate2":  obs.CodeRateL2,
		"phase_rate1": obs.PhaseRateL1,
		"phase_rate2": obs.PhaseRateL2,
		"code_step1":  obs.CodeRateStepL1,
		"code_step2":  obs.CodeRateStepL2,
		"phase_step1": obs.PhaseRateStepL1,
		"phase_step2": obs.PhaseRateStepL2,
	} {
		if !model.IsUnset(v) && !math.IsInf(v, 0) {
			p.AddField(name, v)
		}
	}
	return p
}

// Close releases the client's idle connections.
func (s *Influx) Close() error {
	s.client.Close()
	return nil
}

func constellation(label string) string {
	sat, err := model.ParseSatellite(label)
	if err != nil {
		return "unknown"
	}
	return sat.Sys.Abbr()
}
