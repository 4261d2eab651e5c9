package observability

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/gnss-prepro/kb"
	"github.com/signalsfoundry/gnss-prepro/model"
)

// PreproCollector bundles Prometheus metrics for the preprocessing run and
// exposes them over HTTP.
type PreproCollector struct {
	gatherer prometheus.Gatherer

	Epochs        prometheus.Counter
	Observations  *prometheus.CounterVec
	Rejections    *prometheus.CounterVec
	Skipped       *prometheus.CounterVec
	EpochDuration prometheus.Histogram

	TrackedSatellites prometheus.Gauge
	SteadySatellites  prometheus.Gauge
	LastEpochSoD      prometheus.Gauge

	SinkWrites *prometheus.CounterVec
}

// NewPreproCollector registers preprocessing metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewPreproCollector(reg prometheus.Registerer) (*PreproCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	epochs, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prepro_epochs_total",
		Help: "Total number of processed epochs.",
	}), "prepro_epochs_total")
	if err != nil {
		return nil, err
	}

	observations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prepro_observations_total",
		Help: "Emitted observations, labeled by constellation and validity.",
	}, []string{"constellation", "valid"})
	observations, err = registerCounterVec(reg, observations, "prepro_observations_total")
	if err != nil {
		return nil, err
	}

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prepro_rejections_total",
		Help: "Rejected observations, labeled by the recorded rejection cause.",
	}, []string{"cause"})
	rejections, err = registerCounterVec(reg, rejections, "prepro_rejections_total")
	if err != nil {
		return nil, err
	}

	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prepro_skipped_satellites_total",
		Help: "Satellites left out of an epoch, labeled by reason (alignment or untracked).",
	}, []string{"reason"})
	skipped, err = registerCounterVec(reg, skipped, "prepro_skipped_satellites_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "prepro_epoch_duration_seconds",
		Help:    "Wall time spent processing one epoch.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}), "prepro_epoch_duration_seconds")
	if err != nil {
		return nil, err
	}

	tracked, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "prepro_tracked_satellites",
		Help: "Satellites emitted in the last processed epoch.",
	}), "prepro_tracked_satellites")
	if err != nil {
		return nil, err
	}
	steady, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "prepro_steady_satellites",
		Help: "Satellites whose smoother reported steady state in the last processed epoch.",
	}), "prepro_steady_satellites")
	if err != nil {
		return nil, err
	}
	lastSoD, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "prepro_last_epoch_sod_seconds",
		Help: "Second of day of the last processed epoch.",
	}), "prepro_last_epoch_sod_seconds")
	if err != nil {
		return nil, err
	}

	sinkWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prepro_sink_writes_total",
		Help: "Epoch writes to output sinks, labeled by sink and result.",
	}, []string{"sink", "result"})
	sinkWrites, err = registerCounterVec(reg, sinkWrites, "prepro_sink_writes_total")
	if err != nil {
		return nil, err
	}

	return &PreproCollector{
		gatherer:          gatherer,
		Epochs:            epochs,
		Observations:      observations,
		Rejections:        rejections,
		Skipped:           skipped,
		EpochDuration:     duration,
		TrackedSatellites: tracked,
		SteadySatellites:  steady,
		LastEpochSoD:      lastSoD,
		SinkWrites:        sinkWrites,
	}, nil
}

// ObserveEpoch records the outcome of one processed epoch.
func (c *PreproCollector) ObserveEpoch(res *model.EpochResult, elapsed time.Duration) {
	if c == nil || res == nil {
		return
	}
	c.Epochs.Inc()
	c.EpochDuration.Observe(elapsed.Seconds())
	c.LastEpochSoD.Set(res.SoD)

	steady := 0
	for _, obs := range res.Observations {
		valid := "true"
		if !obs.Valid {
			valid = "false"
			c.Rejections.WithLabelValues(obs.RejectionCause.String()).Inc()
		}
		c.Observations.WithLabelValues(constellation(obs.Label), valid).Inc()
		if obs.Status {
			steady++
		}
	}
	for _, s := range res.Skipped {
		reason := "alignment"
		if errors.Is(s.Reason, kb.ErrUnknownSatellite) {
			reason = "untracked"
		}
		c.Skipped.WithLabelValues(reason).Inc()
	}
	c.TrackedSatellites.Set(float64(res.Len()))
	c.SteadySatellites.Set(float64(steady))
}

// ObserveSinkWrite counts one write attempt to the named sink.
func (c *PreproCollector) ObserveSinkWrite(sink string, err error) {
	if c == nil || c.SinkWrites == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.SinkWrites.WithLabelValues(sink, result).Inc()
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *PreproCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PreproCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func constellation(label string) string {
	sat, err := model.ParseSatellite(label)
	if err != nil {
		return "unknown"
	}
	return sat.Sys.Abbr()
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
