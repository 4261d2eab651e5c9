// Package sink fans processed epochs out to the run's outputs.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/gnss-prepro/model"
)

// Sink consumes processed epochs in order.
type Sink interface {
	WriteEpoch(ctx context.Context, res *model.EpochResult) error
	Close() error
}

// WriteRecorder is notified of every write attempt. The Prometheus
// collector in internal/observability satisfies it.
type WriteRecorder interface {
	ObserveSinkWrite(sink string, err error)
}

// Target is a named member of a Multi.
type Target struct {
	Name string
	Sink Sink
}

// Named pairs a sink with the name used in logs and metrics.
func Named(name string, s Sink) Target {
	return Target{Name: name, Sink: s}
}

// Multi writes every epoch to all of its targets. A failing target does
// not stop the others; the errors are joined.
type Multi struct {
	targets  []Target
	recorder WriteRecorder
}

// NewMulti builds a fan-out sink. rec may be nil. Nil sinks are dropped.
func NewMulti(rec WriteRecorder, targets ...Target) *Multi {
	m := &Multi{recorder: rec}
	for _, t := range targets {
		if t.Sink != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

// Len returns the number of targets.
func (m *Multi) Len() int { return len(m.targets) }

// WriteEpoch implements Sink.
func (m *Multi) WriteEpoch(ctx context.Context, res *model.EpochResult) error {
	var errs []error
	for _, t := range m.targets {
		err := t.Sink.WriteEpoch(ctx, res)
		if m.recorder != nil {
			m.recorder.ObserveSinkWrite(t.Name, err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every target and joins the errors.
func (m *Multi) Close() error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

// NoClose wraps a sink whose lifetime is owned elsewhere, so that closing
// a per-day Multi leaves it open.
func NoClose(s Sink) Sink {
	if s == nil {
		return nil
	}
	return noClose{s}
}

type noClose struct{ Sink }

func (noClose) Close() error { return nil }
