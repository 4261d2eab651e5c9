package core

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/gnss-prepro/internal/config"
	"github.com/signalsfoundry/gnss-prepro/internal/logging"
	"github.com/signalsfoundry/gnss-prepro/kb"
	"github.com/signalsfoundry/gnss-prepro/model"
)

const tracerName = "github.com/signalsfoundry/gnss-prepro/core"

// ErrNilEpoch is returned when ProcessEpoch is called without an epoch.
var ErrNilEpoch = errors.New("nil epoch")

// EpochMetricsRecorder receives the outcome of every processed epoch.
type EpochMetricsRecorder interface {
	ObserveEpoch(res *model.EpochResult, elapsed time.Duration)
}

// Processor turns aligned raw epochs into cleaned observations. It borrows
// the state store for the duration of each ProcessEpoch call; the caller
// owns the store across the run.
type Processor struct {
	store     *kb.Store
	validator Validator
	hatch     HatchFilter

	// workers bounds per-satellite fan-out. Values below 2 process
	// satellites serially.
	workers int

	log     logging.Logger
	metrics EpochMetricsRecorder
	tracer  trace.Tracer
}

// ProcessorOption customises Processor construction.
type ProcessorOption func(*Processor)

// WithWorkers processes satellites of one epoch on up to n goroutines.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithMetricsRecorder attaches an optional recorder for epoch outcomes.
func WithMetricsRecorder(m EpochMetricsRecorder) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) ProcessorOption {
	return func(p *Processor) {
		if tp != nil {
			p.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewProcessor builds a processor over store using the thresholds in cfg.
func NewProcessor(cfg config.Prepro, store *kb.Store, log logging.Logger, opts ...ProcessorOption) *Processor {
	if log == nil {
		log = logging.Noop()
	}
	p := &Processor{
		store:     store,
		validator: NewValidator(cfg),
		hatch:     HatchFilter{Time: cfg.HatchTime, SteadyFactor: cfg.HatchSteadyFactor},
		log:       log,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// ProcessEpoch runs the preprocessing pipeline on every satellite of
// epoch. Satellites that cannot be aligned or are not tracked are listed
// in the result's Skipped slice; the others are emitted in code-record
// order. The only errors returned are a nil epoch and context
// cancellation.
func (p *Processor) ProcessEpoch(ctx context.Context, epoch *model.Epoch) (*model.EpochResult, error) {
	if epoch == nil {
		return nil, ErrNilEpoch
	}
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "prepro.ProcessEpoch",
		trace.WithAttributes(
			attribute.Float64("epoch.sod", epoch.SoD),
			attribute.Int("epoch.code_records", len(epoch.Codes)),
			attribute.Int("epoch.phase_records", len(epoch.Phases)),
		))
	defer span.End()

	samples, alignErrs := Align(epoch)
	res := model.NewEpochResult(epoch.SoD, len(samples))
	for _, err := range alignErrs {
		var ae *AlignmentError
		if errors.As(err, &ae) {
			res.Skipped = append(res.Skipped, model.SkippedSatellite{Label: ae.Label, Reason: err})
		}
		p.log.Warn(ctx, "satellite skipped",
			logging.Float("sod", epoch.SoD),
			logging.String("error", err.Error()),
		)
	}

	out := make([]model.Observation, len(samples))
	errs := make([]error, len(samples))
	if err := p.processAll(ctx, samples, out, errs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for i, obs := range out {
		if errs[i] != nil {
			res.Skipped = append(res.Skipped, model.SkippedSatellite{Label: samples[i].Label, Reason: errs[i]})
			p.log.Warn(ctx, "satellite skipped",
				logging.Float("sod", epoch.SoD),
				logging.String("sat", samples[i].Label),
				logging.String("error", errs[i].Error()),
			)
			continue
		}
		res.Add(obs)
	}

	valid, steady := 0, 0
	for _, obs := range res.Observations {
		if obs.Valid {
			valid++
		}
		if obs.Status {
			steady++
		}
	}
	span.SetAttributes(
		attribute.Int("epoch.observations", res.Len()),
		attribute.Int("epoch.valid", valid),
		attribute.Int("epoch.steady", steady),
		attribute.Int("epoch.skipped", len(res.Skipped)),
	)
	p.log.Debug(ctx, "epoch processed",
		logging.Float("sod", epoch.SoD),
		logging.Int("observations", res.Len()),
		logging.Int("valid", valid),
		logging.Int("skipped", len(res.Skipped)),
	)
	if p.metrics != nil {
		p.metrics.ObserveEpoch(res, time.Since(start))
	}
	return res, nil
}

// processAll fills out and errs in sample order. Each sample touches only
// its own state slot, so the fan-out needs no locking.
func (p *Processor) processAll(ctx context.Context, samples []model.RawSample, out []model.Observation, errs []error) error {
	if p.workers < 2 {
		for i, raw := range samples {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i], errs[i] = p.processSatellite(raw)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, raw := range samples {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i], errs[i] = p.processSatellite(raw)
			return nil
		})
	}
	return g.Wait()
}

func (p *Processor) processSatellite(raw model.RawSample) (model.Observation, error) {
	sig, err := SignalsForLabel(raw.Label)
	if err != nil {
		return model.Observation{}, err
	}
	st, err := p.store.State(raw.Label)
	if err != nil {
		return model.Observation{}, err
	}

	obs := model.NewObservation(raw)
	obs.L1Meters = raw.L1 * sig.Lambda1
	obs.L2Meters = raw.L2 * sig.Lambda2

	dt := raw.SoD - st.PrevEpoch
	gap := p.validator.CheckDataGap(dt)
	if gap.Reset {
		if err := p.store.Reset(raw.Label, raw.SoD); err != nil {
			return model.Observation{}, err
		}
		dt = 0
	}
	if gap.Reject {
		obs.Reject(model.RejectDataGap)
	}
	p.validator.CheckMeasurements(&obs)

	obs.IFCode = IonoFree(obs.C1, obs.C2, sig.Gamma)
	obs.IFPhase = IonoFree(obs.L1Meters, obs.L2Meters, sig.Gamma)
	obs.GeomFreePhase = GeometryFree(obs.L1Meters, obs.L2Meters)
	obs.SmoothIF = p.hatch.Smooth(st, obs.IFCode, obs.IFPhase, dt)

	codeIn := RateInput{
		Cur1: obs.C1, Cur2: obs.C2,
		Prev1: st.PrevC1, Prev2: st.PrevC2,
		PrevRate1: st.PrevCodeRateL1, PrevRate2: st.PrevCodeRateL2,
		PrevStep1: st.PrevCodeRateStepL1, PrevStep2: st.PrevCodeRateStepL2,
		DeltaT: dt,
	}
	phaseIn := RateInput{
		Cur1: obs.L1Meters, Cur2: obs.L2Meters,
		Prev1: st.PrevL1, Prev2: st.PrevL2,
		PrevRate1: st.PrevPhaseRateL1, PrevRate2: st.PrevPhaseRateL2,
		PrevStep1: st.PrevPhaseRateStepL1, PrevStep2: st.PrevPhaseRateStepL2,
		DeltaT: dt,
	}
	code := ComputeRates(codeIn)
	phase := ComputeRates(phaseIn)
	obs.CodeRateL1, obs.CodeRateStepL1 = code.F1.Rate, code.F1.Step
	obs.CodeRateL2, obs.CodeRateStepL2 = code.F2.Rate, code.F2.Step
	obs.PhaseRateL1, obs.PhaseRateStepL1 = phase.F1.Rate, phase.F1.Step
	obs.PhaseRateL2, obs.PhaseRateStepL2 = phase.F2.Rate, phase.F2.Step

	violated := p.validator.CheckRates(&obs)
	obs.Status = obs.Valid && p.hatch.Steady(st)

	// After a reset the next epoch must see unset previous values.
	if !gap.Reset {
		st.PrevEpoch = raw.SoD
		st.PrevC1, st.PrevC2 = obs.C1, obs.C2
		st.PrevL1, st.PrevL2 = obs.L1Meters, obs.L2Meters
		if !codeIn.Skipped() {
			st.PrevCodeRateL1, st.PrevCodeRateStepL1 = code.F1.Rate, code.F1.Step
			st.PrevCodeRateL2, st.PrevCodeRateStepL2 = code.F2.Rate, code.F2.Step
			st.PrevPhaseRateL1, st.PrevPhaseRateStepL1 = phase.F1.Rate, phase.F1.Step
			st.PrevPhaseRateL2, st.PrevPhaseRateStepL2 = phase.F2.Rate, phase.F2.Step
		}
	}
	if violated {
		if err := p.store.RequestHatchReset(raw.Label, raw.SoD); err != nil {
			return model.Observation{}, err
		}
	}
	return obs, nil
}
