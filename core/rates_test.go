package core

import (
	"math"
	"testing"

	"github.com/de-bkg/gognss/pkg/gnss"

	"github.com/signalsfoundry/gnss-prepro/kb"
	"github.com/signalsfoundry/gnss-prepro/model"
)

func TestSignalsForConstellations(t *testing.T) {
	gps, err := SignalsFor(gnss.SysGPS)
	if err != nil {
		t.Fatalf("SignalsFor(GPS): %v", err)
	}
	if math.Abs(gps.Lambda1-0.19029367) > 1e-8 || math.Abs(gps.Lambda2-0.24421021) > 1e-8 {
		t.Fatalf("GPS wavelengths = %v / %v", gps.Lambda1, gps.Lambda2)
	}
	if math.Abs(gps.Gamma-(77.0/60.0)*(77.0/60.0)) > 1e-12 {
		t.Fatalf("GPS gamma = %v", gps.Gamma)
	}

	gal, err := SignalsForLabel("E11")
	if err != nil {
		t.Fatalf("SignalsForLabel(E11): %v", err)
	}
	if math.Abs(gal.Gamma-(154.0/115.0)*(154.0/115.0)) > 1e-12 {
		t.Fatalf("Galileo gamma = %v", gal.Gamma)
	}

	if _, err := SignalsFor(gnss.SysGLO); err == nil {
		t.Fatalf("expected error for GLONASS")
	}
	if _, err := SignalsForLabel("C07"); err == nil {
		t.Fatalf("expected error for unknown label")
	}
}

func TestIonoFreeRemovesFirstOrderDelay(t *testing.T) {
	sig := gpsSignals
	const rho = 21_000_000.0
	const iono1 = 4.2
	// First-order delay scales with 1/f^2.
	c1 := rho + iono1
	c2 := rho + iono1*sig.Gamma

	if got := IonoFree(c1, c2, sig.Gamma); math.Abs(got-rho) > 1e-6 {
		t.Fatalf("IonoFree = %.6f, want %.6f", got, rho)
	}
	if got := GeometryFree(10, 4); got != 6 {
		t.Fatalf("GeometryFree = %v", got)
	}
}

func TestComputeRates(t *testing.T) {
	u := model.Unset()

	t.Run("no baseline", func(t *testing.T) {
		got := ComputeRates(RateInput{Cur1: 1, Cur2: 2, Prev1: u, Prev2: u, PrevRate1: u, PrevRate2: u, PrevStep1: u, PrevStep2: u, DeltaT: 1})
		if !model.IsUnset(got.F1.Rate) || !model.IsUnset(got.F2.Step) {
			t.Fatalf("expected unset rates, got %+v", got)
		}
	})

	t.Run("rate without previous rate", func(t *testing.T) {
		got := ComputeRates(RateInput{Cur1: 130, Cur2: 60, Prev1: 100, Prev2: 0, PrevRate1: u, PrevRate2: u, DeltaT: 30})
		if got.F1.Rate != 1 || got.F2.Rate != 2 {
			t.Fatalf("rates = %+v", got)
		}
		if !model.IsUnset(got.F1.Step) || !model.IsUnset(got.F2.Step) {
			t.Fatalf("steps should be unset, got %+v", got)
		}
	})

	t.Run("rate and step", func(t *testing.T) {
		got := ComputeRates(RateInput{Cur1: 110, Cur2: 110, Prev1: 100, Prev2: 100, PrevRate1: 4, PrevRate2: 10, DeltaT: 2})
		if got.F1.Rate != 5 || got.F1.Step != 0.5 || got.F2.Step != -2.5 {
			t.Fatalf("rates = %+v", got)
		}
	})

	t.Run("non-positive dt keeps stored values", func(t *testing.T) {
		for _, dt := range []float64{0, -5} {
			got := ComputeRates(RateInput{Cur1: 1e9, Cur2: 1e9, Prev1: 100, Prev2: 100, PrevRate1: 7, PrevRate2: 8, PrevStep1: 0.1, PrevStep2: u, DeltaT: dt})
			if got.F1.Rate != 7 || got.F2.Rate != 8 || got.F1.Step != 0.1 || !model.IsUnset(got.F2.Step) {
				t.Fatalf("dt=%v: rates = %+v", dt, got)
			}
		}
	})
}

func TestHatchFilterTransitions(t *testing.T) {
	h := HatchFilter{Time: 4, SteadyFactor: 1}
	st := &kb.SatelliteState{ResetHatch: true}

	if got := h.Smooth(st, 100, 50, 0); got != 100 || st.Ksmooth != 1 || st.ResetHatch {
		t.Fatalf("reset transition: got %v, state %+v", got, st)
	}

	// Phase advances 1 m while the code reads 2 m further: K=2, alpha=1/2.
	got := h.Smooth(st, 102, 51, 1)
	if st.Ksmooth != 2 || got != 0.5*102+0.5*(100+1) {
		t.Fatalf("steady step: got %v, K=%v", got, st.Ksmooth)
	}

	h.Smooth(st, 102, 51, 10)
	if st.Ksmooth != 4 {
		t.Fatalf("K must be capped at T, got %v", st.Ksmooth)
	}
	if !h.Steady(st) {
		t.Fatalf("filter should be steady at K=T")
	}

	before := st.Ksmooth
	h.Smooth(st, 102, 51, -3)
	if st.Ksmooth != before {
		t.Fatalf("negative dt must not shrink K")
	}

	st.ResetHatch = true
	if got := h.Smooth(st, 7, 3, 1); got != 7 || st.Ksmooth != 1 {
		t.Fatalf("second reset: got %v K=%v", got, st.Ksmooth)
	}
	if h.Steady(st) {
		t.Fatalf("filter must not be steady right after a reset")
	}
}

func TestHatchFilterShortTimeConstant(t *testing.T) {
	h := HatchFilter{Time: 0.5, SteadyFactor: 1}
	st := &kb.SatelliteState{ResetHatch: true}

	h.Smooth(st, 100, 50, 0)
	if st.Ksmooth != 0.5 {
		t.Fatalf("K after reset = %v, want capped at T", st.Ksmooth)
	}
	if got := h.Smooth(st, 103, 51, 1); got != 103 || st.Ksmooth != 0.5 {
		t.Fatalf("got %v K=%v, want raw code and K=T", got, st.Ksmooth)
	}
}

func TestValidatorQualityChecks(t *testing.T) {
	v := NewValidator(testPrepro())
	cases := []struct {
		name  string
		mod   func(*model.Observation)
		cause model.RejectionCause
	}{
		{"clean", func(*model.Observation) {}, model.RejectNone},
		{"mask", func(o *model.Observation) { o.Elevation = 5 }, model.RejectMaskAngle},
		{"snr f1", func(o *model.Observation) { o.S1 = 10 }, model.RejectMinSNRF1},
		{"snr f2", func(o *model.Observation) { o.S2 = 10 }, model.RejectMinSNRF2},
		{"snr both reports f1", func(o *model.Observation) { o.S1, o.S2 = 10, 10 }, model.RejectMinSNRF1},
		{"psr f2", func(o *model.Observation) { o.C2 = 4e8 }, model.RejectMaxPSROutOfRangeF2},
		{"last failing check wins", func(o *model.Observation) { o.Elevation, o.S1, o.C1 = 1, 1, 4e8 }, model.RejectMaxPSROutOfRangeF1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obs := model.NewObservation(rawAt("G01", 0, 2.2e7))
			tc.mod(&obs)
			v.CheckMeasurements(&obs)
			if obs.RejectionCause != tc.cause || obs.Valid != (tc.cause == model.RejectNone) {
				t.Fatalf("cause=%v valid=%v, want %v", obs.RejectionCause, obs.Valid, tc.cause)
			}
		})
	}
}

func TestValidatorDisabledChecks(t *testing.T) {
	cfg := testPrepro()
	cfg.MinSNR.Enabled = false
	cfg.MaxCodeRate.Enabled = false
	v := NewValidator(cfg)

	obs := model.NewObservation(rawAt("G01", 0, 2.2e7))
	obs.S1 = 0
	obs.CodeRateL1 = 5000
	v.CheckMeasurements(&obs)
	if v.CheckRates(&obs) || !obs.Valid {
		t.Fatalf("disabled checks must not reject: %+v", obs)
	}
}

func TestValidatorRateOrder(t *testing.T) {
	v := NewValidator(testPrepro())
	obs := model.NewObservation(rawAt("E03", 0, 2.2e7))
	obs.PhaseRateL2 = 2000
	obs.CodeRateStepL1 = -50

	if !v.CheckRates(&obs) {
		t.Fatalf("expected a violation")
	}
	if obs.RejectionCause != model.RejectMaxCodeRateStepF1 {
		t.Fatalf("cause = %v, want %v", obs.RejectionCause, model.RejectMaxCodeRateStepF1)
	}
}

func TestCheckDataGap(t *testing.T) {
	cfg := testPrepro()
	v := NewValidator(cfg)
	cases := []struct {
		dt   float64
		want GapVerdict
	}{
		{-86400, GapVerdict{}},
		{0, GapVerdict{}},
		{10, GapVerdict{}},
		{11, GapVerdict{Reset: true, Reject: true}},
		{999, GapVerdict{Reset: true, Reject: true}},
		{1000, GapVerdict{Reset: true}},
		{2000, GapVerdict{Reset: true}},
	}
	for _, tc := range cases {
		if got := v.CheckDataGap(tc.dt); got != tc.want {
			t.Fatalf("CheckDataGap(%v) = %+v, want %+v", tc.dt, got, tc.want)
		}
	}

	cfg.MaxDataGap.Enabled = false
	if got := NewValidator(cfg).CheckDataGap(500); got != (GapVerdict{Reset: true}) {
		t.Fatalf("disabled gap check should still reset: %+v", got)
	}
}
