package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/signalsfoundry/gnss-prepro/model"
)

func TestAlignPairsByLabel(t *testing.T) {
	ep := &model.Epoch{
		SoD: 30,
		Codes: []model.CodeRecord{
			{Label: "G05", Elevation: 20, C1: 1, C2: 2, S1: 40, S2: 41},
			{Label: "E11", Elevation: 60, C1: 3, C2: 4, S1: 42, S2: 43},
		},
		Phases: []model.PhaseRecord{
			{Label: "E11", L1: 30, L2: 40},
			{Label: "G05", L1: 10, L2: 20},
		},
	}

	samples, errs := Align(ep)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := []model.RawSample{
		{Label: "G05", SoD: 30, Elevation: 20, C1: 1, C2: 2, L1: 10, L2: 20, S1: 40, S2: 41},
		{Label: "E11", SoD: 30, Elevation: 60, C1: 3, C2: 4, L1: 30, L2: 40, S1: 42, S2: 43},
	}
	if len(samples) != len(want) {
		t.Fatalf("samples = %+v", samples)
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("sample %d = %+v, want %+v", i, samples[i], want[i])
		}
	}
}

func TestAlignReportsMismatches(t *testing.T) {
	ep := &model.Epoch{
		SoD: 90,
		Codes: []model.CodeRecord{
			{Label: "G01"}, {Label: "G02"}, {Label: "G01"},
		},
		Phases: []model.PhaseRecord{
			{Label: "G01"}, {Label: "E09"}, {Label: "E09"},
		},
	}

	samples, errs := Align(ep)
	if len(samples) != 1 || samples[0].Label != "G01" {
		t.Fatalf("samples = %+v", samples)
	}

	reasons := map[string]string{}
	for _, err := range errs {
		var ae *AlignmentError
		if !errors.As(err, &ae) {
			t.Fatalf("%v is not an AlignmentError", err)
		}
		if ae.SoD != 90 {
			t.Fatalf("SoD = %v", ae.SoD)
		}
		reasons[ae.Label+"/"+ae.Reason] = err.Error()
	}
	for _, key := range []string{
		"G02/code record without phase",
		"G01/duplicate code record",
		"E09/duplicate phase record",
		"E09/phase record without code",
	} {
		if _, ok := reasons[key]; !ok {
			t.Fatalf("missing %q in %v", key, reasons)
		}
	}
	if len(errs) != 4 {
		t.Fatalf("errs = %v", errs)
	}
	if msg := reasons["G02/code record without phase"]; !strings.Contains(msg, "epoch 90") {
		t.Fatalf("message %q lacks the epoch", msg)
	}
}
