package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalsfoundry/gnss-prepro/core"
	"github.com/signalsfoundry/gnss-prepro/internal/logging"
	"github.com/signalsfoundry/gnss-prepro/internal/obsio"
	"github.com/signalsfoundry/gnss-prepro/internal/sink"
	"github.com/signalsfoundry/gnss-prepro/model"
)

const scenarioCfg = `INI_DATE        11/01/2024
END_DATE        12/01/2024
SAT_ACRONYM     test
PREPRO_OUT      1
RCVR_MASK       10
HATCH_TIME      3
`

var firstDay = time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)

func writeScenario(t *testing.T, epochs int) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "CFG"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "CFG", "sentus.cfg"), []byte(scenarioCfg), 0o644); err != nil {
		t.Fatal(err)
	}

	obsPath := filepath.Join(dir, "INP", "OBS", obsio.ObsFileName("test", firstDay))
	if err := os.MkdirAll(filepath.Dir(obsPath), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(obsPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := obsio.NewObsWriter(f)
	for i := 0; i < epochs; i++ {
		sod := float64(i)
		ep := &model.Epoch{SoD: sod}
		for _, label := range []string{"G01", "E11"} {
			sig, err := core.SignalsForLabel(label)
			if err != nil {
				t.Fatal(err)
			}
			rho := 2.2e7 + 500*sod
			ep.Codes = append(ep.Codes, model.CodeRecord{
				Label: label, SoD: sod, Elevation: 45, Azimuth: 180,
				C1: rho, C2: rho + 3, S1: 45, S2: 42,
			})
			ep.Phases = append(ep.Phases, model.PhaseRecord{
				Label: label, SoD: sod,
				L1: (rho - 1) / sig.Lambda1,
				L2: (rho + 2) / sig.Lambda2,
			})
		}
		if err := w.WriteEpoch(ep); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	return dir
}

func quietLogger() logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "text"})
}

func TestRunProcessesScenario(t *testing.T) {
	dir := writeScenario(t, 5)

	var writes atomic.Int32
	influx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/write" {
			writes.Add(1)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer influx.Close()

	cfg := Config{
		ScenarioDir: dir,
		Workers:     2,
		Report:      true,
		Plots:       true,
		Influx:      sink.InfluxConfig{URL: influx.URL, Org: "lab", Bucket: "gnss"},
	}
	if err := run(context.Background(), cfg, quietLogger()); err != nil {
		t.Fatalf("run: %v", err)
	}

	ppve := filepath.Join(dir, "OUT", "PPVE")
	data, err := os.ReadFile(filepath.Join(ppve, obsio.PreproFileName("test", firstDay)))
	if err != nil {
		t.Fatalf("read PREPRO output: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 11 {
		t.Fatalf("PREPRO output has %d lines, want header + 10", len(lines))
	}
	for _, line := range lines[1:] {
		if f := strings.Fields(line); f[4] != "1" {
			t.Fatalf("observation rejected: %s", line)
		}
	}
	if f := strings.Fields(lines[len(lines)-1]); f[6] != "1" {
		t.Fatalf("smoother should be steady at the last epoch: %s", lines[len(lines)-1])
	}

	for _, name := range []string{
		"PREPRO_REPORT_test_Y24D011.xlsx",
		filepath.Join("figures", "PREPRO_test_Y24D011.html"),
	} {
		if _, err := os.Stat(filepath.Join(ppve, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(ppve, obsio.PreproFileName("test", firstDay.AddDate(0, 0, 1)))); !os.IsNotExist(err) {
		t.Fatalf("day without input must not produce output (err=%v)", err)
	}
	if got := writes.Load(); got != 5 {
		t.Fatalf("influx writes = %d, want 5", got)
	}
}

func TestRunHonoursPreproOutSwitch(t *testing.T) {
	dir := writeScenario(t, 2)
	cfgPath := filepath.Join(dir, "CFG", "off.cfg")
	if err := os.WriteFile(cfgPath, []byte(strings.Replace(scenarioCfg, "PREPRO_OUT      1", "PREPRO_OUT      0", 1)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(context.Background(), Config{ScenarioDir: dir, ConfigPath: cfgPath}, quietLogger()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "OUT")); !os.IsNotExist(err) {
		t.Fatalf("PREPRO_OUT 0 must not create outputs (err=%v)", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.cfg")
	if err := os.WriteFile(cfgPath, []byte("INI_DATE 11/01/2024\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(context.Background(), Config{ScenarioDir: dir, ConfigPath: cfgPath}, nil); err == nil {
		t.Fatalf("expected configuration error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := writeScenario(t, 50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := run(ctx, Config{ScenarioDir: dir, RealTime: true}, quietLogger())
	if err == nil || !strings.Contains(err.Error(), "context canceled") {
		t.Fatalf("run err = %v, want cancellation", err)
	}
}
