// Package plot renders a processing day as an HTML page of charts.
package plot

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/signalsfoundry/gnss-prepro/model"
)

type point struct{ sod, v float64 }

// Recorder collects per-satellite series while epochs stream past. It
// implements the sink interface.
type Recorder struct {
	Title string

	mu         sync.Mutex
	residuals  map[string][]point
	geomFree   map[string][]point
	rejections [model.NumRejectionCauses]int
}

// NewRecorder returns an empty recorder; title heads the rendered page.
func NewRecorder(title string) *Recorder {
	return &Recorder{
		Title:     title,
		residuals: make(map[string][]point),
		geomFree:  make(map[string][]point),
	}
}

// WriteEpoch implements the sink interface.
func (r *Recorder) WriteEpoch(_ context.Context, res *model.EpochResult) error {
	if res == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range res.Observations {
		obs := &res.Observations[i]
		if !obs.Valid {
			r.rejections[obs.RejectionCause]++
			continue
		}
		if finite(obs.GeomFreePhase) {
			r.geomFree[obs.Label] = append(r.geomFree[obs.Label], point{res.SoD, obs.GeomFreePhase})
		}
		if obs.Status {
			if d := obs.IFCode - obs.SmoothIF; finite(d) {
				r.residuals[obs.Label] = append(r.residuals[obs.Label], point{res.SoD, d})
			}
		}
	}
	return nil
}

// Close implements the sink interface.
func (r *Recorder) Close() error { return nil }

// Render writes the page: smoothing residuals, geometry-free phase and
// rejection causes.
func (r *Recorder) Render(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	page := components.NewPage()
	page.PageTitle = r.Title
	page.AddCharts(
		lineChart("IF code minus smoothed IF code", "m", r.residuals),
		lineChart("Geometry-free phase", "m", r.geomFree),
		r.rejectionChart(),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render plots: %w", err)
	}
	return nil
}

// RenderFile writes the page to path, creating parent directories.
func (r *Recorder) RenderFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func lineChart(title, unit string, series map[string][]point) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithXAxisOpts(opts.XAxis{Name: "SoD (s)", Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: unit, Type: "value"}),
		charts.WithLegendOpts(opts.Legend{Type: "scroll"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	for _, label := range sortedKeys(series) {
		data := make([]opts.LineData, 0, len(series[label]))
		for _, p := range series[label] {
			data = append(data, opts.LineData{Value: []float64{p.sod, p.v}})
		}
		line.AddSeries(label, data)
	}
	return line
}

func (r *Recorder) rejectionChart() *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Rejected observations by cause"}),
	)
	var names []string
	var data []opts.BarData
	for c := 1; c < model.NumRejectionCauses; c++ {
		names = append(names, model.RejectionCause(c).String())
		data = append(data, opts.BarData{Value: r.rejections[c]})
	}
	bar.SetXAxis(names).AddSeries("rejections", data)
	return bar
}

func sortedKeys(m map[string][]point) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NaN has no JSON encoding.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
