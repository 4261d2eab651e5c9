// Command prepro preprocesses the daily OBS files of a scenario directory:
//
//	<scen>/CFG/sentus.cfg                    configuration
//	<scen>/INP/OBS/OBS_<acr>_YyyDddd.dat     input, one file per day
//	<scen>/OUT/PPVE/PREPRO_OBS_<acr>_...dat  cleaned observations
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/gnss-prepro/core"
	"github.com/signalsfoundry/gnss-prepro/internal/config"
	"github.com/signalsfoundry/gnss-prepro/internal/logging"
	"github.com/signalsfoundry/gnss-prepro/internal/observability"
	"github.com/signalsfoundry/gnss-prepro/internal/obsio"
	"github.com/signalsfoundry/gnss-prepro/internal/plot"
	"github.com/signalsfoundry/gnss-prepro/internal/report"
	"github.com/signalsfoundry/gnss-prepro/internal/sink"
	"github.com/signalsfoundry/gnss-prepro/kb"
	"github.com/signalsfoundry/gnss-prepro/timectrl"
)

// Config holds the command line of a run.
type Config struct {
	ScenarioDir string
	// ConfigPath defaults to <scen>/CFG/sentus.cfg.
	ConfigPath  string
	MetricsAddr string
	RealTime    bool
	Speed       float64
	Workers     int
	Influx      sink.InfluxConfig
	Report      bool
	Plots       bool
}

func (c Config) configPath() string {
	if c.ConfigPath != "" {
		return c.ConfigPath
	}
	return filepath.Join(c.ScenarioDir, "CFG", "sentus.cfg")
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.ScenarioDir, "scen", "", "scenario directory (CFG, INP, OUT)")
	flag.StringVar(&cfg.ConfigPath, "config", "", "configuration file, .cfg or .yaml (default <scen>/CFG/sentus.cfg)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics (disabled when empty)")
	flag.BoolVar(&cfg.RealTime, "realtime", false, "pace epochs against the wall clock")
	flag.Float64Var(&cfg.Speed, "speed", 1, "real-time replay speed multiplier")
	flag.IntVar(&cfg.Workers, "workers", 1, "satellites processed concurrently within an epoch")
	flag.StringVar(&cfg.Influx.URL, "influx-url", "", "InfluxDB 2.x URL (disabled when empty)")
	flag.StringVar(&cfg.Influx.Token, "influx-token", os.Getenv("INFLUX_TOKEN"), "InfluxDB API token")
	flag.StringVar(&cfg.Influx.Org, "influx-org", "", "InfluxDB organisation")
	flag.StringVar(&cfg.Influx.Bucket, "influx-bucket", "", "InfluxDB bucket")
	flag.BoolVar(&cfg.Report, "report", false, "write a per-satellite XLSX report per day")
	flag.BoolVar(&cfg.Plots, "plots", false, "write an HTML plot page per day")
	flag.Parse()

	log := logging.NewFromEnv()
	if cfg.ScenarioDir == "" {
		fmt.Fprintln(os.Stderr, "usage: prepro -scen <scenario dir> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, log = logging.WithRunLogger(ctx, log)

	tracingCfg := observability.TracingConfigFromEnv()
	tracingCfg.Scenario = filepath.Base(cfg.ScenarioDir)
	shutdownTracing, err := observability.InitTracing(ctx, tracingCfg, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}

	err = run(ctx, cfg, log)
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "preprocessing failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log logging.Logger) error {
	if log == nil {
		log = logging.Noop()
	}
	conf, err := config.Load(cfg.configPath())
	if err != nil {
		return err
	}

	collector, err := observability.NewPreproCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	if cfg.MetricsAddr != "" {
		metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}()
	}

	var influx *sink.Influx
	if cfg.Influx.URL != "" {
		if influx, err = sink.NewInflux(cfg.Influx); err != nil {
			return err
		}
		defer influx.Close()
	}

	log.Info(ctx, "starting preprocessing",
		logging.String("scenario", cfg.ScenarioDir),
		logging.String("acronym", conf.SatAcronym),
		logging.Int("days", len(conf.Days())),
	)
	ctx = logging.ContextWithLogger(ctx, log)
	for _, day := range conf.Days() {
		d := &dayRun{
			cfg:       cfg,
			conf:      conf,
			day:       day,
			collector: collector,
			influx:    influx,
		}
		if err := d.process(ctx); err != nil {
			return fmt.Errorf("day %s: %w", day.Format("2006-002"), err)
		}
	}
	log.Info(ctx, "preprocessing finished")
	return nil
}

// dayRun processes one OBS file with a fresh satellite store.
type dayRun struct {
	cfg       Config
	conf      config.Config
	day       time.Time
	collector *observability.PreproCollector
	influx    *sink.Influx

	stats    *report.Stats
	recorder *plot.Recorder
	outPath  string

	// Replay time of the last epoch handed to the processor.
	clock timectrl.Clock
}

func (d *dayRun) process(ctx context.Context) error {
	log := logging.LoggerFromContext(ctx).With(logging.String("day", d.day.Format("2006-002")))
	acr := d.conf.SatAcronym

	obsPath := filepath.Join(d.cfg.ScenarioDir, "INP", "OBS", obsio.ObsFileName(acr, d.day))
	in, err := os.Open(obsPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn(ctx, "no observation file for day, skipping", logging.String("path", obsPath))
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()
	log.Info(ctx, "reading observations", logging.String("path", obsPath))

	out, err := d.sinks()
	if err != nil {
		return err
	}

	epochs, err := d.replay(ctx, obsio.NewReader(in), out, log)
	closeErr := out.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	if err := d.writeProducts(ctx, log); err != nil {
		return err
	}
	log.Info(ctx, "day processed",
		logging.Int("epochs", epochs),
		logging.String("last_epoch", d.clock.Now().Format(time.TimeOnly)),
		logging.String("output", d.outPath),
	)
	return nil
}

func (d *dayRun) sinks() (*sink.Multi, error) {
	var targets []sink.Target
	acr := d.conf.SatAcronym
	if d.conf.PreproOut {
		d.outPath = filepath.Join(d.cfg.ScenarioDir, "OUT", "PPVE", obsio.PreproFileName(acr, d.day))
		f, err := obsio.CreatePreproFile(d.outPath)
		if err != nil {
			return nil, err
		}
		targets = append(targets, sink.Named("prepro-file", f))
	}
	if d.influx != nil {
		d.influx.SetDay(d.day)
		targets = append(targets, sink.Named("influx", sink.NoClose(d.influx)))
	}
	if d.cfg.Report {
		d.stats = report.NewStats()
		targets = append(targets, sink.Named("report", d.stats))
	}
	if d.cfg.Plots {
		d.recorder = plot.NewRecorder(fmt.Sprintf("PREPRO %s %s", acr, d.day.Format("2006-002")))
		targets = append(targets, sink.Named("plots", d.recorder))
	}
	return sink.NewMulti(d.collector, targets...), nil
}

func (d *dayRun) replay(ctx context.Context, r *obsio.Reader, out sink.Sink, log logging.Logger) (int, error) {
	store := kb.NewStore(kb.CycleSlipDims{
		Points: d.conf.CycleSlips.Points,
		Epochs: d.conf.CycleSlips.Epochs,
	})
	unsubscribe := store.Subscribe(func(ev kb.Event) {
		log.Debug(ctx, "satellite state reset",
			logging.String("kind", ev.Type.String()),
			logging.String("sat", ev.Label),
			logging.Float("sod", ev.SoD),
		)
	})
	defer unsubscribe()
	log.Debug(ctx, "satellite state store ready", logging.Int("slots", store.Len()))

	proc := core.NewProcessor(d.conf.Prepro, store, log,
		core.WithWorkers(d.cfg.Workers),
		core.WithMetricsRecorder(d.collector),
	)

	mode := timectrl.Accelerated
	if d.cfg.RealTime {
		mode = timectrl.RealTime
	}
	clock := timectrl.NewTimeController(d.day, mode)
	if d.cfg.Speed > 0 {
		clock.Speed = d.cfg.Speed
	}
	d.clock = clock

	epochs := 0
	clock.AddListener(timectrl.Every(time.Hour, func(now time.Time) {
		log.Info(ctx, "replay progress",
			logging.String("time", now.Format(time.TimeOnly)),
			logging.Int("epochs", epochs),
		)
	}))
	for {
		ep, err := r.ReadEpoch()
		if errors.Is(err, io.EOF) {
			return epochs, nil
		}
		if err != nil {
			return epochs, err
		}
		if err := clock.Advance(ctx, ep.SoD); err != nil {
			return epochs, err
		}
		res, err := proc.ProcessEpoch(ctx, ep)
		if err != nil {
			return epochs, err
		}
		if err := out.WriteEpoch(ctx, res); err != nil {
			log.Warn(ctx, "sink write failed",
				logging.Float("sod", ep.SoD),
				logging.String("error", err.Error()),
			)
		}
		epochs++
	}
}

func (d *dayRun) writeProducts(ctx context.Context, log logging.Logger) error {
	stem := fmt.Sprintf("%s_Y%02dD%03d", d.conf.SatAcronym, d.day.Year()%100, d.day.YearDay())
	ppve := filepath.Join(d.cfg.ScenarioDir, "OUT", "PPVE")
	if d.stats != nil {
		path := filepath.Join(ppve, "PREPRO_REPORT_"+stem+".xlsx")
		if err := os.MkdirAll(ppve, 0o755); err != nil {
			return err
		}
		if err := d.stats.WriteXLSX(path); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		log.Info(ctx, "wrote report", logging.String("path", path))
	}
	if d.recorder != nil {
		path := filepath.Join(ppve, "figures", "PREPRO_"+stem+".html")
		if err := d.recorder.RenderFile(path); err != nil {
			return err
		}
		log.Info(ctx, "wrote plots", logging.String("path", path))
	}
	return nil
}

func serveMetrics(addr string, collector *observability.PreproCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
