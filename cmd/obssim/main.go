// Command obssim writes a synthetic OBS file for a static receiver from a
// file of GNSS two-line element sets.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/gnss-prepro/internal/logging"
	"github.com/signalsfoundry/gnss-prepro/internal/obsio"
	"github.com/signalsfoundry/gnss-prepro/internal/synth"
	"github.com/signalsfoundry/gnss-prepro/model"
)

// Config holds the command line of a generation run.
type Config struct {
	TLEPath  string
	Receiver synth.Vec3
	Day      time.Time
	Start    float64
	End      float64
	Step     float64
	Mask     float64
	OutPath  string
}

func main() {
	var (
		cfg      Config
		rcvr     string
		day      string
		acronym  string
		scenario string
	)
	flag.StringVar(&cfg.TLEPath, "tle", "", "three-line element file")
	flag.StringVar(&rcvr, "rcvr", "4789032,176612,4195013", "receiver ECEF position x,y,z in metres")
	flag.StringVar(&day, "day", "", "observation day YYYY-MM-DD (default today, UTC)")
	flag.Float64Var(&cfg.Start, "start", 0, "first second of day")
	flag.Float64Var(&cfg.End, "end", 86399, "last second of day")
	flag.Float64Var(&cfg.Step, "step", 1, "sampling interval in seconds")
	flag.Float64Var(&cfg.Mask, "mask", 5, "elevation mask in degrees")
	flag.StringVar(&cfg.OutPath, "out", "", "output file")
	flag.StringVar(&scenario, "scen", "", "scenario directory; writes <scen>/INP/OBS/OBS_<acr>_YyyDddd.dat when -out is empty")
	flag.StringVar(&acronym, "acr", "synt", "acronym used in the scenario file name")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	if cfg.Receiver, err = parseReceiver(rcvr); err != nil {
		fail(ctx, log, err)
	}
	cfg.Day = time.Now().UTC().Truncate(24 * time.Hour)
	if day != "" {
		if cfg.Day, err = time.Parse(time.DateOnly, day); err != nil {
			fail(ctx, log, fmt.Errorf("parse -day: %w", err))
		}
	}
	if cfg.OutPath == "" && scenario != "" {
		cfg.OutPath = filepath.Join(scenario, "INP", "OBS", obsio.ObsFileName(acronym, cfg.Day))
	}
	if cfg.TLEPath == "" || cfg.OutPath == "" {
		fmt.Fprintln(os.Stderr, "usage: obssim -tle <file> (-out <file> | -scen <dir>) [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(ctx, cfg, log); err != nil {
		fail(ctx, log, err)
	}
}

func fail(ctx context.Context, log logging.Logger, err error) {
	log.Error(ctx, "observation generation failed", logging.String("error", err.Error()))
	os.Exit(1)
}

func run(ctx context.Context, cfg Config, log logging.Logger) error {
	if log == nil {
		log = logging.Noop()
	}
	in, err := os.Open(cfg.TLEPath)
	if err != nil {
		return err
	}
	tles, err := synth.ReadTLEs(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.TLEPath, err)
	}

	gen, err := synth.NewGenerator(cfg.Receiver, cfg.Day, tles)
	if err != nil {
		return err
	}
	gen.MaskAngle = cfg.Mask

	if err := os.MkdirAll(filepath.Dir(cfg.OutPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(cfg.OutPath)
	if err != nil {
		return err
	}
	w := obsio.NewObsWriter(out)

	epochs, records := 0, 0
	err = gen.Generate(ctx, cfg.Start, cfg.End, cfg.Step, func(ep *model.Epoch) error {
		epochs++
		records += len(ep.Codes)
		return w.WriteEpoch(ep)
	})
	if flushErr := w.Flush(); err == nil {
		err = flushErr
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	log.Info(ctx, "wrote synthetic observations",
		logging.String("path", cfg.OutPath),
		logging.Int("satellites", len(tles)),
		logging.Int("epochs", epochs),
		logging.Int("records", records),
	)
	return nil
}

func parseReceiver(s string) (synth.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return synth.Vec3{}, fmt.Errorf("receiver position %q: want x,y,z", s)
	}
	var xyz [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return synth.Vec3{}, fmt.Errorf("receiver position %q: %w", s, err)
		}
		xyz[i] = v
	}
	return synth.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
