package obsio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/signalsfoundry/gnss-prepro/model"
)

// PreproHeader is the first line of every PREPRO OBS file.
const PreproHeader = "#   SOD    PRN     ELEV     AZIM VALID  REJ STATUS" +
	"              C1              C2              L1              L2       S1       S2" +
	"   CODERATE    CODEACC  PHASERATE   PHASEACC          CODEIF         PHASEIF        SMOOTHIF\n"

// ObsFileName returns the raw observation file name for acronym and day.
func ObsFileName(acronym string, day time.Time) string {
	return fmt.Sprintf("OBS_%s_Y%02dD%03d.dat", acronym, day.Year()%100, day.YearDay())
}

// PreproFileName returns the PREPRO OBS file name for acronym and day.
func PreproFileName(acronym string, day time.Time) string {
	return fmt.Sprintf("PREPRO_OBS_%s_Y%02dD%03d.dat", acronym, day.Year()%100, day.YearDay())
}

// PreproWriter formats processed epochs as PREPRO OBS lines. Phases are
// written in metres and rates are those of the first frequency.
type PreproWriter struct {
	w             *bufio.Writer
	headerWritten bool
}

// NewPreproWriter wraps w. The header is written with the first epoch.
func NewPreproWriter(w io.Writer) *PreproWriter {
	return &PreproWriter{w: bufio.NewWriter(w)}
}

// WriteEpoch appends one line per observation of res.
func (pw *PreproWriter) WriteEpoch(_ context.Context, res *model.EpochResult) error {
	if !pw.headerWritten {
		if _, err := pw.w.WriteString(PreproHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		pw.headerWritten = true
	}
	for i := range res.Observations {
		o := &res.Observations[i]
		_, err := fmt.Fprintf(pw.w,
			"%6d %6s %8.3f %8.3f %4d %4d %4d %15.3f %15.3f %15.3f %15.3f %8.3f %8.3f %10.3f %10.3f %10.3f %10.3f %15.3f %15.3f %15.3f \n",
			int(o.SoD), o.Label, o.Elevation, o.Azimuth,
			boolInt(o.Valid), int(o.RejectionCause), boolInt(o.Status),
			o.C1, o.C2, o.L1Meters, o.L2Meters, o.S1, o.S2,
			o.CodeRateL1, o.CodeRateStepL1, o.PhaseRateL1, o.PhaseRateStepL1,
			o.IFCode, o.IFPhase, o.SmoothIF,
		)
		if err != nil {
			return fmt.Errorf("write %s at %v: %w", o.Label, o.SoD, err)
		}
	}
	return nil
}

// Flush writes any buffered lines.
func (pw *PreproWriter) Flush() error {
	return pw.w.Flush()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// PreproFile is a PreproWriter bound to a file it owns.
type PreproFile struct {
	*PreproWriter
	f    *os.File
	Path string
}

// CreatePreproFile creates path, and any missing parent directory, for
// writing.
func CreatePreproFile(path string) (*PreproFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create prepro file: %w", err)
	}
	return &PreproFile{PreproWriter: NewPreproWriter(f), f: f, Path: path}, nil
}

// Close flushes and closes the file.
func (pf *PreproFile) Close() error {
	flushErr := pf.Flush()
	closeErr := pf.f.Close()
	if flushErr != nil {
		return fmt.Errorf("flush %s: %w", pf.Path, flushErr)
	}
	return closeErr
}

// ObsWriter writes epochs in the raw OBS input format, code records first.
type ObsWriter struct {
	w *bufio.Writer
}

// NewObsWriter wraps w.
func NewObsWriter(w io.Writer) *ObsWriter {
	return &ObsWriter{w: bufio.NewWriter(w)}
}

// WriteEpoch appends ep.
func (ow *ObsWriter) WriteEpoch(ep *model.Epoch) error {
	for _, c := range ep.Codes {
		if _, err := fmt.Fprintf(ow.w, "C %6d %s %8.3f %8.3f %15.3f %15.3f %6.2f %6.2f\n",
			int(ep.SoD), c.Label, c.Elevation, c.Azimuth, c.C1, c.C2, c.S1, c.S2); err != nil {
			return fmt.Errorf("write code record: %w", err)
		}
	}
	for _, p := range ep.Phases {
		if _, err := fmt.Fprintf(ow.w, "P %6d %s %18.3f %18.3f\n",
			int(ep.SoD), p.Label, p.L1, p.L2); err != nil {
			return fmt.Errorf("write phase record: %w", err)
		}
	}
	return nil
}

// Flush writes any buffered records.
func (ow *ObsWriter) Flush() error {
	return ow.w.Flush()
}
