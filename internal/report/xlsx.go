package report

import (
	"fmt"
	"io"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/signalsfoundry/gnss-prepro/model"
)

const (
	summarySheet   = "Summary"
	rejectionSheet = "Rejections"
)

var summaryHeader = []string{
	"Satellite", "Epochs", "Valid", "Steady", "Valid %",
	"Mean elevation (deg)", "Residual mean (m)", "Residual std (m)",
}

// Workbook renders the statistics as an excelize workbook with a summary
// sheet and a per-cause rejection sheet.
func (s *Stats) Workbook() (*excelize.File, error) {
	xlsx := excelize.NewFile()
	if err := xlsx.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	sats := s.Satellites()
	if err := writeSummary(xlsx, sats); err != nil {
		return nil, fmt.Errorf("summary sheet: %w", err)
	}
	if _, err := xlsx.NewSheet(rejectionSheet); err != nil {
		return nil, err
	}
	if err := writeRejections(xlsx, sats); err != nil {
		return nil, fmt.Errorf("rejection sheet: %w", err)
	}
	return xlsx, nil
}

// WriteXLSX saves the workbook at path.
func (s *Stats) WriteXLSX(path string) error {
	xlsx, err := s.Workbook()
	if err != nil {
		return err
	}
	defer xlsx.Close()
	return xlsx.SaveAs(path)
}

// WriteTo streams the workbook to w.
func (s *Stats) WriteTo(w io.Writer) (int64, error) {
	xlsx, err := s.Workbook()
	if err != nil {
		return 0, err
	}
	defer xlsx.Close()
	return xlsx.WriteTo(w)
}

func writeSummary(xlsx *excelize.File, sats []*SatStats) error {
	if err := setRow(xlsx, summarySheet, 1, toCells(summaryHeader)); err != nil {
		return err
	}
	for i, st := range sats {
		mean, std := st.Residual()
		pct := math.NaN()
		if st.Epochs > 0 {
			pct = 100 * float64(st.Valid) / float64(st.Epochs)
		}
		row := []any{
			st.Label, st.Epochs, st.Valid, st.Steady,
			rounded(pct, 2), rounded(st.MeanElevation(), 3),
			rounded(mean, 4), rounded(std, 4),
		}
		if err := setRow(xlsx, summarySheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

// The rejection sheet has one row per cause (NONE excluded) and one
// column per satellite.
func writeRejections(xlsx *excelize.File, sats []*SatStats) error {
	header := []any{"Cause"}
	for _, st := range sats {
		header = append(header, st.Label)
	}
	header = append(header, "Total")
	if err := setRow(xlsx, rejectionSheet, 1, header); err != nil {
		return err
	}
	for c := 1; c < model.NumRejectionCauses; c++ {
		row := []any{model.RejectionCause(c).Description()}
		total := 0
		for _, st := range sats {
			row = append(row, st.Rejections[c])
			total += st.Rejections[c]
		}
		row = append(row, total)
		if err := setRow(xlsx, rejectionSheet, c+1, row); err != nil {
			return err
		}
	}
	return nil
}

func setRow(xlsx *excelize.File, sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if v == nil {
			continue
		}
		if err := xlsx.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func toCells(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// rounded returns nil for NaN so the cell is left empty.
func rounded(v float64, digits int) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
