// Package export renders a month-by-month year view as XLSX or PDF.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/warp/reduction-engine/generic"
	"github.com/warp/reduction-engine/observability/metrics"
	"github.com/warp/reduction-engine/reduction"
)

// Format is an export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ErrNeedsMonthByMonth is returned for a view without per-month lines.
var ErrNeedsMonthByMonth = errors.New("export needs a month-by-month view")

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	}
	return "application/octet-stream"
}

// ParseFormat validates a format coming from a request.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatXLSX, FormatPDF:
		return Format(s), nil
	}
	return "", &generic.InvalidInputError{Field: "format", Reason: fmt.Sprintf("unsupported export format %q", s)}
}

// Render builds the file for view in format.
func Render(format Format, view reduction.View) ([]byte, error) {
	start := time.Now()
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatXLSX:
		data, err = BuildYearXLSX(view)
	case FormatPDF:
		data, err = BuildYearPDF(view)
	default:
		_, err = ParseFormat(string(format))
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveExport(string(format), result, time.Since(start))
	return data, err
}

var monthHeaders = []string{"Mois", "Rémunération brute", "Réduction (valeur faciale)", "Régularisation",
	"Réduction appliquée", "Part retraite", "Part Urssaf", "Part chômage", "Réduction cumulée due", "Plafond", "Erreur"}

// BuildYearPDF renders a one-page summary with the month table.
func BuildYearPDF(view reduction.View) ([]byte, error) {
	if len(view.Months) == 0 {
		return nil, ErrNeedsMonthByMonth
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, tr(fmt.Sprintf("Réduction générale %d", view.Year)))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Effectif: %s", view.CompanySize)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Régularisation: %s (mois: %s)", view.RegularisationMode, view.RegularisationMonth)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Caisse de congés payés: %s", yesNo(view.PaidLeaveFund))))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Rémunération annuelle: %s", view.AnnualRemuneration.Value.StringFixed(2))))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Réduction annuelle appliquée: %s", view.Reduction.Total.Value.StringFixed(2))))
	pdf.Ln(8)

	widths := []float64{20, 26, 26, 24, 26, 22, 22, 22, 28, 24, 35}
	pdf.SetFont("Arial", "B", 8)
	for i, h := range monthHeaders {
		pdf.CellFormat(widths[i], 6, tr(h), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, m := range view.Months {
		for i, cell := range monthRow(m) {
			align := "R"
			if i == 0 || i == len(widths)-1 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, tr(cell), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildYearXLSX renders a workbook with a summary sheet and a month sheet.
func BuildYearXLSX(view reduction.View) ([]byte, error) {
	if len(view.Months) == 0 {
		return nil, ErrNeedsMonthByMonth
	}
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "synthese"
	monthsSheet := "mois"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(monthsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Réduction générale")
	_ = f.SetCellValue(summarySheet, "A3", "Année")
	_ = f.SetCellValue(summarySheet, "B3", view.Year)
	_ = f.SetCellValue(summarySheet, "A4", "Effectif")
	_ = f.SetCellValue(summarySheet, "B4", string(view.CompanySize))
	_ = f.SetCellValue(summarySheet, "A5", "Régularisation")
	_ = f.SetCellValue(summarySheet, "B5", string(view.RegularisationMode))
	_ = f.SetCellValue(summarySheet, "A6", "Rémunération annuelle")
	_ = f.SetCellValue(summarySheet, "B6", view.AnnualRemuneration.Float64())
	_ = f.SetCellValue(summarySheet, "A7", "Réduction annuelle appliquée")
	_ = f.SetCellValue(summarySheet, "B7", view.Reduction.Total.Float64())
	_ = f.SetCellValue(summarySheet, "A8", "Caisse de congés payés")
	_ = f.SetCellValue(summarySheet, "B8", yesNo(view.PaidLeaveFund))

	for i, h := range monthHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(monthsSheet, cell, h)
	}
	for r, m := range view.Months {
		row := r + 2
		values := []any{
			m.Month.Name(),
			m.GrossRemuneration.Float64(),
			m.FaceValue.Total.Float64(),
			m.Delta.Float64(),
			m.Reduction.Total.Float64(),
			m.FaceValue.Retirement.Float64(),
			m.FaceValue.Urssaf.Float64(),
			m.FaceValue.Unemployment.Float64(),
			m.CumulativeDue.Float64(),
			m.FaceValue.Ceiling.Float64(),
			errText(m.Err),
		}
		for c, v := range values {
			cell, err := excelize.CoordinatesToCellName(c+1, row)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(monthsSheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func monthRow(m reduction.MonthView) []string {
	return []string{
		m.Month.Name(),
		m.GrossRemuneration.Value.StringFixed(2),
		m.FaceValue.Total.Value.StringFixed(2),
		m.Delta.Value.StringFixed(2),
		m.Reduction.Total.Value.StringFixed(2),
		m.FaceValue.Retirement.Value.StringFixed(2),
		m.FaceValue.Urssaf.Value.StringFixed(2),
		m.FaceValue.Unemployment.Value.StringFixed(2),
		m.CumulativeDue.Value.StringFixed(2),
		m.FaceValue.Ceiling.Value.StringFixed(2),
		errText(m.Err),
	}
}

func yesNo(b bool) string {
	if b {
		return "oui"
	}
	return "non"
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
