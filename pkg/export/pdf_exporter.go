package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets and payment receipts with gofpdf.
type PDFExporter struct {
	school string
}

// NewPDFExporter constructs a PDF exporter. school is printed in every document header.
func NewPDFExporter(school string) *PDFExporter {
	if school == "" {
		school = "School ERP"
	}
	return &PDFExporter{school: school}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := e.newDocument()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, value := range project(data.Headers, row) {
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(data.Footer) > 0 {
		pdf.SetFont("Arial", "B", 9)
		for _, value := range project(data.Headers, data.Footer) {
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return output(pdf)
}

// Receipt is the printable proof of a settled fee.
type Receipt struct {
	Number      string
	StudentName string
	Class       string
	FeeKind     string
	Amount      string
	DueDate     time.Time
	PaidAt      time.Time
	RoomNumber  string
}

// RenderReceipt lays out a single-page payment receipt.
func (e *PDFExporter) RenderReceipt(r Receipt) ([]byte, error) {
	if r.Number == "" || r.StudentName == "" {
		return nil, fmt.Errorf("receipt requires a number and a student name")
	}
	pdf := e.newDocument()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, e.school, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 8, "Payment Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Receipt No.", r.Number},
		{"Student", r.StudentName},
		{"Class", r.Class},
		{"Fee", r.FeeKind},
	}
	if r.RoomNumber != "" {
		rows = append(rows, [2]string{"Room", r.RoomNumber})
	}
	rows = append(rows,
		[2]string{"Amount", r.Amount},
		[2]string{"Due Date", r.DueDate.Format("2006-01-02")},
		[2]string{"Paid On", r.PaidAt.Format("2006-01-02")},
		[2]string{"Status", "Paid"},
	)
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(50, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(140, 8, row[1], "1", 1, "", false, 0, "")
	}

	return output(pdf)
}

func (e *PDFExporter) newDocument() *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetTitle(e.school, false)
	pdf.AddPage()
	return pdf
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
