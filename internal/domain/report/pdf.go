package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
)

const (
	pageMargin   = 20.0
	bottomMargin = 25.0
	lineHeight   = 6.0
)

// RenderPDF writes r as an A4 PDF document to w.
func RenderPDF(r Report, w io.Writer) error {
	pdf := newDocument(r)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render report pdf: %w", err)
	}
	return nil
}

func newDocument(r Report) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, bottomMargin)
	pdf.SetTitle("Healthcare Claim Advocacy Report "+r.ClaimRef, true)
	pdf.SetCreator("HealthAdvocate Platform", true)
	pdf.SetCreationDate(r.GeneratedAt)

	// Core fonts are cp1252.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	footer := fmt.Sprintf("Generated on: %s by HealthAdvocate Platform", r.GeneratedAt.Format(dateLayout))
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 10, tr(footer), "", 0, "L", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(40, 40, 40)
	pdf.CellFormat(0, 12, "HEALTHCARE CLAIM ADVOCACY REPORT", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	section := func(title string) {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 16)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 12)
	}
	line := func(text string) {
		pdf.MultiCell(0, lineHeight, tr(text), "", "L", false)
	}

	amount := "N/A"
	if r.Amount != nil {
		amount = FormatAmount(*r.Amount)
	}

	section("CLAIM DETAILS")
	line("Claim ID: " + r.ClaimID.String())
	line("Policy Number: " + r.PolicyNumber)
	line("Claim Date: " + r.ClaimDate.Format(dateLayout))
	line("Claim Amount: " + amount)
	line("Status: " + strings.ToUpper(r.Status))
	line("Priority: " + strings.ToUpper(r.Priority))

	section("PATIENT INFORMATION")
	line("Name: " + orNA(r.PatientName))
	line("Email: " + orNA(r.PatientEmail))

	section("HEALTHCARE PROVIDER")
	line("Provider: " + orNA(r.Provider))
	line("Employer: " + orNA(r.Employer))

	section("CLAIM DESCRIPTION")
	line(orNA(r.Description))

	section("ADVOCACY ASSESSMENT")
	for _, s := range r.Assessment {
		line("• " + s)
	}
	if len(r.Criteria) > 0 {
		pdf.Ln(2)
		for _, c := range r.Criteria {
			line("- " + c)
		}
	}
	pdf.Ln(2)
	for _, c := range r.Characteristics {
		line(c)
	}
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 12)
	line("Recommendation: " + r.Recommendation)

	return pdf
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
