package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateDocument carries the text printed on a course completion certificate.
type CertificateDocument struct {
	Number         string
	StudentName    string
	CourseTitle    string
	InstructorName string
	IssuerName     string
	CompletedAt    time.Time
	IssuedAt       time.Time
}

// RenderCertificate draws a single landscape page certificate.
func (e *PDFExporter) RenderCertificate(doc CertificateDocument) ([]byte, error) {
	if doc.Number == "" || doc.StudentName == "" || doc.CourseTitle == "" {
		return nil, fmt.Errorf("certificate requires number, student name and course title")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	width, height := pdf.GetPageSize()
	pdf.SetLineWidth(1.5)
	pdf.SetDrawColor(40, 70, 120)
	pdf.Rect(10, 10, width-20, height-20, "D")
	pdf.SetLineWidth(0.4)
	pdf.Rect(14, 14, width-28, height-28, "D")

	pdf.SetY(40)
	pdf.SetFont("Times", "B", 30)
	pdf.SetTextColor(40, 70, 120)
	pdf.CellFormat(0, 14, "Certificate of Completion", "", 1, "C", false, 0, "")

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Times", "", 14)
	pdf.Ln(8)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "B", 24)
	pdf.CellFormat(0, 14, tr(doc.StudentName), "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "", 14)
	pdf.CellFormat(0, 8, "has successfully completed the course", "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "BI", 20)
	pdf.CellFormat(0, 12, tr(doc.CourseTitle), "", 1, "C", false, 0, "")

	pdf.Ln(6)
	pdf.SetFont("Times", "", 12)
	completed := doc.CompletedAt
	if completed.IsZero() {
		completed = doc.IssuedAt
	}
	pdf.CellFormat(0, 7, fmt.Sprintf("Completed on %s", completed.Format("January 2, 2006")), "", 1, "C", false, 0, "")
	if doc.InstructorName != "" {
		pdf.CellFormat(0, 7, tr("Instructor: "+doc.InstructorName), "", 1, "C", false, 0, "")
	}

	pdf.SetY(height - 40)
	pdf.SetFont("Times", "", 10)
	issuer := doc.IssuerName
	if issuer == "" {
		issuer = "Tutorly"
	}
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Issued by %s on %s", issuer, doc.IssuedAt.Format("2006-01-02"))), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Certificate No. "+doc.Number, "", 1, "C", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
