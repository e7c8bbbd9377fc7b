package document

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Artifact is the generated binary document. Immutable once produced; a
// regeneration produces a new artifact and the old stored copy is superseded.
type Artifact struct {
	Content     []byte    `json:"-"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	GeneratedAt time.Time `json:"generated_at"`
}

const pdfContentType = "application/pdf"

var pdfMagic = []byte("%PDF")

// ErrInvalidPDF reports an artifact that does not carry the PDF magic
// header. Such output is a defect in generation, never surfaced as current.
var ErrInvalidPDF = errors.New("generated document is not a valid PDF")

// ValidatePDF checks the canonical magic header.
func ValidatePDF(content []byte) error {
	if len(content) < 4 || !bytes.HasPrefix(content, pdfMagic) {
		return ErrInvalidPDF
	}
	return nil
}

// Page geometry, A4 portrait in millimetres. The signature block is anchored
// a fixed offset above the bottom margin so a long body never collides with
// it.
const (
	pageWidth       = 210.0
	pageHeight      = 297.0
	pageMargin      = 20.0
	backgroundInset = 10.0
	patientTopY     = 75.0
	patientLineH    = 6.0
	dateLineY       = 60.0
	signatureSpace  = 60.0
	signatureImgW   = 40.0
	signatureImgH   = 20.0
	bodyLineH       = 5.0
)

// Renderer produces the binary artifact from a layout description. The
// workflow depends on this interface so generation failures can be exercised
// without a real PDF engine.
type Renderer interface {
	Render(layout Layout, signaturePNG []byte) (*Artifact, error)
}

// PDFRenderer is the vector pass.
type PDFRenderer struct{}

func NewPDFRenderer() *PDFRenderer { return &PDFRenderer{} }

// Render draws the layout onto a single A4 page and self-validates the
// output: a result without the PDF magic header is a failure, and no
// artifact is returned.
func (r *PDFRenderer) Render(layout Layout, signaturePNG []byte) (*Artifact, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	// Page background with inset.
	pdf.SetFillColor(248, 241, 238)
	pdf.Rect(backgroundInset, backgroundInset,
		pageWidth-2*backgroundInset, pageHeight-2*backgroundInset, "F")

	pdf.SetTextColor(0, 0, 0)

	// Brand mark top-left.
	pdf.SetFont("Helvetica", "B", 28)
	pdf.Text(pageMargin, pageMargin+10, layout.Header.Brand)

	// Contact block top-right at fixed x.
	contactX := pageWidth - pageMargin - 80
	pdf.SetFont("Helvetica", "", 9)
	for i, line := range layout.Header.ContactLines {
		pdf.Text(contactX, 25+float64(i)*5, line)
	}

	// Date line right-aligned below header.
	pdf.SetFont("Helvetica", "", 11)
	pdf.Text(pageWidth-pageMargin-45, dateLineY, layout.DateLine)

	// Patient block, one line each at fixed line height.
	y := patientTopY
	pdf.Text(pageMargin, y, "Regarding: "+layout.Patient.Regarding)
	y += patientLineH
	pdf.Text(pageMargin, y, layout.Patient.DOB)
	y += patientLineH
	pdf.Text(pageMargin, y, layout.Patient.Phone)
	y += patientLineH
	pdf.Text(pageMargin, y, layout.Patient.Email)
	y += 10

	// Greeting then word-wrapped body.
	pdf.Text(pageMargin, y, layout.Greeting)
	y += 10
	pdf.SetXY(pageMargin, y)
	pdf.MultiCell(pageWidth-2*pageMargin, bodyLineH, layout.Body, "", "L", false)

	// Signature section, fixed distance above the bottom margin.
	sigY := pageHeight - pageMargin - signatureSpace
	pdf.SetFont("Helvetica", "", 11)
	pdf.Text(pageMargin, sigY, layout.Signature.Closing)

	if len(signaturePNG) > 0 {
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("clinician-signature", opts, bytes.NewReader(signaturePNG))
		pdf.ImageOptions("clinician-signature",
			pageWidth-pageMargin-signatureImgW, sigY, signatureImgW, signatureImgH,
			false, opts, 0, "")
	} else {
		pdf.SetFont("Helvetica", "", 16)
		pdf.Text(pageWidth-pageMargin-30, sigY+10, "+")
	}

	pdf.SetFont("Helvetica", "", 11)
	pdf.Text(pageMargin, sigY+30, layout.Signature.DoctorName)
	pdf.Text(pageMargin, sigY+38, "Provider Number: "+layout.Signature.ProviderNumber)
	pdf.Text(pageMargin, sigY+46, layout.Signature.ContactEmail)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("writing pdf: %w", err)
	}

	content := buf.Bytes()
	if err := ValidatePDF(content); err != nil {
		return nil, err
	}

	return &Artifact{
		Content:     content,
		ContentType: pdfContentType,
		Size:        len(content),
		GeneratedAt: time.Now().UTC(),
	}, nil
}
