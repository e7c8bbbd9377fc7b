package document

import (
	"fmt"
	"html/template"
	"strings"
)

// The preview pass mirrors the vector pass in flow layout: fixed-size page
// container, flex column, and the signature section pushed to the bottom
// with margin-top auto instead of a fixed y-coordinate. Both passes consume
// the same Layout, so they cannot drift on content.
var previewTmpl = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  .page {
    width: 210mm;
    height: 297mm;
    padding: 20mm;
    box-sizing: border-box;
    background: rgb(248, 241, 238);
    font-family: Helvetica, Arial, sans-serif;
    font-size: 11pt;
    color: #000;
    display: flex;
    flex-direction: column;
  }
  .header { display: flex; justify-content: space-between; }
  .brand { font-size: 28pt; font-weight: bold; }
  .contact { font-size: 9pt; text-align: right; }
  .date-line { text-align: right; margin-top: 8mm; }
  .patient-block { margin-top: 10mm; line-height: 6mm; }
  .greeting { margin-top: 10mm; }
  .content-section { margin-top: 10mm; white-space: pre-wrap; }
  .signature-section { margin-top: auto; }
  .signature-row { display: flex; justify-content: space-between; align-items: flex-start; }
  .signature-image { width: 40mm; height: 20mm; object-fit: contain; }
  .signature-placeholder { font-size: 16pt; }
  .doctor-details { margin-top: 8mm; line-height: 8mm; }
</style>
</head>
<body>
<div class="page">
  <div class="header">
    <div class="brand">{{.Header.Brand}}</div>
    <div class="contact">{{range .Header.ContactLines}}{{.}}<br>{{end}}</div>
  </div>
  <div class="date-line">{{.DateLine}}</div>
  <div class="patient-block">
    Regarding: {{.Patient.Regarding}}<br>
    {{.Patient.DOB}}<br>
    {{.Patient.Phone}}<br>
    {{.Patient.Email}}
  </div>
  <div class="greeting">{{.Greeting}}</div>
  <div class="content-section">{{.Body}}</div>
  <div class="signature-section">
    <div class="signature-row">
      <div>{{.Signature.Closing}}</div>
      {{if .Signature.SignatureImageURL}}<img class="signature-image" src="{{.Signature.SignatureImageURL}}" alt="signature">{{else}}<div class="signature-placeholder">+</div>{{end}}
    </div>
    <div class="doctor-details">
      {{.Signature.DoctorName}}<br>
      Provider Number: {{.Signature.ProviderNumber}}<br>
      {{.Signature.ContactEmail}}
    </div>
  </div>
</div>
</body>
</html>
`))

// RenderHTML is the preview pass: a pure function from Layout to markup.
func RenderHTML(layout Layout) (string, error) {
	var b strings.Builder
	if err := previewTmpl.Execute(&b, layout); err != nil {
		return "", fmt.Errorf("rendering preview: %w", err)
	}
	return b.String(), nil
}
