package document

import (
	"time"

	"github.com/medicai/docserver/internal/domain/submission"
)

// Layout is the intermediate document description both rendering passes
// consume. It is built exactly once per render from the draft, the profile
// and the submission, so a layout rule changes in one place and the PDF and
// HTML outputs stay consistent by construction.
type Layout struct {
	Header    HeaderBlock
	DateLine  string
	Patient   PatientBlock
	Greeting  string
	Body      string
	Signature SignatureBlock
}

// HeaderBlock: brand mark top-left, contact lines top-right.
type HeaderBlock struct {
	Brand        string
	ContactLines []string
}

// PatientBlock: one line each, fixed line height in both passes.
type PatientBlock struct {
	Regarding string
	DOB       string
	Phone     string
	Email     string
}

// SignatureBlock is anchored to the page bottom in the vector pass and
// pushed to the container bottom in the preview pass.
type SignatureBlock struct {
	Closing           string
	SignatureImageURL string // empty means placeholder glyph
	DoctorName        string
	ProviderNumber    string
	ContactEmail      string
}

// ClinicIdentity is the letterhead content, injected from configuration.
type ClinicIdentity struct {
	Brand        string
	ContactLines []string
	Email        string
}

// DefaultClinicIdentity matches the practice letterhead.
func DefaultClinicIdentity() ClinicIdentity {
	return ClinicIdentity{
		Brand: "MedicAI",
		ContactLines: []string{
			"ABN: 20 687 490 277",
			"21 Campbell St",
			"Surry Hills NSW 2010, Australia",
			"1300 AI FORM (1300 243 676)",
			"info@medicai.com.au",
		},
		Email: "info@medicai.com.au",
	}
}

// WithEmail returns a copy of the identity with the contact email replaced,
// both in the signature block source and in the matching letterhead contact
// line. The brand mark, ABN and street address are the printed stationery and
// stay fixed. An empty email keeps the identity unchanged.
func (c ClinicIdentity) WithEmail(email string) ClinicIdentity {
	if email == "" || email == c.Email {
		return c
	}
	lines := append([]string(nil), c.ContactLines...)
	for i, line := range lines {
		if line == c.Email {
			lines[i] = email
		}
	}
	c.ContactLines = lines
	c.Email = email
	return c
}

// BuildLayout assembles the layout description. now supplies the header date
// so regeneration from identical inputs is reproducible in tests.
func BuildLayout(d Draft, profile *submission.ClinicianProfile, sub *submission.Submission,
	clinic ClinicIdentity, now time.Time) Layout {

	patient := PatientBlock{
		Regarding: orPlaceholder(d.PatientName, "{patientName}"),
		DOB:       orPlaceholder(d.PatientDOB, "{dobDay/Month/Year}"),
		Phone:     orPlaceholder(strDeref(sub.PatientPhone), "{patientPhone}"),
		Email:     orPlaceholder(sub.PatientEmail, "{patientEmail}"),
	}

	sig := SignatureBlock{
		Closing:        "Kindly,",
		DoctorName:     doctorName(profile),
		ProviderNumber: providerNumber(profile),
		ContactEmail:   clinic.Email,
	}
	if profile != nil && profile.SignatureImageURL != nil {
		sig.SignatureImageURL = *profile.SignatureImageURL
	}

	return Layout{
		Header:    HeaderBlock{Brand: clinic.Brand, ContactLines: clinic.ContactLines},
		DateLine:  "Date: " + now.Format(dateLong),
		Patient:   patient,
		Greeting:  greeting(profile),
		Body:      d.BodyWithDateClauses(),
		Signature: sig,
	}
}

func orPlaceholder(v, placeholder string) string {
	if v == "" {
		return placeholder
	}
	return v
}

func strDeref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
