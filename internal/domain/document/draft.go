// Package document implements the clinical document subsystem: the editable
// draft model, default content generation, the dual renderer (PDF vector pass
// and HTML preview pass over a shared layout description), and the review
// workflow that generates, persists, links and sends the artifact.
package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/medicai/docserver/internal/domain/submission"
)

// Date formats used across the document subsystem (en-AU).
const (
	dateShort = "02/01/2006"     // body clauses
	dateLong  = "2 January 2006" // header date line
)

// Form types with dedicated content templates. Anything else gets the
// generic clinical-assessment fallback.
const (
	FormMedicalCertificate  = "Medical Certificate"
	FormDermatologyReferral = "Dermatology Referral"
)

// Draft is the mutable in-session document data the clinician edits before
// generating an artifact. It is initialized from the submission and the
// clinician profile, and persisted back only on explicit save.
type Draft struct {
	PatientName   string `json:"patient_name"`
	PatientDOB    string `json:"patient_dob"`
	Complaint     string `json:"complaint"`
	FromDate      string `json:"from_date"` // ISO date (2006-01-02) or empty
	ToDate        string `json:"to_date"`
	ClinicianName string `json:"clinician_name"`
	ClinicName    string `json:"clinic_name"`
	Body          string `json:"body"`
}

// NewDraft builds the initial draft. A previously saved document body wins;
// otherwise a default body is synthesized from the form type. The profile may
// be nil; identity fields fall back to placeholders.
func NewDraft(sub *submission.Submission, profile *submission.ClinicianProfile) Draft {
	d := Draft{
		PatientName:   sub.PatientName,
		PatientDOB:    patientDOB(sub),
		Complaint:     formString(sub, "concern", "mainConcern"),
		ClinicianName: doctorName(profile),
		ClinicName:    clinicName(profile),
	}
	if sub.StartDate != nil {
		d.FromDate = *sub.StartDate
	}
	if sub.EndDate != nil {
		d.ToDate = *sub.EndDate
	}
	if sub.DocumentContent != nil && *sub.DocumentContent != "" {
		d.Body = *sub.DocumentContent
	} else {
		d.Body = GenerateContent(sub)
	}
	return d
}

// GenerateContent synthesizes the default document body keyed off form type.
// Missing fields degrade to placeholders, never errors.
func GenerateContent(sub *submission.Submission) string {
	name := sub.PatientName
	if name == "" {
		name = "[Patient Name]"
	}

	switch sub.FormType {
	case FormMedicalCertificate:
		return fmt.Sprintf(`TO WHOM IT MAY CONCERN:

I hereby certify that %s attended my medical practice for consultation and clinical assessment.

Following comprehensive medical evaluation, I confirm that this patient has a medical condition that renders them unfit for work/study activities for the period specified above.

This medical certificate is issued in accordance with Australian medical standards and professional guidelines. The patient should be excused from work/study commitments during the certified period to allow for appropriate recovery.

Should you require any additional medical information or clarification regarding this certificate, please contact our practice using the details provided above.`, name)

	case FormDermatologyReferral:
		concern := formString(sub, "concern", "mainConcern")
		if concern == "" {
			concern = "Dermatological assessment"
		}
		duration := formString(sub, "duration")
		if duration == "" {
			duration = "Recent onset"
		}

		var b strings.Builder
		fmt.Fprintf(&b, `REFERRAL TO DERMATOLOGIST

Dear Colleague,

I am referring %s for dermatological assessment and management.

Chief Complaint: %s
Duration: %s`, name, concern, duration)

		if symptoms := formList(sub, "symptoms"); len(symptoms) > 0 {
			fmt.Fprintf(&b, "\nSymptoms: %s", strings.Join(symptoms, ", "))
		}
		if treatments := formList(sub, "previousTreatments"); len(treatments) > 0 {
			fmt.Fprintf(&b, "\nPrevious Treatments: %s", strings.Join(treatments, ", "))
		}
		return b.String()

	default:
		return fmt.Sprintf(`Clinical Assessment and Recommendations

Patient: %s
Date of Assessment: %s

Following clinical evaluation, please find my assessment and recommendations as requested.`,
			name, time.Now().Format(dateShort))
	}
}

// BodyWithDateClauses returns the draft body with the leave-date clause
// appended. The three variants are mutually exclusive: both dates yield the
// leave-period clause, a lone from-date yields the effective-date clause, and
// neither yields the body untouched. The clause always follows the base body.
func (d Draft) BodyWithDateClauses() string {
	from := parseISODate(d.FromDate)
	to := parseISODate(d.ToDate)

	switch {
	case from != nil && to != nil:
		return d.Body + fmt.Sprintf(`

PERIOD OF MEDICAL LEAVE: %s to %s

The patient is certified as medically unfit for work/study during the above-mentioned period.`,
			from.Format(dateShort), to.Format(dateShort))
	case from != nil:
		return d.Body + fmt.Sprintf(`

EFFECTIVE DATE: %s

This certification is effective from the above date.`, from.Format(dateShort))
	default:
		return d.Body
	}
}

func parseISODate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}

func patientDOB(sub *submission.Submission) string {
	raw := formString(sub, "dateOfBirth", "patientDOB")
	if raw == "" {
		return ""
	}
	if t := parseISODate(raw); t != nil {
		return t.Format(dateShort)
	}
	return raw
}

func formString(sub *submission.Submission, keys ...string) string {
	for _, k := range keys {
		if v, ok := sub.FormData[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func formList(sub *submission.Submission, key string) []string {
	var out []string
	switch v := sub.FormData[key].(type) {
	case []string:
		out = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// doctorName falls back through "Dr First Last", "Dr First", "Dr Unknown".
func doctorName(profile *submission.ClinicianProfile) string {
	if profile != nil && profile.FirstName != nil && *profile.FirstName != "" {
		if profile.LastName != nil && *profile.LastName != "" {
			return fmt.Sprintf("Dr %s %s", *profile.FirstName, *profile.LastName)
		}
		return fmt.Sprintf("Dr %s", *profile.FirstName)
	}
	return "Dr Unknown"
}

func clinicName(profile *submission.ClinicianProfile) string {
	if profile != nil && profile.PracticeName != nil && *profile.PracticeName != "" {
		return *profile.PracticeName
	}
	return "MedicAi Practice"
}

func providerNumber(profile *submission.ClinicianProfile) string {
	if profile != nil && profile.LicenseNumber != nil && *profile.LicenseNumber != "" {
		return *profile.LicenseNumber
	}
	return "Pending Registration"
}

// greeting derives the salutation from the clinician's first name.
func greeting(profile *submission.ClinicianProfile) string {
	if profile != nil && profile.FirstName != nil && *profile.FirstName != "" {
		return fmt.Sprintf("Dear %s's employer,", *profile.FirstName)
	}
	return "Dear employer,"
}
