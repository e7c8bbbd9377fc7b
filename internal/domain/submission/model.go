package submission

import (
	"time"

	"github.com/google/uuid"
)

// Document status lifecycle for a submission's clinical sign-off.
const (
	StatusPending       = "pending"
	StatusApproved      = "approved"
	StatusNeedsRevision = "needs_revision"
)

// Approval event actions.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionRevert  = "revert"
)

// Recipient is an additional document recipient declared at intake.
type Recipient struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Submission maps to the submissions table: one patient's clinical-form
// intake record being processed into a document. Created by the intake form,
// mutated by the review workflow, never deleted.
type Submission struct {
	ID                           uuid.UUID      `db:"id" json:"id"`
	PatientName                  string         `db:"patient_name" json:"patient_name"`
	PatientEmail                 string         `db:"patient_email" json:"patient_email"`
	PatientPhone                 *string        `db:"patient_phone" json:"patient_phone,omitempty"`
	PatientAddress               *string        `db:"patient_address" json:"patient_address,omitempty"`
	FormType                     string         `db:"form_type" json:"form_type"`
	FormData                     map[string]any `db:"form_data" json:"form_data,omitempty"`
	SubmittedAt                  time.Time      `db:"submitted_at" json:"submitted_at"`
	DocumentStatus               string         `db:"document_status" json:"document_status"`
	ApprovedByClinician          bool           `db:"approved_by_clinician" json:"approved_by_clinician"`
	ApprovedByEmail              *string        `db:"approved_by_email" json:"approved_by_email,omitempty"`
	ApprovedAt                   *time.Time     `db:"approved_at" json:"approved_at,omitempty"`
	StartDate                    *string        `db:"start_date" json:"start_date,omitempty"`
	EndDate                      *string        `db:"end_date" json:"end_date,omitempty"`
	DocumentContent              *string        `db:"document_content" json:"document_content,omitempty"`
	PDFFilePath                  *string        `db:"pdf_file_path" json:"pdf_file_path,omitempty"`
	PDFURL                       *string        `db:"pdf_url" json:"pdf_url,omitempty"`
	AdditionalRecipients         []Recipient    `db:"additional_recipients" json:"additional_recipients,omitempty"`
	PreferredSpecialistEmail     *string        `db:"preferred_specialist_email" json:"preferred_specialist_email,omitempty"`
	ConsentToShareWithSpecialist bool           `db:"consent_to_share_with_specialist" json:"consent_to_share_with_specialist"`
	CreatedAt                    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt                    time.Time      `db:"updated_at" json:"updated_at"`
}

// DefaultRecipients returns the pre-populated additional recipient addresses:
// the declared additional recipients plus the preferred specialist when the
// patient consented to sharing. The operator can edit the list before sending.
func (s *Submission) DefaultRecipients() []string {
	var out []string
	for _, r := range s.AdditionalRecipients {
		if r.Email != "" {
			out = append(out, r.Email)
		}
	}
	if s.ConsentToShareWithSpecialist && s.PreferredSpecialistEmail != nil && *s.PreferredSpecialistEmail != "" {
		out = append(out, *s.PreferredSpecialistEmail)
	}
	return out
}

// ClinicianProfile is the signer-of-record, looked up by the reviewing
// operator's email. Absence is a valid state; the renderer falls back to
// placeholder identity.
type ClinicianProfile struct {
	ID                uuid.UUID `db:"id" json:"id"`
	Email             string    `db:"email" json:"email"`
	FirstName         *string   `db:"first_name" json:"first_name,omitempty"`
	LastName          *string   `db:"last_name" json:"last_name,omitempty"`
	PracticeName      *string   `db:"practice_name" json:"practice_name,omitempty"`
	LicenseNumber     *string   `db:"license_number" json:"license_number,omitempty"`
	Specialization    *string   `db:"specialization" json:"specialization,omitempty"`
	Phone             *string   `db:"phone" json:"phone,omitempty"`
	SignatureImageURL *string   `db:"signature_image_url" json:"signature_image_url,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// ApprovalEvent is one entry in the append-only sign-off log. The submission
// row keeps only the current approver; the event log keeps history.
type ApprovalEvent struct {
	ID           uuid.UUID `db:"id" json:"id"`
	SubmissionID uuid.UUID `db:"submission_id" json:"submission_id"`
	Action       string    `db:"action" json:"action"`
	ActorEmail   string    `db:"actor_email" json:"actor_email"`
	Notes        *string   `db:"notes" json:"notes,omitempty"`
	NotedAt      time.Time `db:"noted_at" json:"noted_at"`
}

// DraftFields is the partial field set persisted on explicit save from the
// review screen.
type DraftFields struct {
	PatientName     string  `json:"patient_name"`
	StartDate       *string `json:"start_date,omitempty"`
	EndDate         *string `json:"end_date,omitempty"`
	DocumentContent string  `json:"document_content"`
}
