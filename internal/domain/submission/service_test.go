package submission

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medicai/docserver/internal/platform/notify"
)

// -- Mock Repositories --

type mockRepo struct {
	items map[uuid.UUID]*Submission
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Submission)}
}

func (m *mockRepo) Create(_ context.Context, s *Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.DocumentStatus == "" {
		s.DocumentStatus = StatusPending
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = time.Now()
	m.items[s.ID] = s
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Submission, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, status string, limit, offset int) ([]*Submission, int, error) {
	var result []*Submission
	for _, s := range m.items {
		if status == "" || s.DocumentStatus == status {
			result = append(result, s)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) UpdateApproval(_ context.Context, s *Submission) error {
	stored, ok := m.items[s.ID]
	if !ok {
		return fmt.Errorf("not found")
	}
	stored.DocumentStatus = s.DocumentStatus
	stored.ApprovedByClinician = s.ApprovedByClinician
	stored.ApprovedByEmail = s.ApprovedByEmail
	stored.ApprovedAt = s.ApprovedAt
	return nil
}

func (m *mockRepo) UpdateDraftFields(_ context.Context, id uuid.UUID, f DraftFields) error {
	stored, ok := m.items[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	stored.PatientName = f.PatientName
	stored.StartDate = f.StartDate
	stored.EndDate = f.EndDate
	stored.DocumentContent = &f.DocumentContent
	return nil
}

func (m *mockRepo) UpdateDocumentPointers(_ context.Context, id uuid.UUID, filePath, url string) error {
	stored, ok := m.items[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	stored.PDFFilePath = &filePath
	stored.PDFURL = &url
	return nil
}

type mockProfileRepo struct {
	items map[string]*ClinicianProfile
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{items: make(map[string]*ClinicianProfile)}
}

func (m *mockProfileRepo) GetByEmail(_ context.Context, email string) (*ClinicianProfile, error) {
	return m.items[email], nil
}

func (m *mockProfileRepo) Upsert(_ context.Context, p *ClinicianProfile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.items[p.Email] = p
	return nil
}

type mockEventRepo struct {
	events []*ApprovalEvent
}

func (m *mockEventRepo) Append(_ context.Context, e *ApprovalEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockEventRepo) ListBySubmission(_ context.Context, id uuid.UUID) ([]*ApprovalEvent, error) {
	var out []*ApprovalEvent
	for _, e := range m.events {
		if e.SubmissionID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func strPtr(s string) *string { return &s }

func newTestService() (*Service, *mockRepo, *mockEventRepo, *notify.MockSender) {
	repo := newMockRepo()
	events := &mockEventRepo{}
	sender := notify.NewMockSender()
	svc := NewService(repo, newMockProfileRepo(), events, sender, nil,
		"MedicAI", "info@medicai.com.au", zerolog.Nop())
	return svc, repo, events, sender
}

func seedSubmission(t *testing.T, repo *mockRepo) *Submission {
	t.Helper()
	sub := &Submission{
		PatientName:    "Jane Doe",
		PatientEmail:   "jane@example.com",
		FormType:       "Medical Certificate",
		SubmittedAt:    time.Now(),
		DocumentStatus: StatusPending,
	}
	if err := repo.Create(context.Background(), sub); err != nil {
		t.Fatalf("seeding submission: %v", err)
	}
	return sub
}

// -- Tests --

func TestApprove(t *testing.T) {
	svc, repo, events, _ := newTestService()
	sub := seedSubmission(t, repo)

	got, err := svc.Approve(context.Background(), sub.ID, "dr@clinic.com", nil)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if got.DocumentStatus != StatusApproved {
		t.Errorf("status = %q, want approved", got.DocumentStatus)
	}
	if !got.ApprovedByClinician {
		t.Error("approved_by_clinician = false")
	}
	if got.ApprovedByEmail == nil || *got.ApprovedByEmail != "dr@clinic.com" {
		t.Errorf("approved_by_email = %v", got.ApprovedByEmail)
	}
	if got.ApprovedAt == nil {
		t.Error("approved_at = nil")
	}
	if len(events.events) != 1 || events.events[0].Action != ActionApprove {
		t.Errorf("events = %+v, want one approve event", events.events)
	}
}

func TestApprove_AlreadyApproved(t *testing.T) {
	svc, repo, _, _ := newTestService()
	sub := seedSubmission(t, repo)

	if _, err := svc.Approve(context.Background(), sub.ID, "dr@clinic.com", nil); err != nil {
		t.Fatalf("first Approve() error = %v", err)
	}
	if _, err := svc.Approve(context.Background(), sub.ID, "dr2@clinic.com", nil); err != ErrAlreadyApproved {
		t.Errorf("second Approve() error = %v, want ErrAlreadyApproved", err)
	}
}

func TestApprove_NotifiesPatientWhenDocumentLinked(t *testing.T) {
	svc, repo, _, sender := newTestService()
	sub := seedSubmission(t, repo)
	url := "https://files.example.com/documents/jane_doe_1700000000000.pdf"
	if err := repo.UpdateDocumentPointers(context.Background(), sub.ID, "jane_doe_1700000000000.pdf", url); err != nil {
		t.Fatalf("linking document: %v", err)
	}

	if _, err := svc.Approve(context.Background(), sub.ID, "dr@clinic.com", nil); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent = %d messages, want 1", len(sent))
	}
	if sent[0].Recipient != "jane@example.com" || sent[0].PDFURL != url {
		t.Errorf("notification = %+v", sent[0])
	}
}

func TestApprove_NotifyFailureDoesNotRollBack(t *testing.T) {
	svc, repo, _, sender := newTestService()
	sub := seedSubmission(t, repo)
	if err := repo.UpdateDocumentPointers(context.Background(), sub.ID, "a.pdf", "https://x/a.pdf"); err != nil {
		t.Fatalf("linking document: %v", err)
	}
	sender.FailFor["jane@example.com"] = true

	got, err := svc.Approve(context.Background(), sub.ID, "dr@clinic.com", nil)
	if err != nil {
		t.Fatalf("Approve() error = %v, notification failure must not fail approval", err)
	}
	if got.DocumentStatus != StatusApproved {
		t.Errorf("status = %q, want approved", got.DocumentStatus)
	}
}

func TestReject(t *testing.T) {
	svc, repo, events, _ := newTestService()
	sub := seedSubmission(t, repo)

	got, err := svc.Reject(context.Background(), sub.ID, "dr@clinic.com", strPtr("illegible dates"))
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if got.DocumentStatus != StatusNeedsRevision {
		t.Errorf("status = %q, want needs_revision", got.DocumentStatus)
	}
	if got.ApprovedByClinician {
		t.Error("approved_by_clinician = true after reject")
	}
	if len(events.events) != 1 || events.events[0].Action != ActionReject {
		t.Errorf("events = %+v, want one reject event", events.events)
	}
	if events.events[0].Notes == nil || *events.events[0].Notes != "illegible dates" {
		t.Errorf("event notes = %v", events.events[0].Notes)
	}
}

func TestRevertApproval(t *testing.T) {
	svc, repo, events, _ := newTestService()
	sub := seedSubmission(t, repo)

	if _, err := svc.Approve(context.Background(), sub.ID, "dr@clinic.com", nil); err != nil {
		t.Fatalf("Approve() error = %v", err)
	}

	got, err := svc.RevertApproval(context.Background(), sub.ID, "dr@clinic.com")
	if err != nil {
		t.Fatalf("RevertApproval() error = %v", err)
	}
	if got.DocumentStatus != StatusPending {
		t.Errorf("status = %q, want pending", got.DocumentStatus)
	}
	if got.ApprovedByEmail != nil || got.ApprovedAt != nil || got.ApprovedByClinician {
		t.Errorf("approver fields not cleared: %+v", got)
	}

	// Second revert in a row is a no-op, not an error.
	before := len(events.events)
	again, err := svc.RevertApproval(context.Background(), sub.ID, "dr@clinic.com")
	if err != nil {
		t.Fatalf("second RevertApproval() error = %v", err)
	}
	if again.DocumentStatus != StatusPending {
		t.Errorf("status after second revert = %q", again.DocumentStatus)
	}
	if len(events.events) != before {
		t.Errorf("second revert appended an event")
	}
}

func TestSaveDraftFields(t *testing.T) {
	svc, repo, _, _ := newTestService()
	sub := seedSubmission(t, repo)

	fields := DraftFields{
		PatientName:     "Jane A. Doe",
		StartDate:       strPtr("2024-01-10"),
		EndDate:         strPtr("2024-01-17"),
		DocumentContent: "Edited certificate body.",
	}
	if err := svc.SaveDraftFields(context.Background(), sub.ID, fields); err != nil {
		t.Fatalf("SaveDraftFields() error = %v", err)
	}

	got, err := svc.Get(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PatientName != "Jane A. Doe" {
		t.Errorf("patient_name = %q", got.PatientName)
	}
	if got.DocumentContent == nil || *got.DocumentContent != "Edited certificate body." {
		t.Errorf("document_content = %v", got.DocumentContent)
	}
}

func TestSaveDraftFields_RequiresPatientName(t *testing.T) {
	svc, repo, _, _ := newTestService()
	sub := seedSubmission(t, repo)

	if err := svc.SaveDraftFields(context.Background(), sub.ID, DraftFields{}); err == nil {
		t.Error("SaveDraftFields() with empty patient_name succeeded, want error")
	}
}

func TestProfileByEmail_AbsenceIsNotError(t *testing.T) {
	svc, _, _, _ := newTestService()

	p, err := svc.ProfileByEmail(context.Background(), "nobody@clinic.com")
	if err != nil {
		t.Fatalf("ProfileByEmail() error = %v", err)
	}
	if p != nil {
		t.Errorf("ProfileByEmail() = %+v, want nil", p)
	}
}

func TestList_RejectsInvalidStatus(t *testing.T) {
	svc, _, _, _ := newTestService()
	if _, _, err := svc.List(context.Background(), "archived", 20, 0); err == nil {
		t.Error("List() with invalid status succeeded, want error")
	}
}

func TestDefaultRecipients(t *testing.T) {
	specialist := "derm@specialists.com"
	sub := &Submission{
		AdditionalRecipients: []Recipient{
			{Name: "Employer", Email: "hr@employer.com"},
			{Email: "records@clinic.com"},
		},
		PreferredSpecialistEmail:     &specialist,
		ConsentToShareWithSpecialist: true,
	}

	got := sub.DefaultRecipients()
	want := []string{"hr@employer.com", "records@clinic.com", "derm@specialists.com"}
	if len(got) != len(want) {
		t.Fatalf("DefaultRecipients() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recipient[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// No consent: specialist excluded.
	sub.ConsentToShareWithSpecialist = false
	if got := sub.DefaultRecipients(); len(got) != 2 {
		t.Errorf("DefaultRecipients() without consent = %v", got)
	}
}
