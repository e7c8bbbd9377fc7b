package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medicai/docserver/internal/domain/submission"
	"github.com/medicai/docserver/internal/platform/aiassist"
	"github.com/medicai/docserver/internal/platform/blobstore"
	"github.com/medicai/docserver/internal/platform/notify"
)

// -- Mocks --

type mockSubRepo struct {
	items map[uuid.UUID]*submission.Submission
}

func newMockSubRepo() *mockSubRepo {
	return &mockSubRepo{items: make(map[uuid.UUID]*submission.Submission)}
}

func (m *mockSubRepo) Create(_ context.Context, s *submission.Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.items[s.ID] = s
	return nil
}

func (m *mockSubRepo) GetByID(_ context.Context, id uuid.UUID) (*submission.Submission, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return s, nil
}

func (m *mockSubRepo) List(_ context.Context, _ string, _, _ int) ([]*submission.Submission, int, error) {
	return nil, 0, nil
}

func (m *mockSubRepo) UpdateApproval(_ context.Context, _ *submission.Submission) error { return nil }

func (m *mockSubRepo) UpdateDraftFields(_ context.Context, id uuid.UUID, f submission.DraftFields) error {
	s, ok := m.items[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	s.PatientName = f.PatientName
	s.StartDate = f.StartDate
	s.EndDate = f.EndDate
	s.DocumentContent = &f.DocumentContent
	return nil
}

func (m *mockSubRepo) UpdateDocumentPointers(_ context.Context, id uuid.UUID, path, url string) error {
	s, ok := m.items[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	s.PDFFilePath = &path
	s.PDFURL = &url
	return nil
}

type mockProfileRepo struct {
	items map[string]*submission.ClinicianProfile
}

func (m *mockProfileRepo) GetByEmail(_ context.Context, email string) (*submission.ClinicianProfile, error) {
	return m.items[email], nil
}

func (m *mockProfileRepo) Upsert(_ context.Context, _ *submission.ClinicianProfile) error { return nil }

// recordingStore wraps the in-memory store and records delete calls so
// superseding cleanup can be asserted.
type recordingStore struct {
	*blobstore.MemoryStore
	deletes []string
	uploads []string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: blobstore.NewMemoryStore("https://files.example.com")}
}

func (r *recordingStore) Delete(ctx context.Context, bucket, key string) error {
	r.deletes = append(r.deletes, key)
	return r.MemoryStore.Delete(ctx, bucket, key)
}

func (r *recordingStore) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	r.uploads = append(r.uploads, key)
	return r.MemoryStore.Upload(ctx, bucket, key, data, contentType)
}

// fakeRenderer returns canned bytes, valid or not, without a PDF engine.
type fakeRenderer struct {
	content []byte
	fail    bool
	calls   int
}

func (f *fakeRenderer) Render(_ Layout, _ []byte) (*Artifact, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("render engine unavailable")
	}
	if err := ValidatePDF(f.content); err != nil {
		return nil, err
	}
	return &Artifact{
		Content:     f.content,
		ContentType: "application/pdf",
		Size:        len(f.content),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

type fakeSuggester struct {
	text string
	err  error
}

func (f *fakeSuggester) Suggest(_ context.Context, _ aiassist.SuggestRequest) (string, error) {
	return f.text, f.err
}

type nopSigFetcher struct{}

func (nopSigFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	return nil, errors.New("unavailable")
}

type testEnv struct {
	svc    *Service
	repo   *mockSubRepo
	store  *recordingStore
	sender *notify.MockSender
	sub    *submission.Submission
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newMockSubRepo()
	store := newRecordingStore()
	sender := notify.NewMockSender()

	sub := testSubmission(FormMedicalCertificate)
	if err := repo.Create(context.Background(), sub); err != nil {
		t.Fatalf("seeding submission: %v", err)
	}

	svc := NewService(repo, &mockProfileRepo{items: map[string]*submission.ClinicianProfile{}},
		store, "documents", sender, &fakeRenderer{content: []byte("%PDF-1.4 fake")},
		&fakeSuggester{text: "suggested body"}, nopSigFetcher{},
		DefaultClinicIdentity(), zerolog.Nop())

	return &testEnv{svc: svc, repo: repo, store: store, sender: sender, sub: sub}
}

func (e *testEnv) open(t *testing.T) SessionView {
	t.Helper()
	view, err := e.svc.Open(context.Background(), e.sub.ID, "anna@clinic.com")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return view
}

func (e *testEnv) generate(t *testing.T) SessionView {
	t.Helper()
	view, err := e.svc.Generate(context.Background(), e.sub.ID)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	return view
}

// -- Tests --

func TestOpen_InitializesDraft(t *testing.T) {
	env := newTestEnv(t)
	view := env.open(t)

	if view.State != StateNoArtifact {
		t.Errorf("state = %q, want no_artifact", view.State)
	}
	if view.Draft.PatientName != "Jane Doe" {
		t.Errorf("draft patient = %q", view.Draft.PatientName)
	}
	if !strings.HasPrefix(view.Draft.Body, "TO WHOM IT MAY CONCERN:") {
		t.Errorf("draft body not synthesized")
	}
}

func TestGenerate_TransitionsToReady(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)

	view := env.generate(t)
	if view.State != StateReady {
		t.Errorf("state = %q, want ready", view.State)
	}
	if view.ArtifactSize == 0 {
		t.Error("artifact size = 0")
	}
}

func TestStaleness_EveryDraftFieldEditFlagsStale(t *testing.T) {
	env := newTestEnv(t)
	base := env.open(t).Draft

	mutations := map[string]func(*Draft){
		"patient_name":   func(d *Draft) { d.PatientName = "Janet Doe" },
		"patient_dob":    func(d *Draft) { d.PatientDOB = "01/01/1990" },
		"complaint":      func(d *Draft) { d.Complaint = "migraine" },
		"from_date":      func(d *Draft) { d.FromDate = "2024-02-01" },
		"to_date":        func(d *Draft) { d.ToDate = "2024-02-05" },
		"clinician_name": func(d *Draft) { d.ClinicianName = "Dr Someone Else" },
		"clinic_name":    func(d *Draft) { d.ClinicName = "Other Practice" },
		"body":           func(d *Draft) { d.Body = "rewritten" },
	}

	for field, mutate := range mutations {
		env.generate(t)

		edited := base
		mutate(&edited)
		view, err := env.svc.UpdateDraft(env.sub.ID, edited)
		if err != nil {
			t.Fatalf("UpdateDraft(%s) error = %v", field, err)
		}
		if view.State != StateStale {
			t.Errorf("editing %s: state = %q, want stale", field, view.State)
		}

		// Staleness holds until the next successful generation.
		if view := env.generate(t); view.State != StateReady {
			t.Errorf("after regenerate: state = %q, want ready", view.State)
		}
	}
}

func TestUpdateDraft_NoChangeKeepsReady(t *testing.T) {
	env := newTestEnv(t)
	draft := env.open(t).Draft
	env.generate(t)

	view, err := env.svc.UpdateDraft(env.sub.ID, draft)
	if err != nil {
		t.Fatalf("UpdateDraft() error = %v", err)
	}
	if view.State != StateReady {
		t.Errorf("identical draft write: state = %q, want ready", view.State)
	}
}

func TestGenerate_InvalidOutputRejected(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)

	// Renderer emits bytes without the magic header.
	env.svc.renderer = &fakeRenderer{content: []byte("<html>broken</html>")}

	_, err := env.svc.Generate(context.Background(), env.sub.ID)
	if !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("Generate() error = %v, want ErrInvalidPDF", err)
	}

	view, err := env.svc.State(env.sub.ID)
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if view.State != StateNoArtifact || view.ArtifactSize != 0 {
		t.Errorf("invalid output must never become current: state=%q size=%d", view.State, view.ArtifactSize)
	}
}

func TestGenerate_FailureKeepsPriorArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)
	env.generate(t)

	prior, err := env.svc.CurrentArtifact(env.sub.ID)
	if err != nil {
		t.Fatalf("CurrentArtifact() error = %v", err)
	}

	env.svc.renderer = &fakeRenderer{fail: true}
	if _, err := env.svc.Generate(context.Background(), env.sub.ID); err == nil {
		t.Fatal("Generate() with failing renderer succeeded")
	}

	current, err := env.svc.CurrentArtifact(env.sub.ID)
	if err != nil {
		t.Fatalf("CurrentArtifact() after failure error = %v", err)
	}
	if &current.Content[0] != &prior.Content[0] {
		t.Error("failed generation must leave the prior artifact current")
	}
	if view, _ := env.svc.State(env.sub.ID); view.State != StateReady {
		t.Errorf("state = %q, want ready retained", view.State)
	}
}

func TestSend_RefusesWithoutArtifact(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)

	if _, err := env.svc.Send(context.Background(), env.sub.ID, "a@example.com", ""); !errors.Is(err, ErrNoArtifact) {
		t.Errorf("Send() error = %v, want ErrNoArtifact", err)
	}
}

func TestSend_RefusesStaleArtifact(t *testing.T) {
	env := newTestEnv(t)
	draft := env.open(t).Draft
	env.generate(t)

	draft.Body = "edited after generation"
	if _, err := env.svc.UpdateDraft(env.sub.ID, draft); err != nil {
		t.Fatalf("UpdateDraft() error = %v", err)
	}

	if _, err := env.svc.Send(context.Background(), env.sub.ID, "a@example.com", ""); !errors.Is(err, ErrStaleArtifact) {
		t.Errorf("Send() error = %v, want ErrStaleArtifact", err)
	}
}

func TestSend_LinksUploadsAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)
	env.generate(t)

	report, err := env.svc.Send(context.Background(), env.sub.ID, "jane@example.com", "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if report.State != StateSent {
		t.Errorf("state = %q, want sent", report.State)
	}
	if len(env.store.uploads) != 1 {
		t.Fatalf("uploads = %v, want exactly one", env.store.uploads)
	}
	key := env.store.uploads[0]
	if !strings.HasPrefix(key, "Jane_Doe_") || !strings.HasSuffix(key, ".pdf") {
		t.Errorf("storage key = %q, want sanitized name with timestamp", key)
	}

	sub, _ := env.repo.GetByID(context.Background(), env.sub.ID)
	if sub.PDFFilePath == nil || *sub.PDFFilePath != key {
		t.Errorf("pdf_file_path = %v, want %q", sub.PDFFilePath, key)
	}
	wantURL := "https://files.example.com/documents/" + key
	if sub.PDFURL == nil || *sub.PDFURL != wantURL {
		t.Errorf("pdf_url = %v, want %q", sub.PDFURL, wantURL)
	}

	sent := env.sender.Sent()
	if len(sent) != 1 || sent[0].PDFURL != wantURL {
		t.Errorf("notifications = %+v", sent)
	}
}

func TestSend_SupersedingDeleteExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	draft := env.open(t).Draft
	env.generate(t)

	if _, err := env.svc.Send(context.Background(), env.sub.ID, "jane@example.com", ""); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	firstKey := env.store.uploads[0]

	// Edit, regenerate, send again: the previous object is deleted once
	// before the new upload.
	draft.Body = "amended body"
	if _, err := env.svc.UpdateDraft(env.sub.ID, draft); err != nil {
		t.Fatalf("UpdateDraft() error = %v", err)
	}
	env.generate(t)
	if _, err := env.svc.Send(context.Background(), env.sub.ID, "jane@example.com", ""); err != nil {
		t.Fatalf("second Send() error = %v", err)
	}

	if len(env.store.deletes) != 1 || env.store.deletes[0] != firstKey {
		t.Errorf("deletes = %v, want exactly [%q]", env.store.deletes, firstKey)
	}
	if len(env.store.uploads) != 2 {
		t.Errorf("uploads = %v, want two", env.store.uploads)
	}
	if env.store.Len() != 1 {
		t.Errorf("stored objects = %d, want 1 current", env.store.Len())
	}
}

func TestSend_FanOutPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)
	env.generate(t)
	env.sender.FailFor["b@example.com"] = true

	report, err := env.svc.Send(context.Background(), env.sub.ID, "a@example.com", "b@example.com, c@example.com")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(report.Recipients) != 3 {
		t.Fatalf("recipients = %d, want 3", len(report.Recipients))
	}
	wantOK := map[string]bool{"a@example.com": true, "b@example.com": false, "c@example.com": true}
	for _, r := range report.Recipients {
		if r.OK != wantOK[r.Recipient] {
			t.Errorf("recipient %s: ok = %v, want %v", r.Recipient, r.OK, wantOK[r.Recipient])
		}
	}

	// A and C were delivered exactly once; B was not retried.
	sent := env.sender.Sent()
	if len(sent) != 2 {
		t.Errorf("delivered = %d messages, want 2 (no retries)", len(sent))
	}
	if report.State != StateSent {
		t.Errorf("state = %q, partial success still counts as sent", report.State)
	}
}

func TestSave_PersistsDraftFields(t *testing.T) {
	env := newTestEnv(t)
	draft := env.open(t).Draft
	draft.PatientName = "Jane A. Doe"
	draft.FromDate = "2024-01-10"
	draft.Body = "edited body"
	if _, err := env.svc.UpdateDraft(env.sub.ID, draft); err != nil {
		t.Fatalf("UpdateDraft() error = %v", err)
	}

	if _, err := env.svc.Save(context.Background(), env.sub.ID); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	sub, _ := env.repo.GetByID(context.Background(), env.sub.ID)
	if sub.PatientName != "Jane A. Doe" {
		t.Errorf("patient_name = %q", sub.PatientName)
	}
	if sub.StartDate == nil || *sub.StartDate != "2024-01-10" {
		t.Errorf("start_date = %v", sub.StartDate)
	}
	if sub.DocumentContent == nil || *sub.DocumentContent != "edited body" {
		t.Errorf("document_content = %v", sub.DocumentContent)
	}
}

func TestSuggest(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)

	got, err := env.svc.Suggest(context.Background(), env.sub.ID)
	if err != nil {
		t.Fatalf("Suggest() error = %v", err)
	}
	if got != "suggested body" {
		t.Errorf("Suggest() = %q", got)
	}
}

func TestSuggest_NotConfiguredPassesThrough(t *testing.T) {
	env := newTestEnv(t)
	env.open(t)
	env.svc.suggester = &fakeSuggester{err: aiassist.ErrNotConfigured}

	if _, err := env.svc.Suggest(context.Background(), env.sub.ID); !errors.Is(err, aiassist.ErrNotConfigured) {
		t.Errorf("Suggest() error = %v, want ErrNotConfigured", err)
	}
}

func TestState_NoSession(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.State(uuid.New()); !errors.Is(err, ErrNoSession) {
		t.Errorf("State() error = %v, want ErrNoSession", err)
	}
}

func TestArtifactKey_Sanitization(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	key := artifactKey("Jane O'Brien-Smith", now)
	if key != "Jane_O_Brien-Smith_1700000000000.pdf" {
		t.Errorf("key = %q", key)
	}

	if key := artifactKey("", now); key != "MedicAI_Certificate_1700000000000.pdf" {
		t.Errorf("empty name key = %q", key)
	}

	long := strings.Repeat("a", 100)
	key = artifactKey(long, now)
	if !strings.HasPrefix(key, strings.Repeat("a", 60)+"_") {
		t.Errorf("long name not truncated to 60: %q", key)
	}
}
