package document

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medicai/docserver/internal/domain/submission"
	"github.com/medicai/docserver/internal/platform/aiassist"
	"github.com/medicai/docserver/internal/platform/blobstore"
	"github.com/medicai/docserver/internal/platform/notify"
)

// SignatureFetcher retrieves the clinician's signature image. Fetch failures
// degrade to the placeholder glyph, never block generation.
type SignatureFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPSignatureFetcher downloads signature images over HTTP.
type HTTPSignatureFetcher struct {
	client *resty.Client
}

func NewHTTPSignatureFetcher() *HTTPSignatureFetcher {
	return &HTTPSignatureFetcher{
		client: resty.New().SetTimeout(10 * time.Second),
	}
}

func (f *HTTPSignatureFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching signature image: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("signature image fetch returned %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// Service coordinates the review workflow per submission: open a session,
// edit the draft, generate, preview, persist, link and send.
type Service struct {
	sessions  *SessionManager
	subs      submission.Repository
	profiles  submission.ProfileRepository
	store     blobstore.Store
	bucket    string
	sender    notify.Sender
	renderer  Renderer
	suggester aiassist.Suggester
	sigFetch  SignatureFetcher
	clinic    ClinicIdentity
	logger    zerolog.Logger
}

func NewService(subs submission.Repository, profiles submission.ProfileRepository,
	store blobstore.Store, bucket string, sender notify.Sender, renderer Renderer,
	suggester aiassist.Suggester, sigFetch SignatureFetcher, clinic ClinicIdentity,
	logger zerolog.Logger) *Service {
	return &Service{
		sessions:  NewSessionManager(),
		subs:      subs,
		profiles:  profiles,
		store:     store,
		bucket:    bucket,
		sender:    sender,
		renderer:  renderer,
		suggester: suggester,
		sigFetch:  sigFetch,
		clinic:    clinic,
		logger:    logger.With().Str("component", "document").Logger(),
	}
}

// Open starts (or restarts) a review session, initializing the draft from
// the submission and the operator's clinician profile.
func (s *Service) Open(ctx context.Context, id uuid.UUID, operator string) (SessionView, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	var profile *submission.ClinicianProfile
	if operator != "" {
		profile, err = s.profiles.GetByEmail(ctx, operator)
		if err != nil {
			return SessionView{}, fmt.Errorf("loading clinician profile: %w", err)
		}
	}
	return s.sessions.Open(sub, profile).View(), nil
}

// State returns the current session snapshot.
func (s *Service) State(id uuid.UUID) (SessionView, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionView{}, err
	}
	return session.View(), nil
}

// UpdateDraft applies edits; any change after a generation flags staleness.
func (s *Service) UpdateDraft(id uuid.UUID, d Draft) (SessionView, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionView{}, err
	}
	return session.UpdateDraft(d), nil
}

// Generate runs the vector pass for the session. On failure the previous
// artifact and state are untouched and the error is reported.
func (s *Service) Generate(ctx context.Context, id uuid.UUID) (SessionView, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionView{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	layout := BuildLayout(session.Draft, session.Profile, session.Submission, s.clinic, time.Now())
	signature := s.loadSignature(ctx, session.Profile)

	artifact, err := s.renderer.Render(layout, signature)
	if err != nil {
		s.logger.Error().Err(err).Str("submission_id", id.String()).Msg("pdf generation failed")
		return session.view(), fmt.Errorf("generating document: %w", err)
	}

	session.setArtifact(artifact)
	s.logger.Info().Str("submission_id", id.String()).Int("size", artifact.Size).Msg("document generated")
	return session.view(), nil
}

// Preview runs the HTML pass over the same layout the vector pass consumes.
func (s *Service) Preview(id uuid.UUID) (string, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return "", err
	}

	session.mu.Lock()
	layout := BuildLayout(session.Draft, session.Profile, session.Submission, s.clinic, time.Now())
	session.mu.Unlock()

	return RenderHTML(layout)
}

// CurrentArtifact returns the session's generated document for download.
func (s *Service) CurrentArtifact(id uuid.UUID) (*Artifact, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.Artifact == nil {
		return nil, ErrNoArtifact
	}
	return session.Artifact, nil
}

// Save persists the draft's editable fields back onto the submission row.
func (s *Service) Save(ctx context.Context, id uuid.UUID) (SessionView, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionView{}, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	fields := submission.DraftFields{
		PatientName:     session.Draft.PatientName,
		DocumentContent: session.Draft.Body,
	}
	if session.Draft.FromDate != "" {
		v := session.Draft.FromDate
		fields.StartDate = &v
	}
	if session.Draft.ToDate != "" {
		v := session.Draft.ToDate
		fields.EndDate = &v
	}
	if err := s.subs.UpdateDraftFields(ctx, id, fields); err != nil {
		return session.view(), fmt.Errorf("saving document data: %w", err)
	}
	return session.view(), nil
}

// Send validates the session state, links the artifact if needed, then
// dispatches one notification per recipient sequentially. A failing
// recipient is reported and does not roll back or retry the others.
func (s *Service) Send(ctx context.Context, id uuid.UUID, primary, additionalCSV string) (*SendReport, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if primary == "" {
		return nil, fmt.Errorf("primary recipient is required")
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.State {
	case StateNoArtifact:
		return nil, ErrNoArtifact
	case StateStale:
		return nil, ErrStaleArtifact
	}

	report := &SendReport{State: session.State}

	if !session.linked {
		steps := s.persistAndLink(ctx, session)
		report.Steps = append(report.Steps, steps...)
		for _, st := range steps {
			if !st.OK && st.Name != "delete_previous" {
				report.State = session.State
				return report, fmt.Errorf("linking artifact failed at %s: %s", st.Name, st.Err)
			}
		}
	}

	recipients := []string{primary}
	if additionalCSV != "" {
		for _, addr := range strings.Split(additionalCSV, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				recipients = append(recipients, addr)
			}
		}
	}

	anySent := false
	for _, addr := range recipients {
		msg := notify.Message{
			SubmissionID: session.SubmissionID.String(),
			Recipient:    addr,
			PatientName:  session.Submission.PatientName,
			FormType:     session.Submission.FormType,
			PDFURL:       strDeref(session.Submission.PDFURL),
			ClinicName:   s.clinic.Brand,
			ClinicEmail:  s.clinic.Email,
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			s.logger.Warn().Err(err).Str("recipient", addr).Str("submission_id", id.String()).
				Msg("document notification failed")
			report.Recipients = append(report.Recipients, RecipientResult{Recipient: addr, Err: err.Error()})
			continue
		}
		anySent = true
		report.Recipients = append(report.Recipients, RecipientResult{Recipient: addr, OK: true})
	}

	if anySent {
		session.State = StateSent
	}
	report.State = session.State
	return report, nil
}

// persistAndLink uploads the current artifact and records its location on
// the submission. The previously stored object is deleted first; a deletion
// failure is logged, reported in the step list, and does not block the
// upload. Caller holds the session lock.
func (s *Service) persistAndLink(ctx context.Context, session *Session) []StepResult {
	var steps []StepResult

	if prev := session.Submission.PDFFilePath; prev != nil && *prev != "" {
		step := StepResult{Name: "delete_previous", OK: true}
		if err := s.store.Delete(ctx, s.bucket, *prev); err != nil {
			s.logger.Warn().Err(err).Str("key", *prev).Msg("failed to delete previous document")
			step.OK = false
			step.Err = err.Error()
		}
		steps = append(steps, step)
	}

	key := artifactKey(session.Submission.PatientName, time.Now())
	path, err := s.store.Upload(ctx, s.bucket, key, session.Artifact.Content, session.Artifact.ContentType)
	if err != nil {
		return append(steps, StepResult{Name: "upload", Err: err.Error()})
	}
	steps = append(steps, StepResult{Name: "upload", OK: true})

	url := s.store.PublicURL(s.bucket, path)
	if err := s.subs.UpdateDocumentPointers(ctx, session.SubmissionID, path, url); err != nil {
		return append(steps, StepResult{Name: "link", Err: err.Error()})
	}
	steps = append(steps, StepResult{Name: "link", OK: true})

	session.Submission.PDFFilePath = &path
	session.Submission.PDFURL = &url
	session.linked = true
	return steps
}

// Suggest asks the AI assist for a body-text suggestion built from the
// session's clinical context. Best-effort; callers degrade to manual text.
func (s *Service) Suggest(ctx context.Context, id uuid.UUID) (string, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return "", err
	}

	session.mu.Lock()
	req := aiassist.SuggestRequest{
		FormType:     session.Submission.FormType,
		PatientName:  session.Draft.PatientName,
		Symptoms:     strings.Join(formList(session.Submission, "symptoms"), ", "),
		Instructions: session.Draft.Complaint,
	}
	session.mu.Unlock()

	return s.suggester.Suggest(ctx, req)
}

// Close discards the session for a submission.
func (s *Service) Close(id uuid.UUID) {
	s.sessions.Close(id)
}

func (s *Service) loadSignature(ctx context.Context, profile *submission.ClinicianProfile) []byte {
	if profile == nil || profile.SignatureImageURL == nil || *profile.SignatureImageURL == "" {
		return nil
	}
	data, err := s.sigFetch.Fetch(ctx, *profile.SignatureImageURL)
	if err != nil {
		s.logger.Warn().Err(err).Msg("signature image unavailable, using placeholder")
		return nil
	}
	return data
}
