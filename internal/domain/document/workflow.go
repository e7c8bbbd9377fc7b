package document

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medicai/docserver/internal/domain/submission"
)

// SessionState is the single explicit state of a review session. One enum
// replaces scattered booleans so invalid combinations (stale and sending at
// once) are unreachable.
type SessionState string

const (
	StateNoArtifact SessionState = "no_artifact"
	StateReady      SessionState = "ready"
	StateStale      SessionState = "stale"
	StateSent       SessionState = "sent"
)

var (
	ErrNoArtifact    = errors.New("no generated artifact for this session")
	ErrStaleArtifact = errors.New("document data has changed since the last generation, regenerate first")
	ErrNoSession     = errors.New("no open review session for this submission")
)

// Session is the per-submission review state: the editable draft, the current
// in-memory artifact, and the workflow position. Sessions live in memory for
// the duration of a review; the submission row is only touched on explicit
// save, link and approval operations.
type Session struct {
	mu sync.Mutex

	SubmissionID uuid.UUID
	Draft        Draft
	Profile      *submission.ClinicianProfile
	Submission   *submission.Submission

	State    SessionState
	Artifact *Artifact
	// linked reports whether the current artifact has been uploaded and its
	// URL recorded on the submission. Cleared on every regeneration.
	linked bool
}

// SessionView is the JSON shape handlers return for session state queries.
type SessionView struct {
	SubmissionID string       `json:"submission_id"`
	State        SessionState `json:"state"`
	Draft        Draft        `json:"draft"`
	ArtifactSize int          `json:"artifact_size,omitempty"`
	GeneratedAt  *time.Time   `json:"generated_at,omitempty"`
	Recipients   []string     `json:"default_recipients,omitempty"`
}

func (s *Session) view() SessionView {
	v := SessionView{
		SubmissionID: s.SubmissionID.String(),
		State:        s.State,
		Draft:        s.Draft,
		Recipients:   s.Submission.DefaultRecipients(),
	}
	if s.Artifact != nil {
		v.ArtifactSize = s.Artifact.Size
		t := s.Artifact.GeneratedAt
		v.GeneratedAt = &t
	}
	return v
}

// View returns a snapshot of the session for API responses.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// UpdateDraft replaces the editable fields. Any edit after a successful
// generation marks the artifact stale; the artifact itself is retained so
// the operator can still inspect it, but sending is refused until
// regeneration.
func (s *Session) UpdateDraft(d Draft) SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Draft != d && (s.State == StateReady || s.State == StateSent) {
		s.State = StateStale
	}
	s.Draft = d
	return s.view()
}

// setArtifact installs a freshly generated artifact and clears staleness.
func (s *Session) setArtifact(a *Artifact) {
	s.Artifact = a
	s.State = StateReady
	s.linked = false
}

// SessionManager holds open review sessions keyed by submission id.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[uuid.UUID]*Session)}
}

// Open creates (or replaces) the session for a submission, initializing the
// draft from the submission and profile.
func (m *SessionManager) Open(sub *submission.Submission, profile *submission.ClinicianProfile) *Session {
	s := &Session{
		SubmissionID: sub.ID,
		Draft:        NewDraft(sub, profile),
		Profile:      profile,
		Submission:   sub,
		State:        StateNoArtifact,
	}
	m.mu.Lock()
	m.sessions[sub.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the open session for a submission, or ErrNoSession.
func (m *SessionManager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Close discards a session.
func (m *SessionManager) Close(id uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// StepResult reports one step of the generate → persist → link → notify
// sequence, so a caller can see exactly where a run stopped and resume from
// the failed step instead of replaying the whole sequence.
type StepResult struct {
	Name string `json:"name"`
	OK   bool   `json:"ok"`
	Err  string `json:"error,omitempty"`
}

// RecipientResult reports one recipient of a fan-out send.
type RecipientResult struct {
	Recipient string `json:"recipient"`
	OK        bool   `json:"ok"`
	Err       string `json:"error,omitempty"`
}

// SendReport is the outcome of a fan-out: per-recipient results plus the
// workflow steps that ran before dispatch.
type SendReport struct {
	Steps      []StepResult      `json:"steps"`
	Recipients []RecipientResult `json:"recipients"`
	State      SessionState      `json:"state"`
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// artifactKey builds the collision-resistant storage key for a submission's
// document: sanitized patient name plus a millisecond timestamp.
func artifactKey(patientName string, now time.Time) string {
	safe := unsafeNameChars.ReplaceAllString(patientName, "_")
	if safe == "" || safe == "_" {
		safe = "MedicAI_Certificate"
	}
	if len(safe) > 60 {
		safe = safe[:60]
	}
	return fmt.Sprintf("%s_%d.pdf", safe, now.UnixMilli())
}
