package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medicai/docserver/internal/platform/notify"
)

var (
	ErrNotFound        = errors.New("submission not found")
	ErrAlreadyApproved = errors.New("submission is already approved")
	ErrNotApproved     = errors.New("submission is not approved")
)

// TxRunner executes fn inside a database transaction carried on the context,
// so repository calls made within fn share one commit.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Service owns the sign-off lifecycle: pending → approved, pending →
// needs_revision, and the approved → pending reversion path. Every transition
// records the acting operator and appends to the approval event log.
type Service struct {
	subs        Repository
	profiles    ProfileRepository
	events      ApprovalEventRepository
	sender      notify.Sender
	tx          TxRunner
	clinicName  string
	clinicEmail string
	logger      zerolog.Logger
}

func NewService(subs Repository, profiles ProfileRepository, events ApprovalEventRepository,
	sender notify.Sender, tx TxRunner, clinicName, clinicEmail string, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Service{
		subs:        subs,
		profiles:    profiles,
		events:      events,
		sender:      sender,
		tx:          tx,
		clinicName:  clinicName,
		clinicEmail: clinicEmail,
		logger:      logger.With().Str("component", "submission").Logger(),
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return s.subs.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]*Submission, int, error) {
	if status != "" && status != StatusPending && status != StatusApproved && status != StatusNeedsRevision {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return s.subs.List(ctx, status, limit, offset)
}

// Approve transitions pending/needs_revision → approved, recording the
// operator and timestamp. When the submission already carries a generated
// document URL, the patient is notified; notification failure is logged and
// does not roll back the approval.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, operator string, notes *string) (*Submission, error) {
	if operator == "" {
		return nil, fmt.Errorf("operator email is required")
	}
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.DocumentStatus == StatusApproved {
		return nil, ErrAlreadyApproved
	}

	now := time.Now().UTC()
	sub.DocumentStatus = StatusApproved
	sub.ApprovedByClinician = true
	sub.ApprovedByEmail = &operator
	sub.ApprovedAt = &now
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.subs.UpdateApproval(ctx, sub); err != nil {
			return err
		}
		s.appendEvent(ctx, id, ActionApprove, operator, notes)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("approving submission %s: %w", id, err)
	}

	if sub.PDFURL != nil && *sub.PDFURL != "" && sub.PatientEmail != "" {
		msg := notify.Message{
			SubmissionID: sub.ID.String(),
			Recipient:    sub.PatientEmail,
			PatientName:  sub.PatientName,
			FormType:     sub.FormType,
			PDFURL:       *sub.PDFURL,
			ClinicName:   s.clinicName,
			ClinicEmail:  s.clinicEmail,
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			s.logger.Warn().Err(err).Str("submission_id", id.String()).
				Msg("approval notification failed")
		}
	}

	return sub, nil
}

// Reject transitions to needs_revision and records who rejected and when.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, operator string, notes *string) (*Submission, error) {
	if operator == "" {
		return nil, fmt.Errorf("operator email is required")
	}
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.DocumentStatus == StatusApproved {
		return nil, ErrAlreadyApproved
	}

	now := time.Now().UTC()
	sub.DocumentStatus = StatusNeedsRevision
	sub.ApprovedByClinician = false
	sub.ApprovedByEmail = &operator
	sub.ApprovedAt = &now
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.subs.UpdateApproval(ctx, sub); err != nil {
			return err
		}
		s.appendEvent(ctx, id, ActionReject, operator, notes)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rejecting submission %s: %w", id, err)
	}
	return sub, nil
}

// RevertApproval moves approved → pending and clears the approver identity
// and timestamp. Reverting a submission that is already pending with no
// approver is a no-op, not an error, so retried reverts are safe.
func (s *Service) RevertApproval(ctx context.Context, id uuid.UUID, operator string) (*Submission, error) {
	if operator == "" {
		return nil, fmt.Errorf("operator email is required")
	}
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.DocumentStatus == StatusPending && !sub.ApprovedByClinician && sub.ApprovedByEmail == nil {
		return sub, nil
	}

	sub.DocumentStatus = StatusPending
	sub.ApprovedByClinician = false
	sub.ApprovedByEmail = nil
	sub.ApprovedAt = nil
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.subs.UpdateApproval(ctx, sub); err != nil {
			return err
		}
		s.appendEvent(ctx, id, ActionRevert, operator, nil)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reverting approval for submission %s: %w", id, err)
	}
	return sub, nil
}

// SaveDraftFields persists the edited document fields back onto the
// submission. This is the explicit save; in-session edits live in the review
// session until saved.
func (s *Service) SaveDraftFields(ctx context.Context, id uuid.UUID, fields DraftFields) error {
	if fields.PatientName == "" {
		return fmt.Errorf("patient_name is required")
	}
	if _, err := s.subs.GetByID(ctx, id); err != nil {
		return err
	}
	return s.subs.UpdateDraftFields(ctx, id, fields)
}

// ProfileByEmail looks up the signer-of-record. A missing profile returns
// (nil, nil); callers fall back to placeholder identity.
func (s *Service) ProfileByEmail(ctx context.Context, email string) (*ClinicianProfile, error) {
	if email == "" {
		return nil, nil
	}
	return s.profiles.GetByEmail(ctx, email)
}

func (s *Service) ApprovalEvents(ctx context.Context, id uuid.UUID) ([]*ApprovalEvent, error) {
	return s.events.ListBySubmission(ctx, id)
}

// appendEvent writes to the audit log; a log write failure never fails the
// transition that caused it.
func (s *Service) appendEvent(ctx context.Context, id uuid.UUID, action, actor string, notes *string) {
	ev := &ApprovalEvent{
		SubmissionID: id,
		Action:       action,
		ActorEmail:   actor,
		Notes:        notes,
		NotedAt:      time.Now().UTC(),
	}
	if err := s.events.Append(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("submission_id", id.String()).Str("action", action).
			Msg("failed to append approval event")
	}
}
