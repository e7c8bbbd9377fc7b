package submission

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, s *Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	List(ctx context.Context, status string, limit, offset int) ([]*Submission, int, error)
	UpdateApproval(ctx context.Context, s *Submission) error
	UpdateDraftFields(ctx context.Context, id uuid.UUID, fields DraftFields) error
	UpdateDocumentPointers(ctx context.Context, id uuid.UUID, filePath, url string) error
}

type ProfileRepository interface {
	// GetByEmail returns (nil, nil) when no profile exists for the email.
	GetByEmail(ctx context.Context, email string) (*ClinicianProfile, error)
	Upsert(ctx context.Context, p *ClinicianProfile) error
}

type ApprovalEventRepository interface {
	Append(ctx context.Context, e *ApprovalEvent) error
	ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]*ApprovalEvent, error)
}
