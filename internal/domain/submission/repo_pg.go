package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicai/docserver/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Submission Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const submissionCols = `id, patient_name, patient_email, patient_phone, patient_address,
	form_type, form_data, submitted_at, document_status,
	approved_by_clinician, approved_by_email, approved_at,
	start_date, end_date, document_content, pdf_file_path, pdf_url,
	additional_recipients, preferred_specialist_email, consent_to_share_with_specialist,
	created_at, updated_at`

func scanSubmission(row pgx.Row) (*Submission, error) {
	var s Submission
	err := row.Scan(&s.ID, &s.PatientName, &s.PatientEmail, &s.PatientPhone, &s.PatientAddress,
		&s.FormType, &s.FormData, &s.SubmittedAt, &s.DocumentStatus,
		&s.ApprovedByClinician, &s.ApprovedByEmail, &s.ApprovedAt,
		&s.StartDate, &s.EndDate, &s.DocumentContent, &s.PDFFilePath, &s.PDFURL,
		&s.AdditionalRecipients, &s.PreferredSpecialistEmail, &s.ConsentToShareWithSpecialist,
		&s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *repoPG) Create(ctx context.Context, s *Submission) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.DocumentStatus == "" {
		s.DocumentStatus = StatusPending
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO submissions (id, patient_name, patient_email, patient_phone, patient_address,
			form_type, form_data, submitted_at, document_status,
			start_date, end_date, document_content,
			additional_recipients, preferred_specialist_email, consent_to_share_with_specialist)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		s.ID, s.PatientName, s.PatientEmail, s.PatientPhone, s.PatientAddress,
		s.FormType, s.FormData, s.SubmittedAt, s.DocumentStatus,
		s.StartDate, s.EndDate, s.DocumentContent,
		s.AdditionalRecipients, s.PreferredSpecialistEmail, s.ConsentToShareWithSpecialist)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return scanSubmission(r.conn(ctx).QueryRow(ctx,
		`SELECT `+submissionCols+` FROM submissions WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, status string, limit, offset int) ([]*Submission, int, error) {
	where := ``
	args := []interface{}{}
	if status != "" {
		where = ` WHERE document_status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM submissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT `+submissionCols+` FROM submissions%s ORDER BY submitted_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, nil
}

func (r *repoPG) UpdateApproval(ctx context.Context, s *Submission) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE submissions SET document_status=$2, approved_by_clinician=$3,
			approved_by_email=$4, approved_at=$5, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.DocumentStatus, s.ApprovedByClinician, s.ApprovedByEmail, s.ApprovedAt)
	return err
}

func (r *repoPG) UpdateDraftFields(ctx context.Context, id uuid.UUID, f DraftFields) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE submissions SET patient_name=$2, start_date=$3, end_date=$4,
			document_content=$5, updated_at=NOW()
		WHERE id = $1`,
		id, f.PatientName, f.StartDate, f.EndDate, f.DocumentContent)
	return err
}

func (r *repoPG) UpdateDocumentPointers(ctx context.Context, id uuid.UUID, filePath, url string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE submissions SET pdf_file_path=$2, pdf_url=$3, updated_at=NOW()
		WHERE id = $1`,
		id, filePath, url)
	return err
}

// =========== ClinicianProfile Repository ===========

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository { return &profileRepoPG{pool: pool} }

func (r *profileRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const profileCols = `id, email, first_name, last_name, practice_name, license_number,
	specialization, phone, signature_image_url, created_at, updated_at`

func (r *profileRepoPG) GetByEmail(ctx context.Context, email string) (*ClinicianProfile, error) {
	var p ClinicianProfile
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+profileCols+` FROM clinician_profiles WHERE email = $1`, email).
		Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.PracticeName, &p.LicenseNumber,
			&p.Specialization, &p.Phone, &p.SignatureImageURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepoPG) Upsert(ctx context.Context, p *ClinicianProfile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinician_profiles (id, email, first_name, last_name, practice_name,
			license_number, specialization, phone, signature_image_url)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (email) DO UPDATE SET
			first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name,
			practice_name=EXCLUDED.practice_name, license_number=EXCLUDED.license_number,
			specialization=EXCLUDED.specialization, phone=EXCLUDED.phone,
			signature_image_url=EXCLUDED.signature_image_url, updated_at=NOW()`,
		p.ID, p.Email, p.FirstName, p.LastName, p.PracticeName,
		p.LicenseNumber, p.Specialization, p.Phone, p.SignatureImageURL)
	return err
}

// =========== ApprovalEvent Repository ===========

type approvalEventRepoPG struct{ pool *pgxpool.Pool }

func NewApprovalEventRepoPG(pool *pgxpool.Pool) ApprovalEventRepository {
	return &approvalEventRepoPG{pool: pool}
}

func (r *approvalEventRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *approvalEventRepoPG) Append(ctx context.Context, e *ApprovalEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO approval_events (id, submission_id, action, actor_email, notes, noted_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.SubmissionID, e.Action, e.ActorEmail, e.Notes, e.NotedAt)
	return err
}

func (r *approvalEventRepoPG) ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]*ApprovalEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, submission_id, action, actor_email, notes, noted_at
		FROM approval_events WHERE submission_id = $1 ORDER BY noted_at ASC`, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ApprovalEvent
	for rows.Next() {
		var e ApprovalEvent
		if err := rows.Scan(&e.ID, &e.SubmissionID, &e.Action, &e.ActorEmail, &e.Notes, &e.NotedAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, nil
}
