package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/mafunzo/mafunzo/core/enrollment"
)

type draftRow struct {
	ID               string    `db:"id"`
	ProgramID        string    `db:"program_id"`
	ParticipantID    string    `db:"participant_id"`
	ParticipantName  string    `db:"participant_name"`
	ParticipantEmail string    `db:"participant_email"`
	ReferralCode     string    `db:"referral_code"`
	Submitted        bool      `db:"submitted"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

type enrollmentRow struct {
	ID               string      `db:"id"`
	ProgramID        string      `db:"program_id"`
	ParticipantID    string      `db:"participant_id"`
	ParticipantName  string      `db:"participant_name"`
	ParticipantEmail string      `db:"participant_email"`
	BasePrice        int64       `db:"base_price"`
	Discount         int64       `db:"discount"`
	FinalPrice       int64       `db:"final_price"`
	TrackingID       null.String `db:"tracking_id"`
	Status           string      `db:"status"`
	CreatedAt        time.Time   `db:"created_at"`
	DecidedAt        null.Time   `db:"decided_at"`
}

type enrollmentRepository struct {
	db *sqlx.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *sqlx.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (repo enrollmentRepository) packDraft(d enrollment.Draft) draftRow {
	return draftRow{
		ID:               d.ID,
		ProgramID:        d.ProgramID,
		ParticipantID:    d.ParticipantID,
		ParticipantName:  d.ParticipantName,
		ParticipantEmail: d.ParticipantEmail,
		ReferralCode:     d.ReferralCode,
		Submitted:        d.Submitted,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
}

func (repo enrollmentRepository) unpackDraft(row draftRow) enrollment.Draft {
	return enrollment.Draft{
		ID:               row.ID,
		ProgramID:        row.ProgramID,
		ParticipantID:    row.ParticipantID,
		ParticipantName:  row.ParticipantName,
		ParticipantEmail: row.ParticipantEmail,
		ReferralCode:     row.ReferralCode,
		Submitted:        row.Submitted,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func (repo enrollmentRepository) packEnrollment(e enrollment.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:               e.ID,
		ProgramID:        e.ProgramID,
		ParticipantID:    e.ParticipantID,
		ParticipantName:  e.ParticipantName,
		ParticipantEmail: e.ParticipantEmail,
		BasePrice:        e.BasePrice,
		Discount:         e.Discount,
		FinalPrice:       e.FinalPrice,
		TrackingID:       null.NewString(e.TrackingID, e.TrackingID != ""),
		Status:           string(e.Status),
		CreatedAt:        e.CreatedAt.UTC(),
		DecidedAt:        null.NewTime(e.DecidedAt.UTC(), !e.DecidedAt.IsZero()),
	}
}

func (repo enrollmentRepository) unpackEnrollment(row enrollmentRow) enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:               row.ID,
		ProgramID:        row.ProgramID,
		ParticipantID:    row.ParticipantID,
		ParticipantName:  row.ParticipantName,
		ParticipantEmail: row.ParticipantEmail,
		BasePrice:        row.BasePrice,
		Discount:         row.Discount,
		FinalPrice:       row.FinalPrice,
		TrackingID:       row.TrackingID.String,
		Status:           enrollment.Status(row.Status),
		CreatedAt:        row.CreatedAt,
		DecidedAt:        row.DecidedAt.Time,
	}
}

func (repo enrollmentRepository) trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func (repo enrollmentRepository) CreateDraft(ctx context.Context, d enrollment.Draft) (enrollment.Draft, error) {
	row := repo.packDraft(d)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO enrollment_draft (
			id, program_id, participant_id, participant_name, participant_email,
			referral_code, submitted, created_at, updated_at)
		VALUES (
			:id, :program_id, :participant_id, :participant_name, :participant_email,
			:referral_code, :submitted, :created_at, :updated_at)`, row)
	if err != nil {
		return enrollment.Draft{}, errors.Wrap(err, "inserting enrollment draft")
	}
	return repo.unpackDraft(row), nil
}

func (repo enrollmentRepository) GetDraft(ctx context.Context, id string) (enrollment.Draft, error) {
	var row draftRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM enrollment_draft WHERE id = $1`, id)
	if err != nil {
		return enrollment.Draft{}, repo.trapNoRowsErr(err, enrollment.ErrDraftNotFound, "finding enrollment draft")
	}
	return repo.unpackDraft(row), nil
}

func (repo enrollmentRepository) UpdateDraft(ctx context.Context, d enrollment.Draft) (enrollment.Draft, error) {
	row := repo.packDraft(d)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE enrollment_draft SET
			participant_name = :participant_name, participant_email = :participant_email,
			referral_code = :referral_code, submitted = :submitted, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return enrollment.Draft{}, errors.Wrap(err, "updating enrollment draft")
	}
	if n, err := res.RowsAffected(); err != nil {
		return enrollment.Draft{}, errors.Wrap(err, "updating enrollment draft")
	} else if n == 0 {
		return enrollment.Draft{}, enrollment.ErrDraftNotFound
	}
	return repo.unpackDraft(row), nil
}

// ClaimDraft relies on the conditional UPDATE as the atomicity primitive:
// of two concurrent claims only one sees an affected row.
func (repo enrollmentRepository) ClaimDraft(ctx context.Context, id string, at time.Time) (enrollment.Draft, bool, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE enrollment_draft SET submitted = true, updated_at = $2
		WHERE id = $1 AND NOT submitted`, id, at.UTC())
	if err != nil {
		return enrollment.Draft{}, false, errors.Wrap(err, "claiming enrollment draft")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return enrollment.Draft{}, false, errors.Wrap(err, "claiming enrollment draft")
	}

	var row draftRow
	if err = repo.db.GetContext(ctx, &row, `SELECT * FROM enrollment_draft WHERE id = $1`, id); err != nil {
		return enrollment.Draft{}, false, repo.trapNoRowsErr(err, enrollment.ErrDraftNotFound, "finding enrollment draft")
	}
	return repo.unpackDraft(row), n > 0, nil
}

func (repo enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	row := repo.packEnrollment(e)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO enrollment (
			id, program_id, participant_id, participant_name, participant_email,
			base_price, discount, final_price, tracking_id, status, created_at, decided_at)
		VALUES (
			:id, :program_id, :participant_id, :participant_name, :participant_email,
			:base_price, :discount, :final_price, :tracking_id, :status, :created_at, :decided_at)`, row)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return repo.unpackEnrollment(row), nil
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, id string) (enrollment.Enrollment, error) {
	var row enrollmentRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM enrollment WHERE id = $1`, id)
	if err != nil {
		return enrollment.Enrollment{}, repo.trapNoRowsErr(err, enrollment.ErrNotFound, "finding enrollment")
	}
	return repo.unpackEnrollment(row), nil
}

func (repo enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment) (enrollment.Enrollment, error) {
	row := repo.packEnrollment(e)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE enrollment SET status = :status, decided_at = :decided_at
		WHERE id = :id`, row)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, err := res.RowsAffected(); err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	} else if n == 0 {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return repo.unpackEnrollment(row), nil
}

func (repo enrollmentRepository) QueryEnrollmentsByParticipant(ctx context.Context, participantID string) ([]enrollment.Enrollment, error) {
	var rows []enrollmentRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM enrollment WHERE participant_id = $1 ORDER BY created_at`, participantID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, repo.unpackEnrollment(row))
	}
	return enrollments, nil
}
