package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/mafunzo/mafunzo/core/referral"
)

// constraint names from the migrations; pq unique violations are mapped
// back to the matching domain error.
const (
	codeValueConstraint   = "referral_code_active_code_key"
	codeOwnerConstraint   = "referral_code_active_owner_key"
	enrollmentConstraint  = "referral_tracking_enrollment_id_key"
	uniqueViolationPQCode = "23505"
)

type codeRow struct {
	Code      string      `db:"code"`
	OwnerID   string      `db:"owner_id"`
	ProgramID null.String `db:"program_id"`
	IsActive  bool        `db:"is_active"`
	CreatedAt time.Time   `db:"created_at"`
}

type policyRow struct {
	ID              string    `db:"id"`
	ProgramID       string    `db:"program_id"`
	DiscountType    string    `db:"discount_type"`
	DiscountValue   int64     `db:"discount_value"`
	CommissionType  string    `db:"commission_type"`
	CommissionValue int64     `db:"commission_value"`
	MaxUsesPerCode  null.Int  `db:"max_uses_per_code"`
	MaxTotalUses    null.Int  `db:"max_total_uses"`
	ValidFrom       time.Time `db:"valid_from"`
	ValidUntil      null.Time `db:"valid_until"`
	IsActive        bool      `db:"is_active"`
	IsDeleted       bool      `db:"is_deleted"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

type trackingRow struct {
	ID               string    `db:"id"`
	Code             string    `db:"code"`
	ReferrerID       string    `db:"referrer_id"`
	ParticipantID    string    `db:"participant_id"`
	EnrollmentID     string    `db:"enrollment_id"`
	ProgramID        string    `db:"program_id"`
	PolicyID         string    `db:"policy_id"`
	DiscountApplied  int64     `db:"discount_applied"`
	CommissionEarned int64     `db:"commission_earned"`
	Status           string    `db:"status"`
	CreatedAt        time.Time `db:"created_at"`
	ConfirmedAt      null.Time `db:"confirmed_at"`
}

type referralRepository struct {
	db *sqlx.DB
}

var _ referral.Repository = (*referralRepository)(nil) // interface compliance check

func NewReferralRepository(db *sqlx.DB) *referralRepository {
	return &referralRepository{db: db}
}

func (repo referralRepository) packCode(c referral.Code) codeRow {
	return codeRow{
		Code:      referral.NormalizeCode(c.Code),
		OwnerID:   c.OwnerID,
		ProgramID: null.NewString(c.ProgramID, c.ProgramID != ""),
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt.UTC(),
	}
}

func (repo referralRepository) unpackCode(row codeRow) referral.Code {
	return referral.Code{
		Code:      row.Code,
		OwnerID:   row.OwnerID,
		ProgramID: row.ProgramID.String,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt,
	}
}

func (repo referralRepository) packPolicy(p referral.Policy) policyRow {
	return policyRow{
		ID:              p.ID,
		ProgramID:       p.ProgramID,
		DiscountType:    string(p.ParticipantDiscount.Type),
		DiscountValue:   p.ParticipantDiscount.Value,
		CommissionType:  string(p.ReferrerCommission.Type),
		CommissionValue: p.ReferrerCommission.Value,
		MaxUsesPerCode:  null.IntFromPtr(p.MaxUsesPerCode),
		MaxTotalUses:    null.IntFromPtr(p.MaxTotalUses),
		ValidFrom:       p.ValidFrom.UTC(),
		ValidUntil:      null.NewTime(p.ValidUntil.UTC(), !p.ValidUntil.IsZero()),
		IsActive:        p.IsActive,
		IsDeleted:       p.IsDeleted,
		CreatedAt:       p.CreatedAt.UTC(),
		UpdatedAt:       p.UpdatedAt.UTC(),
	}
}

func (repo referralRepository) unpackPolicy(row policyRow) referral.Policy {
	return referral.Policy{
		ID:                  row.ID,
		ProgramID:           row.ProgramID,
		ParticipantDiscount: referral.Benefit{Type: referral.BenefitType(row.DiscountType), Value: row.DiscountValue},
		ReferrerCommission:  referral.Benefit{Type: referral.BenefitType(row.CommissionType), Value: row.CommissionValue},
		MaxUsesPerCode:      row.MaxUsesPerCode.Ptr(),
		MaxTotalUses:        row.MaxTotalUses.Ptr(),
		ValidFrom:           row.ValidFrom,
		ValidUntil:          row.ValidUntil.Time,
		IsActive:            row.IsActive,
		IsDeleted:           row.IsDeleted,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

func (repo referralRepository) packTracking(t referral.Tracking) trackingRow {
	return trackingRow{
		ID:               t.ID,
		Code:             t.Code,
		ReferrerID:       t.ReferrerID,
		ParticipantID:    t.ParticipantID,
		EnrollmentID:     t.EnrollmentID,
		ProgramID:        t.ProgramID,
		PolicyID:         t.PolicyID,
		DiscountApplied:  t.DiscountApplied,
		CommissionEarned: t.CommissionEarned,
		Status:           string(t.Status),
		CreatedAt:        t.CreatedAt.UTC(),
		ConfirmedAt:      null.NewTime(t.ConfirmedAt.UTC(), !t.ConfirmedAt.IsZero()),
	}
}

func (repo referralRepository) unpackTracking(row trackingRow) referral.Tracking {
	return referral.Tracking{
		ID:               row.ID,
		Code:             row.Code,
		ReferrerID:       row.ReferrerID,
		ParticipantID:    row.ParticipantID,
		EnrollmentID:     row.EnrollmentID,
		ProgramID:        row.ProgramID,
		PolicyID:         row.PolicyID,
		DiscountApplied:  row.DiscountApplied,
		CommissionEarned: row.CommissionEarned,
		Status:           referral.Status(row.Status),
		CreatedAt:        row.CreatedAt,
		ConfirmedAt:      row.ConfirmedAt.Time,
	}
}

func (repo referralRepository) unpackTrackings(rows []trackingRow) []referral.Tracking {
	trackings := make([]referral.Tracking, 0, len(rows))
	for _, row := range rows {
		trackings = append(trackings, repo.unpackTracking(row))
	}
	return trackings
}

// trapNoRowsErr maps psql "no rows" err to notFound
func (repo referralRepository) trapNoRowsErr(err, notFound error, msg string) error {
	if err == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// trapUniqueErr maps a pq unique violation to the domain error registered
// for its constraint.
func (repo referralRepository) trapUniqueErr(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolationPQCode {
		switch pqErr.Constraint {
		case codeValueConstraint:
			return referral.ErrCodeExists
		case codeOwnerConstraint:
			return referral.ErrOwnerHasCode
		case enrollmentConstraint:
			return referral.ErrTrackingExists
		}
	}
	return errors.Wrap(err, msg)
}

func (repo referralRepository) CreateCode(ctx context.Context, code referral.Code) (referral.Code, error) {
	row := repo.packCode(code)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO referral_code (code, owner_id, program_id, is_active, created_at)
		VALUES (:code, :owner_id, :program_id, :is_active, :created_at)`, row)
	if err != nil {
		return referral.Code{}, repo.trapUniqueErr(err, "inserting referral code")
	}
	return repo.unpackCode(row), nil
}

func (repo referralRepository) GetCode(ctx context.Context, code string) (referral.Code, error) {
	var row codeRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM referral_code WHERE lower(code) = lower($1)
		ORDER BY is_active DESC, created_at DESC LIMIT 1`, code)
	if err != nil {
		return referral.Code{}, repo.trapNoRowsErr(err, referral.ErrCodeNotFound, "finding referral code")
	}
	return repo.unpackCode(row), nil
}

func (repo referralRepository) GetActiveOwnerCode(ctx context.Context, ownerID, programID string) (referral.Code, error) {
	var row codeRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM referral_code
		WHERE is_active AND owner_id = $1 AND coalesce(program_id::text, '') = $2`, ownerID, programID)
	if err != nil {
		return referral.Code{}, repo.trapNoRowsErr(err, referral.ErrCodeNotFound, "finding owner referral code")
	}
	return repo.unpackCode(row), nil
}

func (repo referralRepository) DeactivateCode(ctx context.Context, code string) (referral.Code, error) {
	res, err := repo.db.ExecContext(ctx, `
		UPDATE referral_code SET is_active = false WHERE lower(code) = lower($1)`, code)
	if err != nil {
		return referral.Code{}, errors.Wrap(err, "deactivating referral code")
	}
	if n, err := res.RowsAffected(); err != nil {
		return referral.Code{}, errors.Wrap(err, "deactivating referral code")
	} else if n == 0 {
		return referral.Code{}, referral.ErrCodeNotFound
	}
	return repo.GetCode(ctx, code)
}

func (repo referralRepository) CountActiveCodes(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := repo.db.GetContext(ctx, &n, `
		SELECT count(*) FROM referral_code WHERE is_active AND owner_id = $1`, ownerID)
	if err != nil {
		return 0, errors.Wrap(err, "counting active referral codes")
	}
	return n, nil
}

func (repo referralRepository) CreatePolicy(ctx context.Context, p referral.Policy) (referral.Policy, error) {
	row := repo.packPolicy(p)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO referral_policy (
			id, program_id, discount_type, discount_value, commission_type, commission_value,
			max_uses_per_code, max_total_uses, valid_from, valid_until,
			is_active, is_deleted, created_at, updated_at)
		VALUES (
			:id, :program_id, :discount_type, :discount_value, :commission_type, :commission_value,
			:max_uses_per_code, :max_total_uses, :valid_from, :valid_until,
			:is_active, :is_deleted, :created_at, :updated_at)`, row)
	if err != nil {
		return referral.Policy{}, errors.Wrap(err, "inserting referral policy")
	}
	return repo.unpackPolicy(row), nil
}

func (repo referralRepository) GetPolicy(ctx context.Context, id string) (referral.Policy, error) {
	var row policyRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT * FROM referral_policy WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return referral.Policy{}, repo.trapNoRowsErr(err, referral.ErrPolicyNotFound, "finding referral policy")
	}
	return repo.unpackPolicy(row), nil
}

func (repo referralRepository) UpdatePolicy(ctx context.Context, p referral.Policy) (referral.Policy, error) {
	row := repo.packPolicy(p)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE referral_policy SET
			discount_type = :discount_type, discount_value = :discount_value,
			commission_type = :commission_type, commission_value = :commission_value,
			max_uses_per_code = :max_uses_per_code, max_total_uses = :max_total_uses,
			valid_from = :valid_from, valid_until = :valid_until,
			is_active = :is_active, is_deleted = :is_deleted, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return referral.Policy{}, errors.Wrap(err, "updating referral policy")
	}
	if n, err := res.RowsAffected(); err != nil {
		return referral.Policy{}, errors.Wrap(err, "updating referral policy")
	} else if n == 0 {
		return referral.Policy{}, referral.ErrPolicyNotFound
	}
	return repo.unpackPolicy(row), nil
}

func (repo referralRepository) ActivePolicies(ctx context.Context, programID string) ([]referral.Policy, error) {
	var rows []policyRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT * FROM referral_policy
		WHERE is_active AND NOT is_deleted AND program_id = $1
		ORDER BY created_at DESC`, programID)
	if err != nil {
		return nil, errors.Wrap(err, "querying referral policies")
	}
	policies := make([]referral.Policy, 0, len(rows))
	for _, row := range rows {
		policies = append(policies, repo.unpackPolicy(row))
	}
	return policies, nil
}

// CreateTracking serializes on the code and locks the policy row so the cap
// counts and the insert form one atomic unit under concurrent enrollments.
// The advisory lock matters for global codes: two enrollments under different
// programs resolve different policies, so the policy row lock alone would let
// both count the code below its cap and insert.
func (repo referralRepository) CreateTracking(ctx context.Context, t referral.Tracking, maxUsesPerCode, maxTotalUses int) (referral.Tracking, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return referral.Tracking{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `
		SELECT pg_advisory_xact_lock(hashtext(lower($1)))`, t.Code); err != nil {
		return referral.Tracking{}, errors.Wrap(err, "locking referral code")
	}

	var policyID string
	if err = tx.GetContext(ctx, &policyID, `
		SELECT id FROM referral_policy WHERE id = $1 FOR UPDATE`, t.PolicyID); err != nil {
		return referral.Tracking{}, repo.trapNoRowsErr(err, referral.ErrPolicyNotFound, "locking referral policy")
	}

	if maxUsesPerCode > 0 {
		var n int
		if err = tx.GetContext(ctx, &n, `
			SELECT count(*) FROM referral_tracking
			WHERE lower(code) = lower($1) AND status <> 'cancelled'`, t.Code); err != nil {
			return referral.Tracking{}, errors.Wrap(err, "counting code uses")
		}
		if n >= maxUsesPerCode {
			return referral.Tracking{}, referral.ErrUsageCapExceeded
		}
	}
	if maxTotalUses > 0 {
		var n int
		if err = tx.GetContext(ctx, &n, `
			SELECT count(*) FROM referral_tracking
			WHERE policy_id = $1 AND status <> 'cancelled'`, t.PolicyID); err != nil {
			return referral.Tracking{}, errors.Wrap(err, "counting policy uses")
		}
		if n >= maxTotalUses {
			return referral.Tracking{}, referral.ErrUsageCapExceeded
		}
	}

	row := repo.packTracking(t)
	if _, err = tx.NamedExecContext(ctx, `
		INSERT INTO referral_tracking (
			id, code, referrer_id, participant_id, enrollment_id, program_id, policy_id,
			discount_applied, commission_earned, status, created_at, confirmed_at)
		VALUES (
			:id, :code, :referrer_id, :participant_id, :enrollment_id, :program_id, :policy_id,
			:discount_applied, :commission_earned, :status, :created_at, :confirmed_at)`, row); err != nil {
		return referral.Tracking{}, repo.trapUniqueErr(err, "inserting tracking record")
	}

	if err = tx.Commit(); err != nil {
		return referral.Tracking{}, errors.Wrap(err, "committing transaction")
	}
	return repo.unpackTracking(row), nil
}

func (repo referralRepository) GetTracking(ctx context.Context, id string) (referral.Tracking, error) {
	var row trackingRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM referral_tracking WHERE id = $1`, id)
	if err != nil {
		return referral.Tracking{}, repo.trapNoRowsErr(err, referral.ErrTrackingNotFound, "finding tracking record")
	}
	return repo.unpackTracking(row), nil
}

func (repo referralRepository) GetTrackingByEnrollment(ctx context.Context, enrollmentID string) (referral.Tracking, error) {
	var row trackingRow
	err := repo.db.GetContext(ctx, &row, `SELECT * FROM referral_tracking WHERE enrollment_id = $1`, enrollmentID)
	if err != nil {
		return referral.Tracking{}, repo.trapNoRowsErr(err, referral.ErrTrackingNotFound, "finding tracking record")
	}
	return repo.unpackTracking(row), nil
}

// TransitionTracking is a conditional UPDATE; the affected-row count tells
// whether this call won the transition.
func (repo referralRepository) TransitionTracking(ctx context.Context, id string, from, to referral.Status, at time.Time) (referral.Tracking, bool, error) {
	confirmedAt := null.NewTime(at.UTC(), to == referral.StatusConfirmed)
	res, err := repo.db.ExecContext(ctx, `
		UPDATE referral_tracking SET status = $1, confirmed_at = coalesce($2, confirmed_at)
		WHERE id = $3 AND status = $4`, string(to), confirmedAt, id, string(from))
	if err != nil {
		return referral.Tracking{}, false, errors.Wrap(err, "transitioning tracking record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return referral.Tracking{}, false, errors.Wrap(err, "transitioning tracking record")
	}

	t, err := repo.GetTracking(ctx, id)
	if err != nil {
		return referral.Tracking{}, false, err
	}
	return t, n > 0, nil
}

func (repo referralRepository) FilterTrackings(ctx context.Context, filter referral.TrackingFilter) ([]referral.Tracking, error) {
	q := `SELECT * FROM referral_tracking WHERE true`
	var args []interface{}
	add := func(clause string, v interface{}) {
		args = append(args, v)
		q += " AND " + clause
	}
	if filter.ReferrerID != "" {
		add("referrer_id = ?", filter.ReferrerID)
	}
	if filter.ProgramID != "" {
		add("program_id = ?", filter.ProgramID)
	}
	if filter.Code != "" {
		add("lower(code) = lower(?)", filter.Code)
	}
	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if !filter.CreatedFrom.IsZero() {
		add("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if !filter.CreatedTo.IsZero() {
		add("created_at < ?", filter.CreatedTo.UTC())
	}
	q += " ORDER BY created_at DESC"

	var rows []trackingRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying tracking records")
	}
	return repo.unpackTrackings(rows), nil
}
