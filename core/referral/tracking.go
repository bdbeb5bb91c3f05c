package referral

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CreatePending records a pending attribution for an enrollment. The caller
// must have validated the code and resolved the policy first; discount and
// commission are the policy snapshot values and are never recomputed later.
// Usage caps are enforced atomically with the insert by the repository, so
// two concurrent enrollments cannot both slip past a cap.
func (svc *Service) CreatePending(ctx context.Context, code Code, policy Policy, participantID, enrollmentID string, discount, commission int64) (Tracking, error) {
	t := Tracking{
		ID:               uuid.New().String(),
		Code:             code.Code,
		ReferrerID:       code.OwnerID,
		ParticipantID:    participantID,
		EnrollmentID:     enrollmentID,
		ProgramID:        policy.ProgramID,
		PolicyID:         policy.ID,
		DiscountApplied:  discount,
		CommissionEarned: commission,
		Status:           StatusPending,
		CreatedAt:        svc.now(),
	}
	return svc.repo.CreateTracking(ctx, t, capOrZero(policy.MaxUsesPerCode), capOrZero(policy.MaxTotalUses))
}

// Confirm finalizes the commission of a pending tracking record. It is
// idempotent: the enrollment system may deliver approval events more than
// once, and repeat calls observe the transition already applied and no-op.
func (svc *Service) Confirm(ctx context.Context, trackingID string) (Tracking, error) {
	t, applied, err := svc.repo.TransitionTracking(ctx, trackingID, StatusPending, StatusConfirmed, svc.now())
	if err != nil {
		return Tracking{}, errors.Wrap(err, "confirming tracking")
	}
	if applied || t.Status == StatusConfirmed {
		return t, nil
	}
	return Tracking{}, ErrInvalidTransition
}

// Cancel voids a pending tracking record. Cancelling an already-cancelled
// record is a no-op; cancelling a confirmed one is rejected - finalized
// commissions are never clawed back automatically.
func (svc *Service) Cancel(ctx context.Context, trackingID string) (Tracking, error) {
	t, applied, err := svc.repo.TransitionTracking(ctx, trackingID, StatusPending, StatusCancelled, svc.now())
	if err != nil {
		return Tracking{}, errors.Wrap(err, "cancelling tracking")
	}
	if applied || t.Status == StatusCancelled {
		return t, nil
	}
	return Tracking{}, ErrInvalidTransition
}

func (svc *Service) GetTracking(ctx context.Context, id string) (Tracking, error) {
	return svc.repo.GetTracking(ctx, id)
}

func (svc *Service) FilterTrackings(ctx context.Context, filter TrackingFilter) ([]Tracking, error) {
	return svc.repo.FilterTrackings(ctx, filter)
}

func capOrZero(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}
