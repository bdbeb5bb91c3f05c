package referral

import (
	"context"

	"github.com/pkg/errors"
)

// EnrollmentCreated is the event record the enrollment subsystem passes in
// when an enrollment is created. Code is the optional referral code typed by
// the participant; BasePrice is the program price in minor units.
type EnrollmentCreated struct {
	ProgramID     string
	ParticipantID string
	EnrollmentID  string
	Code          string
	BasePrice     int64
}

// OnEnrollmentCreated prices the enrollment and records a pending
// attribution. Referral mechanics never block an enrollment: every failure
// along the code/policy/cap path degrades to full price with a non-fatal
// Reason on the Attribution, and only infrastructure errors are returned.
func (svc *Service) OnEnrollmentCreated(ctx context.Context, evt EnrollmentCreated) (Attribution, error) {
	att := Attribution{FinalPrice: evt.BasePrice}
	if evt.Code == "" {
		return att, nil
	}

	code, err := svc.ValidateCode(ctx, evt.Code, evt.ProgramID)
	switch err {
	case nil:
	case ErrCodeNotFound, ErrCodeInactive, ErrWrongProgram:
		att.Reason = ReasonCodeInvalid
		return att, nil
	default:
		return Attribution{}, errors.Wrap(err, "validating code")
	}

	policy, err := svc.Resolve(ctx, evt.ProgramID, svc.now())
	if err == ErrNoPolicy {
		// permissive default: a code without a matching policy produces zero
		// discount, not a rejection
		att.Reason = ReasonNoPolicy
		return att, nil
	} else if err != nil {
		return Attribution{}, err
	}

	finalPrice, discount := Price(evt.BasePrice, policy)
	commission := Commission(evt.BasePrice, policy)

	t, err := svc.CreatePending(ctx, code, policy, evt.ParticipantID, evt.EnrollmentID, discount, commission)
	switch errors.Cause(err) {
	case nil:
	case ErrUsageCapExceeded:
		// referral benefit silently forfeited; the enrollment proceeds at full price
		att.Reason = ReasonCapExceeded
		return att, nil
	case ErrTrackingExists:
		// duplicate delivery of the creation event: return the attribution
		// that was already recorded
		existing, gerr := svc.repo.GetTrackingByEnrollment(ctx, evt.EnrollmentID)
		if gerr != nil {
			return Attribution{}, errors.Wrap(gerr, "loading existing tracking")
		}
		return Attribution{
			FinalPrice: evt.BasePrice - existing.DiscountApplied,
			Discount:   existing.DiscountApplied,
			Commission: existing.CommissionEarned,
			TrackingID: existing.ID,
		}, nil
	default:
		return Attribution{}, err
	}

	att.FinalPrice = finalPrice
	att.Discount = discount
	att.Commission = commission
	att.TrackingID = t.ID
	return att, nil
}

// OnEnrollmentApproved confirms the enrollment's tracking record, if one
// exists. Safe to deliver more than once.
func (svc *Service) OnEnrollmentApproved(ctx context.Context, enrollmentID string) error {
	t, err := svc.repo.GetTrackingByEnrollment(ctx, enrollmentID)
	if err == ErrTrackingNotFound {
		return nil // enrollment had no referral attribution
	} else if err != nil {
		return errors.Wrap(err, "finding tracking by enrollment")
	}
	_, err = svc.Confirm(ctx, t.ID)
	return err
}

// OnEnrollmentRejected cancels the enrollment's tracking record, if one
// exists. A cancel arriving after confirmation indicates an upstream
// ordering bug: it is rejected and logged, never silently corrected.
func (svc *Service) OnEnrollmentRejected(ctx context.Context, enrollmentID string) error {
	t, err := svc.repo.GetTrackingByEnrollment(ctx, enrollmentID)
	if err == ErrTrackingNotFound {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "finding tracking by enrollment")
	}
	if _, err = svc.Cancel(ctx, t.ID); err != nil {
		if errors.Cause(err) == ErrInvalidTransition {
			svc.logger.Error(
				"cancel requested for a confirmed tracking record; refusing",
				map[string]interface{}{"tracking_id": t.ID, "enrollment_id": enrollmentID},
			)
		}
		return err
	}
	return nil
}
