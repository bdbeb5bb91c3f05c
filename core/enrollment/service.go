package enrollment

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mafunzo/mafunzo/core"
	"github.com/mafunzo/mafunzo/core/program"
	"github.com/mafunzo/mafunzo/core/referral"
)

type (
	Repository interface {
		CreateDraft(ctx context.Context, d Draft) (Draft, error)
		GetDraft(ctx context.Context, id string) (Draft, error)
		UpdateDraft(ctx context.Context, d Draft) (Draft, error)
		// ClaimDraft atomically flips an unsubmitted draft to submitted.
		// applied reports whether this call won the claim; an already
		// submitted draft returns (d, false, nil).
		ClaimDraft(ctx context.Context, id string, at time.Time) (d Draft, applied bool, err error)

		CreateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, id string) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, e Enrollment) (Enrollment, error)
		QueryEnrollmentsByParticipant(ctx context.Context, participantID string) ([]Enrollment, error)
	}

	// Referrals is the slice of the referral engine the enrollment lifecycle
	// drives.
	Referrals interface {
		OnEnrollmentCreated(ctx context.Context, evt referral.EnrollmentCreated) (referral.Attribution, error)
		OnEnrollmentApproved(ctx context.Context, enrollmentID string) error
		OnEnrollmentRejected(ctx context.Context, enrollmentID string) error
	}

	Service struct {
		repo      Repository
		programs  *program.Service
		referrals Referrals
		mailSvc   core.EmailService
		logger    core.Logger
	}
)

var _ Referrals = (*referral.Service)(nil)

func NewService(repo Repository, programs *program.Service, referrals Referrals, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:      repo,
		programs:  programs,
		referrals: referrals,
		mailSvc:   mailSvc,
		logger:    logger,
	}
}

// StartDraft opens a server-held draft for a participant's enrollment form.
func (svc *Service) StartDraft(ctx context.Context, nd NewDraft) (Draft, error) {
	p, err := svc.programs.GetByID(ctx, nd.ProgramID)
	if err != nil {
		return Draft{}, err
	}
	if !p.IsActive {
		return Draft{}, ErrProgramInactive
	}

	now := time.Now().UTC()
	return svc.repo.CreateDraft(ctx, Draft{
		ID:               uuid.New().String(),
		ProgramID:        nd.ProgramID,
		ParticipantID:    nd.ParticipantID,
		ParticipantName:  nd.ParticipantName,
		ParticipantEmail: nd.ParticipantEmail,
		ReferralCode:     nd.ReferralCode,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

func (svc *Service) GetDraft(ctx context.Context, id string) (Draft, error) {
	return svc.repo.GetDraft(ctx, id)
}

func (svc *Service) UpdateDraft(ctx context.Context, id string, ud UpdateDraft) (Draft, error) {
	d, err := svc.repo.GetDraft(ctx, id)
	if err != nil {
		return Draft{}, err
	}
	if d.Submitted {
		return Draft{}, ErrDraftAlreadySubmit
	}
	if ud.ParticipantName != "" {
		d.ParticipantName = ud.ParticipantName
	}
	if ud.ParticipantEmail != "" {
		d.ParticipantEmail = ud.ParticipantEmail
	}
	if ud.ReferralCode != "" {
		d.ReferralCode = ud.ReferralCode
	}
	d.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateDraft(ctx, d)
}

// Submit turns a draft into a priced enrollment. The referral attribution is
// best-effort: an invalid code, a missing policy or an exhausted cap all
// degrade to full price and never block the enrollment. Free programs
// auto-approve immediately, confirming any attribution in the same request.
func (svc *Service) Submit(ctx context.Context, draftID string) (Enrollment, error) {
	d, err := svc.repo.GetDraft(ctx, draftID)
	if err != nil {
		return Enrollment{}, err
	}
	if d.Submitted {
		return Enrollment{}, ErrDraftAlreadySubmit
	}

	p, err := svc.programs.GetByID(ctx, d.ProgramID)
	if err != nil {
		return Enrollment{}, err
	}
	if !p.IsActive {
		return Enrollment{}, ErrProgramInactive
	}

	existing, err := svc.repo.QueryEnrollmentsByParticipant(ctx, d.ParticipantID)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "querying participant enrollments")
	}
	for _, e := range existing {
		if e.ProgramID == d.ProgramID && e.Status != StatusRejected {
			return Enrollment{}, ErrAlreadyEnrolled
		}
	}

	// claim the draft before creating anything, so two interleaved submits
	// cannot both produce an enrollment
	d, claimed, err := svc.repo.ClaimDraft(ctx, draftID, time.Now().UTC())
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "claiming draft")
	}
	if !claimed {
		return Enrollment{}, ErrDraftAlreadySubmit
	}

	enrollmentID := uuid.New().String()
	att, err := svc.referrals.OnEnrollmentCreated(ctx, referral.EnrollmentCreated{
		ProgramID:     d.ProgramID,
		ParticipantID: d.ParticipantID,
		EnrollmentID:  enrollmentID,
		Code:          d.ReferralCode,
		BasePrice:     p.Price,
	})
	if err != nil {
		svc.releaseDraft(ctx, d)
		return Enrollment{}, errors.Wrap(err, "attributing enrollment")
	}
	if att.Reason != "" {
		svc.logger.Info("referral benefit not applied", map[string]interface{}{
			"enrollment_id": enrollmentID, "code": d.ReferralCode, "reason": att.Reason,
		})
	}

	e, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		ID:               enrollmentID,
		ProgramID:        d.ProgramID,
		ParticipantID:    d.ParticipantID,
		ParticipantName:  d.ParticipantName,
		ParticipantEmail: d.ParticipantEmail,
		BasePrice:        p.Price,
		Discount:         att.Discount,
		FinalPrice:       att.FinalPrice,
		TrackingID:       att.TrackingID,
		Status:           StatusPending,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		svc.releaseDraft(ctx, d)
		return Enrollment{}, err
	}

	if p.IsFree() {
		return svc.Approve(ctx, e.ID)
	}
	return e, nil
}

// releaseDraft hands a claimed draft back after a failed submit so the
// participant can retry. Best-effort: a failure here only logs.
func (svc *Service) releaseDraft(ctx context.Context, d Draft) {
	d.Submitted = false
	d.UpdatedAt = time.Now().UTC()
	if _, err := svc.repo.UpdateDraft(ctx, d); err != nil {
		svc.logger.Error("releasing claimed draft after failed submit", map[string]interface{}{
			"draft_id": d.ID, "error": err.Error(),
		})
	}
}

// Approve marks the enrollment approved and confirms its referral
// attribution. Safe to call twice: the second call observes the final state.
func (svc *Service) Approve(ctx context.Context, enrollmentID string) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, err
	}
	switch e.Status {
	case StatusApproved:
		return e, nil // duplicate approval event
	case StatusRejected:
		return Enrollment{}, ErrAlreadyFinal
	}

	if err = svc.referrals.OnEnrollmentApproved(ctx, e.ID); err != nil {
		return Enrollment{}, errors.Wrap(err, "confirming attribution")
	}

	e.Status = StatusApproved
	e.DecidedAt = time.Now().UTC()
	if e, err = svc.repo.UpdateEnrollment(ctx, e); err != nil {
		return Enrollment{}, err
	}

	svc.sendReceipt(e)
	return e, nil
}

// Reject marks the enrollment rejected and cancels its referral attribution.
func (svc *Service) Reject(ctx context.Context, enrollmentID string) (Enrollment, error) {
	e, err := svc.repo.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return Enrollment{}, err
	}
	switch e.Status {
	case StatusRejected:
		return e, nil
	case StatusApproved:
		return Enrollment{}, ErrAlreadyFinal
	}

	if err = svc.referrals.OnEnrollmentRejected(ctx, e.ID); err != nil {
		return Enrollment{}, errors.Wrap(err, "cancelling attribution")
	}

	e.Status = StatusRejected
	e.DecidedAt = time.Now().UTC()
	return svc.repo.UpdateEnrollment(ctx, e)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, id)
}

func (svc *Service) QueryByParticipant(ctx context.Context, participantID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollmentsByParticipant(ctx, participantID)
}

func (svc *Service) sendReceipt(e Enrollment) {
	if e.ParticipantEmail == "" {
		return
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nYour enrollment is confirmed.\n\nPrice: %d\nDiscount: %d\nTotal due: %d\n\nKaribu!",
		e.ParticipantName, e.BasePrice, e.Discount, e.FinalPrice,
	)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: e.ParticipantName, Address: e.ParticipantEmail}},
		Subject: "Enrollment confirmed",
		BodyStr: body,
	})
}
