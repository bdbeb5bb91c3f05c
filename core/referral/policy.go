package referral

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Resolve returns the single active policy for the program whose validity
// window contains now. If several qualify (administrator error), the most
// recently created one wins and the conflict is logged as a warning, never
// treated as fatal. ErrNoPolicy is a valid result: the caller proceeds at
// full price.
func (svc *Service) Resolve(ctx context.Context, programID string, now time.Time) (Policy, error) {
	policies, err := svc.repo.ActivePolicies(ctx, programID)
	if err != nil {
		return Policy{}, errors.Wrap(err, "querying active policies")
	}

	matches := policies[:0]
	for _, p := range policies {
		if p.InWindow(now) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return Policy{}, ErrNoPolicy
	case 1:
		return matches[0], nil
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	svc.logger.Warn(
		"ConfigurationAmbiguity: multiple active referral policies for program; most recent wins",
		map[string]interface{}{"program_id": programID, "count": len(matches), "winner": matches[0].ID},
	)
	return matches[0], nil
}

func (svc *Service) CreatePolicy(ctx context.Context, np NewPolicy) (Policy, error) {
	now := svc.now()
	p := Policy{
		ID:                  uuid.New().String(),
		ProgramID:           np.ProgramID,
		ParticipantDiscount: np.ParticipantDiscount,
		ReferrerCommission:  np.ReferrerCommission,
		MaxUsesPerCode:      np.MaxUsesPerCode,
		MaxTotalUses:        np.MaxTotalUses,
		ValidFrom:           np.ValidFrom.UTC(),
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if p.ValidFrom.IsZero() {
		p.ValidFrom = now
	}
	if np.ValidUntil != nil {
		p.ValidUntil = np.ValidUntil.UTC()
	}
	return svc.repo.CreatePolicy(ctx, p)
}

func (svc *Service) GetPolicy(ctx context.Context, id string) (Policy, error) {
	return svc.repo.GetPolicy(ctx, id)
}

func (svc *Service) UpdatePolicy(ctx context.Context, id string, up UpdatePolicy) (Policy, error) {
	p, err := svc.repo.GetPolicy(ctx, id)
	if err != nil {
		return Policy{}, err
	}
	if up.ParticipantDiscount != nil {
		p.ParticipantDiscount = *up.ParticipantDiscount
	}
	if up.ReferrerCommission != nil {
		p.ReferrerCommission = *up.ReferrerCommission
	}
	if up.MaxUsesPerCode != nil {
		p.MaxUsesPerCode = up.MaxUsesPerCode
	}
	if up.MaxTotalUses != nil {
		p.MaxTotalUses = up.MaxTotalUses
	}
	if up.ValidFrom != nil {
		p.ValidFrom = up.ValidFrom.UTC()
	}
	if up.ValidUntil != nil {
		p.ValidUntil = up.ValidUntil.UTC()
	}
	if up.IsActive != nil {
		p.IsActive = *up.IsActive
	}
	p.UpdatedAt = svc.now()
	return svc.repo.UpdatePolicy(ctx, p)
}

// DeletePolicy soft-deletes: tracking records keep referencing the policy
// snapshot they were priced from, so policies are never hard-deleted.
func (svc *Service) DeletePolicy(ctx context.Context, id string) error {
	p, err := svc.repo.GetPolicy(ctx, id)
	if err != nil {
		return err
	}
	if p.IsDeleted {
		return nil
	}
	p.IsDeleted = true
	p.IsActive = false
	p.UpdatedAt = svc.now()
	_, err = svc.repo.UpdatePolicy(ctx, p)
	return err
}

func (svc *Service) QueryPolicies(ctx context.Context, programID string) ([]Policy, error) {
	return svc.repo.ActivePolicies(ctx, programID)
}
