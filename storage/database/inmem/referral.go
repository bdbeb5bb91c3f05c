package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/mafunzo/mafunzo/core/referral"
)

type referralRepository struct {
	db *DB
}

var _ referral.Repository = (*referralRepository)(nil) // interface compliance check

func NewReferralRepository(db *DB) *referralRepository {
	return &referralRepository{db: db}
}

func (repo *referralRepository) CreateCode(_ context.Context, code referral.Code) (referral.Code, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := referral.NormalizeCode(code.Code)
	if existing, ok := repo.db.codes[key]; ok && existing.IsActive {
		return referral.Code{}, referral.ErrCodeExists
	}
	for _, c := range repo.db.codes {
		if c.IsActive && c.OwnerID == code.OwnerID && c.ProgramID == code.ProgramID {
			return referral.Code{}, referral.ErrOwnerHasCode
		}
	}
	code.Code = key
	repo.db.codes[key] = &code
	return code, nil
}

func (repo *referralRepository) GetCode(_ context.Context, code string) (referral.Code, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.codes[referral.NormalizeCode(code)]; ok {
		return *c, nil
	}
	return referral.Code{}, referral.ErrCodeNotFound
}

func (repo *referralRepository) GetActiveOwnerCode(_ context.Context, ownerID, programID string) (referral.Code, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, c := range repo.db.codes {
		if c.IsActive && c.OwnerID == ownerID && c.ProgramID == programID {
			return *c, nil
		}
	}
	return referral.Code{}, referral.ErrCodeNotFound
}

func (repo *referralRepository) DeactivateCode(_ context.Context, code string) (referral.Code, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.codes[referral.NormalizeCode(code)]
	if !ok {
		return referral.Code{}, referral.ErrCodeNotFound
	}
	c.IsActive = false
	return *c, nil
}

func (repo *referralRepository) CountActiveCodes(_ context.Context, ownerID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var n int
	for _, c := range repo.db.codes {
		if c.IsActive && c.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

func (repo *referralRepository) CreatePolicy(_ context.Context, p referral.Policy) (referral.Policy, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.policies[p.ID] = &p
	return p, nil
}

func (repo *referralRepository) GetPolicy(_ context.Context, id string) (referral.Policy, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.policies[id]; ok && !p.IsDeleted {
		return *p, nil
	}
	return referral.Policy{}, referral.ErrPolicyNotFound
}

func (repo *referralRepository) UpdatePolicy(_ context.Context, p referral.Policy) (referral.Policy, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.policies[p.ID]; !ok {
		return referral.Policy{}, referral.ErrPolicyNotFound
	}
	repo.db.policies[p.ID] = &p
	return p, nil
}

func (repo *referralRepository) ActivePolicies(_ context.Context, programID string) ([]referral.Policy, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	policies := make([]referral.Policy, 0)
	for _, p := range repo.db.policies {
		if p.IsActive && !p.IsDeleted && p.ProgramID == programID {
			policies = append(policies, *p)
		}
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].CreatedAt.After(policies[j].CreatedAt) })
	return policies, nil
}

func (repo *referralRepository) CreateTracking(_ context.Context, t referral.Tracking, maxUsesPerCode, maxTotalUses int) (referral.Tracking, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.trackingByEnrollment[t.EnrollmentID]; ok {
		return referral.Tracking{}, referral.ErrTrackingExists
	}

	// both cap checks and the insert happen under the same lock
	var codeUses, policyUses int
	for _, existing := range repo.db.trackings {
		if existing.Status == referral.StatusCancelled {
			continue
		}
		if existing.Code == t.Code {
			codeUses++
		}
		if existing.PolicyID == t.PolicyID {
			policyUses++
		}
	}
	if maxUsesPerCode > 0 && codeUses >= maxUsesPerCode {
		return referral.Tracking{}, referral.ErrUsageCapExceeded
	}
	if maxTotalUses > 0 && policyUses >= maxTotalUses {
		return referral.Tracking{}, referral.ErrUsageCapExceeded
	}

	repo.db.trackings[t.ID] = &t
	repo.db.trackingByEnrollment[t.EnrollmentID] = t.ID
	return t, nil
}

func (repo *referralRepository) GetTracking(_ context.Context, id string) (referral.Tracking, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.trackings[id]; ok {
		return *t, nil
	}
	return referral.Tracking{}, referral.ErrTrackingNotFound
}

func (repo *referralRepository) GetTrackingByEnrollment(_ context.Context, enrollmentID string) (referral.Tracking, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if id, ok := repo.db.trackingByEnrollment[enrollmentID]; ok {
		return *repo.db.trackings[id], nil
	}
	return referral.Tracking{}, referral.ErrTrackingNotFound
}

func (repo *referralRepository) TransitionTracking(_ context.Context, id string, from, to referral.Status, at time.Time) (referral.Tracking, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t, ok := repo.db.trackings[id]
	if !ok {
		return referral.Tracking{}, false, referral.ErrTrackingNotFound
	}
	if t.Status != from {
		return *t, false, nil
	}
	t.Status = to
	if to == referral.StatusConfirmed {
		t.ConfirmedAt = at
	}
	return *t, true, nil
}

func (repo *referralRepository) FilterTrackings(_ context.Context, filter referral.TrackingFilter) ([]referral.Tracking, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	trackings := make([]referral.Tracking, 0)
	for _, t := range repo.db.trackings {
		if filter.ReferrerID != "" && t.ReferrerID != filter.ReferrerID {
			continue
		}
		if filter.ProgramID != "" && t.ProgramID != filter.ProgramID {
			continue
		}
		if filter.Code != "" && t.Code != referral.NormalizeCode(filter.Code) {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if !filter.CreatedFrom.IsZero() && t.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && !t.CreatedAt.Before(filter.CreatedTo) {
			continue
		}
		trackings = append(trackings, *t)
	}
	sort.Slice(trackings, func(i, j int) bool { return trackings[i].CreatedAt.After(trackings[j].CreatedAt) })
	return trackings, nil
}
