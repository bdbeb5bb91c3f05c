package referral

import (
	"context"
	"time"

	"github.com/mafunzo/mafunzo/core"
)

type (
	// Repository abstracts the transactional store. Implementations must make
	// CreateCode and CreateTracking atomic: the uniqueness check (codes) and
	// the usage-cap check (trackings) happen as one unit with the insert.
	Repository interface {
		// CreateCode inserts an active code. It fails with ErrCodeExists if an
		// active code with the same normalized value exists, and with
		// ErrOwnerHasCode if the owner already holds an active code for the
		// same program scope.
		CreateCode(ctx context.Context, code Code) (Code, error)
		// GetCode looks a code up by its normalized value, active or not.
		GetCode(ctx context.Context, code string) (Code, error)
		// GetActiveOwnerCode returns the owner's active code for the given
		// program scope (empty programID: the global scope).
		GetActiveOwnerCode(ctx context.Context, ownerID, programID string) (Code, error)
		// DeactivateCode is idempotent; deactivating an inactive code is a no-op.
		DeactivateCode(ctx context.Context, code string) (Code, error)
		CountActiveCodes(ctx context.Context, ownerID string) (int, error)

		CreatePolicy(ctx context.Context, p Policy) (Policy, error)
		GetPolicy(ctx context.Context, id string) (Policy, error)
		UpdatePolicy(ctx context.Context, p Policy) (Policy, error)
		// ActivePolicies returns all active, non-deleted policies for the
		// program regardless of validity window, newest first.
		ActivePolicies(ctx context.Context, programID string) ([]Policy, error)

		// CreateTracking inserts a pending tracking record after checking the
		// usage caps (0 means unlimited) in the same atomic unit; it fails with
		// ErrUsageCapExceeded when a cap is reached and ErrTrackingExists when
		// the enrollment already has a tracking record.
		CreateTracking(ctx context.Context, t Tracking, maxUsesPerCode, maxTotalUses int) (Tracking, error)
		GetTracking(ctx context.Context, id string) (Tracking, error)
		GetTrackingByEnrollment(ctx context.Context, enrollmentID string) (Tracking, error)
		// TransitionTracking applies from -> to if and only if the record is
		// currently in from; applied reports whether this call performed the
		// transition.
		TransitionTracking(ctx context.Context, id string, from, to Status, at time.Time) (t Tracking, applied bool, err error)
		// FilterTrackings applies AND operation on available TrackingFilter fields.
		FilterTrackings(ctx context.Context, filter TrackingFilter) ([]Tracking, error)
	}

	Service struct {
		conf   *core.Config
		repo   Repository
		logger core.Logger
		cache  core.Cache // optional; leaderboard reads only

		now func() time.Time
	}
)

// NewService returns the referral engine. cache may be nil, in which case
// leaderboard reads always aggregate from the repository.
func NewService(conf *core.Config, repo Repository, logger core.Logger, cache core.Cache) *Service {
	return &Service{
		conf:   conf,
		repo:   repo,
		logger: logger,
		cache:  cache,
		now:    func() time.Time { return time.Now().UTC() },
	}
}
