package referral

import (
	"errors"
	"time"
)

var (
	// code errors
	ErrCodeNotFound            = errors.New("referral code not found")
	ErrCodeInactive            = errors.New("referral code is inactive")
	ErrWrongProgram            = errors.New("referral code is not valid for this program")
	ErrCodeExists              = errors.New("an active referral code with this value already exists")
	ErrOwnerHasCode            = errors.New("an active referral code already exists for this owner and program")
	ErrCodeGenerationExhausted = errors.New("could not generate a unique referral code")

	// policy errors
	ErrNoPolicy       = errors.New("no active referral policy for this program")
	ErrPolicyNotFound = errors.New("referral policy not found")
	ErrPolicyInUse    = errors.New("referral policy is referenced by tracking records")

	// tracking errors
	ErrTrackingNotFound  = errors.New("tracking record not found")
	ErrTrackingExists    = errors.New("a tracking record already exists for this enrollment")
	ErrUsageCapExceeded  = errors.New("referral code usage cap exceeded")
	ErrInvalidTransition = errors.New("invalid tracking status transition")
)

// BenefitType discriminates how a Benefit value is interpreted.
type BenefitType string

const (
	BenefitPercentage BenefitType = "percentage" // Value is a whole percentage in [0,100]
	BenefitAmount     BenefitType = "amount"     // Value is in minor currency units
)

// Benefit is the participant discount or referrer commission granted by a policy.
// Monetary values are integer minor units; there is no floating point money anywhere.
type Benefit struct {
	Type  BenefitType `json:"type" validate:"required,benefittype"`
	Value int64       `json:"value" validate:"min=0"`
}

// Code is a referral code. A code is owned by exactly one referrer and is
// either scoped to a single program or global (empty ProgramID).
type Code struct {
	Code      string    `json:"code"`
	OwnerID   string    `json:"owner_id"`
	ProgramID string    `json:"program_id,omitempty"` // empty: global
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// IsGlobal reports whether the code may be used for any program.
func (c Code) IsGlobal() bool { return c.ProgramID == "" }

// Policy holds the discount/commission/cap rules in effect for a program
// during a validity window. At most one policy per program should be active
// at any instant; violations are resolved most-recent-wins (and logged).
type Policy struct {
	ID                  string    `json:"id"`
	ProgramID           string    `json:"program_id"`
	ParticipantDiscount Benefit   `json:"participant_discount"`
	ReferrerCommission  Benefit   `json:"referrer_commission"`
	MaxUsesPerCode      *int      `json:"max_uses_per_code,omitempty"` // nil: unlimited
	MaxTotalUses        *int      `json:"max_total_uses,omitempty"`    // nil: unlimited
	ValidFrom           time.Time `json:"valid_from"`                  // UTC
	ValidUntil          time.Time `json:"valid_until,omitempty"`       // UTC; zero: open-ended
	IsActive            bool      `json:"is_active"`
	IsDeleted           bool      `json:"-"`
	CreatedAt           time.Time `json:"created_at"` // UTC
	UpdatedAt           time.Time `json:"updated_at"` // UTC
}

// InWindow reports whether now falls within [ValidFrom, ValidUntil).
func (p Policy) InWindow(now time.Time) bool {
	if now.Before(p.ValidFrom) {
		return false
	}
	return p.ValidUntil.IsZero() || now.Before(p.ValidUntil)
}

// Status is the tracking record lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool { return s == StatusConfirmed || s == StatusCancelled }

// Tracking is the attribution linking one enrollment to one referral code.
// DiscountApplied and CommissionEarned are fixed at creation from the policy
// snapshot and never recomputed, even if the policy changes later.
type Tracking struct {
	ID               string    `json:"id"`
	Code             string    `json:"referral_code"`
	ReferrerID       string    `json:"referrer_id"`
	ParticipantID    string    `json:"participant_id"`
	EnrollmentID     string    `json:"enrollment_id"`
	ProgramID        string    `json:"program_id"`
	PolicyID         string    `json:"policy_id"`
	DiscountApplied  int64     `json:"discount_applied"`
	CommissionEarned int64     `json:"commission_earned"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`             // UTC
	ConfirmedAt      time.Time `json:"confirmed_at,omitempty"` // UTC; zero until confirmed
}

// TrackingFilter applies AND operation on available fields.
type TrackingFilter struct {
	ReferrerID  string    `query:"referrer"`
	ProgramID   string    `query:"program"`
	Code        string    `query:"code"`
	Status      Status    `query:"status"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

// TimeWindow selects the leaderboard aggregation period. Windows are rolling
// periods ending at "now" (a week is the trailing 7 days), not calendar-aligned.
type TimeWindow string

const (
	WindowAll   TimeWindow = "all"
	WindowWeek  TimeWindow = "week"
	WindowMonth TimeWindow = "month"
	WindowYear  TimeWindow = "year"
)

// Since returns the inclusive lower bound of the window ending at now;
// the zero time for WindowAll.
func (w TimeWindow) Since(now time.Time) time.Time {
	switch w {
	case WindowWeek:
		return now.AddDate(0, 0, -7)
	case WindowMonth:
		return now.AddDate(0, 0, -30)
	case WindowYear:
		return now.AddDate(0, 0, -365)
	}
	return time.Time{}
}

func (w TimeWindow) Valid() bool {
	switch w {
	case WindowAll, WindowWeek, WindowMonth, WindowYear:
		return true
	}
	return false
}

// LeaderboardEntry is the per-referrer aggregate over a time window.
// It is derived from tracking records on read and never independently mutated.
type LeaderboardEntry struct {
	Rank                int       `json:"rank"`
	ReferrerID          string    `json:"referrer_id"`
	TotalReferrals      int       `json:"total_referrals"`
	ConfirmedReferrals  int       `json:"confirmed_referrals"`
	PendingReferrals    int       `json:"pending_referrals"`
	CancelledReferrals  int       `json:"cancelled_referrals"`
	TotalDiscountGiven  int64     `json:"total_discount_given"`
	ConfirmedCommission int64     `json:"confirmed_commission"`
	ActiveCodes         int       `json:"active_codes"`
	ConversionRate      float64   `json:"conversion_rate"`
	LastReferralAt      time.Time `json:"last_referral_at"`
}

// Attribution is the result record returned to the enrollment subsystem
// when an enrollment is created.
type Attribution struct {
	FinalPrice int64  `json:"final_price"`
	Discount   int64  `json:"discount"`
	Commission int64  `json:"commission"`
	TrackingID string `json:"tracking_id,omitempty"`
	// Reason is set when no tracking record was created; the enrollment
	// itself always proceeds (at full price).
	Reason string `json:"reason,omitempty"`
}

// Attribution reasons. Non-fatal: informational for the caller.
const (
	ReasonCodeInvalid = "CodeInvalid"
	ReasonNoPolicy    = "NoPolicy"
	ReasonCapExceeded = "UsageCapExceeded"
)
