package referral

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mafunzo/mafunzo/core"
)

var (
	// custom validation tags & texts
	benefitTypeTag  = "benefittype"
	benefitTypeText = "must be one of: percentage, amount"

	timeWindowTag  = "timewindow"
	timeWindowText = "must be one of: all, week, month, year"
)

func init() {
	_ = core.Validate.RegisterValidation(benefitTypeTag, benefitTypeValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, benefitTypeTag, benefitTypeText)

	_ = core.Validate.RegisterValidation(timeWindowTag, timeWindowValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, timeWindowTag, timeWindowText)
}

func benefitTypeValidation(fl validator.FieldLevel) bool {
	switch BenefitType(fl.Field().String()) {
	case BenefitPercentage, BenefitAmount:
		return true
	}
	return false
}

func timeWindowValidation(fl validator.FieldLevel) bool {
	return TimeWindow(fl.Field().String()).Valid()
}

// NewPolicy contains information needed to create a referral Policy.
type NewPolicy struct {
	ProgramID           string     `json:"program_id" validate:"required"`
	ParticipantDiscount Benefit    `json:"participant_discount"`
	ReferrerCommission  Benefit    `json:"referrer_commission"`
	MaxUsesPerCode      *int       `json:"max_uses_per_code" validate:"omitempty,min=1"`
	MaxTotalUses        *int       `json:"max_total_uses" validate:"omitempty,min=1"`
	ValidFrom           time.Time  `json:"valid_from"`
	ValidUntil          *time.Time `json:"valid_until"`
}

func (np *NewPolicy) Validate() error {
	np.ProgramID = core.CleanString(np.ProgramID)
	if err := core.Validate.Struct(np); err != nil {
		return err
	}
	if err := validateBenefit("participant_discount", np.ParticipantDiscount); err != nil {
		return err
	}
	if err := validateBenefit("referrer_commission", np.ReferrerCommission); err != nil {
		return err
	}
	if np.ValidUntil != nil && !np.ValidFrom.IsZero() && !np.ValidUntil.After(np.ValidFrom) {
		return core.NewValidationError(nil, core.FieldError{Field: "valid_until", Error: "must be after valid_from"})
	}
	return nil
}

// UpdatePolicy defines what information may be provided to modify an existing Policy.
type UpdatePolicy struct {
	ParticipantDiscount *Benefit   `json:"participant_discount"`
	ReferrerCommission  *Benefit   `json:"referrer_commission"`
	MaxUsesPerCode      *int       `json:"max_uses_per_code" validate:"omitempty,min=1"`
	MaxTotalUses        *int       `json:"max_total_uses" validate:"omitempty,min=1"`
	ValidFrom           *time.Time `json:"valid_from"`
	ValidUntil          *time.Time `json:"valid_until"`
	IsActive            *bool      `json:"is_active"`
}

func (up *UpdatePolicy) Validate() error {
	if err := core.Validate.Struct(up); err != nil {
		return err
	}
	if up.ParticipantDiscount != nil {
		if err := validateBenefit("participant_discount", *up.ParticipantDiscount); err != nil {
			return err
		}
	}
	if up.ReferrerCommission != nil {
		if err := validateBenefit("referrer_commission", *up.ReferrerCommission); err != nil {
			return err
		}
	}
	return nil
}

func validateBenefit(field string, b Benefit) error {
	switch b.Type {
	case BenefitPercentage:
		if b.Value < 0 || b.Value > 100 {
			return core.NewValidationError(nil, core.FieldError{Field: field, Error: "percentage value must be in [0,100]"})
		}
	case BenefitAmount:
		if b.Value < 0 {
			return core.NewValidationError(nil, core.FieldError{Field: field, Error: "amount value must be >= 0"})
		}
	default:
		return core.NewValidationError(nil, core.FieldError{Field: field, Error: benefitTypeText})
	}
	return nil
}
