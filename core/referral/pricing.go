package referral

// Pricing is pure integer arithmetic on minor currency units. Percentage
// benefits round down (floor) to the nearest minor unit.

// Price applies the policy's participant discount to basePrice.
// The discount is clamped to basePrice: finalPrice is never negative.
func Price(basePrice int64, p Policy) (finalPrice, discount int64) {
	discount = benefitValue(basePrice, p.ParticipantDiscount)
	if discount > basePrice {
		discount = basePrice
	}
	return basePrice - discount, discount
}

// Commission computes the referrer commission against the original base
// price, not the discounted price: the referrer's reward is independent of
// the discount granted to the participant.
func Commission(basePrice int64, p Policy) int64 {
	return benefitValue(basePrice, p.ReferrerCommission)
}

func benefitValue(basePrice int64, b Benefit) int64 {
	if b.Value < 0 {
		return 0
	}
	switch b.Type {
	case BenefitPercentage:
		return basePrice * b.Value / 100
	case BenefitAmount:
		return b.Value
	}
	return 0
}
