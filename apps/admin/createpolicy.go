package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mafunzo/mafunzo/core/referral"
)

type policyOptions struct {
	programID       string
	discountType    string
	discountValue   int64
	commissionType  string
	commissionValue int64
	maxUsesPerCode  int
	maxTotalUses    int
	validFrom       string
	validUntil      string
}

func (cli *commandLine) createPolicy(opts policyOptions) error {
	np := referral.NewPolicy{
		ProgramID:           opts.programID,
		ParticipantDiscount: referral.Benefit{Type: referral.BenefitType(opts.discountType), Value: opts.discountValue},
		ReferrerCommission:  referral.Benefit{Type: referral.BenefitType(opts.commissionType), Value: opts.commissionValue},
	}
	if opts.maxUsesPerCode > 0 {
		np.MaxUsesPerCode = &opts.maxUsesPerCode
	}
	if opts.maxTotalUses > 0 {
		np.MaxTotalUses = &opts.maxTotalUses
	}
	if opts.validFrom != "" {
		from, err := time.Parse(time.RFC3339, opts.validFrom)
		if err != nil {
			return err
		}
		np.ValidFrom = from
	}
	if opts.validUntil != "" {
		until, err := time.Parse(time.RFC3339, opts.validUntil)
		if err != nil {
			return err
		}
		np.ValidUntil = &until
	}
	if err := np.Validate(); err != nil {
		return err
	}

	policy, err := cli.referralSvc.CreatePolicy(context.Background(), np)
	if err != nil {
		return err
	}
	fmt.Printf("policy created: %s (program %s)\n", policy.ID, policy.ProgramID)
	return nil
}
