package referral_test

import (
	"context"
	"testing"

	"github.com/mafunzo/mafunzo/core/referral"
	testutil "github.com/mafunzo/mafunzo/tests"
)

func TestOnEnrollmentCreated(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	testutil.CreateCode(t, repo, "GLOBAL77", "ref1", "", true)
	testutil.CreateCode(t, repo, "RETIRED9", "ref2", "", false)
	testutil.CreatePolicy(t, repo, "prog-go",
		referral.Benefit{Type: referral.BenefitPercentage, Value: 10},
		referral.Benefit{Type: referral.BenefitAmount, Value: 2500},
		nil, nil,
	)

	tests := []struct {
		name         string
		evt          referral.EnrollmentCreated
		want         referral.Attribution
		wantTracking bool
	}{
		{
			name: "valid code",
			evt:  referral.EnrollmentCreated{ProgramID: "prog-go", ParticipantID: "part1", EnrollmentID: "enr1", Code: "global77", BasePrice: 50000},
			want: referral.Attribution{FinalPrice: 45000, Discount: 5000, Commission: 2500},

			wantTracking: true,
		},
		{
			name: "no code",
			evt:  referral.EnrollmentCreated{ProgramID: "prog-go", ParticipantID: "part2", EnrollmentID: "enr2", BasePrice: 50000},
			want: referral.Attribution{FinalPrice: 50000},
		},
		{
			name: "unknown code",
			evt:  referral.EnrollmentCreated{ProgramID: "prog-go", ParticipantID: "part3", EnrollmentID: "enr3", Code: "NOPE1234", BasePrice: 50000},
			want: referral.Attribution{FinalPrice: 50000, Reason: referral.ReasonCodeInvalid},
		},
		{
			name: "inactive code",
			evt:  referral.EnrollmentCreated{ProgramID: "prog-go", ParticipantID: "part4", EnrollmentID: "enr4", Code: "RETIRED9", BasePrice: 50000},
			want: referral.Attribution{FinalPrice: 50000, Reason: referral.ReasonCodeInvalid},
		},
		{
			name: "no policy for program",
			evt:  referral.EnrollmentCreated{ProgramID: "prog-rust", ParticipantID: "part5", EnrollmentID: "enr5", Code: "GLOBAL77", BasePrice: 50000},
			want: referral.Attribution{FinalPrice: 50000, Reason: referral.ReasonNoPolicy},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att, err := svc.OnEnrollmentCreated(ctx, tt.evt)
			if err != nil {
				t.Fatalf("OnEnrollmentCreated() failed: %v", err)
			}
			if att.FinalPrice != tt.want.FinalPrice || att.Discount != tt.want.Discount ||
				att.Commission != tt.want.Commission || att.Reason != tt.want.Reason {
				t.Errorf("attribution = %+v, want %+v", att, tt.want)
			}
			if tt.wantTracking && att.TrackingID == "" {
				t.Error("no tracking record created")
			}
			if !tt.wantTracking && att.TrackingID != "" {
				t.Errorf("unexpected tracking record %s", att.TrackingID)
			}
		})
	}
}

func TestOnEnrollmentCreatedCapExceeded(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	testutil.CreateCode(t, repo, "GLOBAL77", "ref1", "", true)
	testutil.CreatePolicy(t, repo, "prog-go",
		referral.Benefit{Type: referral.BenefitPercentage, Value: 10},
		referral.Benefit{Type: referral.BenefitAmount, Value: 2500},
		testutil.IntPtr(1), nil,
	)

	first, err := svc.OnEnrollmentCreated(ctx, referral.EnrollmentCreated{
		ProgramID: "prog-go", ParticipantID: "part1", EnrollmentID: "enr1", Code: "GLOBAL77", BasePrice: 50000,
	})
	if err != nil {
		t.Fatalf("OnEnrollmentCreated() failed: %v", err)
	}
	if first.TrackingID == "" {
		t.Fatal("first use did not create a tracking record")
	}

	// the cap is reached: enrollment proceeds at full price, benefit forfeited
	second, err := svc.OnEnrollmentCreated(ctx, referral.EnrollmentCreated{
		ProgramID: "prog-go", ParticipantID: "part2", EnrollmentID: "enr2", Code: "GLOBAL77", BasePrice: 50000,
	})
	if err != nil {
		t.Fatalf("OnEnrollmentCreated() over cap failed: %v", err)
	}
	if second.Reason != referral.ReasonCapExceeded {
		t.Errorf("reason = %q, want %q", second.Reason, referral.ReasonCapExceeded)
	}
	if second.FinalPrice != 50000 || second.Discount != 0 || second.TrackingID != "" {
		t.Errorf("over-cap attribution = %+v, want full price and no tracking", second)
	}
}

// Duplicate delivery of the creation event returns the attribution already
// recorded, it does not double-count.
func TestOnEnrollmentCreatedDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	testutil.CreateCode(t, repo, "GLOBAL77", "ref1", "", true)
	testutil.CreatePolicy(t, repo, "prog-go",
		referral.Benefit{Type: referral.BenefitPercentage, Value: 10},
		referral.Benefit{Type: referral.BenefitAmount, Value: 2500},
		nil, nil,
	)

	evt := referral.EnrollmentCreated{ProgramID: "prog-go", ParticipantID: "part1", EnrollmentID: "enr1", Code: "GLOBAL77", BasePrice: 50000}
	first, err := svc.OnEnrollmentCreated(ctx, evt)
	if err != nil {
		t.Fatalf("OnEnrollmentCreated() failed: %v", err)
	}
	second, err := svc.OnEnrollmentCreated(ctx, evt)
	if err != nil {
		t.Fatalf("OnEnrollmentCreated() redelivery failed: %v", err)
	}
	if second != first {
		t.Errorf("redelivered attribution = %+v, want the original %+v", second, first)
	}

	trackings, err := svc.FilterTrackings(ctx, referral.TrackingFilter{})
	if err != nil {
		t.Fatalf("FilterTrackings() failed: %v", err)
	}
	if len(trackings) != 1 {
		t.Errorf("tracking records = %d, want 1", len(trackings))
	}
}

func TestOnEnrollmentApproved(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	testutil.CreateCode(t, repo, "GLOBAL77", "ref1", "", true)
	testutil.CreatePolicy(t, repo, "prog-go",
		referral.Benefit{Type: referral.BenefitPercentage, Value: 10},
		referral.Benefit{Type: referral.BenefitAmount, Value: 2500},
		nil, nil,
	)
	att, err := svc.OnEnrollmentCreated(ctx, referral.EnrollmentCreated{
		ProgramID: "prog-go", ParticipantID: "part1", EnrollmentID: "enr1", Code: "GLOBAL77", BasePrice: 50000,
	})
	if err != nil {
		t.Fatalf("OnEnrollmentCreated() failed: %v", err)
	}

	if err = svc.OnEnrollmentApproved(ctx, "enr1"); err != nil {
		t.Fatalf("OnEnrollmentApproved() failed: %v", err)
	}
	tr, err := svc.GetTracking(ctx, att.TrackingID)
	if err != nil {
		t.Fatalf("GetTracking() failed: %v", err)
	}
	if tr.Status != referral.StatusConfirmed {
		t.Errorf("status = %s, want %s", tr.Status, referral.StatusConfirmed)
	}

	// repeat delivery and unattributed enrollments are both fine
	if err = svc.OnEnrollmentApproved(ctx, "enr1"); err != nil {
		t.Errorf("OnEnrollmentApproved() redelivery failed: %v", err)
	}
	if err = svc.OnEnrollmentApproved(ctx, "enr-without-referral"); err != nil {
		t.Errorf("OnEnrollmentApproved() without tracking failed: %v", err)
	}
}

func TestOnEnrollmentRejected(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)
	testutil.CreateCode(t, repo, "GLOBAL77", "ref1", "", true)
	testutil.CreatePolicy(t, repo, "prog-go",
		referral.Benefit{Type: referral.BenefitPercentage, Value: 10},
		referral.Benefit{Type: referral.BenefitAmount, Value: 2500},
		nil, nil,
	)

	att, err := svc.OnEnrollmentCreated(ctx, referral.EnrollmentCreated{
		ProgramID: "prog-go", ParticipantID: "part1", EnrollmentID: "enr1", Code: "GLOBAL77", BasePrice: 50000,
	})
	if err != nil {
		t.Fatalf("OnEnrollmentCreated() failed: %v", err)
	}

	if err = svc.OnEnrollmentRejected(ctx, "enr1"); err != nil {
		t.Fatalf("OnEnrollmentRejected() failed: %v", err)
	}
	tr, err := svc.GetTracking(ctx, att.TrackingID)
	if err != nil {
		t.Fatalf("GetTracking() failed: %v", err)
	}
	if tr.Status != referral.StatusCancelled {
		t.Errorf("status = %s, want %s", tr.Status, referral.StatusCancelled)
	}
	if err = svc.OnEnrollmentRejected(ctx, "enr1"); err != nil {
		t.Errorf("OnEnrollmentRejected() redelivery failed: %v", err)
	}
	if err = svc.OnEnrollmentRejected(ctx, "enr-without-referral"); err != nil {
		t.Errorf("OnEnrollmentRejected() without tracking failed: %v", err)
	}

	// a reject arriving after an approve is an upstream ordering bug and is refused
	if _, err = svc.OnEnrollmentCreated(ctx, referral.EnrollmentCreated{
		ProgramID: "prog-go", ParticipantID: "part2", EnrollmentID: "enr2", Code: "GLOBAL77", BasePrice: 50000,
	}); err != nil {
		t.Fatalf("OnEnrollmentCreated() failed: %v", err)
	}
	if err = svc.OnEnrollmentApproved(ctx, "enr2"); err != nil {
		t.Fatalf("OnEnrollmentApproved() failed: %v", err)
	}
	if err = svc.OnEnrollmentRejected(ctx, "enr2"); err != referral.ErrInvalidTransition {
		t.Errorf("OnEnrollmentRejected() after approval error = %v, want %v", err, referral.ErrInvalidTransition)
	}
}
