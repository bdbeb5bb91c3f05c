package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/mafunzo/mafunzo/core/enrollment"
	"github.com/mafunzo/mafunzo/core/referral"
	testutil "github.com/mafunzo/mafunzo/tests"
)

// Walks a participant through the whole funnel: draft, code entry, submit,
// admin approval; then checks the referrer side effects.
func TestEnrollmentFlow(t *testing.T) {
	s := newTestServer(t)
	adminToken := getToken(t, s.conf, "admin", true)
	p := testutil.CreateProgram(t, s.programRepo, "go-basics", 50000, true)
	testutil.CreateCode(t, s.referralRepo, "GLOBAL77", "ref1", "", true)
	testutil.CreatePolicy(t, s.referralRepo, p.ID,
		referral.Benefit{Type: referral.BenefitPercentage, Value: 10},
		referral.Benefit{Type: referral.BenefitAmount, Value: 2500},
		nil, nil,
	)

	// step 1: the participant opens a draft (no auth, the form flow holds the id)
	var draft enrollment.Draft
	rec := s.do(newRequest(http.MethodPost, "/v1/enrollments/drafts", marchallObj(t, enrollment.NewDraft{
		ProgramID:        p.ID,
		ParticipantID:    "part1",
		ParticipantName:  "Asha Juma",
		ParticipantEmail: "Asha@Example.com",
	})))
	if rec.Code != http.StatusCreated {
		t.Fatalf("createDraft code = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	decodeJSON(t, rec, &draft)
	if draft.ParticipantEmail != "asha@example.com" {
		t.Errorf("email = %q, want lowercased", draft.ParticipantEmail)
	}

	// step 2: a later form step adds the referral code
	rec = s.do(newRequest(http.MethodPut, "/v1/enrollments/drafts/"+draft.ID, marchallObj(t, enrollment.UpdateDraft{ReferralCode: "global77"})))
	if rec.Code != http.StatusOK {
		t.Fatalf("updateDraft code = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	rec = s.do(newRequest(http.MethodGet, "/v1/enrollments/drafts/"+draft.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("retrieveDraft code = %d, want 200", rec.Code)
	}

	// step 3: submit
	var enr enrollment.Enrollment
	rec = s.do(newRequest(http.MethodPost, "/v1/enrollments/drafts/"+draft.ID+"/submit"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit code = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	decodeJSON(t, rec, &enr)
	if enr.Status != enrollment.StatusPending {
		t.Errorf("status = %s, want pending", enr.Status)
	}
	if enr.FinalPrice != 45000 || enr.Discount != 5000 {
		t.Errorf("pricing = %d/%d, want 45000/5000", enr.FinalPrice, enr.Discount)
	}

	t.Run("resubmit conflicts", func(t *testing.T) {
		rec := s.do(newRequest(http.MethodPost, "/v1/enrollments/drafts/"+draft.ID+"/submit"))
		checkCodeAndData(t, httpTest{wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: enrollment.ErrDraftAlreadySubmit.Error()})}, rec)
	})

	t.Run("retrieval is admin-only", func(t *testing.T) {
		rec := s.do(newRequest(http.MethodGet, "/v1/enrollments/"+enr.ID))
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	// step 4: admin approves
	rec = s.do(newAuthRequest(http.MethodPost, "/v1/enrollments/"+enr.ID+"/approve", adminToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("approve code = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var approved enrollment.Enrollment
	decodeJSON(t, rec, &approved)
	if approved.Status != enrollment.StatusApproved {
		t.Errorf("status = %s, want approved", approved.Status)
	}

	t.Run("reject after approval conflicts", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodPost, "/v1/enrollments/"+enr.ID+"/reject", adminToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: enrollment.ErrAlreadyFinal.Error()})}, rec)
	})

	t.Run("referrer commission confirmed", func(t *testing.T) {
		trackings, err := s.referralSvc.FilterTrackings(context.Background(), referral.TrackingFilter{ReferrerID: "ref1", Status: referral.StatusConfirmed})
		if err != nil {
			t.Fatalf("FilterTrackings() failed: %v", err)
		}
		if len(trackings) != 1 || trackings[0].CommissionEarned != 2500 {
			t.Fatalf("trackings = %+v, want one confirmed with commission 2500", trackings)
		}
	})
}

func TestEnrollmentDraftValidation(t *testing.T) {
	s := newTestServer(t)
	p := testutil.CreateProgram(t, s.programRepo, "go-basics", 50000, true)

	tests := []httpTest{
		{name: "missing fields", body: marchallObj(t, enrollment.NewDraft{ProgramID: p.ID}), wantCode: http.StatusBadRequest},
		{name: "bad email", body: marchallObj(t, enrollment.NewDraft{
			ProgramID: p.ID, ParticipantID: "part1", ParticipantName: "Asha", ParticipantEmail: "not-an-email",
		}), wantCode: http.StatusBadRequest},
		{name: "unknown program", body: marchallObj(t, enrollment.NewDraft{
			ProgramID: "missing", ParticipantID: "part1", ParticipantName: "Asha", ParticipantEmail: "asha@example.com",
		}), wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(newRequest(http.MethodPost, "/v1/enrollments/drafts", tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("inactive program conflicts", func(t *testing.T) {
		closed := testutil.CreateProgram(t, s.programRepo, "closed", 1000, false)
		rec := s.do(newRequest(http.MethodPost, "/v1/enrollments/drafts", marchallObj(t, enrollment.NewDraft{
			ProgramID: closed.ID, ParticipantID: "part1", ParticipantName: "Asha", ParticipantEmail: "asha@example.com",
		})))
		checkCodeAndData(t, httpTest{wantCode: http.StatusConflict, wantData: marchallObj(t, httpErr{Error: enrollment.ErrProgramInactive.Error()})}, rec)
	})
}
