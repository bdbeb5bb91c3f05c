package echoapi

import (
	"context"
	"net/http"
	"testing"

	"github.com/mafunzo/mafunzo/core/referral"
	testutil "github.com/mafunzo/mafunzo/tests"
)

func TestCodeEndpoints(t *testing.T) {
	s := newTestServer(t)
	referrerToken := getToken(t, s.conf, "ref1", false)
	adminToken := getToken(t, s.conf, "admin", true)

	t.Run("issuing requires auth", func(t *testing.T) {
		rec := s.do(newRequest(http.MethodPost, "/v1/codes", marchallObj(t, CodeRequest{})))
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	var issued CodeResponse
	t.Run("issue code", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodPost, "/v1/codes", referrerToken, marchallObj(t, CodeRequest{})))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200; body %s", rec.Code, rec.Body.String())
		}
		decodeJSON(t, rec, &issued)
		if issued.Code.OwnerID != "ref1" {
			t.Errorf("owner = %q, want the token subject ref1", issued.Code.OwnerID)
		}
		if issued.ShareLink != "http://localhost:3000/join?ref="+issued.Code.Code {
			t.Errorf("share link = %q", issued.ShareLink)
		}
	})

	t.Run("issue is idempotent", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodPost, "/v1/codes", referrerToken, marchallObj(t, CodeRequest{})))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200", rec.Code)
		}
		var again CodeResponse
		decodeJSON(t, rec, &again)
		if again.Code.Code != issued.Code.Code {
			t.Errorf("reissued %q, want %q", again.Code.Code, issued.Code.Code)
		}
	})

	t.Run("share link", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodGet, "/v1/codes/"+issued.Code.Code+"/share-link", referrerToken))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200", rec.Code)
		}
		var resp ShareLinkResponse
		decodeJSON(t, rec, &resp)
		if resp.ShareLink != issued.ShareLink {
			t.Errorf("share link = %q, want %q", resp.ShareLink, issued.ShareLink)
		}
	})

	t.Run("share link for unknown code", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodGet, "/v1/codes/NOPE1234/share-link", referrerToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: referral.ErrCodeNotFound.Error()})}, rec)
	})

	t.Run("deactivation is admin-only", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodDelete, "/v1/codes/"+issued.Code.Code, referrerToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied)}, rec)

		rec = s.do(newAuthRequest(http.MethodDelete, "/v1/codes/"+issued.Code.Code, adminToken))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200", rec.Code)
		}
		var code referral.Code
		decodeJSON(t, rec, &code)
		if code.IsActive {
			t.Error("code still active after deactivation")
		}
	})

	t.Run("share link for inactive code", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodGet, "/v1/codes/"+issued.Code.Code+"/share-link", referrerToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: referral.ErrCodeInactive.Error()})}, rec)
	})
}

func TestPolicyEndpoints(t *testing.T) {
	s := newTestServer(t)
	referrerToken := getToken(t, s.conf, "ref1", false)
	adminToken := getToken(t, s.conf, "admin", true)

	newPolicy := marchallObj(t, referral.NewPolicy{
		ProgramID:           "prog-go",
		ParticipantDiscount: referral.Benefit{Type: referral.BenefitPercentage, Value: 10},
		ReferrerCommission:  referral.Benefit{Type: referral.BenefitAmount, Value: 2500},
	})

	tests := []httpTest{
		{name: "creation requires auth", method: http.MethodPost, path: "/v1/policies", body: newPolicy,
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "creation is admin-only", method: http.MethodPost, path: "/v1/policies", body: newPolicy, token: referrerToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied)},
		{name: "listing is admin-only", method: http.MethodGet, path: "/v1/policies", token: referrerToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied)},
		{name: "invalid benefit type", method: http.MethodPost, path: "/v1/policies", token: adminToken,
			body:     marchallObj(t, map[string]interface{}{"program_id": "prog-go", "participant_discount": map[string]interface{}{"type": "points", "value": 5}}),
			wantCode: http.StatusBadRequest},
		{name: "create", method: http.MethodPost, path: "/v1/policies", body: newPolicy, token: adminToken,
			wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(newAuthRequest(tt.method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}

	var created referral.Policy
	rec := s.do(newAuthRequest(http.MethodPost, "/v1/policies", adminToken, marchallObj(t, referral.NewPolicy{
		ProgramID:           "prog-rust",
		ParticipantDiscount: referral.Benefit{Type: referral.BenefitAmount, Value: 1500},
		ReferrerCommission:  referral.Benefit{Type: referral.BenefitPercentage, Value: 5},
		MaxTotalUses:        testutil.IntPtr(50),
	})))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create code = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	decodeJSON(t, rec, &created)

	t.Run("retrieve", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodGet, "/v1/policies/"+created.ID, adminToken))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200", rec.Code)
		}
		var got referral.Policy
		decodeJSON(t, rec, &got)
		if got.ID != created.ID || got.MaxTotalUses == nil || *got.MaxTotalUses != 50 {
			t.Errorf("policy = %+v", got)
		}
	})

	t.Run("query by program", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodGet, "/v1/policies?program=prog-rust", adminToken))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200", rec.Code)
		}
		var got []referral.Policy
		decodeJSON(t, rec, &got)
		if len(got) != 1 || got[0].ID != created.ID {
			t.Errorf("policies = %+v, want only %s", got, created.ID)
		}
	})

	t.Run("update", func(t *testing.T) {
		body := marchallObj(t, referral.UpdatePolicy{
			ParticipantDiscount: &referral.Benefit{Type: referral.BenefitAmount, Value: 2000},
		})
		rec := s.do(newAuthRequest(http.MethodPut, "/v1/policies/"+created.ID, adminToken, body))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200; body %s", rec.Code, rec.Body.String())
		}
		var got referral.Policy
		decodeJSON(t, rec, &got)
		if got.ParticipantDiscount.Value != 2000 {
			t.Errorf("discount = %d, want 2000", got.ParticipantDiscount.Value)
		}
	})

	t.Run("destroy", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodDelete, "/v1/policies/"+created.ID, adminToken))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %d, want 204", rec.Code)
		}
		rec = s.do(newAuthRequest(http.MethodGet, "/v1/policies/"+created.ID, adminToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: referral.ErrPolicyNotFound.Error()})}, rec)
	})
}

func TestLeaderboardEndpoint(t *testing.T) {
	s := newTestServer(t)
	testutil.CreateCode(t, s.referralRepo, "GLOBAL77", "ref1", "", true)
	testutil.CreatePolicy(t, s.referralRepo, "prog-go",
		referral.Benefit{Type: referral.BenefitPercentage, Value: 10},
		referral.Benefit{Type: referral.BenefitAmount, Value: 2500},
		nil, nil,
	)

	t.Run("empty board is public", func(t *testing.T) {
		rec := s.do(newRequest(http.MethodGet, "/v1/leaderboard"))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte("[]")}, rec)
	})

	t.Run("invalid window", func(t *testing.T) {
		rec := s.do(newRequest(http.MethodGet, "/v1/leaderboard?window=fortnight"))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"window": "must be one of: all, week, month, year"}),
		}, rec)
	})

	// a confirmed referral shows up ranked
	att, err := s.referralSvc.OnEnrollmentCreated(context.Background(), referral.EnrollmentCreated{
		ProgramID: "prog-go", ParticipantID: "part1", EnrollmentID: "enr1", Code: "GLOBAL77", BasePrice: 50000,
	})
	if err != nil {
		t.Fatalf("OnEnrollmentCreated() failed: %v", err)
	}
	if _, err = s.referralSvc.Confirm(context.Background(), att.TrackingID); err != nil {
		t.Fatalf("Confirm() failed: %v", err)
	}

	t.Run("ranked entries", func(t *testing.T) {
		rec := s.do(newRequest(http.MethodGet, "/v1/leaderboard?window=week"))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200", rec.Code)
		}
		var entries []referral.LeaderboardEntry
		decodeJSON(t, rec, &entries)
		if len(entries) != 1 {
			t.Fatalf("entries = %d, want 1", len(entries))
		}
		e := entries[0]
		if e.Rank != 1 || e.ReferrerID != "ref1" || e.ConfirmedCommission != 2500 {
			t.Errorf("entry = %+v", e)
		}
	})
}

func TestTrackingsEndpoint(t *testing.T) {
	s := newTestServer(t)
	referrerToken := getToken(t, s.conf, "ref1", false)
	adminToken := getToken(t, s.conf, "admin", true)
	testutil.CreateCode(t, s.referralRepo, "GLOBAL77", "ref1", "", true)
	testutil.CreatePolicy(t, s.referralRepo, "prog-go",
		referral.Benefit{Type: referral.BenefitPercentage, Value: 10},
		referral.Benefit{Type: referral.BenefitAmount, Value: 2500},
		nil, nil,
	)
	if _, err := s.referralSvc.OnEnrollmentCreated(context.Background(), referral.EnrollmentCreated{
		ProgramID: "prog-go", ParticipantID: "part1", EnrollmentID: "enr1", Code: "GLOBAL77", BasePrice: 50000,
	}); err != nil {
		t.Fatalf("OnEnrollmentCreated() failed: %v", err)
	}

	t.Run("admin-only", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodGet, "/v1/trackings", referrerToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied)}, rec)
	})

	t.Run("filter by status", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodGet, "/v1/trackings?status=pending&referrer=ref1", adminToken))
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %d, want 200", rec.Code)
		}
		var trackings []referral.Tracking
		decodeJSON(t, rec, &trackings)
		if len(trackings) != 1 {
			t.Fatalf("trackings = %d, want 1", len(trackings))
		}
		if trackings[0].EnrollmentID != "enr1" {
			t.Errorf("tracking = %+v", trackings[0])
		}
	})

	t.Run("no match", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodGet, "/v1/trackings?status=confirmed", adminToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte("[]")}, rec)
	})

	t.Run("bad filter value", func(t *testing.T) {
		rec := s.do(newAuthRequest(http.MethodGet, "/v1/trackings?created_from=not-a-date", adminToken))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %d, want 400", rec.Code)
		}
	})
}

func TestUnlockedEndpoint(t *testing.T) {
	s := newTestServer(t)
	token := getToken(t, s.conf, "ref1", false)
	testutil.CreateCode(t, s.referralRepo, "GLOBAL77", "ref1", "", true)
	testutil.CreatePolicy(t, s.referralRepo, "prog-go",
		referral.Benefit{Type: referral.BenefitPercentage, Value: 10},
		referral.Benefit{Type: referral.BenefitAmount, Value: 2500},
		nil, nil,
	)

	check := func(t *testing.T, want bool) {
		t.Helper()
		rec := s.do(newAuthRequest(http.MethodGet, "/v1/unlocked", token))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, UnlockedResponse{Unlocked: want})}, rec)
	}

	check(t, false)

	att, err := s.referralSvc.OnEnrollmentCreated(context.Background(), referral.EnrollmentCreated{
		ProgramID: "prog-go", ParticipantID: "part1", EnrollmentID: "enr1", Code: "GLOBAL77", BasePrice: 50000,
	})
	if err != nil {
		t.Fatalf("OnEnrollmentCreated() failed: %v", err)
	}
	check(t, false) // pending does not unlock

	if _, err = s.referralSvc.Confirm(context.Background(), att.TrackingID); err != nil {
		t.Fatalf("Confirm() failed: %v", err)
	}
	check(t, true)
}
