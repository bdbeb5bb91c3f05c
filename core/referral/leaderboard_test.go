package referral_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mafunzo/mafunzo/core/referral"
	cachesvc "github.com/mafunzo/mafunzo/services/cache"
	testutil "github.com/mafunzo/mafunzo/tests"
)

var trackingSeq int

func seedTracking(t *testing.T, repo referral.Repository, referrerID string, status referral.Status, commission, discount int64, createdAt time.Time) referral.Tracking {
	t.Helper()
	trackingSeq++
	tr, err := repo.CreateTracking(context.Background(), referral.Tracking{
		ID:               fmt.Sprintf("trk%d", trackingSeq),
		Code:             "CODE" + referrerID,
		ReferrerID:       referrerID,
		ParticipantID:    fmt.Sprintf("part%d", trackingSeq),
		EnrollmentID:     fmt.Sprintf("enr%d", trackingSeq),
		ProgramID:        "prog-go",
		PolicyID:         "policy1",
		DiscountApplied:  discount,
		CommissionEarned: commission,
		Status:           status,
		CreatedAt:        createdAt,
	}, 0, 0)
	if err != nil {
		t.Fatalf("CreateTracking() failed: %v", err)
	}
	return tr
}

func TestSummarize(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	svc, repo := newTestService(t)
	testutil.CreateCode(t, repo, "CODEALFA", "alfa", "", true)
	testutil.CreateCode(t, repo, "CODEALF2", "alfa", "prog-go", true)
	testutil.CreateCode(t, repo, "CODEBRVO", "bravo", "", true)

	// alfa: 2 confirmed, 1 pending, 1 cancelled
	seedTracking(t, repo, "alfa", referral.StatusConfirmed, 1000, 500, now.Add(-3*time.Hour))
	seedTracking(t, repo, "alfa", referral.StatusConfirmed, 1500, 500, now.Add(-2*time.Hour))
	seedTracking(t, repo, "alfa", referral.StatusPending, 2000, 500, now.Add(-time.Hour))
	seedTracking(t, repo, "alfa", referral.StatusCancelled, 9000, 500, now.Add(-time.Minute))
	// bravo: 1 confirmed
	seedTracking(t, repo, "bravo", referral.StatusConfirmed, 4000, 500, now.Add(-time.Hour))

	entries, err := svc.Summarize(ctx, referral.WindowAll)
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Summarize() returned %d entries, want 2", len(entries))
	}

	alfa := entries[0]
	if alfa.ReferrerID != "alfa" || alfa.Rank != 1 {
		t.Fatalf("top entry = %s (rank %d), want alfa at rank 1", alfa.ReferrerID, alfa.Rank)
	}
	if alfa.TotalReferrals != 4 || alfa.ConfirmedReferrals != 2 || alfa.PendingReferrals != 1 || alfa.CancelledReferrals != 1 {
		t.Errorf("alfa counts = %d/%d/%d/%d, want 4/2/1/1",
			alfa.TotalReferrals, alfa.ConfirmedReferrals, alfa.PendingReferrals, alfa.CancelledReferrals)
	}
	// commission from confirmed only, discount from confirmed and pending,
	// the cancelled record contributes to neither
	if alfa.ConfirmedCommission != 2500 {
		t.Errorf("alfa commission = %d, want 2500", alfa.ConfirmedCommission)
	}
	if alfa.TotalDiscountGiven != 1500 {
		t.Errorf("alfa discount = %d, want 1500", alfa.TotalDiscountGiven)
	}
	if alfa.ConversionRate != 0.5 {
		t.Errorf("alfa conversion rate = %v, want 0.5", alfa.ConversionRate)
	}
	if alfa.ActiveCodes != 2 {
		t.Errorf("alfa active codes = %d, want 2", alfa.ActiveCodes)
	}
	if entries[1].ReferrerID != "bravo" || entries[1].Rank != 2 {
		t.Errorf("second entry = %s (rank %d), want bravo at rank 2", entries[1].ReferrerID, entries[1].Rank)
	}
}

func TestSummarizeTieBreakers(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("commission breaks confirmed tie", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedTracking(t, repo, "low", referral.StatusConfirmed, 100, 0, now.Add(-time.Hour))
		seedTracking(t, repo, "high", referral.StatusConfirmed, 900, 0, now.Add(-time.Hour))

		entries, err := svc.Summarize(ctx, referral.WindowAll)
		if err != nil {
			t.Fatalf("Summarize() failed: %v", err)
		}
		if entries[0].ReferrerID != "high" {
			t.Errorf("top entry = %s, want high", entries[0].ReferrerID)
		}
	})

	t.Run("earlier last referral breaks commission tie", func(t *testing.T) {
		svc, repo := newTestService(t)
		seedTracking(t, repo, "late", referral.StatusConfirmed, 500, 0, now.Add(-time.Hour))
		seedTracking(t, repo, "early", referral.StatusConfirmed, 500, 0, now.Add(-2*time.Hour))

		entries, err := svc.Summarize(ctx, referral.WindowAll)
		if err != nil {
			t.Fatalf("Summarize() failed: %v", err)
		}
		if entries[0].ReferrerID != "early" {
			t.Errorf("top entry = %s, want early", entries[0].ReferrerID)
		}
	})

	t.Run("referrer id is the final tie breaker", func(t *testing.T) {
		svc, repo := newTestService(t)
		at := now.Add(-time.Hour)
		seedTracking(t, repo, "zulu", referral.StatusConfirmed, 500, 0, at)
		seedTracking(t, repo, "alfa", referral.StatusConfirmed, 500, 0, at)

		entries, err := svc.Summarize(ctx, referral.WindowAll)
		if err != nil {
			t.Fatalf("Summarize() failed: %v", err)
		}
		if entries[0].ReferrerID != "alfa" {
			t.Errorf("top entry = %s, want alfa", entries[0].ReferrerID)
		}
	})
}

func TestSummarizeWindows(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	svc, repo := newTestService(t)

	seedTracking(t, repo, "alfa", referral.StatusConfirmed, 100, 0, now.Add(-2*24*time.Hour))
	seedTracking(t, repo, "alfa", referral.StatusConfirmed, 100, 0, now.Add(-20*24*time.Hour))
	seedTracking(t, repo, "alfa", referral.StatusConfirmed, 100, 0, now.Add(-100*24*time.Hour))
	seedTracking(t, repo, "alfa", referral.StatusConfirmed, 100, 0, now.Add(-400*24*time.Hour))

	tests := []struct {
		window referral.TimeWindow
		want   int
	}{
		{window: referral.WindowWeek, want: 1},
		{window: referral.WindowMonth, want: 2},
		{window: referral.WindowYear, want: 3},
		{window: referral.WindowAll, want: 4},
	}
	for _, tt := range tests {
		t.Run(string(tt.window), func(t *testing.T) {
			entries, err := svc.Summarize(ctx, tt.window)
			if err != nil {
				t.Fatalf("Summarize() failed: %v", err)
			}
			if len(entries) != 1 {
				t.Fatalf("Summarize() returned %d entries, want 1", len(entries))
			}
			if entries[0].TotalReferrals != tt.want {
				t.Errorf("total referrals = %d, want %d", entries[0].TotalReferrals, tt.want)
			}
		})
	}
}

func TestLeaderboardCache(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	mr := miniredis.RunT(t)
	cache := cachesvc.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	_, repo := newTestService(t)
	svc := referral.NewService(testutil.NewConfig(), repo, testutil.NewLogger(), cache)
	seedTracking(t, repo, "alfa", referral.StatusConfirmed, 100, 0, now.Add(-time.Hour))

	entries, err := svc.Leaderboard(ctx, referral.WindowAll)
	if err != nil {
		t.Fatalf("Leaderboard() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Leaderboard() returned %d entries, want 1", len(entries))
	}
	if !mr.Exists("leaderboard:all") {
		t.Fatal("leaderboard was not cached")
	}

	// within the TTL the cached ranking is served, even though the data changed
	seedTracking(t, repo, "bravo", referral.StatusConfirmed, 100, 0, now)
	entries, err = svc.Leaderboard(ctx, referral.WindowAll)
	if err != nil {
		t.Fatalf("Leaderboard() second call failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Leaderboard() returned %d entries, want the 1 cached entry", len(entries))
	}

	// once the TTL lapses the new record shows up
	mr.FastForward(2 * time.Minute)
	entries, err = svc.Leaderboard(ctx, referral.WindowAll)
	if err != nil {
		t.Fatalf("Leaderboard() after expiry failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Leaderboard() returned %d entries after expiry, want 2", len(entries))
	}
}

func TestRefreshLeaderboards(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	cache := cachesvc.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	_, repo := newTestService(t)
	svc := referral.NewService(testutil.NewConfig(), repo, testutil.NewLogger(), cache)
	seedTracking(t, repo, "alfa", referral.StatusConfirmed, 100, 0, time.Now().UTC())

	if err := svc.RefreshLeaderboards(ctx); err != nil {
		t.Fatalf("RefreshLeaderboards() failed: %v", err)
	}
	for _, window := range []string{"all", "week", "month", "year"} {
		if !mr.Exists("leaderboard:" + window) {
			t.Errorf("window %q was not warmed", window)
		}
	}
}

func TestIsUnlocked(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	svc, repo := newTestService(t)

	unlocked, err := svc.IsUnlocked(ctx, "alfa")
	if err != nil {
		t.Fatalf("IsUnlocked() failed: %v", err)
	}
	if unlocked {
		t.Error("referrer with no referrals should be locked")
	}

	// pending is not enough
	tr := seedTracking(t, repo, "alfa", referral.StatusPending, 100, 0, now)
	if unlocked, _ = svc.IsUnlocked(ctx, "alfa"); unlocked {
		t.Error("a pending referral should not unlock")
	}

	if _, err = svc.Confirm(ctx, tr.ID); err != nil {
		t.Fatalf("Confirm() failed: %v", err)
	}
	if unlocked, _ = svc.IsUnlocked(ctx, "alfa"); !unlocked {
		t.Error("a confirmed referral should unlock")
	}

	// another referrer's confirmation does not leak
	if unlocked, _ = svc.IsUnlocked(ctx, "bravo"); unlocked {
		t.Error("unlock leaked to another referrer")
	}
}
