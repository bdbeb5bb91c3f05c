package referral

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

// Summarize aggregates tracking records per referrer over the window.
// Read-only and side-effect free; safe to call concurrently. Reads tolerate
// eventual consistency: a record confirmed a moment ago may not appear in a
// concurrently-running aggregation.
func (svc *Service) Summarize(ctx context.Context, window TimeWindow) ([]LeaderboardEntry, error) {
	trackings, err := svc.repo.FilterTrackings(ctx, TrackingFilter{CreatedFrom: window.Since(svc.now())})
	if err != nil {
		return nil, errors.Wrap(err, "querying trackings")
	}

	byReferrer := make(map[string]*LeaderboardEntry)
	for _, t := range trackings {
		e, ok := byReferrer[t.ReferrerID]
		if !ok {
			e = &LeaderboardEntry{ReferrerID: t.ReferrerID}
			byReferrer[t.ReferrerID] = e
		}
		e.TotalReferrals++
		switch t.Status {
		case StatusConfirmed:
			e.ConfirmedReferrals++
			e.ConfirmedCommission += t.CommissionEarned
			e.TotalDiscountGiven += t.DiscountApplied
		case StatusPending:
			e.PendingReferrals++
			e.TotalDiscountGiven += t.DiscountApplied
		case StatusCancelled:
			e.CancelledReferrals++
		}
		if t.CreatedAt.After(e.LastReferralAt) {
			e.LastReferralAt = t.CreatedAt
		}
	}

	entries := make([]LeaderboardEntry, 0, len(byReferrer))
	for _, e := range byReferrer {
		if e.TotalReferrals > 0 {
			e.ConversionRate = float64(e.ConfirmedReferrals) / float64(e.TotalReferrals)
		}
		n, err := svc.repo.CountActiveCodes(ctx, e.ReferrerID)
		if err != nil {
			return nil, errors.Wrap(err, "counting active codes")
		}
		e.ActiveCodes = n
		entries = append(entries, *e)
	}

	// confirmed desc, then confirmed commission desc, then earliest last
	// referral (rewards consistency), then referrer id for determinism.
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ConfirmedReferrals != b.ConfirmedReferrals {
			return a.ConfirmedReferrals > b.ConfirmedReferrals
		}
		if a.ConfirmedCommission != b.ConfirmedCommission {
			return a.ConfirmedCommission > b.ConfirmedCommission
		}
		if !a.LastReferralAt.Equal(b.LastReferralAt) {
			return a.LastReferralAt.Before(b.LastReferralAt)
		}
		return a.ReferrerID < b.ReferrerID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// Leaderboard serves the ranked entries for the window, through the cache
// when one is configured. Stale reads within the cache TTL are acceptable.
func (svc *Service) Leaderboard(ctx context.Context, window TimeWindow) ([]LeaderboardEntry, error) {
	if svc.cache == nil {
		return svc.Summarize(ctx, window)
	}

	key := leaderboardCacheKey(window)
	var entries []LeaderboardEntry
	if ok, err := svc.cache.Get(ctx, key, &entries); err != nil {
		svc.logger.Warn("leaderboard cache read failed", err)
	} else if ok {
		return entries, nil
	}

	entries, err := svc.Summarize(ctx, window)
	if err != nil {
		return nil, err
	}
	if err := svc.cache.Set(ctx, key, entries, svc.conf.Redis.LeaderboardTTL); err != nil {
		svc.logger.Warn("leaderboard cache write failed", err)
	}
	return entries, nil
}

// RefreshLeaderboards recomputes and caches every window; wired to a cron
// schedule so interactive reads mostly hit warm entries.
func (svc *Service) RefreshLeaderboards(ctx context.Context) error {
	if svc.cache == nil {
		return nil
	}
	for _, window := range []TimeWindow{WindowAll, WindowWeek, WindowMonth, WindowYear} {
		entries, err := svc.Summarize(ctx, window)
		if err != nil {
			return err
		}
		if err := svc.cache.Set(ctx, leaderboardCacheKey(window), entries, svc.conf.Redis.LeaderboardTTL); err != nil {
			return errors.Wrap(err, "caching leaderboard")
		}
	}
	return nil
}

// IsUnlocked reports whether the referrer has unlocked gated content: at
// least one confirmed referral, ever. Deliberately re-evaluated on every
// check (never a stored flag, never the cache) so a confirmation shows up on
// the next check without an explicit unlock write. Monotonic: confirmed
// records are terminal, so once true it stays true.
func (svc *Service) IsUnlocked(ctx context.Context, referrerID string) (bool, error) {
	trackings, err := svc.repo.FilterTrackings(ctx, TrackingFilter{ReferrerID: referrerID, Status: StatusConfirmed})
	if err != nil {
		return false, errors.Wrap(err, "querying confirmed trackings")
	}
	return len(trackings) > 0, nil
}

func leaderboardCacheKey(window TimeWindow) string {
	return "leaderboard:" + string(window)
}
