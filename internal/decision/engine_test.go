package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famgate/famgate/internal/deficit"
	"github.com/famgate/famgate/internal/schedule"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

// buildCache assembles a cache whose single day is the date of at.
func buildCache(t *testing.T, at time.Time, activity schedule.CachedActivity, restrictions []schedule.CachedRestriction) *schedule.Cache {
	t.Helper()
	c := schedule.NewCache()
	snap := &schedule.Snapshot{
		Header: schedule.Header{
			GeneratedAt: at.Add(-time.Hour),
			ValidUntil:  at.Add(48 * time.Hour),
			ChildID:     42,
			Timezone:    "UTC",
		},
		Days: []schedule.CachedDay{{
			Date:       at.Format("2006-01-02"),
			DayType:    schedule.DayType{ID: 1, Name: "school-day"},
			Activities: map[string]schedule.CachedActivity{"games": activity},
		}},
		Restrictions: restrictions,
	}
	c.UpdateFromSnapshot(snap, at.Add(-time.Hour))
	return c
}

var evalAt = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) // slot 20

func newTestEngine(cache *schedule.Cache, ledger *deficit.Ledger) *Engine {
	return NewEngine(cache, ledger, fakeClock{now: evalAt}, nil, 0)
}

func TestCheck_NoCacheFailsClosed(t *testing.T) {
	e := newTestEngine(schedule.NewCache(), nil)

	res := e.Check("games")
	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonNoCache, res.Reason)
}

func TestCheck_StaleCacheFailsClosed(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60}, nil)

	// schedule still inside validUntil but applied 25h ago
	old := schedule.NewCache()
	snap := &schedule.Snapshot{
		Header: schedule.Header{ValidUntil: evalAt.Add(48 * time.Hour), ChildID: 42},
		Days:   []schedule.CachedDay{{Date: evalAt.Format("2006-01-02"), Activities: map[string]schedule.CachedActivity{}}},
	}
	old.UpdateFromSnapshot(snap, evalAt.Add(-25*time.Hour))

	assert.True(t, newTestEngine(cache, nil).IsCacheValid(evalAt))
	res := newTestEngine(old, nil).CheckAt("games", evalAt)
	assert.Equal(t, ReasonNoCache, res.Reason)
}

func TestCheck_MissingDayFailsClosed(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60}, nil)
	res := newTestEngine(cache, nil).CheckAt("games", evalAt.Add(72*time.Hour))
	// beyond validUntil as well, but either way the result is NoCache
	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonNoCache, res.Reason)
}

func TestCheck_ExceptionBeatsBan(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60}, []schedule.CachedRestriction{
		{ID: 1, Pattern: "games", Blocked: true},
		{ID: 2, Pattern: "games", Blocked: false},
	})

	res := newTestEngine(cache, nil).CheckAt("games", evalAt)
	assert.True(t, res.Allowed)
	assert.Equal(t, ReasonAllowed, res.Reason)
	assert.Equal(t, RemainingUnlimited, res.RemainingMinutes)
}

func TestCheck_BanBeatsExtension(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60}, []schedule.CachedRestriction{
		{ID: 1, Pattern: "games", Blocked: true},
	})
	cache.AddLocalExtension(schedule.CachedExtension{
		ChildID: 42, ActivityID: "games", Minutes: 30, ExpiresAt: evalAt.Add(30 * time.Minute),
	})

	res := newTestEngine(cache, nil).CheckAt("games", evalAt)
	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonBanned, res.Reason)
}

func TestCheck_BanExpiryRespected(t *testing.T) {
	liftAt := evalAt.Add(30 * time.Minute)
	cache := buildCache(t, evalAt, schedule.CachedActivity{}, []schedule.CachedRestriction{
		{ID: 1, Pattern: "games", Blocked: true, ExpiresAt: &liftAt},
	})
	e := newTestEngine(cache, nil)

	assert.Equal(t, ReasonBanned, e.CheckAt("games", evalAt).Reason)
	assert.Equal(t, ReasonAllowed, e.CheckAt("games", liftAt.Add(time.Minute)).Reason)
}

func TestCheck_ExtensionRaisesCeiling(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60, Used: 55}, nil)
	cache.AddLocalExtension(schedule.CachedExtension{
		ChildID: 42, ActivityID: "games", Minutes: 45, ExpiresAt: evalAt.Add(45 * time.Minute),
	})

	res := newTestEngine(cache, nil).CheckAt("games", evalAt)
	assert.True(t, res.Allowed)
	assert.True(t, res.HasExtension)
	assert.Equal(t, 45, res.ExtensionRemaining)
	// extension floor wins over the 5 quota minutes left
	assert.Equal(t, 45, res.RemainingMinutes)
}

func TestCheck_ExtensionNeverLowers(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60, Used: 10}, nil)
	cache.AddLocalExtension(schedule.CachedExtension{
		ChildID: 42, ActivityID: "games", Minutes: 5, ExpiresAt: evalAt.Add(5 * time.Minute),
	})

	res := newTestEngine(cache, nil).CheckAt("games", evalAt)
	assert.Equal(t, 50, res.RemainingMinutes) // quota remaining is the larger
}

func blocksFor(slots ...int) []bool {
	b := make([]bool, schedule.SlotsPerDay)
	for _, s := range slots {
		b[s] = true
	}
	return b
}

func TestCheck_TimeBlocked(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{TimeBlocks: blocksFor(30, 31)}, nil)

	res := newTestEngine(cache, nil).CheckAt("games", evalAt) // slot 20 closed
	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonTimeBlocked, res.Reason)
}

func TestCheck_TimeBlockRemaining(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{TimeBlocks: blocksFor(20, 21, 22, 23)}, nil)
	e := newTestEngine(cache, nil)

	// start of slot 20: four open slots ahead
	assert.Equal(t, 120, e.GetEffectiveRemaining("games", evalAt))

	// ten minutes into slot 20
	assert.Equal(t, 110, e.GetEffectiveRemaining("games", evalAt.Add(10*time.Minute)))

	// last open slot, 29 minutes in
	assert.Equal(t, 1, e.GetEffectiveRemaining("games", evalAt.Add(90*time.Minute).Add(29*time.Minute)))
}

func TestCheck_NoBlocksMeansAllDay(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{}, nil)

	res := newTestEngine(cache, nil).CheckAt("games", evalAt)
	assert.True(t, res.Allowed)
	assert.Equal(t, RemainingUnlimited, res.RemainingMinutes)
}

func TestCheck_QuotaArithmetic(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60, Used: 45}, nil)
	e := newTestEngine(cache, nil)
	e.LogUsage("games", 10)

	res := e.CheckAt("games", evalAt)
	assert.True(t, res.Allowed)
	assert.Equal(t, ReasonAllowed, res.Reason)
	assert.Equal(t, 5, res.RemainingMinutes)
	assert.Equal(t, 55, res.QuotaUsed)
	assert.Equal(t, 60, res.QuotaTotal)
}

func TestCheck_QuotaExhausted(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60, Used: 60}, nil)

	res := newTestEngine(cache, nil).CheckAt("games", evalAt)
	assert.False(t, res.Allowed)
	assert.Equal(t, ReasonQuotaExhausted, res.Reason)
	assert.Equal(t, 0, res.RemainingMinutes)
}

func TestCheck_QuotaBonusCounts(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60, Bonus: 15, Used: 60}, nil)

	res := newTestEngine(cache, nil).CheckAt("games", evalAt)
	assert.True(t, res.Allowed)
	assert.Equal(t, 15, res.RemainingMinutes)
	assert.Equal(t, 75, res.QuotaTotal)
}

func TestCheck_DeficitShrinksQuota(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60, Used: 30}, nil)
	ledger := deficit.NewLedger(60)
	ledger.AddDeficit(42, "games", 20, evalAt)

	res := newTestEngine(cache, ledger).CheckAt("games", evalAt)
	assert.True(t, res.Allowed)
	assert.Equal(t, 10, res.RemainingMinutes)

	// deficit can exhaust quota outright
	ledger.AddDeficit(42, "games", 40, evalAt)
	res = newTestEngine(cache, ledger).CheckAt("games", evalAt)
	assert.Equal(t, ReasonQuotaExhausted, res.Reason)
}

func TestCheck_QuotaAndBlockCombine(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60, Used: 15, TimeBlocks: blocksFor(20)}, nil)
	e := newTestEngine(cache, nil)

	// quota leaves 45 but the block window only 30
	res := e.CheckAt("games", evalAt)
	assert.True(t, res.Allowed)
	assert.Equal(t, 30, res.RemainingMinutes)
}

func TestCheck_UnconfiguredActivityAllowed(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60}, nil)

	res := newTestEngine(cache, nil).CheckAt("drawing", evalAt)
	assert.True(t, res.Allowed)
	assert.Equal(t, RemainingUnlimited, res.RemainingMinutes)
}

func TestWarningThresholds_DownwardCrossings(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60, Used: 56}, nil)
	e := newTestEngine(cache, nil)

	// effective remaining is 4: moving from 18 crosses 15 and 5
	crossed := e.GetCrossedWarningThresholds("games", 18, evalAt)
	assert.Equal(t, []int{15, 5}, crossed)

	// already below: no re-fire
	crossed = e.GetCrossedWarningThresholds("games", 4, evalAt)
	assert.Empty(t, crossed)

	// ties never fire
	cache2 := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60, Used: 45}, nil)
	e2 := newTestEngine(cache2, nil)
	assert.Empty(t, e2.GetCrossedWarningThresholds("games", 15, evalAt))
}

func TestWarningThresholds_UpwardMovementSilent(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60, Used: 42}, nil)
	e := newTestEngine(cache, nil)

	// remaining is 18 now, was 4: time granted, nothing fires
	assert.Empty(t, e.GetCrossedWarningThresholds("games", 4, evalAt))
}

func TestEvents_PublishedPerCheck(t *testing.T) {
	cache := buildCache(t, evalAt, schedule.CachedActivity{Quota: 60}, nil)
	e := newTestEngine(cache, nil)

	res := e.CheckAt("games", evalAt)

	select {
	case ev := <-e.Events():
		assert.Equal(t, "games", ev.ActivityID)
		assert.Equal(t, res, ev.Result)
		assert.True(t, evalAt.Equal(ev.At))
	default:
		t.Fatal("no event published")
	}
}

func TestReasonString(t *testing.T) {
	require.Equal(t, "allowed", ReasonAllowed.String())
	require.Equal(t, "no_cache", ReasonNoCache.String())
	require.Equal(t, "banned", ReasonBanned.String())
	require.Equal(t, "time_blocked", ReasonTimeBlocked.String())
	require.Equal(t, "quota_exhausted", ReasonQuotaExhausted.String())
}
