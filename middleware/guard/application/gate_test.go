package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona-gateway/middleware/guard/domain"
)

func newTestGate(store *fakeCounters, now time.Time) Gate {
	return Gate{
		Limiter: Limiter{Store: store, Now: fixedClock(now)},
		Policy:  domain.DefaultPolicy(),
	}
}

var t0 = time.UnixMilli(1_700_000_000_000)

func TestGate_PlanOrder(t *testing.T) {
	g := newTestGate(newFakeCounters(), t0)
	subj := domain.Subject{IP: "1.2.3.4", VisitorID: "v1", Tier: domain.TierAnonymous}

	var got []domain.Reason
	for _, c := range g.Plan(domain.OpMessage, subj) {
		got = append(got, c.Reason)
	}
	assert.Equal(t, []domain.Reason{domain.ReasonGlobal, domain.ReasonIPHourly, domain.ReasonIPDaily, domain.ReasonTierMessage}, got)

	got = nil
	for _, c := range g.Plan(domain.OpSite, subj) {
		got = append(got, c.Reason)
	}
	assert.Equal(t, []domain.Reason{domain.ReasonGlobal, domain.ReasonTierSite}, got)
}

func TestGate_TierKeyIgnoresTier(t *testing.T) {
	g := newTestGate(newFakeCounters(), t0)
	low := g.Plan(domain.OpMessage, domain.Subject{IP: "ip", VisitorID: "v1", Tier: domain.TierAnonymous})
	high := g.Plan(domain.OpMessage, domain.Subject{IP: "ip", VisitorID: "v1", Tier: domain.TierEmailed})

	assert.Equal(t, low[3].Key, high[3].Key)
	assert.Equal(t, 10, low[3].Capacity)
	assert.Equal(t, 200, high[3].Capacity)
}

func TestGate_GlobalDenialShortCircuits(t *testing.T) {
	store := newFakeCounters()
	store.fill(globalKey, 60, t0)
	g := newTestGate(store, t0)
	subj := domain.Subject{IP: "1.2.3.4", VisitorID: "v1", Tier: domain.TierAnonymous}

	res, err := g.Acquire(context.Background(), domain.OpMessage, subj)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, domain.ReasonGlobal, res.Reason)
	assert.Equal(t, 0, res.Remaining)

	assert.Equal(t, 1, store.calls(globalKey))
	assert.Zero(t, store.calls("ip-hourly:1.2.3.4"))
	assert.Zero(t, store.calls("ip-daily:1.2.3.4"))
	assert.Zero(t, store.calls("tier-message:v1"))
}

func TestGate_ReportsFirstFailingCheck(t *testing.T) {
	store := newFakeCounters()
	store.fill("ip-hourly:1.2.3.4", 200, t0)
	store.fill("tier-message:v1", 10, t0)
	g := newTestGate(store, t0)

	res, err := g.Acquire(context.Background(), domain.OpMessage, domain.Subject{IP: "1.2.3.4", VisitorID: "v1", Tier: domain.TierAnonymous})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonIPHourly, res.Reason)
	assert.Zero(t, store.calls("tier-message:v1"))
}

func TestGate_AnonymousBurst(t *testing.T) {
	g := newTestGate(newFakeCounters(), t0)
	subj := domain.Subject{IP: "1.2.3.4", VisitorID: "anon", Tier: domain.TierAnonymous}

	for i := 1; i <= 10; i++ {
		res, err := g.Acquire(context.Background(), domain.OpMessage, subj)
		require.NoError(t, err)
		require.True(t, res.Allowed, "message %d", i)
		assert.Equal(t, 10-i, res.Remaining)
	}

	res, err := g.Acquire(context.Background(), domain.OpMessage, subj)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, domain.ReasonTierMessage, res.Reason)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, t0.Add(24*time.Hour), res.ResetAt)
}

func TestGate_DisclosureUpgradeMidSession(t *testing.T) {
	g := newTestGate(newFakeCounters(), t0)
	subj := domain.Subject{IP: "1.2.3.4", VisitorID: "v1", Tier: domain.TierAnonymous}

	for i := 0; i < 10; i++ {
		_, err := g.Acquire(context.Background(), domain.OpMessage, subj)
		require.NoError(t, err)
	}
	res, _ := g.Acquire(context.Background(), domain.OpMessage, subj)
	require.False(t, res.Allowed)

	subj.Tier = domain.TierNamed
	res, err := g.Acquire(context.Background(), domain.OpMessage, subj)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	// o consumo anterior continua contando contra a nova cota (50 - 11).
	assert.Equal(t, 39, res.Remaining)
}

func TestGate_UnlimitedTierNeverTouchesTierCounter(t *testing.T) {
	store := newFakeCounters()
	g := newTestGate(store, t0)
	subj := domain.Subject{IP: "1.2.3.4", VisitorID: "vip", Tier: domain.TierContacted}

	for i := 0; i < 20; i++ {
		res, err := g.Acquire(context.Background(), domain.OpSite, subj)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		assert.True(t, res.Unlimited)
		// sobra o saldo do burst global, a última verificação executada.
		assert.Equal(t, 60-(i+1), res.Remaining)
	}
	assert.Zero(t, store.calls("tier-site:vip"))
}

func TestGate_SiteQuota(t *testing.T) {
	g := newTestGate(newFakeCounters(), t0)
	subj := domain.Subject{IP: "1.2.3.4", VisitorID: "v1", Tier: domain.TierAnonymous}

	res, err := g.Acquire(context.Background(), domain.OpSite, subj)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = g.Acquire(context.Background(), domain.OpSite, subj)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, domain.ReasonTierSite, res.Reason)
}

func TestGate_StoreFailureIsAnError(t *testing.T) {
	store := newFakeCounters()
	store.err = errBoom
	g := newTestGate(store, t0)

	res, err := g.Acquire(context.Background(), domain.OpMessage, domain.Subject{IP: "ip", VisitorID: "v"})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.False(t, res.Allowed)
}

func TestGate_RemainingDoesNotConsume(t *testing.T) {
	store := newFakeCounters()
	g := newTestGate(store, t0)
	subj := domain.Subject{IP: "1.2.3.4", VisitorID: "v1", Tier: domain.TierNamed}

	_, err := g.Acquire(context.Background(), domain.OpMessage, subj)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		report, err := g.Remaining(context.Background(), domain.OpMessage, subj)
		require.NoError(t, err)
		require.Len(t, report.Checks, 4)
		assert.Equal(t, 49, report.Checks[3].Remaining)
		assert.Equal(t, 50, report.Checks[3].Capacity)
	}
	assert.Equal(t, 1, store.calls("tier-message:v1"))
}

func TestGate_RejectsUnknownOperation(t *testing.T) {
	g := newTestGate(newFakeCounters(), t0)
	_, err := g.Acquire(context.Background(), "upload", domain.Subject{})
	require.Error(t, err)
}
