package anomaly

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/config"
)

type harness struct {
	store *audit.MemoryStore
	rec   *audit.Recorder
	det   *Detector
	clock time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: audit.NewMemoryStore(), clock: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	h.rec = audit.NewRecorder(h.store)
	h.rec.SetClock(func() time.Time { return h.clock })
	h.det = New(h.store, h.rec, DefaultRules())
	h.det.SetClock(func() time.Time { return h.clock })
	h.rec.SetObserver(h.det)
	return h
}

func (h *harness) fromIP(ip string) context.Context {
	return audit.WithRequestMeta(context.Background(), audit.RequestMeta{IPAddress: ip, UserAgent: "test"})
}

func (h *harness) alerts(t *testing.T, rule string) []audit.Entry {
	t.Helper()
	page, err := h.rec.Query(context.Background(), audit.Filter{Action: audit.AlertAction(rule)}, 1, 100)
	require.NoError(t, err)
	return page.Entries
}

func TestBruteForceBelowThresholdIsQuiet(t *testing.T) {
	h := newHarness(t)
	ctx := h.fromIP("198.51.100.7")
	for i := 0; i < 4; i++ {
		h.rec.Record(ctx, audit.Event{Action: audit.ActionLoginFailed, UserEmail: "owner@fidget.test"})
	}
	assert.Empty(t, h.alerts(t, RuleBruteForceLogin))
}

func TestBruteForceAtThresholdRaisesOneHighAlert(t *testing.T) {
	h := newHarness(t)
	ctx := h.fromIP("198.51.100.7")
	for i := 0; i < 5; i++ {
		h.rec.Record(ctx, audit.Event{Action: audit.ActionLoginFailed, UserEmail: "owner@fidget.test"})
	}

	alerts := h.alerts(t, RuleBruteForceLogin)
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.Equal(t, audit.Action("security_alert_brute_force_login"), a.Action)
	assert.Equal(t, "high", a.Details["severity"])
	assert.Equal(t, 5, a.Details["failedAttempts"])
	assert.Equal(t, 5, a.Details["threshold"])
	assert.Equal(t, 60, a.Details["windowMinutes"])
	assert.Equal(t, "198.51.100.7", a.Details["ip"])
	assert.Equal(t, "198.51.100.7", a.IPAddress)
}

func TestBruteForceReAlertsOnEveryCrossing(t *testing.T) {
	h := newHarness(t)
	ctx := h.fromIP("198.51.100.7")
	for i := 0; i < 7; i++ {
		h.rec.Record(ctx, audit.Event{Action: audit.ActionLoginFailed})
	}
	assert.Len(t, h.alerts(t, RuleBruteForceLogin), 3)
}

func TestBruteForceIsScopedPerIP(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 4; i++ {
		h.rec.Record(h.fromIP("198.51.100.7"), audit.Event{Action: audit.ActionLoginFailed})
		h.rec.Record(h.fromIP("198.51.100.8"), audit.Event{Action: audit.ActionLoginFailed})
	}
	assert.Empty(t, h.alerts(t, RuleBruteForceLogin))
}

func TestBruteForceWindowExpires(t *testing.T) {
	h := newHarness(t)
	ctx := h.fromIP("198.51.100.7")
	for i := 0; i < 4; i++ {
		h.rec.Record(ctx, audit.Event{Action: audit.ActionLoginFailed})
	}
	h.clock = h.clock.Add(61 * time.Minute)
	h.rec.Record(ctx, audit.Event{Action: audit.ActionLoginFailed})
	assert.Empty(t, h.alerts(t, RuleBruteForceLogin))
}

func TestGiftCardEnumeration(t *testing.T) {
	h := newHarness(t)
	ctx := h.fromIP("192.0.2.44")
	for i := 0; i < 9; i++ {
		h.rec.Record(ctx, audit.Event{Action: audit.ActionGiftCardCheckFailed})
	}
	assert.Empty(t, h.alerts(t, RuleGiftCardEnumeration))

	h.rec.Record(ctx, audit.Event{Action: audit.ActionGiftCardCheckFailed})
	alerts := h.alerts(t, RuleGiftCardEnumeration)
	require.Len(t, alerts, 1)
	assert.Equal(t, "medium", alerts[0].Details["severity"])
	assert.Equal(t, 10, alerts[0].Details["failedChecks"])
}

func TestPriceManipulationIsGlobal(t *testing.T) {
	h := newHarness(t)
	ips := []string{"192.0.2.1", "192.0.2.2", "192.0.2.3"}
	for i, ip := range ips {
		h.clock = h.clock.Add(time.Duration(i) * 6 * time.Hour)
		h.rec.Record(h.fromIP(ip), audit.Event{Action: audit.ActionOrderAmountMismatch, ResourceType: "order"})
	}
	alerts := h.alerts(t, RulePriceManipulation)
	require.Len(t, alerts, 1)
	assert.Equal(t, "critical", alerts[0].Details["severity"])
	assert.Equal(t, 3, alerts[0].Details["mismatchedOrders"])
	assert.Equal(t, 1440, alerts[0].Details["windowMinutes"])
	_, hasIP := alerts[0].Details["ip"]
	assert.False(t, hasIP)
}

func TestUnrelatedActionsDoNotProbe(t *testing.T) {
	h := newHarness(t)
	ctx := h.fromIP("198.51.100.7")
	for i := 0; i < 10; i++ {
		h.rec.Record(ctx, audit.Event{Action: audit.ActionLoginSuccess})
	}
	assert.Equal(t, 10, h.store.Len())
}

type brokenCounter struct{}

func (brokenCounter) CountAudit(context.Context, audit.Filter) (int, error) {
	return 0, errors.New("db down")
}

func TestProbeSwallowsCountFailure(t *testing.T) {
	store := audit.NewMemoryStore()
	rec := audit.NewRecorder(store)
	det := New(brokenCounter{}, rec, DefaultRules())
	alerts := det.Probe(context.Background(), audit.Entry{Action: audit.ActionLoginFailed, IPAddress: "1.2.3.4"}, false)
	assert.Empty(t, alerts)
	assert.Zero(t, store.Len())
}

func TestDegradedProbeStillRuns(t *testing.T) {
	h := newHarness(t)
	ctx := h.fromIP("198.51.100.7")
	for i := 0; i < 5; i++ {
		h.rec.Record(ctx, audit.Event{Action: audit.ActionLoginFailed})
	}
	alerts := h.det.Probe(ctx, audit.Entry{Action: audit.ActionLoginFailed, IPAddress: "198.51.100.7"}, true)
	require.Len(t, alerts, 1)
	assert.Equal(t, true, alerts[0].Details["degraded"])
}

func TestRulesFromConfig(t *testing.T) {
	cfg := config.Default().Detectors
	cfg.BruteForce.Threshold = 3
	cfg.PriceMismatch.Window = 2 * time.Hour
	rules := RulesFromConfig(cfg)
	byName := map[string]Rule{}
	for _, r := range rules {
		byName[r.Name] = r
	}
	assert.Equal(t, 3, byName[RuleBruteForceLogin].Threshold)
	assert.Equal(t, time.Hour, byName[RuleBruteForceLogin].Window)
	assert.Equal(t, 2*time.Hour, byName[RulePriceManipulation].Window)
	assert.Equal(t, 10, byName[RuleGiftCardEnumeration].Threshold)
}
