package anomaly

import (
	"context"
	"time"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/config"
	"github.com/OOJ984/Fidget-Street-sub003/internal/obs"
)

// Severity grades an alert.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

const (
	RuleBruteForceLogin     = "brute_force_login"
	RuleGiftCardEnumeration = "gift_card_enumeration"
	RulePriceManipulation   = "price_manipulation"
)

// Rule counts recent entries of one action and alerts at a threshold.
type Rule struct {
	Name      string
	Trigger   audit.Action
	Threshold int
	Window    time.Duration
	Severity  Severity
	// PerIP scopes the count to the trigger's source address.
	PerIP bool
	// CountKey names the detail field that carries the observed count.
	CountKey string
}

// DefaultRules returns the stock rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: RuleBruteForceLogin, Trigger: audit.ActionLoginFailed,
			Threshold: 5, Window: time.Hour, Severity: SeverityHigh,
			PerIP: true, CountKey: "failedAttempts",
		},
		{
			Name: RuleGiftCardEnumeration, Trigger: audit.ActionGiftCardCheckFailed,
			Threshold: 10, Window: time.Hour, Severity: SeverityMedium,
			PerIP: true, CountKey: "failedChecks",
		},
		{
			Name: RulePriceManipulation, Trigger: audit.ActionOrderAmountMismatch,
			Threshold: 3, Window: 24 * time.Hour, Severity: SeverityCritical,
			CountKey: "mismatchedOrders",
		},
	}
}

// RulesFromConfig applies configured thresholds and windows to DefaultRules.
func RulesFromConfig(cfg config.Detectors) []Rule {
	rules := DefaultRules()
	for i := range rules {
		var r config.Rule
		switch rules[i].Name {
		case RuleBruteForceLogin:
			r = cfg.BruteForce
		case RuleGiftCardEnumeration:
			r = cfg.GiftCard
		case RulePriceManipulation:
			r = cfg.PriceMismatch
		}
		if r.Threshold > 0 {
			rules[i].Threshold = r.Threshold
		}
		if r.Window > 0 {
			rules[i].Window = r.Window
		}
	}
	return rules
}

// Counter is the read side of the audit store the detector needs.
type Counter interface {
	CountAudit(ctx context.Context, f audit.Filter) (int, error)
}

// Detector evaluates rules against the audit log and files alerts into it.
type Detector struct {
	counter Counter
	rec     *audit.Recorder
	rules   []Rule
	now     func() time.Time
}

// New builds a detector. Alerts are written through rec.
func New(counter Counter, rec *audit.Recorder, rules []Rule) *Detector {
	return &Detector{counter: counter, rec: rec, rules: rules, now: time.Now}
}

// SetClock replaces the wall clock used to open the count window.
func (d *Detector) SetClock(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// Observe implements audit.Observer.
func (d *Detector) Observe(ctx context.Context, e audit.Entry, persisted bool) {
	d.Probe(ctx, e, !persisted)
}

// Probe runs every rule triggered by e and returns the alerts it filed.
// degraded marks a trigger that never reached storage; the rules still run
// against what storage holds. Failures are logged and dropped.
func (d *Detector) Probe(ctx context.Context, e audit.Entry, degraded bool) []audit.Entry {
	if e.Action.IsAlert() {
		return nil
	}
	var alerts []audit.Entry
	for _, rule := range d.rules {
		if rule.Trigger != e.Action {
			continue
		}
		if alert, ok := d.evaluate(ctx, rule, e, degraded); ok {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

func (d *Detector) evaluate(ctx context.Context, rule Rule, e audit.Entry, degraded bool) (audit.Entry, bool) {
	log := obs.Logger().With("rule", rule.Name, "trigger_id", e.ID)
	if degraded {
		obs.AnomalyDegraded(rule.Name)
		log.WarnContext(ctx, "anomaly probe running on degraded audit write")
	}

	filter := audit.Filter{Action: rule.Trigger, From: d.now().Add(-rule.Window)}
	if rule.PerIP {
		if e.IPAddress == "" {
			log.WarnContext(ctx, "anomaly probe skipped: trigger has no source address")
			return audit.Entry{}, false
		}
		filter.IPAddress = e.IPAddress
	}

	count, err := d.counter.CountAudit(ctx, filter)
	if err != nil {
		log.ErrorContext(ctx, "anomaly probe count failed", "error", err.Error())
		return audit.Entry{}, false
	}
	if count < rule.Threshold {
		return audit.Entry{}, false
	}

	details := map[string]any{
		"severity":      string(rule.Severity),
		"threshold":     rule.Threshold,
		"windowMinutes": int(rule.Window / time.Minute),
		rule.CountKey:   count,
		"triggerAction": string(rule.Trigger),
	}
	if rule.PerIP {
		details["ip"] = e.IPAddress
	}
	if degraded {
		details["degraded"] = true
	}
	alert, persisted := d.rec.Record(ctx, audit.Event{
		Action:       audit.AlertAction(rule.Name),
		ResourceType: "security",
		ResourceID:   rule.Name,
		Details:      details,
		UserID:       e.UserID,
		UserEmail:    e.UserEmail,
	})
	obs.AlertRaised(rule.Name, string(rule.Severity))
	log.WarnContext(ctx, "security alert raised",
		"severity", string(rule.Severity),
		"count", count,
		"threshold", rule.Threshold,
		"ip", e.IPAddress,
		"persisted", persisted,
	)
	return alert, true
}
