package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/obs"
)

type failingStore struct{ MemoryStore }

func (f *failingStore) AppendAudit(context.Context, Entry) (Entry, error) {
	return Entry{}, errors.New("connection refused")
}

type observed struct {
	entries   []Entry
	persisted []bool
}

func (o *observed) Observe(_ context.Context, e Entry, persisted bool) {
	o.entries = append(o.entries, e)
	o.persisted = append(o.persisted, persisted)
}

func TestRecordFillsActorAndRequestMeta(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rec.SetClock(func() time.Time { return at })

	ctx := auth.ContextWithPrincipal(context.Background(), auth.Principal{ID: "u-1", Email: "ops@fidget.test", Role: auth.RoleWebsiteAdmin})
	ctx = WithRequestMeta(ctx, RequestMeta{IPAddress: "203.0.113.9", UserAgent: "curl/8", RequestID: "req-7"})

	e, ok := rec.Record(ctx, Event{
		Action: ActionProductCreated, ResourceType: "product", ResourceID: "p-9",
		Details: map[string]any{"title": "Spinner"},
	})
	if !ok {
		t.Fatal("expected persisted entry")
	}
	if e.ID != 1 || !e.CreatedAt.Equal(at) {
		t.Fatalf("unexpected id/timestamp: %d %v", e.ID, e.CreatedAt)
	}
	if e.UserID != "u-1" || e.UserEmail != "ops@fidget.test" {
		t.Fatalf("actor not taken from context: %+v", e)
	}
	if e.IPAddress != "203.0.113.9" || e.UserAgent != "curl/8" || e.Details["request_id"] != "req-7" {
		t.Fatalf("request meta missing: %+v", e)
	}

	explicit, _ := rec.Record(ctx, Event{Action: ActionLoginFailed, UserEmail: "someone@fidget.test"})
	if explicit.UserID != "" || explicit.UserEmail != "someone@fidget.test" {
		t.Fatalf("explicit actor overridden: %+v", explicit)
	}
}

func TestAuditIsAppendOnlyAndMonotonic(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)
	ctx := context.Background()

	const n = 25
	var last int64
	for i := 0; i < n; i++ {
		e, ok := rec.Record(ctx, Event{Action: ActionSettingsUpdated, Details: map[string]any{"i": i}})
		if !ok || e.ID <= last {
			t.Fatalf("entry %d: id %d after %d (ok=%v)", i, e.ID, last, ok)
		}
		last = e.ID
	}
	if store.Len() != n {
		t.Fatalf("expected %d entries, got %d", n, store.Len())
	}

	page, err := rec.Query(ctx, Filter{}, 1, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	page.Entries[0].Details["i"] = "mutated"
	again, _ := rec.Query(ctx, Filter{}, 1, 10)
	if again.Entries[0].Details["i"] == "mutated" {
		t.Fatal("stored entry mutated through query result")
	}
}

func TestRecordFailureIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetLogger(obs.NewJSONLogger(&buf))
	defer restore()

	obsv := &observed{}
	rec := NewRecorder(&failingStore{})
	rec.SetObserver(obsv)

	e, ok := rec.Record(context.Background(), Event{Action: ActionLoginFailed, UserEmail: "x@fidget.test"})
	if ok {
		t.Fatal("expected persisted=false")
	}
	if e.Action != ActionLoginFailed {
		t.Fatalf("entry should still describe the event: %+v", e)
	}
	if len(obsv.persisted) != 1 || obsv.persisted[0] {
		t.Fatalf("observer should see one degraded entry: %+v", obsv.persisted)
	}

	line := strings.TrimSpace(buf.String())
	var logged map[string]any
	if err := json.Unmarshal([]byte(line), &logged); err != nil {
		t.Fatalf("log not JSON: %v (%q)", err, line)
	}
	if logged["msg"] != "audit write failed" || logged["level"] != "ERROR" || logged["action"] != "login_failed" {
		t.Fatalf("unexpected log entry %v", logged)
	}
}

func TestQueryFiltersAndOrdering(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := base
	rec.SetClock(func() time.Time { return clock })
	ctx := context.Background()

	add := func(action Action, email, resType, resID string, at time.Time) {
		clock = at
		rec.Record(ctx, Event{Action: action, UserEmail: email, UserID: "id-" + email, ResourceType: resType, ResourceID: resID})
	}
	add(ActionLoginSuccess, "Alice@Fidget.test", "", "", base)
	add(ActionProductCreated, "alice@fidget.test", "product", "p1", base.Add(time.Hour))
	add(ActionProductDeleted, "bob@fidget.test", "product", "p1", base.Add(2*time.Hour))
	add(ActionSettingsUpdated, "bob@fidget.test", "settings", "", base.Add(48*time.Hour))

	cases := []struct {
		name   string
		filter Filter
		want   []Action
	}{
		{"all newest first", Filter{}, []Action{ActionSettingsUpdated, ActionProductDeleted, ActionProductCreated, ActionLoginSuccess}},
		{"action", Filter{Action: ActionProductCreated}, []Action{ActionProductCreated}},
		{"email substring case-insensitive", Filter{UserEmail: "ALICE"}, []Action{ActionProductCreated, ActionLoginSuccess}},
		{"resource", Filter{ResourceType: "product", ResourceID: "p1"}, []Action{ActionProductDeleted, ActionProductCreated}},
		{"user id", Filter{UserID: "id-bob@fidget.test"}, []Action{ActionSettingsUpdated, ActionProductDeleted}},
		{"inclusive range", Filter{From: base.Add(time.Hour), To: base.Add(2 * time.Hour)}, []Action{ActionProductDeleted, ActionProductCreated}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := rec.Query(ctx, tc.filter, 1, 50)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if page.Total != len(tc.want) || len(page.Entries) != len(tc.want) {
				t.Fatalf("total=%d len=%d, want %d", page.Total, len(page.Entries), len(tc.want))
			}
			for i, a := range tc.want {
				if page.Entries[i].Action != a {
					t.Fatalf("entry %d = %s, want %s", i, page.Entries[i].Action, a)
				}
			}
		})
	}
}

func TestQueryPagination(t *testing.T) {
	rec := NewRecorder(NewMemoryStore())
	ctx := context.Background()
	for i := 0; i < 130; i++ {
		rec.Record(ctx, Event{Action: ActionSizeUpdated})
	}

	page, err := rec.Query(ctx, Filter{}, 1, 500)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if page.Limit != MaxPageSize || len(page.Entries) != MaxPageSize || page.Total != 130 || page.TotalPages() != 2 {
		t.Fatalf("clamp failed: limit=%d len=%d total=%d pages=%d", page.Limit, len(page.Entries), page.Total, page.TotalPages())
	}
	if page.Entries[0].ID != 130 {
		t.Fatalf("expected newest first, got id %d", page.Entries[0].ID)
	}

	second, _ := rec.Query(ctx, Filter{}, 2, 100)
	if len(second.Entries) != 30 || second.Entries[0].ID != 30 {
		t.Fatalf("second page wrong: len=%d first=%d", len(second.Entries), second.Entries[0].ID)
	}

	def, _ := rec.Query(ctx, Filter{}, 0, 0)
	if def.Page != 1 || def.Limit != DefaultPageSize {
		t.Fatalf("defaults not applied: page=%d limit=%d", def.Page, def.Limit)
	}

	empty, _ := rec.Query(ctx, Filter{Action: ActionLoginFailed}, 1, 10)
	if empty.Entries == nil || len(empty.Entries) != 0 || empty.TotalPages() != 0 {
		t.Fatalf("empty page should be non-nil and empty: %+v", empty)
	}
}

func TestAlertActions(t *testing.T) {
	a := AlertAction("brute_force_login")
	if a != "security_alert_brute_force_login" || !a.IsAlert() {
		t.Fatalf("unexpected alert action %q", a)
	}
	if ActionLoginFailed.IsAlert() {
		t.Fatal("login_failed is not an alert")
	}
}
