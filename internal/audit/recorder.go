package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/obs"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Event is what a handler asks to record. Actor fields left empty are taken
// from the authenticated principal in the context.
type Event struct {
	Action       Action
	ResourceType string
	ResourceID   string
	Details      map[string]any
	UserID       string
	UserEmail    string
}

// Observer sees every entry after the write was attempted. persisted is false
// when the store refused it.
type Observer interface {
	Observe(ctx context.Context, e Entry, persisted bool)
}

// Recorder writes audit entries and serves queries.
type Recorder struct {
	store    Store
	now      func() time.Time
	observer Observer
}

// NewRecorder wraps a store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// SetClock replaces the wall clock used for entry timestamps.
func (r *Recorder) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// SetObserver registers the component probed after each write.
func (r *Recorder) SetObserver(o Observer) {
	r.observer = o
}

// Record appends one entry and waits for the store. A failed write is logged
// and counted, never returned: the business effect it describes has already
// happened.
func (r *Recorder) Record(ctx context.Context, ev Event) (Entry, bool) {
	e := r.entryFor(ctx, ev)
	stored, err := r.store.AppendAudit(ctx, e)
	persisted := err == nil
	if persisted {
		e = stored
	} else {
		obs.AuditWriteFailed()
		obs.Logger().ErrorContext(ctx, "audit write failed",
			"action", string(e.Action),
			"resource_type", e.ResourceType,
			"resource_id", e.ResourceID,
			"user_id", e.UserID,
			"ip", e.IPAddress,
			"error", err.Error(),
		)
	}
	if r.observer != nil {
		r.observer.Observe(ctx, e, persisted)
	}
	return e, persisted
}

func (r *Recorder) entryFor(ctx context.Context, ev Event) Entry {
	e := Entry{
		CreatedAt:    r.now().UTC(),
		UserID:       ev.UserID,
		UserEmail:    ev.UserEmail,
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		Details:      make(map[string]any, len(ev.Details)),
	}
	for k, v := range ev.Details {
		e.Details[k] = v
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok && e.UserID == "" && e.UserEmail == "" {
		e.UserID = p.ID
		e.UserEmail = p.Email
	}
	if meta, ok := MetaFromContext(ctx); ok {
		e.IPAddress = meta.IPAddress
		e.UserAgent = meta.UserAgent
		if meta.RequestID != "" {
			e.Details["request_id"] = meta.RequestID
		}
	}
	return e
}

// Page is one page of query results.
type Page struct {
	Entries []Entry
	Total   int
	Page    int
	Limit   int
}

// TotalPages is the number of pages at the current limit.
func (p Page) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// ClampLimit applies the default and ceiling to a requested page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// Query returns a newest-first page of entries matching f.
func (r *Recorder) Query(ctx context.Context, f Filter, page, limit int) (Page, error) {
	limit = ClampLimit(limit)
	if page < 1 {
		page = 1
	}
	total, err := r.store.CountAudit(ctx, f)
	if err != nil {
		return Page{}, fmt.Errorf("count audit entries: %w", err)
	}
	entries, err := r.store.QueryAudit(ctx, f, limit, (page-1)*limit)
	if err != nil {
		return Page{}, fmt.Errorf("query audit entries: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Page{Entries: entries, Total: total, Page: page, Limit: limit}, nil
}

// Count returns the number of entries matching f.
func (r *Recorder) Count(ctx context.Context, f Filter) (int, error) {
	return r.store.CountAudit(ctx, f)
}
