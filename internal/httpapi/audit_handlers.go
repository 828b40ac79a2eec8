package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
)

const dateLayout = "2006-01-02"

type auditPagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type auditQueryResponse struct {
	Logs       []audit.Entry   `json:"logs"`
	Pagination auditPagination `json:"pagination"`
}

func (a *API) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	filter, page, limit, err := parseAuditQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.svc.Audit.Query(r.Context(), filter, page, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, auditQueryResponse{
		Logs: res.Entries,
		Pagination: auditPagination{
			Page:       res.Page,
			Limit:      res.Limit,
			Total:      res.Total,
			TotalPages: res.TotalPages(),
		},
	})
}

func parseAuditQuery(q url.Values) (audit.Filter, int, int, error) {
	f := audit.Filter{
		Action:       audit.Action(strings.TrimSpace(q.Get("action"))),
		UserID:       strings.TrimSpace(q.Get("user_id")),
		UserEmail:    strings.TrimSpace(q.Get("user_email")),
		ResourceType: strings.TrimSpace(q.Get("resource_type")),
		ResourceID:   strings.TrimSpace(q.Get("resource_id")),
		IPAddress:    strings.TrimSpace(q.Get("ip_address")),
	}
	var err error
	if f.From, err = parseBound(q.Get("from"), false); err != nil {
		return audit.Filter{}, 0, 0, fmt.Errorf("from: %w", err)
	}
	if f.To, err = parseBound(q.Get("to"), true); err != nil {
		return audit.Filter{}, 0, 0, fmt.Errorf("to: %w", err)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return audit.Filter{}, 0, 0, errors.New("to must not be before from")
	}

	page, err := parseOptionalInt(q.Get("page"), 1)
	if err != nil || page < 1 {
		return audit.Filter{}, 0, 0, errors.New("page must be a positive integer")
	}
	limit, err := parseOptionalInt(q.Get("limit"), audit.DefaultPageSize)
	if err != nil || limit < 1 {
		return audit.Filter{}, 0, 0, errors.New("limit must be a positive integer")
	}
	return f, page, audit.ClampLimit(limit), nil
}

// parseBound accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseBound(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339 timestamp or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return t, nil
}

func parseOptionalInt(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
