package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/giftcard"
	"github.com/OOJ984/Fidget-Street-sub003/internal/orders"
)

type giftCardCheckRequest struct {
	Code string `json:"code"`
}

func (a *API) handleGiftCardCheck(w http.ResponseWriter, r *http.Request) {
	var req giftCardCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return
	}
	card, err := a.svc.GiftCards.Check(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, giftcard.ErrNotFound) {
			a.svc.Audit.Record(r.Context(), audit.Event{
				Action:       audit.ActionGiftCardCheckFailed,
				ResourceType: "gift_card",
				Details:      map[string]any{"code_hint": maskCode(req.Code)},
			})
			writeError(w, r, http.StatusNotFound, "gift card not found")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (a *API) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var in orders.PlaceInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if c, ok := customerFromContext(r.Context()); ok {
		in.CustomerID = c.Subject
		if in.CustomerEmail == "" {
			in.CustomerEmail = c.Email
		}
	}
	o, err := a.svc.Orders.Place(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	actor := audit.Event{UserID: o.CustomerID, UserEmail: o.CustomerEmail, ResourceType: "order", ResourceID: o.ID}
	created := actor
	created.Action = audit.ActionOrderCreated
	created.Details = map[string]any{
		"items":          len(o.Items),
		"paid_pence":     o.PaidPence,
		"expected_pence": o.ExpectedPence,
	}
	a.svc.Audit.Record(r.Context(), created)

	if o.AmountMismatch {
		mismatch := actor
		mismatch.Action = audit.ActionOrderAmountMismatch
		mismatch.Details = map[string]any{
			"paid_pence":       o.PaidPence,
			"expected_pence":   o.ExpectedPence,
			"difference_pence": o.PaidPence - o.ExpectedPence,
		}
		a.svc.Audit.Record(r.Context(), mismatch)
	}

	writeJSON(w, http.StatusCreated, o)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := parseOptionalInt(r.URL.Query().Get("limit"), 50)
	if err != nil || limit < 1 {
		writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	offset, err := parseOptionalInt(r.URL.Query().Get("offset"), 0)
	if err != nil || offset < 0 {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}
	list, err := a.svc.Orders.List(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

// maskCode keeps the last four characters of a submitted code.
func maskCode(code string) string {
	code = giftcard.NormalizeCode(code)
	if len(code) <= 4 {
		return strings.Repeat("*", len(code))
	}
	return strings.Repeat("*", len(code)-4) + code[len(code)-4:]
}
