package httpapi

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/catalog"
)

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.svc.Catalog.Products(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Catalog.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.svc.Catalog.CreateProduct(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.svc.Audit.Record(r.Context(), audit.Event{
		Action:       audit.ActionProductCreated,
		ResourceType: "product",
		ResourceID:   p.ID,
		Details: map[string]any{
			"title":       p.Title,
			"price_pence": p.PricePence,
			"stock":       p.Stock,
		},
	})
	w.Header().Set("Location", "/admin/products/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	before, after, err := a.svc.Catalog.UpdateProduct(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.svc.Audit.Record(r.Context(), audit.Event{
		Action:       audit.ActionProductUpdated,
		ResourceType: "product",
		ResourceID:   after.ID,
		Details: map[string]any{
			"title":   after.Title,
			"changes": productChanges(before, after),
		},
	})
	writeJSON(w, http.StatusOK, after)
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Catalog.DeleteProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.svc.Audit.Record(r.Context(), audit.Event{
		Action:       audit.ActionProductDeleted,
		ResourceType: "product",
		ResourceID:   p.ID,
		Details:      map[string]any{"title": p.Title},
	})
	writeJSON(w, http.StatusOK, map[string]any{"id": p.ID, "deleted": true})
}

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.svc.Catalog.Settings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch catalog.Settings
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	settings, changed, err := a.svc.Catalog.UpdateSettings(r.Context(), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sort.Strings(changed)
	a.svc.Audit.Record(r.Context(), audit.Event{
		Action:       audit.ActionSettingsUpdated,
		ResourceType: "settings",
		ResourceID:   "website",
		Details:      map[string]any{"keys": changed},
	})
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

func (a *API) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.svc.Catalog.ResetSettings(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.svc.Audit.Record(r.Context(), audit.Event{
		Action:       audit.ActionSettingsReset,
		ResourceType: "settings",
		ResourceID:   "website",
	})
	writeJSON(w, http.StatusOK, map[string]any{"settings": settings})
}

// productChanges lists the fields an update changed as from/to pairs.
func productChanges(before, after catalog.Product) map[string]any {
	changes := map[string]any{}
	diff := func(field string, from, to any) {
		if from != to {
			changes[field] = map[string]any{"from": from, "to": to}
		}
	}
	diff("title", before.Title, after.Title)
	diff("description", before.Description, after.Description)
	diff("price_pence", before.PricePence, after.PricePence)
	diff("stock", before.Stock, after.Stock)
	diff("active", before.Active, after.Active)
	return changes
}
