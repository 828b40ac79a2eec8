package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/catalog"
	"github.com/OOJ984/Fidget-Street-sub003/internal/config"
	"github.com/OOJ984/Fidget-Street-sub003/internal/giftcard"
	"github.com/OOJ984/Fidget-Street-sub003/internal/mfa"
	"github.com/OOJ984/Fidget-Street-sub003/internal/obs"
	"github.com/OOJ984/Fidget-Street-sub003/internal/orders"
)

// Pinger is implemented by storage handles that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks that storage answers.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// Services are the components behind the HTTP surface.
type Services struct {
	Tokens    *auth.Tokenizer
	Accounts  *auth.Service
	MFA       *mfa.Engine
	Audit     *audit.Recorder
	Catalog   *catalog.Service
	Orders    *orders.Service
	GiftCards *giftcard.Service
}

// Options tunes the transport.
type Options struct {
	Version        string
	AllowedOrigins []string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	LoginThrottle  config.Throttle
}

// API is the HTTP layer.
type API struct {
	svc    Services
	opts   Options
	ready  ReadyProbe
	router chi.Router
}

func New(svc Services, rp ReadyProbe, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{svc: svc, opts: opts, ready: rp}
	a.router = a.routes()
	return a
}

// Handler returns the root handler for the server.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(cors.Handler(corsOptions(a.opts.AllowedOrigins)))
	r.Use(LoggingJSON)
	r.Use(Recover)
	r.Use(obs.Instrument)
	r.Use(SecurityHeaders)
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.opts.MaxBodyBytes) })
	if a.opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(a.opts.RequestTimeout))
	}
	r.Use(withRequestMeta)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	throttle := a.throttle()

	r.Route("/admin", func(r chi.Router) {
		r.Use(a.requireConfigured)
		r.With(throttle).Post("/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAdmin)

			r.Get("/me", a.handleMe)
			r.Post("/logout", a.handleLogout)

			r.Get("/mfa", a.handleMFAStatus)
			r.Post("/mfa/setup", a.handleMFASetup)
			r.With(throttle).Post("/mfa/verify", a.handleMFAVerify)
			r.With(throttle).Post("/mfa/backup-codes", a.handleMFABackupCodes)
			r.With(throttle).Post("/mfa/disable", a.handleMFADisable)

			r.With(a.requirePermission(auth.PermViewAuditLogs)).Get("/audit", a.handleAuditQuery)

			r.With(a.requirePermission(auth.PermViewProducts)).Get("/products", a.handleListProducts)
			r.With(a.requirePermission(auth.PermCreateProducts)).Post("/products", a.handleCreateProduct)
			r.With(a.requirePermission(auth.PermViewProducts)).Get("/products/{id}", a.handleGetProduct)
			r.With(a.requirePermission(auth.PermEditProducts)).Put("/products/{id}", a.handleUpdateProduct)
			r.With(a.requirePermission(auth.PermDeleteProducts)).Delete("/products/{id}", a.handleDeleteProduct)

			r.With(a.requirePermission(auth.PermViewSettings)).Get("/settings", a.handleGetSettings)
			r.With(a.requirePermission(auth.PermEditSettings)).Put("/settings", a.handleUpdateSettings)
			r.With(a.requirePermission(auth.PermEditSettings)).Delete("/settings", a.handleResetSettings)

			r.With(a.requirePermission(auth.PermViewOrders)).Get("/orders", a.handleListOrders)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/gift-cards/check", a.handleGiftCardCheck)
		r.With(a.requireConfigured, a.optionalCustomer).Post("/orders", a.handlePlaceOrder)
	})

	return r
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Location", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           600,
	}
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "fidget-street-api",
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.Logger().WarnContext(r.Context(), "readiness check failed", "error", err.Error())
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// writeServiceError maps domain errors to status codes. Unexpected errors are
// logged and answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrMisconfigured):
		obs.Logger().ErrorContext(r.Context(), "server misconfigured", "error", err.Error())
		writeError(w, r, http.StatusInternalServerError, "server configuration error")
	default:
		obs.Logger().ErrorContext(r.Context(), "request failed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return errors.New("malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
