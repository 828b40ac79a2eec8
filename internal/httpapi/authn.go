package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/obs"
)

const authHeader = "Authorization"

type customerContextKey struct{}

// requireConfigured refuses every request while the signing secret is absent.
func (a *API) requireConfigured(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.svc.Tokens == nil || !a.svc.Tokens.Configured() {
			obs.Logger().ErrorContext(r.Context(), "token signing secret is not configured",
				"method", r.Method, "path", r.URL.Path)
			writeError(w, r, http.StatusInternalServerError, "server configuration error")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin verifies an admin-typed bearer token and stores its principal
// in the context. Missing or malformed tokens are not audited; a valid token
// of the other type is.
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.svc.Tokens.Verify(r.Header.Get(authHeader), auth.TokenAdmin)
		if err != nil {
			a.auditTypeMismatch(r, claims, err, auth.TokenAdmin)
			unauthorized(w, r)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), claims.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission denies with 403 and an access_denied entry unless the
// principal's role grants perm.
func (a *API) requirePermission(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, r)
				return
			}
			if !p.Can(perm) {
				a.svc.Audit.Record(r.Context(), audit.Event{
					Action:       audit.ActionAccessDenied,
					ResourceType: "endpoint",
					ResourceID:   r.URL.Path,
					Details: map[string]any{
						"required": string(perm),
						"role":     string(p.Role),
						"method":   r.Method,
						"path":     r.URL.Path,
					},
				})
				writeError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// optionalCustomer accepts requests without a token. A token that is present
// must be a valid customer token.
func (a *API) optionalCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(authHeader)
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.svc.Tokens.Verify(header, auth.TokenCustomer)
		if err != nil {
			a.auditTypeMismatch(r, claims, err, auth.TokenCustomer)
			unauthorized(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), customerContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func customerFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(customerContextKey{}).(*auth.Claims)
	return c, ok && c != nil
}

func (a *API) auditTypeMismatch(r *http.Request, claims *auth.Claims, err error, want auth.TokenType) {
	if claims == nil || !errors.Is(err, auth.ErrTokenTypeMismatch) {
		return
	}
	a.svc.Audit.Record(r.Context(), audit.Event{
		Action:    audit.ActionTokenTypeMismatch,
		UserEmail: claims.Email,
		Details: map[string]any{
			"expected":  string(want),
			"presented": string(claims.Type),
			"subject":   claims.Subject,
			"method":    r.Method,
			"path":      r.URL.Path,
		},
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="fidget-street"`)
	writeError(w, r, http.StatusUnauthorized, "unauthorized")
}
