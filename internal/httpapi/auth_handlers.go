package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/mfa"
	"github.com/OOJ984/Fidget-Street-sub003/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfa_code"`
}

type userView struct {
	ID          string            `json:"id"`
	Email       string            `json:"email"`
	Role        auth.Role         `json:"role"`
	MFAEnabled  bool              `json:"mfa_enabled"`
	Permissions []auth.Permission `json:"permissions"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userView  `json:"user"`
}

func newUserView(p auth.Principal) userView {
	return userView{
		ID:          p.ID,
		Email:       p.Email,
		Role:        p.Role,
		MFAEnabled:  p.MFAEnabled,
		Permissions: auth.PermissionsFor(p.Role),
	}
}

// handleLogin checks the password, then the second factor for enrolled
// principals, and issues an admin token. Every rejection answers with the
// same message.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := auth.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}
	ctx := r.Context()

	p, err := a.svc.Accounts.Authenticate(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			a.loginFailed(ctx, email, "", "invalid_credentials")
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	method := "password"
	if p.MFAEnabled {
		code := strings.TrimSpace(req.MFACode)
		if code == "" {
			obs.LoginAttempt("mfa_required")
			payload := map[string]any{
				"error":        "two-factor code required",
				"mfa_required": true,
			}
			if rid := middleware.GetReqID(ctx); rid != "" {
				payload["request_id"] = rid
			}
			writeJSON(w, http.StatusUnauthorized, payload)
			return
		}
		used, err := a.svc.MFA.Challenge(ctx, p, code)
		if err != nil {
			if errors.Is(err, mfa.ErrInvalidCode) {
				a.loginFailed(ctx, email, p.ID, "invalid_mfa_code")
				writeError(w, r, http.StatusUnauthorized, "invalid credentials")
				return
			}
			writeServiceError(w, r, err)
			return
		}
		method = "password+" + string(used)
		if used == mfa.MethodBackup {
			a.svc.Audit.Record(ctx, audit.Event{
				Action:       audit.ActionMFABackupCodeUsed,
				UserID:       p.ID,
				UserEmail:    p.Email,
				ResourceType: "admin_user",
				ResourceID:   p.ID,
			})
		}
	}

	token, expiresAt, err := a.svc.Tokens.Issue(p, auth.TokenAdmin)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	a.svc.Audit.Record(ctx, audit.Event{
		Action:       audit.ActionLoginSuccess,
		UserID:       p.ID,
		UserEmail:    p.Email,
		ResourceType: "admin_user",
		ResourceID:   p.ID,
		Details: map[string]any{
			"method": method,
			"role":   string(p.Role),
		},
	})
	obs.LoginAttempt("success")

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      newUserView(p),
	})
}

func (a *API) loginFailed(ctx context.Context, email, userID, reason string) {
	obs.LoginAttempt("failed")
	a.svc.Audit.Record(ctx, audit.Event{
		Action:       audit.ActionLoginFailed,
		UserID:       userID,
		UserEmail:    email,
		ResourceType: "admin_user",
		ResourceID:   userID,
		Details:      map[string]any{"reason": reason},
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claimed, _ := auth.PrincipalFromContext(r.Context())
	p, err := a.svc.Accounts.Lookup(r.Context(), claimed.ID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			unauthorized(w, r)
			return
		}
		writeServiceError(w, r, err)
		return
	}
	if !p.Active {
		unauthorized(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserView(p)})
}

// handleLogout records the end of a session. Tokens are stateless and stay
// valid until they expire.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	a.svc.Audit.Record(r.Context(), audit.Event{
		Action:       audit.ActionLogout,
		ResourceType: "admin_user",
		ResourceID:   p.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}
