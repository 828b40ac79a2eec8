package httpapi

import (
	"errors"
	"net/http"

	"github.com/OOJ984/Fidget-Street-sub003/internal/audit"
	"github.com/OOJ984/Fidget-Street-sub003/internal/auth"
	"github.com/OOJ984/Fidget-Street-sub003/internal/mfa"
)

type mfaCodeRequest struct {
	Code string `json:"code"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

func (a *API) handleMFAStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	st, err := a.svc.MFA.Status(r.Context(), p.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleMFASetup(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	enrollment, err := a.svc.MFA.Enroll(r.Context(), p.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.svc.Audit.Record(r.Context(), audit.Event{
		Action:       audit.ActionMFASetupStarted,
		ResourceType: "admin_user",
		ResourceID:   p.ID,
	})
	writeJSON(w, http.StatusOK, enrollment)
}

func (a *API) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	code, ok := readMFACode(w, r)
	if !ok {
		return
	}
	codes, err := a.svc.MFA.VerifyEnrollment(r.Context(), p.ID, code)
	if err != nil {
		writeMFAError(w, r, err)
		return
	}
	a.svc.Audit.Record(r.Context(), audit.Event{
		Action:       audit.ActionMFAEnabled,
		ResourceType: "admin_user",
		ResourceID:   p.ID,
		Details:      map[string]any{"backup_codes_issued": len(codes)},
	})
	writeJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
}

func (a *API) handleMFABackupCodes(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	code, ok := readMFACode(w, r)
	if !ok {
		return
	}
	codes, err := a.svc.MFA.RegenerateBackupCodes(r.Context(), p.ID, code)
	if err != nil {
		writeMFAError(w, r, err)
		return
	}
	a.svc.Audit.Record(r.Context(), audit.Event{
		Action:       audit.ActionMFABackupCodesRegenerated,
		ResourceType: "admin_user",
		ResourceID:   p.ID,
		Details:      map[string]any{"backup_codes_issued": len(codes)},
	})
	writeJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
}

func (a *API) handleMFADisable(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	code, ok := readMFACode(w, r)
	if !ok {
		return
	}
	method, err := a.svc.MFA.Disable(r.Context(), p.ID, code)
	if err != nil {
		writeMFAError(w, r, err)
		return
	}
	a.svc.Audit.Record(r.Context(), audit.Event{
		Action:       audit.ActionMFADisabled,
		ResourceType: "admin_user",
		ResourceID:   p.ID,
		Details:      map[string]any{"method": string(method)},
	})
	writeJSON(w, http.StatusOK, mfa.Status{})
}

func readMFACode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req mfaCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return "", false
	}
	if req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "code is required")
		return "", false
	}
	return req.Code, true
}

// writeMFAError answers a wrong code on an authenticated session with 400.
func writeMFAError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, mfa.ErrInvalidCode) {
		writeError(w, r, http.StatusBadRequest, "invalid verification code")
		return
	}
	writeServiceError(w, r, err)
}
