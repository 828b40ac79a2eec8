package audit

import (
	"context"
	"strings"
	"time"
)

// Action names what an audit entry records.
type Action string

const (
	ActionLoginSuccess      Action = "login_success"
	ActionLoginFailed       Action = "login_failed"
	ActionLogout            Action = "logout"
	ActionAccessDenied      Action = "access_denied"
	ActionTokenTypeMismatch Action = "token_type_mismatch"

	ActionMFASetupStarted           Action = "mfa_setup_started"
	ActionMFAEnabled                Action = "mfa_enabled"
	ActionMFADisabled               Action = "mfa_disabled"
	ActionMFABackupCodeUsed         Action = "mfa_backup_code_used"
	ActionMFABackupCodesRegenerated Action = "mfa_backup_codes_regenerated"

	ActionProductCreated  Action = "PRODUCT_CREATED"
	ActionProductUpdated  Action = "PRODUCT_UPDATED"
	ActionProductDeleted  Action = "PRODUCT_DELETED"
	ActionSettingsUpdated Action = "SETTINGS_UPDATED"
	ActionSettingsReset   Action = "SETTINGS_RESET"
	ActionSizeCreated     Action = "size_created"
	ActionSizeUpdated     Action = "size_updated"
	ActionSizeDeleted     Action = "size_deleted"

	ActionGiftCardCheckFailed Action = "gift_card_check_failed"
	ActionOrderCreated        Action = "order_created"
	ActionOrderAmountMismatch Action = "order_amount_mismatch"

	alertPrefix = "security_alert_"
)

// AlertAction is the action under which an anomaly rule files its alerts.
func AlertAction(rule string) Action {
	return Action(alertPrefix + rule)
}

// IsAlert reports whether a is a security alert.
func (a Action) IsAlert() bool {
	return strings.HasPrefix(string(a), alertPrefix)
}

// Entry is one immutable audit record.
type Entry struct {
	ID           int64          `json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UserID       string         `json:"user_id,omitempty"`
	UserEmail    string         `json:"user_email,omitempty"`
	Action       Action         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details"`
	IPAddress    string         `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
}

// Filter narrows a query. Zero fields do not filter. UserEmail matches as a
// case-insensitive substring; From and To are inclusive.
type Filter struct {
	Action       Action
	UserID       string
	UserEmail    string
	ResourceType string
	ResourceID   string
	IPAddress    string
	From         time.Time
	To           time.Time
}

// Matches applies the filter to one entry.
func (f Filter) Matches(e Entry) bool {
	switch {
	case f.Action != "" && e.Action != f.Action:
		return false
	case f.UserID != "" && e.UserID != f.UserID:
		return false
	case f.UserEmail != "" && !strings.Contains(strings.ToLower(e.UserEmail), strings.ToLower(f.UserEmail)):
		return false
	case f.ResourceType != "" && e.ResourceType != f.ResourceType:
		return false
	case f.ResourceID != "" && e.ResourceID != f.ResourceID:
		return false
	case f.IPAddress != "" && e.IPAddress != f.IPAddress:
		return false
	case !f.From.IsZero() && e.CreatedAt.Before(f.From):
		return false
	case !f.To.IsZero() && e.CreatedAt.After(f.To):
		return false
	}
	return true
}

// Store persists entries. It offers no way to change or remove one.
type Store interface {
	// AppendAudit stores e and returns it with its sequence id assigned.
	AppendAudit(ctx context.Context, e Entry) (Entry, error)
	// QueryAudit returns matching entries newest first.
	QueryAudit(ctx context.Context, f Filter, limit, offset int) ([]Entry, error)
	CountAudit(ctx context.Context, f Filter) (int, error)
}
