package domain

import (
	"context"
	"errors"
	"time"
)

type AnalyzeLoginAttemptRequest struct {
	UserID    string    `json:"user_id"`
	Success   bool      `json:"success"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertSummary is the wire shape of a fired rule.
type AlertSummary struct {
	Type     AlertType `json:"type"`
	Severity Severity  `json:"severity"`
}

// MonitorResult reports the alerts generated for one analyzed attempt.
// PartialFailure is set when the attempt fact was recorded but one or more
// alert writes failed; the caller still gets a successful response.
type MonitorResult struct {
	AlertsGenerated int            `json:"alerts_generated"`
	Alerts          []AlertSummary `json:"alerts"`
	PartialFailure  bool           `json:"-"`
}

type ListAlertsRequest struct {
	UserID   string      `form:"user_id"`
	Status   AlertStatus `form:"status"`
	Severity Severity    `form:"severity"`
	Limit    int         `form:"limit"`
}

type ListAlertsResponse struct {
	Alerts         []SecurityAlert    `json:"alerts"`
	SeverityCounts map[Severity]int64 `json:"severity_counts"`
}

// DashboardMetrics is the SecurityScore and its inputs, computed on demand.
type DashboardMetrics struct {
	SecurityScore      int              `json:"security_score"`
	TwoFactorEnabled   bool             `json:"two_factor_enabled"`
	PasswordStrength   PasswordStrength `json:"password_strength"`
	ActiveAlerts       int64            `json:"active_alerts"`
	ActiveSessions     int              `json:"active_sessions"`
	RecentFailedLogins int64            `json:"recent_failed_logins"`
}

type Insight struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

type Dashboard struct {
	Metrics  DashboardMetrics `json:"metrics"`
	Insights []Insight        `json:"insights"`
}

type Service interface {
	// AnalyzeLoginAttempt records the attempt fact and evaluates every risk
	// rule against recent history. The attempt write is integrity-critical;
	// alert writes are best-effort annotations.
	AnalyzeLoginAttempt(ctx context.Context, req AnalyzeLoginAttemptRequest) (MonitorResult, error)
	ListAlerts(ctx context.Context, req ListAlertsRequest) (ListAlertsResponse, error)
	TransitionAlert(ctx context.Context, alertID string, next AlertStatus) (*SecurityAlert, error)
	DashboardFor(ctx context.Context, userID string) (Dashboard, error)
}

var (
	ErrInvalidUser       = errors.New("invalid_user")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidSeverity   = errors.New("invalid_severity")
	ErrInvalidAlertID    = errors.New("invalid_alert_id")
	ErrAlertNotFound     = errors.New("alert_not_found")
	ErrInvalidTransition = errors.New("invalid_alert_transition")
)
