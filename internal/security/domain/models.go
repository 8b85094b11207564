// Package domain contains the persistence models of the login-risk path.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// LoginAttempt is an immutable fact recorded for every analyzed attempt,
// successful or not.
type LoginAttempt struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    string       `gorm:"type:text;not null;index:idx_login_attempts_user_time,priority:1" json:"user_id"`
	Success   bool         `gorm:"not null" json:"success"`
	IPAddress string       `gorm:"type:text" json:"ip_address"`
	UserAgent string       `gorm:"type:text" json:"user_agent"`
	Timestamp time.Time    `gorm:"not null;index:idx_login_attempts_user_time,priority:2" json:"timestamp"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (LoginAttempt) TableName() string { return "login_attempts" }

type AlertType string

const (
	AlertSuspiciousLogin      AlertType = "suspicious_login"
	AlertMultipleFailedLogins AlertType = "multiple_failed_logins"
	AlertUnusualActivity      AlertType = "unusual_activity"
	AlertGeoAnomaly           AlertType = "geo_anomaly"
	AlertDeviceAnomaly        AlertType = "device_anomaly"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

type AlertStatus string

const (
	AlertStatusActive       AlertStatus = "active"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusActive, AlertStatusAcknowledged, AlertStatusResolved:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the one-way lifecycle
// active → acknowledged → resolved. No transition re-opens an alert.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch s {
	case AlertStatusActive:
		return next == AlertStatusAcknowledged || next == AlertStatusResolved
	case AlertStatusAcknowledged:
		return next == AlertStatusResolved
	default:
		return false
	}
}

// SecurityAlert is produced by the risk rule engine. The engine only creates
// alerts; status transitions come from explicit operator actions.
type SecurityAlert struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID      string            `gorm:"type:text;not null;index" json:"user_id"`
	AlertType   AlertType         `gorm:"type:text;not null" json:"alert_type"`
	Severity    Severity          `gorm:"type:text;not null" json:"severity"`
	Description string            `gorm:"type:text" json:"description"`
	Details     datatypes.JSONMap `gorm:"type:jsonb" json:"details,omitempty"`
	Status      AlertStatus       `gorm:"type:text;not null;default:active" json:"status"`
	IPAddress   string            `gorm:"type:text" json:"ip_address"`
	UserAgent   string            `gorm:"type:text" json:"user_agent"`
	Timestamp   time.Time         `gorm:"not null" json:"timestamp"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (SecurityAlert) TableName() string { return "security_alerts" }

type PasswordStrength string

const (
	PasswordWeak   PasswordStrength = "weak"
	PasswordMedium PasswordStrength = "medium"
	PasswordStrong PasswordStrength = "strong"
)

// SecurityProfile carries the per-user posture inputs of the composite score.
// It is maintained by account flows outside this engine; the engine only
// reads it.
type SecurityProfile struct {
	UserID           string           `gorm:"primaryKey;type:text" json:"user_id"`
	TwoFactorEnabled bool             `gorm:"not null;default:false" json:"two_factor_enabled"`
	PasswordStrength PasswordStrength `gorm:"type:text;not null;default:weak" json:"password_strength"`
	ActiveSessions   int              `gorm:"not null;default:0" json:"active_sessions"`
	UpdatedAt        time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (SecurityProfile) TableName() string { return "security_profiles" }
