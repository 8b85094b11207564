// Package domain contains the persistence models of the usage metering path.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ActionType is the closed set of meterable user actions.
type ActionType string

const (
	ActionAIRequest        ActionType = "aiRequest"
	ActionSearchQuery      ActionType = "searchQuery"
	ActionReportGeneration ActionType = "reportGeneration"
	ActionDocumentAccess   ActionType = "documentAccess"
	ActionVoiceCommand     ActionType = "voiceCommand"
)

// ActionTypes lists every known action, in a stable order.
var ActionTypes = []ActionType{
	ActionAIRequest,
	ActionSearchQuery,
	ActionReportGeneration,
	ActionDocumentAccess,
	ActionVoiceCommand,
}

func (a ActionType) Valid() bool {
	switch a {
	case ActionAIRequest, ActionSearchQuery, ActionReportGeneration,
		ActionDocumentAccess, ActionVoiceCommand:
		return true
	default:
		return false
	}
}

// UsageEvent stores a single immutable unit of user activity. Events are
// append-only; nothing in the metering path mutates or deletes them.
type UsageEvent struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID     string            `gorm:"type:text;not null;index:idx_usage_events_user_time,priority:1" json:"user_id"`
	Action     ActionType        `gorm:"type:text;not null" json:"action"`
	Feature    string            `gorm:"type:text" json:"feature,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	RecordedAt time.Time         `gorm:"not null;index:idx_usage_events_user_time,priority:2" json:"recorded_at"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (UsageEvent) TableName() string { return "usage_events" }

// UsageAggregate is the one mutable document of the metering path: the
// current calendar-month totals for a single user. Writers must go through
// the version column; a plain overwrite would silently drop concurrent
// increments and allow quota bypass.
type UsageAggregate struct {
	UserID string `gorm:"primaryKey;type:text" json:"user_id"`

	AIRequests        int64 `gorm:"not null;default:0" json:"ai_requests"`
	SearchQueries     int64 `gorm:"not null;default:0" json:"search_queries"`
	ReportGenerations int64 `gorm:"not null;default:0" json:"report_generations"`
	DocumentAccess    int64 `gorm:"not null;default:0" json:"document_access"`
	VoiceCommands     int64 `gorm:"not null;default:0" json:"voice_commands"`
	TotalRequests     int64 `gorm:"not null;default:0" json:"total_requests"`

	LastResetDate    time.Time                          `gorm:"not null" json:"last_reset_date"`
	FeaturesUsed     datatypes.JSONSlice[string]        `json:"features_used"`
	FeatureBreakdown datatypes.JSONType[map[string]int64] `json:"feature_breakdown"`
	DailyUsage       datatypes.JSONType[map[string]int64] `json:"daily_usage"`
	ActiveDays       int                                `gorm:"not null;default:0" json:"active_days"`

	Version   int64     `gorm:"not null;default:1" json:"-"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (UsageAggregate) TableName() string { return "usage_aggregates" }

// NewUsageAggregate returns a zero-valued aggregate for the period starting now.
func NewUsageAggregate(userID string, now time.Time) *UsageAggregate {
	return &UsageAggregate{
		UserID:           userID,
		LastResetDate:    now.UTC(),
		FeaturesUsed:     datatypes.JSONSlice[string]{},
		FeatureBreakdown: datatypes.NewJSONType(map[string]int64{}),
		DailyUsage:       datatypes.NewJSONType(map[string]int64{}),
		Version:          1,
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}
}

// Counter returns the current value of the counter keyed by action.
func (a *UsageAggregate) Counter(action ActionType) int64 {
	switch action {
	case ActionAIRequest:
		return a.AIRequests
	case ActionSearchQuery:
		return a.SearchQueries
	case ActionReportGeneration:
		return a.ReportGenerations
	case ActionDocumentAccess:
		return a.DocumentAccess
	case ActionVoiceCommand:
		return a.VoiceCommands
	default:
		return 0
	}
}

// Apply increments the counter for action plus the shared total, and folds the
// optional feature label and the day bucket into the breakdown maps.
func (a *UsageAggregate) Apply(action ActionType, feature string, now time.Time) {
	switch action {
	case ActionAIRequest:
		a.AIRequests++
	case ActionSearchQuery:
		a.SearchQueries++
	case ActionReportGeneration:
		a.ReportGenerations++
	case ActionDocumentAccess:
		a.DocumentAccess++
	case ActionVoiceCommand:
		a.VoiceCommands++
	}
	a.TotalRequests++

	if feature != "" {
		breakdown := a.FeatureBreakdown.Data()
		if breakdown == nil {
			breakdown = map[string]int64{}
		}
		if _, seen := breakdown[feature]; !seen {
			a.FeaturesUsed = append(a.FeaturesUsed, feature)
		}
		breakdown[feature]++
		a.FeatureBreakdown = datatypes.NewJSONType(breakdown)
	}

	day := now.UTC().Format("2006-01-02")
	daily := a.DailyUsage.Data()
	if daily == nil {
		daily = map[string]int64{}
	}
	daily[day]++
	a.DailyUsage = datatypes.NewJSONType(daily)
	a.ActiveDays = len(daily)

	a.UpdatedAt = now.UTC()
}

// ResetForPeriod zeroes every counter for a new calendar month while keeping
// the stored document identity (and its version) intact.
func (a *UsageAggregate) ResetForPeriod(now time.Time) {
	a.AIRequests = 0
	a.SearchQueries = 0
	a.ReportGenerations = 0
	a.DocumentAccess = 0
	a.VoiceCommands = 0
	a.TotalRequests = 0
	a.LastResetDate = now.UTC()
	a.FeaturesUsed = datatypes.JSONSlice[string]{}
	a.FeatureBreakdown = datatypes.NewJSONType(map[string]int64{})
	a.DailyUsage = datatypes.NewJSONType(map[string]int64{})
	a.ActiveDays = 0
	a.UpdatedAt = now.UTC()
}

// RolloverDue reports whether the aggregate belongs to an earlier calendar
// month than now. Quotas are per calendar month, not rolling 30-day windows.
func (a *UsageAggregate) RolloverDue(now time.Time) bool {
	if a.LastResetDate.IsZero() {
		return true
	}
	reset := a.LastResetDate.UTC()
	now = now.UTC()
	return reset.Year() != now.Year() || reset.Month() != now.Month()
}

// Clone returns a deep copy safe to mutate without touching the original.
func (a *UsageAggregate) Clone() *UsageAggregate {
	dup := *a

	dup.FeaturesUsed = append(datatypes.JSONSlice[string]{}, a.FeaturesUsed...)

	breakdown := map[string]int64{}
	for k, v := range a.FeatureBreakdown.Data() {
		breakdown[k] = v
	}
	dup.FeatureBreakdown = datatypes.NewJSONType(breakdown)

	daily := map[string]int64{}
	for k, v := range a.DailyUsage.Data() {
		daily[k] = v
	}
	dup.DailyUsage = datatypes.NewJSONType(daily)

	return &dup
}
