package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shieldhq/sentinel/pkg/db/pagination"
)

// QuotaStatus describes the outcome of a quota check for a single action.
// A rejected action is a business outcome, not an error.
type QuotaStatus struct {
	Allowed      bool       `json:"allowed"`
	Action       ActionType `json:"action"`
	CurrentUsage int64      `json:"current_usage"`
	Limit        int64      `json:"limit"`
	Remaining    int64      `json:"remaining"`
	PercentUsed  float64    `json:"percent_used"`
}

type RecordActionRequest struct {
	UserID   string         `json:"user_id"`
	Action   ActionType     `json:"action"`
	Feature  string         `json:"feature"`
	Metadata map[string]any `json:"metadata"`
}

// RecordActionResult carries the post-decision aggregate. When the action was
// rejected the aggregate holds the pre-increment values; nothing was persisted.
type RecordActionResult struct {
	Accepted  bool
	Aggregate *UsageAggregate
	Quota     QuotaStatus
}

type ListEventsRequest struct {
	UserID    string     `form:"user_id"`
	Action    ActionType `form:"action"`
	Since     time.Time  `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until     time.Time  `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
	PageToken string     `form:"page_token"`
	PageSize  int        `form:"page_size"`
}

type ListEventsResponse struct {
	pagination.PageInfo
	Events []UsageEvent `json:"events"`
}

type Service interface {
	// RecordAction runs the rollover check, the tentative increment and the
	// quota evaluation, and persists the aggregate plus the raw event only
	// when the action is allowed.
	RecordAction(ctx context.Context, req RecordActionRequest) (RecordActionResult, error)
	// Snapshot returns the current-month view of the aggregate without
	// writing anything.
	Snapshot(ctx context.Context, userID string) (*UsageAggregate, error)
	ListEvents(ctx context.Context, req ListEventsRequest) (ListEventsResponse, error)
}

var (
	ErrInvalidUser   = errors.New("invalid_user")
	ErrInvalidAction = errors.New("invalid_action")

	// ErrVersionConflict is returned by the aggregate store when the stored
	// version no longer matches the one the caller read.
	ErrVersionConflict = errors.New("aggregate_version_conflict")

	// ErrConcurrentUpdate is returned once the bounded retry loop around
	// version conflicts is exhausted.
	ErrConcurrentUpdate = errors.New("concurrent_aggregate_update")
)
