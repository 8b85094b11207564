package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// AttemptStore is the append-only record of login attempts plus the lookback
// queries the risk rules need.
type AttemptStore interface {
	Append(ctx context.Context, attempt *LoginAttempt) error
	CountFailedSince(ctx context.Context, userID string, since time.Time) (int64, error)
	// RecentSuccessful returns up to limit successful attempts for the user,
	// newest first, optionally bounded to attempts at or after since.
	RecentSuccessful(ctx context.Context, userID string, limit int, since time.Time) ([]*LoginAttempt, error)
}

type AlertStore interface {
	Append(ctx context.Context, alert *SecurityAlert) error
	List(ctx context.Context, req ListAlertsRequest) ([]*SecurityAlert, error)
	GetByID(ctx context.Context, id snowflake.ID) (*SecurityAlert, error)
	CountActive(ctx context.Context, userID string) (int64, error)
	// UpdateStatus persists a transition that the domain already validated.
	UpdateStatus(ctx context.Context, id snowflake.ID, from, to AlertStatus, at time.Time) (bool, error)
}

// ProfileStore reads the per-user security posture inputs.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*SecurityProfile, error)
}
