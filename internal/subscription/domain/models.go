// Package domain models the read-only subscription record consumed by the
// quota evaluator. Billing and entitlement changes are owned elsewhere.
package domain

import (
	"context"
	"time"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

// Normalize maps unknown or empty tier values to free.
func (t Tier) Normalize() Tier {
	switch t {
	case TierFree, TierPro:
		return t
	default:
		return TierFree
	}
}

type Subscription struct {
	UserID    string    `gorm:"primaryKey;type:text" json:"user_id"`
	Tier      Tier      `gorm:"type:text;not null;default:free" json:"tier"`
	Status    string    `gorm:"type:text;not null;default:active" json:"status"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Subscription) TableName() string { return "subscriptions" }

type Service interface {
	// ResolveTier returns the user's tier, defaulting to free when no
	// subscription record exists.
	ResolveTier(ctx context.Context, userID string) (Tier, error)
}
