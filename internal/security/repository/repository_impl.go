package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shieldhq/sentinel/internal/security/domain"
	"github.com/shieldhq/sentinel/pkg/db/option"
	"github.com/shieldhq/sentinel/pkg/repository"
	"gorm.io/gorm"
)

type attemptStore struct {
	conn  *gorm.DB
	store repository.Repository[domain.LoginAttempt]
}

func ProvideAttemptStore(conn *gorm.DB) domain.AttemptStore {
	return &attemptStore{
		conn:  conn,
		store: repository.ProvideStore[domain.LoginAttempt](conn),
	}
}

func (r *attemptStore) Append(ctx context.Context, attempt *domain.LoginAttempt) error {
	return r.store.Create(ctx, attempt)
}

func (r *attemptStore) CountFailedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := r.conn.WithContext(ctx).
		Model(&domain.LoginAttempt{}).
		Where("user_id = ? AND success = ? AND timestamp >= ?", userID, false, since.UTC()).
		Count(&count).Error
	return count, err
}

func (r *attemptStore) RecentSuccessful(ctx context.Context, userID string, limit int, since time.Time) ([]*domain.LoginAttempt, error) {
	opts := []option.QueryOption{
		option.WithOrder("timestamp desc"),
		option.WithLimit(limit),
	}
	if !since.IsZero() {
		opts = append(opts, option.WithTimeRange("timestamp", since.UTC(), nil))
	}
	return r.store.Find(ctx, &domain.LoginAttempt{UserID: userID, Success: true}, opts...)
}

type alertStore struct {
	conn  *gorm.DB
	store repository.Repository[domain.SecurityAlert]
}

func ProvideAlertStore(conn *gorm.DB) domain.AlertStore {
	return &alertStore{
		conn:  conn,
		store: repository.ProvideStore[domain.SecurityAlert](conn),
	}
}

func (r *alertStore) Append(ctx context.Context, alert *domain.SecurityAlert) error {
	return r.store.Create(ctx, alert)
}

func (r *alertStore) List(ctx context.Context, req domain.ListAlertsRequest) ([]*domain.SecurityAlert, error) {
	filter := &domain.SecurityAlert{UserID: req.UserID}
	if req.Status != "" {
		filter.Status = req.Status
	}
	if req.Severity != "" {
		filter.Severity = req.Severity
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}

	return r.store.Find(ctx, filter,
		option.WithOrder("timestamp desc"),
		option.WithLimit(limit),
	)
}

func (r *alertStore) GetByID(ctx context.Context, id snowflake.ID) (*domain.SecurityAlert, error) {
	return r.store.FindOne(ctx, &domain.SecurityAlert{ID: id})
}

func (r *alertStore) CountActive(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.conn.WithContext(ctx).
		Model(&domain.SecurityAlert{}).
		Where("user_id = ? AND status = ?", userID, domain.AlertStatusActive).
		Count(&count).Error
	return count, err
}

// UpdateStatus flips the status only when the stored row still carries the
// expected one, so two racing operators cannot replay a transition.
func (r *alertStore) UpdateStatus(ctx context.Context, id snowflake.ID, from, to domain.AlertStatus, at time.Time) (bool, error) {
	result := r.conn.WithContext(ctx).
		Model(&domain.SecurityAlert{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": at.UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

type profileStore struct {
	store repository.Repository[domain.SecurityProfile]
}

func ProvideProfileStore(conn *gorm.DB) domain.ProfileStore {
	return &profileStore{store: repository.ProvideStore[domain.SecurityProfile](conn)}
}

func (r *profileStore) Get(ctx context.Context, userID string) (*domain.SecurityProfile, error) {
	return r.store.FindOne(ctx, &domain.SecurityProfile{UserID: userID})
}
