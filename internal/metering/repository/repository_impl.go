package repository

import (
	"context"
	"time"

	"github.com/shieldhq/sentinel/internal/metering/domain"
	"github.com/shieldhq/sentinel/pkg/db"
	"github.com/shieldhq/sentinel/pkg/db/option"
	"github.com/shieldhq/sentinel/pkg/db/pagination"
	"github.com/shieldhq/sentinel/pkg/repository"
	"gorm.io/gorm"
)

type eventStore struct {
	store repository.Repository[domain.UsageEvent]
}

func ProvideEventStore(conn *gorm.DB) domain.EventStore {
	return &eventStore{store: repository.ProvideStore[domain.UsageEvent](conn)}
}

func (r *eventStore) Append(ctx context.Context, event *domain.UsageEvent) error {
	return r.store.Create(ctx, event)
}

func (r *eventStore) List(ctx context.Context, req domain.ListEventsRequest) ([]*domain.UsageEvent, error) {
	filter := &domain.UsageEvent{UserID: req.UserID}
	if req.Action != "" {
		filter.Action = req.Action
	}

	opts := []option.QueryOption{
		option.ApplyPagination(pagination.Pagination{
			PageToken: req.PageToken,
			PageSize:  req.PageSize,
		}),
	}
	var from, to any
	if !req.Since.IsZero() {
		from = req.Since.UTC()
	}
	if !req.Until.IsZero() {
		to = req.Until.UTC()
	}
	if from != nil || to != nil {
		opts = append(opts, option.WithTimeRange("recorded_at", from, to))
	}

	return r.store.Find(ctx, filter, opts...)
}

type aggregateStore struct {
	conn *gorm.DB
}

func ProvideAggregateStore(conn *gorm.DB) domain.AggregateStore {
	return &aggregateStore{conn: conn}
}

func (r *aggregateStore) Get(ctx context.Context, userID string) (*domain.UsageAggregate, error) {
	store := repository.ProvideStore[domain.UsageAggregate](r.conn)
	return store.FindOne(ctx, &domain.UsageAggregate{UserID: userID})
}

// GetOrCreate loads the user's aggregate, inserting a zero-valued document on
// first use. A concurrent first insert loses the race on the primary key and
// falls back to reading the winner's row.
func (r *aggregateStore) GetOrCreate(ctx context.Context, userID string, now time.Time) (*domain.UsageAggregate, error) {
	existing, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	fresh := domain.NewUsageAggregate(userID, now)
	if err := r.conn.WithContext(ctx).Create(fresh).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return r.Get(ctx, userID)
		}
		return nil, err
	}
	return fresh, nil
}

// Save writes the aggregate if and only if the stored version still matches
// expectedVersion. Zero rows affected means another writer got there first.
func (r *aggregateStore) Save(ctx context.Context, aggregate *domain.UsageAggregate, expectedVersion int64) error {
	updates := map[string]any{
		"ai_requests":        aggregate.AIRequests,
		"search_queries":     aggregate.SearchQueries,
		"report_generations": aggregate.ReportGenerations,
		"document_access":    aggregate.DocumentAccess,
		"voice_commands":     aggregate.VoiceCommands,
		"total_requests":     aggregate.TotalRequests,
		"last_reset_date":    aggregate.LastResetDate,
		"features_used":      aggregate.FeaturesUsed,
		"feature_breakdown":  aggregate.FeatureBreakdown,
		"daily_usage":        aggregate.DailyUsage,
		"active_days":        aggregate.ActiveDays,
		"updated_at":         aggregate.UpdatedAt,
		"version":            expectedVersion + 1,
	}

	result := r.conn.WithContext(ctx).
		Model(&domain.UsageAggregate{}).
		Where("user_id = ? AND version = ?", aggregate.UserID, expectedVersion).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrVersionConflict
	}

	aggregate.Version = expectedVersion + 1
	return nil
}
