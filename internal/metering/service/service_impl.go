package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shieldhq/sentinel/internal/clock"
	"github.com/shieldhq/sentinel/internal/config"
	"github.com/shieldhq/sentinel/internal/metering/domain"
	"github.com/shieldhq/sentinel/internal/quota"
	subscriptiondomain "github.com/shieldhq/sentinel/internal/subscription/domain"
	"github.com/shieldhq/sentinel/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// saveAttempts bounds the optimistic-concurrency retry loop. Conflicts only
// happen when the same user issues simultaneous actions, so contention is low.
const saveAttempts = 3

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Events     domain.EventStore
	Aggregates domain.AggregateStore
	SubSvc     subscriptiondomain.Service
	Quotas     *config.QuotaConfigHolder
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	events     domain.EventStore
	aggregates domain.AggregateStore
	subSvc     subscriptiondomain.Service
	quotas     *config.QuotaConfigHolder
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:        p.Log.Named("metering.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		events:     p.Events,
		aggregates: p.Aggregates,
		subSvc:     p.SubSvc,
		quotas:     p.Quotas,
	}
}

func (s *Service) RecordAction(ctx context.Context, req domain.RecordActionRequest) (domain.RecordActionResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.RecordActionResult{}, domain.ErrInvalidUser
	}
	if !req.Action.Valid() {
		return domain.RecordActionResult{}, domain.ErrInvalidAction
	}

	tier, err := s.subSvc.ResolveTier(ctx, userID)
	if err != nil {
		return domain.RecordActionResult{}, err
	}
	limits := quota.LimitsForTier(s.quotas.Current(), tier)

	now := s.clock.Now()
	feature := strings.TrimSpace(req.Feature)

	for attempt := 0; attempt < saveAttempts; attempt++ {
		stored, err := s.aggregates.GetOrCreate(ctx, userID, now)
		if err != nil {
			return domain.RecordActionResult{}, err
		}

		working := stored.Clone()
		if working.RolloverDue(now) {
			working.ResetForPeriod(now)
		}

		before := working.Clone()
		working.Apply(req.Action, feature, now)

		status := quota.Evaluate(limits, working, req.Action)
		if !status.Allowed {
			// Nothing is persisted for a rejected action, so retrying a
			// rejection can never eat into the remaining quota.
			return domain.RecordActionResult{
				Accepted:  false,
				Aggregate: before,
				Quota:     status,
			}, nil
		}

		if err := s.aggregates.Save(ctx, working, stored.Version); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				continue
			}
			return domain.RecordActionResult{}, err
		}

		event := &domain.UsageEvent{
			ID:         s.genID.Generate(),
			UserID:     userID,
			Action:     req.Action,
			Feature:    feature,
			RecordedAt: now,
			CreatedAt:  now,
		}
		if req.Metadata != nil {
			event.Metadata = datatypes.JSONMap(req.Metadata)
		}
		if err := s.events.Append(ctx, event); err != nil {
			s.log.Error("usage event append failed after aggregate commit",
				zap.String("user_id", userID),
				zap.String("action", string(req.Action)),
				zap.Error(err),
			)
			return domain.RecordActionResult{}, err
		}

		return domain.RecordActionResult{
			Accepted:  true,
			Aggregate: working,
			Quota:     status,
		}, nil
	}

	return domain.RecordActionResult{}, domain.ErrConcurrentUpdate
}

// Snapshot renders the current-month view without persisting. An aggregate
// from a prior month is shown zeroed; the durable reset happens on the next
// write. The synthetic reset date is pinned to the month start so repeated
// reads return identical documents.
func (s *Service) Snapshot(ctx context.Context, userID string) (*domain.UsageAggregate, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	now := s.clock.Now()
	stored, err := s.aggregates.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return domain.NewUsageAggregate(userID, monthStart(now)), nil
	}

	view := stored.Clone()
	if view.RolloverDue(now) {
		view.ResetForPeriod(monthStart(now))
	}
	return view, nil
}

func (s *Service) ListEvents(ctx context.Context, req domain.ListEventsRequest) (domain.ListEventsResponse, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return domain.ListEventsResponse{}, domain.ErrInvalidUser
	}
	if req.Action != "" && !req.Action.Valid() {
		return domain.ListEventsResponse{}, domain.ErrInvalidAction
	}
	if req.PageSize <= 0 {
		req.PageSize = 50
	}

	items, err := s.events.List(ctx, req)
	if err != nil {
		return domain.ListEventsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, req.PageSize, func(event *domain.UsageEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        event.ID.String(),
			CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > req.PageSize {
		items = items[:req.PageSize]
	}

	events := make([]domain.UsageEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		events = append(events, *item)
	}

	resp := domain.ListEventsResponse{Events: events}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func monthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
