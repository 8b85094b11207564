package service

import (
	"context"
	"time"

	"github.com/shieldhq/sentinel/internal/cache"
	"github.com/shieldhq/sentinel/internal/subscription/domain"
	"github.com/shieldhq/sentinel/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tierCacheTTL = 30 * time.Second

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	log   *zap.Logger
	repo  repository.Repository[domain.Subscription]
	tiers *cache.TTLCache[string, domain.Tier]
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:   p.Log.Named("subscription.service"),
		repo:  repository.ProvideStore[domain.Subscription](p.DB),
		tiers: cache.NewTTLCache[string, domain.Tier](),
	}
}

func (s *Service) ResolveTier(ctx context.Context, userID string) (domain.Tier, error) {
	if cached, ok := s.tiers.Get(userID); ok {
		return cached, nil
	}

	record, err := s.repo.FindOne(ctx, &domain.Subscription{UserID: userID})
	if err != nil {
		return "", err
	}

	tier := domain.TierFree
	if record != nil {
		tier = record.Tier.Normalize()
	}

	s.tiers.Set(userID, tier, tierCacheTTL)
	return tier, nil
}
