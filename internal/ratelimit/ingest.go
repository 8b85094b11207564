package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/shieldhq/sentinel/internal/config"
)

const keyIngestUser = "ingest:user:%s"

// IngestLimiter throttles the write endpoints (usage tracking and login
// monitoring) per user. Nil or disabled limiters allow everything.
type IngestLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewIngestLimiter(cfg config.Config) *IngestLimiter {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     limitCfg.RedisAddr,
		Password: limitCfg.RedisPassword,
		DB:       limitCfg.RedisDB,
	})

	return &IngestLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.IngestRate,
		burst:   limitCfg.IngestBurst,
	}
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *IngestLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyIngestUser, strings.TrimSpace(userID)), l.rate, l.burst)
}
