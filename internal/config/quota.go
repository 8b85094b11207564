package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// TierLimits holds the per-action monthly ceilings of a subscription tier.
type TierLimits struct {
	AIRequests        int `mapstructure:"aiRequests"`
	SearchQueries     int `mapstructure:"searchQueries"`
	ReportGenerations int `mapstructure:"reportGenerations"`
	DocumentAccess    int `mapstructure:"documentAccess"`
	VoiceCommands     int `mapstructure:"voiceCommands"`
}

// QuotaConfig maps subscription tiers to their limits.
type QuotaConfig struct {
	Free TierLimits `mapstructure:"free"`
	Pro  TierLimits `mapstructure:"pro"`
}

func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		Free: TierLimits{
			AIRequests:        50,
			SearchQueries:     100,
			ReportGenerations: 10,
			DocumentAccess:    200,
			VoiceCommands:     25,
		},
		Pro: TierLimits{
			AIRequests:        1000,
			SearchQueries:     5000,
			ReportGenerations: 200,
			DocumentAccess:    10000,
			VoiceCommands:     500,
		},
	}
}

// QuotaConfigHolder exposes the current quota limits and hot-reloads them
// from quota.yml when the file changes.
type QuotaConfigHolder struct {
	current atomic.Value // holds QuotaConfig
}

func NewQuotaConfigHolder() (*QuotaConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("quota")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/sentinel/config")
	v.AddConfigPath("/etc/sentinel")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultQuotaConfig()
		v.SetDefault("quota.free", defaults.Free)
		v.SetDefault("quota.pro", defaults.Pro)
	}

	var cfg QuotaConfig
	if err := v.UnmarshalKey("quota", &cfg); err != nil {
		return nil, err
	}
	applyQuotaDefaults(&cfg)
	if err := validateQuotaConfig(cfg); err != nil {
		return nil, err
	}

	holder := &QuotaConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated QuotaConfig
		if err := v.UnmarshalKey("quota", &updated); err != nil {
			log.Printf("[quota-config] reload failed: %v", err)
			return
		}
		applyQuotaDefaults(&updated)
		if err := validateQuotaConfig(updated); err != nil {
			log.Printf("[quota-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[quota-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// Current returns the active quota configuration.
func (h *QuotaConfigHolder) Current() QuotaConfig {
	if h == nil {
		return DefaultQuotaConfig()
	}
	cfg, ok := h.current.Load().(QuotaConfig)
	if !ok {
		return DefaultQuotaConfig()
	}
	return cfg
}

// NewStaticQuotaConfigHolder pins the holder to a fixed configuration.
// Intended for tests.
func NewStaticQuotaConfigHolder(cfg QuotaConfig) *QuotaConfigHolder {
	applyQuotaDefaults(&cfg)
	holder := &QuotaConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func applyQuotaDefaults(cfg *QuotaConfig) {
	defaults := DefaultQuotaConfig()
	fillTier(&cfg.Free, defaults.Free)
	fillTier(&cfg.Pro, defaults.Pro)
}

func fillTier(tier *TierLimits, defaults TierLimits) {
	if tier.AIRequests == 0 {
		tier.AIRequests = defaults.AIRequests
	}
	if tier.SearchQueries == 0 {
		tier.SearchQueries = defaults.SearchQueries
	}
	if tier.ReportGenerations == 0 {
		tier.ReportGenerations = defaults.ReportGenerations
	}
	if tier.DocumentAccess == 0 {
		tier.DocumentAccess = defaults.DocumentAccess
	}
	if tier.VoiceCommands == 0 {
		tier.VoiceCommands = defaults.VoiceCommands
	}
}

func validateQuotaConfig(cfg QuotaConfig) error {
	for _, tier := range []TierLimits{cfg.Free, cfg.Pro} {
		if tier.AIRequests < 0 || tier.SearchQueries < 0 || tier.ReportGenerations < 0 ||
			tier.DocumentAccess < 0 || tier.VoiceCommands < 0 {
			return errors.New("quota limits must not be negative")
		}
	}
	return nil
}
