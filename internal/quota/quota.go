// Package quota decides whether an incremented action fits inside the user's
// tier ceiling. Everything here is a pure function of (limits, aggregate,
// action); persistence decisions stay with the caller.
package quota

import (
	"github.com/shieldhq/sentinel/internal/config"
	meteringdomain "github.com/shieldhq/sentinel/internal/metering/domain"
	subscriptiondomain "github.com/shieldhq/sentinel/internal/subscription/domain"
)

// LimitsForTier selects the tier's limits from the active quota config.
func LimitsForTier(cfg config.QuotaConfig, tier subscriptiondomain.Tier) config.TierLimits {
	if tier.Normalize() == subscriptiondomain.TierPro {
		return cfg.Pro
	}
	return cfg.Free
}

// LimitFor returns the ceiling for a single action type.
func LimitFor(limits config.TierLimits, action meteringdomain.ActionType) int64 {
	switch action {
	case meteringdomain.ActionAIRequest:
		return int64(limits.AIRequests)
	case meteringdomain.ActionSearchQuery:
		return int64(limits.SearchQueries)
	case meteringdomain.ActionReportGeneration:
		return int64(limits.ReportGenerations)
	case meteringdomain.ActionDocumentAccess:
		return int64(limits.DocumentAccess)
	case meteringdomain.ActionVoiceCommand:
		return int64(limits.VoiceCommands)
	default:
		return 0
	}
}

// Evaluate checks the tentative post-increment aggregate against the limits.
// The comparison is strictly greater-than: the action that lands exactly on
// the limit is still allowed, the next one is rejected.
func Evaluate(limits config.TierLimits, aggregate *meteringdomain.UsageAggregate, action meteringdomain.ActionType) meteringdomain.QuotaStatus {
	limit := LimitFor(limits, action)
	usage := aggregate.Counter(action)

	status := meteringdomain.QuotaStatus{
		Action:       action,
		CurrentUsage: usage,
		Limit:        limit,
		Allowed:      usage <= limit,
	}

	if remaining := limit - usage; remaining > 0 {
		status.Remaining = remaining
	}
	if limit > 0 {
		status.PercentUsed = float64(usage) / float64(limit) * 100
	}

	return status
}
