package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shieldhq/sentinel/internal/clock"
	"github.com/shieldhq/sentinel/internal/config"
	"github.com/shieldhq/sentinel/internal/security/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const failedLoginDashboardWindow = 24 * time.Hour

type ServiceParam struct {
	fx.In

	Cfg      config.Config
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Attempts domain.AttemptStore
	Alerts   domain.AlertStore
	Profiles domain.ProfileStore
}

type Service struct {
	cfg      config.SecurityConfig
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	attempts domain.AttemptStore
	alerts   domain.AlertStore
	profiles domain.ProfileStore
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		cfg:      p.Cfg.Security,
		log:      p.Log.Named("security.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		attempts: p.Attempts,
		alerts:   p.Alerts,
		profiles: p.Profiles,
	}
}

// AnalyzeLoginAttempt runs the risk rules against history that predates the
// current attempt, then records the attempt and persists whatever alerts
// fired. Rules are independent: one attempt can raise zero up to three
// alerts in a single pass.
func (s *Service) AnalyzeLoginAttempt(ctx context.Context, req domain.AnalyzeLoginAttemptRequest) (domain.MonitorResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.MonitorResult{}, domain.ErrInvalidUser
	}

	now := s.clock.Now()
	at := req.Timestamp
	if at.IsZero() {
		at = now
	}

	fired, err := s.evaluateRules(ctx, userID, req, at)
	if err != nil {
		return domain.MonitorResult{}, err
	}

	attempt := &domain.LoginAttempt{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Success:   req.Success,
		IPAddress: strings.TrimSpace(req.IPAddress),
		UserAgent: strings.TrimSpace(req.UserAgent),
		Timestamp: at.UTC(),
		CreatedAt: now,
	}
	if err := s.attempts.Append(ctx, attempt); err != nil {
		// The attempt fact is the integrity-critical artifact; without it
		// the derived alerts would describe history that was never recorded.
		return domain.MonitorResult{}, err
	}

	result := domain.MonitorResult{Alerts: make([]domain.AlertSummary, 0, len(fired))}
	for _, alert := range fired {
		if err := s.alerts.Append(ctx, alert); err != nil {
			result.PartialFailure = true
			s.log.Error("alert write failed after attempt was recorded",
				zap.String("user_id", userID),
				zap.String("alert_type", string(alert.AlertType)),
				zap.Error(err),
			)
			continue
		}
		result.Alerts = append(result.Alerts, domain.AlertSummary{
			Type:     alert.AlertType,
			Severity: alert.Severity,
		})
	}
	result.AlertsGenerated = len(result.Alerts)

	return result, nil
}

func (s *Service) evaluateRules(ctx context.Context, userID string, req domain.AnalyzeLoginAttemptRequest, at time.Time) ([]*domain.SecurityAlert, error) {
	var fired []*domain.SecurityAlert

	if !req.Success {
		alert, err := s.burstFailureRule(ctx, userID, req, at)
		if err != nil {
			return nil, err
		}
		if alert != nil {
			fired = append(fired, alert)
		}
		return fired, nil
	}

	recent, err := s.recentSuccessful(ctx, userID, at)
	if err != nil {
		return nil, err
	}
	// A user with no successful history has nothing to compare against;
	// the first-ever login is never a novelty anomaly.
	if len(recent) == 0 {
		return fired, nil
	}

	if alert := s.newIPRule(userID, req, at, recent); alert != nil {
		fired = append(fired, alert)
	}
	if alert := s.newDeviceRule(userID, req, at, recent); alert != nil {
		fired = append(fired, alert)
	}

	return fired, nil
}

// burstFailureRule counts failures that predate the current attempt inside
// the trailing window.
func (s *Service) burstFailureRule(ctx context.Context, userID string, req domain.AnalyzeLoginAttemptRequest, at time.Time) (*domain.SecurityAlert, error) {
	window := time.Duration(s.cfg.FailedLoginWindowMinutes) * time.Minute
	since := at.Add(-window)

	priorFailures, err := s.attempts.CountFailedSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	if priorFailures < int64(s.cfg.FailedLoginThreshold) {
		return nil, nil
	}

	return s.newAlert(userID, req, at,
		domain.AlertMultipleFailedLogins,
		domain.SeverityHigh,
		fmt.Sprintf("%d failed login attempts within the last %s", priorFailures, window),
		map[string]any{
			"failed_attempts": priorFailures,
			"window_minutes":  s.cfg.FailedLoginWindowMinutes,
		},
	), nil
}

func (s *Service) newIPRule(userID string, req domain.AnalyzeLoginAttemptRequest, at time.Time, recent []*domain.LoginAttempt) *domain.SecurityAlert {
	ip := strings.TrimSpace(req.IPAddress)
	if ip == "" {
		return nil
	}
	for _, attempt := range recent {
		if attempt.IPAddress == ip {
			return nil
		}
	}

	return s.newAlert(userID, req, at,
		domain.AlertSuspiciousLogin,
		domain.SeverityMedium,
		"successful login from an IP address not seen in recent logins",
		map[string]any{
			"ip_address":  ip,
			"window_size": len(recent),
		},
	)
}

func (s *Service) newDeviceRule(userID string, req domain.AnalyzeLoginAttemptRequest, at time.Time, recent []*domain.LoginAttempt) *domain.SecurityAlert {
	agent := strings.TrimSpace(req.UserAgent)
	if agent == "" {
		return nil
	}
	for _, attempt := range recent {
		if attempt.UserAgent == agent {
			return nil
		}
	}

	return s.newAlert(userID, req, at,
		domain.AlertDeviceAnomaly,
		domain.SeverityMedium,
		"successful login from an unrecognized device",
		map[string]any{
			"user_agent":  agent,
			"window_size": len(recent),
		},
	)
}

func (s *Service) recentSuccessful(ctx context.Context, userID string, at time.Time) ([]*domain.LoginAttempt, error) {
	limit := s.cfg.NoveltyWindowSize
	if limit <= 0 {
		limit = 10
	}
	var since time.Time
	if s.cfg.NoveltyWindowDays > 0 {
		since = at.AddDate(0, 0, -s.cfg.NoveltyWindowDays)
	}
	return s.attempts.RecentSuccessful(ctx, userID, limit, since)
}

func (s *Service) newAlert(userID string, req domain.AnalyzeLoginAttemptRequest, at time.Time, alertType domain.AlertType, severity domain.Severity, description string, details map[string]any) *domain.SecurityAlert {
	return &domain.SecurityAlert{
		ID:          s.genID.Generate(),
		UserID:      userID,
		AlertType:   alertType,
		Severity:    severity,
		Description: description,
		Details:     datatypes.JSONMap(details),
		Status:      domain.AlertStatusActive,
		IPAddress:   strings.TrimSpace(req.IPAddress),
		UserAgent:   strings.TrimSpace(req.UserAgent),
		Timestamp:   at.UTC(),
		CreatedAt:   s.clock.Now(),
		UpdatedAt:   s.clock.Now(),
	}
}

func (s *Service) ListAlerts(ctx context.Context, req domain.ListAlertsRequest) (domain.ListAlertsResponse, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return domain.ListAlertsResponse{}, domain.ErrInvalidUser
	}
	if req.Status == "" {
		req.Status = domain.AlertStatusActive
	}
	if !req.Status.Valid() {
		return domain.ListAlertsResponse{}, domain.ErrInvalidStatus
	}
	if req.Severity != "" && !req.Severity.Valid() {
		return domain.ListAlertsResponse{}, domain.ErrInvalidSeverity
	}

	items, err := s.alerts.List(ctx, req)
	if err != nil {
		return domain.ListAlertsResponse{}, err
	}

	alerts := make([]domain.SecurityAlert, 0, len(items))
	counts := map[domain.Severity]int64{}
	for _, item := range items {
		if item == nil {
			continue
		}
		alerts = append(alerts, *item)
		counts[item.Severity]++
	}

	return domain.ListAlertsResponse{
		Alerts:         alerts,
		SeverityCounts: counts,
	}, nil
}

func (s *Service) TransitionAlert(ctx context.Context, alertID string, next domain.AlertStatus) (*domain.SecurityAlert, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(alertID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidAlertID
	}
	if !next.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	alert, err := s.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, domain.ErrAlertNotFound
	}
	if !alert.Status.CanTransitionTo(next) {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	updated, err := s.alerts.UpdateStatus(ctx, id, alert.Status, next, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		// Lost a race against another operator; the stored status moved on.
		return nil, domain.ErrInvalidTransition
	}

	alert.Status = next
	alert.UpdatedAt = now.UTC()
	return alert, nil
}

func (s *Service) DashboardFor(ctx context.Context, userID string) (domain.Dashboard, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Dashboard{}, domain.ErrInvalidUser
	}

	profile, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	if profile == nil {
		profile = &domain.SecurityProfile{
			UserID:           userID,
			PasswordStrength: domain.PasswordWeak,
		}
	}

	activeAlerts, err := s.alerts.CountActive(ctx, userID)
	if err != nil {
		return domain.Dashboard{}, err
	}

	now := s.clock.Now()
	recentFailed, err := s.attempts.CountFailedSince(ctx, userID, now.Add(-failedLoginDashboardWindow))
	if err != nil {
		return domain.Dashboard{}, err
	}

	metrics := domain.DashboardMetrics{
		SecurityScore: ComputeSecurityScore(ScoreInput{
			TwoFactorEnabled:   profile.TwoFactorEnabled,
			PasswordStrength:   profile.PasswordStrength,
			ActiveAlerts:       activeAlerts,
			ActiveSessions:     profile.ActiveSessions,
			RecentFailedLogins: recentFailed,
		}),
		TwoFactorEnabled:   profile.TwoFactorEnabled,
		PasswordStrength:   profile.PasswordStrength,
		ActiveAlerts:       activeAlerts,
		ActiveSessions:     profile.ActiveSessions,
		RecentFailedLogins: recentFailed,
	}

	return domain.Dashboard{
		Metrics:  metrics,
		Insights: buildInsights(metrics, s.cfg),
	}, nil
}

func buildInsights(m domain.DashboardMetrics, cfg config.SecurityConfig) []domain.Insight {
	insights := make([]domain.Insight, 0, 4)

	if !m.TwoFactorEnabled {
		insights = append(insights, domain.Insight{
			Severity: domain.SeverityMedium,
			Message:  "two-factor authentication is disabled",
		})
	}
	if m.PasswordStrength == domain.PasswordWeak {
		insights = append(insights, domain.Insight{
			Severity: domain.SeverityMedium,
			Message:  "account password is weak",
		})
	}
	if m.ActiveAlerts > 0 {
		insights = append(insights, domain.Insight{
			Severity: domain.SeverityHigh,
			Message:  fmt.Sprintf("%d unresolved security alerts", m.ActiveAlerts),
		})
	}
	if m.RecentFailedLogins >= int64(cfg.FailedLoginThreshold) {
		insights = append(insights, domain.Insight{
			Severity: domain.SeverityHigh,
			Message:  "elevated failed login activity in the last 24 hours",
		})
	} else if m.RecentFailedLogins > 0 {
		insights = append(insights, domain.Insight{
			Severity: domain.SeverityLow,
			Message:  "recent failed login attempts recorded",
		})
	}

	return insights
}
