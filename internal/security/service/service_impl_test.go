package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shieldhq/sentinel/internal/clock"
	"github.com/shieldhq/sentinel/internal/config"
	"github.com/shieldhq/sentinel/internal/security/domain"
	securityrepository "github.com/shieldhq/sentinel/internal/security/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type securityHarness struct {
	svc      domain.Service
	clk      *clock.FakeClock
	db       *gorm.DB
	attempts domain.AttemptStore
	alerts   domain.AlertStore
}

func defaultSecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		FailedLoginThreshold:     5,
		FailedLoginWindowMinutes: 60,
		NoveltyWindowSize:        10,
	}
}

func newSecurityHarness(t *testing.T, secCfg config.SecurityConfig) *securityHarness {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&domain.LoginAttempt{}, &domain.SecurityAlert{}, &domain.SecurityProfile{}); err != nil {
		t.Fatal(err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	clk := clock.NewFakeClock(time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC))

	attempts := securityrepository.ProvideAttemptStore(db)
	alerts := securityrepository.ProvideAlertStore(db)

	svc := NewService(ServiceParam{
		Cfg:      config.Config{Security: secCfg},
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Attempts: attempts,
		Alerts:   alerts,
		Profiles: securityrepository.ProvideProfileStore(db),
	})

	return &securityHarness{
		svc:      svc,
		clk:      clk,
		db:       db,
		attempts: attempts,
		alerts:   alerts,
	}
}

func testUser() string {
	return "user_" + uuid.NewString()
}

func TestAnalyzeLoginAttempt_FirstLoginNoAlerts(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())

	result, err := h.svc.AnalyzeLoginAttempt(context.Background(), domain.AnalyzeLoginAttemptRequest{
		UserID:    testUser(),
		Success:   true,
		IPAddress: "203.0.113.5",
		UserAgent: "Mozilla/5.0",
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, result.AlertsGenerated)
	assert.Empty(t, result.Alerts)
}

func TestAnalyzeLoginAttempt_BurstFailures(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())
	ctx := context.Background()
	userID := testUser()

	// Five failures inside the window raise nothing yet.
	for i := 0; i < 5; i++ {
		h.clk.Advance(time.Minute)
		result, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
			UserID:    userID,
			Success:   false,
			IPAddress: "203.0.113.5",
		})
		assert.NoError(t, err)
		assert.Equal(t, 0, result.AlertsGenerated, "failure %d should stay below the threshold", i+1)
	}

	// The sixth failure sees five prior ones and fires.
	h.clk.Advance(time.Minute)
	result, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   false,
		IPAddress: "203.0.113.5",
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.AlertsGenerated)
	assert.Equal(t, domain.AlertMultipleFailedLogins, result.Alerts[0].Type)
	assert.Equal(t, domain.SeverityHigh, result.Alerts[0].Severity)
}

func TestAnalyzeLoginAttempt_SuccessNeverTriggersBurstRule(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())
	ctx := context.Background()
	userID := testUser()

	for i := 0; i < 6; i++ {
		h.clk.Advance(time.Minute)
		_, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
			UserID:  userID,
			Success: false,
		})
		assert.NoError(t, err)
	}

	// The succeeding attempt has no successful history, so the novelty rules
	// stay quiet too.
	h.clk.Advance(time.Minute)
	result, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   true,
		IPAddress: "203.0.113.5",
		UserAgent: "Mozilla/5.0",
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, result.AlertsGenerated)
}

func TestAnalyzeLoginAttempt_FailuresOutsideWindowIgnored(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())
	ctx := context.Background()
	userID := testUser()

	for i := 0; i < 5; i++ {
		h.clk.Advance(time.Minute)
		_, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{UserID: userID, Success: false})
		assert.NoError(t, err)
	}

	// Two hours later the old failures have aged out of the window.
	h.clk.Advance(2 * time.Hour)
	result, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{UserID: userID, Success: false})
	assert.NoError(t, err)
	assert.Equal(t, 0, result.AlertsGenerated)
}

func TestAnalyzeLoginAttempt_NoveltyRules(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())
	ctx := context.Background()
	userID := testUser()

	_, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   true,
		IPAddress: "203.0.113.5",
		UserAgent: "Mozilla/5.0",
	})
	assert.NoError(t, err)

	// New IP and new device on the same attempt fire independently.
	h.clk.Advance(time.Hour)
	result, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   true,
		IPAddress: "198.51.100.7",
		UserAgent: "curl/8.0",
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, result.AlertsGenerated)

	types := []domain.AlertType{result.Alerts[0].Type, result.Alerts[1].Type}
	assert.Contains(t, types, domain.AlertSuspiciousLogin)
	assert.Contains(t, types, domain.AlertDeviceAnomaly)

	// Both the IP and the agent are now part of recent history.
	h.clk.Advance(time.Hour)
	result, err = h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   true,
		IPAddress: "198.51.100.7",
		UserAgent: "Mozilla/5.0",
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, result.AlertsGenerated)
}

func TestAnalyzeLoginAttempt_NoveltyRulesSkipFailedAttempts(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())
	ctx := context.Background()
	userID := testUser()

	_, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   true,
		IPAddress: "203.0.113.5",
		UserAgent: "Mozilla/5.0",
	})
	assert.NoError(t, err)

	// A failed attempt from a new IP does not whitelist it.
	h.clk.Advance(time.Minute)
	_, err = h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   false,
		IPAddress: "198.51.100.7",
		UserAgent: "Mozilla/5.0",
	})
	assert.NoError(t, err)

	h.clk.Advance(time.Minute)
	result, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   true,
		IPAddress: "198.51.100.7",
		UserAgent: "Mozilla/5.0",
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, result.AlertsGenerated)
	assert.Equal(t, domain.AlertSuspiciousLogin, result.Alerts[0].Type)
}

func TestAnalyzeLoginAttempt_Validation(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())

	_, err := h.svc.AnalyzeLoginAttempt(context.Background(), domain.AnalyzeLoginAttemptRequest{UserID: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

type failingAlertStore struct {
	domain.AlertStore
}

func (f *failingAlertStore) Append(ctx context.Context, alert *domain.SecurityAlert) error {
	return errors.New("sink unavailable")
}

func TestAnalyzeLoginAttempt_AlertWriteIsBestEffort(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())
	ctx := context.Background()
	userID := testUser()

	_, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   true,
		IPAddress: "203.0.113.5",
		UserAgent: "Mozilla/5.0",
	})
	assert.NoError(t, err)

	node, _ := snowflake.NewNode(3)
	svc := NewService(ServiceParam{
		Cfg:      config.Config{Security: defaultSecurityConfig()},
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    h.clk,
		Attempts: h.attempts,
		Alerts:   &failingAlertStore{AlertStore: h.alerts},
		Profiles: securityrepository.ProvideProfileStore(h.db),
	})

	h.clk.Advance(time.Hour)
	result, err := svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   true,
		IPAddress: "198.51.100.7",
		UserAgent: "curl/8.0",
	})
	assert.NoError(t, err)
	assert.True(t, result.PartialFailure)
	assert.Equal(t, 0, result.AlertsGenerated)

	// The attempt fact was still recorded.
	count, err := h.attempts.CountFailedSince(ctx, userID, time.Time{})
	assert.NoError(t, err)
	assert.EqualValues(t, 0, count)
	recent, err := h.attempts.RecentSuccessful(ctx, userID, 10, time.Time{})
	assert.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestListAlerts_DefaultsAndCounts(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())
	ctx := context.Background()
	userID := testUser()

	// Generate one high alert via the burst rule and two medium ones via the
	// novelty rules.
	for i := 0; i < 6; i++ {
		h.clk.Advance(time.Minute)
		_, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{UserID: userID, Success: false})
		assert.NoError(t, err)
	}
	h.clk.Advance(time.Minute)
	_, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   true,
		IPAddress: "203.0.113.5",
		UserAgent: "Mozilla/5.0",
	})
	assert.NoError(t, err)
	h.clk.Advance(time.Minute)
	_, err = h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{
		UserID:    userID,
		Success:   true,
		IPAddress: "198.51.100.7",
		UserAgent: "curl/8.0",
	})
	assert.NoError(t, err)

	resp, err := h.svc.ListAlerts(ctx, domain.ListAlertsRequest{UserID: userID})
	assert.NoError(t, err)
	assert.Len(t, resp.Alerts, 3)
	assert.EqualValues(t, 1, resp.SeverityCounts[domain.SeverityHigh])
	assert.EqualValues(t, 2, resp.SeverityCounts[domain.SeverityMedium])

	filtered, err := h.svc.ListAlerts(ctx, domain.ListAlertsRequest{UserID: userID, Severity: domain.SeverityHigh})
	assert.NoError(t, err)
	assert.Len(t, filtered.Alerts, 1)

	_, err = h.svc.ListAlerts(ctx, domain.ListAlertsRequest{UserID: userID, Status: "archived"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = h.svc.ListAlerts(ctx, domain.ListAlertsRequest{UserID: userID, Severity: "cosmic"})
	assert.ErrorIs(t, err, domain.ErrInvalidSeverity)
}

func TestTransitionAlert_Lifecycle(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())
	ctx := context.Background()
	userID := testUser()

	for i := 0; i < 6; i++ {
		h.clk.Advance(time.Minute)
		_, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{UserID: userID, Success: false})
		assert.NoError(t, err)
	}

	resp, err := h.svc.ListAlerts(ctx, domain.ListAlertsRequest{UserID: userID})
	assert.NoError(t, err)
	assert.Len(t, resp.Alerts, 1)
	alertID := resp.Alerts[0].ID.String()

	acked, err := h.svc.TransitionAlert(ctx, alertID, domain.AlertStatusAcknowledged)
	assert.NoError(t, err)
	assert.Equal(t, domain.AlertStatusAcknowledged, acked.Status)

	// Acknowledging twice replays a transition the store no longer allows.
	_, err = h.svc.TransitionAlert(ctx, alertID, domain.AlertStatusAcknowledged)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	resolved, err := h.svc.TransitionAlert(ctx, alertID, domain.AlertStatusResolved)
	assert.NoError(t, err)
	assert.Equal(t, domain.AlertStatusResolved, resolved.Status)

	_, err = h.svc.TransitionAlert(ctx, alertID, domain.AlertStatusAcknowledged)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.svc.TransitionAlert(ctx, "not-a-snowflake", domain.AlertStatusResolved)
	assert.ErrorIs(t, err, domain.ErrInvalidAlertID)

	_, err = h.svc.TransitionAlert(ctx, "123456789", domain.AlertStatusResolved)
	assert.ErrorIs(t, err, domain.ErrAlertNotFound)
}

func TestDashboardFor_DefaultsWithoutProfile(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())
	ctx := context.Background()
	userID := testUser()

	dashboard, err := h.svc.DashboardFor(ctx, userID)
	assert.NoError(t, err)
	assert.False(t, dashboard.Metrics.TwoFactorEnabled)
	assert.Equal(t, domain.PasswordWeak, dashboard.Metrics.PasswordStrength)
	assert.EqualValues(t, 0, dashboard.Metrics.ActiveAlerts)
	// 100 - 25 (no 2FA) - 20 (weak password)
	assert.Equal(t, 55, dashboard.Metrics.SecurityScore)

	messages := make([]string, 0, len(dashboard.Insights))
	for _, insight := range dashboard.Insights {
		messages = append(messages, insight.Message)
	}
	assert.Contains(t, messages, "two-factor authentication is disabled")
	assert.Contains(t, messages, "account password is weak")
}

func TestDashboardFor_ReflectsAlertsAndFailures(t *testing.T) {
	h := newSecurityHarness(t, defaultSecurityConfig())
	ctx := context.Background()
	userID := testUser()

	for i := 0; i < 6; i++ {
		h.clk.Advance(time.Minute)
		_, err := h.svc.AnalyzeLoginAttempt(ctx, domain.AnalyzeLoginAttemptRequest{UserID: userID, Success: false})
		assert.NoError(t, err)
	}

	dashboard, err := h.svc.DashboardFor(ctx, userID)
	assert.NoError(t, err)
	assert.EqualValues(t, 1, dashboard.Metrics.ActiveAlerts)
	assert.EqualValues(t, 6, dashboard.Metrics.RecentFailedLogins)
	// 100 - 25 (no 2FA) - 20 (weak) - 5 (one alert) - 10 (failed logins cap)
	assert.Equal(t, 40, dashboard.Metrics.SecurityScore)

	_, err = h.svc.DashboardFor(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}
