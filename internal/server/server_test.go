package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shieldhq/sentinel/internal/clock"
	"github.com/shieldhq/sentinel/internal/config"
	meteringdomain "github.com/shieldhq/sentinel/internal/metering/domain"
	meteringrepository "github.com/shieldhq/sentinel/internal/metering/repository"
	meteringservice "github.com/shieldhq/sentinel/internal/metering/service"
	securitydomain "github.com/shieldhq/sentinel/internal/security/domain"
	securityrepository "github.com/shieldhq/sentinel/internal/security/repository"
	securityservice "github.com/shieldhq/sentinel/internal/security/service"
	subscriptiondomain "github.com/shieldhq/sentinel/internal/subscription/domain"
	subscriptionservice "github.com/shieldhq/sentinel/internal/subscription/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T, quotaCfg config.QuotaConfig) (*Server, *clock.FakeClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(
		&meteringdomain.UsageEvent{},
		&meteringdomain.UsageAggregate{},
		&securitydomain.LoginAttempt{},
		&securitydomain.SecurityAlert{},
		&securitydomain.SecurityProfile{},
		&subscriptiondomain.Subscription{},
	); err != nil {
		t.Fatal(err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2024, time.April, 10, 8, 0, 0, 0, time.UTC))

	cfg := config.Config{
		Environment: "test",
		Security: config.SecurityConfig{
			FailedLoginThreshold:     5,
			FailedLoginWindowMinutes: 60,
			NoveltyWindowSize:        10,
		},
	}

	subSvc := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		Log: log,
		DB:  db,
	})

	meteringSvc := meteringservice.NewService(meteringservice.ServiceParam{
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Events:     meteringrepository.ProvideEventStore(db),
		Aggregates: meteringrepository.ProvideAggregateStore(db),
		SubSvc:     subSvc,
		Quotas:     config.NewStaticQuotaConfigHolder(quotaCfg),
	})

	securitySvc := securityservice.NewService(securityservice.ServiceParam{
		Cfg:      cfg,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Attempts: securityrepository.ProvideAttemptStore(db),
		Alerts:   securityrepository.ProvideAlertStore(db),
		Profiles: securityrepository.ProvideProfileStore(db),
	})

	srv := NewServer(ServerParams{
		Gin:         NewEngine(log, nil),
		Cfg:         cfg,
		DB:          db,
		Log:         log,
		GenID:       node,
		MeteringSvc: meteringSvc,
		SecuritySvc: securitySvc,
	})

	return srv, clk
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, config.DefaultQuotaConfig())

	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecordUsage_Success(t *testing.T) {
	srv, _ := newTestServer(t, config.DefaultQuotaConfig())
	userID := "user_" + uuid.NewString()

	w := doJSON(t, srv, http.MethodPost, "/usage", gin.H{
		"user_id": userID,
		"action":  "aiRequest",
		"feature": "chat",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.EqualValues(t, 1, resp["current_usage"])
	assert.EqualValues(t, 50, resp["limit"])
	assert.EqualValues(t, 49, resp["remaining_quota"])
}

func TestRecordUsage_QuotaExceeded(t *testing.T) {
	cfg := config.DefaultQuotaConfig()
	cfg.Free.AIRequests = 2
	srv, clk := newTestServer(t, cfg)
	userID := "user_" + uuid.NewString()

	for i := 0; i < 2; i++ {
		clk.Advance(time.Second)
		w := doJSON(t, srv, http.MethodPost, "/usage", gin.H{"user_id": userID, "action": "aiRequest"})
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, srv, http.MethodPost, "/usage", gin.H{"user_id": userID, "action": "aiRequest"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["quota_exceeded"])
	assert.EqualValues(t, 3, resp["usage"])
	assert.EqualValues(t, 2, resp["limit"])
	assert.Equal(t, "aiRequest", resp["action"])
}

func TestRecordUsage_Validation(t *testing.T) {
	srv, _ := newTestServer(t, config.DefaultQuotaConfig())

	w := doJSON(t, srv, http.MethodPost, "/usage", gin.H{"user_id": "u1", "action": "teleport"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")

	w = doJSON(t, srv, http.MethodPost, "/usage", gin.H{"action": "aiRequest"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUsage_Snapshot(t *testing.T) {
	srv, _ := newTestServer(t, config.DefaultQuotaConfig())
	userID := "user_" + uuid.NewString()

	w := doJSON(t, srv, http.MethodPost, "/usage", gin.H{"user_id": userID, "action": "searchQuery"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/usage?user_id="+userID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, userID, resp["user_id"])
	assert.EqualValues(t, 1, resp["search_queries"])
	assert.EqualValues(t, 1, resp["total_requests"])

	w = doJSON(t, srv, http.MethodGet, "/usage", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListUsageEvents(t *testing.T) {
	srv, clk := newTestServer(t, config.DefaultQuotaConfig())
	userID := "user_" + uuid.NewString()

	for i := 0; i < 3; i++ {
		clk.Advance(time.Minute)
		w := doJSON(t, srv, http.MethodPost, "/usage", gin.H{"user_id": userID, "action": "aiRequest"})
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/usage/events?user_id=%s&page_size=2", userID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		NextPageToken string           `json:"next_page_token"`
		HasMore       bool             `json:"has_more"`
		Events        []map[string]any `json:"events"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 2)
	assert.True(t, resp.HasMore)
	assert.NotEmpty(t, resp.NextPageToken)
}

func TestMonitorLogin(t *testing.T) {
	srv, clk := newTestServer(t, config.DefaultQuotaConfig())
	userID := "user_" + uuid.NewString()

	w := doJSON(t, srv, http.MethodPost, "/security/monitor", gin.H{
		"action": "check_login_attempt",
		"login_attempt": gin.H{
			"user_id":    userID,
			"success":    true,
			"ip_address": "203.0.113.5",
			"user_agent": "Mozilla/5.0",
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var resp securitydomain.MonitorResult
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.AlertsGenerated)

	clk.Advance(time.Hour)
	w = doJSON(t, srv, http.MethodPost, "/security/monitor", gin.H{
		"action": "check_login_attempt",
		"login_attempt": gin.H{
			"user_id":    userID,
			"success":    true,
			"ip_address": "198.51.100.7",
			"user_agent": "curl/8.0",
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.AlertsGenerated)

	w = doJSON(t, srv, http.MethodPost, "/security/monitor", gin.H{
		"action":        "rotate_keys",
		"login_attempt": gin.H{"user_id": userID},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAlertLifecycleEndpoints(t *testing.T) {
	srv, clk := newTestServer(t, config.DefaultQuotaConfig())
	userID := "user_" + uuid.NewString()

	for i := 0; i < 6; i++ {
		clk.Advance(time.Minute)
		w := doJSON(t, srv, http.MethodPost, "/security/monitor", gin.H{
			"action":        "check_login_attempt",
			"login_attempt": gin.H{"user_id": userID, "success": false},
		})
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := doJSON(t, srv, http.MethodGet, "/security/alerts?user_id="+userID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var list securitydomain.ListAlertsResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Alerts, 1)
	alertID := list.Alerts[0].ID.String()

	w = doJSON(t, srv, http.MethodPost, "/security/alerts/"+alertID+"/acknowledge", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Replaying the transition conflicts.
	w = doJSON(t, srv, http.MethodPost, "/security/alerts/"+alertID+"/acknowledge", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/security/alerts/"+alertID+"/resolve", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Resolved alerts no longer show under the default active filter.
	w = doJSON(t, srv, http.MethodGet, "/security/alerts?user_id="+userID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Empty(t, list.Alerts)

	w = doJSON(t, srv, http.MethodPost, "/security/alerts/garbage/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodPost, "/security/alerts/987654321/resolve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSecurityDashboardEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, config.DefaultQuotaConfig())
	userID := "user_" + uuid.NewString()

	w := doJSON(t, srv, http.MethodGet, "/security/dashboard?user_id="+userID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp securitydomain.Dashboard
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 55, resp.Metrics.SecurityScore)
	assert.Equal(t, securitydomain.PasswordWeak, resp.Metrics.PasswordStrength)

	w = doJSON(t, srv, http.MethodGet, "/security/dashboard", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
