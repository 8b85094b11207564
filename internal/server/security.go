package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	securitydomain "github.com/shieldhq/sentinel/internal/security/domain"
)

const monitorActionCheckLogin = "check_login_attempt"

type monitorRequest struct {
	Action       string                                    `json:"action"`
	LoginAttempt securitydomain.AnalyzeLoginAttemptRequest `json:"login_attempt"`
}

func (s *Server) MonitorLogin(c *gin.Context) {
	var req monitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Action != monitorActionCheckLogin {
		AbortWithError(c, newValidationError("action", "invalid_action", "unsupported monitor action"))
		return
	}

	result, err := s.securitySvc.AnalyzeLoginAttempt(c.Request.Context(), req.LoginAttempt)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) SecurityDashboard(c *gin.Context) {
	userID := c.Query("user_id")

	dashboard, err := s.securitySvc.DashboardFor(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, dashboard)
}
