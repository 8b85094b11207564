package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	securitydomain "github.com/shieldhq/sentinel/internal/security/domain"
)

func (s *Server) ListAlerts(c *gin.Context) {
	var req securitydomain.ListAlertsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.securitySvc.ListAlerts(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) AcknowledgeAlert(c *gin.Context) {
	s.transitionAlert(c, securitydomain.AlertStatusAcknowledged)
}

func (s *Server) ResolveAlert(c *gin.Context) {
	s.transitionAlert(c, securitydomain.AlertStatusResolved)
}

func (s *Server) transitionAlert(c *gin.Context, next securitydomain.AlertStatus) {
	alert, err := s.securitySvc.TransitionAlert(c.Request.Context(), c.Param("id"), next)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}
