package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	meteringdomain "github.com/shieldhq/sentinel/internal/metering/domain"
)

type recordUsageResponse struct {
	Success        bool                     `json:"success"`
	Action         meteringdomain.ActionType `json:"action"`
	CurrentUsage   int64                    `json:"current_usage"`
	Limit          int64                    `json:"limit"`
	RemainingQuota int64                    `json:"remaining_quota"`
	PercentageUsed float64                  `json:"percentage_used"`
}

type quotaExceededResponse struct {
	QuotaExceeded bool                      `json:"quota_exceeded"`
	Action        meteringdomain.ActionType `json:"action"`
	Usage         int64                     `json:"usage"`
	Limit         int64                     `json:"limit"`
}

func (s *Server) RecordUsage(c *gin.Context) {
	var req meteringdomain.RecordActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.meteringSvc.RecordAction(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !result.Accepted {
		c.JSON(http.StatusTooManyRequests, quotaExceededResponse{
			QuotaExceeded: true,
			Action:        result.Quota.Action,
			Usage:         result.Quota.CurrentUsage,
			Limit:         result.Quota.Limit,
		})
		return
	}

	c.JSON(http.StatusOK, recordUsageResponse{
		Success:        true,
		Action:         result.Quota.Action,
		CurrentUsage:   result.Quota.CurrentUsage,
		Limit:          result.Quota.Limit,
		RemainingQuota: result.Quota.Remaining,
		PercentageUsed: result.Quota.PercentUsed,
	})
}

func (s *Server) GetUsage(c *gin.Context) {
	userID := c.Query("user_id")

	snapshot, err := s.meteringSvc.Snapshot(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) ListUsageEvents(c *gin.Context) {
	var req meteringdomain.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.meteringSvc.ListEvents(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
