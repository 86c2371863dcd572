package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"conductor/internal/schedule"
)

type createScheduleRequest struct {
	AgentID    string `json:"agent_id" binding:"required"`
	TaskPrompt string `json:"task_prompt" binding:"required"`
	Type       string `json:"schedule_type" binding:"required"`
	IntervalMs int64  `json:"interval_ms"`
	Cron       string `json:"cron"`
}

// handleCreateSchedule creates a schedule, or returns the existing active
// match when the proposal is a functional duplicate (200 instead of 201).
func (s *Server) handleCreateSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sched, created, err := s.schedules.Create(c.Request.Context(), schedule.CreateParams{
		AgentID:    req.AgentID,
		TaskPrompt: req.TaskPrompt,
		Type:       schedule.Type(req.Type),
		IntervalMs: req.IntervalMs,
		Cron:       req.Cron,
	})
	if err != nil {
		s.renderScheduleError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, sched)
}

func (s *Server) handleListSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schedules": s.schedules.List(c.Request.Context())})
}

func (s *Server) handleGetSchedule(c *gin.Context) {
	sched, err := s.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderScheduleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *Server) handleSetScheduleStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sched, err := s.schedules.SetStatus(c.Request.Context(), c.Param("id"), schedule.Status(req.Status))
	if err != nil {
		s.renderScheduleError(c, err)
		return
	}
	c.JSON(http.StatusOK, sched)
}

func (s *Server) handleDeleteSchedule(c *gin.Context) {
	if err := s.schedules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.renderScheduleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) renderScheduleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, schedule.ErrScheduleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
