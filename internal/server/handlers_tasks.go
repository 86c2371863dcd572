package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"conductor/internal/task"
)

type createTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	AgentID     string `json:"agent_id" binding:"required"`
	SessionID   string `json:"session_id"`
	Enqueue     bool   `json:"enqueue"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := s.tasks.Create(c.Request.Context(), task.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		AgentID:     req.AgentID,
		SessionID:   req.SessionID,
		Enqueue:     req.Enqueue,
	})
	if err != nil {
		s.renderTaskError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) handleListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": s.tasks.List(c.Request.Context())})
}

func (s *Server) handleGetTask(c *gin.Context) {
	t, err := s.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.tasks.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.renderTaskError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) handleSetTaskStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.tasks.SetStatus(c.Request.Context(), c.Param("id"), task.Status(req.Status)); err != nil {
		s.renderTaskError(c, err)
		return
	}
	t, err := s.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

type addCommentRequest struct {
	Author string `json:"author"`
	Body   string `json:"body" binding:"required"`
}

func (s *Server) handleAddComment(c *gin.Context) {
	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	comment, err := s.tasks.AddComment(c.Request.Context(), c.Param("id"), req.Author, req.Body)
	if err != nil {
		s.renderTaskError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

type approvalDecisionRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

func (s *Server) handleApprovalDecision(c *gin.Context) {
	var req approvalDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.tasks.Decide(c.Request.Context(), c.Param("id"), *req.Approved); err != nil {
		s.renderTaskError(c, err)
		return
	}
	t, err := s.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// renderTaskError maps service errors onto HTTP statuses.
func (s *Server) renderTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, task.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, task.ErrNoPendingApproval),
		errors.Is(err, task.ErrTaskTerminal),
		errors.Is(err, task.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Server: task request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
