// Package http implements the session control surface.
package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sandterm/sandterm/internal/session"
)

// Handlers serves the session control endpoints. All state lives in the
// registry; handlers translate between HTTP and registry semantics.
type Handlers struct {
	registry    *session.Registry
	idleTimeout time.Duration
}

// NewHandlers creates the control-surface handlers.
func NewHandlers(registry *session.Registry, idleTimeout time.Duration) *Handlers {
	return &Handlers{
		registry:    registry,
		idleTimeout: idleTimeout,
	}
}

// CreateSessionRequest is the body of POST /sessions. Dimensions default
// when absent or non-positive.
type CreateSessionRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// CreateSession provisions a sandbox and registers a session.
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	s, err := h.registry.Create(c.Request.Context(), req.Cols, req.Rows)
	if err != nil {
		if errors.Is(err, session.ErrResourceExhausted) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "no sandbox capacity available, try again later",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": s.ID(),
		"message":    "session ready, connect to the stream endpoint to attach",
		"expires_in": int(h.idleTimeout.Seconds()),
	})
}

// ResizeSessionRequest is the body of POST /sessions/:id/resize.
type ResizeSessionRequest struct {
	Cols int `json:"cols" binding:"required"`
	Rows int `json:"rows" binding:"required"`
}

// ResizeSession updates terminal dimensions. Succeeds with no side effect
// when the session has no active channel yet.
func (h *Handlers) ResizeSession(c *gin.Context) {
	var req ResizeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cols and rows are required"})
		return
	}

	err := h.registry.Resize(c.Request.Context(), c.Param("id"), req.Cols, req.Rows)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

// TerminateSession tears a session down. Idempotent: terminating an unknown
// ID is still a success.
func (h *Handlers) TerminateSession(c *gin.Context) {
	if err := h.registry.Terminate(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to terminate session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetSession reports a session's status.
func (h *Handlers) GetSession(c *gin.Context) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// ListSessions reports every registered session.
func (h *Handlers) ListSessions(c *gin.Context) {
	statuses := h.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"sessions": statuses,
		"count":    len(statuses),
	})
}

// Health is the liveness endpoint.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.registry.Count(),
	})
}
