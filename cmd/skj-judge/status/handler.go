// Package status serves the progress of the current run over HTTP.
package status

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Register registers the handler
type Register interface {
	Register(*gin.Engine)
}

type statusHandle struct {
	tracker *Tracker
}

// NewStatusHandle creates a new status handle
func NewStatusHandle(t *Tracker) Register {
	return &statusHandle{tracker: t}
}

func (h *statusHandle) Register(r *gin.Engine) {
	r.GET("/status", h.statusGet)
	r.GET("/status/tasks/:index", h.taskGet)
}

func (h *statusHandle) statusGet(c *gin.Context) {
	c.JSON(http.StatusOK, h.tracker.Snapshot())
}

func (h *statusHandle) taskGet(c *gin.Context) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid task index"})
		return
	}
	s := h.tracker.Snapshot()
	if i < 0 || i >= len(s.Tasks) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, s.Tasks[i])
}
