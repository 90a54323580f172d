package manager

import (
	"context"
	"errors"
	"net/http"

	"TriPot/internal/game/engine"
	"TriPot/internal/game/table"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	mgr *TableManager
}

func NewHandler(mgr *TableManager) *Handler {
	return &Handler{mgr: mgr}
}

type OpenRequest struct {
	TableID string `json:"tableId" binding:"required"`
	GameID  string `json:"gameId"`
}

// GET /tables
func (h *Handler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.mgr.Statuses())
}

// GET /tables/:id
func (h *Handler) Status(c *gin.Context) {
	eng, ok := h.mgr.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such table"})
		return
	}
	c.JSON(http.StatusOK, eng.Status())
}

// POST /tables  body: {tableId, gameId}
func (h *Handler) Open(c *gin.Context) {
	var req OpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// the loop outlives the request
	eng, err := h.mgr.Open(context.WithoutCancel(c.Request.Context()), table.Table{ID: req.TableID, GameID: req.GameID})
	if errors.Is(err, ErrTableExists) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, eng.Status())
}

// POST /tables/:id/start
func (h *Handler) Start(c *gin.Context) {
	err := h.mgr.Start(context.WithoutCancel(c.Request.Context()), c.Param("id"))
	switch {
	case errors.Is(err, ErrTableUnknown):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// POST /tables/:id/stop
func (h *Handler) Stop(c *gin.Context) {
	if err := h.mgr.Stop(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
