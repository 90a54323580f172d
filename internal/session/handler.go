package session

import (
	"errors"
	"net/http"

	"TriPot/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	reg *Registry
}

func NewHandler(reg *Registry) *Handler {
	return &Handler{reg: reg}
}

type JoinRequest struct {
	TableID string `json:"tableId" binding:"required"`
}

type TableResponse struct {
	TableID string   `json:"tableId"`
	Users   []string `json:"users"`
}

// POST /table/join  body: {tableId}
func (h *Handler) Join(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	users, err := h.reg.JoinTable(c.Request.Context(), req.TableID, id.UserID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusConflict, gin.H{"error": "open a websocket connection first"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, TableResponse{TableID: req.TableID, Users: users})
}

// POST /table/leave
func (h *Handler) Leave(c *gin.Context) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}
	if err := h.reg.LeaveTable(c.Request.Context(), id.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /table/:id/players
func (h *Handler) Players(c *gin.Context) {
	tableID := c.Param("id")
	users, err := h.reg.Players(c.Request.Context(), tableID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, TableResponse{TableID: tableID, Users: users})
}
