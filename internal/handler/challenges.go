package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"proparena/internal/repository"
	"proparena/internal/service"
)

type ChallengeHandler struct {
	Challenges *service.ChallengeService
}

func (h *ChallengeHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/challenges")
	group.GET("", h.list)
	group.GET("/:id", h.get)
	group.POST("/:id/enter", h.enter)
	group.GET("/:id/leaderboard", h.leaderboard)

	r.GET("/api/v1/entries/:id", h.entry)
	r.GET("/api/v1/agents/:agentId/entries", h.agentEntries)
}

// @Summary List challenges
// @Tags challenges
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/challenges [get]
func (h *ChallengeHandler) list(c *gin.Context) {
	items, err := h.Challenges.List(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

// @Summary Get one challenge
// @Tags challenges
// @Param id path string true "challenge id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/challenges/{id} [get]
func (h *ChallengeHandler) get(c *gin.Context) {
	item, err := h.Challenges.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "challenge not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

type enterRequest struct {
	AgentID   string `json:"agentId" binding:"required"`
	AgentName string `json:"agentName"`
}

// @Summary Enter a challenge
// @Tags challenges
// @Param id path string true "challenge id"
// @Param body body handler.enterRequest true "agent"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/challenges/{id}/enter [post]
func (h *ChallengeHandler) enter(c *gin.Context) {
	var req enterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	if req.AgentID == "" {
		Error(c, http.StatusBadRequest, "agentId required", nil)
		return
	}
	entry, err := h.Challenges.Enter(c.Request.Context(), c.Param("id"), req.AgentID, req.AgentName, "")
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(c, http.StatusNotFound, "challenge not found", nil)
		return
	case errors.Is(err, service.ErrChallengeNotOpen):
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	case err != nil:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, entry, nil)
}

// @Summary Challenge leaderboard
// @Tags challenges
// @Param id path string true "challenge id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/challenges/{id}/leaderboard [get]
func (h *ChallengeHandler) leaderboard(c *gin.Context) {
	rows, err := h.Challenges.Leaderboard(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, rows, map[string]any{"total": len(rows)})
}

// @Summary Get one entry
// @Tags entries
// @Param id path string true "entry id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/entries/{id} [get]
func (h *ChallengeHandler) entry(c *gin.Context) {
	item, err := h.Challenges.Entry(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "entry not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary List an agent's entries
// @Tags entries
// @Param agentId path string true "agent id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/agents/{agentId}/entries [get]
func (h *ChallengeHandler) agentEntries(c *gin.Context) {
	items, err := h.Challenges.EntriesByAgent(c.Request.Context(), c.Param("agentId"))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}
