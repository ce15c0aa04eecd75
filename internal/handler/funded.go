package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"proparena/internal/repository"
	"proparena/internal/service"
)

type FundedHandler struct {
	Funded *service.FundedService
}

func (h *FundedHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/funded")
	group.GET("", h.list)
	group.POST("/apply", h.apply)
	group.GET("/:id", h.get)
	group.POST("/:id/activate", h.activate)
	group.GET("/:id/loss-check", h.lossCheck)
	group.POST("/:id/withdraw", h.withdraw)
	group.GET("/:id/performance", h.performance)
}

// @Summary List funded accounts
// @Tags funded
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/funded [get]
func (h *FundedHandler) list(c *gin.Context) {
	items, err := h.Funded.List(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"total": len(items)})
}

type applyRequest struct {
	AgentID   string `json:"agentId" binding:"required"`
	AgentName string `json:"agentName"`
}

// @Summary Apply for a funded account
// @Tags funded
// @Param body body handler.applyRequest true "agent"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/funded/apply [post]
func (h *FundedHandler) apply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	if req.AgentID == "" {
		Error(c, http.StatusBadRequest, "agentId required", nil)
		return
	}
	account, err := h.Funded.Apply(c.Request.Context(), req.AgentID, req.AgentName)
	switch {
	case errors.Is(err, service.ErrNotEligible):
		Error(c, http.StatusForbidden, err.Error(), nil)
		return
	case err != nil:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, account, nil)
}

// @Summary Get a funded account
// @Tags funded
// @Param id path string true "account id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/funded/{id} [get]
func (h *FundedHandler) get(c *gin.Context) {
	account, err := h.Funded.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "funded account not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, account, nil)
}

// @Summary Activate a pending funded account
// @Tags funded
// @Param id path string true "account id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/funded/{id}/activate [post]
func (h *FundedHandler) activate(c *gin.Context) {
	account, err := h.Funded.Activate(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(c, http.StatusNotFound, "funded account not found", nil)
		return
	case errors.Is(err, service.ErrAccountNotPending):
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	case err != nil:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, account, nil)
}

// @Summary Check loss limits
// @Tags funded
// @Param id path string true "account id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/funded/{id}/loss-check [get]
func (h *FundedHandler) lossCheck(c *gin.Context) {
	check, err := h.Funded.CheckLossLimits(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(c, http.StatusNotFound, "funded account not found", nil)
		return
	case errors.Is(err, service.ErrAccountNotActive):
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	case err != nil:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, check, nil)
}

// @Summary Withdraw profits
// @Tags funded
// @Param id path string true "account id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/funded/{id}/withdraw [post]
func (h *FundedHandler) withdraw(c *gin.Context) {
	w, err := h.Funded.WithdrawProfits(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(c, http.StatusNotFound, "funded account not found", nil)
		return
	case errors.Is(err, service.ErrAccountNotActive):
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	case errors.Is(err, service.ErrLossLimitBreached):
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	case errors.Is(err, service.ErrNoProfit):
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	case err != nil:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, w, nil)
}

// @Summary Funded account performance
// @Tags funded
// @Param id path string true "account id"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/funded/{id}/performance [get]
func (h *FundedHandler) performance(c *gin.Context) {
	summary, err := h.Funded.Performance(c.Request.Context(), c.Param("id"))
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "funded account not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, summary, nil)
}
