package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"proparena/internal/repository"
	"proparena/internal/service"
)

type VaultHandler struct {
	Vaults *service.VaultService
}

func (h *VaultHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/vaults")
	group.GET("", h.list)
	group.POST("", h.create)
	group.GET("/:pubkey", h.get)
	group.POST("/:pubkey/refresh", h.refresh)
	group.GET("/:pubkey/profit-split", h.profitSplit)
	group.POST("/:pubkey/freeze", h.freeze)
}

// @Summary List vaults
// @Tags vaults
// @Param delegate query string false "filter by delegate authority"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/vaults [get]
func (h *VaultHandler) list(c *gin.Context) {
	delegate := strings.TrimSpace(c.Query("delegate"))
	var err error
	var items any
	if delegate != "" {
		items, err = h.Vaults.ListByDelegate(c.Request.Context(), delegate)
	} else {
		items, err = h.Vaults.List(c.Request.Context())
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

// @Summary Create a vault
// @Tags vaults
// @Param body body service.CreateVaultRequest true "vault"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/vaults [post]
func (h *VaultHandler) create(c *gin.Context) {
	var req service.CreateVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	vault, err := h.Vaults.Create(c.Request.Context(), req)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	Ok(c, vault, nil)
}

// @Summary Get a vault
// @Tags vaults
// @Param pubkey path string true "vault pubkey"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/vaults/{pubkey} [get]
func (h *VaultHandler) get(c *gin.Context) {
	vault, err := h.Vaults.Get(c.Request.Context(), c.Param("pubkey"))
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "vault not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, vault, nil)
}

// @Summary Refresh vault equity from the venue
// @Tags vaults
// @Param pubkey path string true "vault pubkey"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/vaults/{pubkey}/refresh [post]
func (h *VaultHandler) refresh(c *gin.Context) {
	vault, err := h.Vaults.RefreshEquity(c.Request.Context(), c.Param("pubkey"))
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "vault not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, vault, nil)
}

// @Summary Current profit split
// @Tags vaults
// @Param pubkey path string true "vault pubkey"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/vaults/{pubkey}/profit-split [get]
func (h *VaultHandler) profitSplit(c *gin.Context) {
	split, err := h.Vaults.ProfitSplitFor(c.Request.Context(), c.Param("pubkey"))
	if errors.Is(err, repository.ErrNotFound) {
		Error(c, http.StatusNotFound, "vault not found", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, split, nil)
}

// @Summary Freeze a vault
// @Tags vaults
// @Param pubkey path string true "vault pubkey"
// @Success 200 {object} handler.apiResponse
// @Router /api/v1/vaults/{pubkey}/freeze [post]
func (h *VaultHandler) freeze(c *gin.Context) {
	vault, err := h.Vaults.Freeze(c.Request.Context(), c.Param("pubkey"))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(c, http.StatusNotFound, "vault not found", nil)
		return
	case errors.Is(err, service.ErrVaultNotActive):
		Error(c, http.StatusConflict, err.Error(), nil)
		return
	case err != nil:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, vault, nil)
}
