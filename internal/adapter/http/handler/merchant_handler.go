package handler

import (
	"time"

	"escrow-settlement-engine/internal/adapter/http/dto"
	"escrow-settlement-engine/internal/adapter/http/middleware"
	"escrow-settlement-engine/internal/core/domain"
	"escrow-settlement-engine/internal/core/ports"
	"escrow-settlement-engine/pkg/apperror"
	"escrow-settlement-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// MerchantHandler handles merchant registry endpoints.
type MerchantHandler struct {
	registrySvc ports.RegistryService
}

// NewMerchantHandler creates a new MerchantHandler.
func NewMerchantHandler(registrySvc ports.RegistryService) *MerchantHandler {
	return &MerchantHandler{registrySvc: registrySvc}
}

// Register handles POST /api/v1/merchants/registry.
func (h *MerchantHandler) Register(c *gin.Context) {
	owner, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.RegistryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	registry, err := h.registrySvc.Register(c.Request.Context(), ports.RegisterMerchantRequest{
		Owner:          owner,
		AcceptedAssets: req.AcceptedAssets,
		PreferredAsset: req.PreferredAsset,
		WebhookURL:     req.WebhookURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toRegistryResponse(registry))
}

// Update handles PUT /api/v1/merchants/registry.
func (h *MerchantHandler) Update(c *gin.Context) {
	owner, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.RegistryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	registry, err := h.registrySvc.Update(c.Request.Context(), ports.UpdateRegistryRequest{
		Caller:         owner,
		Owner:          owner,
		AcceptedAssets: req.AcceptedAssets,
		PreferredAsset: req.PreferredAsset,
		WebhookURL:     req.WebhookURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toRegistryResponse(registry))
}

// Get handles GET /api/v1/merchants/registry.
func (h *MerchantHandler) Get(c *gin.Context) {
	owner, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	registry, err := h.registrySvc.Get(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toRegistryResponse(registry))
}

func toRegistryResponse(r *domain.MerchantRegistry) dto.RegistryResponse {
	return dto.RegistryResponse{
		Owner:          r.Owner.String(),
		AcceptedAssets: r.AcceptedAssets,
		PreferredAsset: r.PreferredAsset,
		WebhookURL:     r.WebhookURL,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      r.UpdatedAt.Format(time.RFC3339),
	}
}
