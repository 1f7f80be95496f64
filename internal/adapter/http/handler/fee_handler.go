package handler

import (
	"escrow-settlement-engine/internal/adapter/http/dto"
	"escrow-settlement-engine/internal/adapter/http/middleware"
	"escrow-settlement-engine/internal/core/ports"
	"escrow-settlement-engine/pkg/apperror"
	"escrow-settlement-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// FeeHandler handles protocol fee vault endpoints.
type FeeHandler struct {
	feeSvc ports.FeeVaultService
}

// NewFeeHandler creates a new FeeHandler.
func NewFeeHandler(feeSvc ports.FeeVaultService) *FeeHandler {
	return &FeeHandler{feeSvc: feeSvc}
}

// Withdraw handles POST /api/v1/fees/withdraw.
func (h *FeeHandler) Withdraw(c *gin.Context) {
	caller, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	if err := h.feeSvc.Withdraw(c.Request.Context(), caller, req.Asset, req.Amount); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"asset":     req.Asset,
		"withdrawn": req.Amount,
	})
}

// Balance handles GET /api/v1/fees/balance?asset=USDC.
func (h *FeeHandler) Balance(c *gin.Context) {
	asset := c.Query("asset")
	if asset == "" {
		response.Error(c, apperror.Validation("asset query parameter is required"))
		return
	}

	balance, err := h.feeSvc.Balance(c.Request.Context(), asset)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FeeBalanceResponse{
		Asset:   asset,
		Balance: balance,
	})
}
