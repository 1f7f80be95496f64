package handler

import (
	"escrow-settlement-engine/internal/adapter/http/dto"
	"escrow-settlement-engine/internal/adapter/http/middleware"
	"escrow-settlement-engine/internal/core/ports"
	"escrow-settlement-engine/pkg/apperror"
	"escrow-settlement-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler exposes the caller's ledger balances. Funding happens
// outside the engine; this surface is read-only.
type WalletHandler struct {
	holdingRepo ports.HoldingRepository
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(holdingRepo ports.HoldingRepository) *WalletHandler {
	return &WalletHandler{holdingRepo: holdingRepo}
}

// GetBalances handles GET /api/v1/wallet.
func (h *WalletHandler) GetBalances(c *gin.Context) {
	caller, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	address := caller.String()
	holdings, err := h.holdingRepo.ListByAddress(c.Request.Context(), address)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	items := make([]dto.HoldingResponse, 0, len(holdings))
	for _, holding := range holdings {
		items = append(items, dto.HoldingResponse{
			Asset:   holding.Asset,
			Balance: holding.Balance,
		})
	}

	response.OK(c, dto.WalletResponse{
		Address:  address,
		Holdings: items,
	})
}
