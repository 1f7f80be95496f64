package handler

import (
	"strconv"
	"time"

	"escrow-settlement-engine/internal/adapter/http/dto"
	"escrow-settlement-engine/internal/adapter/http/middleware"
	"escrow-settlement-engine/internal/core/domain"
	"escrow-settlement-engine/internal/core/ports"
	"escrow-settlement-engine/pkg/apperror"
	"escrow-settlement-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionHandler handles payment session endpoints.
type SessionHandler struct {
	sessionSvc    ports.SessionService
	settlementSvc ports.SettlementService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionSvc ports.SessionService, settlementSvc ports.SettlementService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc, settlementSvc: settlementSvc}
}

// Open handles POST /api/v1/sessions.
func (h *SessionHandler) Open(c *gin.Context) {
	payer, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var req dto.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	recipient, err := uuid.Parse(req.Recipient)
	if err != nil {
		response.Error(c, apperror.Validation("recipient is not a valid UUID"))
		return
	}

	session, err := h.sessionSvc.Open(c.Request.Context(), ports.OpenSessionRequest{
		Payer:          payer,
		Recipient:      recipient,
		PreferredAsset: req.PreferredAsset,
		Splits:         req.Splits,
		TotalRequested: req.TotalRequested,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toSessionResponse(session))
}

// Deposit handles POST /api/v1/sessions/:id/deposits.
func (h *SessionHandler) Deposit(c *gin.Context) {
	caller, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("session id is not a valid UUID"))
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	session, err := h.sessionSvc.Deposit(c.Request.Context(), ports.DepositRequest{
		SessionID: sessionID,
		Caller:    caller,
		Asset:     req.Asset,
		Amount:    req.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toSessionResponse(session))
}

// Finalize handles POST /api/v1/sessions/:id/finalize.
func (h *SessionHandler) Finalize(c *gin.Context) {
	caller, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("session id is not a valid UUID"))
		return
	}

	// Body is optional: sessions funded entirely in the preferred asset
	// need no swap instructions.
	var req dto.FinalizeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
	}

	receipt, err := h.settlementSvc.Finalize(c.Request.Context(), ports.FinalizeRequest{
		SessionID:        sessionID,
		Caller:           caller,
		SwapInstructions: req.SwapInstructions,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ReceiptResponse{
		SessionID:      receipt.SessionID.String(),
		PreferredAsset: receipt.PreferredAsset,
		GrossSettled:   receipt.GrossSettled,
		Fee:            receipt.Fee,
		NetToRecipient: receipt.NetToRecipient,
		SettledAt:      receipt.SettledAt.Format(time.RFC3339),
	})
}

// Cancel handles POST /api/v1/sessions/:id/cancel.
func (h *SessionHandler) Cancel(c *gin.Context) {
	caller, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("session id is not a valid UUID"))
		return
	}

	session, err := h.sessionSvc.Cancel(c.Request.Context(), sessionID, caller)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toSessionResponse(session))
}

// Close handles DELETE /api/v1/sessions/:id.
func (h *SessionHandler) Close(c *gin.Context) {
	caller, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("session id is not a valid UUID"))
		return
	}

	if err := h.sessionSvc.Close(c.Request.Context(), sessionID, caller); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"closed": sessionID.String()})
}

// Get handles GET /api/v1/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("session id is not a valid UUID"))
		return
	}

	session, err := h.sessionSvc.Get(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toSessionResponse(session))
}

// List handles GET /api/v1/sessions — sessions where the caller is the recipient.
func (h *SessionHandler) List(c *gin.Context) {
	caller, ok := middleware.AccountID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	sessions, err := h.sessionSvc.List(c.Request.Context(), caller, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		items = append(items, toSessionResponse(&sessions[i]))
	}

	response.OK(c, dto.SessionListResponse{
		Items:  items,
		Limit:  limit,
		Offset: offset,
	})
}

func toSessionResponse(s *domain.PaymentSession) dto.SessionResponse {
	splits := make(map[string]dto.SplitResponse, len(s.Splits))
	for asset, split := range s.Splits {
		splits[asset] = dto.SplitResponse{
			Requested: split.Requested,
			Deposited: split.Deposited,
		}
	}
	return dto.SessionResponse{
		ID:             s.ID.String(),
		Payer:          s.Payer.String(),
		Recipient:      s.Recipient.String(),
		PreferredAsset: s.PreferredAsset,
		Splits:         splits,
		TotalRequested: s.TotalRequested,
		Status:         string(s.Status),
		Authority:      s.Authority,
		AuthorityBump:  s.AuthorityBump,
		CreatedAt:      s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      s.UpdatedAt.Format(time.RFC3339),
	}
}
