package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited custody action.
type AuditAction string

const (
	AuditActionRegisterMerchant AuditAction = "REGISTER_MERCHANT"
	AuditActionUpdateRegistry   AuditAction = "UPDATE_REGISTRY"
	AuditActionOpenSession      AuditAction = "OPEN_SESSION"
	AuditActionDeposit          AuditAction = "DEPOSIT"
	AuditActionFinalize         AuditAction = "FINALIZE"
	AuditActionCancel           AuditAction = "CANCEL"
	AuditActionCloseSession     AuditAction = "CLOSE_SESSION"
	AuditActionWithdrawFees     AuditAction = "WITHDRAW_FEES"
)

// AuditLog records a single audited custody action. Every operation that can
// move or release escrowed value appends one entry.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	Actor        *uuid.UUID  `json:"actor,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
