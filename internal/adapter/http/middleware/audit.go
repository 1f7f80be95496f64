package middleware

import (
	"encoding/json"
	"strings"
	"time"

	"escrow-settlement-engine/internal/core/domain"
	"escrow-settlement-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that records successful write
// operations. It maps HTTP methods and paths to custody audit actions;
// the services record richer per-operation entries, this captures the
// HTTP-level who/what/when.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			return
		}

		action, resourceType := mapPathToAction(c.Request.URL.Path, c.Request.Method)
		if action == "" {
			return
		}

		var actor *uuid.UUID
		if id, ok := AccountID(c); ok {
			actor = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Record(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			Actor:        actor,
			Action:       action,
			ResourceType: resourceType,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapPathToAction(path, method string) (domain.AuditAction, string) {
	switch {
	case path == "/api/v1/merchants/registry" && method == "POST":
		return domain.AuditActionRegisterMerchant, "registry"
	case path == "/api/v1/merchants/registry" && method == "PUT":
		return domain.AuditActionUpdateRegistry, "registry"
	case path == "/api/v1/sessions" && method == "POST":
		return domain.AuditActionOpenSession, "session"
	case strings.HasSuffix(path, "/deposits") && method == "POST":
		return domain.AuditActionDeposit, "session"
	case strings.HasSuffix(path, "/finalize") && method == "POST":
		return domain.AuditActionFinalize, "session"
	case strings.HasSuffix(path, "/cancel") && method == "POST":
		return domain.AuditActionCancel, "session"
	case strings.HasPrefix(path, "/api/v1/sessions/") && method == "DELETE":
		return domain.AuditActionCloseSession, "session"
	case path == "/api/v1/fees/withdraw" && method == "POST":
		return domain.AuditActionWithdrawFees, "fee_vault"
	}
	return "", ""
}
