package domain

import (
	"time"

	"github.com/google/uuid"
)

// Holding is one balance row of the ledger: an (address, asset) pair and the
// amount it holds. Wallet balances, escrow vaults, settlement accumulators,
// and fee vaults are all holdings; custody rows are distinguished by their
// derived hex address.
type Holding struct {
	Address   string    `json:"address"`
	Asset     string    `json:"asset"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SettlementReceipt summarizes a finalized session: what accumulated in the
// preferred asset, how it was split between the fee vault and the recipient.
type SettlementReceipt struct {
	SessionID      uuid.UUID `json:"session_id"`
	PreferredAsset string    `json:"preferred_asset"`
	GrossSettled   int64     `json:"gross_settled"`
	Fee            int64     `json:"fee"`
	NetToRecipient int64     `json:"net_to_recipient"`
	SettledAt      time.Time `json:"settled_at"`
}
