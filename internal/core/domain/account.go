package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account is an external identity known to the engine: a payer, a merchant,
// or the fee administrator. Key custody stays with the wallet layer; the
// engine only authenticates the identity and moves balances between holding
// accounts on its behalf.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never expose
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WalletAddress is the account's holding address: the UUID string itself.
// Derived custody addresses are 64-char hex and can never collide with it.
func (a *Account) WalletAddress() string {
	return a.ID.String()
}
