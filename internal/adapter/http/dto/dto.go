package dto

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// RegistryRequest is the request body for creating or updating a merchant
// registry. The owner is always the authenticated account.
type RegistryRequest struct {
	AcceptedAssets []string `json:"accepted_assets" binding:"required,min=1,max=5,dive,required,max=10,safe_id"`
	PreferredAsset string   `json:"preferred_asset" binding:"required,max=10,safe_id"`
	WebhookURL     *string  `json:"webhook_url,omitempty" binding:"omitempty,safe_url"`
}

// RegistryResponse is the response body for registry operations.
type RegistryResponse struct {
	Owner          string   `json:"owner"`
	AcceptedAssets []string `json:"accepted_assets"`
	PreferredAsset string   `json:"preferred_asset"`
	WebhookURL     *string  `json:"webhook_url,omitempty"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

// OpenSessionRequest is the request body for opening a payment session.
// Splits maps asset code to the requested deposit amount in base units.
type OpenSessionRequest struct {
	Recipient      string           `json:"recipient" binding:"required,uuid"`
	PreferredAsset string           `json:"preferred_asset" binding:"required,max=10,safe_id"`
	Splits         map[string]int64 `json:"splits" binding:"required,min=1"`
	TotalRequested int64            `json:"total_requested" binding:"required,gt=0"`
}

// DepositRequest is the request body for a session deposit.
type DepositRequest struct {
	Asset  string `json:"asset" binding:"required,max=10,safe_id"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

// FinalizeRequest is the request body for finalization. SwapInstructions
// maps input asset code to opaque venue routing data (base64 in JSON).
type FinalizeRequest struct {
	SwapInstructions map[string][]byte `json:"swap_instructions,omitempty"`
}

// SplitResponse is one asset leg of a session.
type SplitResponse struct {
	Requested int64 `json:"requested"`
	Deposited int64 `json:"deposited"`
}

// SessionResponse is the response body for session snapshots.
type SessionResponse struct {
	ID             string                   `json:"id"`
	Payer          string                   `json:"payer"`
	Recipient      string                   `json:"recipient"`
	PreferredAsset string                   `json:"preferred_asset"`
	Splits         map[string]SplitResponse `json:"splits"`
	TotalRequested int64                    `json:"total_requested"`
	Status         string                   `json:"status"`
	Authority      string                   `json:"authority"`
	AuthorityBump  uint8                    `json:"authority_bump"`
	CreatedAt      string                   `json:"created_at"`
	UpdatedAt      string                   `json:"updated_at"`
}

// SessionListResponse wraps a paginated session list.
type SessionListResponse struct {
	Items  []SessionResponse `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// ReceiptResponse is the response body for a completed finalization.
type ReceiptResponse struct {
	SessionID      string `json:"session_id"`
	PreferredAsset string `json:"preferred_asset"`
	GrossSettled   int64  `json:"gross_settled"`
	Fee            int64  `json:"fee"`
	NetToRecipient int64  `json:"net_to_recipient"`
	SettledAt      string `json:"settled_at"`
}

// WithdrawRequest is the request body for fee vault withdrawal.
type WithdrawRequest struct {
	Asset  string `json:"asset" binding:"required,max=10,safe_id"`
	Amount int64  `json:"amount" binding:"required,gt=0"`
}

// FeeBalanceResponse is the response for a fee vault balance query.
type FeeBalanceResponse struct {
	Asset   string `json:"asset"`
	Balance int64  `json:"balance"`
}

// HoldingResponse is one balance row of a wallet.
type HoldingResponse struct {
	Asset   string `json:"asset"`
	Balance int64  `json:"balance"`
}

// WalletResponse is the response for a wallet balance query.
type WalletResponse struct {
	Address  string            `json:"address"`
	Holdings []HoldingResponse `json:"holdings"`
}
