package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxAcceptedAssets bounds the registry's accepted set.
const MaxAcceptedAssets = 5

// MerchantRegistry is a recipient's settlement policy: which assets it will
// take deposits in, and which one it is ultimately paid in. Created once per
// recipient and updatable only by the recipient.
type MerchantRegistry struct {
	Owner          uuid.UUID `json:"owner"`
	AcceptedAssets []string  `json:"accepted_assets"` // ordered, unique
	PreferredAsset string    `json:"preferred_asset"`
	WebhookURL     *string   `json:"webhook_url,omitempty"`
	WebhookSecret  string    `json:"-"` // HMAC key for settlement events, never expose
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Accepts reports whether the registry accepts deposits in the given asset.
func (r *MerchantRegistry) Accepts(asset string) bool {
	for _, a := range r.AcceptedAssets {
		if a == asset {
			return true
		}
	}
	return false
}

// ValidateConfiguration checks the registry invariants: a non-empty,
// duplicate-free accepted set within capacity, with the preferred asset a
// member of it. Returns a human-readable reason on failure.
func ValidateConfiguration(acceptedAssets []string, preferredAsset string) (string, bool) {
	if len(acceptedAssets) == 0 {
		return "accepted asset set is empty", false
	}
	if len(acceptedAssets) > MaxAcceptedAssets {
		return "accepted asset set exceeds capacity", false
	}
	seen := make(map[string]bool, len(acceptedAssets))
	for _, a := range acceptedAssets {
		if a == "" {
			return "accepted asset code is empty", false
		}
		if seen[a] {
			return "duplicate asset in accepted set", false
		}
		seen[a] = true
	}
	if !seen[preferredAsset] {
		return "preferred asset is not in the accepted set", false
	}
	return "", true
}
