// Package derive maps stable public identifiers onto deterministic custody
// addresses. A derived address is the tagged SHA-256 of its seeds plus a bump
// byte. Addresses are rendered as 64-char lowercase hex, a namespace that can
// never collide with the UUID-form wallet addresses of external identities,
// so only engine logic can authorize moves out of a derived account.
package derive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
)

// Domain tags, one per custody account kind. Changing a tag changes every
// derived address, so these are wire-stable.
const (
	TagPaymentSession = "payment_session"
	TagEscrow         = "escrow"
	TagSettlement     = "settlement"
	TagFeeVault       = "fee_vault"
)

const derivePrefix = "ese/v1"

// offCurveMask marks the address bit that externally held signing keys never
// carry; candidates with the high bit set are skipped during the bump search.
const offCurveMask = 0x80

// ErrNoBump is returned when no bump in [0,255] yields a usable address.
// With a 1/2 rejection rate per candidate this is not reachable in practice.
var ErrNoBump = errors.New("derive: no valid bump found")

// Address is a derived 32-byte custody address.
type Address [32]byte

// String renders the address as lowercase hex.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Derive produces the custody address and bump for a domain tag and seed set.
// The search walks the bump from 255 downward and accepts the first candidate
// whose leading byte has the off-curve bit clear. Same inputs always yield
// the same (address, bump), so clients can compute addresses offline.
func Derive(tag string, seeds ...[]byte) (Address, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		candidate := hashCandidate(tag, seeds, uint8(bump))
		if candidate[0]&offCurveMask == 0 {
			return candidate, uint8(bump), nil
		}
	}
	return Address{}, 0, ErrNoBump
}

// Verify reports whether (addr, bump) is the canonical derivation for the
// given tag and seeds.
func Verify(addr Address, bump uint8, tag string, seeds ...[]byte) bool {
	derived, derivedBump, err := Derive(tag, seeds...)
	if err != nil {
		return false
	}
	return derived == addr && derivedBump == bump
}

func hashCandidate(tag string, seeds [][]byte, bump uint8) Address {
	h := sha256.New()
	h.Write([]byte(derivePrefix))
	h.Write([]byte{0})
	h.Write([]byte(tag))
	h.Write([]byte{0})
	for _, seed := range seeds {
		h.Write(seed)
		h.Write([]byte{0})
	}
	h.Write([]byte{bump})

	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

// SessionAuthority derives the signing authority for a payment session from
// the payer, recipient, and session identities.
func SessionAuthority(payer, recipient, sessionID uuid.UUID) (Address, uint8, error) {
	return Derive(TagPaymentSession, payer[:], recipient[:], sessionID[:])
}

// EscrowVault derives the per-asset custody vault address for a session.
func EscrowVault(sessionID uuid.UUID, asset string) (Address, uint8, error) {
	return Derive(TagEscrow, sessionID[:], []byte(asset))
}

// Accumulator derives the intermediate settlement account for a session.
// Swap proceeds land here before the fee split.
func Accumulator(sessionID uuid.UUID) (Address, uint8, error) {
	return Derive(TagSettlement, sessionID[:])
}

// FeeVault derives the process-wide fee vault address for an asset.
func FeeVault(asset string) (Address, uint8, error) {
	return Derive(TagFeeVault, []byte(asset))
}
