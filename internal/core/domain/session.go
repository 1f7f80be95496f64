package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a payment session. Transitions are
// monotone; SETTLED and CANCELLED are terminal.
type SessionStatus string

const (
	SessionStatusCreated         SessionStatus = "CREATED"
	SessionStatusPartiallyFunded SessionStatus = "PARTIALLY_FUNDED"
	SessionStatusFunded          SessionStatus = "FUNDED"
	SessionStatusFinalizing      SessionStatus = "FINALIZING"
	SessionStatusSettled         SessionStatus = "SETTLED"
	SessionStatusCancelled       SessionStatus = "CANCELLED"
)

// Split tracks one requested asset leg of a session: how much the payer
// committed to deposit in that asset, and how much has actually arrived.
type Split struct {
	Requested int64 `json:"requested"`
	Deposited int64 `json:"deposited"`
}

// PaymentSession is one end-to-end settlement instance between a payer and a
// recipient. PreferredAsset is a snapshot of the registry at creation time,
// so mid-flight policy changes cannot alter an in-progress settlement.
type PaymentSession struct {
	ID             uuid.UUID        `json:"id"`
	Payer          uuid.UUID        `json:"payer"`
	Recipient      uuid.UUID        `json:"recipient"`
	PreferredAsset string           `json:"preferred_asset"`
	Splits         map[string]Split `json:"splits"`
	TotalRequested int64            `json:"total_requested"`
	Status         SessionStatus    `json:"status"`
	Authority      string           `json:"authority"` // derived custody authority address
	AuthorityBump  uint8            `json:"authority_bump"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IsTerminal reports whether the session permits no further transitions.
func (s *PaymentSession) IsTerminal() bool {
	return s.Status == SessionStatusSettled || s.Status == SessionStatusCancelled
}

// AcceptsDeposits reports whether a deposit may still be applied.
func (s *PaymentSession) AcceptsDeposits() bool {
	switch s.Status {
	case SessionStatusCreated, SessionStatusPartiallyFunded, SessionStatusFunded:
		return true
	default:
		return false
	}
}

// CanFinalize reports whether settlement may be attempted. Any pre-terminal
// funding state qualifies; whether there is anything to settle is a separate
// question (HasDeposits).
func (s *PaymentSession) CanFinalize() bool {
	switch s.Status {
	case SessionStatusCreated, SessionStatusPartiallyFunded, SessionStatusFunded:
		return true
	default:
		return false
	}
}

// FullyFunded reports whether every requested split is covered exactly.
func (s *PaymentSession) FullyFunded() bool {
	for _, split := range s.Splits {
		if split.Deposited < split.Requested {
			return false
		}
	}
	return true
}

// HasDeposits reports whether any asset has been deposited.
func (s *PaymentSession) HasDeposits() bool {
	for _, split := range s.Splits {
		if split.Deposited > 0 {
			return true
		}
	}
	return false
}

// FundingStatus recomputes the funding-phase status from the split ledger.
// Only meaningful while deposits are still accepted.
func (s *PaymentSession) FundingStatus() SessionStatus {
	if !s.HasDeposits() {
		return SessionStatusCreated
	}
	if s.FullyFunded() {
		return SessionStatusFunded
	}
	return SessionStatusPartiallyFunded
}

// AssetOrder returns the session's assets in ascending order. Settlement and
// refund walk assets in this order so two identical finalizations produce
// identical execution traces regardless of caller.
func (s *PaymentSession) AssetOrder() []string {
	assets := make([]string, 0, len(s.Splits))
	for asset := range s.Splits {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}
