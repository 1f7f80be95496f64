package service

import "math"

// Fee basis point constants. The protocol fee defaults to 10 bps (0.1%).
const (
	DefaultFeeBasisPoints int64 = 10
	bpsDenominator        int64 = 10_000
)

// BasisPointsPolicy computes the protocol fee as a fixed fraction of the
// gross settled amount, truncating toward zero.
type BasisPointsPolicy struct {
	basisPoints int64
}

// NewBasisPointsPolicy creates a fee policy. basisPoints must already be
// validated to [0, 10000] by config loading.
func NewBasisPointsPolicy(basisPoints int64) *BasisPointsPolicy {
	return &BasisPointsPolicy{basisPoints: basisPoints}
}

// Fee returns the fee owed on gross, truncating toward zero. Zero for
// non-positive gross.
func (p *BasisPointsPolicy) Fee(gross int64) int64 {
	if gross <= 0 || p.basisPoints == 0 {
		return 0
	}
	if gross <= math.MaxInt64/p.basisPoints {
		return gross * p.basisPoints / bpsDenominator
	}
	// Split to avoid overflow on very large amounts.
	return gross/bpsDenominator*p.basisPoints + gross%bpsDenominator*p.basisPoints/bpsDenominator
}
