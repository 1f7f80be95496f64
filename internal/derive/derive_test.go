package derive

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_Deterministic(t *testing.T) {
	payer := uuid.New()
	recipient := uuid.New()
	session := uuid.New()

	a1, b1, err := SessionAuthority(payer, recipient, session)
	require.NoError(t, err)
	a2, b2, err := SessionAuthority(payer, recipient, session)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}

func TestDerive_DistinctAcrossTags(t *testing.T) {
	session := uuid.New()

	vault, _, err := Derive(TagEscrow, session[:])
	require.NoError(t, err)
	acc, _, err := Derive(TagSettlement, session[:])
	require.NoError(t, err)

	assert.NotEqual(t, vault, acc, "same seeds under different tags must not collide")
}

func TestDerive_DistinctAcrossSeeds(t *testing.T) {
	session := uuid.New()

	usdc, _, err := EscrowVault(session, "USDC")
	require.NoError(t, err)
	sol, _, err := EscrowVault(session, "SOL")
	require.NoError(t, err)

	assert.NotEqual(t, usdc, sol)
}

func TestDerive_OffCurveMarker(t *testing.T) {
	// Every derived address must carry the off-curve marker so no external
	// key can ever sign for it.
	for i := 0; i < 64; i++ {
		addr, _, err := EscrowVault(uuid.New(), "USDC")
		require.NoError(t, err)
		assert.Zero(t, addr[0]&offCurveMask)
	}
}

func TestDerive_SeedBoundaries(t *testing.T) {
	// Seed concatenation must not be ambiguous: ("ab","c") != ("a","bc").
	a1, _, err := Derive(TagEscrow, []byte("ab"), []byte("c"))
	require.NoError(t, err)
	a2, _, err := Derive(TagEscrow, []byte("a"), []byte("bc"))
	require.NoError(t, err)

	assert.NotEqual(t, a1, a2)
}

func TestVerify(t *testing.T) {
	session := uuid.New()
	addr, bump, err := Accumulator(session)
	require.NoError(t, err)

	assert.True(t, Verify(addr, bump, TagSettlement, session[:]))
	assert.False(t, Verify(addr, bump, TagEscrow, session[:]))

	other := uuid.New()
	assert.False(t, Verify(addr, bump, TagSettlement, other[:]))
}

func TestAddress_StringIsHex(t *testing.T) {
	addr, _, err := FeeVault("USDC")
	require.NoError(t, err)

	s := addr.String()
	assert.Len(t, s, 64)
	for _, r := range s {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'))
	}
}

func TestFeeVault_StablePerAsset(t *testing.T) {
	a1, _, err := FeeVault("USDC")
	require.NoError(t, err)
	a2, _, err := FeeVault("USDC")
	require.NoError(t, err)
	other, _, err := FeeVault("SOL")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, other)
}
