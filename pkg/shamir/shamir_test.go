package shamir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/shamir"
)

func TestSplitReconstructRoundTrip(t *testing.T) {
	secret := field.New(12345)
	shares, err := shamir.Split(secret, 3, 5)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	subset := []shamir.Share{shares[0], shares[2], shares[4]} // share_1, share_3, share_5
	got, err := shamir.ReconstructAt(subset, field.Zero, 3)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestReconstructAgreesRegardlessOfSubset(t *testing.T) {
	secret := field.New(999)
	shares, err := shamir.Split(secret, 3, 5)
	require.NoError(t, err)

	a, err := shamir.Reconstruct([]shamir.Share{shares[0], shares[1], shares[2]}, 3)
	require.NoError(t, err)
	b, err := shamir.Reconstruct([]shamir.Share{shares[1], shares[3], shares[4]}, 3)
	require.NoError(t, err)
	assert.Equal(t, secret, a)
	assert.Equal(t, secret, b)
}

func TestConsistencyCheckDetectsCorruptShare(t *testing.T) {
	secret := field.New(12345)
	shares, err := shamir.Split(secret, 3, 5)
	require.NoError(t, err)

	corrupted := append([]shamir.Share(nil), shares...)
	corrupted[2].Y = corrupted[2].Y.Add(field.New(7)) // share_3

	good, bad := shamir.ConsistencyCheck(corrupted, 3)
	require.Len(t, bad, 1)
	assert.Equal(t, corrupted[2].X, bad[0].X)
	assert.Equal(t, corrupted[2].Y, bad[0].Y)
	assert.Len(t, good, 4)
	for _, s := range good {
		assert.NotEqual(t, corrupted[2].X, s.X)
	}
}

func TestConsistencyCheckNoFalseAccusationBelowThreshold(t *testing.T) {
	secret := field.New(42)
	shares, err := shamir.Split(secret, 3, 5)
	require.NoError(t, err)

	// Only k shares present: one short of the k+1 minimum needed to
	// detect anything, so nothing may be flagged even if corrupted.
	corrupted := []shamir.Share{shares[0], shares[1], shares[2]}
	corrupted[0].Y = corrupted[0].Y.Add(field.New(1))

	good, bad := shamir.ConsistencyCheck(corrupted, 3)
	assert.Empty(t, bad)
	assert.Len(t, good, 3)
}

func TestConsistencyCheckAllGoodWhenUncorrupted(t *testing.T) {
	secret := field.New(7)
	shares, err := shamir.Split(secret, 2, 6)
	require.NoError(t, err)

	good, bad := shamir.ConsistencyCheck(shares, 2)
	assert.Empty(t, bad)
	assert.Len(t, good, 6)
}

func TestSplitThresholdOneEqualsSecretDirectly(t *testing.T) {
	secret := field.New(555)
	shares, err := shamir.Split(secret, 1, 4)
	require.NoError(t, err)
	for _, s := range shares {
		assert.Equal(t, secret, s.Y)
	}
}

func TestSplitRejectsInvalidParams(t *testing.T) {
	_, err := shamir.Split(field.New(1), 0, 5)
	assert.ErrorIs(t, err, shamir.ErrInvalidParams)

	_, err = shamir.Split(field.New(1), 4, 3)
	assert.ErrorIs(t, err, shamir.ErrInvalidParams)
}

func TestReconstructAtRequiresThreshold(t *testing.T) {
	secret := field.New(100)
	shares, err := shamir.Split(secret, 4, 6)
	require.NoError(t, err)

	_, err = shamir.ReconstructAt(shares[:2], field.Zero, 4)
	assert.ErrorIs(t, err, shamir.ErrInsufficientShares)
}

func TestReconstructKEqualsNRequiresAllShares(t *testing.T) {
	secret := field.New(321)
	shares, err := shamir.Split(secret, 5, 5)
	require.NoError(t, err)

	_, err = shamir.ReconstructAt(shares[:4], field.Zero, 5)
	assert.ErrorIs(t, err, shamir.ErrInsufficientShares)

	got, err := shamir.ReconstructAt(shares, field.Zero, 5)
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}
