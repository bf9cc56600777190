package epoch_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noospheer/liun/internal/epoch"
	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/protocols/dkg"
	"github.com/noospheer/liun/protocols/uss"
)

const selfID = party.ID("1")

// fakeRunner stands in for a real protocols/dkg session: it builds a
// fresh random polynomial of the given degree and returns this node's
// share of it, letting the test drive EpochManager without a live
// multi-party DKG handshake.
func fakeRunner(t *testing.T, epochID uint64) epoch.DKGRunner {
	t.Helper()
	return func(id uint64, degree, threshold int) (*dkg.Config, error) {
		secret := field.New(100 + epochID)
		poly, err := field.NewRandomPolynomial(degree, secret)
		require.NoError(t, err)
		x, err := selfID.Element()
		require.NoError(t, err)
		return &dkg.Config{
			ID:           selfID,
			Threshold:    threshold,
			Generation:   epochID,
			SigningShare: poly.Evaluate(x),
		}, nil
	}
}

// TestEpochBudgetRotation implements scenario S6: degree 10, budget 5;
// five distinct messages consume the budget exactly; a sixth is rejected
// until cutover installs the successor epoch, after which it succeeds,
// and the retired epoch stays valid for verification during its grace
// window.
func TestEpochBudgetRotation(t *testing.T) {
	m := epoch.NewManager(50 * time.Millisecond)
	require.NoError(t, m.StartEpoch(1, 10, 6, fakeRunner(t, 1)))

	cur := m.Current()
	require.NotNil(t, cur)
	assert.Equal(t, 5, cur.Signer.Budget.Max())

	for i := 1; i <= 5; i++ {
		require.NoError(t, cur.Signer.Budget.Consume(field.New(uint64(i))))
	}
	assert.True(t, m.WatchBudget())

	err := cur.Signer.Budget.Consume(field.New(6))
	assert.ErrorIs(t, err, uss.ErrBudgetExhausted)

	require.NoError(t, m.BeginOverlap(2, 10, 6, fakeRunner(t, 2)))
	require.NoError(t, m.Cutover())

	next := m.Current()
	require.NotNil(t, next)
	assert.Equal(t, uint64(2), next.Config.Generation)
	assert.NoError(t, next.Signer.Budget.Consume(field.New(6)))

	retired, ok := m.EpochForVerification(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), retired.Config.Generation)

	time.Sleep(75 * time.Millisecond)
	_, ok = m.EpochForVerification(1)
	assert.False(t, ok)
}

func TestCutoverWithoutOverlapFails(t *testing.T) {
	m := epoch.NewManager(time.Second)
	require.NoError(t, m.StartEpoch(1, 4, 3, fakeRunner(t, 1)))
	assert.ErrorIs(t, m.Cutover(), epoch.ErrNoSuccessor)
}
