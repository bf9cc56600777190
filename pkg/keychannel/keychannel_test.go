package keychannel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noospheer/liun/pkg/keychannel"
)

func TestBothEndpointsDeriveIdenticalKeyBytes(t *testing.T) {
	psk := []byte("shared-pre-shared-key-material")

	a, err := keychannel.Open("B", psk)
	require.NoError(t, err)
	b, err := keychannel.Open("A", psk)
	require.NoError(t, err)

	ab, err := a.GenerateKeyBytes(64)
	require.NoError(t, err)
	bb, err := b.GenerateKeyBytes(64)
	require.NoError(t, err)
	assert.Equal(t, ab, bb)
}

func TestMacRoundTrip(t *testing.T) {
	psk := []byte("another-shared-secret")
	a, err := keychannel.Open("peer", psk)
	require.NoError(t, err)
	b, err := keychannel.Open("peer", psk)
	require.NoError(t, err)

	msg := []byte("DKG_SHARE payload bytes that span more than one field element")
	tag, err := a.MAC(msg)
	require.NoError(t, err)

	err = b.VerifyMAC(msg, tag, a.RunIndex())
	assert.NoError(t, err)
}

func TestMacFailsOnTamperedMessage(t *testing.T) {
	psk := []byte("tamper-test-secret")
	a, err := keychannel.Open("peer", psk)
	require.NoError(t, err)
	b, err := keychannel.Open("peer", psk)
	require.NoError(t, err)

	msg := []byte("original payload")
	tag, err := a.MAC(msg)
	require.NoError(t, err)

	tampered := append([]byte(nil), msg...)
	tampered[0] ^= 0xFF
	err = b.VerifyMAC(tampered, tag, a.RunIndex())
	assert.ErrorIs(t, err, keychannel.ErrMACFailure)
}

func TestVerifyMacRejectsReplayedRunIndex(t *testing.T) {
	psk := []byte("replay-test-secret")
	a, err := keychannel.Open("peer", psk)
	require.NoError(t, err)
	b, err := keychannel.Open("peer", psk)
	require.NoError(t, err)

	msg := []byte("first run message")
	tag, err := a.MAC(msg)
	require.NoError(t, err)
	require.NoError(t, b.VerifyMAC(msg, tag, a.RunIndex()))

	require.NoError(t, a.AdvanceRun())
	require.NoError(t, b.AdvanceRun())

	// A tag computed at the now-stale run index must be rejected.
	err = b.VerifyMAC(msg, tag, 0)
	assert.ErrorIs(t, err, keychannel.ErrRunIndexReplay)
}

func TestAdvanceRunChangesKeyBytes(t *testing.T) {
	psk := []byte("advance-run-secret")
	ch, err := keychannel.Open("peer", psk)
	require.NoError(t, err)

	before, err := ch.GenerateKeyBytes(32)
	require.NoError(t, err)
	require.NoError(t, ch.AdvanceRun())
	after, err := ch.GenerateKeyBytes(32)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
	assert.EqualValues(t, 1, ch.RunIndex())
}

func TestAdvanceRunIsMonotonic(t *testing.T) {
	ch, err := keychannel.Open("peer", []byte("monotonic-secret"))
	require.NoError(t, err)
	require.EqualValues(t, 0, ch.RunIndex())
	require.NoError(t, ch.AdvanceRun())
	require.NoError(t, ch.AdvanceRun())
	assert.EqualValues(t, 2, ch.RunIndex())
}

func TestClosedChannelRejectsEveryMethod(t *testing.T) {
	ch, err := keychannel.Open("peer", []byte("close-test-secret"))
	require.NoError(t, err)
	require.NoError(t, ch.Close())

	_, err = ch.GenerateKeyBytes(8)
	assert.ErrorIs(t, err, keychannel.ErrChannelClosed)

	_, err = ch.MAC([]byte("x"))
	assert.ErrorIs(t, err, keychannel.ErrChannelClosed)

	err = ch.VerifyMAC([]byte("x"), 0, 0)
	assert.ErrorIs(t, err, keychannel.ErrChannelClosed)

	err = ch.AdvanceRun()
	assert.ErrorIs(t, err, keychannel.ErrChannelClosed)

	err = ch.Close()
	assert.ErrorIs(t, err, keychannel.ErrChannelClosed)
}

func TestGenerateKeyBytesNeverRepeatsWithinARun(t *testing.T) {
	ch, err := keychannel.Open("peer", []byte("no-reuse-secret"))
	require.NoError(t, err)

	first, err := ch.GenerateKeyBytes(16)
	require.NoError(t, err)
	second, err := ch.GenerateKeyBytes(16)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestMacOverLongMessageSpansMultipleBlocks(t *testing.T) {
	psk := []byte("long-message-secret")
	a, err := keychannel.Open("peer", psk)
	require.NoError(t, err)
	b, err := keychannel.Open("peer", psk)
	require.NoError(t, err)

	// Bigger than one macBatchElements-sized block (4096 * 8 bytes) to
	// exercise the multi-block Wegman-Carter key schedule.
	msg := make([]byte, 40000)
	for i := range msg {
		msg[i] = byte(i)
	}

	tag, err := a.MAC(msg)
	require.NoError(t, err)
	assert.NoError(t, b.VerifyMAC(msg, tag, a.RunIndex()))
}
