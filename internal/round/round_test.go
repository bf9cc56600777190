package round_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noospheer/liun/internal/round"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/pool"
)

// echoContent is a minimal round.BroadcastContent used only to exercise
// the Helper/Session machinery in isolation from any real protocol.
type echoContent struct {
	round.NormalBroadcastContent
	Value int
}

func (echoContent) RoundNumber() round.Number { return 1 }

func newTestInfo(self party.ID) round.Info {
	return round.Info{
		ProtocolID:       "test/echo",
		FinalRoundNumber: 1,
		SelfID:           self,
		PartyIDs:         party.IDSlice{party.NewID(1), party.NewID(2), party.NewID(3)},
		Threshold:        2,
	}
}

func TestNewSessionRejectsSelfNotInPartySet(t *testing.T) {
	info := round.Info{
		ProtocolID:       "test/echo",
		FinalRoundNumber: 1,
		SelfID:           party.NewID(99),
		PartyIDs:         party.IDSlice{party.NewID(1), party.NewID(2)},
		Threshold:        1,
	}
	_, err := round.NewSession(info, []byte("session"), pool.NewPool(1))
	assert.Error(t, err)
}

func TestHelperExposesSessionParameters(t *testing.T) {
	info := newTestInfo(party.NewID(1))
	h, err := round.NewSession(info, []byte("session-a"), pool.NewPool(2))
	require.NoError(t, err)

	assert.Equal(t, party.NewID(1), h.SelfID())
	assert.Equal(t, 3, h.N())
	assert.Equal(t, 2, h.Threshold())
	assert.Equal(t, "test/echo", h.ProtocolID())
	assert.Equal(t, round.Number(1), h.FinalRoundNumber())
	assert.NotContains(t, h.OtherPartyIDs(), party.NewID(1))
	assert.Len(t, h.OtherPartyIDs(), 2)
}

func TestSameInfoAndSessionIDProduceSameSSID(t *testing.T) {
	info := newTestInfo(party.NewID(1))
	a, err := round.NewSession(info, []byte("shared-session"), pool.NewPool(1))
	require.NoError(t, err)
	b, err := round.NewSession(info, []byte("shared-session"), pool.NewPool(1))
	require.NoError(t, err)
	assert.Equal(t, a.SSID(), b.SSID())
}

func TestDifferentSessionIDsProduceDifferentSSID(t *testing.T) {
	info := newTestInfo(party.NewID(1))
	a, err := round.NewSession(info, []byte("session-one"), pool.NewPool(1))
	require.NoError(t, err)
	b, err := round.NewSession(info, []byte("session-two"), pool.NewPool(1))
	require.NoError(t, err)
	assert.NotEqual(t, a.SSID(), b.SSID())
}

func TestBroadcastMessageRoundTripsThroughChannel(t *testing.T) {
	info := newTestInfo(party.NewID(1))
	h, err := round.NewSession(info, []byte("session"), pool.NewPool(1))
	require.NoError(t, err)

	out := make(chan *round.Message, 1)
	err = h.BroadcastMessage(out, &echoContent{Value: 42})
	require.NoError(t, err)
	close(out)

	msg := <-out
	require.NotNil(t, msg)
	assert.True(t, msg.Broadcast)
	assert.Equal(t, party.NewID(1), msg.From)
	content, ok := msg.Content.(*echoContent)
	require.True(t, ok)
	assert.Equal(t, 42, content.Value)
}

func TestResultRoundCarriesResultAndFinalizeErrors(t *testing.T) {
	info := newTestInfo(party.NewID(1))
	h, err := round.NewSession(info, []byte("session"), pool.NewPool(1))
	require.NoError(t, err)

	out := h.ResultRound("the-answer")
	output, ok := out.(*round.Output)
	require.True(t, ok)
	assert.Equal(t, "the-answer", output.Result)
	assert.Equal(t, round.Number(2), output.Number())

	_, err = output.Finalize(nil)
	assert.Error(t, err)
}

func TestAbortRoundCarriesCulprits(t *testing.T) {
	info := newTestInfo(party.NewID(1))
	h, err := round.NewSession(info, []byte("session"), pool.NewPool(1))
	require.NoError(t, err)

	culprit := party.NewID(2)
	s := h.AbortRound(assert.AnError, culprit)
	abortRound, ok := s.(*round.Abort)
	require.True(t, ok)
	assert.Equal(t, round.Number(0), abortRound.Number())
	assert.Contains(t, abortRound.Culprits, culprit)

	_, err = abortRound.Finalize(nil)
	assert.Error(t, err)
}

func TestHasherProducesDeterministicDigest(t *testing.T) {
	info := newTestInfo(party.NewID(1))
	h, err := round.NewSession(info, []byte("session"), pool.NewPool(1))
	require.NoError(t, err)

	h1 := h.Hash()
	require.NoError(t, h1.WriteAny("Message", []byte("payload-one")))
	sum1 := h1.Sum()

	h2 := h.Hash()
	require.NoError(t, h2.WriteAny("Message", []byte("payload-one")))
	sum2 := h2.Sum()

	assert.Equal(t, sum1, sum2)

	h3 := h.Hash()
	require.NoError(t, h3.WriteAny("Message", []byte("payload-two")))
	assert.NotEqual(t, sum1, h3.Sum())
}
