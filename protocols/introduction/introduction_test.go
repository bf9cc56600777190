package introduction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/protocols/introduction"
)

// TestPeerIntroductionXORCombination implements scenario S4: three
// introducers contribute fixed test vectors (32 bytes of 0x01, 0x02,
// 0x03), and A and C independently combine them to the same byte-wise
// XOR, which for these three vectors is all-zero (0x01 ^ 0x02 ^ 0x03 ==
// 0x00 per byte).
func TestPeerIntroductionXORCombination(t *testing.T) {
	mk := func(id party.ID, b byte) introduction.Component {
		v := make([]byte, 32)
		for i := range v {
			v[i] = b
		}
		return introduction.Component{Introducer: id, Value: v}
	}

	atA := []introduction.Component{
		mk(party.NewID(1), 0x01),
		mk(party.NewID(2), 0x02),
		mk(party.NewID(3), 0x03),
	}
	// C gathers the same three introducer contributions independently
	// (order need not match A's).
	atC := []introduction.Component{
		mk(party.NewID(3), 0x03),
		mk(party.NewID(1), 0x01),
		mk(party.NewID(2), 0x02),
	}

	pskA, err := introduction.CombinePSK(atA)
	require.NoError(t, err)
	pskC, err := introduction.CombinePSK(atC)
	require.NoError(t, err)

	assert.Equal(t, pskA, pskC)
	for _, b := range pskA {
		assert.Equal(t, byte(0x00), b)
	}
}

func TestCombinePSKRequiresMinimumThree(t *testing.T) {
	v := make([]byte, 32)
	_, err := introduction.CombinePSK([]introduction.Component{{Introducer: party.NewID(1), Value: v}})
	assert.ErrorIs(t, err, introduction.ErrMinimumIntroducers)
}

func TestOpenIntroducedProducesUsableChannel(t *testing.T) {
	mk := func(id party.ID, b byte) introduction.Component {
		v := make([]byte, 32)
		for i := range v {
			v[i] = b
		}
		return introduction.Component{Introducer: id, Value: v}
	}
	components := []introduction.Component{
		mk(party.NewID(1), 0x10),
		mk(party.NewID(2), 0x20),
		mk(party.NewID(3), 0x30),
	}
	ch, err := introduction.OpenIntroduced(party.NewID(4), components)
	require.NoError(t, err)
	assert.Equal(t, 0, int(ch.RunIndex()))
}
