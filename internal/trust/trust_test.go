package trust_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noospheer/liun/internal/overlay"
	"github.com/noospheer/liun/internal/trust"
	"github.com/noospheer/liun/pkg/keychannel"
	"github.com/noospheer/liun/pkg/party"
)

func openChannel(t *testing.T, peer party.ID) keychannel.Channel {
	t.Helper()
	ch, err := keychannel.Open(string(peer), []byte("test-psk-material-32-bytes-long"))
	require.NoError(t, err)
	return ch
}

// buildStarWithSybilCluster wires a seed, 9 honest leaves attached to the
// seed, and a 1000-node Sybil cluster attached to honest leaves by
// exactly 3 attack edges, matching scenario S5. It returns the overlay,
// the seed, and the set of Sybil node IDs for the test to sum trust over.
func buildStarWithSybilCluster(t *testing.T) (o *overlay.Overlay, seed party.ID, sybilSet map[party.ID]bool) {
	t.Helper()
	seed = party.NewID(1)
	o = overlay.New(seed)

	var leaves party.IDSlice
	for i := 2; i <= 10; i++ {
		leaf := party.NewID(uint64(i))
		leaves = append(leaves, leaf)
		o.OpenChannel(leaf, openChannel(t, leaf))
	}

	sybilBase := uint64(1000)
	var sybils party.IDSlice
	sybilSet = make(map[party.ID]bool, 1000)
	for i := 0; i < 1000; i++ {
		s := party.NewID(sybilBase + uint64(i))
		sybils = append(sybils, s)
		sybilSet[s] = true
	}
	// Chain the Sybil cluster together so it is internally connected.
	for i := 0; i < len(sybils)-1; i++ {
		o.RecordGossipEdge(sybils[i], sybils[i+1])
	}
	// Exactly 3 attack edges from honest leaves into the cluster.
	o.RecordGossipEdge(leaves[0], sybils[0])
	o.RecordGossipEdge(leaves[1], sybils[1])
	o.RecordGossipEdge(leaves[2], sybils[2])

	return o, seed, sybilSet
}

func TestSybilTrustBoundedByClosedForm(t *testing.T) {
	o, seed, sybilSet := buildStarWithSybilCluster(t)
	snap := o.Snapshot()

	vector := trust.PersonalizedPageRankDefault(snap, seed)

	var sybilTrust float64
	for id, v := range vector {
		if sybilSet[id] {
			sybilTrust += v
		}
	}

	// Each attack-edge-bearing leaf has degree 2 here (one edge to the
	// seed, one attack edge into the cluster), the minimum honest
	// boundary degree for this topology.
	bound := trust.SybilBound(trust.DefaultDamping, 3, 2)
	assert.LessOrEqual(t, sybilTrust, bound+1e-9)
}

func TestTrustWeightedAcceptThreshold(t *testing.T) {
	trustVec := trust.Vector{
		party.NewID(1): 0.4,
		party.NewID(2): 0.3,
		party.NewID(3): 0.3,
	}
	accept := party.IDSlice{party.NewID(1), party.NewID(2)}
	assert.True(t, trust.TrustWeightedAccept(accept, trustVec))

	insufficient := party.IDSlice{party.NewID(3)}
	assert.False(t, trust.TrustWeightedAccept(insufficient, trustVec))
}
