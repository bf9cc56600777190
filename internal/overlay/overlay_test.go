package overlay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noospheer/liun/internal/overlay"
	"github.com/noospheer/liun/pkg/keychannel"
	"github.com/noospheer/liun/pkg/party"
)

func openChannel(t *testing.T, peer party.ID) keychannel.Channel {
	t.Helper()
	ch, err := keychannel.Open(string(peer), []byte("test-psk-material-32-bytes-long"))
	require.NoError(t, err)
	return ch
}

func TestFindMutualContacts(t *testing.T) {
	self := party.NewID(1)
	target := party.NewID(2)
	o := overlay.New(self)

	o.OpenChannel(target, openChannel(t, target))
	for i := 3; i <= 6; i++ {
		id := party.NewID(uint64(i))
		o.OpenChannel(id, openChannel(t, id))
		o.RecordGossipEdge(target, id) // target also knows id
	}

	mutual, err := o.FindMutualContacts(target, 3)
	require.NoError(t, err)
	assert.Len(t, mutual, 4)
}

func TestFindMutualContactsInsufficient(t *testing.T) {
	self := party.NewID(1)
	target := party.NewID(2)
	o := overlay.New(self)
	o.OpenChannel(target, openChannel(t, target))

	_, err := o.FindMutualContacts(target, 1)
	assert.ErrorIs(t, err, overlay.ErrInsufficientMutualContacts)
}

func TestGraphMonitorDetectsBelowTargetDegreeAndChurn(t *testing.T) {
	self := party.NewID(1)
	o := overlay.New(self)
	monitor := overlay.NewGraphMonitor(o, false)

	peer := party.NewID(2)
	o.OpenChannel(peer, openChannel(t, peer))

	health := monitor.Check()
	assert.Empty(t, health.Disconnected)
	// Two nodes give a target degree of ceil(log2 2)+1 = 2; both have 1.
	assert.ElementsMatch(t, party.IDSlice{self, peer}, health.BelowTargetDegree)
	assert.Equal(t, 0, health.EdgesRemoved)

	require.NoError(t, o.CloseChannel(peer))
	health = monitor.Check()
	assert.Equal(t, 1, health.EdgesRemoved)
}
