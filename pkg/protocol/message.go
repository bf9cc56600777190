package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/noospheer/liun/internal/round"
	"github.com/noospheer/liun/pkg/party"
)

// Message is the wire envelope exchanged between Nodes, carrying one
// round's CBOR-encoded content plus the bookkeeping a MultiHandler needs
// to route and verify it (§6.3's message tuple, minus the channel_run_idx
// and mac_tag fields: the envelope carries neither, and the DKG rounds
// that need authentication put a channel MAC tag inside their own content).
type Message struct {
	SSID                  []byte
	From                  party.ID
	To                    party.ID
	Protocol              string
	RoundNumber           round.Number
	Data                  []byte
	Broadcast             bool
	BroadcastVerification []byte
}

// IsFor reports whether id is an intended recipient of m: every party for
// a broadcast message, or the specific To party otherwise.
func (m *Message) IsFor(id party.ID) bool {
	if m.Broadcast {
		return true
	}
	return m.To == id
}

// Hash returns a digest of the message's routing and content fields,
// folded into a round's broadcast-verification hash so every party can
// confirm they all observed the same set of broadcast messages before
// advancing.
func (m *Message) Hash() []byte {
	h := blake3.New()
	h.Write(m.SSID)
	h.Write([]byte(m.From))
	h.Write([]byte(m.To))
	h.Write([]byte(m.Protocol))
	var numBuf [8]byte
	binary.LittleEndian.PutUint64(numBuf[:], uint64(m.RoundNumber))
	h.Write(numBuf[:])
	h.Write(m.Data)
	return h.Sum(nil)
}

// Error wraps a protocol abort with the parties responsible, if any could
// be identified.
type Error struct {
	Culprits []party.ID
	Err      error
}

func (e Error) Error() string {
	if len(e.Culprits) == 0 {
		return fmt.Sprintf("protocol: aborted: %v", e.Err)
	}
	return fmt.Sprintf("protocol: aborted by %v: %v", e.Culprits, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}
