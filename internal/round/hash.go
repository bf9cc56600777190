package round

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// Hasher accumulates domain-separated byte strings into a running digest,
// used to compute the broadcast-verification hash that lets every party
// confirm they observed the same set of broadcast messages for a round
// before advancing (§6.1's reliable-broadcast requirement).
type Hasher interface {
	// WriteAny mixes label and data into the running digest, in order.
	WriteAny(label string, data []byte) error
	// Sum returns the current digest without consuming the Hasher.
	Sum() []byte
}

type hashState struct {
	h *blake3.Hasher
}

func newHashState(ssid []byte) *hashState {
	h := blake3.New()
	h.Write(ssid)
	return &hashState{h: h}
}

// clone returns an independent Hasher seeded with the same prefix, so
// concurrent rounds computing different broadcast hashes don't share
// state.
func (s *hashState) clone() Hasher {
	cp := blake3.New()
	// blake3.Hasher doesn't expose internal state cloning, so re-derive
	// the same prefix deterministically from the digest taken so far.
	sum := s.h.Sum(nil)
	cp.Write(sum)
	return &hashState{h: cp}
}

func (s *hashState) WriteAny(label string, data []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(label)))
	s.h.Write(lenBuf[:])
	s.h.Write([]byte(label))
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	s.h.Write(lenBuf[:])
	s.h.Write(data)
	return nil
}

func (s *hashState) Sum() []byte {
	return s.h.Sum(nil)
}

// deriveSSID mixes the session's protocol ID, final round number, party
// set, and caller-supplied sessionID into a single session identifier,
// so two sessions with different participants or protocols never share a
// wire namespace even if the caller reuses sessionID.
func deriveSSID(info Info, sessionID []byte) []byte {
	h := blake3.New()
	h.Write([]byte(info.ProtocolID))
	var numBuf [8]byte
	binary.LittleEndian.PutUint64(numBuf[:], uint64(info.FinalRoundNumber))
	h.Write(numBuf[:])
	for _, id := range info.PartyIDs.Sorted() {
		h.Write([]byte(id.String()))
	}
	h.Write(sessionID)
	return h.Sum(nil)
}
