// Package expand implements the length-preserving ITS-style PSK expander
// named but left unspecified by spec.md's Open Questions ("PSK expansion
// function... treat as a named external primitive expand_psk(seed_bytes,
// target_len) -> bytes"). A true Toeplitz-hash expander needs a uniform
// random matrix exchanged out of band; absent that, this package derives
// an expansion keyed entirely by the seed itself via a blake3 XOF, the
// same primitive pkg/keychannel's Simulated channel uses for its
// deterministic byte stream (§9 Open Questions).
package expand

import (
	"encoding/binary"
	"errors"

	"github.com/zeebo/blake3"
)

// ErrEmptySeed is returned when PSK expands from no seed material.
var ErrEmptySeed = errors.New("expand: empty seed")

// label domain-separates PSK expansion from every other blake3 use in
// this module (keychannel's OTP/MAC-key streams, round transcript
// hashes), so the same seed bytes never produce correlated output across
// uses.
const label = "liun/expand_psk/v1"

// PSK expands seed into targetLen bytes of ITS-style key material, the
// Toeplitz-expander role from §4.6 step 3 and §4.7 step 4. The output is
// deterministic in seed: two endpoints that derive the same seed (e.g.
// both halves of a reconstructed bootstrap secret, or the XOR-combined
// peer-introduction component) obtain byte-identical expanded PSKs
// without further communication.
func PSK(seed []byte, targetLen int) ([]byte, error) {
	if len(seed) == 0 {
		return nil, ErrEmptySeed
	}
	if targetLen < 0 {
		return nil, errors.New("expand: negative target length")
	}
	h := blake3.New()
	h.Write([]byte(label))
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(seed)))
	h.Write(lenBuf[:])
	h.Write(seed)

	out := make([]byte, targetLen)
	d := h.Digest()
	if _, err := d.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChannelPSKLen is the conventional PSK length this module expands to
// before opening a keychannel.Channel: 32 bytes of fresh secret plus
// ceil(B/8) bytes of slack per §4.6 step 3's "32 + ceil(B/8) bytes" rule,
// where B is taken as 256 (the secret width used throughout Bootstrap and
// PeerIntroduction), giving 32 + 32 = 64 bytes.
const ChannelPSKLen = 32 + 256/8
