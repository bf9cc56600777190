package keychannel

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/noospheer/liun/pkg/field"
)

// Simulated is a deterministic stand-in for the physics-backed Liu
// primitive: both endpoints that Open the same pskBytes derive identical
// byte streams and MAC keys for a given run index, which is all the core
// requires of a Channel (§4.3, §9 "simulated channel: deterministic bytes
// from a seed"). It is not itself information-theoretically secure — it is
// a computational PRG standing in for the ITS primitive in tests and local
// development.
type Simulated struct {
	guard

	peerID string
	psk    []byte

	// byteOffset tracks how many key bytes have been consumed from the
	// current run's one-time-pad stream, so repeated GenerateKeyBytes
	// calls within a run never reuse bytes.
	byteOffset uint64
}

func newSimulated(peerID string, psk []byte) (*Simulated, error) {
	if len(psk) == 0 {
		return nil, field.ErrInvalidInput
	}
	cp := make([]byte, len(psk))
	copy(cp, psk)
	return &Simulated{
		peerID: peerID,
		psk:    cp,
		guard:  guard{state: StateActive},
	}, nil
}

// xofAt derives an arbitrary-length deterministic byte stream from the
// channel's PSK, run index, purpose label, and a starting offset, so the
// same (psk, runIdx, purpose) always reproduces the same stream at both
// endpoints.
func (s *Simulated) xofAt(purpose string, runIdx uint64, offset uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, errNegativeLength
	}
	h := blake3.New()
	h.Write(s.psk)
	var runBuf [8]byte
	binary.LittleEndian.PutUint64(runBuf[:], runIdx)
	h.Write(runBuf[:])
	h.Write([]byte(purpose))

	d := h.Digest()
	// Discard the leading `offset` bytes of the XOF stream so repeated
	// calls at increasing offsets never overlap.
	if offset > 0 {
		discard := make([]byte, offset)
		if _, err := d.Read(discard); err != nil {
			return nil, err
		}
	}
	out := make([]byte, n)
	if _, err := d.Read(out); err != nil {
		return nil, err
	}
	return out, nil
}

// GenerateKeyBytes returns n fresh pseudo-one-time-pad bytes for the
// channel's current run index.
func (s *Simulated) GenerateKeyBytes(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out, err := s.xofAt("otp", s.runIdx, s.byteOffset, n)
	if err != nil {
		return nil, err
	}
	s.byteOffset += uint64(n)
	return out, nil
}

// macKeyElements derives the (multiplier, offset) pairs for a Wegman-Carter
// polynomial MAC over a message of byteLen bytes at the given run index.
func (s *Simulated) macKeyElements(runIdx uint64, byteLen int) ([]field.Element, error) {
	need := runKeyLen(byteLen)
	raw, err := s.xofAt("mac-key", runIdx, 0, need*8)
	if err != nil {
		return nil, err
	}
	out := make([]field.Element, need)
	for i := range out {
		e, err := field.FromBytes(raw[i*8 : i*8+8])
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// computeMAC implements the Wegman-Carter polynomial MAC: the message is
// chunked into field-element blocks of up to macBatchElements elements;
// each block is evaluated as a polynomial at that block's secret
// multiplier point and blinded with a one-time secret offset, and the
// per-block tags are summed. Forgery probability is <= L/M61 per tag,
// where L is the message length in field elements (§4.3, §6.2).
func computeMAC(keys []field.Element, data []byte) field.Element {
	elems := bytesToElements(data)
	tag := field.Zero
	idx := 0
	for ki := 0; ki+1 < len(keys) && idx < len(elems); ki += 2 {
		a := keys[ki]
		b := keys[ki+1]
		end := idx + macBatchElements
		if end > len(elems) {
			end = len(elems)
		}
		block := elems[idx:end]
		tag = tag.Add(evalPolyAt(block, a).Add(b))
		idx = end
	}
	return tag
}

// evalPolyAt treats coeffs as polynomial coefficients (low-to-high) and
// evaluates via Horner's method at x.
func evalPolyAt(coeffs []field.Element, x field.Element) field.Element {
	result := field.Zero
	for i := len(coeffs) - 1; i >= 0; i-- {
		result = result.Mul(x).Add(coeffs[i])
	}
	return result
}

// bytesToElements packs data into 8-byte little-endian field elements,
// zero-padding the final partial block.
func bytesToElements(data []byte) []field.Element {
	n := (len(data) + 7) / 8
	out := make([]field.Element, n)
	for i := 0; i < n; i++ {
		var buf [8]byte
		start := i * 8
		end := start + 8
		if end > len(data) {
			end = len(data)
		}
		copy(buf[:], data[start:end])
		out[i] = field.New(binary.LittleEndian.Uint64(buf[:]))
	}
	return out
}

// MAC computes the channel's Wegman-Carter tag over data at the current
// run index.
func (s *Simulated) MAC(data []byte) (Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	keys, err := s.macKeyElements(s.runIdx, len(data))
	if err != nil {
		return 0, err
	}
	return computeMAC(keys, data), nil
}

// VerifyMAC checks data against tag at the given run index. Per §6.3,
// recipients must reject any message whose run index is less than the
// last-accepted run index on the channel.
func (s *Simulated) VerifyMAC(data []byte, tag Tag, runIdx uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if runIdx < s.runIdx {
		return ErrRunIndexReplay
	}
	keys, err := s.macKeyElements(runIdx, len(data))
	if err != nil {
		return err
	}
	want := computeMAC(keys, data)
	if !want.Equal(tag) {
		return ErrMACFailure
	}
	return nil
}

// AdvanceRun increments run_idx monotonically and resets the per-run byte
// offset, making previously issued key bytes non-reusable.
func (s *Simulated) AdvanceRun() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.runIdx++
	s.byteOffset = 0
	return nil
}

// RunIndex returns the channel's current run index.
func (s *Simulated) RunIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runIdx
}

// State reports the channel's lifecycle state.
func (s *Simulated) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close terminates the channel.
func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrChannelClosed
	}
	s.state = StateClosed
	return nil
}
