// Package keychannel defines the abstract ITS key-channel capability set
// consumed by the rest of the module and a simulated implementation of it.
// The core never depends on a concrete channel technology: it depends on
// the capability set {open, generate_key_bytes, mac, verify_mac,
// advance_run, close} so a physics-backed Liu-protocol channel can later
// implement the same Channel interface without touching callers (§4.3,
// §9 "Polymorphism over KeyChannel").
package keychannel

import (
	"errors"
	"sync"

	"github.com/noospheer/liun/pkg/field"
)

// ErrChannelClosed is returned by every method once a Channel has been
// closed; closing is terminal (§4.3 requirement iii).
var ErrChannelClosed = errors.New("keychannel: channel closed")

// ErrRunIndexReplay is returned by VerifyMAC when a tag's run index is
// less than the last-accepted run index on the channel (§6.3).
var ErrRunIndexReplay = errors.New("keychannel: run index replay")

// ErrMACFailure is returned by VerifyMAC when the tag does not match.
var ErrMACFailure = errors.New("keychannel: mac verification failed")

// State is a KeyChannel's lifecycle state (§3's KeyChannel type row).
type State int

const (
	StateActive State = iota
	StateIdle
	StateClosed
)

// Tag is a Wegman-Carter MAC output, a single field element.
type Tag = field.Element

// Channel is the abstract ITS key-channel capability set. Both endpoints
// of a channel, given the same PSK, derive identical byte streams and MAC
// outputs for the same run index and inputs (§4.3 requirement i).
type Channel interface {
	// GenerateKeyBytes returns n fresh pseudo-one-time-pad bytes for the
	// channel's current run index.
	GenerateKeyBytes(n int) ([]byte, error)
	// MAC computes the Wegman-Carter tag over data at the current run
	// index.
	MAC(data []byte) (Tag, error)
	// VerifyMAC checks data against tag at the given run index, rejecting
	// replayed or stale run indices per §6.3.
	VerifyMAC(data []byte, tag Tag, runIdx uint64) error
	// AdvanceRun increments the channel's run index, monotonically,
	// making previously generated key bytes non-reusable.
	AdvanceRun() error
	// RunIndex returns the channel's current run index.
	RunIndex() uint64
	// State reports the channel's lifecycle state.
	State() State
	// Close terminates the channel. Terminal: all other methods fail
	// with ErrChannelClosed afterward.
	Close() error
}

// Open creates an active Simulated channel whose two endpoints will derive
// identical byte streams from pskBytes, as required by any Channel
// implementation. Both sides of a logical channel must call Open with the
// same pskBytes.
func Open(peerID string, pskBytes []byte) (Channel, error) {
	return newSimulated(peerID, pskBytes)
}

var _ Channel = (*Simulated)(nil)

// macBatchElements is the number of field elements folded into a single
// Wegman-Carter tag per call. L in the spec's forgery-probability bound
// (forgery probability <= L/M61 per tag) is this value.
const macBatchElements = 4096

// runKeyLen returns how many field elements of key material are needed to
// MAC a message of the given byte length: one "multiplier" element plus
// one "offset" element per macBatchElements-sized block of the message,
// the standard Wegman-Carter polynomial-MAC key schedule.
func runKeyLen(dataLen int) int {
	elems := (dataLen + 7) / 8
	blocks := (elems + macBatchElements - 1) / macBatchElements
	if blocks == 0 {
		blocks = 1
	}
	return 2 * blocks
}

var (
	errNegativeLength = errors.New("keychannel: negative length")
)

// guard centralizes the close/runIdx bookkeeping shared by every method.
type guard struct {
	mu     sync.Mutex
	state  State
	runIdx uint64
}

func (g *guard) checkOpen() error {
	if g.state == StateClosed {
		return ErrChannelClosed
	}
	return nil
}
