// Package introduction implements Liun's peer-introduction protocol
// (§4.7): m mutual contacts each contribute a uniform PSK component over
// their existing channels, and the two endpoints combine the components
// by XOR to seed a brand-new direct channel. It is grounded on
// protocols/lss/jvss.JVSS's GenerateShares/CombineShares shape,
// simplified from verifiable polynomial shares to plain XOR combination
// since each introducer contributes one independent uniform value rather
// than a point on a shared polynomial (§4.7: "no polynomial is needed").
package introduction

import (
	"context"
	"crypto/rand"
	"errors"

	"github.com/cronokirby/saferith"

	"github.com/noospheer/liun/pkg/expand"
	"github.com/noospheer/liun/pkg/keychannel"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/pool"
)

// ErrNoIntroducers is returned when no honest introducer's channel is
// available (§4.7 Failure).
var ErrNoIntroducers = errors.New("introduction: no usable introducers")

// ErrMinimumIntroducers is returned when fewer than the minimum of 3
// mutual contacts are supplied (§4.7's m >= 3 precondition).
var ErrMinimumIntroducers = errors.New("introduction: fewer than 3 mutual contacts")

// componentLen is the width of each introducer's contributed PSK
// component in bytes (256 bits, §4.7 step 1).
const componentLen = 32

// Component is one introducer's contribution to PSK_AC, authenticated by
// the channel it arrived over.
type Component struct {
	Introducer party.ID
	Value      []byte
}

// GenerateComponent samples introducer B_i's uniform 256-bit contribution
// (§4.7 step 1). The same saferith.Nat path bootstrap.randomSecret uses
// backs the sampling, since both are byte-oriented secrets outside
// GF(M61).
func GenerateComponent(introducer party.ID) (Component, error) {
	buf := make([]byte, componentLen)
	if _, err := rand.Read(buf); err != nil {
		return Component{}, err
	}
	nat := new(saferith.Nat).SetBytes(buf)
	out := nat.Bytes()
	if len(out) < componentLen {
		padded := make([]byte, componentLen)
		copy(padded[componentLen-len(out):], out)
		out = padded
	}
	return Component{Introducer: introducer, Value: out[len(out)-componentLen:]}, nil
}

// Introducer distributes one mutual contact's contribution: it is sent
// to both A and C over the two channels the introducer already holds,
// each authenticated by that channel's own MAC, and the introducer's
// exported Component is what the rest of this package combines (§4.7
// step 2). Distribute returns the MAC tags so a caller doing real
// transport can attach them to the wire message; Component.Value is
// never sent unauthenticated.
func (c Component) Distribute(toA, toC keychannel.Channel) (macToA, macToC keychannel.Tag, err error) {
	macToA, err = toA.MAC(c.Value)
	if err != nil {
		return 0, 0, err
	}
	macToC, err = toC.MAC(c.Value)
	if err != nil {
		return 0, 0, err
	}
	return macToA, macToC, nil
}

// VerifyComponent checks a received component's MAC before it is folded
// into the combination, rejecting anything not authenticated by the
// channel it claims to have arrived over.
func VerifyComponent(ch keychannel.Channel, c Component, tag keychannel.Tag, runIdx uint64) error {
	return ch.VerifyMAC(c.Value, tag, runIdx)
}

// CombinePSK XORs every introducer's component into PSK_AC (§4.7 step
// 3). Per the security contract, as long as at least one introducer is
// honest the result is ε-close to uniform from the adversary's view; a
// component from even a single honest introducer randomizes the whole
// XOR. Fails with ErrNoIntroducers if no components are given, and with
// ErrMinimumIntroducers if fewer than 3 mutual contacts contributed.
func CombinePSK(components []Component) ([]byte, error) {
	if len(components) == 0 {
		return nil, ErrNoIntroducers
	}
	if len(components) < 3 {
		return nil, ErrMinimumIntroducers
	}
	out := make([]byte, componentLen)
	for _, c := range components {
		if len(c.Value) != componentLen {
			return nil, errors.New("introduction: malformed component length")
		}
		for i := range out {
			out[i] ^= c.Value[i]
		}
	}
	return out, nil
}

// DerivePSK expands the combined PSK_AC seed to full Liu-PSK length via
// the Toeplitz-style expander (§4.7 step 4).
func DerivePSK(pskAC []byte) ([]byte, error) {
	return expand.PSK(pskAC, expand.ChannelPSKLen)
}

// OpenIntroduced combines the collected components, expands the result,
// and opens the direct A<->C channel (§4.7 step 5). Both A and C call
// this with the same components (gathered independently over their own
// channels to each introducer) and arrive at identical channels, exactly
// as the XOR combination in scenario S4 demonstrates.
func OpenIntroduced(peer party.ID, components []Component) (keychannel.Channel, error) {
	pskAC, err := CombinePSK(components)
	if err != nil {
		return nil, err
	}
	psk, err := DerivePSK(pskAC)
	if err != nil {
		return nil, err
	}
	return keychannel.Open(string(peer), psk)
}

// GatherComponents fans out component generation across every introducer
// concurrently (§5: peer introduction requests are naturally concurrent),
// calling generate once per introducer — ordinarily GenerateComponent run
// on the introducer's side and delivered back over the introducer's
// channel, modeled here as a single pluggable callback so both real
// transport and in-process simulation share one code path.
func GatherComponents(ctx context.Context, introducers party.IDSlice, pl *pool.Pool, generate func(ctx context.Context, introducer party.ID) (Component, error)) ([]Component, error) {
	if len(introducers) < 3 {
		return nil, ErrMinimumIntroducers
	}
	components := make([]Component, len(introducers))
	failed := make([]bool, len(introducers))
	err := pl.Parallel(ctx, len(introducers), func(ctx context.Context, i int) error {
		c, err := generate(ctx, introducers[i])
		if err != nil {
			failed[i] = true
			return nil
		}
		components[i] = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]Component, 0, len(components))
	for i, c := range components {
		if !failed[i] {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoIntroducers
	}
	return out, nil
}
