// Package dkg implements Liun's distributed key generation protocol:
// contribute, distribute, cross-verify, aggregate complaints, and combine
// (§4.5). Every value exchanged lives in GF(M61); there is no commitment
// scheme analogous to the teacher's g^coefficient Pedersen commitments,
// because an information-theoretically secure scheme cannot introduce a
// computationally-hiding primitive without breaking its own security
// model. Cross-verification instead relies on honest nodes forwarding
// what they received so a corrupt contributor's inconsistent polynomial
// is caught by comparison, never by opening a commitment.
package dkg

import (
	"errors"

	"github.com/noospheer/liun/internal/round"
	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/keychannel"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/pool"
	"github.com/noospheer/liun/pkg/protocol"
	"github.com/noospheer/liun/pkg/shamir"
)

// ErrDKGFailed is returned (wrapped with detail) when a session cannot
// produce a combined share, per §7's error taxonomy.
var ErrDKGFailed = errors.New("dkg: failed")

// ErrTooManyExcluded is returned when excluding suspected contributors
// would leave fewer than the threshold number of contributors, making a
// combined share meaningless.
var ErrTooManyExcluded = errors.New("dkg: too many contributors excluded")

// Config is the result of a successful DKG session: the local node's
// combined signing share and the agreed public verification points.
type Config struct {
	ID                 party.ID
	Threshold          int
	Generation         uint64
	PartyIDs           party.IDSlice
	Excluded           party.IDSlice
	SigningShare       field.Element
	VerificationPoints []field.Element
	VerificationValues []field.Element // F_combined(VerificationPoints[i])
}

// complaintThreshold returns t, the maximum number of complaints against
// a single contributor that does not trigger exclusion (t < n/3, §4.5).
func complaintThreshold(n int) int {
	t := (n - 1) / 3
	if t < 0 {
		t = 0
	}
	return t
}

// sessionState holds every field the round chain reads or mutates.
// Every round type embeds *round.Helper plus a pointer to a shared
// sessionState rather than embedding the previous round type directly:
// embedding round1 (a real BroadcastRound) into round2 would promote its
// BroadcastContent/StoreBroadcastMessage methods and make round2 satisfy
// round.BroadcastRound by accident, leaving the handler waiting forever
// for a round-2 broadcast that is never sent. A shared pointer carries
// the same state forward without that hazard.
type sessionState struct {
	channels map[party.ID]keychannel.Channel

	poly                *field.Polynomial
	shares              map[party.ID]field.Element // this node's own f_i(j) for each j
	verificationPoints  []field.Element
	ownVerificationVals []field.Element

	verifContributions map[party.ID][]field.Element        // round 1: contributor -> its public evaluations
	receivedShares     map[party.ID]field.Element           // round 2: contributor -> f_contributor(self)
	forwardsByHolder   map[party.ID][]ForwardedShare        // round 3: holder -> forwarded (contributor, value) pairs
	suspectsByReporter map[party.ID][]party.ID              // round 4: reporter -> suspected contributors
}

// Start initiates a DKG session. channels must hold an open keychannel to
// every other committee member, keyed by peer ID. verificationPoints are
// the agreed public evaluation arguments (§4.5 step 7); callers
// conventionally pick them disjoint from the committee's own indices
// (e.g. n+1, n+2, ...).
func Start(info round.Info, pl *pool.Pool, channels map[party.ID]keychannel.Channel, verificationPoints []field.Element) protocol.StartFunc {
	return func(sessionID []byte) (round.Session, error) {
		helper, err := round.NewSession(info, sessionID, pl)
		if err != nil {
			return nil, err
		}

		degree := helper.Threshold() - 1
		secret, err := field.Random()
		if err != nil {
			return nil, err
		}
		poly, err := field.NewRandomPolynomial(degree, secret)
		if err != nil {
			return nil, err
		}

		shares := make(map[party.ID]field.Element, helper.N())
		for _, id := range helper.PartyIDs() {
			x, err := id.Element()
			if err != nil {
				return nil, err
			}
			shares[id] = poly.Evaluate(x)
		}

		verifValues := make([]field.Element, len(verificationPoints))
		for i, v := range verificationPoints {
			verifValues[i] = poly.Evaluate(v)
		}

		st := &sessionState{
			channels:            channels,
			poly:                poly,
			shares:              shares,
			verificationPoints:  verificationPoints,
			ownVerificationVals: verifValues,
			verifContributions:  make(map[party.ID][]field.Element),
			receivedShares:      make(map[party.ID]field.Element),
			forwardsByHolder:    make(map[party.ID][]ForwardedShare),
			suspectsByReporter:  make(map[party.ID][]party.ID),
		}

		return &round1{Helper: helper, st: st}, nil
	}
}

func encodeShare(s field.Element) []byte {
	b := s.Bytes()
	return b[:]
}

func encodeForwards(forwards []ForwardedShare) []byte {
	out := make([]byte, 0, 16*len(forwards))
	for _, f := range forwards {
		out = append(out, []byte(f.Contributor)...)
		b := f.Share.Bytes()
		out = append(out, b[:]...)
	}
	return out
}

// shareConsistencyCheck applies pkg/shamir's majority-vote detection to
// the (holder, value) points collected for a single contributor's
// polynomial and reports whether they are all mutually consistent.
func shareConsistencyCheck(points []shamir.Share, k int) bool {
	_, bad := shamir.ConsistencyCheck(points, k)
	return len(bad) == 0
}
