// Package node is Liun's per-identity orchestrator (§4.11): it binds the
// channel fabric (internal/overlay), trust (internal/trust), epoch
// rotation (internal/epoch), and the three peer-acquisition and signing
// protocols (protocols/bootstrap, protocols/introduction, protocols/uss)
// behind the stable public API §6.1 names. It is grounded on
// protocols/lss/lss.go's thin-orchestrator shape: a Config/Start alias
// layer over sub-package primitives, rather than a protocol of its own.
package node

import (
	"context"
	"errors"
	"time"

	"github.com/noospheer/liun/internal/epoch"
	"github.com/noospheer/liun/internal/overlay"
	"github.com/noospheer/liun/internal/trust"
	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/keychannel"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/pool"
	"github.com/noospheer/liun/protocols/bootstrap"
	"github.com/noospheer/liun/protocols/dkg"
	"github.com/noospheer/liun/protocols/introduction"
	"github.com/noospheer/liun/protocols/uss"
)

// ErrNoActiveEpoch is returned by Sign when no epoch has been established
// yet via Bootstrap's follow-on AdvanceEpoch call.
var ErrNoActiveEpoch = errors.New("node: no active epoch")

// ErrUnknownEpoch is returned by Verify when the referenced epoch id is
// neither current, the in-progress successor, nor within its post-cutover
// grace period.
var ErrUnknownEpoch = errors.New("node: epoch not available for verification")

// Node is one participant's local state: its identity, its view of the
// channel fabric, and the signing epoch it currently holds a share of
// (§3's Node entity; §6.1's operation table).
type Node struct {
	ID      party.ID
	Overlay *overlay.Overlay
	Epochs  *epoch.Manager
	pool    *pool.Pool
}

// New creates a Node for the given identity. gracePeriod is handed
// straight to epoch.NewManager (§4.10: how long a retired epoch remains
// valid for in-flight verifications after cutover).
func New(id party.ID, pl *pool.Pool, gracePeriod time.Duration) *Node {
	return &Node{
		ID:      id,
		Overlay: overlay.New(id),
		Epochs:  epoch.NewManager(gracePeriod),
		pool:    pl,
	}
}

// Bootstrap acquires this node's first channels by running §4.6 against a
// list of candidate peers, folding every resulting channel into the local
// Overlay. It fails with bootstrap.ErrNoCleanPath when not even one clean
// channel could be established, and with any other error that
// bootstrap.Bootstrap returns.
func (n *Node) Bootstrap(ctx context.Context, candidates []bootstrap.Candidate, routeCount int) error {
	channels, err := bootstrap.Bootstrap(ctx, candidates, routeCount, n.pool, nil)
	if err != nil {
		return err
	}
	for peer, ch := range channels {
		n.Overlay.OpenChannel(peer, ch)
	}
	return nil
}

// IntroduceTo runs §4.7 against a target peer this node does not yet
// share a channel with, using the Overlay's own mutual-contact view to
// pick introducers. generate is invoked once per introducer and is
// ordinarily a thin wrapper around a real RPC to that introducer
// (collecting the component it produced via introduction.GenerateComponent
// on its own side); tests and simulations may pass a local stand-in
// directly. On success the new channel is opened in this node's Overlay
// and also returned to the caller.
func (n *Node) IntroduceTo(ctx context.Context, target party.ID, minIntroducers int, generate func(ctx context.Context, introducer party.ID) (introduction.Component, error)) (keychannel.Channel, error) {
	mutual, err := n.Overlay.FindMutualContacts(target, minIntroducers)
	if err != nil {
		return nil, err
	}
	components, err := introduction.GatherComponents(ctx, mutual, n.pool, generate)
	if err != nil {
		return nil, err
	}
	ch, err := introduction.OpenIntroduced(target, components)
	if err != nil {
		return nil, err
	}
	n.Overlay.OpenChannel(target, ch)
	return ch, nil
}

// AdvanceEpoch drives §4.10's rotation: if no epoch is running yet it
// starts one directly, otherwise it runs run as the overlap DKG for
// epochID and immediately cuts over to it. Production callers build run
// by wiring protocols/dkg.Start through a protocol.MultiHandler across
// the live committee; tests may supply a local stand-in, as
// internal/epoch's own tests do.
func (n *Node) AdvanceEpoch(epochID uint64, degree, threshold int, run epoch.DKGRunner) error {
	if n.Epochs.Current() == nil {
		return n.Epochs.StartEpoch(epochID, degree, threshold, run)
	}
	if err := n.Epochs.BeginOverlap(epochID, degree, threshold, run); err != nil {
		return err
	}
	return n.Epochs.Cutover()
}

// Sign produces this node's partial signature over m for the given
// committee under the current epoch's share (§4.4, §6.1 "sign").
func (n *Node) Sign(m field.Element, committee party.IDSlice) (uss.PartialSignature, error) {
	cur := n.Epochs.Current()
	if cur == nil {
		return uss.PartialSignature{}, ErrNoActiveEpoch
	}
	return cur.Signer.PartialSign(m, committee)
}

// Combine is a direct pass-through to uss.Combine, exposed on Node so
// callers never need to import protocols/uss themselves for the common
// sign/combine/verify path.
func (n *Node) Combine(m field.Element, partials []uss.PartialSignature, k int) (uss.Signature, error) {
	return uss.Combine(m, partials, k)
}

// verificationPoints zips a dkg.Config's parallel VerificationPoints and
// VerificationValues slices into the []field.Point shape uss.Verify
// consumes.
func verificationPoints(cfg *dkg.Config) []field.Point {
	pts := make([]field.Point, len(cfg.VerificationPoints))
	for i := range cfg.VerificationPoints {
		pts[i] = field.Point{X: cfg.VerificationPoints[i], Y: cfg.VerificationValues[i]}
	}
	return pts
}

// Verify checks a completed USS signature against the verification
// points of the epoch it claims to belong to — current, in-progress
// successor, or still-graced retired epoch (§4.4, §4.10, §6.1 "verify").
// Fails with ErrUnknownEpoch if epochID names none of those.
func (n *Node) Verify(epochID uint64, m, sigma field.Element) (verified bool, insufficientPoints bool, err error) {
	ep, ok := n.Epochs.EpochForVerification(epochID)
	if !ok {
		return false, false, ErrUnknownEpoch
	}
	return uss.Verify(m, sigma, verificationPoints(ep.Config), ep.Degree)
}

// Dispute resolves a disagreement over a signature's validity by
// trust-weighting verifier reports against this node's own personalized
// PageRank view, seeded at itself (§4.4 resolve_dispute, §4.9, §6.1
// "dispute").
func (n *Node) Dispute(reports []uss.VerifierReport) uss.Verdict {
	vector := trust.PersonalizedPageRankDefault(n.Overlay.Snapshot(), n.ID)
	return uss.ResolveDispute(reports, vector)
}

// Trust returns this node's personalized PageRank view of the overlay,
// seeded at itself (§4.9, §6.1 "trust").
func (n *Node) Trust() trust.Vector {
	return trust.PersonalizedPageRankDefault(n.Overlay.Snapshot(), n.ID)
}
