// Package uss implements Liun's unconditionally-secure threshold
// signature scheme (§4.4): partial signing, combination, verification,
// dispute resolution, and signature-budget enforcement. Unlike
// protocols/dkg, USS signing needs no multi-round Byzantine agreement —
// every operation is a direct Lagrange-algebra computation over shares
// the DKG already distributed — so this package is grounded on
// protocols/lss/sign's round *shape* (nonce round, partial round,
// combine round) with the nonce dropped: USS has no ECDSA-style blinding
// nonce, sign(m) is a pure evaluation of the secret polynomial at m.
package uss

import (
	"errors"
	"sync"

	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/party"
)

// ErrInvalidCommittee is returned by PartialSign when the signer is not a
// member of the committee it was asked to sign for.
var ErrInvalidCommittee = errors.New("uss: signer not in committee")

// ErrBudgetExhausted is returned when the local signature budget for the
// current epoch is already at its cap (§4.4, §7).
var ErrBudgetExhausted = errors.New("uss: signature budget exhausted")

// ErrInsufficientShares is returned by Combine when fewer than the
// committee threshold's worth of partial signatures are supplied.
var ErrInsufficientShares = errors.New("uss: insufficient partial signatures")

// PartialSignature is one committee member's contribution to a combined
// signature: s_j * L_j(m).
type PartialSignature struct {
	Signer party.ID
	Value  field.Element
}

// Signature is a completed USS signature: sigma = F(m) iff authentic.
type Signature struct {
	Message field.Element
	Sigma   field.Element
}

// SignatureBudget tracks how many distinct messages a signer has produced
// partial signatures for within the current epoch. Per §4.4 and the
// Open Question in Design Notes §9, duplicate messages never consume
// budget: re-signing the same message reveals no new evaluation point of
// F, so only the set of distinct messages counts against the cap.
type SignatureBudget struct {
	mu    sync.Mutex
	seen  map[field.Element]struct{}
	count int
	max   int
}

// NewSignatureBudget creates a budget capped at S_max = degree/2, the
// bound past which an adversary holding that many signatures plus its
// own corrupt shares could reach the d+1 evaluations needed to forge
// (§4.4 "SignatureBudget.consume").
func NewSignatureBudget(degree int) *SignatureBudget {
	return &SignatureBudget{
		seen: make(map[field.Element]struct{}),
		max:  degree / 2,
	}
}

// Max returns S_max.
func (b *SignatureBudget) Max() int {
	return b.max
}

// Consumed returns the number of distinct messages signed so far.
func (b *SignatureBudget) Consumed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Consume records message m against the budget, returning
// ErrBudgetExhausted if m is new and the cap is already reached.
// Re-consuming a previously seen message always succeeds without
// incrementing the counter.
func (b *SignatureBudget) Consume(m field.Element) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.seen[m]; ok {
		return nil
	}
	if b.count >= b.max {
		return ErrBudgetExhausted
	}
	b.seen[m] = struct{}{}
	b.count++
	return nil
}

// Signer holds one node's USS signing state: its combined signing share
// s_j = F(j) and the per-epoch signature budget that share is subject to.
type Signer struct {
	ID     party.ID
	Share  field.Element
	Budget *SignatureBudget
}

// NewSigner builds a Signer for a combined signing share produced by
// protocols/dkg, with a budget sized to the DKG's polynomial degree.
func NewSigner(id party.ID, share field.Element, degree int) *Signer {
	return &Signer{ID: id, Share: share, Budget: NewSignatureBudget(degree)}
}

// PartialSign computes this signer's contribution to a threshold
// signature over message m for the given committee (§4.4): the Lagrange
// basis coefficient L_j(m) times the signer's share. Fails with
// ErrInvalidCommittee if the signer is not in committee, or with
// ErrBudgetExhausted if the local budget is already at its cap.
func (s *Signer) PartialSign(m field.Element, committee party.IDSlice) (PartialSignature, error) {
	if !committee.Contains(s.ID) {
		return PartialSignature{}, ErrInvalidCommittee
	}
	if err := s.Budget.Consume(m); err != nil {
		return PartialSignature{}, err
	}

	xs, err := committee.Elements()
	if err != nil {
		return PartialSignature{}, err
	}
	selfX, err := s.ID.Element()
	if err != nil {
		return PartialSignature{}, err
	}

	basis, err := field.LagrangeBasisAt(xs, m)
	if err != nil {
		return PartialSignature{}, err
	}
	lj, ok := basis[selfX]
	if !ok {
		return PartialSignature{}, ErrInvalidCommittee
	}

	return PartialSignature{Signer: s.ID, Value: s.Share.Mul(lj)}, nil
}

// Combine sums committee partial signatures into sigma = F(m), exact by
// the Lagrange identity when at least k honest partials are present
// (§4.4). Fails with ErrInsufficientShares if fewer than k partials are
// given.
func Combine(m field.Element, partials []PartialSignature, k int) (Signature, error) {
	if len(partials) < k {
		return Signature{}, ErrInsufficientShares
	}
	sigma := field.Zero
	for _, p := range partials {
		sigma = sigma.Add(p.Value)
	}
	return Signature{Message: m, Sigma: sigma}, nil
}

// Verify checks a USS signature against a set of public verification
// points V (§4.4). It requires |V| > degree to interpolate the unique
// degree-d polynomial and check every remaining point (including
// (m, sigma)) against it. When |V| <= degree, verification is defined as
// vacuously true but insufficientPoints is set; callers MUST treat that
// case as unverified (§4.4: "no caller may treat vacuous as verified").
func Verify(m, sigma field.Element, v []field.Point, degree int) (verified bool, insufficientPoints bool, err error) {
	if len(v) <= degree {
		return true, true, nil
	}

	basisPoints := v[:degree+1]
	for _, p := range v[degree+1:] {
		val, err := field.LagrangeInterpolateAt(basisPoints, p.X)
		if err != nil {
			return false, false, err
		}
		if !val.Equal(p.Y) {
			return false, false, nil
		}
	}

	val, err := field.LagrangeInterpolateAt(basisPoints, m)
	if err != nil {
		return false, false, err
	}
	return val.Equal(sigma), false, nil
}

// VerifierReport is one verifier's attestation in a dispute (§4.4
// resolve_dispute).
type VerifierReport struct {
	Verifier party.ID
	Accepted bool
}

// Verdict is the outcome of ResolveDispute.
type Verdict int

const (
	VerdictValid Verdict = iota
	VerdictForged
)

func (v Verdict) String() string {
	if v == VerdictForged {
		return "forged"
	}
	return "valid"
}

// ResolveDispute tallies trust-weighted verifier reports and returns
// VerdictForged iff weighted rejection is at least weighted acceptance
// (§4.4). Verifiers with no entry in trust are treated as carrying zero
// weight, so an unknown reporter cannot swing the outcome.
func ResolveDispute(reports []VerifierReport, trust map[party.ID]float64) Verdict {
	var accept, reject float64
	for _, r := range reports {
		w := trust[r.Verifier]
		if r.Accepted {
			accept += w
		} else {
			reject += w
		}
	}
	if reject >= accept {
		return VerdictForged
	}
	return VerdictValid
}
