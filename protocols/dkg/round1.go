package dkg

import (
	"errors"

	"github.com/noospheer/liun/internal/round"
	"github.com/noospheer/liun/pkg/field"
)

// round1 is Contribute: each node has already sampled its polynomial (in
// Start) and now broadcasts its evaluations at the agreed public
// verification points, the DKG analogue of the teacher's commitment
// broadcast.
type round1 struct {
	*round.Helper
	st *sessionState
}

type verifContribution1 struct {
	round.NormalBroadcastContent
	Values []field.Element
}

func (verifContribution1) RoundNumber() round.Number { return 1 }

func (r *round1) Number() round.Number { return 1 }

func (r *round1) BroadcastContent() round.BroadcastContent {
	return &verifContribution1{}
}

func (r *round1) StoreBroadcastMessage(msg round.Message) error {
	body, ok := msg.Content.(*verifContribution1)
	if !ok {
		return round.ErrInvalidContent
	}
	if len(body.Values) != len(r.st.verificationPoints) {
		return errors.New("dkg: wrong number of verification values")
	}
	r.st.verifContributions[msg.From] = body.Values
	return nil
}

func (r *round1) MessageContent() round.Content     { return nil }
func (r *round1) VerifyMessage(round.Message) error { return nil }
func (r *round1) StoreMessage(round.Message) error  { return nil }

func (r *round1) Finalize(out chan<- *round.Message) (round.Session, error) {
	if err := r.BroadcastMessage(out, &verifContribution1{Values: r.st.ownVerificationVals}); err != nil {
		return nil, err
	}
	r.st.verifContributions[r.SelfID()] = r.st.ownVerificationVals

	return &round2{Helper: r.Helper, st: r.st}, nil
}
