package dkg

import (
	"github.com/noospheer/liun/internal/round"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/shamir"
)

// round4 is Local consistency + Aggregate complaints (§4.5 steps 4-5):
// each node checks every contributor's forwarded evaluations for mutual
// consistency and broadcasts the set of contributors it suspects.
type round4 struct {
	*round.Helper
	st *sessionState
}

type suspectMessage4 struct {
	round.NormalBroadcastContent
	Suspects []party.ID
}

func (suspectMessage4) RoundNumber() round.Number { return 4 }

func (r *round4) Number() round.Number { return 4 }

func (r *round4) BroadcastContent() round.BroadcastContent {
	return &suspectMessage4{}
}

func (r *round4) StoreBroadcastMessage(msg round.Message) error {
	body, ok := msg.Content.(*suspectMessage4)
	if !ok {
		return round.ErrInvalidContent
	}
	r.st.suspectsByReporter[msg.From] = body.Suspects
	return nil
}

func (r *round4) MessageContent() round.Content     { return nil }
func (r *round4) VerifyMessage(round.Message) error { return nil }
func (r *round4) StoreMessage(round.Message) error  { return nil }

// localSuspects runs the leave-one-out consistency check against every
// contributor's polynomial using the points this node has collected:
// its own directly-received share plus every holder's forwarded value.
func (r *round4) localSuspects() []party.ID {
	var suspects []party.ID
	for _, contributor := range r.PartyIDs() {
		points := make([]shamir.Share, 0, r.N())
		for holder, forwards := range r.st.forwardsByHolder {
			x, err := holder.Element()
			if err != nil {
				continue
			}
			for _, f := range forwards {
				if f.Contributor == contributor {
					points = append(points, shamir.Share{X: x, Y: f.Share})
				}
			}
		}
		if len(points) < r.Threshold()+1 {
			// Not enough cross-verified observations to judge yet; do
			// not accuse on insufficient evidence (§4.5: honest sender
			// never excluded).
			continue
		}
		if !shareConsistencyCheck(points, r.Threshold()) {
			suspects = append(suspects, contributor)
		}
	}
	return suspects
}

func (r *round4) Finalize(out chan<- *round.Message) (round.Session, error) {
	suspects := r.localSuspects()
	if err := r.BroadcastMessage(out, &suspectMessage4{Suspects: suspects}); err != nil {
		return nil, err
	}
	r.st.suspectsByReporter[r.SelfID()] = suspects

	return &round5{Helper: r.Helper, st: r.st}, nil
}
