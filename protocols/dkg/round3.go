package dkg

import (
	"github.com/noospheer/liun/internal/round"
	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/keychannel"
	"github.com/noospheer/liun/pkg/party"
)

// round3 is Cross-verify: every node forwards what it holds of each
// contributor's polynomial to every other party, so a contributor that
// sent inconsistent shares can be caught by comparison (§4.5 step 3).
type round3 struct {
	*round.Helper
	st *sessionState
}

// ForwardedShare is one (contributor, value) pair a holder is forwarding.
type ForwardedShare struct {
	Contributor party.ID
	Share       field.Element
}

func (r *round3) Number() round.Number { return 3 }

type crossVerifyMessage3 struct {
	Forwards []ForwardedShare
	MAC      keychannel.Tag
}

func (crossVerifyMessage3) RoundNumber() round.Number { return 3 }

func (r *round3) MessageContent() round.Content { return &crossVerifyMessage3{} }

func (r *round3) VerifyMessage(msg round.Message) error {
	body, ok := msg.Content.(*crossVerifyMessage3)
	if !ok {
		return round.ErrInvalidContent
	}
	ch, ok := r.st.channels[msg.From]
	if !ok {
		return keychannel.ErrChannelClosed
	}
	return ch.VerifyMAC(encodeForwards(body.Forwards), body.MAC, ch.RunIndex())
}

func (r *round3) StoreMessage(msg round.Message) error {
	body, ok := msg.Content.(*crossVerifyMessage3)
	if !ok {
		return round.ErrInvalidContent
	}
	r.st.forwardsByHolder[msg.From] = body.Forwards
	return nil
}

func (r *round3) Finalize(out chan<- *round.Message) (round.Session, error) {
	forwards := make([]ForwardedShare, 0, r.N())
	for _, contributor := range r.PartyIDs() {
		forwards = append(forwards, ForwardedShare{
			Contributor: contributor,
			Share:       r.st.receivedShares[contributor],
		})
	}

	for _, id := range r.OtherPartyIDs() {
		ch, ok := r.st.channels[id]
		if !ok {
			return nil, keychannel.ErrChannelClosed
		}
		tag, err := ch.MAC(encodeForwards(forwards))
		if err != nil {
			return nil, err
		}
		if err := r.SendMessage(out, &crossVerifyMessage3{Forwards: forwards, MAC: tag}, id); err != nil {
			return nil, err
		}
	}

	r.st.forwardsByHolder[r.SelfID()] = forwards

	return &round4{Helper: r.Helper, st: r.st}, nil
}
