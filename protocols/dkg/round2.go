package dkg

import (
	"github.com/noospheer/liun/internal/round"
	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/keychannel"
)

// round2 is Distribute: every node sends its share of the secret
// polynomial, f_i(j), privately to each other party j, MAC-authenticated
// over the i<->j channel (§4.5 step 2).
//
// round2 embeds *round.Helper, not *round1: round1 defines
// BroadcastContent/StoreBroadcastMessage for real, so embedding it here
// would promote those methods and make round2 satisfy
// round.BroadcastRound by accident, stalling the handler on a round-2
// broadcast this round never sends (see sessionState's doc comment).
type round2 struct {
	*round.Helper
	st *sessionState
}

type distributeMessage2 struct {
	Share field.Element
	MAC   keychannel.Tag
}

func (distributeMessage2) RoundNumber() round.Number { return 2 }

func (r *round2) Number() round.Number { return 2 }

func (r *round2) MessageContent() round.Content { return &distributeMessage2{} }

func (r *round2) VerifyMessage(msg round.Message) error {
	body, ok := msg.Content.(*distributeMessage2)
	if !ok {
		return round.ErrInvalidContent
	}
	ch, ok := r.st.channels[msg.From]
	if !ok {
		return keychannel.ErrChannelClosed
	}
	return ch.VerifyMAC(encodeShare(body.Share), body.MAC, ch.RunIndex())
}

func (r *round2) StoreMessage(msg round.Message) error {
	body, ok := msg.Content.(*distributeMessage2)
	if !ok {
		return round.ErrInvalidContent
	}
	r.st.receivedShares[msg.From] = body.Share
	return nil
}

func (r *round2) Finalize(out chan<- *round.Message) (round.Session, error) {
	for _, id := range r.OtherPartyIDs() {
		share := r.st.shares[id]
		ch, ok := r.st.channels[id]
		if !ok {
			return nil, keychannel.ErrChannelClosed
		}
		tag, err := ch.MAC(encodeShare(share))
		if err != nil {
			return nil, err
		}
		if err := r.SendMessage(out, &distributeMessage2{Share: share, MAC: tag}, id); err != nil {
			return nil, err
		}
	}

	r.st.receivedShares[r.SelfID()] = r.st.shares[r.SelfID()]

	return &round3{Helper: r.Helper, st: r.st}, nil
}
