// Package round provides the session/round abstraction that multi-round
// protocols are built from (protocols/dkg is the only one in this module;
// USS, Bootstrap and Peer Introduction are direct function calls): a
// Session advances through a fixed sequence of rounds,
// each producing outgoing Messages and consuming incoming ones, until a
// terminal Output or Abort round is reached.
package round

import (
	"errors"
	"fmt"

	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/pool"
)

// Number identifies a round within a session. Round 0 is reserved for
// abort notifications (§ wire format).
type Number int

// Content is the payload of a single round message.
type Content interface {
	RoundNumber() Number
}

// BroadcastContent is Content that must be reliably broadcast and
// identically observed by every party before the round can finalize.
// Embedding NormalBroadcastContent in a content struct satisfies this
// interface without any extra boilerplate.
type BroadcastContent interface {
	Content
	broadcastContent()
}

// NormalBroadcastContent is embedded by round content types that are
// broadcast (as opposed to sent point-to-point).
type NormalBroadcastContent struct{}

func (NormalBroadcastContent) broadcastContent() {}

// ErrInvalidContent is returned when a received message's content does
// not have the concrete type a round expects.
var ErrInvalidContent = errors.New("round: invalid content type")

// Message is a single round-level message, either addressed to one
// recipient (To set, Broadcast false) or to every party (Broadcast true).
type Message struct {
	From      party.ID
	To        party.ID
	Content   Content
	Broadcast bool
}

// Session is one round of a running protocol instance.
type Session interface {
	// Number is this round's number.
	Number() Number
	// SelfID is the local party's identifier.
	SelfID() party.ID
	// PartyIDs is every participant in the session, including self.
	PartyIDs() party.IDSlice
	// OtherPartyIDs is PartyIDs excluding self.
	OtherPartyIDs() party.IDSlice
	// N is len(PartyIDs()).
	N() int
	// SSID is the session's unique identifier, mixed into every hash and
	// MAC computed over its messages.
	SSID() []byte
	// ProtocolID names the protocol this session runs, e.g. "dkg/contribute".
	ProtocolID() string
	// FinalRoundNumber is the last round number before a terminal Output
	// or Abort round.
	FinalRoundNumber() Number
	// Hash returns a fresh Hasher seeded from the session's SSID, used to
	// compute this round's broadcast-verification hash.
	Hash() Hasher
	// MessageContent returns an empty instance of the point-to-point
	// content this round expects, or nil if it expects none.
	MessageContent() Content
	// VerifyMessage validates a received point-to-point message ahead of
	// storing it.
	VerifyMessage(msg Message) error
	// StoreMessage records a validated point-to-point message.
	StoreMessage(msg Message) error
	// Finalize is called once every expected message for this round has
	// arrived; it produces the next round (or a terminal Output/Abort)
	// and emits this round's outgoing messages on out.
	Finalize(out chan<- *Message) (Session, error)
}

// BroadcastRound is a Session whose round also carries a broadcast
// message that every party must observe identically.
type BroadcastRound interface {
	Session
	// BroadcastContent returns an empty instance of this round's
	// broadcast content.
	BroadcastContent() BroadcastContent
	// StoreBroadcastMessage records a validated broadcast message.
	StoreBroadcastMessage(msg Message) error
}

// Info carries the session-wide parameters a Helper is built from. Unlike
// the curve-parameterized protocols this framework was adapted from, every
// session here operates over the single fixed field GF(M61), so Info
// carries no group/curve selector.
type Info struct {
	ProtocolID       string
	FinalRoundNumber Number
	SelfID           party.ID
	PartyIDs         party.IDSlice
	Threshold        int
}

// Helper is embedded by every concrete round implementation; it supplies
// the session bookkeeping (identity, party set, SSID, pool access) common
// to all of them, so each round only implements the fields specific to
// its own step of the protocol.
type Helper struct {
	info      Info
	ssid      []byte
	pl        *pool.Pool
	hashState *hashState
}

// NewSession derives the session identifier from sessionID and info, and
// returns a Helper ready to be embedded in round 1 of a protocol.
func NewSession(info Info, sessionID []byte, pl *pool.Pool) (*Helper, error) {
	if len(info.PartyIDs) == 0 {
		return nil, errors.New("round: empty party set")
	}
	if !info.PartyIDs.Contains(info.SelfID) {
		return nil, errors.New("round: self not a party")
	}
	h := &Helper{
		info: info,
		pl:   pl,
	}
	h.ssid = deriveSSID(info, sessionID)
	h.hashState = newHashState(h.ssid)
	return h, nil
}

func (h *Helper) SelfID() party.ID              { return h.info.SelfID }
func (h *Helper) PartyIDs() party.IDSlice       { return h.info.PartyIDs.Sorted() }
func (h *Helper) N() int                        { return len(h.info.PartyIDs) }
func (h *Helper) SSID() []byte                  { return h.ssid }
func (h *Helper) ProtocolID() string            { return h.info.ProtocolID }
func (h *Helper) FinalRoundNumber() Number      { return h.info.FinalRoundNumber }
func (h *Helper) Threshold() int                { return h.info.Threshold }
func (h *Helper) Pool() *pool.Pool              { return h.pl }
func (h *Helper) Hash() Hasher                  { return h.hashState.clone() }

// OtherPartyIDs is PartyIDs excluding SelfID.
func (h *Helper) OtherPartyIDs() party.IDSlice {
	return h.info.PartyIDs.Sorted().Remove(h.info.SelfID)
}

// BroadcastMessage enqueues content to be sent to every other party.
func (h *Helper) BroadcastMessage(out chan<- *Message, content BroadcastContent) error {
	out <- &Message{
		From:      h.SelfID(),
		Content:   content,
		Broadcast: true,
	}
	return nil
}

// SendMessage enqueues content addressed to a single recipient.
func (h *Helper) SendMessage(out chan<- *Message, content Content, to party.ID) error {
	out <- &Message{
		From:    h.SelfID(),
		To:      to,
		Content: content,
	}
	return nil
}

// ResultRound builds the terminal Output round carrying result.
func (h *Helper) ResultRound(result interface{}) Session {
	return &Output{helper: h, Result: result}
}

// AbortRound builds the terminal Abort round blaming culprits for err.
func (h *Helper) AbortRound(err error, culprits ...party.ID) Session {
	return &Abort{helper: h, Err: err, Culprits: culprits}
}

// Output is the terminal successful round of a session.
type Output struct {
	helper *Helper
	Result interface{}
}

func (o *Output) Number() Number                  { return o.helper.FinalRoundNumber() + 1 }
func (o *Output) SelfID() party.ID                { return o.helper.SelfID() }
func (o *Output) PartyIDs() party.IDSlice         { return o.helper.PartyIDs() }
func (o *Output) OtherPartyIDs() party.IDSlice    { return o.helper.OtherPartyIDs() }
func (o *Output) N() int                          { return o.helper.N() }
func (o *Output) SSID() []byte                    { return o.helper.SSID() }
func (o *Output) ProtocolID() string              { return o.helper.ProtocolID() }
func (o *Output) FinalRoundNumber() Number        { return o.helper.FinalRoundNumber() }
func (o *Output) Hash() Hasher                    { return o.helper.Hash() }
func (o *Output) MessageContent() Content         { return nil }
func (o *Output) VerifyMessage(Message) error     { return nil }
func (o *Output) StoreMessage(Message) error      { return nil }
func (o *Output) Finalize(chan<- *Message) (Session, error) {
	return nil, fmt.Errorf("round: session already finished")
}

// Abort is the terminal failure round of a session.
type Abort struct {
	helper   *Helper
	Err      error
	Culprits []party.ID
}

func (a *Abort) Number() Number                  { return 0 }
func (a *Abort) SelfID() party.ID                { return a.helper.SelfID() }
func (a *Abort) PartyIDs() party.IDSlice         { return a.helper.PartyIDs() }
func (a *Abort) OtherPartyIDs() party.IDSlice    { return a.helper.OtherPartyIDs() }
func (a *Abort) N() int                          { return a.helper.N() }
func (a *Abort) SSID() []byte                    { return a.helper.SSID() }
func (a *Abort) ProtocolID() string              { return a.helper.ProtocolID() }
func (a *Abort) FinalRoundNumber() Number        { return a.helper.FinalRoundNumber() }
func (a *Abort) Hash() Hasher                    { return a.helper.Hash() }
func (a *Abort) MessageContent() Content         { return nil }
func (a *Abort) VerifyMessage(Message) error     { return nil }
func (a *Abort) StoreMessage(Message) error      { return nil }
func (a *Abort) Finalize(chan<- *Message) (Session, error) {
	return nil, fmt.Errorf("round: session aborted: %w", a.Err)
}
