package protocol_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noospheer/liun/internal/round"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/pool"
	"github.com/noospheer/liun/pkg/protocol"
)

// echoContent is broadcast in round 1 of the test protocol below.
type echoContent struct {
	round.NormalBroadcastContent
	Value int
}

func (echoContent) RoundNumber() round.Number { return 1 }

// echoRound1 broadcasts a single integer and collects every party's value.
type echoRound1 struct {
	*round.Helper
	value int

	mu     sync.Mutex
	values map[party.ID]int
}

func (r *echoRound1) Number() round.Number { return 1 }

func (r *echoRound1) BroadcastContent() round.BroadcastContent {
	return &echoContent{}
}

func (r *echoRound1) StoreBroadcastMessage(msg round.Message) error {
	content, ok := msg.Content.(*echoContent)
	if !ok {
		return round.ErrInvalidContent
	}
	r.mu.Lock()
	r.values[msg.From] = content.Value
	r.mu.Unlock()
	return nil
}

func (r *echoRound1) MessageContent() round.Content     { return nil }
func (r *echoRound1) VerifyMessage(round.Message) error { return nil }
func (r *echoRound1) StoreMessage(round.Message) error   { return nil }

func (r *echoRound1) Finalize(out chan<- *round.Message) (round.Session, error) {
	if err := r.BroadcastMessage(out, &echoContent{Value: r.value}); err != nil {
		return nil, err
	}
	// Messages the handler receives never include our own broadcast, so
	// record our own contribution directly.
	r.mu.Lock()
	r.values[r.SelfID()] = r.value
	r.mu.Unlock()
	// A plain field (not an embedded *echoRound1) so round 2 does not
	// inherit BroadcastContent/StoreBroadcastMessage and get mistaken for
	// a broadcast round of its own.
	return &echoRound2{Helper: r.Helper, mu: &r.mu, values: r.values}, nil
}

// echoRound2 has nothing of its own to send; it waits for round 1's
// broadcasts (already collected into the shared values map by the time
// the handler advances here) and produces the sum as the session result.
type echoRound2 struct {
	*round.Helper
	mu     *sync.Mutex
	values map[party.ID]int
}

func (r *echoRound2) Number() round.Number              { return 2 }
func (r *echoRound2) MessageContent() round.Content     { return nil }
func (r *echoRound2) VerifyMessage(round.Message) error { return nil }
func (r *echoRound2) StoreMessage(round.Message) error  { return nil }

func (r *echoRound2) Finalize(out chan<- *round.Message) (round.Session, error) {
	r.mu.Lock()
	sum := 0
	for _, v := range r.values {
		sum += v
	}
	r.mu.Unlock()
	return r.ResultRound(sum), nil
}

func echoStart(self party.ID, parties party.IDSlice, value int, pl *pool.Pool) protocol.StartFunc {
	return func(sessionID []byte) (round.Session, error) {
		info := round.Info{
			ProtocolID:       "test/echo",
			FinalRoundNumber: 2,
			SelfID:           self,
			PartyIDs:         parties,
			Threshold:        len(parties) - 1,
		}
		helper, err := round.NewSession(info, sessionID, pl)
		if err != nil {
			return nil, err
		}
		return &echoRound1{
			Helper: helper,
			value:  value,
			values: make(map[party.ID]int),
		}, nil
	}
}

func TestMultiHandlerEchoProtocolEndToEnd(t *testing.T) {
	parties := party.IDSlice{party.NewID(1), party.NewID(2), party.NewID(3)}
	values := map[party.ID]int{
		party.NewID(1): 10,
		party.NewID(2): 20,
		party.NewID(3): 30,
	}
	sessionID := []byte("echo-session")
	pl := pool.NewPool(0)
	defer pl.TearDown()

	handlers := make(map[party.ID]*protocol.MultiHandler, len(parties))
	initial := make(map[party.ID]*protocol.Message, len(parties))
	for _, id := range parties {
		h, err := protocol.NewMultiHandler(echoStart(id, parties, values[id], pl), sessionID)
		require.NoError(t, err)
		handlers[id] = h

		select {
		case msg := <-h.Listen():
			initial[id] = msg
		default:
			t.Fatalf("expected an initial broadcast message from %s", id)
		}
	}

	// Cross-deliver every party's round-1 broadcast to every other party.
	for from, msg := range initial {
		for to, h := range handlers {
			if to == from {
				continue
			}
			h.Accept(msg)
		}
	}

	want := 60
	for id, h := range handlers {
		result, err := h.Result()
		require.NoError(t, err, "party %s should have finished", id)
		assert.Equal(t, want, result)
	}
}

func TestCanAcceptRejectsMessageForWrongSSID(t *testing.T) {
	parties := party.IDSlice{party.NewID(1), party.NewID(2)}
	pl := pool.NewPool(0)
	defer pl.TearDown()

	h, err := protocol.NewMultiHandler(echoStart(party.NewID(1), parties, 1, pl), []byte("s"))
	require.NoError(t, err)

	bad := &protocol.Message{
		SSID:        []byte("wrong-ssid"),
		From:        party.NewID(2),
		Protocol:    "test/echo",
		RoundNumber: 1,
		Data:        []byte{},
		Broadcast:   true,
	}
	assert.False(t, h.CanAccept(bad))
}

func TestCanAcceptRejectsUnknownSender(t *testing.T) {
	parties := party.IDSlice{party.NewID(1), party.NewID(2)}
	pl := pool.NewPool(0)
	defer pl.TearDown()

	h, err := protocol.NewMultiHandler(echoStart(party.NewID(1), parties, 1, pl), []byte("s"))
	require.NoError(t, err)

	var msg *protocol.Message
	select {
	case m := <-h.Listen():
		msg = m
	default:
		t.Fatal("expected initial broadcast")
	}

	impostor := *msg
	impostor.From = party.NewID(99)
	assert.False(t, h.CanAccept(&impostor))
}
