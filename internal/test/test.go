// Package test provides small shared helpers for property and integration
// suites: building committees of party.IDs and driving a set of
// protocol.Handlers to completion over an in-memory message loop. Real
// transport (the actual network layer a deployed Node runs over) is out
// of scope per spec §1 Non-goals, so this is the harness every round-based
// protocol suite (DKG today) uses in place of one.
package test

import (
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/protocol"
)

// PartyIDs returns the committee {1, 2, ..., n}, the convention every
// round-based protocol test in this module builds its party set from.
func PartyIDs(n int) party.IDSlice {
	ids := make(party.IDSlice, n)
	for i := range ids {
		ids[i] = party.NewID(uint64(i + 1))
	}
	return ids
}

// RunNetwork drives handlers, one per party, to completion: it drains each
// handler's outgoing Listen() channel and delivers every message to every
// other handler it is addressed to (via Message.IsFor), looping until no
// handler has anything left to send. It returns each party's final Result,
// or the first error any party's Result reported.
func RunNetwork(handlers map[party.ID]protocol.Handler) (map[party.ID]interface{}, error) {
	pending := make(map[party.ID]bool, len(handlers))
	for id := range handlers {
		pending[id] = true
	}

	for len(pending) > 0 {
		progressed := false
		for id := range pending {
			h := handlers[id]
			select {
			case msg, ok := <-h.Listen():
				if !ok {
					delete(pending, id)
					progressed = true
					continue
				}
				progressed = true
				for to, other := range handlers {
					if to != id && msg.IsFor(to) {
						other.Accept(msg)
					}
				}
			default:
			}
		}
		if !progressed {
			break
		}
	}

	results := make(map[party.ID]interface{}, len(handlers))
	var firstErr error
	for id, h := range handlers {
		res, err := h.Result()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results[id] = res
	}
	return results, firstErr
}
