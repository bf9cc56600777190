package dkg

import (
	"github.com/noospheer/liun/internal/round"
	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/party"
)

// round5 is Combine (§4.5 steps 5-7): tally complaints, exclude any
// contributor with more than t accusations, sum the surviving shares into
// the combined signing share and verification values.
//
// Like round2 and round3, round5 embeds *round.Helper rather than
// *round4 for the same reason: round4 is a real BroadcastRound and
// embedding it would promote that into round5 by accident.
type round5 struct {
	*round.Helper
	st *sessionState
}

func (r *round5) Number() round.Number { return 5 }

func (r *round5) MessageContent() round.Content     { return nil }
func (r *round5) VerifyMessage(round.Message) error { return nil }
func (r *round5) StoreMessage(round.Message) error  { return nil }

// excluded tallies each contributor's complaint count and returns those
// exceeding t = complaintThreshold(n) = (n-1)/3, the largest integer
// below n/3 (§4.5 step 5).
func (r *round5) excluded() party.IDSlice {
	t := complaintThreshold(r.N())
	counts := make(map[party.ID]int, r.N())
	for _, suspects := range r.st.suspectsByReporter {
		for _, s := range suspects {
			counts[s]++
		}
	}
	var out party.IDSlice
	for id, count := range counts {
		if count > t {
			out = append(out, id)
		}
	}
	return out.Sorted()
}

func (r *round5) Finalize(chan<- *round.Message) (round.Session, error) {
	excluded := r.excluded()
	survivors := r.PartyIDs()
	for _, ex := range excluded {
		survivors = survivors.Remove(ex)
	}
	if len(survivors) < r.Threshold() {
		return r.AbortRound(ErrTooManyExcluded), nil
	}

	combinedShare := field.Zero
	for _, id := range survivors {
		combinedShare = combinedShare.Add(r.st.receivedShares[id])
	}

	verifValues := make([]field.Element, len(r.st.verificationPoints))
	for _, id := range survivors {
		contribution := r.st.verifContributions[id]
		for i := range verifValues {
			if i < len(contribution) {
				verifValues[i] = verifValues[i].Add(contribution[i])
			}
		}
	}

	config := &Config{
		ID:                 r.SelfID(),
		Threshold:          r.Threshold(),
		Generation:         1,
		PartyIDs:           r.PartyIDs(),
		Excluded:           excluded,
		SigningShare:       combinedShare,
		VerificationPoints: append([]field.Element(nil), r.st.verificationPoints...),
		VerificationValues: verifValues,
	}
	return r.ResultRound(config), nil
}
