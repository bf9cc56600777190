// Package trust computes personalized PageRank with restart over a
// node's own overlay.Snapshot and the trust-weighted acceptance decision
// built on top of it (§4.9). There is no teacher file implementing
// PageRank; the iterative update is grounded on spec §4.9's formula
// directly, with ComputeAll's per-seed fan-out modeled on pkg/pool's
// worker-pool idiom used throughout the teacher for round finalization.
package trust

import (
	"context"
	"sync"

	"github.com/noospheer/liun/internal/overlay"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/pool"
)

// DefaultDamping is the restart probability complement d used throughout
// §4.9 (d = 0.85).
const DefaultDamping = 0.85

// DefaultIterations is the fixed iteration count §4.9 mandates for
// termination (no convergence test is required for correctness).
const DefaultIterations = 20

// Vector maps every node known to the snapshot to its nonnegative trust
// value; values sum to (approximately) 1 (§3's TrustVector entity).
type Vector map[party.ID]float64

// outWeights returns each node's total outgoing edge weight, the
// denominator of §4.9's formula. The ChannelGraph is undirected, so a
// node's outgoing neighbors are exactly its Snapshot.Edges entry.
func outWeights(snap overlay.Snapshot) map[party.ID]int {
	out := make(map[party.ID]int, len(snap.Nodes))
	for _, n := range snap.Nodes {
		w := 0
		for _, weight := range snap.Edges[n] {
			w += weight
		}
		out[n] = w
	}
	return out
}

// PersonalizedPageRank runs §4.9's random walk with restart to seed over
// an immutable Snapshot (so it never observes a graph mutation in
// progress, per Design Notes §9), for the fixed iteration count and
// damping factor. Because the ChannelGraph is undirected, node v's
// incoming neighbors for the sum term are exactly Snapshot.Edges[v].
func PersonalizedPageRank(snap overlay.Snapshot, seed party.ID, damping float64, iterations int) Vector {
	if len(snap.Nodes) == 0 {
		return Vector{}
	}
	pi := make(Vector, len(snap.Nodes))
	for _, n := range snap.Nodes {
		pi[n] = 0
	}
	pi[seed] = 1
	outW := outWeights(snap)

	for iter := 0; iter < iterations; iter++ {
		next := make(Vector, len(snap.Nodes))
		for _, v := range snap.Nodes {
			var restart float64
			if v == seed {
				restart = 1 - damping
			}
			var sum float64
			for u, weight := range snap.Edges[v] {
				ow := outW[u]
				if ow == 0 {
					continue
				}
				sum += pi[u] * float64(weight) / float64(ow)
			}
			next[v] = restart + damping*sum
		}
		pi = next
	}
	return pi
}

// PersonalizedPageRankDefault runs PersonalizedPageRank with §4.9's
// default damping and iteration count.
func PersonalizedPageRankDefault(snap overlay.Snapshot, seed party.ID) Vector {
	return PersonalizedPageRank(snap, seed, DefaultDamping, DefaultIterations)
}

// ComputeAll runs PersonalizedPageRank once per seed in parallel, for
// callers (e.g. Node) that want every known node's trust vector rather
// than a single seed's (§5: long-running computation offloaded to the
// pool).
func ComputeAll(ctx context.Context, snap overlay.Snapshot, seeds party.IDSlice, pl *pool.Pool) (map[party.ID]Vector, error) {
	out := make(map[party.ID]Vector, len(seeds))
	var mu sync.Mutex
	err := pl.Parallel(ctx, len(seeds), func(_ context.Context, i int) error {
		v := PersonalizedPageRankDefault(snap, seeds[i])
		mu.Lock()
		out[seeds[i]] = v
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TrustWeightedAccept returns true iff the trust held by the attesting
// set exceeds two-thirds of all known trust (§4.9).
func TrustWeightedAccept(attestations party.IDSlice, trust Vector) bool {
	var accept, total float64
	for _, t := range trust {
		total += t
	}
	for _, id := range attestations {
		accept += trust[id]
	}
	return accept > (2.0/3.0)*total
}

// SybilBound returns the closed-form trust ceiling §4.9 gives for a
// Sybil cluster connected to the honest graph by `attackEdges` edges,
// where honestMinBoundaryDegree is the minimum degree among the honest
// nodes bordering the cluster: d*a / ((1-d)*delta).
func SybilBound(damping float64, attackEdges, honestMinBoundaryDegree int) float64 {
	if honestMinBoundaryDegree <= 0 {
		return 0
	}
	return damping * float64(attackEdges) / ((1 - damping) * float64(honestMinBoundaryDegree))
}
