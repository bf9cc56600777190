// Package bootstrap implements Liun's multi-path bootstrap (§4.6): a new
// node with no existing channels selects diverse candidate peers,
// transports a fresh per-peer secret to each one across several
// Shamir-encoded routes, and derives a PSK to open a KeyChannel. It is
// grounded on protocols/lss/dealer.BootstrapDealer's stateful,
// mutex-guarded "dealer" shape, repurposed from re-sharing's role into
// bootstrap's seed-transport role. Candidates are processed in parallel
// (§5); the routes of a single candidate are handled in a sequential loop.
package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sort"

	"github.com/cronokirby/saferith"

	"github.com/noospheer/liun/pkg/expand"
	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/keychannel"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/pool"
	"github.com/noospheer/liun/pkg/shamir"
)

// ErrNoCleanPath is returned by Bootstrap when not even one candidate
// yielded a clean, reconstructable PSK (§4.6 Failure handling).
var ErrNoCleanPath = errors.New("bootstrap: no clean path across any candidate")

// secretLen is the per-peer secret width in bytes (256 bits, §4.6 step 2).
const secretLen = 32

// chunkBytes is the per-chunk width used to split secretLen into field
// elements: 7 bytes (56 bits) keeps every chunk safely below M61's 61
// bits without a carry, at the cost of requiring ceil(32/7) = 5 chunks
// (three bytes of padding).
const chunkBytes = 7

var numChunks = (secretLen + chunkBytes - 1) / chunkBytes

// Candidate is one publicly listed bootstrap peer, carrying the metadata
// SelectDiverse scores for route/jurisdiction diversity (§4.6 step 1:
// "diversity scoring is implementation-defined; the core contract is
// only that the selection function exists").
type Candidate struct {
	ID           party.ID
	RoutePrefix  string // e.g. an AS/network-prefix tag
	Jurisdiction string // e.g. a legal-jurisdiction tag
}

// SelectDiverse greedily picks up to k candidates maximizing the number
// of distinct (RoutePrefix, Jurisdiction) pairs represented, falling back
// to filling remaining slots once all distinct pairs are exhausted.
func SelectDiverse(candidates []Candidate, k int) []Candidate {
	if k <= 0 || k >= len(candidates) {
		out := append([]Candidate(nil), candidates...)
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out
	}

	byBucket := make(map[string][]Candidate)
	var buckets []string
	for _, c := range candidates {
		key := c.RoutePrefix + "|" + c.Jurisdiction
		if _, ok := byBucket[key]; !ok {
			buckets = append(buckets, key)
		}
		byBucket[key] = append(byBucket[key], c)
	}
	sort.Strings(buckets)

	var out []Candidate
	for len(out) < k {
		progressed := false
		for _, b := range buckets {
			if len(out) >= k {
				break
			}
			if len(byBucket[b]) == 0 {
				continue
			}
			out = append(out, byBucket[b][0])
			byBucket[b] = byBucket[b][1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

// RouteShare is one route's share of one secret chunk.
type RouteShare struct {
	Route int
	Share shamir.Share
}

// RouteBundle is everything transmitted over a single route for one
// candidate peer's secret: one Shamir share per chunk, all sharing the
// route's x-coordinate.
type RouteBundle struct {
	Route       int
	ChunkShares []field.Element // Y values only; X == Route is implicit
}

// randomSecret samples a fresh 256-bit per-peer secret via saferith's
// constant-time Nat, the byte-oriented counterpart to pkg/field's
// fixed-width GF(M61) arithmetic (§11 DOMAIN STACK).
func randomSecret() ([]byte, error) {
	buf := make([]byte, secretLen)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	nat := new(saferith.Nat).SetBytes(buf)
	out := nat.Bytes()
	if len(out) < secretLen {
		padded := make([]byte, secretLen)
		copy(padded[secretLen-len(out):], out)
		out = padded
	}
	return out[len(out)-secretLen:], nil
}

func secretToChunks(secret []byte) []field.Element {
	padded := make([]byte, numChunks*chunkBytes)
	copy(padded, secret)
	out := make([]field.Element, numChunks)
	for i := 0; i < numChunks; i++ {
		var buf [8]byte
		copy(buf[:chunkBytes], padded[i*chunkBytes:(i+1)*chunkBytes])
		out[i] = field.New(binary.LittleEndian.Uint64(buf[:]))
	}
	return out
}

func chunksToSecret(chunks []field.Element) []byte {
	padded := make([]byte, numChunks*chunkBytes)
	for i, c := range chunks {
		b := c.Bytes()
		copy(padded[i*chunkBytes:(i+1)*chunkBytes], b[:chunkBytes])
	}
	return padded[:secretLen]
}

// GenerateRouteBundles Shamir-splits secret into routeCount route bundles
// with threshold tau = routeCount - routeCount/3 (§4.6 step 2), one per
// distinct route, ready to transmit independently.
func GenerateRouteBundles(secret []byte, routeCount, tau int) ([]RouteBundle, error) {
	chunks := secretToChunks(secret)
	perChunkShares := make([][]shamir.Share, len(chunks))
	for i, chunk := range chunks {
		shares, err := shamir.Split(chunk, tau, routeCount)
		if err != nil {
			return nil, err
		}
		perChunkShares[i] = shares
	}

	bundles := make([]RouteBundle, routeCount)
	for r := 0; r < routeCount; r++ {
		vals := make([]field.Element, len(chunks))
		for c := range chunks {
			vals[c] = perChunkShares[c][r].Y
		}
		bundles[r] = RouteBundle{Route: r + 1, ChunkShares: vals}
	}
	return bundles, nil
}

// ReceiveRouteBundles reassembles the secret from received route bundles
// (possibly tampered with by corrupt relays along some routes), using
// pkg/shamir.ConsistencyCheck per chunk to identify and exclude corrupt
// routes before reconstructing (§4.6 step 2). It returns the
// reconstructed secret and the set of routes excluded as corrupt.
func ReceiveRouteBundles(bundles []RouteBundle, tau int) (secret []byte, excludedRoutes []int, err error) {
	if len(bundles) == 0 {
		return nil, nil, ErrNoCleanPath
	}
	n := len(bundles[0].ChunkShares)
	badRoutes := make(map[int]bool)

	for c := 0; c < n; c++ {
		shares := make([]shamir.Share, len(bundles))
		for i, b := range bundles {
			shares[i] = shamir.Share{X: field.New(uint64(b.Route)), Y: b.ChunkShares[c]}
		}
		_, bad := shamir.ConsistencyCheck(shares, tau)
		for _, s := range bad {
			badRoutes[int(s.X.Uint64())] = true
		}
	}

	var clean []RouteBundle
	for _, b := range bundles {
		if !badRoutes[b.Route] {
			clean = append(clean, b)
		}
	}
	for route := range badRoutes {
		excludedRoutes = append(excludedRoutes, route)
	}
	sort.Ints(excludedRoutes)

	if len(clean) < tau {
		return nil, excludedRoutes, ErrNoCleanPath
	}

	chunks := make([]field.Element, n)
	for c := 0; c < n; c++ {
		shares := make([]shamir.Share, len(clean))
		for i, b := range clean {
			shares[i] = shamir.Share{X: field.New(uint64(b.Route)), Y: b.ChunkShares[c]}
		}
		val, err := shamir.Reconstruct(shares, tau)
		if err != nil {
			return nil, excludedRoutes, err
		}
		chunks[c] = val
	}
	return chunksToSecret(chunks), excludedRoutes, nil
}

// DerivePSK expands a reconstructed 256-bit secret into full Liu-PSK
// length via the Toeplitz-style expander (§4.6 step 3).
func DerivePSK(secret []byte) ([]byte, error) {
	return expand.PSK(secret, expand.ChannelPSKLen)
}

// RouteCorruption simulates an adversary tampering with a bundle in
// transit over one route. Tests and simulations supply this to exercise
// the corrupt-route detection path; production callers pass nil (the
// identity transform).
type RouteCorruption func(peer party.ID, bundle RouteBundle) RouteBundle

func identityCorruption(_ party.ID, b RouteBundle) RouteBundle { return b }

// Bootstrap runs §4.6 end to end for each selected candidate concurrently
// (§5): generate a per-peer secret, split it across routeCount routes,
// simulate transmission (through corrupt, if supplied), reassemble on the
// receiving side with corrupt-route exclusion, derive a PSK, and open a
// KeyChannel. A candidate that cannot yield tau clean routes is skipped
// rather than failing the whole call; Bootstrap only fails with
// ErrNoCleanPath if every candidate was unusable.
func Bootstrap(ctx context.Context, candidates []Candidate, routeCount int, pl *pool.Pool, corrupt RouteCorruption) (map[party.ID]keychannel.Channel, error) {
	if corrupt == nil {
		corrupt = identityCorruption
	}
	selected := SelectDiverse(candidates, routeCount)
	tau := routeCount - routeCount/3

	type result struct {
		peer    party.ID
		channel keychannel.Channel
	}
	results := make([]*result, len(selected))

	err := pl.Parallel(ctx, len(selected), func(_ context.Context, i int) error {
		cand := selected[i]
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		bundles, err := GenerateRouteBundles(secret, routeCount, tau)
		if err != nil {
			return err
		}
		for j, b := range bundles {
			bundles[j] = corrupt(cand.ID, b)
		}
		reconstructed, _, err := ReceiveRouteBundles(bundles, tau)
		if err != nil {
			// This candidate yielded no clean path; skip, don't fail.
			return nil
		}
		if string(reconstructed) != string(secret) {
			return nil
		}
		psk, err := DerivePSK(secret)
		if err != nil {
			return err
		}
		ch, err := keychannel.Open(string(cand.ID), psk)
		if err != nil {
			return nil
		}
		results[i] = &result{peer: cand.ID, channel: ch}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[party.ID]keychannel.Channel)
	for _, r := range results {
		if r != nil {
			out[r.peer] = r.channel
		}
	}
	if len(out) == 0 {
		return nil, ErrNoCleanPath
	}
	return out, nil
}
