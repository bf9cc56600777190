// Package overlay maintains a node's view of the decentralized channel
// fabric: the ChannelTable of its own open KeyChannels, and the
// ChannelGraph mirroring what it has learned about other peers' channels
// via gossip (§4.8). It is grounded on protocols/cmp's
// FaultTolerantCoordinator health-tracking shape (mutex-guarded map of
// per-party health, periodic check()), repurposed from ECDSA-signer
// liveness tracking to channel/degree health monitoring.
package overlay

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/noospheer/liun/pkg/keychannel"
	"github.com/noospheer/liun/pkg/party"
)

// ErrInsufficientMutualContacts is returned by FindMutualContacts when
// fewer than minCount mutual contacts exist (§4.8).
var ErrInsufficientMutualContacts = errors.New("overlay: insufficient mutual contacts")

// Status is a ChannelTable entry's lifecycle status (§3's KeyChannel row).
type Status int

const (
	StatusActive Status = iota
	StatusIdle
	StatusClosed
)

// ChannelEntry is one ChannelTable row: a peer's channel status, last-use
// time, and the live KeyChannel it wraps.
type ChannelEntry struct {
	Peer     party.ID
	Status   Status
	LastUsed time.Time
	Channel  keychannel.Channel
}

// Overlay owns the local ChannelTable and mirrors the ChannelGraph
// assembled from gossip about other peers' channels (§4.8, §3: "the
// ChannelGraph is owned by the local Overlay but mirrors facts about
// external peers — weak, view-only").
type Overlay struct {
	self party.ID

	mu      sync.RWMutex
	table   map[party.ID]*ChannelEntry
	edges   map[party.ID]map[party.ID]int // adjacency, symmetric, weighted
	version uint64                        // bumped on every graph mutation
}

// New creates an Overlay for the given local identity.
func New(self party.ID) *Overlay {
	return &Overlay{
		self:  self,
		table: make(map[party.ID]*ChannelEntry),
		edges: make(map[party.ID]map[party.ID]int),
	}
}

// OpenChannel records a freshly opened channel to peer in the
// ChannelTable and adds the corresponding edge to the local node's own
// adjacency (§4.8: "thin wrapper over C3").
func (o *Overlay) OpenChannel(peer party.ID, ch keychannel.Channel) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.table[peer] = &ChannelEntry{Peer: peer, Status: StatusActive, LastUsed: time.Now(), Channel: ch}
	o.addEdgeLocked(o.self, peer, 1)
	o.version++
}

// CloseChannel closes the channel to peer, if any, and marks the table
// entry closed.
func (o *Overlay) CloseChannel(peer party.ID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.table[peer]
	if !ok {
		return nil
	}
	if entry.Channel != nil {
		if err := entry.Channel.Close(); err != nil && !errors.Is(err, keychannel.ErrChannelClosed) {
			return err
		}
	}
	entry.Status = StatusClosed
	o.removeEdgeLocked(o.self, peer)
	o.version++
	return nil
}

// Touch refreshes a channel entry's last-used time, called whenever the
// channel is used for MAC/sign traffic.
func (o *Overlay) Touch(peer party.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.table[peer]; ok {
		e.LastUsed = time.Now()
	}
}

// Entry returns a copy of the ChannelTable row for peer, if present.
func (o *Overlay) Entry(peer party.ID) (ChannelEntry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.table[peer]
	if !ok {
		return ChannelEntry{}, false
	}
	return *e, true
}

// Peers returns every peer with a ChannelTable entry.
func (o *Overlay) Peers() party.IDSlice {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(party.IDSlice, 0, len(o.table))
	for id := range o.table {
		out = append(out, id)
	}
	return out.Sorted()
}

// RecordGossipEdge folds a GOSSIP_EDGE wire message (§6.3) into the
// local mirror of the ChannelGraph: a claim that u and v have an open
// channel, learned about a peer rather than observed directly.
func (o *Overlay) RecordGossipEdge(u, v party.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.addEdgeLocked(u, v, 1)
	o.version++
}

// RemoveGossipEdge folds a report that u and v's channel has closed.
func (o *Overlay) RemoveGossipEdge(u, v party.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removeEdgeLocked(u, v)
	o.version++
}

func (o *Overlay) addEdgeLocked(u, v party.ID, weight int) {
	if u == v {
		return
	}
	if o.edges[u] == nil {
		o.edges[u] = make(map[party.ID]int)
	}
	if o.edges[v] == nil {
		o.edges[v] = make(map[party.ID]int)
	}
	o.edges[u][v] = weight
	o.edges[v][u] = weight
}

func (o *Overlay) removeEdgeLocked(u, v party.ID) {
	delete(o.edges[u], v)
	delete(o.edges[v], u)
}

// FindMutualContacts returns peers that are simultaneously neighbors of
// the local node and of target, used to pick peer-introduction candidates.
// They are sorted by their ChannelTable LastUsed time, least recently used
// first; a contact with no table entry sorts as used now. The time a
// channel was opened is not recorded, so this order follows channel age
// only while Touch has not been called on the entries.
// Fails with ErrInsufficientMutualContacts if fewer than minCount exist.
func (o *Overlay) FindMutualContacts(target party.ID, minCount int) (party.IDSlice, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	selfNeighbors := o.edges[o.self]
	targetNeighbors := o.edges[target]

	type aged struct {
		id  party.ID
		age time.Time
	}
	var mutual []aged
	for n := range selfNeighbors {
		if _, ok := targetNeighbors[n]; !ok {
			continue
		}
		age := time.Now()
		if e, ok := o.table[n]; ok {
			age = e.LastUsed
		}
		mutual = append(mutual, aged{id: n, age: age})
	}
	sort.Slice(mutual, func(i, j int) bool { return mutual[i].age.Before(mutual[j].age) })

	if len(mutual) < minCount {
		return nil, ErrInsufficientMutualContacts
	}
	out := make(party.IDSlice, len(mutual))
	for i, m := range mutual {
		out[i] = m.id
	}
	return out, nil
}

// Snapshot is an immutable, point-in-time copy of the ChannelGraph's
// adjacency, used by internal/trust so a PageRank computation never
// observes a mutation in progress (§9 Design Notes: "Trust computation
// must not observe graph mutations in progress").
type Snapshot struct {
	Version uint64
	Nodes   party.IDSlice
	Edges   map[party.ID]map[party.ID]int
}

// Snapshot copies the current graph state under the read lock.
func (o *Overlay) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	nodeSet := make(map[party.ID]bool)
	edges := make(map[party.ID]map[party.ID]int, len(o.edges))
	for u, neighbors := range o.edges {
		nodeSet[u] = true
		cp := make(map[party.ID]int, len(neighbors))
		for v, w := range neighbors {
			nodeSet[v] = true
			cp[v] = w
		}
		edges[u] = cp
	}
	nodes := make(party.IDSlice, 0, len(nodeSet))
	for id := range nodeSet {
		nodes = append(nodes, id)
	}
	return Snapshot{Version: o.version, Nodes: nodes.Sorted(), Edges: edges}
}

// Degree returns the snapshot's degree for node v.
func (s Snapshot) Degree(v party.ID) int {
	return len(s.Edges[v])
}

// targetDegree is the baseline minimum channel degree §4.8 requires:
// ceil(log2 n) + 1 in general, or >= 2n/3 for DKG-dense overlays.
func targetDegree(n int, dkgDense bool) int {
	if dkgDense {
		d := (2*n + 2) / 3
		if d < 1 {
			d = 1
		}
		return d
	}
	if n <= 1 {
		return 1
	}
	return int(math.Ceil(math.Log2(float64(n)))) + 1
}

// GraphHealth is the result of GraphMonitor.Check (§4.8).
type GraphHealth struct {
	Disconnected      party.IDSlice
	BelowTargetDegree party.IDSlice
	EdgesRemoved      int
}

// GraphMonitor watches an Overlay's graph across successive checks,
// detecting disconnection, under-target degree, and edge churn.
type GraphMonitor struct {
	overlay  *Overlay
	dkgDense bool

	mu         sync.Mutex
	lastEdgeCt int
}

// NewGraphMonitor creates a monitor over overlay. dkgDense selects the
// stricter >= 2n/3 degree target DKG-dense overlays require.
func NewGraphMonitor(o *Overlay, dkgDense bool) *GraphMonitor {
	return &GraphMonitor{overlay: o, dkgDense: dkgDense}
}

// Check computes the overlay's current GraphHealth, comparing edge count
// against the previous call to report churn since last check (§4.8).
func (m *GraphMonitor) Check() GraphHealth {
	snap := m.overlay.Snapshot()

	edgeCount := 0
	for _, neighbors := range snap.Edges {
		edgeCount += len(neighbors)
	}
	edgeCount /= 2 // each undirected edge counted from both endpoints

	m.mu.Lock()
	removed := 0
	if edgeCount < m.lastEdgeCt {
		removed = m.lastEdgeCt - edgeCount
	}
	m.lastEdgeCt = edgeCount
	m.mu.Unlock()

	target := targetDegree(len(snap.Nodes), m.dkgDense)
	var disconnected, belowTarget party.IDSlice
	for _, n := range snap.Nodes {
		d := snap.Degree(n)
		if d == 0 {
			disconnected = append(disconnected, n)
		} else if d < target {
			belowTarget = append(belowTarget, n)
		}
	}
	return GraphHealth{
		Disconnected:      disconnected,
		BelowTargetDegree: belowTarget,
		EdgesRemoved:      removed,
	}
}
