// Package epoch implements EpochManager: DKG re-deal scheduling, the
// overlap/cutover window, and signature-budget-driven rotation (§4.10).
// It is grounded on protocols/cmp's FaultTolerantCoordinator (generation
// snapshots, a failure-threshold-like budget watchdog that triggers
// automatic recovery) and protocols/lss/reshare's overlap-window shape,
// both repurposed from fault-driven resharing to budget-driven epoch
// rotation.
package epoch

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/noospheer/liun/protocols/dkg"
	"github.com/noospheer/liun/protocols/uss"
)

// ErrDKGFailed wraps a DKG failure encountered while starting or
// overlapping an epoch; per §7, the previous epoch remains in force.
var ErrDKGFailed = errors.New("epoch: dkg failed")

// ErrNoSuccessor is returned by Cutover when no overlap DKG has completed.
var ErrNoSuccessor = errors.New("epoch: no successor epoch ready")

// overlapThreshold is the budget-consumption fraction that triggers
// overlap (§4.10: "when budget_consumed >= 0.8 * budget_max").
const overlapThreshold = 0.8

// Epoch is one signing polynomial's lifetime: its DKG config, its USS
// signer (share + budget), and the degree/threshold it was started with
// (§3's Epoch entity).
type Epoch struct {
	ID        uint64
	Degree    int
	Threshold int
	Config    *dkg.Config
	Signer    *uss.Signer
	startedAt time.Time
}

type retiredEpoch struct {
	epoch    *Epoch
	freezeAt time.Time
}

// DKGRunner runs a DKG session for the given epoch parameters and returns
// its resulting Config. Node supplies this, wiring it to protocols/dkg's
// actual round-driven Start/MultiHandler machinery.
type DKGRunner func(epochID uint64, degree, threshold int) (*dkg.Config, error)

// Manager owns the current epoch, an in-progress successor during
// overlap, and retired epochs still within their post-cutover grace
// period (§4.10).
type Manager struct {
	mu          sync.Mutex
	current     *Epoch
	successor   *Epoch
	retired     []*retiredEpoch
	gracePeriod time.Duration
}

// NewManager creates an EpochManager whose retired epochs remain valid
// for verification for gracePeriod after cutover (§4.10: "old epoch
// remains valid for a grace period so in-flight verifications succeed").
func NewManager(gracePeriod time.Duration) *Manager {
	return &Manager{gracePeriod: gracePeriod}
}

func buildEpoch(epochID uint64, degree, threshold int, run DKGRunner) (*Epoch, error) {
	cfg, err := run(epochID, degree, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDKGFailed, err)
	}
	return &Epoch{
		ID:        epochID,
		Degree:    degree,
		Threshold: threshold,
		Config:    cfg,
		Signer:    uss.NewSigner(cfg.ID, cfg.SigningShare, degree),
		startedAt: time.Now(),
	}, nil
}

// StartEpoch triggers DKG via run and installs the resulting signing
// share and verification shares as the current epoch (§4.10). It is only
// valid when no epoch is yet running; to replace a running epoch's
// polynomial use BeginOverlap followed by Cutover.
func (m *Manager) StartEpoch(epochID uint64, degree, threshold int, run DKGRunner) error {
	ep, err := buildEpoch(epochID, degree, threshold, run)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = ep
	return nil
}

// Current returns the active epoch, or nil if none has started.
func (m *Manager) Current() *Epoch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Successor returns the in-progress overlap epoch, or nil outside
// overlap. New joiners during overlap receive shares of the successor
// epoch only (§4.10 Properties).
func (m *Manager) Successor() *Epoch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.successor
}

// WatchBudget reports whether the current epoch's signature budget has
// crossed the 80% overlap trigger (§4.10). Budget enforcement is
// monotonic: this reads the signer's consumed count directly rather than
// any separately-reset counter, so it can never regress mid-epoch.
func (m *Manager) WatchBudget() bool {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur == nil {
		return false
	}
	max := cur.Signer.Budget.Max()
	if max == 0 {
		return false
	}
	return float64(cur.Signer.Budget.Consumed())/float64(max) >= overlapThreshold
}

// BeginOverlap runs DKG for epoch+1 while the current epoch remains
// valid for signing (§4.10 watch_budget). On success the result becomes
// the pending successor, installed by a later Cutover call.
func (m *Manager) BeginOverlap(epochID uint64, degree, threshold int, run DKGRunner) error {
	ep, err := buildEpoch(epochID, degree, threshold, run)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successor = ep
	return nil
}

// Cutover switches signing to the successor epoch. The outgoing epoch is
// retired rather than discarded: it remains valid for EpochForVerification
// until its grace period elapses, so in-flight verifications against it
// still succeed (§4.10: "no signing gap during cutover").
func (m *Manager) Cutover() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.successor == nil {
		return ErrNoSuccessor
	}
	if m.current != nil {
		m.retired = append(m.retired, &retiredEpoch{
			epoch:    m.current,
			freezeAt: time.Now().Add(m.gracePeriod),
		})
	}
	m.current = m.successor
	m.successor = nil
	m.pruneRetiredLocked()
	return nil
}

func (m *Manager) pruneRetiredLocked() {
	now := time.Now()
	kept := m.retired[:0]
	for _, r := range m.retired {
		if now.Before(r.freezeAt) {
			kept = append(kept, r)
		}
	}
	m.retired = kept
}

// EpochForVerification returns the epoch matching id if it is still
// valid for verification: the current epoch, the in-progress successor,
// or a retired epoch still within its grace period. Once a retired
// epoch's grace period elapses it is frozen and no longer returned
// (§4.10: "then frozen").
func (m *Manager) EpochForVerification(id uint64) (*Epoch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneRetiredLocked()
	if m.current != nil && m.current.ID == id {
		return m.current, true
	}
	if m.successor != nil && m.successor.ID == id {
		return m.successor, true
	}
	for _, r := range m.retired {
		if r.epoch.ID == id {
			return r.epoch, true
		}
	}
	return nil, false
}
