package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/noospheer/liun/node"
	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/pool"
	"github.com/noospheer/liun/protocols/introduction"
	"github.com/noospheer/liun/protocols/uss"
)

// idFromString parses a decimal party ID the same way the rest of the
// module does: party.NewID over a positive integer.
func idFromString(s string) party.ID {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return party.ID(s)
	}
	return party.NewID(n)
}

// gracePeriod is the window a retired epoch stays verifiable after
// cutover (§4.10); the CLI always uses the same value a single operator
// session needs, since it never runs long enough to make this tunable.
const gracePeriod = time.Minute

// newNode builds the Node this command invocation operates on. liun-cli
// holds no on-disk state between invocations yet (§10 Non-goals: no
// persistence layer), so every subcommand starts from --data-dir only as
// a label and constructs a fresh in-memory Node.
func newNode(cmd *cobra.Command) *node.Node {
	self := idFromString(selfID)
	if selfID == "" {
		self = party.NewID(1)
	}
	return node.New(self, pool.NewPool(0), gracePeriod)
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	candidates, err := loadCandidates(peersFile)
	if err != nil {
		return err
	}
	n := newNode(cmd)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := n.Bootstrap(ctx, candidates, routeCount); err != nil {
		return fmt.Errorf("liun-cli: bootstrap: %w", err)
	}
	fmt.Printf("bootstrapped %d peer channels for %s\n", len(n.Overlay.Peers()), n.ID)
	return nil
}

func runIntroduce(cmd *cobra.Command, args []string) error {
	introducerIDs, err := loadIntroducerIDs(peersFile)
	if err != nil {
		return err
	}
	n := newNode(cmd)
	target := idFromString(targetID)

	var introducers party.IDSlice
	for _, s := range introducerIDs {
		introducers = append(introducers, idFromString(s))
	}

	// generate asks the introducer to mint its component for this
	// handshake; in a real deployment this is an RPC call, so the CLI
	// stands in with a local call to the same generator the introducer
	// itself would invoke on its own node (§4.7 step 2).
	generate := func(_ context.Context, introducer party.ID) (introduction.Component, error) {
		return introduction.GenerateComponent(introducer)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := n.IntroduceTo(ctx, target, len(introducers), generate); err != nil {
		return fmt.Errorf("liun-cli: introduce: %w", err)
	}
	fmt.Printf("opened channel to %s via %d introducers\n", target, len(introducers))
	return nil
}

func runEpoch(cmd *cobra.Command, args []string) error {
	n := newNode(cmd)
	self := n.ID
	runner := localDKGRunner(self)
	if err := n.AdvanceEpoch(epochID, degree, threshold, runner); err != nil {
		return fmt.Errorf("liun-cli: epoch: %w", err)
	}
	fmt.Printf("epoch %d active (threshold %d, degree %d)\n", epochID, threshold, degree)
	return nil
}

func runSign(cmd *cobra.Command, args []string) error {
	n := newNode(cmd)
	m, err := parseFieldElement(messageHex)
	if err != nil {
		return err
	}
	committee := party.IDSlice{n.ID}
	partial, err := n.Sign(m, committee)
	if err != nil {
		return fmt.Errorf("liun-cli: sign: %w", err)
	}
	sig, err := n.Combine(m, []uss.PartialSignature{partial}, 1)
	if err != nil {
		return fmt.Errorf("liun-cli: combine: %w", err)
	}
	out := fmt.Sprintf("%d:%d\n", uint64(sig.Message), uint64(sig.Sigma))
	return writeOutput(outputFile, out)
}

func runVerify(cmd *cobra.Command, args []string) error {
	n := newNode(cmd)
	m, sigma, err := readSignature(inputFile)
	if err != nil {
		return err
	}
	verified, insufficient, err := n.Verify(epochID, m, sigma)
	if err != nil {
		return fmt.Errorf("liun-cli: verify: %w", err)
	}
	if insufficient {
		fmt.Println("insufficient verification points for this epoch's threshold")
		return nil
	}
	if verified {
		fmt.Println("signature VALID")
	} else {
		fmt.Println("signature INVALID")
	}
	return nil
}

func parseFieldElement(s string) (field.Element, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("liun-cli: parsing message: %w", err)
	}
	return field.New(n), nil
}
