package main

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noospheer/liun/internal/epoch"
	"github.com/noospheer/liun/internal/round"
	"github.com/noospheer/liun/internal/test"
	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/keychannel"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/pool"
	"github.com/noospheer/liun/pkg/protocol"
	"github.com/noospheer/liun/protocols/dkg"
	"github.com/noospheer/liun/protocols/uss"
)

// localDKGRunner builds an epoch.DKGRunner for a committee of one (self),
// used by the `epoch` command when no peers are configured yet: it samples
// the epoch polynomial locally instead of running protocols/dkg. Production nodes instead wire a
// runner that drives protocols/dkg.Start across the live committee
// through a protocol.MultiHandler, the way runDKGOverNetwork below does
// for the `simulate` command.
func localDKGRunner(self party.ID) epoch.DKGRunner {
	return func(epochID uint64, degree, threshold int) (*dkg.Config, error) {
		poly, err := field.NewRandomPolynomial(degree, field.New(1000+epochID))
		if err != nil {
			return nil, err
		}
		x, err := self.Element()
		if err != nil {
			return nil, err
		}
		points := make([]field.Element, degree+2)
		values := make([]field.Element, degree+2)
		for i := range points {
			px := field.New(uint64(i + 1))
			points[i] = px
			values[i] = poly.Evaluate(px)
		}
		return &dkg.Config{
			ID:                 self,
			Threshold:          threshold,
			Generation:         epochID,
			SigningShare:       poly.Evaluate(x),
			VerificationPoints: points,
			VerificationValues: values,
		}, nil
	}
}

// pairwiseChannels opens one shared-PSK simulated channel per unordered
// pair of ids, mirroring protocols/dkg's own test harness: both endpoints
// must be opened with identical PSK bytes for their MACs to agree.
func pairwiseChannels(ids party.IDSlice) (map[party.ID]map[party.ID]keychannel.Channel, error) {
	out := make(map[party.ID]map[party.ID]keychannel.Channel, len(ids))
	for _, id := range ids {
		out[id] = make(map[party.ID]keychannel.Channel)
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			psk := make([]byte, 64)
			if _, err := rand.Read(psk); err != nil {
				return nil, err
			}
			chI, err := keychannel.Open(string(ids[j]), psk)
			if err != nil {
				return nil, err
			}
			chJ, err := keychannel.Open(string(ids[i]), psk)
			if err != nil {
				return nil, err
			}
			out[ids[i]][ids[j]] = chI
			out[ids[j]][ids[i]] = chJ
		}
	}
	return out, nil
}

// runDKGOverNetwork drives a live multi-party DKG session via
// protocols/dkg and pkg/protocol's MultiHandler, the real network-shaped
// path `simulate` and `bench` exercise in place of a production node's
// RPC transport.
func runDKGOverNetwork(ids party.IDSlice, threshold int, verificationPoints []field.Element, pl *pool.Pool) (map[party.ID]*dkg.Config, error) {
	channels, err := pairwiseChannels(ids)
	if err != nil {
		return nil, err
	}
	handlers := make(map[party.ID]protocol.Handler, len(ids))
	for _, id := range ids {
		info := round.Info{
			ProtocolID:       "liun/dkg",
			FinalRoundNumber: 5,
			SelfID:           id,
			PartyIDs:         ids,
			Threshold:        threshold,
		}
		start := dkg.Start(info, pl, channels[id], verificationPoints)
		h, err := protocol.NewMultiHandler(start, []byte("liun-cli-session"))
		if err != nil {
			return nil, err
		}
		handlers[id] = h
	}
	results, err := test.RunNetwork(handlers)
	if err != nil {
		return nil, err
	}
	configs := make(map[party.ID]*dkg.Config, len(ids))
	for id, r := range results {
		configs[id] = r.(*dkg.Config)
	}
	return configs, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	scenario, err := loadScenario(peersFile)
	if err != nil {
		return err
	}
	ids := test.PartyIDs(scenario.Parties)
	verificationPoints := make([]field.Element, scenario.Degree+2)
	for i := range verificationPoints {
		verificationPoints[i] = field.New(uint64(500 + i))
	}

	pl := pool.NewPool(0)
	start := time.Now()
	configs, err := runDKGOverNetwork(ids, scenario.Threshold, verificationPoints, pl)
	if err != nil {
		return fmt.Errorf("liun-cli: simulate dkg: %w", err)
	}
	dkgElapsed := time.Since(start)

	signers := make(map[party.ID]*uss.Signer, len(ids))
	for id, cfg := range configs {
		signers[id] = uss.NewSigner(id, cfg.SigningShare, scenario.Degree)
	}

	committee := ids[:scenario.Threshold]
	msg := field.New(scenario.Message)

	signStart := time.Now()
	var partials []uss.PartialSignature
	for _, id := range committee {
		p, err := signers[id].PartialSign(msg, committee)
		if err != nil {
			return fmt.Errorf("liun-cli: simulate sign: %w", err)
		}
		partials = append(partials, p)
	}
	sig, err := uss.Combine(msg, partials, scenario.Threshold)
	if err != nil {
		return fmt.Errorf("liun-cli: simulate combine: %w", err)
	}
	signElapsed := time.Since(signStart)

	first := configs[ids[0]]
	pts := make([]field.Point, len(first.VerificationPoints))
	for i := range pts {
		pts[i] = field.Point{X: first.VerificationPoints[i], Y: first.VerificationValues[i]}
	}
	verified, insufficient, err := uss.Verify(sig.Message, sig.Sigma, pts, scenario.Degree)
	if err != nil {
		return fmt.Errorf("liun-cli: simulate verify: %w", err)
	}

	fmt.Printf("parties=%d threshold=%d degree=%d\n", scenario.Parties, scenario.Threshold, scenario.Degree)
	fmt.Printf("dkg: %s  sign+combine: %s\n", dkgElapsed, signElapsed)
	fmt.Printf("verified=%v insufficientPoints=%v\n", verified, insufficient)
	return nil
}

func runBench(cmd *cobra.Command, args []string) error {
	sizes, err := cmd.Flags().GetIntSlice("sizes")
	if err != nil {
		return err
	}
	pl := pool.NewPool(0)
	for _, n := range sizes {
		t := n/2 + 1
		degree := t - 1
		ids := test.PartyIDs(n)
		points := make([]field.Element, degree+2)
		for i := range points {
			points[i] = field.New(uint64(600 + i))
		}

		start := time.Now()
		configs, err := runDKGOverNetwork(ids, t, points, pl)
		if err != nil {
			return fmt.Errorf("liun-cli: bench n=%d: %w", n, err)
		}
		dkgElapsed := time.Since(start)

		signers := make(map[party.ID]*uss.Signer, len(ids))
		for id, cfg := range configs {
			signers[id] = uss.NewSigner(id, cfg.SigningShare, degree)
		}
		committee := ids[:t]
		msg := field.New(uint64(n))

		signStart := time.Now()
		var partials []uss.PartialSignature
		for _, id := range committee {
			p, err := signers[id].PartialSign(msg, committee)
			if err != nil {
				return fmt.Errorf("liun-cli: bench n=%d sign: %w", n, err)
			}
			partials = append(partials, p)
		}
		if _, err := uss.Combine(msg, partials, t); err != nil {
			return fmt.Errorf("liun-cli: bench n=%d combine: %w", n, err)
		}
		signElapsed := time.Since(signStart)

		fmt.Printf("n=%-4d threshold=%-4d dkg=%-12s sign+combine=%-12s\n", n, t, dkgElapsed, signElapsed)
	}
	return nil
}

// writeOutput writes s to path, or stdout when path is empty.
func writeOutput(path, s string) error {
	if path == "" {
		fmt.Print(s)
		return nil
	}
	return os.WriteFile(path, []byte(s), 0o600)
}

// readSignature parses the "message:sigma" decimal pair written by
// runSign back into field elements.
func readSignature(path string) (field.Element, field.Element, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("liun-cli: reading signature file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, 0, fmt.Errorf("liun-cli: signature file is empty")
	}
	parts := strings.SplitN(strings.TrimSpace(scanner.Text()), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("liun-cli: malformed signature line %q", scanner.Text())
	}
	m, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("liun-cli: parsing message: %w", err)
	}
	s, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("liun-cli: parsing sigma: %w", err)
	}
	return field.New(m), field.New(s), nil
}
