package protocols_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/noospheer/liun/internal/round"
	"github.com/noospheer/liun/internal/test"
	"github.com/noospheer/liun/node"
	"github.com/noospheer/liun/pkg/field"
	"github.com/noospheer/liun/pkg/keychannel"
	"github.com/noospheer/liun/pkg/party"
	"github.com/noospheer/liun/pkg/pool"
	"github.com/noospheer/liun/pkg/protocol"
	"github.com/noospheer/liun/protocols/bootstrap"
	"github.com/noospheer/liun/protocols/dkg"
	"github.com/noospheer/liun/protocols/introduction"
	"github.com/noospheer/liun/protocols/uss"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Liun Protocol Integration Suite")
}

func pairwiseChannels(ids party.IDSlice) map[party.ID]map[party.ID]keychannel.Channel {
	out := make(map[party.ID]map[party.ID]keychannel.Channel, len(ids))
	for _, id := range ids {
		out[id] = make(map[party.ID]keychannel.Channel)
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			psk := []byte("integration-suite-shared-psk-material-64b!!")
			chI, err := keychannel.Open(string(ids[j]), psk)
			Expect(err).NotTo(HaveOccurred())
			chJ, err := keychannel.Open(string(ids[i]), psk)
			Expect(err).NotTo(HaveOccurred())
			out[ids[i]][ids[j]] = chI
			out[ids[j]][ids[i]] = chJ
		}
	}
	return out
}

// runDKG drives a live multi-party DKG session via protocols/dkg and
// pkg/protocol's MultiHandler, returning every party's resulting Config.
func runDKG(ids party.IDSlice, threshold int, verificationPoints []field.Element, pl *pool.Pool) map[party.ID]*dkg.Config {
	channels := pairwiseChannels(ids)
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
		h, err := protocol.NewMultiHandler(start, []byte("integration-suite-dkg"))
		Expect(err).NotTo(HaveOccurred())
		handlers[id] = h
	}
	results, err := test.RunNetwork(handlers)
	Expect(err).NotTo(HaveOccurred())

	configs := make(map[party.ID]*dkg.Config, len(ids))
	for id, r := range results {
		configs[id] = r.(*dkg.Config)
	}
	return configs
}

var _ = Describe("Liun end to end", func() {
	var pl *pool.Pool

	BeforeEach(func() {
		pl = pool.NewPool(0)
	})

	Describe("DKG then USS sign/verify", func() {
		It("produces a signature every party verifies against the agreed verification points", func() {
			ids := test.PartyIDs(5)
			threshold := 3
			verificationPoints := []field.Element{field.New(200), field.New(201), field.New(202), field.New(203)}

			configs := runDKG(ids, threshold, verificationPoints, pl)

			signers := make(map[party.ID]*uss.Signer, len(ids))
			for id, cfg := range configs {
				signers[id] = uss.NewSigner(id, cfg.SigningShare, threshold-1)
			}

			committee := ids[:threshold]
			msg := field.New(12345)

			var partials []uss.PartialSignature
			for _, id := range committee {
				p, err := signers[id].PartialSign(msg, committee)
				Expect(err).NotTo(HaveOccurred())
				partials = append(partials, p)
			}

			sig, err := uss.Combine(msg, partials, threshold)
			Expect(err).NotTo(HaveOccurred())

			first := configs[ids[0]]
			v := make([]field.Point, len(first.VerificationPoints))
			for i := range v {
				v[i] = field.Point{X: first.VerificationPoints[i], Y: first.VerificationValues[i]}
			}
			verified, insufficient, err := uss.Verify(sig.Message, sig.Sigma, v, threshold-1)
			Expect(err).NotTo(HaveOccurred())
			Expect(insufficient).To(BeFalse())
			Expect(verified).To(BeTrue())
		})
	})

	Describe("Node orchestration", func() {
		It("bootstraps, advances an epoch, and signs through the public API", func() {
			self := party.NewID(1)
			n := node.New(self, pl, 20*time.Millisecond)

			candidates := []bootstrap.Candidate{
				{ID: party.NewID(2), RoutePrefix: "as1", Jurisdiction: "us"},
				{ID: party.NewID(3), RoutePrefix: "as2", Jurisdiction: "eu"},
				{ID: party.NewID(4), RoutePrefix: "as3", Jurisdiction: "jp"},
			}
			Expect(n.Bootstrap(context.Background(), candidates, 6)).To(Succeed())
			Expect(n.Overlay.Peers()).To(HaveLen(3))

			runner := func(epochID uint64, degree, threshold int) (*dkg.Config, error) {
				poly, err := field.NewRandomPolynomial(degree, field.New(7+epochID))
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
			Expect(n.AdvanceEpoch(1, 4, 3, runner)).To(Succeed())

			committee := party.IDSlice{self}
			msg := field.New(55)
			partial, err := n.Sign(msg, committee)
			Expect(err).NotTo(HaveOccurred())
			sig, err := n.Combine(msg, []uss.PartialSignature{partial}, 1)
			Expect(err).NotTo(HaveOccurred())
			verified, insufficient, err := n.Verify(1, sig.Message, sig.Sigma)
			Expect(err).NotTo(HaveOccurred())
			Expect(insufficient).To(BeFalse())
			Expect(verified).To(BeTrue())
		})
	})

	Describe("Peer introduction", func() {
		It("lets two endpoints converge on the same channel via shared introducers", func() {
			a := party.NewID(10)
			c := party.NewID(11)

			var introducers party.IDSlice
			for i := 20; i < 23; i++ {
				introducers = append(introducers, party.NewID(uint64(i)))
			}

			generate := func(_ context.Context, introducer party.ID) (introduction.Component, error) {
				return introduction.GenerateComponent(introducer)
			}

			componentsForA, err := introduction.GatherComponents(context.Background(), introducers, pl, generate)
			Expect(err).NotTo(HaveOccurred())

			chA, err := introduction.OpenIntroduced(c, componentsForA)
			Expect(err).NotTo(HaveOccurred())
			chC, err := introduction.OpenIntroduced(a, componentsForA)
			Expect(err).NotTo(HaveOccurred())

			tagA, err := chA.MAC([]byte("hello"))
			Expect(err).NotTo(HaveOccurred())
			Expect(chC.VerifyMAC([]byte("hello"), tagA, chC.RunIndex())).To(Succeed())
		})
	})
})
