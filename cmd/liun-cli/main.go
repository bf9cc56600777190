// Command liun-cli drives Liun's core operations from the shell: key
// generation (bootstrap + DKG), signing/verification, peer introduction,
// epoch rotation, scenario simulation, and benchmarking (§10 AMBIENT
// STACK). It is grounded on cmd/threshold-cli/main.go's root-command
// layout, with curve/protocol-selector flags dropped since Liun runs
// exactly one scheme over exactly one field.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
)

var (
	// Global flags
	dataDir string
	verbose bool

	// Shared operation flags
	peersFile    string
	routeCount   int
	threshold    int
	degree       int
	epochID      uint64
	selfID       string
	targetID     string
	outputFile   string
	inputFile    string
	messageHex   string

	rootCmd = &cobra.Command{
		Use:   "liun-cli",
		Short: "CLI for the Liun decentralized ITS signature substrate",
		Long: `liun-cli drives a single Liun node through bootstrap, peer
introduction, DKG-backed epoch rotation, and unconditionally-secure
threshold signing, or runs local multi-party simulations of the same.`,
	}

	bootstrapCmd = &cobra.Command{
		Use:   "bootstrap",
		Short: "Bootstrap a new node's first channels from a candidate list",
		RunE:  runBootstrap,
	}

	introduceCmd = &cobra.Command{
		Use:   "introduce",
		Short: "Open a new channel to a peer via mutual introducers",
		RunE:  runIntroduce,
	}

	epochCmd = &cobra.Command{
		Use:   "epoch",
		Short: "Advance this node's signing epoch (start or overlap+cutover)",
		RunE:  runEpoch,
	}

	signCmd = &cobra.Command{
		Use:   "sign",
		Short: "Produce a partial signature over a message",
		RunE:  runSign,
	}

	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Verify a combined signature against an epoch's verification points",
		RunE:  runVerify,
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run a local multi-party simulation of bootstrap/DKG/sign/verify",
		RunE:  runSimulate,
	}

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Benchmark DKG and signing at a range of committee sizes",
		RunE:  runBench,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "./liun-data", "local state directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&selfID, "self", "1", "this node's party ID")

	bootstrapCmd.Flags().StringVar(&peersFile, "peers", "", "YAML file listing candidate peers (required)")
	bootstrapCmd.Flags().IntVar(&routeCount, "routes", 6, "number of bootstrap routes")
	bootstrapCmd.MarkFlagRequired("peers")

	introduceCmd.Flags().StringVar(&peersFile, "introducers", "", "YAML file listing mutual introducers (required)")
	introduceCmd.Flags().StringVar(&targetID, "target", "", "target peer ID (required)")
	introduceCmd.MarkFlagRequired("introducers")
	introduceCmd.MarkFlagRequired("target")

	epochCmd.Flags().Uint64Var(&epochID, "epoch", 1, "epoch identifier to start or cut over to")
	epochCmd.Flags().IntVar(&degree, "degree", 4, "DKG polynomial degree")
	epochCmd.Flags().IntVar(&threshold, "threshold", 3, "signing threshold")

	signCmd.Flags().StringVar(&messageHex, "message", "", "message to sign, as a decimal field element (required)")
	signCmd.Flags().StringVar(&outputFile, "output", "", "output file for the signature (default stdout)")
	signCmd.MarkFlagRequired("message")

	verifyCmd.Flags().Uint64Var(&epochID, "epoch", 1, "epoch identifier the signature was produced under")
	verifyCmd.Flags().StringVar(&inputFile, "signature", "", "signature file to verify (required)")
	verifyCmd.MarkFlagRequired("signature")

	simulateCmd.Flags().StringVar(&peersFile, "scenario", "", "YAML scenario file (required)")
	simulateCmd.MarkFlagRequired("scenario")

	benchCmd.Flags().IntSlice("sizes", []int{5, 10, 20}, "committee sizes to benchmark")

	rootCmd.AddCommand(bootstrapCmd, introduceCmd, epochCmd, signCmd, verifyCmd, simulateCmd, benchCmd)
}

func main() {
	// automaxprocs matches GOMAXPROCS to the container's cgroup CPU quota,
	// the same runtime tuning the teacher wires from its own main().
	if _, err := maxprocs.Set(); err != nil && verbose {
		fmt.Fprintf(os.Stderr, "liun-cli: automaxprocs: %v\n", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
