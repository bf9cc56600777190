package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/noospheer/liun/protocols/bootstrap"
)

// peerEntry is one line of a YAML peer-candidate file, the CLI's
// serialization of bootstrap.Candidate and introduction's introducer
// list (§10 AMBIENT STACK: "yaml.v3 loads the CLI's peer candidate lists
// and simulation scenarios").
type peerEntry struct {
	ID           string `yaml:"id"`
	RoutePrefix  string `yaml:"route_prefix"`
	Jurisdiction string `yaml:"jurisdiction"`
}

type peerFile struct {
	Peers []peerEntry `yaml:"peers"`
}

func loadCandidates(path string) ([]bootstrap.Candidate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("liun-cli: reading peers file: %w", err)
	}
	var pf peerFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("liun-cli: parsing peers file: %w", err)
	}
	out := make([]bootstrap.Candidate, len(pf.Peers))
	for i, p := range pf.Peers {
		out[i] = bootstrap.Candidate{
			ID:           idFromString(p.ID),
			RoutePrefix:  p.RoutePrefix,
			Jurisdiction: p.Jurisdiction,
		}
	}
	return out, nil
}

func loadIntroducerIDs(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("liun-cli: reading introducers file: %w", err)
	}
	var pf peerFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("liun-cli: parsing introducers file: %w", err)
	}
	out := make([]string, len(pf.Peers))
	for i, p := range pf.Peers {
		out[i] = p.ID
	}
	return out, nil
}

// scenarioFile describes a local multi-party simulation run, loaded from
// the --scenario YAML file `simulate` takes.
type scenarioFile struct {
	Parties   int    `yaml:"parties"`
	Threshold int    `yaml:"threshold"`
	Degree    int    `yaml:"degree"`
	Message   uint64 `yaml:"message"`
}

func loadScenario(path string) (*scenarioFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("liun-cli: reading scenario file: %w", err)
	}
	var s scenarioFile
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("liun-cli: parsing scenario file: %w", err)
	}
	if s.Parties == 0 {
		s.Parties = 5
	}
	if s.Threshold == 0 {
		s.Threshold = s.Parties/2 + 1
	}
	if s.Degree == 0 {
		s.Degree = s.Threshold - 1
	}
	return &s, nil
}
