// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package config loads and validates the static configuration of a
// simulation run: the rank/node topology, the store names that must be
// replicated, the number of timesteps, and the load balancer's tunables.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of a simulation run.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Topology   TopologyConfig   `yaml:"topology"`
	Balancer   BalancerConfig   `yaml:"balancer"`
	Stores     []string         `yaml:"stores"`
}

// SimulationConfig holds the top-level run parameters.
type SimulationConfig struct {
	Name   string `yaml:"name"`
	NSteps int    `yaml:"nsteps"`
}

// TopologyConfig describes how ranks map onto physical nodes.
//
// NodeRanks[i] lists the ranks hosted on node i. The master rank (0) is
// always part of NodeRanks[0]. A store is replicated once per node, on
// the first rank of that node (see DESIGN.md, Open Question: store
// replicas span every rank or only one rank per node).
type TopologyConfig struct {
	WorldSize int     `yaml:"world_size"`
	NodeRanks [][]int `yaml:"node_ranks"`
}

// BalancerConfig carries the GreedyLoadBalancer tunables.
type BalancerConfig struct {
	Kind         string  `yaml:"kind"` // "greedy" or "random"
	Lambda       float64 `yaml:"lambda"`
	LambdaA      float64 `yaml:"lambda_a"`
	LambdaB      float64 `yaml:"lambda_b"`
	ImbalanceTol float64 `yaml:"imbalance_tol"`
}

// DefaultBalancerConfig returns the tunables named in the spec:
// LAMBDA_A = LAMBDA_B = LAMBDA = 0.9, IMBALANCE_TOL = 0.05.
func DefaultBalancerConfig() BalancerConfig {
	return BalancerConfig{
		Kind:         "greedy",
		Lambda:       0.9,
		LambdaA:      0.9,
		LambdaB:      0.9,
		ImbalanceTol: 0.05,
	}
}

// Load reads and parses a YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Balancer.Kind == "" {
		c.Balancer = DefaultBalancerConfig()
	}
	if len(c.Topology.NodeRanks) == 0 && c.Topology.WorldSize > 0 {
		ranks := make([]int, c.Topology.WorldSize)
		for i := range ranks {
			ranks[i] = i
		}
		c.Topology.NodeRanks = [][]int{ranks}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Simulation.NSteps <= 0 {
		return fmt.Errorf("simulation.nsteps must be positive")
	}

	if c.Topology.WorldSize <= 0 {
		return fmt.Errorf("topology.world_size must be positive")
	}

	seen := make(map[int]bool, c.Topology.WorldSize)
	for _, node := range c.Topology.NodeRanks {
		for _, rank := range node {
			if rank < 0 || rank >= c.Topology.WorldSize {
				return fmt.Errorf("topology.node_ranks contains out-of-range rank %d", rank)
			}
			if seen[rank] {
				return fmt.Errorf("topology.node_ranks assigns rank %d to more than one node", rank)
			}
			seen[rank] = true
		}
	}
	if len(seen) != c.Topology.WorldSize {
		return fmt.Errorf("topology.node_ranks does not cover all %d ranks", c.Topology.WorldSize)
	}

	if len(c.Stores) == 0 {
		return fmt.Errorf("at least one store name is required")
	}

	switch c.Balancer.Kind {
	case "greedy", "random":
	default:
		return fmt.Errorf("balancer.kind must be 'greedy' or 'random', got %q", c.Balancer.Kind)
	}

	if c.Balancer.ImbalanceTol < 0 || c.Balancer.ImbalanceTol > 1 {
		return fmt.Errorf("balancer.imbalance_tol must be in [0,1]")
	}

	return nil
}

// MasterRank of a topology is always rank 0, per spec.md's glossary.
const MasterRank = 0

// Ranks returns the full [0, WorldSize) rank enumeration.
func (c *Config) Ranks() []int {
	ranks := make([]int, c.Topology.WorldSize)
	for i := range ranks {
		ranks[i] = i
	}
	return ranks
}

// NodeRanks returns the ranks hosted on the given node index.
func (c *Config) NodeRanks(node int) []int {
	if node < 0 || node >= len(c.Topology.NodeRanks) {
		return nil
	}
	return c.Topology.NodeRanks[node]
}

// HostRank returns the rank that hosts the one-per-node replica for a
// given node: the first rank listed for that node.
func (c *Config) HostRank(node int) (int, bool) {
	ranks := c.NodeRanks(node)
	if len(ranks) == 0 {
		return 0, false
	}
	return ranks[0], true
}

// HostRanks returns, across all nodes, the set of ranks that host a
// state store replica: the first rank of every node.
func (c *Config) HostRanks() []int {
	hosts := make([]int, 0, len(c.Topology.NodeRanks))
	for i := range c.Topology.NodeRanks {
		if rank, ok := c.HostRank(i); ok {
			hosts = append(hosts, rank)
		}
	}
	return hosts
}
