// Package config loads the cohort description a node or supervisor process
// boots from: the node count, base port, and each node's initial value and
// fault flag. Loading is grounded on the reference's block-generator
// generator/config.go — os.ReadFile followed by yaml.Unmarshal into a
// plain struct, validated once at load time.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arvidsson/benor-agreement/core"
)

// NodeSpec describes one cohort member as listed in the config file.
type NodeSpec struct {
	ID           int  `yaml:"id"`
	InitialValue int  `yaml:"initial_value"`
	Faulty       bool `yaml:"faulty"`
}

// Cohort is the full config file shape: a base port every node listens on
// at BasePort+ID, and the ordered list of nodes.
type Cohort struct {
	BasePort int        `yaml:"base_port"`
	Nodes    []NodeSpec `yaml:"nodes"`
}

// Load reads and validates a cohort config file.
func Load(path string) (Cohort, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Cohort{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Cohort
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Cohort{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return Cohort{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

func (c Cohort) validate() error {
	if c.BasePort <= 0 {
		return fmt.Errorf("base_port must be positive, got %d", c.BasePort)
	}
	if len(c.Nodes) < 3 {
		return fmt.Errorf("need at least 3 nodes, got %d", len(c.Nodes))
	}
	seen := make(map[int]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID < 0 || n.ID >= len(c.Nodes) {
			return fmt.Errorf("node id %d out of range [0,%d)", n.ID, len(c.Nodes))
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %d", n.ID)
		}
		seen[n.ID] = true
		if n.InitialValue != 0 && n.InitialValue != 1 {
			return fmt.Errorf("node %d: initial_value must be 0 or 1, got %d", n.ID, n.InitialValue)
		}
	}
	return nil
}

// N is the total node count.
func (c Cohort) N() int {
	return len(c.Nodes)
}

// F is the declared maximum faulty count, derived by counting nodes marked
// faulty in the config rather than carried as a separate field, so the two
// can never drift apart.
func (c Cohort) F() int {
	f := 0
	for _, n := range c.Nodes {
		if n.Faulty {
			f++
		}
	}
	return f
}

// Addr returns the "host:port" address of node id.
func (c Cohort) Addr(id int) string {
	return fmt.Sprintf("127.0.0.1:%d", c.BasePort+id)
}

// PeerAddrs returns every node's address keyed by core.NodeID, including
// the caller's own id — callers that need "every peer but me" (the
// Broadcaster) filter it out themselves.
func (c Cohort) PeerAddrs() map[core.NodeID]string {
	addrs := make(map[core.NodeID]string, len(c.Nodes))
	for _, n := range c.Nodes {
		addrs[core.NodeID(n.ID)] = c.Addr(n.ID)
	}
	return addrs
}

// Spec returns the NodeSpec for id, and whether it was found.
func (c Cohort) Spec(id int) (NodeSpec, bool) {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}
