package graph

import (
	"errors"
	"time"
)

// NodePolicy configures the execution behavior for a specific node.
//
// Policies are attached with Builder.SetPolicy. Zero fields fall back to the
// engine Options.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for this node.
	// If zero, Options.DefaultNodeTimeout is used.
	Timeout time.Duration
}

// Validate checks the policy for invalid values.
func (p NodePolicy) Validate() error {
	if p.Timeout < 0 {
		return errors.New("node policy timeout must be >= 0")
	}
	return nil
}
