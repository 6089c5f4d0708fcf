package checkpoint

import (
	"context"
	"fmt"
)

// Registry maps configured names to checkpoint instances.
type Registry map[string]Checkpoint

// Chain evaluates checkpoints in a fixed order resolved at construction.
type Chain struct {
	checkpoints []Checkpoint
}

// Build resolves names against registry. Unknown or repeated names are a
// configuration error.
func Build(names []string, registry Registry) (*Chain, error) {
	seen := make(map[string]bool, len(names))
	chain := &Chain{checkpoints: make([]Checkpoint, 0, len(names))}
	for _, name := range names {
		cp, ok := registry[name]
		if !ok || cp == nil {
			return nil, fmt.Errorf("unknown checkpoint %q", name)
		}
		if seen[name] {
			return nil, fmt.Errorf("checkpoint %q configured twice", name)
		}
		seen[name] = true
		chain.checkpoints = append(chain.checkpoints, cp)
	}
	return chain, nil
}

// NewChain builds a chain from instances directly.
func NewChain(checkpoints ...Checkpoint) *Chain {
	return &Chain{checkpoints: checkpoints}
}

// Names lists the checkpoints in evaluation order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.checkpoints))
	for i, cp := range c.checkpoints {
		names[i] = cp.Name()
	}
	return names
}

// Run stops at the first rejection; later checkpoints are not invoked.
func (c *Chain) Run(ctx context.Context, user User, creds Credentials) (*Rejection, error) {
	for _, cp := range c.checkpoints {
		rej, err := cp.Login(ctx, user, creds)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", cp.Name(), err)
		}
		if rej != nil {
			return stamp(rej, cp), nil
		}
	}
	return nil, nil
}

// NotifyFailure calls every FailureRecorder once, in order, and returns the
// first rejection any of them surfaced.
func (c *Chain) NotifyFailure(ctx context.Context, creds Credentials) (*Rejection, error) {
	var first *Rejection
	for _, cp := range c.checkpoints {
		recorder, ok := cp.(FailureRecorder)
		if !ok {
			continue
		}
		rej, err := recorder.Fail(ctx, creds)
		if err != nil {
			return first, fmt.Errorf("checkpoint %s: %w", cp.Name(), err)
		}
		if rej != nil && first == nil {
			first = stamp(rej, cp)
		}
	}
	return first, nil
}

// Check gates a resumed session through every SessionChecker.
func (c *Chain) Check(ctx context.Context, user User) (*Rejection, error) {
	for _, cp := range c.checkpoints {
		checker, ok := cp.(SessionChecker)
		if !ok {
			continue
		}
		rej, err := checker.Check(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", cp.Name(), err)
		}
		if rej != nil {
			return stamp(rej, cp), nil
		}
	}
	return nil, nil
}

func stamp(rej *Rejection, cp Checkpoint) *Rejection {
	if rej.Checkpoint == "" {
		rej.Checkpoint = cp.Name()
	}
	return rej
}
