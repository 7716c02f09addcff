package agent

import (
	"context"
	"log/slog"

	"github.com/jllopis/kairos-orchestrator/pkg/core"
)

// State returns the current lifecycle state.
func (c *Controller) State() core.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Initialize moves a fresh controller from idle to initialized. Any other
// starting state is a conflict.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	from := c.state
	if from != core.StateIdle || !core.CanTransition(from, core.StateInitialized) {
		c.mu.Unlock()
		return newStateConflict("initialize", from, core.StateInitialized)
	}
	c.state = core.StateInitialized
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "agent initialized",
		slog.String("agent_id", c.id),
		slog.String("model", c.gateway.Model()),
		slog.Any("tools", c.registry.List()),
	)
	return nil
}

// Shutdown moves the controller to terminated from any state. Later requests
// are rejected.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	c.state = core.StateTerminated
	c.mu.Unlock()
}

// Reset returns a controller left in the error state to idle.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != core.StateError {
		return newStateConflict("reset", c.state, core.StateIdle)
	}
	c.state = core.StateIdle
	return nil
}

// begin claims the controller for one request.
func (c *Controller) begin(operation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.AcceptsRequests() || !core.CanTransition(c.state, core.StateProcessing) {
		return newStateConflict(operation, c.state, core.StateProcessing)
	}
	c.state = core.StateProcessing
	return nil
}

// finish releases the controller after a request. A concurrent Shutdown wins.
func (c *Controller) finish(to core.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == core.StateProcessing {
		c.state = to
	}
}
