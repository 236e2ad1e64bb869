// Package notifications publishes pipeline run outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the orchestrator and daemon publish unconditionally. Delivery failures are
// returned to the caller, which logs them; they never change a run's state.
package notifications
