// Package progress carries stage-cycle milestones from the engine to pluggable
// sinks. The Hub buffers events on a background goroutine so the engine loop
// never waits on logging, metrics, or persistence.
package progress
