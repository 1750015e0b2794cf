// Package activity models whether the user is presently active as an
// explicit closure passed to whatever background task cares about UI
// latency, instead of a global flag.
package activity

// Probe reports whether the user is presently interacting with the editor.
// Background tasks (the indexer, the save worker) consult it between units
// of work to decide how long to yield, instead of reading global state.
type Probe func() bool

// AlwaysIdle is a Probe that always reports no activity, suitable for
// headless callers (the CLI, tests) that want background tasks to run at
// full speed.
func AlwaysIdle() bool { return false }

// Static returns a Probe that always reports the given value.
func Static(active bool) Probe {
	return func() bool { return active }
}
