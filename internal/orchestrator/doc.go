// Package orchestrator drives a task through its planned phases, enforcing
// quality gates between them.
//
// The state machine has states Planned, Running(phase), GateCheck,
// Escalating, Blocked, Completed, and Failed. GateCheck and Escalating are
// transient: each transition (Start, Advance, Abort) runs to completion
// before the next call is accepted, so only Running, Blocked, and the two
// terminal states survive between calls. They are projected onto the task
// as its status, current phase, and plan position.
//
// Phase execution is external and may be long-running; Advance is the
// resumption point. The orchestrator suspends between calls with no polling
// or busy-waiting. Transitions on one task are serialized by the Engine;
// a call on a busy task fails with workflow.ErrConcurrentTransition and
// leaves the task unchanged.
package orchestrator
