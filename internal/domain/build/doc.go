// Package build schedules and executes workspace rebuilds.
//
// Two cooperating pieces implement the session build state machine
// (Idle -> Scheduled -> Building -> Idle):
//
//   - Scheduler debounces bursts of relevant changes into one pending
//     rebuild per session, last trigger path winning. A newer change
//     supersedes (Scheduled -> Idle) a not-yet-fired timer.
//   - Orchestrator executes the rebuild: per-session in-flight dedup,
//     one web compilation, mobile fan-out with per-platform fault
//     isolation, result aggregation, and lifecycle event emission. The
//     in-flight entry is removed on every exit path.
package build
