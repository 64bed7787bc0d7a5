// Package event publishes build-lifecycle events to interested listeners.
//
// Events flow one way: domain components publish, the WebSocket layer
// subscribes and forwards to UI clients. Delivery is best-effort per
// subscriber; the build pipeline never waits on a consumer.
//
// Event Types:
//   - file-changed: a relevant workspace file was created/modified/deleted
//   - rebuild-started: the orchestrator began a build for a session
//   - rebuild-completed: the build finished, with per-target results
package event
