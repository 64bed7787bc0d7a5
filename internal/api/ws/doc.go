// Package ws pushes build-lifecycle events to UI clients in real time.
//
// Each connection gets its own notifier subscription; a slow client loses
// events rather than stalling the build pipeline.
//
// Message Types (Server → Client):
//   - connected: handshake acknowledgement
//   - file-changed: a relevant workspace file changed
//   - rebuild-started: a rebuild began for a session
//   - rebuild-completed: a rebuild finished, with per-target results
package ws
