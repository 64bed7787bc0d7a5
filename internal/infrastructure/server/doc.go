// Package server wires configuration, logging, metrics, the session
// registry, the watch/schedule/build pipeline, and the HTTP/WebSocket API
// into one runnable service. All shared state is owned here and injected
// down; nothing in the domain packages is a process-wide global.
package server
