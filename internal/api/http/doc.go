// Package http provides the control-plane HTTP handlers: session lifecycle,
// manual rebuild triggering, pipeline status, build history, and bundle
// preview. Handlers are thin glue over the domain packages; orchestration
// policy lives there, not here.
package http
