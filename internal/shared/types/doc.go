// Package types contains shared data types used across domain packages.
//
// Keeping BuildResult here avoids an import cycle between the build
// orchestrator (which produces results) and the event notifier (which
// carries them on lifecycle events).
package types
