package compiler

import (
	"context"
	"fmt"
	"time"
)

// Options controls a single compilation.
type Options struct {
	Platform string // mobile platform ("android", "ios"); empty for web
	Dev      bool
	Minify   bool
}

// Request describes one compilation of a workspace entry file.
type Request struct {
	Entry         string // path to the entry file, absolute or workspace-relative
	WorkspaceRoot string
	Options       Options
}

// Result is the output of a successful compilation.
type Result struct {
	Code        []byte
	SourceMap   []byte
	Duration    time.Duration
	OutputBytes int64
}

// Compiler turns a workspace entry file into executable code, a source map,
// and size/timing statistics. Implementations are opaque, possibly slow, and
// possibly failing; the orchestrator treats them as black boxes.
type Compiler interface {
	Compile(ctx context.Context, req Request) (*Result, error)
}

// Error carries bundler diagnostics alongside the failure.
type Error struct {
	Target string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("compile %s: %v: %s", e.Target, e.Err, e.Stderr)
	}
	return fmt.Sprintf("compile %s: %v", e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
