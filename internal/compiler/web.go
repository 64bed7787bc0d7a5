package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Web invokes an esbuild-compatible bundler CLI to produce a browser bundle.
type Web struct {
	// Bin is the bundler executable, resolved via PATH if not absolute.
	Bin string
}

// NewWeb creates a web compiler backed by the given bundler binary.
func NewWeb(bin string) *Web {
	return &Web{Bin: bin}
}

// Compile bundles the entry file for the browser. The bundler writes into a
// scratch directory; code and source map are returned in memory so the caller
// decides final placement.
func (w *Web) Compile(ctx context.Context, req Request) (*Result, error) {
	scratch, err := os.MkdirTemp("", "livebuild-web-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	outfile := filepath.Join(scratch, "bundle.js")
	args := []string{
		req.Entry,
		"--bundle",
		"--sourcemap=external",
		"--outfile=" + outfile,
		"--loader:.ts=ts", "--loader:.tsx=tsx",
	}
	if req.Options.Minify {
		args = append(args, "--minify")
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, w.Bin, args...)
	cmd.Dir = req.WorkspaceRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &Error{Target: "web", Stderr: stderr.String(), Err: err}
	}

	return readOutputs(outfile, "web", time.Since(start))
}

// readOutputs loads bundle and source map written by a bundler CLI.
func readOutputs(outfile, target string, elapsed time.Duration) (*Result, error) {
	code, err := os.ReadFile(outfile)
	if err != nil {
		return nil, &Error{Target: target, Err: fmt.Errorf("read bundle: %w", err)}
	}
	// Source map is best-effort; some bundler configs omit it.
	srcmap, err := os.ReadFile(outfile + ".map")
	if err != nil && !os.IsNotExist(err) {
		return nil, &Error{Target: target, Err: fmt.Errorf("read source map: %w", err)}
	}

	return &Result{
		Code:        code,
		SourceMap:   srcmap,
		Duration:    elapsed,
		OutputBytes: int64(len(code)),
	}, nil
}
