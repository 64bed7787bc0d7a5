package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/draftbench/livebuild/internal/shared/types"
)

// Mobile invokes a metro-compatible bundler CLI to produce a per-platform
// mobile bundle. Platform toolchains are more failure-prone than the web
// path; callers isolate failures per platform.
type Mobile struct {
	Bin string
}

// NewMobile creates a mobile compiler backed by the given bundler binary.
func NewMobile(bin string) *Mobile {
	return &Mobile{Bin: bin}
}

// Compile bundles the entry file for req.Options.Platform.
func (m *Mobile) Compile(ctx context.Context, req Request) (*Result, error) {
	platform := req.Options.Platform
	target := types.MobileTarget(platform)
	if platform == "" {
		return nil, &Error{Target: "mobile", Err: fmt.Errorf("platform is required")}
	}

	scratch, err := os.MkdirTemp("", "livebuild-mobile-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	outfile := filepath.Join(scratch, platform+".bundle")
	args := []string{
		"build",
		req.Entry,
		"--platform", platform,
		"--out", outfile,
		"--source-map",
	}
	if req.Options.Dev {
		args = append(args, "--dev")
	}
	if req.Options.Minify {
		args = append(args, "--minify")
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, m.Bin, args...)
	cmd.Dir = req.WorkspaceRoot
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &Error{Target: target, Stderr: stderr.String(), Err: err}
	}

	return readOutputs(outfile, target, time.Since(start))
}
