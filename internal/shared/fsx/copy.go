// Package fsx provides filesystem helpers shared by the session registry
// and build orchestrator.
package fsx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charlievieth/fastwalk"
)

// CopyTree recursively copies the directory tree rooted at src into dst,
// preserving file modes. Version-control and dependency-cache directories
// are skipped; the copy is a fresh workspace, not a clone.
func CopyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat template root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("template root %s is not a directory", src)
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}

	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		base := d.Name()
		if d.IsDir() && (base == ".git" || base == "node_modules") {
			return fastwalk.SkipDir
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, fi.Mode().Perm())
		}
		if !d.Type().IsRegular() {
			// Symlinks and devices have no place in a sandboxed workspace.
			return nil
		}
		return copyFile(p, target, d)
	})
}

// copyFile copies a single regular file. Walk callbacks may run concurrently
// and out of order, so the parent directory is created on demand.
func copyFile(src, dst string, d os.DirEntry) error {
	fi, err := d.Info()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// WriteFile writes data to path, creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
