// Package project reads per-workspace build configuration.
//
// A workspace may carry an optional livebuild.yaml at its root overriding
// the service defaults: the bundle entry file, the mobile platform set, and
// extra ignore globs for the change filter. Absence of the file is not an
// error; malformed YAML is.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// FileName is the per-workspace config file looked up at the workspace root.
const FileName = "livebuild.yaml"

// Config is the optional per-workspace build configuration.
type Config struct {
	Entry     string   `yaml:"entry"`
	Platforms []string `yaml:"platforms"`
	Ignore    []string `yaml:"ignore"`
}

// Load reads livebuild.yaml from workspaceRoot. Returns (nil, nil) when the
// file does not exist.
func Load(workspaceRoot string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(workspaceRoot, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	return &cfg, nil
}
