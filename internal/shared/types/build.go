package types

import "time"

// Build targets.
const (
	TargetWeb          = "web"
	MobileTargetPrefix = "mobile:"
)

// MobileTarget returns the target name for a mobile platform.
func MobileTarget(platform string) string {
	return MobileTargetPrefix + platform
}

// BuildResult describes the outcome of one compilation target within a
// rebuild attempt. One result is produced per target; results are carried
// on lifecycle events and never persisted.
type BuildResult struct {
	SessionID       string `json:"sessionId"`
	Target          string `json:"target"`
	OutputPath      string `json:"outputPath,omitempty"`
	BundleSizeBytes int64  `json:"bundleSizeBytes"`
	DurationMs      int64  `json:"durationMs"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
}

// BuildSummary aggregates one rebuild attempt across all targets.
// Success reflects the web target only; mobile failures are reported
// per-result without failing the attempt.
type BuildSummary struct {
	SessionID   string        `json:"sessionId"`
	TriggerFile string        `json:"triggerFile,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"-"`
	DurationMs  int64         `json:"durationMs"`
	Success     bool          `json:"success"`
	Results     []BuildResult `json:"results"`
}
