package build

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/draftbench/livebuild/internal/compiler"
	"github.com/draftbench/livebuild/internal/domain/event"
	"github.com/draftbench/livebuild/internal/domain/project"
	"github.com/draftbench/livebuild/internal/domain/session"
	"github.com/draftbench/livebuild/internal/infrastructure/logging"
	"github.com/draftbench/livebuild/internal/infrastructure/monitoring"
	"github.com/draftbench/livebuild/internal/shared/fsx"
	"github.com/draftbench/livebuild/internal/shared/types"
)

// ActiveBuild describes a build currently executing for a session.
type ActiveBuild struct {
	StartTime   time.Time `json:"startTime"`
	TriggerFile string    `json:"triggerFile"`
}

// Options configures the orchestrator.
type Options struct {
	Platforms      []string // mobile platforms to fan out to
	Entry          string   // default workspace entry file
	Minify         bool
	CompileTimeout time.Duration // per-target compile bound; 0 means none
	HistorySize    int
}

// Orchestrator coordinates rebuild execution: it deduplicates concurrent
// requests per session, invokes the injected compilers, fans out to all
// configured targets, aggregates results, and guarantees cleanup on every
// exit path. Rebuilds for one session are never concurrent; rebuilds for
// different sessions are fully independent.
type Orchestrator struct {
	sessions *session.Manager
	web      compiler.Compiler
	mobile   compiler.Compiler
	notifier *event.Notifier
	history  *History
	opts     Options
	log      *logging.Logger
	metrics  *monitoring.Metrics

	mu     sync.Mutex
	active map[string]*ActiveBuild
}

// NewOrchestrator creates a build orchestrator. Both compilers are required;
// they are the only way code leaves a workspace.
func NewOrchestrator(
	sessions *session.Manager,
	web, mobile compiler.Compiler,
	notifier *event.Notifier,
	opts Options,
	log *logging.Logger,
) *Orchestrator {
	if opts.Entry == "" {
		opts.Entry = "index.tsx"
	}
	return &Orchestrator{
		sessions: sessions,
		web:      web,
		mobile:   mobile,
		notifier: notifier,
		history:  NewHistory(opts.HistorySize),
		opts:     opts,
		active:   make(map[string]*ActiveBuild),
		log:      log,
	}
}

// WithMetrics enables build metrics.
func (o *Orchestrator) WithMetrics(metrics *monitoring.Metrics) *Orchestrator {
	o.metrics = metrics
	return o
}

// InFlight reports whether a build is currently executing for sessionID.
func (o *Orchestrator) InFlight(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[sessionID]
	return ok
}

// Active returns a snapshot of all in-flight builds keyed by session.
func (o *Orchestrator) Active() map[string]ActiveBuild {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]ActiveBuild, len(o.active))
	for sid, ab := range o.active {
		out[sid] = *ab
	}
	return out
}

// History returns recorded build summaries for a session, oldest first.
func (o *Orchestrator) History(sessionID string) []types.BuildSummary {
	return o.history.For(sessionID)
}

// ForgetHistory drops a removed session's build history.
func (o *Orchestrator) ForgetHistory(sessionID string) {
	o.history.Forget(sessionID)
}

// ExecuteRebuild runs one full rebuild attempt for a session.
//
// If a build for the session is already in flight the request is silently
// dropped: the running build reads the workspace at compile time, so it
// picks up the newest on-disk state anyway. Compile failures are captured
// into the rebuild-completed event, never returned; the only error paths
// are an unknown session and a cancelled context.
func (o *Orchestrator) ExecuteRebuild(ctx context.Context, sessionID, triggerFile string) error {
	o.mu.Lock()
	if _, busy := o.active[sessionID]; busy {
		o.mu.Unlock()
		if o.metrics != nil {
			o.metrics.BuildsDeduped.Inc()
		}
		o.log.Debug("Build already in flight, dropping request",
			zap.String("session_id", sessionID),
			zap.String("trigger", triggerFile),
		)
		return nil
	}
	start := time.Now()
	o.active[sessionID] = &ActiveBuild{StartTime: start, TriggerFile: triggerFile}
	o.mu.Unlock()

	// An orphaned entry would permanently block future rebuilds, so removal
	// must survive every exit path, panics included.
	defer func() {
		o.mu.Lock()
		delete(o.active, sessionID)
		o.mu.Unlock()
	}()

	sess, ok := o.sessions.Resolve(sessionID)
	if !ok {
		o.log.Warn("Rebuild requested for unknown session", zap.String("session_id", sessionID))
		o.publishCompleted(types.BuildSummary{
			SessionID:   sessionID,
			TriggerFile: triggerFile,
			StartedAt:   start,
		}, fmt.Sprintf("session %s not found", sessionID))
		return session.ErrNotFound
	}

	o.notifier.Publish(event.Event{
		Type:        event.TypeRebuildStarted,
		SessionID:   sessionID,
		TriggerFile: triggerFile,
	})
	o.log.Info("Rebuild started",
		zap.String("session_id", sessionID),
		zap.String("trigger", triggerFile),
	)

	entry, platforms := o.workspaceSettings(sess)

	results := make([]types.BuildResult, 0, 1+len(platforms))
	results = append(results, o.compileTarget(ctx, sess, types.TargetWeb, "", entry))

	// Mobile platforms are independent of each other's outcome but all must
	// finish before the completed event: join semantics, not race semantics.
	mobileResults := make([]types.BuildResult, len(platforms))
	var wg sync.WaitGroup
	for i, platform := range platforms {
		wg.Add(1)
		go func(i int, platform string) {
			defer wg.Done()
			mobileResults[i] = o.compileTarget(ctx, sess, types.MobileTarget(platform), platform, entry)
		}(i, platform)
	}
	wg.Wait()
	results = append(results, mobileResults...)

	elapsed := time.Since(start)
	summary := types.BuildSummary{
		SessionID:   sessionID,
		TriggerFile: triggerFile,
		StartedAt:   start,
		Duration:    elapsed,
		DurationMs:  elapsed.Milliseconds(),
		Success:     results[0].Success, // web is the gating target
		Results:     results,
	}
	o.history.Record(sessionID, summary)
	o.publishCompleted(summary, "")

	o.log.Info("Rebuild completed",
		zap.String("session_id", sessionID),
		zap.Bool("success", summary.Success),
		zap.Duration("elapsed", elapsed),
	)
	return ctx.Err()
}

func (o *Orchestrator) publishCompleted(summary types.BuildSummary, errMsg string) {
	success := summary.Success
	o.notifier.Publish(event.Event{
		Type:        event.TypeRebuildCompleted,
		SessionID:   summary.SessionID,
		TriggerFile: summary.TriggerFile,
		DurationMs:  summary.DurationMs,
		Success:     &success,
		BuildResult: &summary,
		Error:       errMsg,
	})
}

// workspaceSettings resolves the entry file and platform set, honoring the
// workspace's optional project config over service defaults.
func (o *Orchestrator) workspaceSettings(sess session.Session) (string, []string) {
	entry := o.opts.Entry
	platforms := o.opts.Platforms

	cfg, err := project.Load(sess.WorkspacePath)
	if err != nil {
		o.log.Warn("Ignoring malformed project config",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
	if cfg != nil {
		if cfg.Entry != "" {
			entry = cfg.Entry
		}
		if len(cfg.Platforms) > 0 {
			platforms = cfg.Platforms
		}
	}
	return entry, platforms
}

// compileTarget runs one compiler invocation and materializes its outputs.
// All failure modes, panics included, are folded into the returned result so
// one broken target can never take down its siblings or the process.
func (o *Orchestrator) compileTarget(ctx context.Context, sess session.Session, target, platform, entry string) (result types.BuildResult) {
	start := time.Now()
	result = types.BuildResult{SessionID: sess.ID, Target: target}

	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Sprintf("compiler panic: %v", r)
			result.DurationMs = time.Since(start).Milliseconds()
			o.log.Error("Compiler panicked",
				zap.String("session_id", sess.ID),
				zap.String("target", target),
				zap.Any("panic", r),
			)
		}
		if o.metrics != nil {
			o.metrics.RecordBuild(target, result.Success, time.Since(start))
		}
	}()

	if o.opts.CompileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.CompileTimeout)
		defer cancel()
	}

	comp := o.web
	if platform != "" {
		comp = o.mobile
	}
	res, err := comp.Compile(ctx, compiler.Request{
		Entry:         entry,
		WorkspaceRoot: sess.WorkspacePath,
		Options: compiler.Options{
			Platform: platform,
			Dev:      true,
			Minify:   o.opts.Minify,
		},
	})
	if err != nil {
		result.Error = err.Error()
		result.DurationMs = time.Since(start).Milliseconds()
		o.log.Warn("Target build failed",
			zap.String("session_id", sess.ID),
			zap.String("target", target),
			zap.Error(err),
		)
		return result
	}

	outputPath, err := o.writeOutputs(sess, platform, res)
	if err != nil {
		result.Error = err.Error()
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}

	result.Success = true
	result.OutputPath = outputPath
	result.BundleSizeBytes = res.OutputBytes
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// writeOutputs places bundle and source map in the session's output layout:
// dist/bundle.js for web, mobile-dist/{sessionId}.{platform}.bundle for
// mobile platforms.
func (o *Orchestrator) writeOutputs(sess session.Session, platform string, res *compiler.Result) (string, error) {
	var outputPath string
	if platform == "" {
		outputPath = filepath.Join(sess.Dist(), "bundle.js")
	} else {
		outputPath = filepath.Join(sess.MobileDist(), fmt.Sprintf("%s.%s.bundle", sess.ID, platform))
	}

	if err := fsx.WriteFile(outputPath, res.Code); err != nil {
		return "", fmt.Errorf("write bundle: %w", err)
	}
	if len(res.SourceMap) > 0 {
		if err := fsx.WriteFile(outputPath+".map", res.SourceMap); err != nil {
			return "", fmt.Errorf("write source map: %w", err)
		}
	}
	return outputPath, nil
}
