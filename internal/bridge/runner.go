package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dotcommander/poka/internal/models"
)

// Per-action timeouts. Actions not listed get the default.
var actionTimeouts = map[string]time.Duration{
	"test":              120 * time.Second,
	"audit-gate":        60 * time.Second,
	"lint":              60 * time.Second,
	"check-ref-sizes":   10 * time.Second,
	"sync":              30 * time.Second,
	"commit":            30 * time.Second,
	"verify-tasks":      15 * time.Second,
	"verify-clean":      10 * time.Second,
	"check-blockers":    10 * time.Second,
	"suggest-skills":    10 * time.Second,
	"detect-spike":      10 * time.Second,
	"capture-knowledge": 15 * time.Second,
	"session-summary":   15 * time.Second,
	"session-chain":     30 * time.Second,
	"post-review-fail":  30 * time.Second,
	"recover":           30 * time.Second,
	"pre-flight":        30 * time.Second,
	"graduate-rules":    10 * time.Second,
}

const defaultActionTimeout = 30 * time.Second

// maxActionOutput caps captured stdout/stderr per stream. Action scripts
// that dump more than this get truncated, not killed.
const maxActionOutput = 256 * 1024

// ActionTimeout returns the wall-clock budget for one action.
func ActionTimeout(name string) time.Duration {
	if d, ok := actionTimeouts[name]; ok {
		return d
	}
	return defaultActionTimeout
}

// Runner executes action scripts from the project's actions directory.
// Every failure mode maps to a structured outcome; Run never returns an
// error because a broken action must not break the hook.
type Runner struct {
	ActionsDir string
	ProjectDir string
	Limiter    *RateLimiter
}

// NewRunner returns a runner over the given directories with a fresh limiter.
func NewRunner(actionsDir, projectDir string) *Runner {
	return &Runner{ActionsDir: actionsDir, ProjectDir: projectDir, Limiter: NewRateLimiter()}
}

// Run executes the named action script with extra environment overrides.
// Overrides pass through SanitizeEnvValue; a single dangerous value blocks
// the whole execution.
func (r *Runner) Run(name string, args []string, env map[string]string) models.ActionOutcome {
	scriptPath := filepath.Join(r.ActionsDir, name+".sh")
	if _, err := os.Stat(scriptPath); err != nil {
		return models.ActionOutcome{Action: name, Status: models.ActionSkipped, Reason: "script not found"}
	}

	sanitized := make(map[string]string, len(env))
	for k, v := range env {
		clean, err := SanitizeEnvValue(v, k)
		if err != nil {
			return models.ActionOutcome{Action: name, Status: models.ActionBlocked, Reason: err.Error()}
		}
		sanitized[k] = clean
	}

	return r.execute(name, scriptPath, args, sanitized)
}

// RunAt executes a script at an explicit path, outside the actions
// directory. Callers own the environment; values are passed through as-is.
func (r *Runner) RunAt(scriptPath string, env map[string]string) models.ActionOutcome {
	name := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	if _, err := os.Stat(scriptPath); err != nil {
		return models.ActionOutcome{Action: name, Status: models.ActionSkipped, Reason: "script not found"}
	}
	return r.execute(name, scriptPath, nil, env)
}

func (r *Runner) execute(name, scriptPath string, args []string, env map[string]string) models.ActionOutcome {
	if err := r.Limiter.Allow(name); err != nil {
		return models.ActionOutcome{Action: name, Status: models.ActionRateLimited, Reason: err.Error()}
	}

	timeout := ActionTimeout(name)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, scriptPath, args...) //nolint:gosec // G204: path is actions-dir scoped, env is sanitized
	cmd.Dir = r.ProjectDir
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &stdout, max: maxActionOutput}
	cmd.Stderr = &limitedWriter{buf: &stderr, max: maxActionOutput}

	err := cmd.Run()

	outcome := models.ActionOutcome{
		Action: name,
		Output: strings.TrimSpace(stdout.String()),
		Error:  strings.TrimSpace(stderr.String()),
	}

	switch {
	case err == nil:
		outcome.Status = models.ActionSuccess
	case ctx.Err() == context.DeadlineExceeded:
		outcome.Status = models.ActionTimeout
		outcome.Reason = fmt.Sprintf("exceeded %s", timeout)
	case isExitError(err):
		outcome.Status = models.ActionWarning
	default:
		outcome.Status = models.ActionError
		outcome.Reason = "script execution failed"
	}
	return outcome
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// limitedWriter discards bytes past max instead of erroring, so a chatty
// script still runs to completion.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	remaining := w.max - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}
