// Package refresh runs the external crawler that regenerates the event feed.
package refresh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	appLog "latinevents/internal/log"
	"latinevents/internal/metrics"
)

// ErrBusy is returned by Run while another run is in progress.
var ErrBusy = errors.New("refresh already running")

const (
	defaultTimeout = 10 * time.Minute
	// waitDelay bounds how long Run waits for output pipes after the
	// process was killed.
	waitDelay = 5 * time.Second
)

// Result is the outcome of one crawler run, shaped as the API response.
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Config describes the crawler invocation.
type Config struct {
	Command []string
	Dir     string
	Timeout time.Duration
}

// Runner runs the crawler, at most one run at a time.
type Runner struct {
	cfg     Config
	metrics *metrics.Metrics
	running atomic.Bool
}

// NewRunner creates a Runner. A zero timeout uses ten minutes.
func NewRunner(cfg Config, m *metrics.Metrics) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Runner{cfg: cfg, metrics: m}
}

// Run executes the crawler and waits for it to exit. Standard output is
// logged line by line; on failure the result carries the standard error
// output, or the exit status when stderr was empty. The returned error is
// ErrBusy when a run is already in progress and nil otherwise.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Result{}, ErrBusy
	}
	defer r.running.Store(false)

	start := time.Now()
	res := r.run(ctx)
	r.metrics.ObserveRefresh(res.OK)

	if res.OK {
		appLog.Info("crawler finished", "duration", time.Since(start).String())
	} else {
		appLog.Warn("crawler failed", "duration", time.Since(start).String(), "error", res.Error)
	}
	return res, nil
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	return r.running.Load()
}

func (r *Runner) run(ctx context.Context) Result {
	if len(r.cfg.Command) == 0 || r.cfg.Command[0] == "" {
		return Result{Error: "no crawler command configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.Command[0], r.cfg.Command[1:]...)
	cmd.Dir = r.cfg.Dir
	cmd.WaitDelay = waitDelay

	stdout := &lineLogger{prefix: "[crawler]"}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	appLog.Info("starting crawler", "command", strings.Join(r.cfg.Command, " "), "dir", r.cfg.Dir)
	err := cmd.Run()
	stdout.Flush()

	if err == nil {
		return Result{OK: true}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{Error: fmt.Sprintf("crawler timed out after %s", r.cfg.Timeout)}
	}
	if msg := stderr.String(); msg != "" {
		return Result{Error: msg}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{Error: fmt.Sprintf("Exited with %d", exitErr.ExitCode())}
	}
	return Result{Error: err.Error()}
}

// CacheBustToken returns the token appended to the feed URL after a
// refresh so caches between here and the feed are bypassed.
func CacheBustToken(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// lineLogger is an io.Writer that logs every complete line it receives.
type lineLogger struct {
	prefix string
	buf    []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(l.buf[:i])
		l.buf = l.buf[i+1:]
	}
	return len(p), nil
}

// Flush logs a trailing line without newline.
func (l *lineLogger) Flush() {
	if len(l.buf) > 0 {
		l.emit(l.buf)
		l.buf = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	s := strings.TrimSpace(string(line))
	if s == "" {
		return
	}
	appLog.Info(l.prefix + " " + s)
}
