// Package flusher drives the flush workflow: a fixed pool of workers takes
// paths from a queue, resolves each to a file handle over the shared
// session, requests write-back, and polls until the cache confirms the file
// clean, the file fails, or its deadline passes.
package flusher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/logger"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/nfs"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/rpc"
	"github.com/microsoft/hpc-cache-nfsv3-client/pkg/metrics"
)

// DefaultRecheckInterval is the pause between write-back status probes.
const DefaultRecheckInterval = 250 * time.Millisecond

// Defaults for worker count, per-file deadline, and async queue depth.
const (
	DefaultThreads     = 4
	DefaultFileTimeout = 300 * time.Second
	DefaultAsyncDepth  = 4
)

// Session is the slice of the flush client the orchestrator needs. The
// concrete implementation is flushclient.Session; tests substitute fakes.
type Session interface {
	Resolve(path string) (nfs.FileHandle, error)
	FlushSync(fh nfs.FileHandle) (nfs.FlushState, error)
	FlushAsync(fh nfs.FileHandle) (nfs.FlushState, error)
	FlushStatus(fh nfs.FileHandle) (nfs.FlushState, error)
}

// Config tunes a run.
type Config struct {
	// Threads is the worker count. Each worker owns at most one in-flight
	// file in sync mode, or up to AsyncDepth in async mode.
	Threads int

	// FileTimeout is the per-file deadline, measured from the moment a
	// worker picks the path up.
	FileTimeout time.Duration

	// Sync selects blocking flush calls; otherwise workers trigger
	// write-back asynchronously and poll a bounded set of pending files.
	Sync bool

	// AsyncDepth caps the pending files a worker tracks in async mode.
	AsyncDepth int

	// Recheck is the status poll interval. Zero selects the default.
	Recheck time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.FileTimeout <= 0 {
		c.FileTimeout = DefaultFileTimeout
	}
	if c.AsyncDepth <= 0 {
		c.AsyncDepth = DefaultAsyncDepth
	}
	if c.Recheck <= 0 {
		c.Recheck = DefaultRecheckInterval
	}
	return c
}

// Flusher runs flush jobs against one session.
type Flusher struct {
	session Session
	cfg     Config
	metrics metrics.RPCMetrics
}

// New builds a Flusher. Zero config fields take their defaults.
func New(session Session, cfg Config) *Flusher {
	return &Flusher{
		session: session,
		cfg:     cfg.withDefaults(),
		metrics: metrics.Get(),
	}
}

// Run consumes paths until the channel closes and returns a report with
// exactly one result per path. Cancelling ctx stops intake; files already
// in flight are recorded as TimedOut with the context's error.
func (f *Flusher) Run(ctx context.Context, paths <-chan string) *Report {
	results := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < f.cfg.Threads; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if f.cfg.Sync {
				f.syncWorker(ctx, id, paths, results)
			} else {
				f.asyncWorker(ctx, id, paths, results)
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	report := &Report{}
	for res := range results {
		f.metrics.FlushOutcome(res.Outcome.String())
		report.Results = append(report.Results, res)
	}
	return report
}

// ============================================================================
// Sync Mode
// ============================================================================

// syncWorker flushes one file at a time: a blocking flush call, then status
// polls if the server answered "still running" or the call itself timed out.
func (f *Flusher) syncWorker(ctx context.Context, id int, paths <-chan string, results chan<- Result) {
	for {
		path, ok := nextPath(ctx, paths)
		if !ok {
			return
		}

		start := time.Now()
		deadline := start.Add(f.cfg.FileTimeout)

		fh, err := f.session.Resolve(path)
		if err != nil {
			results <- finish(id, path, ResolutionFailed, err, start)
			continue
		}

		state, err := f.session.FlushSync(fh)
		switch {
		case err == nil && state == nfs.FlushClean:
			results <- finish(id, path, Flushed, nil, start)
			continue
		case err == nil && state == nfs.FlushDirty:
			results <- finish(id, path, FlushFailed, errDirty, start)
			continue
		case err != nil && !retriable(err):
			results <- finish(id, path, FlushFailed, err, start)
			continue
		}

		// Still running (or the blocking call outlived its RPC timeout):
		// fall back to polling until the file's deadline.
		outcome, err := f.pollUntil(ctx, fh, deadline)
		results <- finish(id, path, outcome, err, start)
	}
}

// ============================================================================
// Async Mode
// ============================================================================

// pendingFile is one async flush a worker is tracking.
type pendingFile struct {
	path     string
	fh       nfs.FileHandle
	start    time.Time
	deadline time.Time
}

// asyncWorker keeps up to AsyncDepth flushes in flight: it triggers
// write-back without blocking, parks the handle in its slot set, and probes
// every pending file once per tick. Intake blocks only while nothing is
// pending; once a file is in flight, a slow path producer must not delay
// the status polls or the per-file deadlines.
func (f *Flusher) asyncWorker(ctx context.Context, id int, paths <-chan string, results chan<- Result) {
	var pending []pendingFile
	intakeOpen := true

	ticker := time.NewTicker(f.cfg.Recheck)
	defer ticker.Stop()

	for intakeOpen || len(pending) > 0 {
		if intakeOpen && len(pending) == 0 {
			path, ok := nextPath(ctx, paths)
			if !ok {
				intakeOpen = false
				continue
			}
			if p, done := f.startAsync(id, path, results); !done {
				pending = append(pending, p)
			}
			continue
		}

		intake := paths
		if !intakeOpen || len(pending) >= f.cfg.AsyncDepth {
			intake = nil
		}

		select {
		case <-ctx.Done():
			for _, p := range pending {
				results <- finish(id, p.path, TimedOut, ctx.Err(), p.start)
			}
			return

		case path, ok := <-intake:
			if !ok {
				intakeOpen = false
				continue
			}
			if p, done := f.startAsync(id, path, results); !done {
				pending = append(pending, p)
			}

		case <-ticker.C:
			remaining := pending[:0]
			for _, p := range pending {
				if done := f.pollPending(ctx, id, p, results); !done {
					remaining = append(remaining, p)
				}
			}
			pending = remaining
		}
	}
}

// startAsync resolves a path and triggers its flush. done reports whether a
// terminal result was already emitted.
func (f *Flusher) startAsync(id int, path string, results chan<- Result) (pendingFile, bool) {
	start := time.Now()

	fh, err := f.session.Resolve(path)
	if err != nil {
		results <- finish(id, path, ResolutionFailed, err, start)
		return pendingFile{}, true
	}

	state, err := f.session.FlushAsync(fh)
	switch {
	case err == nil && state == nfs.FlushClean:
		results <- finish(id, path, Flushed, nil, start)
		return pendingFile{}, true
	case err == nil && state == nfs.FlushDirty:
		results <- finish(id, path, FlushFailed, errDirty, start)
		return pendingFile{}, true
	case err != nil && !retriable(err):
		results <- finish(id, path, FlushFailed, err, start)
		return pendingFile{}, true
	}

	logger.Debug("Thread=%02d flush pending for %s", id, path)
	return pendingFile{
		path:     path,
		fh:       fh,
		start:    start,
		deadline: start.Add(f.cfg.FileTimeout),
	}, false
}

// pollPending probes one pending file. done reports whether it reached a
// terminal outcome.
func (f *Flusher) pollPending(ctx context.Context, id int, p pendingFile, results chan<- Result) bool {
	state, err := f.session.FlushStatus(p.fh)
	switch {
	case err == nil && state == nfs.FlushClean:
		results <- finish(id, p.path, Flushed, nil, p.start)
		return true
	case err == nil && state == nfs.FlushDirty:
		results <- finish(id, p.path, FlushFailed, errDirty, p.start)
		return true
	case err != nil && !retriable(err):
		results <- finish(id, p.path, FlushFailed, err, p.start)
		return true
	}

	if time.Now().After(p.deadline) {
		results <- finish(id, p.path, TimedOut, errDeadline, p.start)
		return true
	}

	logger.Debug("Thread=%02d still flushing %s", id, p.path)
	return false
}

// ============================================================================
// Shared Helpers
// ============================================================================

var (
	errDirty    = errors.New("write-back stopped with dirty data remaining")
	errDeadline = errors.New("per-file deadline exceeded")
)

// pollUntil probes fh every tick until it is clean, dirty, or past deadline.
// Transient poll errors are retried on the next tick.
func (f *Flusher) pollUntil(ctx context.Context, fh nfs.FileHandle, deadline time.Time) (Outcome, error) {
	ticker := time.NewTicker(f.cfg.Recheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TimedOut, ctx.Err()
		case <-ticker.C:
		}

		state, err := f.session.FlushStatus(fh)
		switch {
		case err == nil && state == nfs.FlushClean:
			return Flushed, nil
		case err == nil && state == nfs.FlushDirty:
			return FlushFailed, errDirty
		case err != nil && !retriable(err):
			return FlushFailed, err
		}

		if time.Now().After(deadline) {
			return TimedOut, errDeadline
		}
	}
}

// retriable reports whether an error on a flush call or status probe should
// be retried on the next tick instead of failing the file. Timeouts and
// connection-level hiccups qualify; protocol-level refusals (unexpected
// status codes, RPC faults, malformed replies) do not.
func retriable(err error) bool {
	var timeoutErr *rpc.TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var transportErr *rpc.TransportError
	return errors.As(err, &transportErr)
}

// nextPath blocks for the next queued path, honoring cancellation.
func nextPath(ctx context.Context, paths <-chan string) (string, bool) {
	select {
	case <-ctx.Done():
		return "", false
	case path, ok := <-paths:
		return path, ok
	}
}

// finish logs and builds the terminal result for one file.
func finish(id int, path string, outcome Outcome, err error, start time.Time) Result {
	elapsed := time.Since(start)
	switch outcome {
	case Flushed:
		logger.Info("Thread=%02d Flushed %s in %.2f sec", id, path, elapsed.Seconds())
	default:
		logger.Error("Thread=%02d %s %s after %.2f sec: %v", id, outcome, path, elapsed.Seconds(), err)
	}
	return Result{Path: path, Outcome: outcome, Err: err, Duration: elapsed}
}
