package flusher

import (
	"fmt"
	"time"
)

// Outcome is the terminal state of one file's flush attempt. Every submitted
// path reaches exactly one outcome.
type Outcome int

const (
	// Flushed: the cache confirmed the file clean on backing storage.
	Flushed Outcome = iota

	// FlushFailed: the cache reported write-back stopped with the file
	// still dirty, or an unrecoverable error ended the attempt.
	FlushFailed

	// ResolutionFailed: the path could not be resolved to a file handle.
	ResolutionFailed

	// TimedOut: the per-file deadline passed with write-back unconfirmed.
	TimedOut
)

func (o Outcome) String() string {
	switch o {
	case Flushed:
		return "flushed"
	case FlushFailed:
		return "flush_failed"
	case ResolutionFailed:
		return "resolution_failed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is the terminal record for one file.
type Result struct {
	Path     string
	Outcome  Outcome
	Err      error
	Duration time.Duration
}

// Report aggregates a whole run.
type Report struct {
	Results []Result
}

// Errors counts files that did not flush.
func (r *Report) Errors() int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome != Flushed {
			n++
		}
	}
	return n
}

// Counts tallies results by outcome.
func (r *Report) Counts() map[Outcome]int {
	counts := make(map[Outcome]int)
	for _, res := range r.Results {
		counts[res.Outcome]++
	}
	return counts
}
