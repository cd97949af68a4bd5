package reprocess

import (
	"fmt"
	"strings"
	"time"
)

// Failure records one entry that could not be reprocessed.
type Failure struct {
	EntryID   int64  `json:"entry_id"`
	Timestamp int64  `json:"timestamp"`
	Error     string `json:"error"`
}

// Result contains statistics from a reprocessing run.
type Result struct {
	Candidates int           `json:"candidates"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
	DryRun     bool          `json:"dry_run"`
	Failures   []Failure     `json:"failures,omitempty"`
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	verb := "updated"
	if r.DryRun {
		verb = "would update"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Reprocessing complete in %s: %d candidates, %d %s, %d skipped (no usable text), %d errors",
		r.Duration.Round(time.Millisecond), r.Candidates, r.Updated, verb, r.Skipped, r.Errors)

	const shown = 5
	for i, f := range r.Failures {
		if i == shown {
			fmt.Fprintf(&b, "\n  ... and %d more", len(r.Failures)-shown)
			break
		}
		fmt.Fprintf(&b, "\n  entry %d (%d): %s", f.EntryID, f.Timestamp, f.Error)
	}
	return b.String()
}
