package extract

import (
	"errors"
	"strings"
)

// ErrUnavailable marks a text source that could not produce output, such
// as an unreachable model server or a missing OCR binary.
var ErrUnavailable = errors.New("text source unavailable")

// Outcome is the result of asking one text source for text.
type Outcome struct {
	Text   string
	OK     bool
	Reason string
}

// Ok wraps text produced by a source.
func Ok(text string) Outcome {
	return Outcome{Text: text, OK: true}
}

// Unavailable records why a source produced nothing.
func Unavailable(reason string) Outcome {
	return Outcome{Reason: reason}
}

// From converts a (text, error) pair. Blank text counts as unavailable.
func From(text string, err error) Outcome {
	if err != nil {
		return Unavailable(err.Error())
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Unavailable("empty response")
	}
	return Ok(text)
}

// First returns the first Ok outcome, or the last unavailable one.
func First(outcomes ...Outcome) Outcome {
	last := Unavailable("no sources")
	for _, o := range outcomes {
		if o.OK {
			return o
		}
		last = o
	}
	return last
}
