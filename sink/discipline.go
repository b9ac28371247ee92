package sink

import (
	"strings"

	"github.com/ukhas/habitat-sub001/errors"
)

// Discipline selects how a sink executes Handle.
type Discipline int

const (
	// Inline runs Handle synchronously on the pushing goroutine
	Inline Discipline = iota + 1
	// Queued runs Handle on the sink's own goroutine, one message at a time
	Queued
)

// Valid reports whether d is a known discipline.
func (d Discipline) Valid() bool {
	return d == Inline || d == Queued
}

// String returns "inline", "queued" or "unknown".
func (d Discipline) String() string {
	switch d {
	case Inline:
		return "inline"
	case Queued:
		return "queued"
	default:
		return "unknown"
	}
}

// ParseDiscipline parses "inline" or "queued", ignoring case.
func ParseDiscipline(s string) (Discipline, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inline", "simple":
		return Inline, nil
	case "queued", "threaded":
		return Queued, nil
	}
	return 0, errors.Newf(errors.ErrValueKind, "sink", "ParseDiscipline", "unknown discipline %q", s)
}
