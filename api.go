// Package fieldz turns nested spans and the events fired inside them into
// one self-contained JSON document per event.
//
// Every document carries the event's own fields plus the accumulated fields
// of each enclosing span, outermost first.
//
// Core Components:
//   - Value / Field: closed set of capturable field values.
//   - Fields: per-span and per-event field store, last write wins.
//   - Registry: span identity to field store mapping, safe for concurrent use.
//   - Emitter: assembles and serializes one Document per event.
//   - Tracer: owns the span hierarchy and notifies Layers.
//   - Sink: receives one serialized document at a time.
//
// Basic Usage:
//
//	sink := fieldz.NewWriterSink(os.Stdout)
//	layer := fieldz.NewJSONLayer(fieldz.NewRegistry(), sink)
//	tracer := fieldz.New(fieldz.WithLayer(layer))
//	defer tracer.Close()
//
//	ctx, outer := tracer.StartSpan(ctx, fieldz.LevelInfo, "outer", fieldz.Int("datum", 0))
//	defer outer.Finish()
//
//	outer.Record(fieldz.String("user.id", "123"))
//	tracer.Info(ctx, "hi from outer")
//
// Thread Safety:
//
// Tracer, ActiveSpan, Registry and every Sink are safe for concurrent use.
// Fields is not; the Registry guards each span's store with its own lock.
//
// Context Propagation:
//
// Spans nest through context.Context. An event's enclosing spans are the
// chain stored in the context it is fired with, root first.
package fieldz

import (
	"errors"
	"fmt"
	"strings"
)

// SpanID identifies a live span. Values are opaque.
type SpanID string

// Level is the severity attached to spans and events.
// It is recorded, never used for filtering.
type Level int8

// Severity levels, lowest first.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelTrace || l > LevelError {
		return fmt.Sprintf("LEVEL(%d)", int8(l))
	}
	return levelNames[l]
}

// MarshalText renders the level as its upper-case name.
func (l Level) MarshalText() ([]byte, error) {
	if l < LevelTrace || l > LevelError {
		return nil, fmt.Errorf("invalid level %d", int8(l))
	}
	return []byte(levelNames[l]), nil
}

// UnmarshalText parses a level name, case-insensitively.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel parses TRACE, DEBUG, INFO, WARN or ERROR.
func ParseLevel(s string) (Level, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for i, name := range levelNames {
		if name == upper {
			return Level(i), nil
		}
	}
	return LevelTrace, fmt.Errorf("unknown level %q", s)
}

// Metadata describes a span or event. Immutable once the span exists.
type Metadata struct {
	Target string
	Name   string
	Level  Level
}

var (
	// ErrSpanNotFound means a span identity was used before creation or after release.
	ErrSpanNotFound = errors.New("span not found")
	// ErrSpanExists means a span identity was created twice.
	ErrSpanExists = errors.New("span already exists")
	// ErrSink wraps failures writing a document to its destination.
	ErrSink = errors.New("sink write failed")
	// ErrClosed is returned by sinks after Close.
	ErrClosed = errors.New("sink closed")
)
