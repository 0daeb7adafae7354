// Package oruslog builds the structured logger every component accepts as
// a constructor argument. No package in this module reaches for a global
// logger: the teacher's own code never imports a logging singleton either,
// it threads a *sql.DB (and, in cmd/bd, debug.Log) through constructors.
//
// The corpus's direct structured-logging dependencies (zerolog in
// cuemby-warren, the teacher's lumberjack for rotation) serve concerns this
// core doesn't own: zerolog is a general-purpose leveled logger and
// log/slog now covers the same ground in the standard library, and log
// rotation is a host-process concern, not the core's — see DESIGN.md for
// why this one concern is left on the standard library.
package oruslog

import (
	"io"
	"log/slog"
)

// New builds a JSON structured logger writing to w at the given level.
// Pass io.Discard in tests that don't care about log output.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Nop returns a logger that discards everything, for callers (and tests)
// that don't want to wire a real sink.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
