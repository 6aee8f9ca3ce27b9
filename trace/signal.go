package trace

import "strings"

// SignalID identifies a signal within its Store. IDs are dense indexes
// assigned by the reader in declaration order and remain stable across
// filtered views of the store.
type SignalID int

// Time is a trace timestamp in units of the capture's timescale.
type Time uint64

// Signal is one captured signal or vector: a hierarchical path plus a fixed
// bit width. Signals are owned by the Store and read-only downstream.
type Signal struct {
	ID    SignalID
	Path  []string
	Width int
}

// Name returns the dot-joined hierarchical name.
func (s Signal) Name() string { return strings.Join(s.Path, ".") }

// Change is one recorded value change of a signal.
type Change struct {
	Time  Time
	Value Value
}

// SplitPath splits a hierarchical name into segments. Both '.' and '|' are
// accepted as separators; simulators disagree on which one they emit.
func SplitPath(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '|'
	})
}
