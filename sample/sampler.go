// Package sample converts a signal-change trace into discrete per-clock-edge
// samples. The sampler is a lazy, finite, single-pass sequence: it shares
// monotonic cursors into the underlying change lists and is not restartable.
package sample

import (
	"fmt"

	"wavedec/trace"
)

// Edge selects which clock edges produce samples.
type Edge int

const (
	Rising Edge = iota
	Falling
	Both
)

func (e Edge) String() string {
	switch e {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	case Both:
		return "both"
	default:
		return "invalid"
	}
}

// ParseEdge parses an edge polarity name as found in decoder configuration.
func ParseEdge(s string) (Edge, error) {
	switch s {
	case "", "rising", "rise", "posedge":
		return Rising, nil
	case "falling", "fall", "negedge":
		return Falling, nil
	case "both":
		return Both, nil
	default:
		return Rising, fmt.Errorf("invalid edge polarity %q", s)
	}
}

// Sample holds the value of every tracked signal at one clock edge. Samples
// are ephemeral: each one is consumed before the next is produced.
type Sample struct {
	Time   trace.Time
	values map[trace.SignalID]trace.Value
}

// Value returns the sampled value of a signal, or the zero-width unknown for
// untracked ids.
func (s Sample) Value(id trace.SignalID) trace.Value {
	v, ok := s.values[id]
	if !ok {
		return trace.Unknown(0)
	}
	return v
}

// Bit reads a signal as a boolean, applying the reference's polarity.
// Unknown values read as false before inversion.
func (s Sample) Bit(ref trace.Ref) bool {
	return s.Value(ref.ID).Bool() != ref.Invert
}

// cursor walks one signal's change list monotonically.
type cursor struct {
	sig     trace.Signal
	changes []trace.Change
	pos     int
	curr    trace.Value
}

// advance moves the cursor to the latest change at-or-before t. No lookahead:
// changes strictly after t stay pending.
func (c *cursor) advance(t trace.Time) trace.Value {
	for c.pos < len(c.changes) && c.changes[c.pos].Time <= t {
		c.curr = c.changes[c.pos].Value
		c.pos++
	}
	return c.curr
}

// Sampler scans a clock's change list and snapshots tracked signals at each
// matching edge.
type Sampler struct {
	clock     trace.Ref
	clockCurs cursor
	clockHigh bool // last seen clock level, after polarity
	tracked   []*cursor
	edge      Edge
}

// New builds a sampler over the store for the given clock, tracked signals
// and edge polarity. Tracked ids must exist in the store.
func New(store *trace.Store, clock trace.Ref, ids []trace.SignalID, edge Edge) (*Sampler, error) {
	clkSig, ok := store.Signal(clock.ID)
	if !ok {
		return nil, fmt.Errorf("clock signal id %d not in store", clock.ID)
	}
	s := &Sampler{
		clock: clock,
		clockCurs: cursor{
			sig:     clkSig,
			changes: store.Changes(clock.ID),
			curr:    trace.Unknown(clkSig.Width),
		},
		edge: edge,
	}
	for _, id := range ids {
		sig, ok := store.Signal(id)
		if !ok {
			return nil, fmt.Errorf("tracked signal id %d not in store", id)
		}
		s.tracked = append(s.tracked, &cursor{
			sig:     sig,
			changes: store.Changes(id),
			curr:    trace.Unknown(sig.Width),
		})
	}
	return s, nil
}

// Next produces the sample at the next matching clock edge, or false at end
// of trace. An edge is a change of the (polarity-adjusted) clock level; the
// level before the first recorded change is treated as low, so a capture
// whose clock first changes to high yields a rising edge at that time.
func (s *Sampler) Next() (Sample, bool) {
	for s.clockCurs.pos < len(s.clockCurs.changes) {
		ch := s.clockCurs.changes[s.clockCurs.pos]
		s.clockCurs.pos++

		level := ch.Value.Bool() != s.clock.Invert
		wasHigh := s.clockHigh
		s.clockHigh = level

		rising := level && !wasHigh
		falling := !level && wasHigh
		if !matches(s.edge, rising, falling) {
			continue
		}

		smp := Sample{
			Time:   ch.Time,
			values: make(map[trace.SignalID]trace.Value, len(s.tracked)),
		}
		for _, c := range s.tracked {
			smp.values[c.sig.ID] = c.advance(ch.Time)
		}
		return smp, true
	}
	return Sample{}, false
}

func matches(e Edge, rising, falling bool) bool {
	switch e {
	case Rising:
		return rising
	case Falling:
		return falling
	case Both:
		return rising || falling
	default:
		return false
	}
}
