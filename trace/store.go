package trace

import (
	"fmt"
	"sort"
)

// Reader is the contract a waveform file reader fulfils: an ordered signal
// universe and a time-ordered change list per signal.
type Reader interface {
	Signals() []Signal
	Changes(id SignalID) []Change
	// TimescaleFs is the duration of one trace time unit in femtoseconds.
	TimescaleFs() uint64
}

// Store holds a fully loaded change-trace. It is read-only after Load and may
// be shared by any number of concurrently iterating decoders; nothing mutates
// it during decoding.
type Store struct {
	signals     []Signal
	changes     [][]Change
	timescaleFs uint64
}

// Load materializes a reader into a Store, validating that every signal's
// changes are time-monotonic and width-consistent.
func Load(r Reader) (*Store, error) {
	sigs := r.Signals()
	st := &Store{
		signals:     sigs,
		changes:     make([][]Change, len(sigs)),
		timescaleFs: r.TimescaleFs(),
	}
	for i, sig := range sigs {
		if sig.ID != SignalID(i) {
			return nil, fmt.Errorf("signal %q: id %d out of order (want %d)", sig.Name(), sig.ID, i)
		}
		ch := r.Changes(sig.ID)
		for j, c := range ch {
			if j > 0 && c.Time < ch[j-1].Time {
				return nil, fmt.Errorf("signal %q: change at %d before %d", sig.Name(), c.Time, ch[j-1].Time)
			}
			if !c.Value.IsUnknown() && c.Value.Width() != sig.Width {
				return nil, fmt.Errorf("signal %q: change width %d, signal width %d", sig.Name(), c.Value.Width(), sig.Width)
			}
		}
		st.changes[i] = ch
	}
	return st, nil
}

// Signals returns the signal universe in enumeration order.
func (s *Store) Signals() []Signal { return s.signals }

// Signal returns the signal record for an id. In an unfiltered store ids are
// positional (Load checks sig.ID == i), so lookup is a direct index; filtered
// views fall back to scanning their subset.
func (s *Store) Signal(id SignalID) (Signal, bool) {
	i := int(id)
	if i < 0 || i >= len(s.changes) {
		return Signal{}, false
	}
	if i < len(s.signals) && s.signals[i].ID == id {
		return s.signals[i], true
	}
	for _, sig := range s.signals {
		if sig.ID == id {
			return sig, true
		}
	}
	return Signal{}, false
}

// Changes returns the change list for a signal. The slice is shared; callers
// must not modify it.
func (s *Store) Changes(id SignalID) []Change {
	if int(id) < 0 || int(id) >= len(s.changes) {
		return nil
	}
	return s.changes[id]
}

// TimescaleFs returns the duration of one time unit in femtoseconds.
func (s *Store) TimescaleFs() uint64 { return s.timescaleFs }

// ValueAt returns the signal's value at-or-before t: the latest change not
// after t, or the unknown value of the signal's width when no change
// precedes t. Lookup is a binary search over the change list.
func (s *Store) ValueAt(id SignalID, t Time) Value {
	sig, ok := s.Signal(id)
	if !ok {
		return Unknown(0)
	}
	ch := s.Changes(id)
	// First change strictly after t.
	i := sort.Search(len(ch), func(i int) bool { return ch[i].Time > t })
	if i == 0 {
		return Unknown(sig.Width)
	}
	return ch[i-1].Value
}

// Filter returns a view of the store restricted to signals matching the
// pattern. Signal IDs and change data are shared with the parent store.
func (s *Store) Filter(pattern string) (*Store, error) {
	matched := ResolveAll(pattern, s.signals)
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: pattern %q", ErrSignalNotFound, pattern)
	}
	return &Store{signals: matched, changes: s.changes, timescaleFs: s.timescaleFs}, nil
}
