package trace

import (
	"errors"
	"fmt"
	"strings"
)

// Resolution errors. Both are construction-time failures for the decoder
// instance doing the resolving; they never occur mid-decode.
var (
	ErrSignalNotFound   = errors.New("signal not found")
	ErrAmbiguousPattern = errors.New("ambiguous pattern")
)

// Ref is a resolved signal reference: the concrete id plus the pattern's
// polarity marker. Invert means the signal is active-low and boolean reads
// should be negated.
type Ref struct {
	ID     SignalID
	Invert bool
}

// parsePattern strips the polarity marker and splits the pattern into
// hierarchy segments.
func parsePattern(pattern string) (segs []string, invert bool) {
	if strings.HasPrefix(pattern, "!") {
		invert = true
		pattern = pattern[1:]
	}
	return SplitPath(pattern), invert
}

// matchSegments reports whether want occurs as a contiguous run within path.
func matchSegments(path, want []string) bool {
	if len(want) == 0 || len(want) > len(path) {
		return false
	}
	for start := 0; start+len(want) <= len(path); start++ {
		ok := true
		for i, seg := range want {
			if path[start+i] != seg {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// Match reports whether the pattern (ignoring any polarity marker) matches
// the signal: the pattern's segments must appear as a contiguous subsequence
// of the signal's path segments.
func Match(pattern string, sig Signal) bool {
	segs, _ := parsePattern(pattern)
	return matchSegments(sig.Path, segs)
}

// ResolveAll returns every matching signal in enumeration order.
func ResolveAll(pattern string, signals []Signal) []Signal {
	segs, _ := parsePattern(pattern)
	var out []Signal
	for _, sig := range signals {
		if matchSegments(sig.Path, segs) {
			out = append(out, sig)
		}
	}
	return out
}

// Resolve maps a pattern to exactly one signal. It fails with
// ErrSignalNotFound on zero matches and ErrAmbiguousPattern when more than
// one signal matches.
func Resolve(pattern string, signals []Signal) (Ref, error) {
	_, invert := parsePattern(pattern)
	matched := ResolveAll(pattern, signals)
	switch len(matched) {
	case 0:
		return Ref{}, fmt.Errorf("%w: pattern %q", ErrSignalNotFound, pattern)
	case 1:
		return Ref{ID: matched[0].ID, Invert: invert}, nil
	default:
		names := make([]string, len(matched))
		for i, sig := range matched {
			names[i] = sig.Name()
		}
		return Ref{}, fmt.Errorf("%w: pattern %q matches %s", ErrAmbiguousPattern, pattern, strings.Join(names, ", "))
	}
}

// ResolveFirst maps a pattern to the first matching signal in enumeration
// order, for contexts where uniqueness is not required (e.g. a clock that
// fans out through the hierarchy). Fails with ErrSignalNotFound on zero
// matches.
func ResolveFirst(pattern string, signals []Signal) (Ref, error) {
	_, invert := parsePattern(pattern)
	for _, sig := range signals {
		if Match(pattern, sig) {
			return Ref{ID: sig.ID, Invert: invert}, nil
		}
	}
	return Ref{}, fmt.Errorf("%w: pattern %q", ErrSignalNotFound, pattern)
}
