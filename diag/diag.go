// Package diag defines decode diagnostics. Diagnostics are yielded values in
// a decoder's output stream, never log side effects: a malformed capture
// stays inspectable and one instance's trouble never touches its siblings.
package diag

import (
	"fmt"

	"wavedec/trace"
)

// Kind classifies a diagnostic.
type Kind int

const (
	KindUnknown Kind = iota
	// TruncatedPacket: the trace ended while a packet was accumulating.
	// The partial packet is still reported, flagged truncated.
	TruncatedPacket
	// LengthMismatch: a protocol header's declared payload length disagrees
	// with the actual payload. Recoverable; the message is still produced.
	LengthMismatch
	// HeaderTooShort: a packet is smaller than the protocol's minimum
	// header. Structural; the message is dropped.
	HeaderTooShort
	// HandshakeViolation: valid was deasserted before ready accepted the
	// beat. Decode continues.
	HandshakeViolation
	// FramingError: beat framing broke protocol rules (e.g. Avalon-ST data
	// outside a sop..eop window).
	FramingError
	// AmbiguousPattern: a signal pattern matched more than one signal where
	// a unique match was required.
	AmbiguousPattern
	// SignalNotFound: a signal pattern matched nothing.
	SignalNotFound
	// UnknownDecoderKind: configuration named a decoder kind the registry
	// does not know.
	UnknownDecoderKind
	// MissingParameter: configuration omitted a required decoder parameter.
	MissingParameter
	// InvalidParameter: a decoder parameter had an unusable value.
	InvalidParameter
)

func (k Kind) String() string {
	switch k {
	case TruncatedPacket:
		return "TRUNCATED_PACKET"
	case LengthMismatch:
		return "LENGTH_MISMATCH"
	case HeaderTooShort:
		return "HEADER_TOO_SHORT"
	case HandshakeViolation:
		return "HANDSHAKE_VIOLATION"
	case FramingError:
		return "FRAMING_ERROR"
	case AmbiguousPattern:
		return "AMBIGUOUS_PATTERN"
	case SignalNotFound:
		return "SIGNAL_NOT_FOUND"
	case UnknownDecoderKind:
		return "UNKNOWN_DECODER_KIND"
	case MissingParameter:
		return "MISSING_PARAMETER"
	case InvalidParameter:
		return "INVALID_PARAMETER"
	default:
		return "UNKNOWN"
	}
}

// Diagnostic is one decode finding, carrying the offending instance and the
// trace time where one applies.
type Diagnostic struct {
	Kind      Kind
	Instance  string
	Time      trace.Time
	TimeValid bool
	Detail    string
}

// New builds a diagnostic without a trace time.
func New(kind Kind, instance, detail string) Diagnostic {
	return Diagnostic{Kind: kind, Instance: instance, Detail: detail}
}

// At builds a diagnostic pinned to a trace time.
func At(kind Kind, instance string, t trace.Time, detail string) Diagnostic {
	return Diagnostic{Kind: kind, Instance: instance, Time: t, TimeValid: true, Detail: detail}
}

func (d Diagnostic) String() string {
	if d.TimeValid {
		return fmt.Sprintf("%s[%s]@%d: %s", d.Kind, d.Instance, d.Time, d.Detail)
	}
	return fmt.Sprintf("%s[%s]: %s", d.Kind, d.Instance, d.Detail)
}
