// Package decoder wires configured decoder instances together: a registry
// maps kind names to constructors, and every constructed instance exposes
// the same pull contract regardless of whether it produces bus packets or
// protocol messages.
package decoder

import (
	"wavedec/diag"
	"wavedec/stream"
	"wavedec/tlp"
	"wavedec/trace"
)

// Event is one output of a decoder instance. Exactly one of Packet and
// Message is set for payload events; Diag may accompany either or stand
// alone.
type Event struct {
	Packet  *stream.Packet
	Message *tlp.Message
	Diag    *diag.Diagnostic
}

// Instance is a constructed decoder: a lazy, single-pass event sequence.
// Stopping early is always safe; instances share no mutable state.
type Instance interface {
	Name() string
	Next() (Event, bool)
}

// packetSource is the contract of the bus-level decoders in package stream.
type packetSource interface {
	Name() string
	Next() (stream.Event, bool)
}

// packetInstance adapts a bus decoder to the Instance contract.
type packetInstance struct {
	src packetSource
}

func (p *packetInstance) Name() string { return p.src.Name() }

func (p *packetInstance) Next() (Event, bool) {
	ev, ok := p.src.Next()
	if !ok {
		return Event{}, false
	}
	return Event{Packet: ev.Packet, Diag: ev.Diag}, true
}

// messageInstance runs a TLP decoder over a bus decoder's packets.
type messageInstance struct {
	src     packetSource
	dec     *tlp.Decoder
	pending *diag.Diagnostic // diagnostic queued behind a packet event
}

func (m *messageInstance) Name() string { return m.src.Name() }

// Next maps each packet event to a message event. Structural decode
// failures become diagnostics and the stream continues; truncated packets
// are not decoded but their diagnostic passes through.
func (m *messageInstance) Next() (Event, bool) {
	if m.pending != nil {
		dg := m.pending
		m.pending = nil
		return Event{Diag: dg}, true
	}
	for {
		ev, ok := m.src.Next()
		if !ok {
			return Event{}, false
		}
		if ev.Packet == nil || ev.Packet.Truncated {
			if ev.Diag == nil {
				continue
			}
			return Event{Diag: ev.Diag}, true
		}

		msg, err := m.dec.Decode(ev.Packet)
		if err != nil {
			dg := diag.At(diag.HeaderTooShort, m.Name(), ev.Packet.Start, err.Error())
			return Event{Diag: &dg}, true
		}
		out := Event{Message: msg, Diag: ev.Diag}
		if msg.LengthMismatch {
			dg := diag.At(diag.LengthMismatch, m.Name(), msg.Start,
				msg.Header.Kind()+" declared length disagrees with payload")
			if out.Diag == nil {
				out.Diag = &dg
			} else {
				m.pending = &dg
			}
		}
		return out, true
	}
}

// dataWidth returns the resolved data signal width in bits for a bus
// filter, used to size variant-specific header extraction.
func dataWidth(store *trace.Store, filter, dataName string) (int, error) {
	pattern := dataName
	if filter != "" {
		pattern = filter + "." + dataName
	}
	ref, err := trace.Resolve(pattern, store.Signals())
	if err != nil {
		return 0, err
	}
	sig, _ := store.Signal(ref.ID)
	return sig.Width, nil
}
