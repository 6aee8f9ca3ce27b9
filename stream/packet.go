// Package stream decodes clocked samples of a streaming bus into beats and
// framed packets. The AXIStream-family decoders share one accept/accumulate/
// finalize core and differ in framing roles and payload composition.
package stream

import (
	"encoding/hex"
	"fmt"

	"wavedec/trace"
)

// Beat is one accepted transfer: the sampled data word plus framing flags.
// A beat only exists for samples where the handshake accept condition held.
type Beat struct {
	Time trace.Time
	Data trace.Value
	Keep trace.Value // zero-width when no keep role is bound
	Last bool
}

// Packet is an ordered beat sequence closed by a last-flagged beat.
type Packet struct {
	// Bus is the decoder instance name that produced the packet.
	Bus string
	// Seq is the packet's index on its bus, starting at 0. Streams from
	// independently accumulated buses have no implicit synchronization;
	// cross-bus correlation (e.g. rx/tx pairing) matches on Seq.
	Seq int
	// Start and End are the trace times of the first and last beat.
	Start, End trace.Time
	// Data is the composed payload bytes.
	Data []byte
	// Beats counts accepted transfers in the packet.
	Beats int
	// Backpressure counts samples where valid was held off by ready while
	// the packet accumulated.
	Backpressure int
	// Truncated marks a packet that was still accumulating when the trace
	// ended. Such packets have no last beat.
	Truncated bool
}

func (p *Packet) String() string {
	flag := ""
	if p.Truncated {
		flag = " truncated"
	}
	return fmt.Sprintf("Packet(%s #%d @%d:%d beats=%d bp=%d%s data=%s)",
		p.Bus, p.Seq, p.Start, p.End, p.Beats, p.Backpressure, flag, hex.EncodeToString(p.Data))
}

// accum is the shared packet accumulator: IDLE when cur is nil,
// ACCUMULATING otherwise. Finalize returns to IDLE.
type accum struct {
	bus      string
	composer Composer
	cur      *Packet
	seq      int
}

func (a *accum) accumulating() bool { return a.cur != nil }

// add folds one accepted beat into the open packet, opening one if idle.
func (a *accum) add(b Beat) {
	if a.cur == nil {
		a.cur = &Packet{Bus: a.bus, Seq: a.seq, Start: b.Time}
	}
	a.cur.Data = a.composer.AppendBeat(a.cur.Data, b.Data, b.Keep)
	a.cur.End = b.Time
	a.cur.Beats++
}

// backpressure charges a held-off cycle to the open packet, if any. Stalls
// before the first beat of a packet are not attributed.
func (a *accum) backpressure() {
	if a.cur != nil {
		a.cur.Backpressure++
	}
}

// finalize closes the open packet and resets to IDLE.
func (a *accum) finalize(truncated bool) *Packet {
	p := a.cur
	if p == nil {
		return nil
	}
	p.Truncated = truncated
	a.cur = nil
	a.seq++
	return p
}
