package stream

import (
	"fmt"

	"wavedec/diag"
	"wavedec/sample"
	"wavedec/trace"
)

// AvalonDecoder is the Avalon-ST flavor of the bus decoder: the same
// valid/ready accept and packet accumulation as AXIStream, but framing is
// explicit start/end-of-packet markers instead of a last flag.
type AvalonDecoder struct {
	name     string
	smp      *sample.Sampler
	valid    trace.Ref
	data     trace.Ref
	ready    role
	sop      trace.Ref
	eop      trace.Ref
	acc      accum
	inPacket bool
	pending  *Packet // finalized while another event was being reported
	done     bool
}

// NewAvalonStream builds an Avalon-ST decoder over the store. Valid, data,
// sop and eop are required roles; ready is optional (absent means always
// ready).
func NewAvalonStream(store *trace.Store, cfg Config) (*AvalonDecoder, error) {
	if cfg.Filter == "" {
		return nil, fmt.Errorf("instance %q: filter pattern required", cfg.Name)
	}

	validName, _ := pickRole(cfg.Valid, "valid")
	dataName, _ := pickRole(cfg.Data, "data")
	readyName, readyExp := pickRole(cfg.Ready, "ready")
	sopName, _ := pickRole(cfg.Sop, "sop")
	eopName, _ := pickRole(cfg.Eop, "eop")

	valid, err := resolveRole(store, cfg.Filter, validName, true, false)
	if err != nil {
		return nil, fmt.Errorf("instance %q: valid: %w", cfg.Name, err)
	}
	data, err := resolveRole(store, cfg.Filter, dataName, true, false)
	if err != nil {
		return nil, fmt.Errorf("instance %q: data: %w", cfg.Name, err)
	}
	ready, err := resolveRole(store, cfg.Filter, readyName, false, readyExp)
	if err != nil {
		return nil, fmt.Errorf("instance %q: ready: %w", cfg.Name, err)
	}
	sop, err := resolveRole(store, cfg.Filter, sopName, true, false)
	if err != nil {
		return nil, fmt.Errorf("instance %q: sop: %w", cfg.Name, err)
	}
	eop, err := resolveRole(store, cfg.Filter, eopName, true, false)
	if err != nil {
		return nil, fmt.Errorf("instance %q: eop: %w", cfg.Name, err)
	}

	smp, err := newRoleSampler(store, cfg, valid, data, ready, sop, eop)
	if err != nil {
		return nil, fmt.Errorf("instance %q: %w", cfg.Name, err)
	}

	composer := cfg.Composer
	if composer == nil {
		composer = LaneComposer{}
	}
	return &AvalonDecoder{
		name:  cfg.Name,
		smp:   smp,
		valid: valid.ref,
		data:  data.ref,
		ready: ready,
		sop:   sop.ref,
		eop:   eop.ref,
		acc:   accum{bus: cfg.Name, composer: composer},
	}, nil
}

// Name returns the instance name.
func (d *AvalonDecoder) Name() string { return d.name }

// Next pulls samples until the next event. Accepted beats outside a
// sop..eop window and sop markers arriving mid-packet are framing
// diagnostics; decode continues with the stream resynchronized on the next
// sop.
func (d *AvalonDecoder) Next() (Event, bool) {
	if d.pending != nil {
		p := d.pending
		d.pending = nil
		return Event{Packet: p}, true
	}

	for !d.done {
		s, ok := d.smp.Next()
		if !ok {
			d.done = true
			break
		}

		valid := s.Bit(d.valid)
		ready := !d.ready.ok || s.Bit(d.ready.ref)
		if valid && !ready {
			d.acc.backpressure()
			continue
		}
		if !valid {
			continue
		}

		sop := s.Bit(d.sop)
		eop := s.Bit(d.eop)

		if sop && d.inPacket {
			// Previous packet never saw its eop; report it truncated and
			// restart framing on this beat.
			p := d.acc.finalize(true)
			d.acc.add(Beat{Time: s.Time, Data: s.Value(d.data.ID), Keep: trace.Unknown(0), Last: eop})
			if eop {
				d.inPacket = false
				d.pending = d.acc.finalize(false)
			}
			dg := diag.At(diag.FramingError, d.name, s.Time,
				"sop while packet open; previous packet truncated")
			return Event{Packet: p, Diag: &dg}, true
		}
		if !sop && !d.inPacket {
			dg := diag.At(diag.FramingError, d.name, s.Time,
				"accepted beat outside sop..eop")
			return Event{Diag: &dg}, true
		}

		d.inPacket = true
		d.acc.add(Beat{Time: s.Time, Data: s.Value(d.data.ID), Keep: trace.Unknown(0), Last: eop})
		if eop {
			d.inPacket = false
			return Event{Packet: d.acc.finalize(false)}, true
		}
	}

	if p := d.acc.finalize(true); p != nil {
		d.inPacket = false
		dg := diag.At(diag.TruncatedPacket, d.name, p.End,
			fmt.Sprintf("trace ended with %d beats accumulated", p.Beats))
		return Event{Packet: p, Diag: &dg}, true
	}
	return Event{}, false
}
