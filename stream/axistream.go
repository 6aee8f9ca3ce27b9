package stream

import (
	"fmt"

	"wavedec/diag"
	"wavedec/sample"
	"wavedec/trace"
)

// Event is one output of a bus decoder: a finalized packet, a diagnostic, or
// both (a truncated packet is reported together with its diagnostic).
type Event struct {
	Packet *Packet
	Diag   *diag.Diagnostic
}

// Config parameterizes an AXIStream-family decoder instance.
type Config struct {
	// Name is the instance name carried on packets and diagnostics.
	Name string
	// Filter is the hierarchy pattern locating the bus; role names resolve
	// beneath it.
	Filter string
	// Clock is the clock pattern; resolved first-match since a clock fans
	// out through the hierarchy. Empty means "clk".
	Clock string
	// Edge is the sampling edge polarity.
	Edge sample.Edge
	// Role name overrides. Empty selects the bus flavor's defaults.
	Valid, Ready, Last, Data, Keep string
	// Sop and Eop override the Avalon-ST framing roles; the AXIStream
	// flavor ignores them.
	Sop, Eop string
	// Composer overrides payload composition. Nil selects LaneComposer.
	Composer Composer
}

// role binds a resolved role signal; ok is false for an absent optional role.
type role struct {
	ref trace.Ref
	ok  bool
}

// resolveRole resolves a role name beneath the filter pattern. Required
// roles and explicitly named roles must resolve uniquely; a defaulted
// optional role that matches nothing is simply absent.
func resolveRole(store *trace.Store, filter, name string, required, explicit bool) (role, error) {
	pattern := name
	if filter != "" {
		pattern = filter + "." + name
	}
	ref, err := trace.Resolve(pattern, store.Signals())
	if err != nil {
		if required || explicit {
			return role{}, err
		}
		return role{}, nil
	}
	return role{ref: ref, ok: true}, nil
}

// pickRole returns the configured role name, whether it was explicit, and
// the flavor default otherwise.
func pickRole(configured, def string) (name string, explicit bool) {
	if configured != "" {
		return configured, true
	}
	return def, false
}

// Decoder converts a sample stream into beats and packets under the
// valid/ready handshake: a beat is accepted only when valid is asserted and
// ready accepts (an unbound ready accepts always). A last-flagged beat
// closes the packet; with no last role every beat is its own packet.
type Decoder struct {
	name      string
	smp       *sample.Sampler
	valid     trace.Ref
	data      trace.Ref
	ready     role
	last      role
	keep      role
	acc       accum
	prevValid bool
	prevReady bool
	done      bool
}

// NewAXIStream builds an AXIStream decoder over the store. The filter must
// locate exactly one signal per bound role; valid and data are required.
func NewAXIStream(store *trace.Store, cfg Config) (*Decoder, error) {
	if cfg.Filter == "" {
		return nil, fmt.Errorf("instance %q: filter pattern required", cfg.Name)
	}

	validName, _ := pickRole(cfg.Valid, "tvalid")
	dataName, _ := pickRole(cfg.Data, "tdata")
	readyName, readyExp := pickRole(cfg.Ready, "tready")
	lastName, lastExp := pickRole(cfg.Last, "tlast")
	keepName, keepExp := pickRole(cfg.Keep, "tkeep")

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
	last, err := resolveRole(store, cfg.Filter, lastName, false, lastExp)
	if err != nil {
		return nil, fmt.Errorf("instance %q: last: %w", cfg.Name, err)
	}
	keep, err := resolveRole(store, cfg.Filter, keepName, false, keepExp)
	if err != nil {
		return nil, fmt.Errorf("instance %q: keep: %w", cfg.Name, err)
	}

	smp, err := newRoleSampler(store, cfg, valid, data, ready, last, keep)
	if err != nil {
		return nil, fmt.Errorf("instance %q: %w", cfg.Name, err)
	}

	composer := cfg.Composer
	if composer == nil {
		composer = LaneComposer{}
	}
	return &Decoder{
		name:  cfg.Name,
		smp:   smp,
		valid: valid.ref,
		data:  data.ref,
		ready: ready,
		last:  last,
		keep:  keep,
		acc:   accum{bus: cfg.Name, composer: composer},
	}, nil
}

// newRoleSampler resolves the clock and builds a sampler tracking every
// bound role signal.
func newRoleSampler(store *trace.Store, cfg Config, roles ...role) (*sample.Sampler, error) {
	clockPattern := cfg.Clock
	if clockPattern == "" {
		clockPattern = "clk"
	}
	clock, err := trace.ResolveFirst(clockPattern, store.Signals())
	if err != nil {
		return nil, fmt.Errorf("clock: %w", err)
	}
	var ids []trace.SignalID
	for _, r := range roles {
		if r.ok {
			ids = append(ids, r.ref.ID)
		}
	}
	return sample.New(store, clock, ids, cfg.Edge)
}

// Name returns the instance name.
func (d *Decoder) Name() string { return d.name }

// Next pulls samples until it can produce the next event: a finalized
// packet, a handshake diagnostic, or the truncated trailing packet at end of
// trace. Returns false once the trace is exhausted and all state drained.
func (d *Decoder) Next() (Event, bool) {
	for !d.done {
		s, ok := d.smp.Next()
		if !ok {
			d.done = true
			break
		}

		valid := s.Bit(d.valid)
		ready := !d.ready.ok || s.Bit(d.ready.ref)

		// AXI-Stream forbids dropping valid before the beat is accepted.
		violated := d.prevValid && !d.prevReady && !valid
		d.prevValid, d.prevReady = valid, ready
		if violated {
			dg := diag.At(diag.HandshakeViolation, d.name, s.Time,
				"valid deasserted while not ready")
			return Event{Diag: &dg}, true
		}

		if valid && !ready {
			d.acc.backpressure()
			continue
		}
		if !valid {
			continue
		}

		last := !d.last.ok || s.Bit(d.last.ref)
		beat := Beat{Time: s.Time, Data: s.Value(d.data.ID), Last: last}
		if d.keep.ok {
			beat.Keep = s.Value(d.keep.ref.ID)
		} else {
			beat.Keep = trace.Unknown(0)
		}
		d.acc.add(beat)
		if last {
			return Event{Packet: d.acc.finalize(false)}, true
		}
	}

	if p := d.acc.finalize(true); p != nil {
		dg := diag.At(diag.TruncatedPacket, d.name, p.End,
			fmt.Sprintf("trace ended with %d beats accumulated", p.Beats))
		return Event{Packet: p, Diag: &dg}, true
	}
	return Event{}, false
}
