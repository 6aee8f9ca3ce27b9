// Package vcd reads Value Change Dump waveforms into a change trace.
//
// Declarations that split one vector over several id codes (one $var per bit,
// as some simulators emit) are merged back into a single signal; x and z bits
// map to the unknown value state.
package vcd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"wavedec/trace"
)

// binding ties one VCD id code to a bit range of a signal.
type binding struct {
	sig    int // index into signals
	offset int // LSB position within the signal
	size   int
}

// sigState is the live value of one signal while parsing the change section.
type sigState struct {
	bits    []bool // LSB first
	unknown []bool
	dirty   bool
}

// Reader holds a fully parsed VCD trace. It implements trace.Reader.
type Reader struct {
	signals     []trace.Signal
	changes     [][]trace.Change
	timescaleFs uint64
}

func (r *Reader) Signals() []trace.Signal                  { return r.signals }
func (r *Reader) Changes(id trace.SignalID) []trace.Change { return r.changes[id] }
func (r *Reader) TimescaleFs() uint64                      { return r.timescaleFs }

// ParseFile parses the VCD file at path.
func ParseFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Parse parses a VCD stream. The whole trace is read eagerly; decoding over
// it is lazy.
func Parse(src io.Reader) (*Reader, error) {
	p := &parser{
		reader:      &Reader{timescaleFs: 1},
		idcodes:     make(map[string][]binding),
		byName:      make(map[string]int),
		scanner:     bufio.NewScanner(src),
		unitFs:      map[string]uint64{"s": 1e15, "ms": 1e12, "us": 1e9, "ns": 1e6, "ps": 1e3, "fs": 1},
		declaredEnd: false,
	}
	p.scanner.Split(bufio.ScanWords)
	p.scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if err := p.header(); err != nil {
		return nil, err
	}
	if err := p.body(); err != nil {
		return nil, err
	}
	if err := p.scanner.Err(); err != nil {
		return nil, err
	}
	return p.reader, nil
}

type parser struct {
	reader      *Reader
	idcodes     map[string][]binding
	byName      map[string]int
	states      []sigState
	scanner     *bufio.Scanner
	unitFs      map[string]uint64
	now         trace.Time
	declaredEnd bool
}

func (p *parser) next() (string, bool) {
	if !p.scanner.Scan() {
		return "", false
	}
	return p.scanner.Text(), true
}

// skipSection consumes tokens up to and including $end.
func (p *parser) skipSection() error {
	for {
		w, ok := p.next()
		if !ok {
			return fmt.Errorf("unterminated directive")
		}
		if w == "$end" {
			return nil
		}
	}
}

// collectSection returns the tokens of a directive body, excluding $end.
func (p *parser) collectSection() ([]string, error) {
	var out []string
	for {
		w, ok := p.next()
		if !ok {
			return nil, fmt.Errorf("unterminated directive")
		}
		if w == "$end" {
			return out, nil
		}
		out = append(out, w)
	}
}

// header parses the declaration section up to $enddefinitions.
func (p *parser) header() error {
	var scope []string
	for {
		w, ok := p.next()
		if !ok {
			return fmt.Errorf("missing $enddefinitions")
		}
		switch w {
		case "$scope":
			body, err := p.collectSection()
			if err != nil {
				return err
			}
			if len(body) < 2 {
				return fmt.Errorf("$scope: want type and name, got %v", body)
			}
			scope = append(scope, body[1])
		case "$upscope":
			if err := p.skipSection(); err != nil {
				return err
			}
			if len(scope) > 0 {
				scope = scope[:len(scope)-1]
			}
		case "$timescale":
			body, err := p.collectSection()
			if err != nil {
				return err
			}
			if err := p.parseTimescale(strings.Join(body, "")); err != nil {
				return err
			}
		case "$var":
			body, err := p.collectSection()
			if err != nil {
				return err
			}
			if err := p.declareVar(scope, body); err != nil {
				return err
			}
		case "$enddefinitions":
			if err := p.skipSection(); err != nil {
				return err
			}
			p.declaredEnd = true
			p.states = make([]sigState, len(p.reader.signals))
			for i, sig := range p.reader.signals {
				p.states[i] = sigState{
					bits:    make([]bool, sig.Width),
					unknown: make([]bool, sig.Width),
				}
			}
			p.reader.changes = make([][]trace.Change, len(p.reader.signals))
			return nil
		case "$comment", "$date", "$version", "$attrbegin", "$attrend":
			if err := p.skipSection(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected token %q in declarations", w)
		}
	}
}

// parseTimescale converts e.g. "10ns" into femtoseconds per time unit.
func (p *parser) parseTimescale(s string) error {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	mag, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return fmt.Errorf("timescale %q: %w", s, err)
	}
	unit, ok := p.unitFs[s[i:]]
	if !ok {
		return fmt.Errorf("timescale %q: unknown unit %q", s, s[i:])
	}
	p.reader.timescaleFs = mag * unit
	return nil
}

// declareVar handles one $var body: type, size, id code, reference and an
// optional bit index or range. A reference already seen under the same scope
// extends that signal instead of declaring a new one.
func (p *parser) declareVar(scope, body []string) error {
	if len(body) < 4 {
		return fmt.Errorf("$var: want at least 4 fields, got %v", body)
	}
	size, err := strconv.Atoi(body[1])
	if err != nil || size < 1 {
		return fmt.Errorf("$var: bad size %q", body[1])
	}
	id := body[2]
	ref := body[3]

	// The index may be attached ("data[3]") or a separate token ("data [3]").
	index := ""
	if cut := strings.IndexByte(ref, '['); cut >= 0 {
		index = ref[cut:]
		ref = ref[:cut]
	} else if len(body) > 4 {
		index = body[4]
	}

	offset := 0
	perBit := false
	if index != "" && !strings.Contains(index, ":") {
		n, err := strconv.Atoi(strings.Trim(index, "[]"))
		if err != nil {
			return fmt.Errorf("$var %s: bad bit index %q", ref, index)
		}
		offset = n
		perBit = true
	}

	name := strings.Join(append(append([]string{}, scope...), ref), ".")
	si, exists := p.byName[name]
	switch {
	case !exists:
		width := size
		if perBit && offset+size > width {
			width = offset + size
		}
		si = len(p.reader.signals)
		p.byName[name] = si
		p.reader.signals = append(p.reader.signals, trace.Signal{
			ID:    trace.SignalID(si),
			Path:  trace.SplitPath(name),
			Width: width,
		})
	case perBit:
		if grown := offset + size; grown > p.reader.signals[si].Width {
			p.reader.signals[si].Width = grown
		}
	default:
		// Same full vector under a second id code: an alias, width unchanged.
	}
	p.idcodes[id] = append(p.idcodes[id], binding{sig: si, offset: offset, size: size})
	return nil
}

// body parses the change section.
func (p *parser) body() error {
	for {
		w, ok := p.next()
		if !ok {
			p.flush()
			return nil
		}
		switch {
		case w[0] == '#':
			t, err := strconv.ParseUint(w[1:], 10, 64)
			if err != nil {
				return fmt.Errorf("bad timestamp %q", w)
			}
			p.flush()
			p.now = trace.Time(t)
		case w[0] == '0' || w[0] == '1' || w[0] == 'x' || w[0] == 'X' || w[0] == 'z' || w[0] == 'Z':
			if err := p.applyScalar(w[0], w[1:]); err != nil {
				return err
			}
		case w[0] == 'b' || w[0] == 'B':
			id, ok := p.next()
			if !ok {
				return fmt.Errorf("vector change %q: missing id code", w)
			}
			if err := p.applyVector(w[1:], id); err != nil {
				return err
			}
		case w[0] == 'r' || w[0] == 'R':
			// Real-valued change; not representable as a bit vector.
			if _, ok := p.next(); !ok {
				return fmt.Errorf("real change %q: missing id code", w)
			}
		case w == "$dumpvars" || w == "$dumpall" || w == "$dumpon" || w == "$dumpoff" || w == "$end":
			// Dump sections wrap ordinary value changes.
		case w == "$comment":
			if err := p.skipSection(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected token %q in changes", w)
		}
	}
}

func (p *parser) applyScalar(c byte, id string) error {
	bindings, ok := p.idcodes[id]
	if !ok {
		return fmt.Errorf("change for undeclared id code %q", id)
	}
	for _, b := range bindings {
		st := &p.states[b.sig]
		st.setBit(b.offset, c)
		st.dirty = true
	}
	return nil
}

func (p *parser) applyVector(bits, id string) error {
	bindings, ok := p.idcodes[id]
	if !ok {
		return fmt.Errorf("change for undeclared id code %q", id)
	}
	for _, b := range bindings {
		st := &p.states[b.sig]
		// bits is MSB first and may be shorter than the declared size; the
		// leftmost character extends when it is x or z, zero otherwise.
		ext := byte('0')
		if len(bits) > 0 && (bits[0] == 'x' || bits[0] == 'X' || bits[0] == 'z' || bits[0] == 'Z') {
			ext = bits[0]
		}
		for i := 0; i < b.size; i++ {
			c := ext
			if i < len(bits) {
				c = bits[len(bits)-1-i]
			}
			st.setBit(b.offset+i, c)
		}
		st.dirty = true
	}
	return nil
}

func (s *sigState) setBit(i int, c byte) {
	if i >= len(s.bits) {
		return
	}
	switch c {
	case '0':
		s.bits[i], s.unknown[i] = false, false
	case '1':
		s.bits[i], s.unknown[i] = true, false
	default:
		s.bits[i], s.unknown[i] = false, true
	}
}

// value assembles the signal's current trace value.
func (s *sigState) value(width int) trace.Value {
	for _, u := range s.unknown {
		if u {
			return trace.Unknown(width)
		}
	}
	bytes := make([]byte, (width+7)/8)
	for i, b := range s.bits {
		if b {
			bytes[len(bytes)-1-i/8] |= 1 << (i % 8)
		}
	}
	return trace.NewValue(width, bytes)
}

// flush records one change per dirty signal at the current time. A value
// rewritten to itself produces no change; repeated writes within one
// timestamp coalesce, last writer wins.
func (p *parser) flush() {
	if !p.declaredEnd {
		return
	}
	for i := range p.states {
		st := &p.states[i]
		if !st.dirty {
			continue
		}
		st.dirty = false
		v := st.value(p.reader.signals[i].Width)
		ch := p.reader.changes[i]
		if n := len(ch); n > 0 {
			if ch[n-1].Value.Equal(v) {
				continue
			}
			if ch[n-1].Time == p.now {
				ch[n-1].Value = v
				continue
			}
		}
		p.reader.changes[i] = append(ch, trace.Change{Time: p.now, Value: v})
	}
}

// SignalNames lists the declared signal names, sorted, for listings and
// debugging output.
func (r *Reader) SignalNames() []string {
	out := make([]string, len(r.signals))
	for i, sig := range r.signals {
		out[i] = sig.Name()
	}
	sort.Strings(out)
	return out
}
