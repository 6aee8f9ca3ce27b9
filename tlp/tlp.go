package tlp

import (
	"fmt"

	"wavedec/stream"
	"wavedec/trace"
)

// Variant selects the device-specific mapping from stream packet bytes to
// TLP header and payload.
type Variant int

const (
	// Generic: the packet starts with the TLP header in wire order.
	Generic Variant = iota
	// Agilex5E: the Intel Agilex 5 E-series hard IP header layout. The
	// header occupies bytes 16..31 of the first beat in reversed DW order;
	// payload starts at the second beat.
	Agilex5E
)

func (v Variant) String() string {
	switch v {
	case Generic:
		return "generic"
	case Agilex5E:
		return "agilex5e"
	default:
		return "invalid"
	}
}

// ParseVariant parses a variant name as found in decoder configuration.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "", "generic":
		return Generic, nil
	case "agilex5e", "Agilex5E":
		return Agilex5E, nil
	default:
		return Generic, fmt.Errorf("unknown TLP variant %q", s)
	}
}

// Message is the structured interpretation of one stream packet as a TLP.
type Message struct {
	Bus        string
	Seq        int
	Start, End trace.Time
	Header     Header
	Payload    []byte
	// LengthMismatch marks a message whose declared payload length
	// disagrees with the payload actually captured. Recoverable: the
	// header fields above are still populated.
	LengthMismatch bool
}

func (m *Message) String() string {
	flag := ""
	if m.LengthMismatch {
		flag = " LENGTH_MISMATCH"
	}
	return fmt.Sprintf("Tlp(%s #%d @%d:%d %s payload=%d%s)",
		m.Bus, m.Seq, m.Start, m.End, m.Header, len(m.Payload), flag)
}

// Decoder decodes stream packets into TLP messages for one device variant.
type Decoder struct {
	variant   Variant
	beatBytes int // bus data width in bytes; the Agilex layout needs it
}

// NewDecoder builds a TLP decoder. beatBytes is the bus data width in bytes;
// the Agilex5E variant requires at least 32-byte beats since its first beat
// interleaves the header region.
func NewDecoder(variant Variant, beatBytes int) (*Decoder, error) {
	if variant == Agilex5E && beatBytes < 32 {
		return nil, fmt.Errorf("variant %s needs >=32-byte beats, bus has %d", variant, beatBytes)
	}
	return &Decoder{variant: variant, beatBytes: beatBytes}, nil
}

// Decode interprets one packet. A packet too short for its header returns
// ErrHeaderTooShort and no message; a declared/actual payload length
// disagreement still produces the message, flagged LengthMismatch, so
// malformed captures stay inspectable.
func (d *Decoder) Decode(p *stream.Packet) (*Message, error) {
	hdrBytes, payload, err := d.split(p.Data)
	if err != nil {
		return nil, err
	}
	hdr, err := parseHeader(hdrBytes)
	if err != nil {
		return nil, err
	}
	if d.variant == Generic {
		// The generic header is cut from the front of the packet; trim it
		// off the payload now that its true length is known.
		payload = payload[len(hdr.Raw):]
	}

	m := &Message{
		Bus:    p.Bus,
		Seq:    p.Seq,
		Start:  p.Start,
		End:    p.End,
		Header: hdr,
	}
	declared := hdr.PayloadBytes()
	switch {
	case len(payload) > declared:
		// The last beat is padded to the bus width; excess is padding.
		payload = payload[:declared]
	case len(payload) < declared:
		m.LengthMismatch = true
	}
	m.Payload = payload
	return m, nil
}

// split separates the packet bytes into the header region and the payload
// for the decoder's variant. For Generic the header length is not yet known,
// so the whole packet is returned as both candidate header and payload.
func (d *Decoder) split(data []byte) (hdr, payload []byte, err error) {
	switch d.variant {
	case Agilex5E:
		if len(data) < d.beatBytes {
			return nil, nil, fmt.Errorf("%w: %d bytes, first beat is %d", ErrHeaderTooShort, len(data), d.beatBytes)
		}
		region := data[16:32]
		// The hard IP presents the header DW-swapped; restore wire order.
		h := make([]byte, 0, 16)
		for i := 16; i > 0; i -= 4 {
			h = append(h, region[i-4:i]...)
		}
		return h, data[d.beatBytes:], nil
	default:
		return data, data, nil
	}
}
