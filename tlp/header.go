// Package tlp interprets stream packets as PCI Express Transaction Layer
// Packets. Header extraction is device-variant-specific; field layout
// follows the PCI Express Base Specification common TLP header.
package tlp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrHeaderTooShort is returned when a packet carries fewer bytes than the
// TLP header it declares. Structural: the message is dropped.
var ErrHeaderTooShort = errors.New("packet shorter than TLP header")

// Minimum header sizes in bytes.
const (
	headerBytes3DW = 12
	headerBytes4DW = 16
)

// TLP type field values (5 bits).
const (
	typeMem   = 0x00
	typeMemLk = 0x01
	typeIO    = 0x02
	typeCfg0  = 0x04
	typeCfg1  = 0x05
	typeCpl   = 0x0A
	typeCplLk = 0x0B
	typeMsgLo = 0x10 // message types are 0b10rrr
	typeMsgHi = 0x17
)

// Header holds the parsed common TLP header. Request and completion fields
// overlap in the wire format; only the set matching Kind is meaningful.
type Header struct {
	Fmt    uint8 // 3-bit format field
	Type   uint8 // 5-bit type field
	TC     uint8
	TD     bool
	EP     bool
	Attr   uint8
	Length uint16 // declared payload length in DWs; 0 encodes 1024

	// Request fields.
	RequesterID uint16
	Tag         uint8
	LastBE      uint8
	FirstBE     uint8
	Address     uint64

	// Completion fields.
	CompleterID uint16
	CplStatus   uint8
	BCM         bool
	ByteCount   uint16
	LowerAddr   uint8

	Raw []byte // header bytes as parsed, wire order
}

// Is4DW reports whether the header is the 4-DW form.
func (h Header) Is4DW() bool { return h.Fmt&0x1 != 0 }

// HasData reports whether the TLP carries a data payload.
func (h Header) HasData() bool { return h.Fmt&0x2 != 0 }

// IsCompletion reports whether the TLP is a completion.
func (h Header) IsCompletion() bool { return h.Type == typeCpl || h.Type == typeCplLk }

// PayloadBytes returns the declared payload size in bytes. A zero Length
// field encodes the maximum of 1024 DWs.
func (h Header) PayloadBytes() int {
	if !h.HasData() {
		return 0
	}
	if h.Length == 0 {
		return 1024 * 4
	}
	return int(h.Length) * 4
}

// Kind names the transaction type the way bus analyzers do.
func (h Header) Kind() string {
	data := h.HasData()
	switch {
	case h.Type == typeMem && !data:
		return "MRd"
	case h.Type == typeMem:
		return "MWr"
	case h.Type == typeMemLk:
		return "MRdLk"
	case h.Type == typeIO && !data:
		return "IORd"
	case h.Type == typeIO:
		return "IOWr"
	case h.Type == typeCfg0 && !data:
		return "CfgRd0"
	case h.Type == typeCfg0:
		return "CfgWr0"
	case h.Type == typeCfg1 && !data:
		return "CfgRd1"
	case h.Type == typeCfg1:
		return "CfgWr1"
	case h.Type == typeCpl && !data:
		return "Cpl"
	case h.Type == typeCpl:
		return "CplD"
	case h.Type == typeCplLk && !data:
		return "CplLk"
	case h.Type == typeCplLk:
		return "CplDLk"
	case h.Type >= typeMsgLo && h.Type <= typeMsgHi && !data:
		return "Msg"
	case h.Type >= typeMsgLo && h.Type <= typeMsgHi:
		return "MsgD"
	default:
		return "TLP"
	}
}

// parseHeader decodes the common TLP header from wire-order bytes.
func parseHeader(b []byte) (Header, error) {
	if len(b) < headerBytes3DW {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrHeaderTooShort, len(b))
	}
	h := Header{
		Fmt:    b[0] >> 5 & 0x7,
		Type:   b[0] & 0x1F,
		TC:     b[1] >> 4 & 0x7,
		TD:     b[2]&0x80 != 0,
		EP:     b[2]&0x40 != 0,
		Attr:   b[2] >> 4 & 0x3,
		Length: uint16(b[2]&0x3)<<8 | uint16(b[3]),
	}
	hdrLen := headerBytes3DW
	if h.Is4DW() {
		hdrLen = headerBytes4DW
		if len(b) < hdrLen {
			return Header{}, fmt.Errorf("%w: %d bytes for 4DW header", ErrHeaderTooShort, len(b))
		}
	}
	h.Raw = append([]byte(nil), b[:hdrLen]...)

	if h.IsCompletion() {
		h.CompleterID = binary.BigEndian.Uint16(b[4:6])
		h.CplStatus = b[6] >> 5 & 0x7
		h.BCM = b[6]&0x10 != 0
		h.ByteCount = uint16(b[6]&0x0F)<<8 | uint16(b[7])
		h.RequesterID = binary.BigEndian.Uint16(b[8:10])
		h.Tag = b[10]
		h.LowerAddr = b[11] & 0x7F
		return h, nil
	}

	h.RequesterID = binary.BigEndian.Uint16(b[4:6])
	h.Tag = b[6]
	h.LastBE = b[7] >> 4
	h.FirstBE = b[7] & 0x0F
	if h.Is4DW() {
		h.Address = binary.BigEndian.Uint64(b[8:16]) &^ 0x3
	} else {
		h.Address = uint64(binary.BigEndian.Uint32(b[8:12]) &^ 0x3)
	}
	return h, nil
}

func (h Header) String() string {
	if h.IsCompletion() {
		return fmt.Sprintf("%s len=%d cpl=%04x req=%04x tag=%02x status=%d bc=%d",
			h.Kind(), h.Length, h.CompleterID, h.RequesterID, h.Tag, h.CplStatus, h.ByteCount)
	}
	return fmt.Sprintf("%s len=%d req=%04x tag=%02x addr=0x%x be=%x/%x",
		h.Kind(), h.Length, h.RequesterID, h.Tag, h.Address, h.FirstBE, h.LastBE)
}
