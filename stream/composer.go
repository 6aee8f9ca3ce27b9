package stream

import "wavedec/trace"

// Composer turns one beat's data word into packet bytes. It is the
// overridable step of the decoder: bus flavors share accept/accumulate/
// finalize and customize byte assembly here.
type Composer interface {
	AppendBeat(dst []byte, data, keep trace.Value) []byte
}

// LaneComposer assembles bytes in lane order: byte lane 0 (the low byte of
// the data vector) first, which is transmission order on AXI and Avalon
// streaming buses. Lanes whose keep bit is low are skipped when a keep
// strobe is bound.
type LaneComposer struct{}

func (LaneComposer) AppendBeat(dst []byte, data, keep trace.Value) []byte {
	bytes := data.BytesLE()
	hasKeep := keep.Width() > 0 && !keep.IsUnknown()
	for lane, b := range bytes {
		if hasKeep && !keep.Bit(lane) {
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// WordComposer assembles bytes in capture order: most significant byte of
// the data vector first. Useful for buses captured with byte 0 in the high
// lanes, where lane order would mirror every word. Keep strobes index lanes,
// so lane 0 still masks the low byte.
type WordComposer struct{}

func (WordComposer) AppendBeat(dst []byte, data, keep trace.Value) []byte {
	bytes := data.Bytes()
	hasKeep := keep.Width() > 0 && !keep.IsUnknown()
	n := len(bytes)
	for i, b := range bytes {
		if hasKeep && !keep.Bit(n-1-i) {
			continue
		}
		dst = append(dst, b)
	}
	return dst
}
