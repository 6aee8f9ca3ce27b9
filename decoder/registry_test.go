package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavedec/diag"
	"wavedec/trace"
)

// busReader builds a store holding one AXI stream bus plus a clock.
type busReader struct {
	sigs    []trace.Signal
	changes [][]trace.Change
}

func (r *busReader) Signals() []trace.Signal                  { return r.sigs }
func (r *busReader) Changes(id trace.SignalID) []trace.Change { return r.changes[id] }
func (r *busReader) TimescaleFs() uint64                      { return 1_000_000 }

func (r *busReader) add(name string, width int, changes []trace.Change) {
	r.sigs = append(r.sigs, trace.Signal{
		ID:    trace.SignalID(len(r.sigs)),
		Path:  trace.SplitPath(name),
		Width: width,
	})
	r.changes = append(r.changes, changes)
}

func seq(width int, vals ...uint64) []trace.Change {
	var ch []trace.Change
	for i, v := range vals {
		ch = append(ch, trace.Change{Time: trace.Time(i) * 10, Value: trace.ValueFromUint64(width, v)})
	}
	return ch
}

// axisStore captures a 4-beat burst: one packet of 3 header DWs plus one
// payload DW, in word byte order.
func axisStore(t *testing.T, declaredLen uint64) *trace.Store {
	t.Helper()
	r := &busReader{}
	var clk []trace.Change
	for i := 0; i < 4; i++ {
		clk = append(clk,
			trace.Change{Time: trace.Time(i) * 10, Value: trace.ValueFromUint64(1, 1)},
			trace.Change{Time: trace.Time(i)*10 + 5, Value: trace.ValueFromUint64(1, 0)})
	}
	r.add("top.clk", 1, clk)
	r.add("top.pcie.rx.tvalid", 1, seq(1, 1, 1, 1, 1))
	r.add("top.pcie.rx.tlast", 1, seq(1, 0, 0, 0, 1))
	r.add("top.pcie.rx.tdata", 32, seq(32,
		0x40000000|declaredLen, // MWr, 3DW with data
		0x0100050F,             // requester 0x0100, tag 0x05
		0x00001000,             // address
		0xDEADBEEF,             // payload DW
	))
	st, err := trace.Load(r)
	require.NoError(t, err)
	return st
}

func TestConstructUnknownKind(t *testing.T) {
	st := axisStore(t, 1)
	_, err := DefaultRegistry().Construct("AXI4", "rx", Params{}, st)
	assert.ErrorIs(t, err, ErrUnknownDecoderKind)
}

func TestConstructMissingFilter(t *testing.T) {
	st := axisStore(t, 1)
	_, err := DefaultRegistry().Construct("AXIStream", "rx", Params{}, st)

	var missing *MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "filter", missing.Field)
	assert.Equal(t, "rx", missing.Instance)
}

func TestConstructInvalidParamType(t *testing.T) {
	st := axisStore(t, 1)
	_, err := DefaultRegistry().Construct("AXIStream", "rx", Params{"filter": 42}, st)
	assert.Error(t, err)
}

func TestConstructRejectsUnknownParameter(t *testing.T) {
	st := axisStore(t, 1)
	_, err := DefaultRegistry().Construct("AXIStream", "rx", Params{
		"filter":    "pcie.rx",
		"name_last": "tlast",
	}, st)
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown parameter "name_last"`)

	// variant belongs to the TLP kind only
	_, err = DefaultRegistry().Construct("AXIStream", "rx", Params{
		"filter": "pcie.rx", "variant": "generic",
	}, st)
	assert.Error(t, err)
	_, err = DefaultRegistry().Construct("AXIStreamTLP", "rx", Params{
		"filter": "pcie.rx", "variant": "generic",
	}, st)
	assert.NoError(t, err)
}

func TestBuildMapsUnknownParameter(t *testing.T) {
	st := axisStore(t, 1)
	specs := map[string]InstanceSpec{
		"rx": {Kind: "AvalonStream", Params: Params{"filter": "pcie.rx", "variant": "generic"}},
	}
	instances, diags := Build(DefaultRegistry(), st, specs, nil)
	assert.Empty(t, instances)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.InvalidParameter, diags[0].Kind)
	assert.Equal(t, "rx", diags[0].Instance)
}

func TestRegistryRejectsDuplicateKind(t *testing.T) {
	r := NewRegistry()
	c := func(string, Params, *trace.Store) (Instance, error) { return nil, nil }
	require.NoError(t, r.Register("X", c))
	assert.ErrorIs(t, r.Register("X", c), ErrKindRegistered)
}

func TestDefaultRegistryKinds(t *testing.T) {
	assert.Equal(t, []string{"AXIStream", "AXIStreamTLP", "AvalonStream"}, DefaultRegistry().Kinds())
}

func TestAXIStreamInstanceProducesPackets(t *testing.T) {
	st := axisStore(t, 1)
	inst, err := DefaultRegistry().Construct("AXIStream", "rx", Params{
		"filter":     "pcie.rx",
		"byte_order": "word",
	}, st)
	require.NoError(t, err)
	assert.Equal(t, "rx", inst.Name())

	ev, ok := inst.Next()
	require.True(t, ok)
	require.NotNil(t, ev.Packet)
	assert.Equal(t, 4, ev.Packet.Beats)
	assert.Equal(t, 16, len(ev.Packet.Data))
	assert.Equal(t, byte(0x40), ev.Packet.Data[0])

	_, ok = inst.Next()
	assert.False(t, ok)
}

func TestAXIStreamTLPInstanceDecodesMessage(t *testing.T) {
	st := axisStore(t, 1)
	inst, err := DefaultRegistry().Construct("AXIStreamTLP", "rx", Params{
		"filter":     "pcie.rx",
		"byte_order": "word",
	}, st)
	require.NoError(t, err)

	ev, ok := inst.Next()
	require.True(t, ok)
	require.NotNil(t, ev.Message)
	assert.Nil(t, ev.Diag)
	assert.Equal(t, "MWr", ev.Message.Header.Kind())
	assert.Equal(t, uint16(0x0100), ev.Message.Header.RequesterID)
	assert.Equal(t, uint64(0x1000), ev.Message.Header.Address)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, ev.Message.Payload)
	assert.False(t, ev.Message.LengthMismatch)

	_, ok = inst.Next()
	assert.False(t, ok)
}

func TestAXIStreamTLPLengthMismatch(t *testing.T) {
	// Header declares 2 payload DWs; the capture holds 1.
	st := axisStore(t, 2)
	inst, err := DefaultRegistry().Construct("AXIStreamTLP", "rx", Params{
		"filter":     "pcie.rx",
		"byte_order": "word",
	}, st)
	require.NoError(t, err)

	ev, ok := inst.Next()
	require.True(t, ok)
	require.NotNil(t, ev.Message, "mismatched message must still be produced")
	assert.True(t, ev.Message.LengthMismatch)
	assert.Equal(t, "MWr", ev.Message.Header.Kind())
	require.NotNil(t, ev.Diag)
	assert.Equal(t, diag.LengthMismatch, ev.Diag.Kind)
	assert.Equal(t, "rx", ev.Diag.Instance)
}

func TestConstructFailureLeavesSiblingsAlone(t *testing.T) {
	st := axisStore(t, 1)
	specs := map[string]InstanceSpec{
		"good": {Kind: "AXIStream", Params: Params{"filter": "pcie.rx"}},
		"bad":  {Kind: "NoSuchKind", Params: Params{"filter": "pcie.rx"}},
	}
	instances, diags := Build(DefaultRegistry(), st, specs, nil)

	assert.Contains(t, instances, "good")
	assert.NotContains(t, instances, "bad")
	require.Len(t, diags, 1)
	assert.Equal(t, diag.UnknownDecoderKind, diags[0].Kind)
	assert.Equal(t, "bad", diags[0].Instance)
}

func TestBuildMapsResolutionErrors(t *testing.T) {
	st := axisStore(t, 1)
	specs := map[string]InstanceSpec{
		"missing": {Kind: "AXIStream", Params: Params{"filter": "no.such.bus"}},
	}
	_, diags := Build(DefaultRegistry(), st, specs, nil)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.SignalNotFound, diags[0].Kind)

	// "rx.tvalid" matches a bus in both cores: ambiguous role resolution.
	specs = map[string]InstanceSpec{
		"ambig": {Kind: "AXIStream", Params: Params{"filter": "rx"}},
	}
	r := &busReader{}
	r.add("top.clk", 1, seq(1, 0, 1))
	r.add("top.core0.rx.tvalid", 1, seq(1, 1))
	r.add("top.core1.rx.tvalid", 1, seq(1, 1))
	r.add("top.core0.rx.tdata", 8, seq(8, 1))
	r.add("top.core1.rx.tdata", 8, seq(8, 1))
	st2, err := trace.Load(r)
	require.NoError(t, err)
	_, diags = Build(DefaultRegistry(), st2, specs, nil)
	require.Len(t, diags, 1)
	assert.Equal(t, diag.AmbiguousPattern, diags[0].Kind)
}
