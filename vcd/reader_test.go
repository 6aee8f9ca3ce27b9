package vcd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavedec/trace"
)

const simpleVCD = `$date today $end
$version handwritten $end
$timescale 1ns $end
$scope module top $end
$var wire 1 ! clk $end
$scope module core $end
$var wire 8 " data $end
$var wire 1 # valid $end
$upscope $end
$upscope $end
$enddefinitions $end
$dumpvars
0!
b00000000 "
0#
$end
#0
1!
#5
0!
#10
1!
1#
b10101100 "
#15
0!
#20
1!
0#
`

func parse(t *testing.T, text string) *Reader {
	t.Helper()
	r, err := Parse(strings.NewReader(text))
	require.NoError(t, err)
	return r
}

func TestParseDeclarations(t *testing.T) {
	r := parse(t, simpleVCD)

	require.Len(t, r.Signals(), 3)
	assert.Equal(t, uint64(1_000_000), r.TimescaleFs())
	assert.Equal(t, []string{"top.clk", "top.core.data", "top.core.valid"}, r.SignalNames())

	clk := r.Signals()[0]
	assert.Equal(t, []string{"top", "clk"}, clk.Path)
	assert.Equal(t, 1, clk.Width)
	data := r.Signals()[1]
	assert.Equal(t, []string{"top", "core", "data"}, data.Path)
	assert.Equal(t, 8, data.Width)
}

func TestParseChanges(t *testing.T) {
	r := parse(t, simpleVCD)

	clk := r.Changes(0)
	require.Len(t, clk, 5)
	assert.Equal(t, trace.Time(0), clk[0].Time)
	assert.True(t, clk[0].Value.Bool())
	assert.Equal(t, trace.Time(5), clk[1].Time)
	assert.False(t, clk[1].Value.Bool())

	data := r.Changes(1)
	require.Len(t, data, 2)
	assert.Equal(t, trace.Time(0), data[0].Time)
	assert.Equal(t, uint64(0), data[0].Value.Uint64())
	assert.Equal(t, trace.Time(10), data[1].Time)
	assert.Equal(t, uint64(0xAC), data[1].Value.Uint64())

	valid := r.Changes(2)
	require.Len(t, valid, 3)
	assert.Equal(t, trace.Time(0), valid[0].Time)
	assert.False(t, valid[0].Value.Bool())
	assert.Equal(t, trace.Time(10), valid[1].Time)
	assert.True(t, valid[1].Value.Bool())
	assert.Equal(t, trace.Time(20), valid[2].Time)
}

func TestStoreLoadsReader(t *testing.T) {
	st, err := trace.Load(parse(t, simpleVCD))
	require.NoError(t, err)

	ref, err := trace.Resolve("core.data", st.Signals())
	require.NoError(t, err)
	assert.Equal(t, uint64(0xAC), st.ValueAt(ref.ID, 12).Uint64())
	assert.Equal(t, uint64(0), st.ValueAt(ref.ID, 9).Uint64())
}

func TestPerBitVectorMerge(t *testing.T) {
	r := parse(t, `$timescale 1ps $end
$scope module top $end
$var wire 1 ! d [0] $end
$var wire 1 " d [1] $end
$var wire 1 # d [2] $end
$enddefinitions $end
#0
0!
0"
0#
#5
1!
1#
`)
	require.Len(t, r.Signals(), 1)
	sig := r.Signals()[0]
	assert.Equal(t, []string{"top", "d"}, sig.Path)
	assert.Equal(t, 3, sig.Width)

	ch := r.Changes(0)
	require.Len(t, ch, 2)
	assert.Equal(t, uint64(0), ch[0].Value.Uint64())
	assert.Equal(t, uint64(0b101), ch[1].Value.Uint64())
}

func TestUnknownStates(t *testing.T) {
	r := parse(t, `$timescale 1ns $end
$scope module top $end
$var wire 1 ! rst $end
$var wire 4 " bus $end
$enddefinitions $end
#0
x!
bzzzz "
#10
1!
b1x01 "
#20
b0011 "
`)
	rst := r.Changes(0)
	require.Len(t, rst, 2)
	assert.True(t, rst[0].Value.IsUnknown())
	assert.False(t, rst[1].Value.IsUnknown())
	assert.True(t, rst[1].Value.Bool())

	// b1x01 at #10 still carries an unknown bit, so the value state is
	// unchanged and no change is recorded.
	bus := r.Changes(1)
	require.Len(t, bus, 2)
	assert.Equal(t, trace.Time(0), bus[0].Time)
	assert.True(t, bus[0].Value.IsUnknown())
	assert.Equal(t, trace.Time(20), bus[1].Time)
	assert.False(t, bus[1].Value.IsUnknown())
	assert.Equal(t, uint64(0b0011), bus[1].Value.Uint64())
}

func TestUnknownRewriteCoalesces(t *testing.T) {
	r := parse(t, `$timescale 1ns $end
$scope module top $end
$var wire 4 ! bus $end
$enddefinitions $end
#0
bxxxx !
#10
b1x01 !
#20
bzz00 !
#30
b0110 !
`)
	ch := r.Changes(0)
	require.Len(t, ch, 2)
	assert.True(t, ch[0].Value.IsUnknown())
	assert.Equal(t, trace.Time(30), ch[1].Time)
	assert.Equal(t, uint64(0b0110), ch[1].Value.Uint64())
}

func TestShortVectorExtension(t *testing.T) {
	r := parse(t, `$timescale 1ns $end
$scope module top $end
$var wire 8 ! bus $end
$enddefinitions $end
#0
b101 !
#10
bx !
`)
	ch := r.Changes(0)
	require.Len(t, ch, 2)
	assert.Equal(t, uint64(0b101), ch[0].Value.Uint64())
	assert.True(t, ch[1].Value.IsUnknown())
}

func TestSameTimestampCoalesces(t *testing.T) {
	r := parse(t, `$timescale 1ns $end
$scope module top $end
$var wire 4 ! bus $end
$enddefinitions $end
#0
b0001 !
#5
b0010 !
b0011 !
#10
b0011 !
`)
	ch := r.Changes(0)
	require.Len(t, ch, 2, "rewrite at #5 coalesces, identical write at #10 is dropped")
	assert.Equal(t, uint64(1), ch[0].Value.Uint64())
	assert.Equal(t, trace.Time(5), ch[1].Time)
	assert.Equal(t, uint64(3), ch[1].Value.Uint64())
}

func TestAliasedIDCode(t *testing.T) {
	r := parse(t, `$timescale 1ns $end
$scope module a $end
$var wire 1 ! clk $end
$upscope $end
$scope module b $end
$var wire 1 ! clk $end
$upscope $end
$enddefinitions $end
#0
1!
`)
	require.Len(t, r.Signals(), 2)
	require.Len(t, r.Changes(0), 1)
	require.Len(t, r.Changes(1), 1)
	assert.True(t, r.Changes(1)[0].Value.Bool())
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"missing enddefinitions", "$timescale 1ns $end\n"},
		{"undeclared id", "$timescale 1ns $end\n$enddefinitions $end\n#0\n1?\n"},
		{"bad timestamp", "$timescale 1ns $end\n$enddefinitions $end\n#abc\n"},
		{"bad timescale", "$timescale 1lightyears $end\n$enddefinitions $end\n"},
		{"stray token", "$timescale 1ns $end\n$enddefinitions $end\nwat\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.text))
			assert.Error(t, err)
		})
	}
}
