// Package printer renders decode output for the CLI: packet and message
// lines, colored diagnostics and the signal listing table.
package printer

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"wavedec/decoder"
	"wavedec/diag"
	"wavedec/stream"
	"wavedec/tlp"
	"wavedec/trace"
)

func init() {
	// Force color output even when not connected to TTY
	// Users can disable with NO_COLOR environment variable
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow)
)

// FormatPacketLine formats one bus packet as a single output line.
func FormatPacketLine(p *stream.Packet) string {
	flags := ""
	if p.Truncated {
		flags = " TRUNC"
	}
	if p.Backpressure > 0 {
		flags += fmt.Sprintf(" bp=%d", p.Backpressure)
	}
	return fmt.Sprintf("Pkt:%s #%d; @%d:%d; beats=%d; [%s]%s",
		p.Bus, p.Seq, p.Start, p.End, p.Beats, formatHexBytes(p.Data), flags)
}

// FormatMessageLine formats one TLP message as a single output line.
func FormatMessageLine(m *tlp.Message) string {
	flags := ""
	if m.LengthMismatch {
		flags = " LENGTH_MISMATCH"
	}
	return fmt.Sprintf("Tlp:%s #%d; @%d:%d; %s; payload=[%s]%s",
		m.Bus, m.Seq, m.Start, m.End, m.Header.String(), formatHexBytes(m.Payload), flags)
}

// severe reports whether a diagnostic kind indicates lost or unusable data
// rather than a recoverable oddity.
func severe(k diag.Kind) bool {
	switch k {
	case diag.HeaderTooShort, diag.UnknownDecoderKind, diag.MissingParameter,
		diag.InvalidParameter, diag.SignalNotFound, diag.AmbiguousPattern:
		return true
	default:
		return false
	}
}

// Diagnostic prints one diagnostic to w, red for severe kinds and yellow for
// recoverable ones.
func Diagnostic(w io.Writer, d diag.Diagnostic) {
	if severe(d.Kind) {
		red.Fprintf(w, "%s\n", d)
		return
	}
	yellow.Fprintf(w, "%s\n", d)
}

// Event prints one decode event: its payload line to out and any attached
// diagnostic to errOut.
func Event(out, errOut io.Writer, ev decoder.Event) {
	switch {
	case ev.Packet != nil:
		fmt.Fprintln(out, FormatPacketLine(ev.Packet))
	case ev.Message != nil:
		fmt.Fprintln(out, FormatMessageLine(ev.Message))
	}
	if ev.Diag != nil {
		Diagnostic(errOut, *ev.Diag)
	}
}

// SignalTable renders the signal listing used by the --signals flag.
func SignalTable(w io.Writer, signals []trace.Signal) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Signal", "Width")
	for _, sig := range signals {
		if err := table.Append([]string{
			strconv.Itoa(int(sig.ID)), sig.Name(), strconv.Itoa(sig.Width),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("0x%02x", b)
	}
	return strings.Join(parts, " ") + " "
}
