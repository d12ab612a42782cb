package output

import (
	"bytes"
	"net/netip"
	"testing"

	"socktrace/internal/conntrack"
	"socktrace/internal/filter"
	"socktrace/internal/streamparse"
	"socktrace/internal/timesync"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFrame struct {
	tsNS uint64
	desc string
	env  map[string]any
}

func (f *stubFrame) SetTimestampNS(ts uint64) { f.tsNS = ts }
func (f *stubFrame) TimestampNS() uint64      { return f.tsNS }
func (f *stubFrame) Describe() string         { return f.desc }
func (f *stubFrame) ExprEnv() map[string]any  { return f.env }

func testMeta() *conntrack.Meta {
	return &conntrack.Meta{
		ID:     1,
		Pid:    42,
		Comm:   "curl",
		Local:  netip.MustParseAddrPort("10.0.0.1:43210"),
		Remote: netip.MustParseAddrPort("93.184.216.34:80"),
	}
}

func newTestFormatter(t *testing.T, expr string) (*TextFormatter[*stubFrame], *bytes.Buffer) {
	t.Helper()
	conv, err := timesync.NewConverter()
	require.NoError(t, err)
	f, err := filter.New[*stubFrame](expr, zerolog.Nop())
	require.NoError(t, err)
	var buf bytes.Buffer
	return NewTextFormatter[*stubFrame](&buf, conv, f, nil), &buf
}

func TestTextFormatter_PrintsFrames(t *testing.T) {
	tf, buf := newTestFormatter(t, "")

	tf.HandleFrames(testMeta(), streamparse.MessageTypeRequest, []*stubFrame{
		{tsNS: 1_000_000, desc: "GET / HTTP/1.1 (0 body bytes)"},
	})

	out := buf.String()
	assert.Contains(t, out, "pid=42")
	assert.Contains(t, out, "comm=curl")
	assert.Contains(t, out, "10.0.0.1:43210->93.184.216.34:80")
	assert.Contains(t, out, "[request]")
	assert.Contains(t, out, "GET / HTTP/1.1 (0 body bytes)")
}

func TestTextFormatter_AppliesFilter(t *testing.T) {
	tf, buf := newTestFormatter(t, `status >= 500`)

	tf.HandleFrames(testMeta(), streamparse.MessageTypeResponse, []*stubFrame{
		{desc: "HTTP/1.1 200", env: map[string]any{"status": 200}},
		{desc: "HTTP/1.1 503", env: map[string]any{"status": 503}},
	})

	out := buf.String()
	assert.NotContains(t, out, "HTTP/1.1 200")
	assert.Contains(t, out, "HTTP/1.1 503")
}

func TestMulti_FansOut(t *testing.T) {
	a, bufA := newTestFormatter(t, "")
	b, bufB := newTestFormatter(t, "")

	sink := Multi[*stubFrame](a, b)
	sink.HandleFrames(testMeta(), streamparse.MessageTypeRequest, []*stubFrame{{desc: "fanned"}})

	assert.Contains(t, bufA.String(), "fanned")
	assert.Contains(t, bufB.String(), "fanned")
}
