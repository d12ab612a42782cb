package output

import (
	"fmt"
	"io"

	"socktrace/internal/conntrack"
	"socktrace/internal/filter"
	"socktrace/internal/hostnames"
	"socktrace/internal/streamparse"
	"socktrace/internal/timesync"
)

// Frame is what formatters need from a protocol frame type.
type Frame interface {
	streamparse.Frame
	TimestampNS() uint64
	Describe() string
	ExprEnv() map[string]any
}

// TextFormatter prints one line per extracted frame. It implements
// conntrack.Sink.
type TextFormatter[F Frame] struct {
	w      io.Writer
	conv   *timesync.Converter
	filter *filter.Filter[F]
	names  *hostnames.Resolver
}

// NewTextFormatter creates a formatter writing to w. filter may be nil to
// report every frame; names may be nil to print raw peer addresses.
func NewTextFormatter[F Frame](w io.Writer, conv *timesync.Converter, f *filter.Filter[F], names *hostnames.Resolver) *TextFormatter[F] {
	return &TextFormatter[F]{w: w, conv: conv, filter: f, names: names}
}

// HandleFrames prints the frames that pass the filter. Called by the tracker
// under its own lock, so no synchronization is needed here.
func (t *TextFormatter[F]) HandleFrames(meta *conntrack.Meta, msgType streamparse.MessageType, frames []F) {
	for _, frame := range frames {
		if !t.filter.Match(frame) {
			continue
		}

		when := t.conv.MonotonicToWallClock(frame.TimestampNS()).Format("15:04:05.000000")
		fmt.Fprintf(t.w, "%s pid=%d comm=%s %s->%s [%s] %s\n",
			when,
			meta.Pid,
			meta.Comm,
			meta.Local,
			t.names.Name(meta.Remote),
			msgType,
			frame.Describe(),
		)
	}
}

// Multi fans frames out to several sinks.
func Multi[F Frame](sinks ...conntrack.Sink[F]) conntrack.Sink[F] {
	return multiSink[F]{sinks: sinks}
}

type multiSink[F Frame] struct {
	sinks []conntrack.Sink[F]
}

func (m multiSink[F]) HandleFrames(meta *conntrack.Meta, msgType streamparse.MessageType, frames []F) {
	for _, s := range m.sinks {
		s.HandleFrames(meta, msgType, frames)
	}
}
