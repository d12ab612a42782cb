// Package conntrack owns per-connection reassembly state. Each traced
// connection gets one stream parser per direction; the tracker feeds captured
// payloads in, decides when to run a parse pass, and hands extracted frames
// to a sink.
package conntrack

import (
	"net/netip"
	"sync"

	"socktrace/internal/bpf"
	"socktrace/internal/streamparse"

	"github.com/rs/zerolog"
)

// Meta describes a tracked connection to frame sinks.
type Meta struct {
	ID     uint64
	Pid    uint32
	Comm   string
	Role   uint8
	Local  netip.AddrPort
	Remote netip.AddrPort
}

// Sink receives frames extracted from a connection, in extraction order.
type Sink[F streamparse.Frame] interface {
	HandleFrames(meta *Meta, t streamparse.MessageType, frames []F)
}

// stream is one direction of one connection.
type stream[F streamparse.Frame] struct {
	parser  *streamparse.EventParser[F]
	msgType streamparse.MessageType

	// resync is armed after an invalid parse so the next pass searches
	// forward for a fresh frame boundary instead of retrying the same
	// garbage.
	resync bool
}

type conn[F streamparse.Frame] struct {
	meta    Meta
	egress  *stream[F]
	ingress *stream[F]
}

// Tracker routes socket events to per-connection parsers.
//
// A parse pass runs when a direction's buffered bytes reach parseThreshold,
// when the connection closes, and on explicit FlushAll calls. Less frequent
// passes cost memory; more frequent passes raise the odds of dropping a
// partial frame, since a parse pass drains the buffer either way.
type Tracker[F streamparse.Frame] struct {
	mu    sync.Mutex
	conns map[uint64]*conn[F]

	newCodec       func() streamparse.Codec[F]
	sink           Sink[F]
	parseThreshold int
	log            zerolog.Logger
}

// NewTracker creates a tracker. newCodec is invoked once per connection
// direction, letting codecs keep per-stream state if they need it.
func NewTracker[F streamparse.Frame](newCodec func() streamparse.Codec[F], sink Sink[F], parseThreshold int, log zerolog.Logger) *Tracker[F] {
	return &Tracker[F]{
		conns:          make(map[uint64]*conn[F]),
		newCodec:       newCodec,
		sink:           sink,
		parseThreshold: parseThreshold,
		log:            log.With().Str("component", "conntrack").Logger(),
	}
}

// HandleOpen registers a connection and fixes which direction carries
// requests: a client sends requests, a server receives them.
func (t *Tracker[F]) HandleOpen(ev *bpf.SocketControlEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := t.getOrCreate(ev.ConnID, ev.Role)
	c.meta.Pid = ev.Pid
	c.meta.Comm = ev.CommString()
	c.meta.Role = ev.Role
	c.meta.Local = ev.LocalAddr()
	c.meta.Remote = ev.RemoteAddr()

	t.log.Debug().
		Uint64("conn_id", ev.ConnID).
		Uint32("pid", ev.Pid).
		Str("comm", c.meta.Comm).
		Stringer("remote", c.meta.Remote).
		Msg("connection opened")
}

// HandleClose flushes both directions of the connection and forgets it.
func (t *Tracker[F]) HandleClose(ev *bpf.SocketControlEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.conns[ev.ConnID]
	if !ok {
		return
	}

	t.parse(c, c.egress)
	t.parse(c, c.ingress)
	delete(t.conns, ev.ConnID)

	t.log.Debug().Uint64("conn_id", ev.ConnID).Msg("connection closed")
}

// HandleData buffers one captured payload and runs a parse pass once enough
// bytes have accumulated on that direction.
func (t *Tracker[F]) HandleData(ev *bpf.SocketDataEvent) {
	if len(ev.Data) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Data can race ahead of the open event (probe ordering is not
	// guaranteed across CPUs), so create on demand with the client-side
	// direction mapping as the fallback.
	c := t.getOrCreate(ev.ConnID, bpf.ROLE_CLIENT)

	s := c.ingress
	if ev.Direction == bpf.DIRECTION_EGRESS {
		s = c.egress
	}

	s.parser.Append(ev.Data, ev.Timestamp)

	if s.parser.BufferedBytes() >= t.parseThreshold {
		t.parse(c, s)
	}
}

// FlushAll runs a parse pass over every buffered direction. Called
// periodically so idle connections do not hold payloads indefinitely.
func (t *Tracker[F]) FlushAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range t.conns {
		t.parse(c, c.egress)
		t.parse(c, c.ingress)
	}
}

// Connections reports how many connections are currently tracked.
func (t *Tracker[F]) Connections() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

func (t *Tracker[F]) getOrCreate(id uint64, role uint8) *conn[F] {
	if c, ok := t.conns[id]; ok {
		return c
	}

	reqType, respType := streamparse.MessageTypeRequest, streamparse.MessageTypeResponse
	c := &conn[F]{
		meta:    Meta{ID: id, Role: role},
		egress:  &stream[F]{parser: streamparse.NewEventParser[F](t.newCodec()), msgType: reqType},
		ingress: &stream[F]{parser: streamparse.NewEventParser[F](t.newCodec()), msgType: respType},
	}
	if role == bpf.ROLE_SERVER {
		c.egress.msgType, c.ingress.msgType = respType, reqType
	}
	t.conns[id] = c
	return c
}

// parse runs one destructive parse pass over a direction's buffered payloads
// and dispatches any extracted frames. Holding t.mu; the sink must not call
// back into the tracker.
func (t *Tracker[F]) parse(c *conn[F], s *stream[F]) {
	if s.parser.BufferedChunks() == 0 {
		return
	}

	buffered := s.parser.BufferedBytes()

	var frames []F
	res := s.parser.ParseFrames(s.msgType, &frames, s.resync)

	// An invalid parse means the stream position is corrupted (mid-frame
	// capture start, lost event, codec gap). Ask for a boundary search on
	// the next pass.
	s.resync = res.State == streamparse.StateInvalid

	if res.State == streamparse.StateInvalid {
		t.log.Debug().
			Uint64("conn_id", c.meta.ID).
			Stringer("type", s.msgType).
			Int("buffered", buffered).
			Int("frames", len(frames)).
			Msg("parse failed, will resync")
	}

	if len(frames) > 0 {
		t.sink.HandleFrames(&c.meta, s.msgType, frames)
	}
}
