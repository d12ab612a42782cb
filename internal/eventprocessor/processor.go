package eventprocessor

import (
	"sync/atomic"

	"socktrace/internal/bpf"
	"socktrace/internal/conntrack"
	"socktrace/internal/streamparse"

	"github.com/rs/zerolog"
)

// Stats counts what passed through the processor.
type Stats struct {
	Opens        uint64
	Closes       uint64
	DataEvents   uint64
	PayloadBytes uint64
}

// Processor routes decoded ring buffer events to the connection tracker.
// It implements eventstream.Handler.
type Processor[F streamparse.Frame] struct {
	tracker *conntrack.Tracker[F]
	log     zerolog.Logger

	opens        atomic.Uint64
	closes       atomic.Uint64
	dataEvents   atomic.Uint64
	payloadBytes atomic.Uint64
}

// NewProcessor creates a new event processor.
func NewProcessor[F streamparse.Frame](tracker *conntrack.Tracker[F], log zerolog.Logger) *Processor[F] {
	return &Processor[F]{
		tracker: tracker,
		log:     log.With().Str("component", "eventprocessor").Logger(),
	}
}

// HandleControl routes connection lifecycle events by type.
func (p *Processor[F]) HandleControl(ev *bpf.SocketControlEvent) error {
	switch ev.Type {
	case bpf.EVENT_SOCK_OPEN:
		p.opens.Add(1)
		p.tracker.HandleOpen(ev)
	case bpf.EVENT_SOCK_CLOSE:
		p.closes.Add(1)
		p.tracker.HandleClose(ev)
	default:
		// Unknown control event type - ignore.
		p.log.Debug().Uint8("type", ev.Type).Msg("unexpected control event type")
	}
	return nil
}

// HandleData routes captured payloads to the tracker.
func (p *Processor[F]) HandleData(ev *bpf.SocketDataEvent) error {
	p.dataEvents.Add(1)
	p.payloadBytes.Add(uint64(len(ev.Data)))
	p.tracker.HandleData(ev)
	return nil
}

// Stats returns a snapshot of the processing counters.
func (p *Processor[F]) Stats() Stats {
	return Stats{
		Opens:        p.opens.Load(),
		Closes:       p.closes.Load(),
		DataEvents:   p.dataEvents.Load(),
		PayloadBytes: p.payloadBytes.Load(),
	}
}
