// Package eventstream reads socket tracer records from the BPF ring buffer
// and dispatches them to a handler.
package eventstream

import (
	"context"
	"errors"

	"socktrace/internal/bpf"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/rs/zerolog"
)

// Handler receives decoded events from the ring buffer, in arrival order.
type Handler interface {
	HandleControl(ev *bpf.SocketControlEvent) error
	HandleData(ev *bpf.SocketDataEvent) error
}

// Stream reads events from a ringbuffer and dispatches them to a handler.
type Stream struct {
	reader  *ringbuf.Reader
	handler Handler
	log     zerolog.Logger
	stopCh  chan struct{}
}

// New creates a new Stream with the given ringbuffer reader and event handler.
func New(reader *ringbuf.Reader, handler Handler, log zerolog.Logger) *Stream {
	return &Stream{
		reader:  reader,
		handler: handler,
		log:     log.With().Str("component", "eventstream").Logger(),
		stopCh:  make(chan struct{}),
	}
}

// Start begins reading events from the ringbuffer in a goroutine.
// It returns immediately and processes events in the background until
// the context is cancelled or Stop is called.
func (s *Stream) Start(ctx context.Context) error {
	go s.processEvents(ctx)
	return nil
}

// Stop signals the event processing goroutine to stop.
func (s *Stream) Stop() error {
	close(s.stopCh)
	return nil
}

// processEvents is the main event loop that reads and processes events.
func (s *Stream) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
			record, err := s.reader.Read()
			if err != nil {
				if errors.Is(err, ringbuf.ErrClosed) {
					return
				}
				s.log.Warn().Err(err).Msg("reading from ring buffer")
				continue
			}

			if err := s.dispatch(record.RawSample); err != nil {
				s.log.Warn().Err(err).Msg("handling event")
			}
		}
	}
}

// dispatch decodes one raw record and routes it by event type.
func (s *Stream) dispatch(raw []byte) error {
	typ, err := bpf.PeekType(raw)
	if err != nil {
		return err
	}

	switch typ {
	case bpf.EVENT_SOCK_OPEN, bpf.EVENT_SOCK_CLOSE:
		ev, err := bpf.DecodeControlEvent(raw)
		if err != nil {
			return err
		}
		return s.handler.HandleControl(ev)
	case bpf.EVENT_SOCK_DATA:
		ev, err := bpf.DecodeDataEvent(raw)
		if err != nil {
			return err
		}
		return s.handler.HandleData(ev)
	default:
		// Unknown event type - ignore.
		s.log.Debug().Uint8("type", typ).Msg("unknown event type")
		return nil
	}
}
