package streamparse

// EventParser buffers a stream of payloads traced from write/send/read/recv
// syscalls, and on demand emits as many complete parsed frames as it can.
//
// An instance serves exactly one direction of one traced connection and must
// not be shared across goroutines; ordering of extracted frames follows the
// Append order, which must match syscall completion order.
type EventParser[F Frame] struct {
	codec Codec[F]

	// tsNS[i] is the capture timestamp in nanoseconds for msgs[i].
	tsNS []uint64
	msgs [][]byte

	// Total size of all buffers in msgs. Used to reserve memory for
	// concatenation in a single allocation.
	msgsSize int
}

// NewEventParser creates a parser that frames the stream with codec.
func NewEventParser[F Frame](codec Codec[F]) *EventParser[F] {
	return &EventParser[F]{codec: codec}
}

// Append adds one captured payload and its capture timestamp to the internal
// buffer. No parsing happens here. The parser retains data until the next
// ParseFrames call; the caller must not mutate it in between.
func (p *EventParser[F]) Append(data []byte, tsNS uint64) {
	p.msgs = append(p.msgs, data)
	p.tsNS = append(p.tsNS, tsNS)
	p.msgsSize += len(data)
}

// BufferedBytes reports the total payload size currently buffered.
func (p *EventParser[F]) BufferedBytes() int {
	return p.msgsSize
}

// BufferedChunks reports how many payloads are currently buffered.
func (p *EventParser[F]) BufferedChunks() int {
	return len(p.msgs)
}

// ParseFrames parses the internal buffer (see Append) for frames and appends
// them to frames. Each new frame is stamped with the capture timestamp of the
// chunk containing its first byte.
//
// If resync is true, parsing first searches for the next frame boundary
// instead of assuming it is sitting on one. The search starts at offset 1 so
// a resync always makes forward progress, and falls back to offset 0 when no
// boundary is found.
//
// The call is destructive: all buffered state is cleared before returning,
// regardless of outcome. Positions in the result refer to the chunks as
// buffered at call time.
func (p *EventParser[F]) ParseFrames(t MessageType, frames *[]F, resync bool) ParseResult[BufferPosition] {
	buf := p.combine()

	startPos := 0
	if resync {
		startPos = p.codec.FindFrameBoundary(t, buf, 1)

		// No boundary found, so stay where we are. Chances are the parse
		// will fail, but there is no better option.
		if startPos == BoundaryNotFound {
			startPos = 0
		}
	}

	// Grab the size before parsing, so we know which frames are new.
	prevCount := len(*frames)

	res := p.codec.ParseFrames(t, buf[startPos:], frames)

	var converter PositionConverter
	positions := make([]BufferPosition, 0, len(res.StartPositions))

	// Match timestamps with the parsed frames. Codec positions are relative
	// to the sub-buffer handed to it, so rebase by startPos first.
	for i, sp := range res.StartPositions {
		position := converter.Convert(p.msgs, startPos+sp)
		positions = append(positions, position)
		(*frames)[prevCount+i].SetTimestampNS(p.tsNS[position.SeqNum])
	}

	endPosition := converter.Convert(p.msgs, startPos+res.EndPosition)

	// Reset all state. A call to ParseFrames is destructive of Append state.
	p.msgs = nil
	p.tsNS = nil
	p.msgsSize = 0

	return ParseResult[BufferPosition]{
		StartPositions: positions,
		EndPosition:    endPosition,
		State:          res.State,
	}
}

// combine concatenates all buffered payloads into one contiguous buffer,
// sized up front from the running total.
func (p *EventParser[F]) combine() []byte {
	buf := make([]byte, 0, p.msgsSize)
	for _, msg := range p.msgs {
		buf = append(buf, msg...)
	}
	return buf
}
