package streamparse

// ParseState describes how the last attempted frame parse ended.
type ParseState int

const (
	// StateInvalid means no recognizable frame could be parsed at the
	// current position.
	StateInvalid ParseState = iota
	// StateNeedsMoreData means the tail of the buffer looks like the start
	// of a valid frame but is incomplete. Not an error.
	StateNeedsMoreData
	// StateSuccess means the buffer was consumed through the end position
	// with no leftover partial frame.
	StateSuccess
)

// String returns the state name for logging.
func (s ParseState) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateNeedsMoreData:
		return "needs-more-data"
	case StateSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// ParseResult reports where frames were found in a source buffer.
//
// It is generic over the position representation because there are two
// concepts of position: an int offset within one contiguous buffer (what a
// Codec reports), and a BufferPosition within a set of disjoint buffers
// (what EventParser.ParseFrames returns).
type ParseResult[P any] struct {
	// StartPositions holds the start of each successfully parsed frame, in
	// the order the frames were encountered.
	StartPositions []P
	// EndPosition is where parsing stopped consuming the source buffer.
	EndPosition P
	// State of the last attempted frame parse.
	State ParseState
}
