package streamparse

// MessageType selects request or response framing. The two directions of a
// connection may have distinguishable shapes, so codecs receive it on every
// call.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeRequest
	MessageTypeResponse
)

// String returns the message type name for logging.
func (t MessageType) String() string {
	switch t {
	case MessageTypeRequest:
		return "request"
	case MessageTypeResponse:
		return "response"
	default:
		return "unknown"
	}
}

// BoundaryNotFound is returned by Codec.FindFrameBoundary when no plausible
// frame start exists in the searched range.
const BoundaryNotFound = -1

// Frame is the constraint protocol frame types must satisfy. The parser only
// ever writes one field it does not understand: the capture timestamp of the
// chunk that contributed the frame's first byte.
type Frame interface {
	SetTimestampNS(uint64)
}

// Codec is the per-protocol contract the parser calls through. Implemented
// once per protocol (HTTP, database wire formats, ...); the parser never
// needs to distinguish protocols itself.
//
// Implementations must not retain buf past the call: its backing storage is
// invalidated by the next EventParser.ParseFrames call.
type Codec[F Frame] interface {
	// FindFrameBoundary scans buf from startPos for the next position that
	// looks like a valid frame start for the given message type, returning
	// its offset or BoundaryNotFound. Used to resynchronize after a parse
	// failure, so heuristics (magic bytes, length-prefix plausibility) are
	// acceptable.
	FindFrameBoundary(t MessageType, buf []byte, startPos int) int

	// ParseFrames consumes as much of buf as possible starting at offset 0,
	// appending every fully recognized frame to frames. Frames already
	// present must never be removed or reordered, and start positions must
	// be reported in the order encountered by a single forward scan.
	ParseFrames(t MessageType, buf []byte, frames *[]F) ParseResult[int]
}
