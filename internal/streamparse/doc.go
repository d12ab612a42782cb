// Package streamparse reassembles captured socket payloads into complete
// application-layer protocol frames.
//
// Payloads arrive from the kernel as disjoint, timestamped chunks; a single
// frame may span several chunks and a chunk may hold several frames. The
// EventParser buffers chunks without inspecting them, and on demand treats
// the buffered sequence as one logical byte stream, delegates framing to a
// protocol Codec, and maps every reported frame start back to the chunk (and
// capture timestamp) it originated from.
//
// Data flow:
//
//	┌────────────┐   Append (buffer only)
//	│ bpf events │ ─────────────────────────┐
//	└────────────┘                          ▼
//	                                 ┌─────────────┐
//	                                 │ EventParser │
//	                                 └──────┬──────┘
//	                  ParseFrames           │
//	        concat → (resync?) → Codec ─────┤
//	                                        ▼
//	              frames + BufferPosition results + timestamps
//
// A call to ParseFrames is destructive: whatever was appended since the last
// call is drained, whether or not every byte was consumed into a frame. The
// caller owns the trade-off between call frequency (bounds memory) and the
// risk of dropping a partial frame at the tail.
//
// The package is protocol-agnostic. Each protocol supplies a Codec
// implementation; see internal/protocols/httpcodec for the HTTP/1.x one.
package streamparse
