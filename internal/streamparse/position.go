package streamparse

import "fmt"

// BufferPosition identifies a byte within a set of disjoint buffers, as a
// buffer sequence number and an offset within that buffer.
type BufferPosition struct {
	SeqNum int
	Offset int
}

// PositionConverter translates positions within a combined buffer into
// positions within the matching set of disjoint source buffers.
//
// As an optimization it keeps track of its last state, so a search can resume
// where the previous one left off. This makes a full forward pass over the
// combined buffer amortized O(1) per call, but it also means queried
// positions must never decrease between calls on the same instance.
type PositionConverter struct {
	currSeq      int
	size         int
	lastQueryPos int
}

// Reset rewinds the converter so a fresh forward scan can begin.
func (c *PositionConverter) Reset() {
	c.currSeq = 0
	c.size = 0
	c.lastQueryPos = 0
}

// Convert maps pos, an offset into the virtual concatenation of msgs, to the
// buffer that contains it. An offset at or beyond the end of all buffers maps
// to the end-of-stream marker {len(msgs), 0}.
//
// Calling Convert with a position smaller than the previous call's is a bug
// in the caller (frames reported out of order) and panics.
func (c *PositionConverter) Convert(msgs [][]byte, pos int) BufferPosition {
	if pos < c.lastQueryPos {
		panic(fmt.Sprintf("streamparse: PositionConverter cannot go backwards (pos %d < last %d)", pos, c.lastQueryPos))
	}
	c.lastQueryPos = pos

	for c.currSeq < len(msgs) {
		msg := msgs[c.currSeq]

		// If the next buffer would cause the crossover, this is the one.
		if pos < c.size+len(msg) {
			return BufferPosition{SeqNum: c.currSeq, Offset: pos - c.size}
		}

		c.currSeq++
		c.size += len(msg)
	}
	return BufferPosition{SeqNum: c.currSeq, Offset: 0}
}
