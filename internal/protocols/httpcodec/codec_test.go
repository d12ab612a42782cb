package httpcodec

import (
	"testing"

	"socktrace/internal/streamparse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleGet = "GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"

func TestParseFrames_SingleRequest(t *testing.T) {
	var frames []*Message
	res := Codec{}.ParseFrames(streamparse.MessageTypeRequest, []byte(simpleGet), &frames)

	require.Len(t, frames, 1)
	assert.Equal(t, "GET", frames[0].Method)
	assert.Equal(t, "/index.html", frames[0].Path)
	assert.Equal(t, "example.com", frames[0].Host)
	assert.Equal(t, 1, frames[0].MinorVersion)
	assert.Empty(t, frames[0].Body)

	assert.Equal(t, []int{0}, res.StartPositions)
	assert.Equal(t, len(simpleGet), res.EndPosition)
	assert.Equal(t, streamparse.StateSuccess, res.State)
}

func TestParseFrames_PipelinedRequests(t *testing.T) {
	input := simpleGet + "POST /submit HTTP/1.1\r\nHost: example.com\r\nContent-Length: 5\r\n\r\nhello"

	var frames []*Message
	res := Codec{}.ParseFrames(streamparse.MessageTypeRequest, []byte(input), &frames)

	require.Len(t, frames, 2)
	assert.Equal(t, "GET", frames[0].Method)
	assert.Equal(t, "POST", frames[1].Method)
	assert.Equal(t, []byte("hello"), frames[1].Body)
	assert.Equal(t, []int{0, len(simpleGet)}, res.StartPositions)
	assert.Equal(t, len(input), res.EndPosition)
	assert.Equal(t, streamparse.StateSuccess, res.State)
}

func TestParseFrames_TruncatedHeaders(t *testing.T) {
	input := "GET /index.html HTTP/1.1\r\nHost: exam"

	var frames []*Message
	res := Codec{}.ParseFrames(streamparse.MessageTypeRequest, []byte(input), &frames)

	assert.Empty(t, frames)
	assert.Equal(t, 0, res.EndPosition)
	assert.Equal(t, streamparse.StateNeedsMoreData, res.State)
}

func TestParseFrames_TruncatedBody(t *testing.T) {
	complete := simpleGet
	partial := "POST /submit HTTP/1.1\r\nHost: example.com\r\nContent-Length: 10\r\n\r\nhel"

	var frames []*Message
	res := Codec{}.ParseFrames(streamparse.MessageTypeRequest, []byte(complete+partial), &frames)

	// The complete request parses; the truncated one waits for more data.
	require.Len(t, frames, 1)
	assert.Equal(t, "GET", frames[0].Method)
	assert.Equal(t, len(complete), res.EndPosition)
	assert.Equal(t, streamparse.StateNeedsMoreData, res.State)
}

func TestParseFrames_Garbage(t *testing.T) {
	var frames []*Message
	res := Codec{}.ParseFrames(streamparse.MessageTypeRequest, []byte("this is not http\r\n\r\n"), &frames)

	assert.Empty(t, frames)
	assert.Equal(t, 0, res.EndPosition)
	assert.Equal(t, streamparse.StateInvalid, res.State)
}

func TestParseFrames_Response(t *testing.T) {
	input := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nContent-Type: text/plain\r\n\r\nhello"

	var frames []*Message
	res := Codec{}.ParseFrames(streamparse.MessageTypeResponse, []byte(input), &frames)

	require.Len(t, frames, 1)
	assert.Equal(t, 200, frames[0].StatusCode)
	assert.Equal(t, "text/plain", frames[0].Headers.Get("Content-Type"))
	assert.Equal(t, []byte("hello"), frames[0].Body)
	assert.Equal(t, len(input), res.EndPosition)
	assert.Equal(t, streamparse.StateSuccess, res.State)
}

func TestParseFrames_ChunkedResponse(t *testing.T) {
	input := "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"

	var frames []*Message
	res := Codec{}.ParseFrames(streamparse.MessageTypeResponse, []byte(input), &frames)

	require.Len(t, frames, 1)
	assert.Equal(t, []byte("hello"), frames[0].Body)
	assert.Equal(t, len(input), res.EndPosition)
	assert.Equal(t, streamparse.StateSuccess, res.State)
}

func TestParseFrames_CloseDelimitedResponseConsumesBuffer(t *testing.T) {
	input := "HTTP/1.0 200 OK\r\n\r\neverything until close"

	var frames []*Message
	res := Codec{}.ParseFrames(streamparse.MessageTypeResponse, []byte(input), &frames)

	require.Len(t, frames, 1)
	assert.Equal(t, []byte("everything until close"), frames[0].Body)
	assert.Equal(t, len(input), res.EndPosition)
}

func TestFindFrameBoundary_Request(t *testing.T) {
	buf := []byte("garbage garbage GET / HTTP/1.1\r\n\r\n")

	pos := Codec{}.FindFrameBoundary(streamparse.MessageTypeRequest, buf, 1)
	assert.Equal(t, 16, pos)
}

func TestFindFrameBoundary_PicksEarliestMarker(t *testing.T) {
	buf := []byte("xxPOST /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n")

	pos := Codec{}.FindFrameBoundary(streamparse.MessageTypeRequest, buf, 1)
	assert.Equal(t, 2, pos)
}

func TestFindFrameBoundary_Response(t *testing.T) {
	buf := []byte("junkHTTP/1.1 404 Not Found\r\n\r\n")

	pos := Codec{}.FindFrameBoundary(streamparse.MessageTypeResponse, buf, 1)
	assert.Equal(t, 4, pos)
}

func TestFindFrameBoundary_NotFound(t *testing.T) {
	pos := Codec{}.FindFrameBoundary(streamparse.MessageTypeRequest, []byte("no markers here"), 1)
	assert.Equal(t, streamparse.BoundaryNotFound, pos)

	pos = Codec{}.FindFrameBoundary(streamparse.MessageTypeRequest, nil, 1)
	assert.Equal(t, streamparse.BoundaryNotFound, pos)
}

func TestFindFrameBoundary_RespectsStartPos(t *testing.T) {
	// A marker before startPos must not be returned.
	buf := []byte("GET /a HTTP/1.1\r\n\r\nGET /b HTTP/1.1\r\n\r\n")

	pos := Codec{}.FindFrameBoundary(streamparse.MessageTypeRequest, buf, 1)
	assert.Equal(t, 19, pos)
}

// End-to-end through the stream parser: a request split across capture chunks
// is reassembled and stamped with the timestamp of the chunk holding its
// first byte.
func TestCodec_WithEventParser(t *testing.T) {
	p := streamparse.NewEventParser[*Message](Codec{})
	p.Append([]byte("GET /split HTT"), 1000)
	p.Append([]byte("P/1.1\r\nHost: exam"), 2000)
	p.Append([]byte("ple.com\r\n\r\n"), 3000)

	var frames []*Message
	res := p.ParseFrames(streamparse.MessageTypeRequest, &frames, false)

	require.Len(t, frames, 1)
	assert.Equal(t, "/split", frames[0].Path)
	assert.Equal(t, uint64(1000), frames[0].TimestampNS())
	assert.Equal(t, []streamparse.BufferPosition{{SeqNum: 0, Offset: 0}}, res.StartPositions)
	assert.Equal(t, streamparse.BufferPosition{SeqNum: 3, Offset: 0}, res.EndPosition)
	assert.Equal(t, streamparse.StateSuccess, res.State)
}

func TestCodec_WithEventParserResync(t *testing.T) {
	p := streamparse.NewEventParser[*Message](Codec{})
	p.Append([]byte("corrupt-tail-of-old-frame "), 1000)
	p.Append([]byte("GET /next HTTP/1.1\r\nHost: a\r\n\r\n"), 2000)

	var frames []*Message
	res := p.ParseFrames(streamparse.MessageTypeRequest, &frames, true)

	require.Len(t, frames, 1)
	assert.Equal(t, "/next", frames[0].Path)
	assert.Equal(t, uint64(2000), frames[0].TimestampNS())
	assert.Equal(t, []streamparse.BufferPosition{{SeqNum: 1, Offset: 0}}, res.StartPositions)
	assert.Equal(t, streamparse.StateSuccess, res.State)
}
