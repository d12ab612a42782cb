package httpcodec

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"

	"socktrace/internal/streamparse"
)

// requestMarkers are the byte sequences an HTTP/1.x request can start with.
// The trailing space keeps a path segment like "GETTYSBURG" from matching.
var requestMarkers = [][]byte{
	[]byte("GET "),
	[]byte("HEAD "),
	[]byte("POST "),
	[]byte("PUT "),
	[]byte("DELETE "),
	[]byte("CONNECT "),
	[]byte("OPTIONS "),
	[]byte("TRACE "),
	[]byte("PATCH "),
}

var responseMarker = []byte("HTTP/1.")

// Codec implements the stream parser's framing contract for HTTP/1.x.
type Codec struct{}

// FindFrameBoundary returns the first position at or after startPos that
// looks like the start of a message in the given direction, or
// BoundaryNotFound. Purely a heuristic: a request body may contain bytes that
// look like a status line; resolving that is the parse step's job.
func (Codec) FindFrameBoundary(t streamparse.MessageType, buf []byte, startPos int) int {
	if startPos >= len(buf) {
		return streamparse.BoundaryNotFound
	}

	var markers [][]byte
	switch t {
	case streamparse.MessageTypeRequest:
		markers = requestMarkers
	case streamparse.MessageTypeResponse:
		markers = [][]byte{responseMarker}
	default:
		return streamparse.BoundaryNotFound
	}

	best := streamparse.BoundaryNotFound
	for _, marker := range markers {
		idx := bytes.Index(buf[startPos:], marker)
		if idx < 0 {
			continue
		}
		pos := startPos + idx
		if best == streamparse.BoundaryNotFound || pos < best {
			best = pos
		}
	}
	return best
}

// ParseFrames parses buf as a sequence of pipelined HTTP/1.x messages,
// appending each complete one to frames.
func (Codec) ParseFrames(t streamparse.MessageType, buf []byte, frames *[]*Message) streamparse.ParseResult[int] {
	result := streamparse.ParseResult[int]{State: streamparse.StateNeedsMoreData}

	pos := 0
	for pos < len(buf) {
		msg, consumed, state := parseOne(t, buf[pos:])
		if state != streamparse.StateSuccess {
			result.State = state
			break
		}
		result.StartPositions = append(result.StartPositions, pos)
		*frames = append(*frames, msg)
		pos += consumed
		result.State = streamparse.StateSuccess
	}
	result.EndPosition = pos
	return result
}

func parseOne(t streamparse.MessageType, data []byte) (*Message, int, streamparse.ParseState) {
	switch t {
	case streamparse.MessageTypeRequest:
		return parseRequest(data)
	case streamparse.MessageTypeResponse:
		return parseResponse(data)
	default:
		return nil, 0, streamparse.StateInvalid
	}
}

func parseRequest(data []byte) (*Message, int, streamparse.ParseState) {
	src := bytes.NewReader(data)
	br := bufio.NewReader(src)

	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, 0, classifyError(err)
	}

	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close() //nolint:errcheck // Body is backed by the in-memory buffer
	if err != nil {
		return nil, 0, classifyError(err)
	}

	consumed := len(data) - src.Len() - br.Buffered()

	return &Message{
		Type:         streamparse.MessageTypeRequest,
		MinorVersion: req.ProtoMinor,
		Method:       req.Method,
		Path:         req.URL.RequestURI(),
		Host:         req.Host,
		Headers:      req.Header,
		Body:         body,
	}, consumed, streamparse.StateSuccess
}

func parseResponse(data []byte) (*Message, int, streamparse.ParseState) {
	src := bytes.NewReader(data)
	br := bufio.NewReader(src)

	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return nil, 0, classifyError(err)
	}

	// Note: a close-delimited body (no Content-Length, not chunked) consumes
	// the rest of the buffer; there is no in-band way to know its true end.
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close() //nolint:errcheck // Body is backed by the in-memory buffer
	if err != nil {
		return nil, 0, classifyError(err)
	}

	consumed := len(data) - src.Len() - br.Buffered()

	return &Message{
		Type:         streamparse.MessageTypeResponse,
		MinorVersion: resp.ProtoMinor,
		StatusCode:   resp.StatusCode,
		Headers:      resp.Header,
		Body:         body,
	}, consumed, streamparse.StateSuccess
}

// classifyError maps a net/http read error to a parse state. EOF-family
// errors mean the message could still complete with more bytes; anything
// else means the bytes at the current position are not a message start.
func classifyError(err error) streamparse.ParseState {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return streamparse.StateNeedsMoreData
	}
	return streamparse.StateInvalid
}
