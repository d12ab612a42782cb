// Package httpcodec frames HTTP/1.x messages for the stream parser.
package httpcodec

import (
	"fmt"
	"net/http"

	"socktrace/internal/streamparse"
)

// Message is one parsed HTTP/1.x request or response.
type Message struct {
	tsNS uint64

	Type         streamparse.MessageType
	MinorVersion int

	// Request fields.
	Method string
	Path   string
	Host   string

	// Response fields.
	StatusCode int

	Headers http.Header
	Body    []byte
}

// SetTimestampNS records the capture timestamp of the chunk that contributed
// the message's first byte. Called by the stream parser.
func (m *Message) SetTimestampNS(ts uint64) { m.tsNS = ts }

// TimestampNS returns the capture timestamp in CLOCK_MONOTONIC nanoseconds.
func (m *Message) TimestampNS() uint64 { return m.tsNS }

// Describe returns a one-line human-readable summary.
func (m *Message) Describe() string {
	switch m.Type {
	case streamparse.MessageTypeRequest:
		return fmt.Sprintf("%s %s HTTP/1.%d (%d body bytes)", m.Method, m.Path, m.MinorVersion, len(m.Body))
	case streamparse.MessageTypeResponse:
		return fmt.Sprintf("HTTP/1.%d %d (%d body bytes)", m.MinorVersion, m.StatusCode, len(m.Body))
	default:
		return "unknown HTTP message"
	}
}

// ExprEnv exposes the message to filter expressions.
func (m *Message) ExprEnv() map[string]any {
	headers := make(map[string]string, len(m.Headers))
	for k := range m.Headers {
		headers[k] = m.Headers.Get(k)
	}
	return map[string]any{
		"type":      m.Type.String(),
		"method":    m.Method,
		"path":      m.Path,
		"host":      m.Host,
		"status":    m.StatusCode,
		"body_size": len(m.Body),
		"header":    headers,
	}
}
