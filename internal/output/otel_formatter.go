package output

import (
	"context"
	"fmt"
	"sort"

	"socktrace/internal/bpf"
	"socktrace/internal/conntrack"
	"socktrace/internal/filter"
	"socktrace/internal/streamparse"
	"socktrace/internal/timesync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OTELFormatter exports extracted frames as OpenTelemetry spans, one span
// per frame. It implements conntrack.Sink.
type OTELFormatter[F Frame] struct {
	tracer trace.Tracer
	conv   *timesync.Converter
	filter *filter.Filter[F]
}

// NewOTELFormatter creates a span-emitting frame sink.
func NewOTELFormatter[F Frame](tracer trace.Tracer, conv *timesync.Converter, f *filter.Filter[F]) *OTELFormatter[F] {
	return &OTELFormatter[F]{tracer: tracer, conv: conv, filter: f}
}

// HandleFrames emits one span per frame passing the filter. Frame capture is
// a point event, so spans are zero-duration with the capture wall-clock time.
func (o *OTELFormatter[F]) HandleFrames(meta *conntrack.Meta, msgType streamparse.MessageType, frames []F) {
	kind := spanKind(meta.Role, msgType)

	for _, frame := range frames {
		if !o.filter.Match(frame) {
			continue
		}

		when := o.conv.MonotonicToWallClock(frame.TimestampNS())

		_, span := o.tracer.Start(context.Background(),
			"socket."+msgType.String(),
			trace.WithTimestamp(when),
			trace.WithSpanKind(kind),
		)

		attrs := []attribute.KeyValue{
			attribute.Int("process.pid", int(meta.Pid)),
			attribute.String("process.command", meta.Comm),
			attribute.String("net.host.addr", meta.Local.String()),
			attribute.String("net.peer.addr", meta.Remote.String()),
			attribute.String("net.transport", "tcp"),
		}
		attrs = append(attrs, frameAttributes(frame)...)
		span.SetAttributes(attrs...)

		span.End(trace.WithTimestamp(when))
	}
}

// spanKind maps connection role and message direction to a span kind: the
// request side of a client connection acts as a client, and so on.
func spanKind(role uint8, msgType streamparse.MessageType) trace.SpanKind {
	isRequest := msgType == streamparse.MessageTypeRequest
	if role == bpf.ROLE_SERVER {
		isRequest = !isRequest
	}
	if isRequest {
		return trace.SpanKindClient
	}
	return trace.SpanKindServer
}

// frameAttributes flattens the frame's expression environment into span
// attributes under the "frame." prefix. Map values expand with dot notation;
// everything else is stringified.
func frameAttributes[F Frame](frame F) []attribute.KeyValue {
	env := frame.ExprEnv()

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var attrs []attribute.KeyValue
	for _, k := range keys {
		switch v := env[k].(type) {
		case map[string]string:
			subKeys := make([]string, 0, len(v))
			for sk := range v {
				subKeys = append(subKeys, sk)
			}
			sort.Strings(subKeys)
			for _, sk := range subKeys {
				attrs = append(attrs, attribute.String("frame."+k+"."+sk, v[sk]))
			}
		case int:
			attrs = append(attrs, attribute.Int("frame."+k, v))
		case string:
			if v != "" {
				attrs = append(attrs, attribute.String("frame."+k, v))
			}
		default:
			attrs = append(attrs, attribute.String("frame."+k, fmt.Sprint(v)))
		}
	}
	return attrs
}
