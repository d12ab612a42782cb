// Package output provides frame sinks: formatters turning extracted protocol
// frames into terminal lines or OpenTelemetry spans.
//
// Formatters are pure presentation layers. They:
//   - Receive fully reassembled, timestamped frames from conntrack
//   - Apply the user's frame filter
//   - Render text lines or emit spans
//
// They do NOT:
//   - Handle raw eBPF events
//   - Reassemble byte streams
//   - Manage connection lifecycle
//
// All of that is delegated to conntrack and streamparse; timestamp conversion
// comes from timesync.
package output
