// Package eventprocessor routes decoded ring buffer events to the connection
// tracker and keeps processing counters.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│      eBPF Ring Buffer Events            │
//	└─────────────────┬───────────────────────┘
//	                  │
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   eventprocessor                        │  ← Event routing
//	│   - Routes by event type                │
//	│   - Counts events and payload bytes     │
//	└─────────┬───────────────────────────────┘
//	          │
//	          ├──→ SOCK_OPEN  ────→ conntrack.Tracker
//	          │                     - Registers connection + role
//	          │
//	          ├──→ SOCK_CLOSE ────→ conntrack.Tracker
//	          │                     - Final parse pass, forget state
//	          │
//	          └──→ SOCK_DATA  ────→ conntrack.Tracker
//	                                - Buffers payload per direction
//	                                - Parse pass over threshold
//	                                - Frames out to the sink
package eventprocessor
