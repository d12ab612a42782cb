// Package bpf provides Go bindings for the eBPF socket data tracer.
package bpf

import (
	"fmt"

	"github.com/cilium/ebpf"
)

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -target amd64 socketTracer ./socket_tracer.bpf.c -- -I. -I/usr/include

// Event type constants matching kernel/C conventions.
//
//nolint:revive,staticcheck // ALL_CAPS naming matches C/kernel conventions
const (
	EVENT_SOCK_OPEN  = 1
	EVENT_SOCK_CLOSE = 2
	EVENT_SOCK_DATA  = 3
)

// Traffic direction of a captured payload, relative to the traced process.
//
//nolint:revive,staticcheck // ALL_CAPS naming matches C/kernel conventions
const (
	DIRECTION_EGRESS  = 1 // write/send/sendmsg family
	DIRECTION_INGRESS = 2 // read/recv/recvmsg family
)

// How the traced process obtained the connection.
//
//nolint:revive,staticcheck // ALL_CAPS naming matches C/kernel conventions
const (
	ROLE_CLIENT = 1 // connect()
	ROLE_SERVER = 2 // accept()
)

// MAX_DATA_SIZE is the largest payload the kernel side submits per data
// event; longer syscalls are split into multiple events.
//
//nolint:revive,staticcheck // ALL_CAPS naming matches C/kernel conventions
const MAX_DATA_SIZE = 16384

// EventHeader matches the leading fields of every record on the ring buffer.
// Layout must stay in sync with the C struct in socket_tracer.bpf.c.
type EventHeader struct {
	Type      uint8
	Direction uint8 // meaningful for data events only
	Role      uint8 // meaningful for open events only
	Pad1      uint8
	Pid       uint32
	ConnID    uint64 // kernel-assigned, unique per socket lifetime
	Timestamp uint64 // CLOCK_MONOTONIC nanoseconds at syscall return
}

// SocketControlEvent reports a connection opening or closing.
type SocketControlEvent struct {
	EventHeader
	Family uint16 // AF_INET or AF_INET6
	Sport  uint16
	Dport  uint16
	Pad2   uint16
	Saddr  [16]byte // IPv4 addresses occupy the first 4 bytes
	Daddr  [16]byte
	Comm   [16]byte
}

// SocketDataEvent carries one captured payload from a write/send/read/recv
// syscall. Unlike control events its wire form is variable-length: the kernel
// submits only DataSize payload bytes after the fixed prefix.
type SocketDataEvent struct {
	EventHeader
	DataSize uint32
	Data     []byte // payload copy, len == DataSize
}

// SocketTracerObjects holds the programs and maps loaded from the compiled
// BPF object. Field tags name the ELF sections produced by socket_tracer.bpf.c.
type SocketTracerObjects struct {
	TraceSendmsgEnter  *ebpf.Program `ebpf:"trace_sendmsg_enter"`
	TraceSendmsgExit   *ebpf.Program `ebpf:"trace_sendmsg_exit"`
	TraceRecvmsgEnter  *ebpf.Program `ebpf:"trace_recvmsg_enter"`
	TraceRecvmsgExit   *ebpf.Program `ebpf:"trace_recvmsg_exit"`
	TraceTCPConnect    *ebpf.Program `ebpf:"trace_tcp_connect"`
	TraceInetCskAccept *ebpf.Program `ebpf:"trace_inet_csk_accept"`
	TraceTCPClose      *ebpf.Program `ebpf:"trace_tcp_close"`

	Events      *ebpf.Map `ebpf:"events"`
	TrackedPids *ebpf.Map `ebpf:"tracked_pids"`
}

// Close releases all loaded programs and maps. Safe on partially loaded
// objects.
func (o *SocketTracerObjects) Close() error {
	progs := []*ebpf.Program{
		o.TraceSendmsgEnter,
		o.TraceSendmsgExit,
		o.TraceRecvmsgEnter,
		o.TraceRecvmsgExit,
		o.TraceTCPConnect,
		o.TraceInetCskAccept,
		o.TraceTCPClose,
	}
	maps := []*ebpf.Map{o.Events, o.TrackedPids}

	var firstErr error
	for _, p := range progs {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, m := range maps {
		if m == nil {
			continue
		}
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LoadSocketTracerObjects loads the compiled BPF object at path into the
// kernel and assigns its programs and maps to objs.
func LoadSocketTracerObjects(path string, objs *SocketTracerObjects) error {
	spec, err := ebpf.LoadCollectionSpec(path)
	if err != nil {
		return fmt.Errorf("loading collection spec from %s: %w", path, err)
	}

	if err := spec.LoadAndAssign(objs, nil); err != nil {
		return fmt.Errorf("loading BPF objects: %w", err)
	}
	return nil
}
