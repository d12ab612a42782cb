// Package bpfloader manages the lifecycle of eBPF programs and their kernel attachments.
package bpfloader

import (
	"errors"
	"fmt"

	"socktrace/internal/bpf"

	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
)

// Loader manages the lifecycle of BPF programs and their attachments.
type Loader struct {
	objs bpf.SocketTracerObjects

	sendmsgEntry link.Link
	sendmsgExit  link.Link
	recvmsgEntry link.Link
	recvmsgExit  link.Link
	tcpConnect   link.Link
	inetAccept   link.Link
	tcpClose     link.Link
}

// New creates a new Loader and loads the BPF objects at objPath into the
// kernel.
func New(objPath string) (*Loader, error) {
	l := &Loader{}

	if err := bpf.LoadSocketTracerObjects(objPath, &l.objs); err != nil {
		return nil, err
	}

	return l, nil
}

// closeErrorf closes all attached links and returns a formatted error.
// Cleanup errors are intentionally ignored since we are already in an error
// path.
func (l *Loader) closeErrorf(errstr string, e error) error {
	links := []link.Link{
		l.tcpClose,
		l.inetAccept,
		l.tcpConnect,
		l.recvmsgExit,
		l.recvmsgEntry,
		l.sendmsgExit,
		l.sendmsgEntry,
	}
	for _, lk := range links {
		if lk != nil {
			_ = lk.Close() //nolint:errcheck // Best-effort cleanup in error path
		}
	}
	return fmt.Errorf("%s: %w", errstr, e)
}

// Attach attaches the BPF programs to their kernel probes.
func (l *Loader) Attach() error {
	var err error

	// Payload capture: enter probes stash the user buffer pointer, exit
	// probes read the actual byte count and submit the data.
	l.sendmsgEntry, err = link.Kprobe("tcp_sendmsg", l.objs.TraceSendmsgEnter, nil)
	if err != nil {
		return l.closeErrorf("attaching tcp_sendmsg kprobe", err)
	}

	l.sendmsgExit, err = link.Kretprobe("tcp_sendmsg", l.objs.TraceSendmsgExit, nil)
	if err != nil {
		return l.closeErrorf("attaching tcp_sendmsg kretprobe", err)
	}

	l.recvmsgEntry, err = link.Kprobe("tcp_recvmsg", l.objs.TraceRecvmsgEnter, nil)
	if err != nil {
		return l.closeErrorf("attaching tcp_recvmsg kprobe", err)
	}

	l.recvmsgExit, err = link.Kretprobe("tcp_recvmsg", l.objs.TraceRecvmsgExit, nil)
	if err != nil {
		return l.closeErrorf("attaching tcp_recvmsg kretprobe", err)
	}

	// Connection lifecycle probes.
	l.tcpConnect, err = link.Kprobe("tcp_connect", l.objs.TraceTCPConnect, nil)
	if err != nil {
		return l.closeErrorf("attaching tcp_connect kprobe", err)
	}

	l.inetAccept, err = link.Kretprobe("inet_csk_accept", l.objs.TraceInetCskAccept, nil)
	if err != nil {
		return l.closeErrorf("attaching inet_csk_accept kretprobe", err)
	}

	l.tcpClose, err = link.Kprobe("tcp_close", l.objs.TraceTCPClose, nil)
	if err != nil {
		return l.closeErrorf("attaching tcp_close kprobe", err)
	}

	return nil
}

// OpenRingBuffer opens and returns a ring buffer reader for receiving events.
func (l *Loader) OpenRingBuffer() (*ringbuf.Reader, error) {
	rd, err := ringbuf.NewReader(l.objs.Events)
	if err != nil {
		return nil, fmt.Errorf("opening ring buffer: %w", err)
	}
	return rd, nil
}

// TrackPID adds a PID to the tracked_pids map in the BPF program.
func (l *Loader) TrackPID(pid int) error {
	//nolint:gosec // int to uint32 conversion required for BPF map key type
	pidKey := uint32(pid)
	val := uint8(1)
	if err := l.objs.TrackedPids.Put(&pidKey, &val); err != nil {
		return fmt.Errorf("adding PID %d to tracked map: %w", pid, err)
	}
	return nil
}

// Close releases all BPF resources including links and loaded objects.
func (l *Loader) Close() error {
	var errs []error

	links := map[string]link.Link{
		"tcp_close":       l.tcpClose,
		"inet_csk_accept": l.inetAccept,
		"tcp_connect":     l.tcpConnect,
		"recvmsg exit":    l.recvmsgExit,
		"recvmsg entry":   l.recvmsgEntry,
		"sendmsg exit":    l.sendmsgExit,
		"sendmsg entry":   l.sendmsgEntry,
	}
	for name, lk := range links {
		if lk == nil {
			continue
		}
		if err := lk.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s link: %w", name, err))
		}
	}

	if err := l.objs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing BPF objects: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %w", errors.Join(errs...))
	}

	return nil
}
