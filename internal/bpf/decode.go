package bpf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net/netip"
)

// Wire sizes of the ring buffer records. Kept as constants so decoding can
// validate record lengths before touching field offsets.
const (
	headerSize       = 24
	controlEventSize = 80
	dataEventPrefix  = 32 // header + DataSize + alignment padding
)

// Address family values from <sys/socket.h>.
//
//nolint:revive,staticcheck // ALL_CAPS naming matches C/kernel conventions
const (
	AF_INET  = 2
	AF_INET6 = 10
)

// PeekType returns the event type of a raw ring buffer record without
// decoding the full event.
func PeekType(raw []byte) (uint8, error) {
	if len(raw) < headerSize {
		return 0, fmt.Errorf("short record: %d bytes, need at least %d", len(raw), headerSize)
	}
	return raw[0], nil
}

// DecodeControlEvent decodes a raw ring buffer record into a
// SocketControlEvent.
func DecodeControlEvent(raw []byte) (*SocketControlEvent, error) {
	if len(raw) < controlEventSize {
		return nil, fmt.Errorf("short control event: %d bytes, need %d", len(raw), controlEventSize)
	}

	var ev SocketControlEvent
	if err := binary.Read(bytes.NewReader(raw[:controlEventSize]), binary.LittleEndian, &ev); err != nil {
		return nil, fmt.Errorf("decoding control event: %w", err)
	}
	return &ev, nil
}

// DecodeDataEvent decodes a raw ring buffer record into a SocketDataEvent.
// The payload is copied out of the record, so the event remains valid after
// the ring buffer reuses the record's storage.
func DecodeDataEvent(raw []byte) (*SocketDataEvent, error) {
	if len(raw) < dataEventPrefix {
		return nil, fmt.Errorf("short data event: %d bytes, need at least %d", len(raw), dataEventPrefix)
	}

	ev := &SocketDataEvent{
		EventHeader: EventHeader{
			Type:      raw[0],
			Direction: raw[1],
			Role:      raw[2],
			Pid:       binary.LittleEndian.Uint32(raw[4:8]),
			ConnID:    binary.LittleEndian.Uint64(raw[8:16]),
			Timestamp: binary.LittleEndian.Uint64(raw[16:24]),
		},
		DataSize: binary.LittleEndian.Uint32(raw[24:28]),
	}

	if ev.DataSize > MAX_DATA_SIZE {
		return nil, fmt.Errorf("data event claims %d payload bytes, max is %d", ev.DataSize, MAX_DATA_SIZE)
	}
	if int(ev.DataSize) > len(raw)-dataEventPrefix {
		return nil, fmt.Errorf("data event claims %d payload bytes, record holds %d", ev.DataSize, len(raw)-dataEventPrefix)
	}

	ev.Data = make([]byte, ev.DataSize)
	copy(ev.Data, raw[dataEventPrefix:dataEventPrefix+int(ev.DataSize)])
	return ev, nil
}

// CommString returns the process comm as a Go string, trimmed at the first
// NUL.
func (e *SocketControlEvent) CommString() string {
	if i := bytes.IndexByte(e.Comm[:], 0); i >= 0 {
		return string(e.Comm[:i])
	}
	return string(e.Comm[:])
}

// LocalAddr returns the connection's local address and port.
func (e *SocketControlEvent) LocalAddr() netip.AddrPort {
	return addrPort(e.Family, e.Saddr, e.Sport)
}

// RemoteAddr returns the connection's remote address and port.
func (e *SocketControlEvent) RemoteAddr() netip.AddrPort {
	return addrPort(e.Family, e.Daddr, e.Dport)
}

func addrPort(family uint16, raw [16]byte, port uint16) netip.AddrPort {
	var addr netip.Addr
	switch family {
	case AF_INET:
		addr = netip.AddrFrom4([4]byte(raw[:4]))
	case AF_INET6:
		addr = netip.AddrFrom16(raw)
	default:
		return netip.AddrPort{}
	}
	return netip.AddrPortFrom(addr, port)
}
