package bpf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeControlEvent(t *testing.T, ev *SocketControlEvent) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, ev))
	require.Equal(t, controlEventSize, buf.Len())
	return buf.Bytes()
}

func encodeDataEvent(hdr EventHeader, payload []byte) []byte {
	raw := make([]byte, dataEventPrefix+len(payload))
	raw[0] = hdr.Type
	raw[1] = hdr.Direction
	raw[2] = hdr.Role
	binary.LittleEndian.PutUint32(raw[4:8], hdr.Pid)
	binary.LittleEndian.PutUint64(raw[8:16], hdr.ConnID)
	binary.LittleEndian.PutUint64(raw[16:24], hdr.Timestamp)
	binary.LittleEndian.PutUint32(raw[24:28], uint32(len(payload)))
	copy(raw[dataEventPrefix:], payload)
	return raw
}

func TestPeekType(t *testing.T) {
	raw := encodeDataEvent(EventHeader{Type: EVENT_SOCK_DATA}, nil)

	typ, err := PeekType(raw)
	require.NoError(t, err)
	assert.Equal(t, uint8(EVENT_SOCK_DATA), typ)

	_, err = PeekType([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodeControlEvent(t *testing.T) {
	ev := &SocketControlEvent{
		EventHeader: EventHeader{
			Type:      EVENT_SOCK_OPEN,
			Role:      ROLE_CLIENT,
			Pid:       1234,
			ConnID:    99,
			Timestamp: 5_000_000,
		},
		Family: AF_INET,
		Sport:  43210,
		Dport:  80,
	}
	copy(ev.Saddr[:4], []byte{10, 0, 0, 1})
	copy(ev.Daddr[:4], []byte{93, 184, 216, 34})
	copy(ev.Comm[:], "curl\x00")

	got, err := DecodeControlEvent(encodeControlEvent(t, ev))
	require.NoError(t, err)

	assert.Equal(t, uint32(1234), got.Pid)
	assert.Equal(t, uint64(99), got.ConnID)
	assert.Equal(t, "curl", got.CommString())
	assert.Equal(t, "10.0.0.1:43210", got.LocalAddr().String())
	assert.Equal(t, "93.184.216.34:80", got.RemoteAddr().String())
}

func TestDecodeControlEvent_ShortRecord(t *testing.T) {
	_, err := DecodeControlEvent(make([]byte, controlEventSize-1))
	assert.Error(t, err)
}

func TestDecodeDataEvent(t *testing.T) {
	payload := []byte("GET / HTTP/1.1\r\n")
	hdr := EventHeader{
		Type:      EVENT_SOCK_DATA,
		Direction: DIRECTION_EGRESS,
		Pid:       42,
		ConnID:    7,
		Timestamp: 123456789,
	}

	got, err := DecodeDataEvent(encodeDataEvent(hdr, payload))
	require.NoError(t, err)

	assert.Equal(t, uint8(DIRECTION_EGRESS), got.Direction)
	assert.Equal(t, uint64(7), got.ConnID)
	assert.Equal(t, uint32(len(payload)), got.DataSize)
	assert.Equal(t, payload, got.Data)
}

func TestDecodeDataEvent_TruncatedPayload(t *testing.T) {
	raw := encodeDataEvent(EventHeader{Type: EVENT_SOCK_DATA}, []byte("abcdef"))
	// Claim more bytes than the record carries.
	binary.LittleEndian.PutUint32(raw[24:28], 100)

	_, err := DecodeDataEvent(raw)
	assert.Error(t, err)
}
