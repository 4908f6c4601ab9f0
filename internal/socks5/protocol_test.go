package socks5

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadGreeting_AcceptsNoAuth(t *testing.T) {
	r := bytes.NewReader([]byte{Version5, 1, authNoneRequired})
	ok, err := readGreeting(r)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReadGreeting_RejectsWhenNoAuthNotOffered(t *testing.T) {
	r := bytes.NewReader([]byte{Version5, 1, 0x02}) // only username/password offered
	ok, err := readGreeting(r)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadGreeting_RejectsWrongVersion(t *testing.T) {
	r := bytes.NewReader([]byte{0x04, 1, authNoneRequired})
	_, err := readGreeting(r)
	require.Error(t, err)
}

func TestWriteMethodSelection(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMethodSelection(&buf, true))
	assert.Equal(t, []byte{Version5, authNoneRequired}, buf.Bytes())

	buf.Reset()
	require.NoError(t, writeMethodSelection(&buf, false))
	assert.Equal(t, []byte{Version5, authNoAcceptable}, buf.Bytes())
}

func TestReadRequest_IPv4(t *testing.T) {
	frame := []byte{Version5, CmdConnect, 0x00, AddrIPv4, 10, 0, 0, 1, 0x1F, 0x90} // port 8080
	req, err := readRequest(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, byte(CmdConnect), req.Command)
	assert.Equal(t, "10.0.0.1", req.Addr)
	assert.Equal(t, uint16(8080), req.Port)
}

func TestReadRequest_IPv6Reads16Bytes(t *testing.T) {
	addr := make([]byte, 16)
	addr[15] = 1 // ::1
	frame := append([]byte{Version5, CmdConnect, 0x00, AddrIPv6}, addr...)
	frame = append(frame, 0x00, 0x50) // port 80
	req, err := readRequest(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, "::1", req.Addr)
	assert.Equal(t, uint16(80), req.Port)
}

func TestReadRequest_Domain(t *testing.T) {
	host := "box.lan"
	frame := append([]byte{Version5, CmdConnect, 0x00, AddrDomain, byte(len(host))}, []byte(host)...)
	frame = append(frame, 0x00, 0x50)
	req, err := readRequest(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, "box.lan", req.Addr)
}

func TestReadRequest_RejectsUnknownAddrType(t *testing.T) {
	frame := []byte{Version5, CmdConnect, 0x00, 0x7F}
	_, err := readRequest(bytes.NewReader(frame))
	require.Error(t, err)
}

func TestParseUDPRelayHeader_IPv4(t *testing.T) {
	payload := []byte("hello")
	datagram := append([]byte{0x00, 0x00, 0x00, AddrIPv4, 1, 2, 3, 4, 0x00, 0x50}, payload...)
	gotPayload, addr, port, err := parseUDPRelayHeader(datagram)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", addr)
	assert.Equal(t, uint16(80), port)
	assert.Equal(t, payload, gotPayload)
}

func TestParseUDPRelayHeader_RejectsFragmented(t *testing.T) {
	datagram := []byte{0x00, 0x00, 0x01, AddrIPv4, 1, 2, 3, 4, 0x00, 0x50}
	_, _, _, err := parseUDPRelayHeader(datagram)
	require.Error(t, err)
}

func TestParseUDPRelayHeader_RejectsShortDatagram(t *testing.T) {
	_, _, _, err := parseUDPRelayHeader([]byte{0x00, 0x00})
	require.Error(t, err)
}
