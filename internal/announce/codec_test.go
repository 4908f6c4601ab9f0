package announce

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/lnsd/internal/lnserr"
)

func TestEncodeDecode_Roundtrip(t *testing.T) {
	frame, err := Encode(Announce{Hostname: "workbench"})
	require.NoError(t, err)
	require.Len(t, frame, FrameSize)
	assert.Equal(t, byte(0x01), frame[0])

	got, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "workbench", got.Hostname)
}

func TestEncode_RejectsInvalidHostname(t *testing.T) {
	_, err := Encode(Announce{Hostname: ""})
	var valErr *lnserr.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "hostname", valErr.Field)
}

func TestEncode_RejectsOverlongHostname(t *testing.T) {
	_, err := Encode(Announce{Hostname: strings.Repeat("a", FrameSize)})
	var valErr *lnserr.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestDecode_RejectsWrongFrameSize(t *testing.T) {
	_, err := Decode(make([]byte, FrameSize-1))
	var protoErr *lnserr.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestDecode_RejectsWrongHeaderByte(t *testing.T) {
	frame := make([]byte, FrameSize)
	frame[0] = 0x02
	_, err := Decode(frame)
	var protoErr *lnserr.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestDecode_StopsAtFirstNULPad(t *testing.T) {
	frame := make([]byte, FrameSize)
	frame[0] = header
	copy(frame[1:], "host")
	// Everything after the hostname is left zeroed by make(); Decode must
	// not treat trailing NULs as part of the name.
	got, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, "host", got.Hostname)
}

func TestValidateHostname_RejectsNonPrintable(t *testing.T) {
	err := ValidateHostname("bad\x01name")
	var valErr *lnserr.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestValidateHostname_RejectsSpace(t *testing.T) {
	err := ValidateHostname("bad name")
	require.Error(t, err)
}

func TestValidateHostname_AcceptsPrintableASCII(t *testing.T) {
	require.NoError(t, ValidateHostname("my-host.local"))
}
