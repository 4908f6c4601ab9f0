package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/lnsd/internal/lnserr"
)

func TestEncodeDecode_Name(t *testing.T) {
	hostname := "alpha"
	frame, err := Encode(Name{Hostname: &hostname})
	require.NoError(t, err)

	msg := decodeOne(t, frame)
	got, ok := msg.(Name)
	require.True(t, ok)
	require.NotNil(t, got.Hostname)
	assert.Equal(t, "alpha", *got.Hostname)
}

func TestEncodeDecode_NameNilHostname(t *testing.T) {
	frame, err := Encode(Name{Hostname: nil})
	require.NoError(t, err)

	msg := decodeOne(t, frame)
	got, ok := msg.(Name)
	require.True(t, ok)
	assert.Nil(t, got.Hostname)
}

func TestEncodeDecode_IP(t *testing.T) {
	frame, err := Encode(IP{Addrs: []string{"1.2.3.4", "5.6.7.8"}})
	require.NoError(t, err)

	msg := decodeOne(t, frame)
	got, ok := msg.(IP)
	require.True(t, ok)
	assert.Equal(t, []string{"1.2.3.4", "5.6.7.8"}, got.Addrs)
}

func TestEncodeDecode_GetAll(t *testing.T) {
	frame, err := Encode(GetAll{})
	require.NoError(t, err)

	msg := decodeOne(t, frame)
	_, ok := msg.(GetAll)
	assert.True(t, ok)
}

func TestEncodeDecode_NameIPMapping(t *testing.T) {
	frame, err := Encode(NameIPMapping{NameIPs: map[string][]string{
		"alpha": {"1.2.3.4"},
		"beta":  {"5.6.7.8", "9.10.11.12"},
	}})
	require.NoError(t, err)

	msg := decodeOne(t, frame)
	got, ok := msg.(NameIPMapping)
	require.True(t, ok)
	assert.Equal(t, []string{"1.2.3.4"}, got.NameIPs["alpha"])
	assert.ElementsMatch(t, []string{"5.6.7.8", "9.10.11.12"}, got.NameIPs["beta"])
}

func TestEncodeDecode_Quit(t *testing.T) {
	frame, err := Encode(Quit{})
	require.NoError(t, err)

	msg := decodeOne(t, frame)
	_, ok := msg.(Quit)
	assert.True(t, ok)
}

func TestEncode_RejectsInvalidHostname(t *testing.T) {
	bad := "bad name"
	_, err := Encode(Name{Hostname: &bad})
	var valErr *lnserr.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestEncode_RejectsInvalidIPv4(t *testing.T) {
	_, err := Encode(IP{Addrs: []string{"10.1"}})
	var valErr *lnserr.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestVerifyIPv4_RejectsOutOfRangeOctet(t *testing.T) {
	err := verifyIPv4("1.2.3.999")
	var valErr *lnserr.ValidationError
	require.ErrorAs(t, err, &valErr)
}

func TestVerifyIPv4_RejectsNonNumeric(t *testing.T) {
	err := verifyIPv4("a.b.c.d")
	require.Error(t, err)
}

func TestVerifyIPv4_AcceptsValid(t *testing.T) {
	require.NoError(t, verifyIPv4("192.168.1.1"))
}

func TestDecodeBody_RejectsUnknownType(t *testing.T) {
	_, err := DecodeBody([]byte(`{"type":"nonsense"}`))
	var protoErr *lnserr.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestDecodeBody_RejectsMalformedJSON(t *testing.T) {
	_, err := DecodeBody([]byte(`{not json`))
	var protoErr *lnserr.ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestFrameLen_IsLittleEndian(t *testing.T) {
	header := []byte{0x34, 0x12}
	assert.Equal(t, 0x1234, FrameLen(header))
}

// decodeOne strips the length prefix Encode produced and decodes the body,
// the same two-step split the control engine's drainFrames performs.
func decodeOne(t *testing.T, frame []byte) Message {
	t.Helper()
	require.GreaterOrEqual(t, len(frame), HeaderLen)
	n := FrameLen(frame[:HeaderLen])
	body := frame[HeaderLen:]
	require.Len(t, body, n)
	msg, err := DecodeBody(body)
	require.NoError(t, err)
	return msg
}
