// Package announce implements the UDP broadcast side of lnsd: the 512-byte
// Announce wire frame, the bidirectional ip↔hostname peer map, and the
// periodic heartbeat/TTL-eviction engine that maintains it.
package announce

import "github.com/joshuafuller/lnsd/internal/lnserr"

const (
	// DefaultPort is the UDP port Announce frames are broadcast on.
	DefaultPort = 15051

	// FrameSize is the fixed size, in bytes, of every Announce frame on
	// the wire.
	FrameSize = 512

	// header is the single byte that identifies an Announce frame. The
	// original protocol reserved the value for future message types that
	// were never added; it is kept here for wire compatibility.
	header = 0x01
)

// Announce is a single broadcast frame declaring the sender's hostname.
type Announce struct {
	Hostname string
}

// Encode serializes a into its fixed 512-byte wire form: a 0x01 header byte
// followed by the ASCII hostname, NUL-padded to fill the frame.
func Encode(a Announce) ([]byte, error) {
	if err := ValidateHostname(a.Hostname); err != nil {
		return nil, err
	}

	frame := make([]byte, FrameSize)
	frame[0] = header
	copy(frame[1:], a.Hostname)
	return frame, nil
}

// Decode parses a 512-byte wire frame into an Announce. It rejects frames
// that aren't exactly FrameSize bytes, whose header byte isn't 0x01, or
// whose hostname fails ValidateHostname.
func Decode(frame []byte) (Announce, error) {
	if len(frame) != FrameSize {
		return Announce{}, &lnserr.ProtocolError{
			Reason: "announce frame is not 512 bytes",
		}
	}
	if frame[0] != header {
		return Announce{}, &lnserr.ProtocolError{
			Reason: "announce frame has the wrong header byte",
		}
	}

	body := frame[1:]
	end := len(body)
	for i, b := range body {
		if b == 0 {
			end = i
			break
		}
	}

	hostname := string(body[:end])
	if err := ValidateHostname(hostname); err != nil {
		return Announce{}, err
	}
	return Announce{Hostname: hostname}, nil
}

// ValidateHostname enforces the hostname rules every Announce frame and
// every control-protocol message that carries a hostname must satisfy:
// non-empty, no longer than FrameSize-1 bytes, and composed entirely of
// printable ASCII in [33, 126] (space and DEL are excluded).
func ValidateHostname(hostname string) error {
	if len(hostname) == 0 {
		return &lnserr.ValidationError{
			Field: "hostname", Value: hostname, Reason: "must not be empty",
		}
	}
	if len(hostname) > FrameSize-1 {
		return &lnserr.ValidationError{
			Field: "hostname", Value: hostname, Reason: "exceeds 511 bytes",
		}
	}
	for i := 0; i < len(hostname); i++ {
		c := hostname[i]
		if c < 33 || c > 126 {
			return &lnserr.ValidationError{
				Field: "hostname", Value: hostname,
				Reason: "contains a non-printable or space/DEL byte",
			}
		}
	}
	return nil
}
