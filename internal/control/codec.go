// Package control implements the loopback-only control protocol: a
// length-prefixed JSON request/reply channel local tools use to query the
// peer map the announce engine maintains, and to ask the daemon to quit.
package control

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/joshuafuller/lnsd/internal/announce"
	"github.com/joshuafuller/lnsd/internal/lnserr"
)

// DefaultPort is the loopback TCP port the control engine listens on.
const DefaultPort = 10771

// lengthHeaderSize is the width of the little-endian frame-length prefix.
const lengthHeaderSize = 2

// Message is the tagged union over the five control-protocol frame kinds.
type Message interface {
	msgType() string
}

// Name carries a hostname, either as a query ("look up this name's IPs",
// answered with an IP) or as the reply to an IP query ("here's the name",
// nil when there isn't one).
type Name struct {
	Hostname *string
}

// IP carries one or more dotted-decimal IPv4 addresses: a single-element
// query, or the (possibly empty) reply list for a hostname lookup.
type IP struct {
	Addrs []string
}

// GetAll requests the full hostname→IPs mapping.
type GetAll struct{}

// NameIPMapping is the reply to GetAll.
type NameIPMapping struct {
	NameIPs map[string][]string
}

// Quit asks the daemon to terminate. It carries no reply.
type Quit struct{}

func (Name) msgType() string          { return "name" }
func (IP) msgType() string            { return "ip" }
func (GetAll) msgType() string        { return "get-all" }
func (NameIPMapping) msgType() string { return "nameipmapping" }
func (Quit) msgType() string          { return "quit" }

// wire is the on-the-wire shape shared by every message type; only the
// fields relevant to msg.msgType() are populated on encode, and only those
// fields are consulted on decode.
type wire struct {
	Type    string              `json:"type"`
	Host    *string             `json:"hostname,omitempty"`
	IPAddrs []string            `json:"ip_addrs,omitempty"`
	NameIPs map[string][]string `json:"name_ips,omitempty"`
}

// Encode validates msg and produces its length-prefixed wire
// representation: a two-byte little-endian length followed by UTF-8 JSON.
func Encode(msg Message) ([]byte, error) {
	w := wire{Type: msg.msgType()}

	switch m := msg.(type) {
	case Name:
		if m.Hostname != nil {
			if err := announce.ValidateHostname(*m.Hostname); err != nil {
				return nil, err
			}
		}
		w.Host = m.Hostname
	case IP:
		for _, addr := range m.Addrs {
			if err := verifyIPv4(addr); err != nil {
				return nil, err
			}
		}
		w.IPAddrs = m.Addrs
	case GetAll:
		// no payload
	case NameIPMapping:
		for name, ips := range m.NameIPs {
			if err := announce.ValidateHostname(name); err != nil {
				return nil, err
			}
			for _, ip := range ips {
				if err := verifyIPv4(ip); err != nil {
					return nil, err
				}
			}
		}
		w.NameIPs = m.NameIPs
	case Quit:
		// no payload
	default:
		return nil, &lnserr.ProtocolError{Reason: fmt.Sprintf("unknown message type %T", msg)}
	}

	body, err := json.Marshal(w)
	if err != nil {
		return nil, &lnserr.ProtocolError{Reason: "marshal control frame: " + err.Error()}
	}
	if len(body) > 0xFFFF {
		return nil, &lnserr.ProtocolError{Reason: "control frame exceeds 65535 bytes"}
	}

	out := make([]byte, lengthHeaderSize+len(body))
	binary.LittleEndian.PutUint16(out, uint16(len(body)))
	copy(out[lengthHeaderSize:], body)
	return out, nil
}

// DecodeBody parses the JSON body of a single control frame (length prefix
// already stripped by the caller) into the concrete Message it describes.
func DecodeBody(body []byte) (Message, error) {
	var w wire
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, &lnserr.ProtocolError{Reason: "malformed control frame JSON: " + err.Error()}
	}

	switch w.Type {
	case "name":
		if w.Host != nil {
			if err := announce.ValidateHostname(*w.Host); err != nil {
				return nil, err
			}
		}
		return Name{Hostname: w.Host}, nil
	case "ip":
		for _, addr := range w.IPAddrs {
			if err := verifyIPv4(addr); err != nil {
				return nil, err
			}
		}
		return IP{Addrs: w.IPAddrs}, nil
	case "get-all":
		return GetAll{}, nil
	case "nameipmapping":
		for name, ips := range w.NameIPs {
			if err := announce.ValidateHostname(name); err != nil {
				return nil, err
			}
			for _, ip := range ips {
				if err := verifyIPv4(ip); err != nil {
					return nil, err
				}
			}
		}
		return NameIPMapping{NameIPs: w.NameIPs}, nil
	case "quit":
		return Quit{}, nil
	default:
		return nil, &lnserr.ProtocolError{Reason: fmt.Sprintf("unknown control message type %q", w.Type)}
	}
}

// HeaderLen is the exported form of lengthHeaderSize for callers (the
// control engine's frame reader) that need to know how many bytes to peek
// before they know the body length.
const HeaderLen = lengthHeaderSize

// FrameLen decodes the two-byte little-endian length prefix.
func FrameLen(header []byte) int {
	return int(binary.LittleEndian.Uint16(header))
}

// verifyIPv4 requires exactly four dot-separated decimal octets, each in
// [0, 255]. Unlike net.ParseIP this rejects the shorthand forms (e.g.
// "10.1") the protocol's reference implementation also rejected.
func verifyIPv4(text string) error {
	octets := strings.Split(text, ".")
	if len(octets) != 4 {
		return &lnserr.ValidationError{Field: "ip", Value: text, Reason: "expected 4 dotted segments"}
	}
	for _, octet := range octets {
		n, err := strconv.Atoi(octet)
		if err != nil {
			return &lnserr.ValidationError{Field: "ip", Value: text, Reason: "non-numeric octet"}
		}
		if n < 0 || n > 255 {
			return &lnserr.ValidationError{Field: "ip", Value: text, Reason: "octet out of range"}
		}
	}
	return nil
}
