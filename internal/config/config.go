// Package config resolves the daemon's settings from three sources —
// built-in defaults, an INI config file, and command-line flags — with the
// command line taking precedence over the file, and the file over the
// defaults.
package config

import (
	"os"

	"github.com/go-ini/ini"

	"github.com/joshuafuller/lnsd/internal/announce"
	"github.com/joshuafuller/lnsd/internal/control"
	"github.com/joshuafuller/lnsd/internal/lnserr"
	"github.com/joshuafuller/lnsd/internal/socks5"
)

// DefaultConfigPath matches the reference implementation's default location.
const DefaultConfigPath = "/etc/lnsd.conf"

// Config holds the fully resolved daemon configuration.
type Config struct {
	NetPort     int
	ControlPort int
	SocksPort   int
	Hostname    string
	Daemonize   bool
	Verbose     bool
}

// Layer holds one source's view of each setting; a nil field means that
// source didn't specify it. Resolve takes the last non-nil value across
// [default, file, cmdline], mirroring original_source/lns/lnsd.py's
// collapse_value.
type Layer struct {
	NetPort     *int
	ControlPort *int
	SocksPort   *int
	Hostname    *string
	Daemonize   *bool
	Verbose     *bool
}

// Defaults returns the built-in baseline configuration.
func Defaults() Layer {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return Layer{
		NetPort:     intPtr(announce.DefaultPort),
		ControlPort: intPtr(control.DefaultPort),
		SocksPort:   intPtr(socks5.DefaultPort),
		Hostname:    &hostname,
		Daemonize:   boolPtr(false),
		Verbose:     boolPtr(false),
	}
}

// LoadFile reads the `[lnsd]` section of an INI file at path. A missing file
// is not an error — callers pass DefaultConfigPath optimistically and most
// installs never create it.
func LoadFile(path string) (Layer, error) {
	var l Layer

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return l, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return l, &lnserr.ValidationError{Field: "config file", Value: path, Reason: err.Error()}
	}

	if !cfg.HasSection("lnsd") {
		return l, nil
	}
	sec := cfg.Section("lnsd")

	// Every key is checked independently rather than as an if/elif chain,
	// so a file setting several recognized keys applies all of them.
	if sec.HasKey("net_port") {
		v, err := sec.Key("net_port").Int()
		if err != nil {
			return l, &lnserr.ValidationError{Field: "net_port", Value: sec.Key("net_port").String(), Reason: "not an integer"}
		}
		l.NetPort = &v
	}
	if sec.HasKey("control_port") {
		v, err := sec.Key("control_port").Int()
		if err != nil {
			return l, &lnserr.ValidationError{Field: "control_port", Value: sec.Key("control_port").String(), Reason: "not an integer"}
		}
		l.ControlPort = &v
	}
	if sec.HasKey("hostname") {
		v := sec.Key("hostname").String()
		if err := announce.ValidateHostname(v); err != nil {
			return l, err
		}
		l.Hostname = &v
	}
	if sec.HasKey("daemonize") {
		v, err := sec.Key("daemonize").Bool()
		if err != nil {
			return l, &lnserr.ValidationError{Field: "daemonize", Value: sec.Key("daemonize").String(), Reason: `must be "true" or "false"`}
		}
		l.Daemonize = &v
	}
	if sec.HasKey("verbose") {
		v, err := sec.Key("verbose").Bool()
		if err != nil {
			return l, &lnserr.ValidationError{Field: "verbose", Value: sec.Key("verbose").String(), Reason: `must be "true" or "false"`}
		}
		l.Verbose = &v
	}

	return l, nil
}

// Resolve collapses default < file < cmdline into a final Config.
func Resolve(file, cmdline Layer) Config {
	def := Defaults()
	return Config{
		NetPort:     *collapseInt(def.NetPort, file.NetPort, cmdline.NetPort),
		ControlPort: *collapseInt(def.ControlPort, file.ControlPort, cmdline.ControlPort),
		SocksPort:   *collapseInt(def.SocksPort, file.SocksPort, cmdline.SocksPort),
		Hostname:    *collapseString(def.Hostname, file.Hostname, cmdline.Hostname),
		Daemonize:   *collapseBool(def.Daemonize, file.Daemonize, cmdline.Daemonize),
		Verbose:     *collapseBool(def.Verbose, file.Verbose, cmdline.Verbose),
	}
}

func collapseInt(vals ...*int) *int {
	var last *int
	for _, v := range vals {
		if v != nil {
			last = v
		}
	}
	return last
}

func collapseString(vals ...*string) *string {
	var last *string
	for _, v := range vals {
		if v != nil {
			last = v
		}
	}
	return last
}

func collapseBool(vals ...*bool) *bool {
	var last *bool
	for _, v := range vals {
		if v != nil {
			last = v
		}
	}
	return last
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }
