// Command lnsd runs the LAN naming service daemon: an announce engine that
// advertises this host's name over UDP broadcast and tracks its peers, a
// loopback control port local tools query, and (optionally) a SOCKS5 proxy
// that resolves ".lan" names against the peer map.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/joshuafuller/lnsd/internal/config"
	"github.com/joshuafuller/lnsd/internal/daemon"
	"github.com/joshuafuller/lnsd/internal/lnslog"
	"github.com/joshuafuller/lnsd/internal/socks5"
)

const (
	pidFile = "/tmp/lnsd.pid"
	logFile = "/tmp/lnsd.log"
)

func main() {
	os.Exit(run())
}

func run() int {
	fs := pflag.NewFlagSet("lnsd", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", config.DefaultConfigPath, "INI config file")
	port := fs.StringP("port", "p", "", "control:net port pair, e.g. 10771:15051")
	ttl := fs.Duration("ttl", 0, "peer eviction TTL (default 30s)")
	heartbeat := fs.Duration("heartbeat", 0, "announce heartbeat interval (default 10s)")
	name := fs.StringP("name", "n", "", "hostname to announce")
	daemonize := fs.BoolP("daemonize", "D", false, "detach into the background")
	verbose := fs.BoolP("verbose", "v", false, "enable debug logging")
	help := fs.BoolP("help", "h", false, "print usage and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *help {
		fmt.Fprintln(os.Stderr, "Usage: lnsd [-c config] [-p ctrl:net] [-n name] [-D] [-v] [--ttl dur] [--heartbeat dur]")
		fs.PrintDefaults()
		return 0
	}

	fileLayer, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lnsd:", err)
		return 2
	}

	var cmdline config.Layer
	if fs.Changed("name") {
		cmdline.Hostname = name
	}
	if fs.Changed("daemonize") {
		cmdline.Daemonize = daemonize
	}
	if fs.Changed("verbose") {
		cmdline.Verbose = verbose
	}
	if fs.Changed("port") {
		ctrlPort, netPort, perr := parsePortPair(*port)
		if perr != nil {
			fmt.Fprintln(os.Stderr, "lnsd:", perr)
			return 2
		}
		cmdline.ControlPort = &ctrlPort
		cmdline.NetPort = &netPort
	}

	cfg := config.Resolve(fileLayer, cmdline)
	lnslog.Init(cfg.Verbose)
	log := lnslog.Logger

	if cfg.Daemonize {
		if err := daemon.Daemonize(pidFile, logFile); err != nil {
			fmt.Fprintln(os.Stderr, "lnsd: daemonize:", err)
			return 2
		}
	}

	sup, err := daemon.New(cfg.Hostname, cfg.ControlPort, cfg.NetPort, *heartbeat, *ttl, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to construct daemon")
		return 2
	}

	proxy, err := socks5.NewSessionManager(sup.Announce(), cfg.SocksPort, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to construct socks5 proxy")
		return 2
	}
	if err := proxy.Open(); err != nil {
		log.Warn().Err(err).Msg("socks5 proxy disabled: failed to bind")
	} else {
		go func() {
			if err := proxy.Run(); err != nil {
				log.Warn().Err(err).Msg("socks5 proxy stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	quit := make(chan struct{})
	if err := sup.Run(ctx, quit); err != nil {
		log.Error().Err(err).Msg("daemon exited with error")
		return 1
	}
	return 0
}

// parsePortPair splits a "ctrl:net" flag value into its two integers.
func parsePortPair(s string) (ctrlPort, netPort int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected ctrl:net, got %q", s)
	}
	ctrlPort, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid control port %q", parts[0])
	}
	netPort, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid net port %q", parts[1])
	}
	return ctrlPort, netPort, nil
}
