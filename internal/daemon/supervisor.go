// Package daemon wires the announce and control engines onto a shared
// reactor and drives the single-threaded event loop that is the core of
// lnsd.
package daemon

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshuafuller/lnsd/internal/announce"
	"github.com/joshuafuller/lnsd/internal/control"
	"github.com/joshuafuller/lnsd/internal/reactor"
)

// Supervisor is the daemon core: `New` constructs it from the hostname,
// control port and network port (plus heartbeat/TTL overrides and a
// logger), and `Run` takes the termination signals (a context and a quit
// channel) and drives it until signalled.
type Supervisor struct {
	reactor  reactor.Reactor
	announce *announce.Engine
	control  *control.Engine
	log      zerolog.Logger
}

// New constructs a Supervisor. Its reactor, announce engine, and control
// engine are built but not yet opened; call Run to open and drive them.
// alarm and ttl of 0 use the announce engine's built-in defaults (10s/30s);
// non-zero values restore the original CLI's `-a`/`-t` overrides.
func New(hostname string, controlPort, netPort int, alarm, ttl time.Duration, log zerolog.Logger) (*Supervisor, error) {
	r, err := reactor.New()
	if err != nil {
		return nil, err
	}

	var opts []announce.Option
	if alarm > 0 {
		opts = append(opts, announce.WithAlarm(alarm))
	}
	if ttl > 0 {
		opts = append(opts, announce.WithTTL(ttl))
	}

	ann := announce.New(r, hostname, netPort, log, opts...)
	ctl := control.New(r, ann, controlPort, log)

	return &Supervisor{
		reactor:  r,
		announce: ann,
		control:  ctl,
		log:      log.With().Str("component", "supervisor").Logger(),
	}, nil
}

// Announce exposes the announce engine so callers that need direct peer-map
// access (the SOCKS5 proxy) can reach it.
func (s *Supervisor) Announce() *announce.Engine {
	return s.announce
}

// Run opens both engines and loops `reactor.Poll(announce.GetTimeUntilNextAnnounce())`
// until the control engine observes Quit or quit is signalled, then tears
// both engines down in reverse construction order.
func (s *Supervisor) Run(ctx context.Context, quit <-chan struct{}) error {
	if err := s.announce.Open(); err != nil {
		return err
	}
	if err := s.control.Open(); err != nil {
		_ = s.announce.Close()
		return err
	}

	s.log.Info().Msg("lnsd running")

	for s.control.IsRunning() {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("context cancelled, shutting down")
			goto shutdown
		case <-quit:
			s.log.Info().Msg("termination signalled, shutting down")
			goto shutdown
		default:
		}

		timeout := s.announce.GetTimeUntilNextAnnounce().Seconds()
		if err := s.reactor.Poll(timeout); err != nil {
			s.log.Error().Err(err).Msg("reactor poll failed")
			break
		}
	}

shutdown:
	ctlErr := s.control.Close()
	annErr := s.announce.Close()
	if ctlErr != nil {
		return ctlErr
	}
	return annErr
}
