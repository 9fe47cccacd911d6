// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"time"

	"handbeat/internal/config"
	"handbeat/internal/engine"
	"handbeat/internal/log"
	"handbeat/internal/midi"
	"handbeat/internal/transport"
	"handbeat/internal/transport/udp"
)

const (
	readyRetry      = 2 * time.Second
	logEveryFrames  = 60
	shutdownTimeout = 5 * time.Second
)

// Session is one live engine with its transports and gesture sources.
type Session struct {
	Engine *engine.AudioEngine

	log       log.Component
	params    config.Params
	out       transport.Multi
	hub       *transport.Hub
	server    *transport.Server
	sender    *udp.Sender
	publisher *udp.Publisher
	midi      *midi.Controller
	runErr    chan error
	cancel    context.CancelFunc
}

// Start builds the engine, wires every configured transport and gesture
// source, and opens the output. An output that fails to open is retried in
// the background; the session keeps serving meanwhile.
func Start(ctx context.Context, p config.Params, verbose bool, opts ...engine.Option) (*Session, error) {
	s := &Session{
		Engine: engine.New(p, opts...),
		log:    log.For("Session"),
		params: p,
		runErr: make(chan error, 1),
	}
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.Engine.Init(ctx); err != nil {
		s.cancel()
		return nil, err
	}

	if err := s.startTransports(verbose); err != nil {
		s.Close()
		return nil, err
	}
	s.Engine.OnFeatures(func(f engine.Frame) {
		s.out.Send(transport.NewFeatures(f))
	})
	s.Engine.OnKick(func(t float64) {
		s.out.Send(transport.NewKick(t))
	})

	if p.MIDI.Enabled {
		c := midi.New(p.MIDI, s.Engine)
		if err := c.Open(); err != nil {
			s.log.Warnf("MIDI input disabled: %v", err)
		} else {
			s.midi = c
		}
	}

	go func() { s.runErr <- s.Engine.Run(ctx) }()

	if err := s.Engine.EnsureReady(ctx); err != nil {
		s.log.Warnf("retrying output every %s", readyRetry)
		go s.retryReady(ctx)
	}
	return s, nil
}

func (s *Session) startTransports(verbose bool) error {
	tc := s.params.Transport
	if verbose {
		s.out = append(s.out, transport.NewLoggingTransport(logEveryFrames))
	}
	if tc.WebSocketEnabled {
		s.hub = transport.NewHub(s.Engine)
		s.out = append(s.out, s.hub)
		s.server = transport.NewServer(tc.WebSocketAddr, s.Engine, s.hub)
		if err := s.server.Start(); err != nil {
			return err
		}
	}
	if tc.UDPEnabled {
		sender, err := udp.NewSender(tc.UDPTargetAddress)
		if err != nil {
			return err
		}
		s.sender = sender
		pub, err := udp.NewPublisher(tc.UDPSendInterval, sender, s.Engine, true)
		if err != nil {
			return err
		}
		s.publisher = pub
		pub.Start()
	}
	return nil
}

func (s *Session) retryReady(ctx context.Context) {
	ticker := time.NewTicker(readyRetry)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.Engine.EnsureReady(ctx)
			if err == nil {
				return
			}
			if errors.Is(err, engine.ErrClosed) {
				return
			}
		}
	}
}

// Addr reports the HTTP listen address, or "" without a server.
func (s *Session) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr()
}

// Wait blocks until ctx is done or the control loop stops.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-s.runErr:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// Close stops gesture sources first, then transports, then the engine.
// The recording path, if any, is returned.
func (s *Session) Close() (string, error) {
	var errs []error
	if s.midi != nil {
		errs = append(errs, s.midi.Close())
	}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Stop())
	}
	if s.sender != nil {
		errs = append(errs, s.sender.Close())
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, s.server.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, s.out.Close())

	path, err := s.Engine.StopRecording()
	if err != nil && !errors.Is(err, engine.ErrNotReady) {
		errs = append(errs, err)
	}
	errs = append(errs, s.Engine.Teardown())
	s.cancel()
	return path, errors.Join(errs...)
}
