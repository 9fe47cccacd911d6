// SPDX-License-Identifier: MIT
//
// Package udp publishes analysis frames as compact binary datagrams for
// visualizers that cannot speak websocket.
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"handbeat/internal/log"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("udp: sender closed")

// Sender handles sending data packets over UDP.
type Sender struct {
	conn   *net.UDPConn
	log    log.Component
	mu     sync.Mutex // Protects conn during Close
	closed bool
	errors uint64
}

// NewSender creates a Sender targeting targetAddress ("host:port").
func NewSender(targetAddress string) (*Sender, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}
	s := &Sender{conn: conn, log: log.For("UDPSender")}
	s.log.Infof("connection established to %s", conn.RemoteAddr())
	return s, nil
}

// Send transmits data as one datagram. Write errors are logged once per
// thousand so an absent listener does not flood the log.
func (s *Sender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.conn.Write(data); err != nil {
		s.errors++
		if s.errors == 1 || s.errors%1000 == 0 {
			s.log.Warnf("error sending packet (%d total): %v", s.errors, err)
		}
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the underlying UDP connection.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Infof("closing connection to %s", s.conn.RemoteAddr())
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

// Ensure Sender satisfies the io.Closer interface at compile time.
var _ interface{ Close() error } = (*Sender)(nil)
