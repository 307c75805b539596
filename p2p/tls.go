//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
)

// ErrNoTLS is returned when a TLS endpoint is created without a TLS
// configuration.
var ErrNoTLS = errors.New("p2p: TLS configuration required")

// Listener accepts mutually authenticated connections.
type Listener struct {
	listener net.Listener
}

// Listen creates a TLS listener for the address. The configuration
// decides whether client certificates are required.
func Listen(addr string, config *tls.Config) (*Listener, error) {
	if config == nil {
		return nil, ErrNoTLS
	}
	listener, err := tls.Listen("tcp", addr, config)
	if err != nil {
		return nil, err
	}
	return &Listener{
		listener: listener,
	}, nil
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close closes the listener.
func (l *Listener) Close() error {
	return l.listener.Close()
}

// Accept waits for the next connection. The TLS handshake is not
// run by Accept; the caller completes it with Conn.Handshake so that
// a stalling peer blocks only its own connection.
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	if _, ok := nc.(*tls.Conn); !ok {
		nc.Close()
		return nil, fmt.Errorf("p2p: unexpected connection type %T", nc)
	}
	return NewConn(nc), nil
}

// Handshake completes the TLS handshake of the connection if it is
// not complete yet. It does nothing for plaintext connections.
func (c *Conn) Handshake(ctx context.Context) error {
	tc, ok := c.conn.(*tls.Conn)
	if !ok {
		return nil
	}
	if err := tc.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("p2p: handshake with %s: %w", tc.RemoteAddr(), err)
	}
	return nil
}

// Dial connects to the address and completes the TLS handshake.
func Dial(ctx context.Context, addr string, config *tls.Config) (*Conn, error) {
	if config == nil {
		return nil, ErrNoTLS
	}
	dialer := &tls.Dialer{
		Config: config,
	}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(nc), nil
}

// PeerName returns the common name of the authenticated peer
// certificate or an empty string if the peer did not present one.
func (c *Conn) PeerName() string {
	state, ok := c.TLS()
	if !ok || len(state.PeerCertificates) == 0 {
		return ""
	}
	return state.PeerCertificates[0].Subject.CommonName
}
