//
// Copyright (c) 2020-2026 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/markkurossi/irismpc/logging"
)

// Network implements the peer-to-peer mesh between the computation
// parties.
type Network struct {
	ID        int
	DialDelay time.Duration
	m         sync.Mutex
	Peers     map[int]*Peer
	ready     map[int]chan struct{}
	addr      string
	listener  net.Listener
	tlsConfig *tls.Config
	log       *logging.Logger
}

// NewNetwork creates a new peer-to-peer network listening at addr. If
// config is not nil, all peer connections use TLS with it.
func NewNetwork(addr string, id int, config *tls.Config,
	log *logging.Logger) (*Network, error) {

	var listener net.Listener
	var err error

	if config != nil {
		listener, err = tls.Listen("tcp", addr, config)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	nw := &Network{
		ID:        id,
		DialDelay: 5 * time.Second,
		Peers:     make(map[int]*Peer),
		ready:     make(map[int]chan struct{}),
		addr:      addr,
		listener:  listener,
		tlsConfig: config,
		log:       logging.OrDiscard(log),
	}
	go nw.acceptLoop()
	return nw, nil
}

// Addr returns the network's listening address.
func (nw *Network) Addr() net.Addr {
	return nw.listener.Addr()
}

// Close closes the network and all peer connections.
func (nw *Network) Close() error {
	err := nw.listener.Close()

	nw.m.Lock()
	peers := nw.Peers
	nw.Peers = make(map[int]*Peer)
	nw.ready = make(map[int]chan struct{})
	nw.m.Unlock()

	for _, peer := range peers {
		peer.Close()
	}
	return err
}

// Connect connects the network to all peers of the address map. The
// network dials the peers with a larger ID and waits for the peers
// with a smaller ID to connect.
func (nw *Network) Connect(ctx context.Context, addrs map[int]string) error {
	for id, addr := range addrs {
		if id <= nw.ID {
			continue
		}
		if err := nw.AddPeer(ctx, addr, id); err != nil {
			return err
		}
	}
	for id := range addrs {
		if id == nw.ID {
			continue
		}
		if _, err := nw.Peer(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (nw *Network) dial(ctx context.Context, addr string) (net.Conn, error) {
	if nw.tlsConfig != nil {
		dialer := &tls.Dialer{
			Config: nw.tlsConfig,
		}
		return dialer.DialContext(ctx, "tcp", addr)
	}
	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", addr)
}

// AddPeer adds a peer to the network.
func (nw *Network) AddPeer(ctx context.Context, addr string, id int) error {
	// Try to connect to peer.
	for {
		// Check if we have already accepted peer `id`.
		nw.m.Lock()
		_, ok := nw.Peers[id]
		nw.m.Unlock()
		if ok {
			return nil
		}

		nw.log.Infof("NW %d: Connecting to peer %d...", nw.ID, id)
		nc, err := nw.dial(ctx, addr)
		if err != nil {
			nw.log.Warnf("NW %d: Connect to %s failed, retrying in %s",
				nw.ID, addr, nw.DialDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(nw.DialDelay):
			}
			continue
		}
		nw.log.Infof("NW %d: Connected to %s", nw.ID, addr)
		conn := NewConn(nc)

		if err := conn.SendUint32(nw.ID); err != nil {
			conn.Close()
			return err
		}
		if err := conn.Flush(); err != nil {
			conn.Close()
			return err
		}
		if err := nw.newPeer(true, conn, id); err != nil {
			nw.log.Errorf("NW %d: failed to add peer: %s", nw.ID, err)
		}
	}
}

// Peer returns the peer id. It waits until the peer has connected or
// the context is done.
func (nw *Network) Peer(ctx context.Context, id int) (*Peer, error) {
	nw.m.Lock()
	ch := nw.readyCh(id)
	nw.m.Unlock()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("NW %d: waiting for peer %d: %w",
			nw.ID, id, ctx.Err())
	case <-ch:
	}

	nw.m.Lock()
	defer nw.m.Unlock()
	peer, ok := nw.Peers[id]
	if !ok {
		return nil, fmt.Errorf("NW %d: peer %d: %w", nw.ID, id, ErrClosed)
	}
	return peer, nil
}

// readyCh returns the channel that is closed when the peer id
// connects. The caller must hold nw.m.
func (nw *Network) readyCh(id int) chan struct{} {
	ch, ok := nw.ready[id]
	if !ok {
		ch = make(chan struct{})
		nw.ready[id] = ch
	}
	return ch
}

// Stats returns the I/O stats from the network.
func (nw *Network) Stats() IOStats {
	nw.m.Lock()
	defer nw.m.Unlock()

	result := NewIOStats()
	for _, peer := range nw.Peers {
		result = result.Add(peer.conn.Stats)
	}
	return result
}

func (nw *Network) acceptLoop() {
	for {
		nc, err := nw.listener.Accept()
		if err != nil {
			nw.log.Debugf("NW %d: accept failed: %s", nw.ID, err)
			return
		}
		conn := NewConn(nc)

		// Read peer ID.
		id, err := conn.ReceiveUint32()
		if err != nil {
			nw.log.Warnf("NW %d: I/O error: %s", nw.ID, err)
			conn.Close()
			continue
		}

		err = nw.newPeer(false, conn, id)
		if err != nil {
			nw.log.Warnf("NW %d: inbound connection error: %s", nw.ID, err)
		}
	}
}

func (nw *Network) newPeer(client bool, conn *Conn, id int) error {
	nw.m.Lock()
	_, ok := nw.Peers[id]
	if ok {
		nw.m.Unlock()
		nw.log.Warnf("NW %d: peer %d already connected", nw.ID, id)
		return conn.Close()
	}
	nw.Peers[id] = &Peer{
		ID:     id,
		conn:   conn,
		client: client,
	}
	close(nw.readyCh(id))
	nw.m.Unlock()

	nw.log.Debugf("NW %d: peer %d ready", nw.ID, id)
	return nil
}

// Peer implements a peer in the peer-to-peer network.
type Peer struct {
	ID     int
	conn   *Conn
	client bool
}

// Conn returns the peer connection.
func (peer *Peer) Conn() *Conn {
	return peer.conn
}

// Client tests if the peer connection was initiated by this
// network.
func (peer *Peer) Client() bool {
	return peer.client
}

// Close closes the peer connection.
func (peer *Peer) Close() error {
	return peer.conn.Close()
}
