//
// Copyright (c) 2019-2026 Markku Rossi
//
// All rights reserved.
//

// Package p2p implements the framed binary connections between the
// parties and between the resharing client and server.
package p2p

import (
	"crypto/tls"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	numBuffers   = 3
	writeBufSize = 64 * 1024
	readBufSize  = 1024 * 1024
)

// ErrClosed is returned for operations on a closed connection.
var ErrClosed = errors.New("p2p: connection closed")

// Conn implements a protocol connection.
type Conn struct {
	conn      io.ReadWriter
	WriteBuf  []byte
	WritePos  int
	ReadBuf   []byte
	ReadStart int
	ReadEnd   int
	Stats     IOStats

	fromWriter chan []byte
	toWriter   chan []byte
	closed     bool

	m         sync.Mutex
	writerErr error
}

// IOStats implements I/O statistics.
type IOStats struct {
	Sent    *atomic.Uint64
	Recvd   *atomic.Uint64
	Flushed *atomic.Uint64
}

// NewIOStats creates a new I/O statistics object.
func NewIOStats() IOStats {
	return IOStats{
		Sent:    new(atomic.Uint64),
		Recvd:   new(atomic.Uint64),
		Flushed: new(atomic.Uint64),
	}
}

// Add adds the argument stats to this IOStats and returns the sum.
func (stats IOStats) Add(o IOStats) IOStats {
	result := NewIOStats()
	if stats.Sent != nil {
		result.Sent.Store(stats.Sent.Load())
		result.Recvd.Store(stats.Recvd.Load())
		result.Flushed.Store(stats.Flushed.Load())
	}
	if o.Sent != nil {
		result.Sent.Add(o.Sent.Load())
		result.Recvd.Add(o.Recvd.Load())
		result.Flushed.Add(o.Flushed.Load())
	}
	return result
}

// Sum returns sum of sent and received bytes.
func (stats IOStats) Sum() uint64 {
	return stats.Sent.Load() + stats.Recvd.Load()
}

// NewConn creates a new connection around the argument connection.
func NewConn(conn io.ReadWriter) *Conn {
	c := &Conn{
		conn:       conn,
		ReadBuf:    make([]byte, readBufSize),
		fromWriter: make(chan []byte, numBuffers),
		toWriter:   make(chan []byte, numBuffers),
		Stats:      NewIOStats(),
	}

	go c.writer()

	c.WriteBuf = <-c.fromWriter

	return c
}

func (c *Conn) writer() {
	for i := 0; i < numBuffers; i++ {
		c.fromWriter <- make([]byte, writeBufSize)
	}

	for buf := range c.toWriter {
		if c.err() == nil {
			_, err := c.conn.Write(buf)
			if err != nil {
				c.setErr(err)
			}
		}
		c.fromWriter <- buf[0:cap(buf)]
	}
	close(c.fromWriter)
}

func (c *Conn) err() error {
	c.m.Lock()
	defer c.m.Unlock()
	return c.writerErr
}

func (c *Conn) setErr(err error) {
	c.m.Lock()
	if c.writerErr == nil {
		c.writerErr = err
	}
	c.m.Unlock()
}

// TLS returns the TLS connection state if the connection runs over
// TLS.
func (c *Conn) TLS() (tls.ConnectionState, bool) {
	tc, ok := c.conn.(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}, false
	}
	return tc.ConnectionState(), true
}

// SetReadDeadline sets the read deadline of the underlying
// connection. It returns errors.ErrUnsupported if the connection
// does not support deadlines.
func (c *Conn) SetReadDeadline(t time.Time) error {
	d, ok := c.conn.(interface{ SetReadDeadline(time.Time) error })
	if !ok {
		return errors.ErrUnsupported
	}
	return d.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline of the underlying
// connection. It returns errors.ErrUnsupported if the connection
// does not support deadlines.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	d, ok := c.conn.(interface{ SetWriteDeadline(time.Time) error })
	if !ok {
		return errors.ErrUnsupported
	}
	return d.SetWriteDeadline(t)
}

// NeedSpace ensures the write buffer has space for count bytes. The
// function flushes the output if needed.
func (c *Conn) NeedSpace(count int) error {
	if c.WritePos+count > len(c.WriteBuf) {
		return c.Flush()
	}
	return nil
}

// Flush flushed any pending data in the connection.
func (c *Conn) Flush() error {
	if c.closed {
		return ErrClosed
	}
	if c.WritePos > 0 {
		c.Stats.Sent.Add(uint64(c.WritePos))
		c.toWriter <- c.WriteBuf[0:c.WritePos]

		c.WriteBuf = <-c.fromWriter
		c.WritePos = 0
		if err := c.err(); err != nil {
			return err
		}
		c.Stats.Flushed.Add(1)
	}
	return c.err()
}

// Fill fills the input buffer from the connection. Any unused data in
// the buffer is moved to the beginning of the buffer. The argument n
// must not exceed the read buffer size.
func (c *Conn) Fill(n int) error {
	if c.ReadStart < c.ReadEnd {
		copy(c.ReadBuf[0:], c.ReadBuf[c.ReadStart:c.ReadEnd])
		c.ReadEnd -= c.ReadStart
		c.ReadStart = 0
	} else {
		c.ReadStart = 0
		c.ReadEnd = 0
	}
	for c.ReadStart+n > c.ReadEnd {
		got, err := c.conn.Read(c.ReadBuf[c.ReadEnd:])
		c.Stats.Recvd.Add(uint64(got))
		c.ReadEnd += got
		if c.ReadStart+n <= c.ReadEnd {
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Conn) shutdown() {
	close(c.toWriter)
	for range c.fromWriter {
	}
	c.closed = true
}

// Close flushes any pending data and closes the connection.
func (c *Conn) Close() error {
	if c.closed {
		return ErrClosed
	}
	ferr := c.Flush()

	// Wait that flush completes.
	c.shutdown()
	if ferr == nil {
		ferr = c.err()
	}
	closer, ok := c.conn.(io.Closer)
	if ok {
		if err := closer.Close(); err != nil && ferr == nil {
			ferr = err
		}
	}
	return ferr
}

// Abort closes the connection without flushing pending data. It
// unblocks any pending reads and writes on the underlying connection.
func (c *Conn) Abort() error {
	if c.closed {
		return ErrClosed
	}
	var err error
	closer, ok := c.conn.(io.Closer)
	if ok {
		err = closer.Close()
	}
	c.WritePos = 0
	c.shutdown()
	return err
}

// SendByte sends a byte value.
func (c *Conn) SendByte(val byte) error {
	if c.WritePos+1 > len(c.WriteBuf) {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	c.WriteBuf[c.WritePos] = val
	c.WritePos++
	return nil
}

// SendUint16 sends an uint16 value.
func (c *Conn) SendUint16(val int) error {
	if c.WritePos+2 > len(c.WriteBuf) {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	c.WriteBuf[c.WritePos+0] = byte((uint32(val) >> 8) & 0xff)
	c.WriteBuf[c.WritePos+1] = byte(uint32(val) & 0xff)
	c.WritePos += 2
	return nil
}

// SendUint32 sends an uint32 value.
func (c *Conn) SendUint32(val int) error {
	if c.WritePos+4 > len(c.WriteBuf) {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	c.WriteBuf[c.WritePos+0] = byte((uint32(val) >> 24) & 0xff)
	c.WriteBuf[c.WritePos+1] = byte((uint32(val) >> 16) & 0xff)
	c.WriteBuf[c.WritePos+2] = byte((uint32(val) >> 8) & 0xff)
	c.WriteBuf[c.WritePos+3] = byte(uint32(val) & 0xff)
	c.WritePos += 4
	return nil
}

// SendUint64 sends an uint64 value.
func (c *Conn) SendUint64(val uint64) error {
	if err := c.SendUint32(int(val >> 32)); err != nil {
		return err
	}
	return c.SendUint32(int(val & 0xffffffff))
}

// SendData sends binary data. Data larger than the write buffer is
// sent in buffer sized chunks.
func (c *Conn) SendData(val []byte) error {
	if c.WritePos+4+len(val) > len(c.WriteBuf) {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	err := c.SendUint32(len(val))
	if err != nil {
		return err
	}
	for {
		n := copy(c.WriteBuf[c.WritePos:], val)
		c.WritePos += n
		val = val[n:]
		if len(val) == 0 {
			return nil
		}
		if err := c.Flush(); err != nil {
			return err
		}
	}
}

// SendString sends a string value.
func (c *Conn) SendString(val string) error {
	return c.SendData([]byte(val))
}

// ReceiveByte receives a byte value.
func (c *Conn) ReceiveByte() (byte, error) {
	if c.ReadStart+1 > c.ReadEnd {
		if err := c.Fill(1); err != nil {
			return 0, err
		}
	}
	val := c.ReadBuf[c.ReadStart]
	c.ReadStart++
	return val, nil
}

// ReceiveUint16 receives an uint16 value.
func (c *Conn) ReceiveUint16() (int, error) {
	if c.ReadStart+2 > c.ReadEnd {
		if err := c.Fill(2); err != nil {
			return 0, err
		}
	}
	val := uint32(c.ReadBuf[c.ReadStart+0])
	val <<= 8
	val |= uint32(c.ReadBuf[c.ReadStart+1])
	c.ReadStart += 2

	return int(val), nil
}

// ReceiveUint32 receives an uint32 value.
func (c *Conn) ReceiveUint32() (int, error) {
	if c.ReadStart+4 > c.ReadEnd {
		if err := c.Fill(4); err != nil {
			return 0, err
		}
	}
	val := uint32(c.ReadBuf[c.ReadStart+0])
	val <<= 8
	val |= uint32(c.ReadBuf[c.ReadStart+1])
	val <<= 8
	val |= uint32(c.ReadBuf[c.ReadStart+2])
	val <<= 8
	val |= uint32(c.ReadBuf[c.ReadStart+3])
	c.ReadStart += 4

	return int(val), nil
}

// ReceiveUint64 receives an uint64 value.
func (c *Conn) ReceiveUint64() (uint64, error) {
	hi, err := c.ReceiveUint32()
	if err != nil {
		return 0, err
	}
	lo, err := c.ReceiveUint32()
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

// ReceiveData receives binary data.
func (c *Conn) ReceiveData() ([]byte, error) {
	n, err := c.ReceiveUint32()
	if err != nil {
		return nil, err
	}
	result := make([]byte, n)

	if n > len(c.ReadBuf) {
		// Consume buffered bytes and read the rest directly.
		got := copy(result, c.ReadBuf[c.ReadStart:c.ReadEnd])
		c.ReadStart += got
		m, err := io.ReadFull(c.conn, result[got:])
		c.Stats.Recvd.Add(uint64(m))
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	if c.ReadStart+n > c.ReadEnd {
		if err := c.Fill(n); err != nil {
			return nil, err
		}
	}
	copy(result, c.ReadBuf[c.ReadStart:c.ReadStart+n])
	c.ReadStart += n

	return result, nil
}

// ReceiveString receives a string value.
func (c *Conn) ReceiveString() (string, error) {
	data, err := c.ReceiveData()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
