//
// protocol_test.go
//
// Copyright (c) 2023-2026 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"
)

var tests = []interface{}{
	byte(42),
	uint16(43),
	uint32(44),
	uint64(1<<40 + 45),
	"Hello, world!",
	make([]byte, 1024),
	bytes.Repeat([]byte{0x5a}, 2*1024*1024),
	make([]byte, 64*1024*1024),
}

func writer(c *Conn) {
	for _, test := range tests {
		switch d := test.(type) {
		case byte:
			if err := c.SendByte(d); err != nil {
				fmt.Printf("SendByte: %v\n", err)
			}

		case uint16:
			if err := c.SendUint16(int(d)); err != nil {
				fmt.Printf("SendUint16: %v\n", err)
			}

		case uint32:
			if err := c.SendUint32(int(d)); err != nil {
				fmt.Printf("SendUint32: %v\n", err)
			}

		case uint64:
			if err := c.SendUint64(d); err != nil {
				fmt.Printf("SendUint64: %v\n", err)
			}

		case string:
			if err := c.SendString(d); err != nil {
				fmt.Printf("SendString: %v\n", err)
			}

		case []byte:
			if err := c.SendData(d); err != nil {
				fmt.Printf("SendData [%v]byte: %v\n", len(d), err)
			}

		default:
			fmt.Printf("writer: invalid data: %v(%T)\n", test, test)
		}
	}
	if err := c.Flush(); err != nil {
		fmt.Printf("Flush: %v\n", err)
	}
}

func TestProtocol(t *testing.T) {
	cw, c := Pipe()

	go writer(cw)

	for _, test := range tests {
		switch d := test.(type) {
		case byte:
			v, err := c.ReceiveByte()
			if err != nil {
				t.Fatalf("ReceiveByte: %v", err)
			}
			if v != d {
				t.Errorf("ReceiveByte: got %v, expected %v", v, d)
			}

		case uint16:
			v, err := c.ReceiveUint16()
			if err != nil {
				t.Fatalf("ReceiveUint16: %v", err)
			}
			if v != int(d) {
				t.Errorf("ReceiveUint16: got %v, expected %v", v, d)
			}

		case uint32:
			v, err := c.ReceiveUint32()
			if err != nil {
				t.Fatalf("ReceiveUint32: %v", err)
			}
			if v != int(d) {
				t.Errorf("ReceiveUint32: got %v, expected %v", v, d)
			}

		case uint64:
			v, err := c.ReceiveUint64()
			if err != nil {
				t.Fatalf("ReceiveUint64: %v", err)
			}
			if v != d {
				t.Errorf("ReceiveUint64: got %v, expected %v", v, d)
			}

		case string:
			v, err := c.ReceiveString()
			if err != nil {
				t.Fatalf("ReceiveString: %v", err)
			}
			if v != d {
				t.Errorf("ReceiveString: got %v, expected %v", v, d)
			}

		case []byte:
			v, err := c.ReceiveData()
			if err != nil {
				t.Fatalf("ReceiveData: %v", err)
			}
			if !bytes.Equal(v, d) {
				t.Errorf("ReceiveData: got [%v]byte, expected [%v]byte",
					len(v), len(d))
			}

		default:
			t.Errorf("invalid value: %v(%T)", test, test)
		}
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestReadDeadline(t *testing.T) {
	c0, c1 := Pipe()
	defer c0.Close()

	if err := c1.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, err := c1.ReceiveUint32()
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Errorf("ReceiveUint32: got %v, expected deadline error", err)
	}
	if err := c1.Abort(); err != nil {
		t.Errorf("Abort: %v", err)
	}
	if err := c1.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("Close after Abort: got %v, expected %v", err, ErrClosed)
	}
}

func TestNetwork(t *testing.T) {
	const numParties = 3

	var nws []*Network
	addrs := make(map[int]string)
	for i := 0; i < numParties; i++ {
		nw, err := NewNetwork("127.0.0.1:0", i, nil, nil)
		if err != nil {
			t.Fatalf("NewNetwork: %v", err)
		}
		defer nw.Close()
		nws = append(nws, nw)
		addrs[i] = nw.Addr().String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, numParties)
	for i, nw := range nws {
		wg.Add(1)
		go func(i int, nw *Network) {
			defer wg.Done()
			errs[i] = nw.Connect(ctx, addrs)
		}(i, nw)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Connect %d: %v", i, err)
		}
	}

	// Ring exchange: every party sends its ID to the next party.
	for i, nw := range nws {
		wg.Add(1)
		go func(i int, nw *Network) {
			defer wg.Done()
			next, err := nw.Peer(ctx, (i+1)%numParties)
			if err != nil {
				errs[i] = err
				return
			}
			if err := next.Conn().SendUint32(100 + i); err != nil {
				errs[i] = err
				return
			}
			errs[i] = next.Conn().Flush()
		}(i, nw)
	}
	for i, nw := range nws {
		prevID := (i + numParties - 1) % numParties
		prev, err := nw.Peer(ctx, prevID)
		if err != nil {
			t.Fatalf("Peer: %v", err)
		}
		v, err := prev.Conn().ReceiveUint32()
		if err != nil {
			t.Fatalf("ReceiveUint32: %v", err)
		}
		if v != 100+prevID {
			t.Errorf("party %d: got %v, expected %v", i, v, 100+prevID)
		}
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("send %d: %v", i, err)
		}
	}
	if nws[0].Stats().Sum() == 0 {
		t.Errorf("Stats: no traffic recorded")
	}
}
