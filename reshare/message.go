//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package reshare

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/irismpc/iris"
	"github.com/markkurossi/irismpc/p2p"
	"github.com/markkurossi/irismpc/shares"
)

const (
	// MaxBatchSize is the maximum number of records in a batch.
	MaxBatchSize = 4096
	// MaxElements is the maximum length of a share vector.
	MaxElements = 1 << 16
	// MaxReason is the maximum length of an abort reason.
	MaxReason = 1024
)

// MsgType defines the message types.
type MsgType byte

// Message types.
const (
	MsgHello MsgType = iota + 1
	MsgAccept
	MsgBatch
	MsgAck
	MsgDone
	MsgAbort
)

var msgTypes = map[MsgType]string{
	MsgHello:  "hello",
	MsgAccept: "accept",
	MsgBatch:  "batch",
	MsgAck:    "ack",
	MsgDone:   "done",
	MsgAbort:  "abort",
}

func (t MsgType) String() string {
	name, ok := msgTypes[t]
	if ok {
		return name
	}
	return fmt.Sprintf("{MsgType %d}", t)
}

// Message is a protocol message.
type Message interface {
	Type() MsgType
	send(conn *p2p.Conn) error
}

// Hello starts a session. The client requests its role's shares of
// the identity range [Start, End) of the eye's database.
type Hello struct {
	Session   uuid.UUID
	Role      shares.Role
	Eye       iris.Eye
	Start     uint64
	End       uint64
	BatchSize int
}

// Type implements Message.Type.
func (m *Hello) Type() MsgType {
	return MsgHello
}

func (m *Hello) send(conn *p2p.Conn) error {
	if err := conn.SendData(m.Session[:]); err != nil {
		return err
	}
	if err := conn.SendByte(byte(m.Role)); err != nil {
		return err
	}
	if err := conn.SendByte(byte(m.Eye)); err != nil {
		return err
	}
	if err := conn.SendUint64(m.Start); err != nil {
		return err
	}
	if err := conn.SendUint64(m.End); err != nil {
		return err
	}
	return conn.SendUint32(m.BatchSize)
}

// Accept accepts the session and announces the number of records in
// the range.
type Accept struct {
	Total uint64
}

// Type implements Message.Type.
func (m *Accept) Type() MsgType {
	return MsgAccept
}

func (m *Accept) send(conn *p2p.Conn) error {
	return conn.SendUint64(m.Total)
}

// Record holds one identity's replicated shares for the requesting
// role.
type Record struct {
	ID   uint64
	Code shares.Pair
	Mask shares.Pair
}

// Batch is a sequenced batch of records.
type Batch struct {
	Seq     uint64
	Records []Record
}

// Type implements Message.Type.
func (m *Batch) Type() MsgType {
	return MsgBatch
}

func (m *Batch) send(conn *p2p.Conn) error {
	if err := conn.SendUint64(m.Seq); err != nil {
		return err
	}
	if err := conn.SendUint32(len(m.Records)); err != nil {
		return err
	}
	for _, r := range m.Records {
		if err := conn.SendUint64(r.ID); err != nil {
			return err
		}
		for _, v := range [][]field.Element{
			r.Code.Share0, r.Code.Share1, r.Mask.Share0, r.Mask.Share1,
		} {
			if err := conn.SendElements(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ack acknowledges the batch or the completion marker with the
// sequence number.
type Ack struct {
	Seq uint64
}

// Type implements Message.Type.
func (m *Ack) Type() MsgType {
	return MsgAck
}

func (m *Ack) send(conn *p2p.Conn) error {
	return conn.SendUint64(m.Seq)
}

// Done marks the end of the stream. Count is the number of records
// the server streamed.
type Done struct {
	Seq   uint64
	Count uint64
}

// Type implements Message.Type.
func (m *Done) Type() MsgType {
	return MsgDone
}

func (m *Done) send(conn *p2p.Conn) error {
	if err := conn.SendUint64(m.Seq); err != nil {
		return err
	}
	return conn.SendUint64(m.Count)
}

// Abort aborts the session.
type Abort struct {
	Reason string
}

// Type implements Message.Type.
func (m *Abort) Type() MsgType {
	return MsgAbort
}

func (m *Abort) send(conn *p2p.Conn) error {
	return conn.SendString(truncate(m.Reason, MaxReason))
}

// truncate truncates s to at most n bytes without splitting a UTF-8
// encoded rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// SendMessage sends the message and flushes the connection.
func SendMessage(conn *p2p.Conn, msg Message) error {
	if err := conn.SendByte(byte(msg.Type())); err != nil {
		return err
	}
	if err := msg.send(conn); err != nil {
		return err
	}
	return conn.Flush()
}

// ReceiveMessage receives a message.
func ReceiveMessage(conn *p2p.Conn) (Message, error) {
	t, err := conn.ReceiveByte()
	if err != nil {
		return nil, err
	}
	switch MsgType(t) {
	case MsgHello:
		msg := new(Hello)
		id, err := conn.ReceiveData()
		if err != nil {
			return nil, err
		}
		msg.Session, err = uuid.FromBytes(id)
		if err != nil {
			return nil, fmt.Errorf("%w: session: %v", ErrProtocol, err)
		}
		role, err := conn.ReceiveByte()
		if err != nil {
			return nil, err
		}
		msg.Role = shares.Role(role)
		eye, err := conn.ReceiveByte()
		if err != nil {
			return nil, err
		}
		msg.Eye = iris.Eye(eye)
		if msg.Start, err = conn.ReceiveUint64(); err != nil {
			return nil, err
		}
		if msg.End, err = conn.ReceiveUint64(); err != nil {
			return nil, err
		}
		if msg.BatchSize, err = conn.ReceiveUint32(); err != nil {
			return nil, err
		}
		return msg, nil

	case MsgAccept:
		total, err := conn.ReceiveUint64()
		if err != nil {
			return nil, err
		}
		return &Accept{Total: total}, nil

	case MsgBatch:
		seq, err := conn.ReceiveUint64()
		if err != nil {
			return nil, err
		}
		count, err := conn.ReceiveUint32()
		if err != nil {
			return nil, err
		}
		if count > MaxBatchSize {
			return nil, fmt.Errorf("%w: batch of %d records", ErrProtocol, count)
		}
		msg := &Batch{
			Seq:     seq,
			Records: make([]Record, count),
		}
		for i := range msg.Records {
			r := &msg.Records[i]
			if r.ID, err = conn.ReceiveUint64(); err != nil {
				return nil, err
			}
			for _, v := range []*[]field.Element{
				&r.Code.Share0, &r.Code.Share1, &r.Mask.Share0, &r.Mask.Share1,
			} {
				*v, err = conn.ReceiveElements(MaxElements)
				if err != nil {
					return nil, err
				}
			}
		}
		return msg, nil

	case MsgAck:
		seq, err := conn.ReceiveUint64()
		if err != nil {
			return nil, err
		}
		return &Ack{Seq: seq}, nil

	case MsgDone:
		msg := new(Done)
		if msg.Seq, err = conn.ReceiveUint64(); err != nil {
			return nil, err
		}
		if msg.Count, err = conn.ReceiveUint64(); err != nil {
			return nil, err
		}
		return msg, nil

	case MsgAbort:
		reason, err := conn.ReceiveString()
		if err != nil {
			return nil, err
		}
		if len(reason) > MaxReason {
			return nil, fmt.Errorf("%w: abort reason too long", ErrProtocol)
		}
		return &Abort{Reason: reason}, nil

	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrProtocol, t)
	}
}
