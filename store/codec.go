//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/markkurossi/irismpc/field"
	"github.com/markkurossi/irismpc/shares"
)

const (
	// MagicLegacy is the magic number of legacy record files.
	MagicLegacy = 0x6c677931 // lgy1

	// MagicReplicated is the magic number of replicated record
	// files.
	MagicReplicated = 0x72706c31 // rpl1

	maxVectorLen = 1 << 20
)

var (
	bo = binary.BigEndian
)

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) put(values ...interface{}) {
	for _, v := range values {
		// Writes to bytes.Buffer don't fail.
		binary.Write(&e.buf, bo, v)
	}
}

func (e *encoder) elements(v []field.Element) {
	e.put(uint32(len(v)))
	for _, el := range v {
		e.put(uint16(el))
	}
}

type decoder struct {
	in  io.Reader
	err error
}

func (d *decoder) get(v interface{}) {
	if d.err != nil {
		return
	}
	if err := binary.Read(d.in, bo, v); err != nil {
		d.err = fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
}

func (d *decoder) elements() []field.Element {
	var n uint32
	d.get(&n)
	if d.err != nil {
		return nil
	}
	if n > maxVectorLen {
		d.err = fmt.Errorf("%w: vector length %d", ErrInvalidData, n)
		return nil
	}
	raw := make([]uint16, n)
	d.get(raw)
	if d.err != nil {
		return nil
	}
	result := make([]field.Element, n)
	for i, v := range raw {
		if v >= field.P {
			d.err = fmt.Errorf("%w: element %d out of field", ErrInvalidData, v)
			return nil
		}
		result[i] = field.Element(v)
	}
	return result
}

func (d *decoder) magic(expected uint32) {
	var magic uint32
	d.get(&magic)
	if d.err == nil && magic != expected {
		d.err = fmt.Errorf("%w: magic %08x, expected %08x",
			ErrInvalidData, magic, expected)
	}
}

// MarshalLegacy encodes the legacy record.
func MarshalLegacy(r LegacyRecord) []byte {
	var e encoder
	e.put(uint32(MagicLegacy), r.ID)
	for _, list := range [][]shares.LegacyShare{r.Code, r.Mask} {
		e.put(uint8(len(list)))
		for _, s := range list {
			e.put(uint16(s.X))
			e.elements(s.Y)
		}
	}
	return e.buf.Bytes()
}

// UnmarshalLegacy decodes a legacy record.
func UnmarshalLegacy(data []byte) (LegacyRecord, error) {
	var r LegacyRecord
	d := &decoder{
		in: bytes.NewReader(data),
	}
	d.magic(MagicLegacy)
	d.get(&r.ID)

	var lists [2][]shares.LegacyShare
	for i := range lists {
		var count uint8
		d.get(&count)
		for j := 0; j < int(count) && d.err == nil; j++ {
			var x uint16
			d.get(&x)
			y := d.elements()
			lists[i] = append(lists[i], shares.LegacyShare{
				X: field.Element(x),
				Y: y,
			})
		}
	}
	if d.err != nil {
		return LegacyRecord{}, d.err
	}
	r.Code = lists[0]
	r.Mask = lists[1]
	return r, nil
}

// MarshalReplicated encodes the replicated record.
func MarshalReplicated(r ReplicatedRecord) []byte {
	var e encoder
	e.put(uint32(MagicReplicated), r.ID, uint8(r.Role))
	for _, p := range []shares.Pair{r.Code, r.Mask} {
		e.elements(p.Share0)
		e.elements(p.Share1)
	}
	return e.buf.Bytes()
}

// UnmarshalReplicated decodes a replicated record.
func UnmarshalReplicated(data []byte) (ReplicatedRecord, error) {
	var r ReplicatedRecord
	d := &decoder{
		in: bytes.NewReader(data),
	}
	d.magic(MagicReplicated)
	d.get(&r.ID)

	var role uint8
	d.get(&role)
	r.Role = shares.Role(role)

	r.Code.Share0 = d.elements()
	r.Code.Share1 = d.elements()
	r.Mask.Share0 = d.elements()
	r.Mask.Share1 = d.elements()

	if d.err != nil {
		return ReplicatedRecord{}, d.err
	}
	if !r.Role.Valid() {
		return ReplicatedRecord{}, fmt.Errorf("%w: role %d", ErrInvalidData, role)
	}
	return r, nil
}
