//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package iris implements the iris code model and its field
// encoding.
package iris

import (
	"fmt"
	"math/bits"
	"math/rand/v2"
	"strings"

	"github.com/markkurossi/irismpc/field"
)

// CodeLength defines the number of bits in an iris code.
const CodeLength = 12800

// Eye identifies the eye an iris code was captured from.
type Eye int

// Eyes.
const (
	Left Eye = iota
	Right
)

var eyes = map[Eye]string{
	Left:  "left",
	Right: "right",
}

func (e Eye) String() string {
	name, ok := eyes[e]
	if ok {
		return name
	}
	return fmt.Sprintf("{Eye %d}", e)
}

// ParseEye parses the eye name.
func ParseEye(name string) (Eye, error) {
	for k, v := range eyes {
		if strings.EqualFold(v, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("iris: unknown eye '%s'", name)
}

// Code is an iris code with its occlusion mask. The mask bit is set
// for valid code bits.
type Code struct {
	Length int
	Bits   []uint64
	Mask   []uint64
}

// NewCode creates an all-zero code of the given length with all
// bits masked out.
func NewCode(length int) *Code {
	words := (length + 63) / 64
	return &Code{
		Length: length,
		Bits:   make([]uint64, words),
		Mask:   make([]uint64, words),
	}
}

// Random creates a random code. Each bit is valid with probability
// 0.9. Invalid bits are always clear.
func Random(r *rand.Rand, length int) *Code {
	code := NewCode(length)
	for i := 0; i < length; i++ {
		bit := r.IntN(2) == 1
		valid := r.IntN(10) != 0
		code.Set(i, bit && valid, valid)
	}
	return code
}

// Set sets the value and validity of bit i.
func (c *Code) Set(i int, bit, valid bool) {
	w := i / 64
	m := uint64(1) << (i % 64)
	if bit {
		c.Bits[w] |= m
	} else {
		c.Bits[w] &^= m
	}
	if valid {
		c.Mask[w] |= m
	} else {
		c.Mask[w] &^= m
	}
}

// Bit returns the value and validity of bit i.
func (c *Code) Bit(i int) (bit, valid bool) {
	w := i / 64
	m := uint64(1) << (i % 64)
	return c.Bits[w]&m != 0, c.Mask[w]&m != 0
}

// Encode encodes the code into field vectors. Valid bits encode as
// +1 for a set bit and -1 for a clear bit, invalid bits as 0. The
// mask vector holds 1 for valid and 0 for invalid bits. The dot
// product of two encoded codes is the number of matching minus the
// number of mismatching commonly valid bits, and the dot product of
// the masks is the number of commonly valid bits.
func (c *Code) Encode() (code, mask []field.Element) {
	code = make([]field.Element, c.Length)
	mask = make([]field.Element, c.Length)
	for i := 0; i < c.Length; i++ {
		bit, valid := c.Bit(i)
		if !valid {
			continue
		}
		mask[i] = 1
		if bit {
			code[i] = 1
		} else {
			code[i] = field.P - 1
		}
	}
	return
}

// Decode decodes the field vectors created by Encode.
func Decode(code, mask []field.Element) (*Code, error) {
	if len(code) != len(mask) {
		return nil, fmt.Errorf("iris: code length %d, mask length %d",
			len(code), len(mask))
	}
	c := NewCode(len(code))
	for i := range code {
		switch mask[i] {
		case 0:
			if code[i] != 0 {
				return nil, fmt.Errorf("iris: masked bit %d has value %d",
					i, code[i])
			}
		case 1:
			switch code[i] {
			case 1:
				c.Set(i, true, true)
			case field.P - 1:
				c.Set(i, false, true)
			default:
				return nil, fmt.Errorf("iris: invalid code value %d at %d",
					code[i], i)
			}
		default:
			return nil, fmt.Errorf("iris: invalid mask value %d at %d",
				mask[i], i)
		}
	}
	return c, nil
}

// Distance returns the fractional Hamming distance of the commonly
// valid bits of a and b. The ok value is false if the codes have no
// commonly valid bits.
func Distance(a, b *Code) (d float64, ok bool) {
	var diff, count int
	for i := range a.Bits {
		valid := a.Mask[i] & b.Mask[i]
		count += bits.OnesCount64(valid)
		diff += bits.OnesCount64((a.Bits[i] ^ b.Bits[i]) & valid)
	}
	if count == 0 {
		return 0, false
	}
	return float64(diff) / float64(count), true
}
