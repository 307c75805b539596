//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package p2p

import (
	"fmt"

	"github.com/markkurossi/irismpc/field"
)

// SendElements sends a vector of field elements.
func (c *Conn) SendElements(vals []field.Element) error {
	if err := c.SendUint32(len(vals)); err != nil {
		return err
	}
	for _, v := range vals {
		if err := c.SendUint16(int(v)); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveElements receives a vector of field elements. It fails if
// the vector has more than max elements or if any element is not in
// the field.
func (c *Conn) ReceiveElements(max int) ([]field.Element, error) {
	n, err := c.ReceiveUint32()
	if err != nil {
		return nil, err
	}
	if n > max {
		return nil, fmt.Errorf("p2p: vector of %d elements exceeds limit %d",
			n, max)
	}
	result := make([]field.Element, n)
	for i := range result {
		v, err := c.ReceiveUint16()
		if err != nil {
			return nil, err
		}
		if v >= field.P {
			return nil, fmt.Errorf("p2p: element %d out of field", v)
		}
		result[i] = field.Element(v)
	}
	return result, nil
}
