package snapshot

import (
	"encoding/binary"

	"github.com/frobware/go-vhoststats"
	"github.com/frobware/go-vhoststats/kmem"
)

// Counter reads a single 64-bit kernel counter.
type Counter struct {
	addr vhoststats.KernelAddress
	acc  kmem.Accessor
	buf  [vhoststats.FieldWidth]byte
}

// NewCounter opens a counter at addr. A zero address gives a disabled
// counter that always reads 0.
func NewCounter(strategy kmem.Strategy, addr vhoststats.KernelAddress) (*Counter, error) {
	c := &Counter{addr: addr}
	if addr.IsZero() {
		return c, nil
	}
	acc, err := strategy.Open(addr, vhoststats.FieldWidth)
	if err != nil {
		return nil, err
	}
	c.acc = acc
	return c, nil
}

// Address returns the counter's address.
func (c *Counter) Address() vhoststats.KernelAddress { return c.addr }

// Read returns the current value.
func (c *Counter) Read() (uint64, error) {
	if c.acc == nil {
		return 0, nil
	}
	if live, ok := c.acc.(kmem.Live); ok {
		return live.Uint64At(0)
	}
	if err := c.acc.Materialize(c.buf[:]); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(c.buf[:]), nil
}

// Close releases the accessor.
func (c *Counter) Close() error {
	if c.acc == nil {
		return nil
	}
	acc := c.acc
	c.acc = nil
	return acc.Close()
}
