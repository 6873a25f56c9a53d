package kmem

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/frobware/go-vhoststats"
)

// PageSpan is the page-aligned mapping that covers a byte range.
type PageSpan struct {
	// Base is the page-aligned start, the mmap offset.
	Base vhoststats.KernelAddress
	// Offset is the distance from Base to the requested address.
	Offset int
	// Length is the mapping length, a whole number of pages.
	Length int
}

// SpanFor computes the pages covering [addr, addr+length). The span
// may cover several pages when the range crosses a page boundary.
func SpanFor(addr vhoststats.KernelAddress, length, pageSize int) (PageSpan, error) {
	if pageSize <= 0 || bits.OnesCount(uint(pageSize)) != 1 {
		return PageSpan{}, fmt.Errorf("page size %d is not a power of two", pageSize)
	}
	if err := checkLength(length); err != nil {
		return PageSpan{}, err
	}
	if uint64(addr) > math.MaxUint64-uint64(length) {
		return PageSpan{}, fmt.Errorf("range %s+%d wraps the address space", addr, length)
	}

	mask := uint64(pageSize - 1)
	base := uint64(addr) &^ mask
	offset := int(uint64(addr) - base)
	pages := (offset + length + pageSize - 1) / pageSize

	return PageSpan{
		Base:   vhoststats.KernelAddress(base),
		Offset: offset,
		Length: pages * pageSize,
	}, nil
}

// Pages returns the number of pages in the span.
func (s PageSpan) Pages(pageSize int) int {
	return s.Length / pageSize
}
