package buffer

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"
)

const (
	// DefaultAlignment suits 256-bit vector loads.
	DefaultAlignment = 32
	// MaxAlignment is the largest supported block alignment in bytes.
	MaxAlignment = 4096

	floatSize = int(unsafe.Sizeof(float64(0)))
)

var (
	// ErrInvalidSize is returned for negative or oversized requests.
	ErrInvalidSize = errors.New("buffer: invalid allocation size")
	// ErrInvalidAlignment is returned when alignment is not a power of two
	// in [1, MaxAlignment].
	ErrInvalidAlignment = errors.New("buffer: invalid alignment")
	// ErrDoubleFree is returned when a block is released twice.
	ErrDoubleFree = errors.New("buffer: block already freed")
	// ErrForeignBlock is returned when a block is released to an allocator
	// that did not create it.
	ErrForeignBlock = errors.New("buffer: block belongs to another allocator")
)

// Block is an aligned memory region owned by whoever allocated it.
type Block struct {
	owner   *Allocator
	key     classKey
	backing []float64
	data    []float64
	size    int
	freed   bool
}

// Bytes returns the block as a byte slice of the requested size.
func (b *Block) Bytes() []byte {
	if b.size == 0 {
		return nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(&b.data[0])), b.size)
}

// Floats returns the block as float64 samples. Its length is the requested
// size rounded up to whole samples.
func (b *Block) Floats() []float64 {
	return b.data
}

// Size returns the requested size in bytes.
func (b *Block) Size() int {
	return b.size
}

// Aligned reports whether the block start is a multiple of alignment.
func (b *Block) Aligned(alignment int) bool {
	if len(b.data) == 0 {
		return true
	}

	return uintptr(unsafe.Pointer(&b.data[0]))%uintptr(alignment) == 0
}

type classKey struct {
	class     uint8
	alignLog2 uint8
}

// Allocator is a thread-safe size-class arena for audio buffers and kernel
// state. Freed blocks go back to per-class free lists and are reused by
// later allocations of the same class and alignment.
type Allocator struct {
	mu    sync.Mutex
	free  map[classKey][]*Block
	inUse atomic.Int64
	live  atomic.Int64
	total atomic.Uint64
}

// NewAllocator returns an empty Allocator.
func NewAllocator() *Allocator {
	return &Allocator{free: make(map[classKey][]*Block)}
}

// Allocate returns a zeroed block of size bytes aligned to alignment bytes.
// An alignment of 0 selects DefaultAlignment.
func (a *Allocator) Allocate(size, alignment int) (*Block, error) {
	if size < 0 || size > 1<<40 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	if alignment == 0 {
		alignment = DefaultAlignment
	}

	if alignment < 0 || alignment > MaxAlignment || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAlignment, alignment)
	}

	n := (size + floatSize - 1) / floatSize
	key := classKey{
		class:     uint8(bits.Len(uint(n))),
		alignLog2: uint8(bits.TrailingZeros(uint(alignment))),
	}

	b := a.reuse(key)
	if b == nil {
		b = a.grow(key, alignment)
	}

	b.size = size
	b.data = b.data[:n]
	clear(b.data)

	a.inUse.Add(int64(size))
	a.live.Add(1)
	a.total.Add(1)

	return b, nil
}

// AllocateFloats is a convenience wrapper returning a block of n samples.
func (a *Allocator) AllocateFloats(n int) (*Block, error) {
	return a.Allocate(n*floatSize, DefaultAlignment)
}

// Free releases b back to the allocator.
func (a *Allocator) Free(b *Block) error {
	if b == nil {
		return nil
	}

	if b.owner != a {
		return ErrForeignBlock
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if b.freed {
		return ErrDoubleFree
	}

	b.freed = true
	a.free[b.key] = append(a.free[b.key], b)
	a.inUse.Add(-int64(b.size))
	a.live.Add(-1)

	return nil
}

// InUse returns the number of bytes currently allocated.
func (a *Allocator) InUse() int64 {
	return a.inUse.Load()
}

// Live returns the number of blocks currently allocated.
func (a *Allocator) Live() int64 {
	return a.live.Load()
}

// Allocations returns the total number of successful allocations.
func (a *Allocator) Allocations() uint64 {
	return a.total.Load()
}

func (a *Allocator) reuse(key classKey) *Block {
	a.mu.Lock()
	defer a.mu.Unlock()

	list := a.free[key]
	if len(list) == 0 {
		return nil
	}

	b := list[len(list)-1]
	a.free[key] = list[:len(list)-1]
	b.freed = false

	return b
}

func (a *Allocator) grow(key classKey, alignment int) *Block {
	capacity := 0
	if key.class > 0 {
		capacity = 1 << key.class
	}

	slack := alignment / floatSize
	backing := make([]float64, capacity+slack+1)

	offset := 0
	if alignment > floatSize {
		addr := uintptr(unsafe.Pointer(&backing[0]))
		if rem := addr % uintptr(alignment); rem != 0 {
			offset = int((uintptr(alignment) - rem) / uintptr(floatSize))
		}
	}

	return &Block{
		owner:   a,
		key:     key,
		backing: backing,
		data:    backing[offset : offset+capacity : offset+capacity],
	}
}
