package hako

import (
	"reflect"
	"unsafe"

	"github.com/edwinsyarief/hako/internal/assert"
)

// ChunkPool is a paged arena of fixed-size elements. Every page holds
// chunkSize elements of one type and pages are never released one by one:
// a page that is no longer needed goes onto a free stack and is handed out
// again by the next AcquireChunk. All pages go away together with the pool.
//
// Pages are allocated as typed Go slices so the garbage collector keeps
// seeing pointers stored inside components.
//
// A ChunkPool is not safe for concurrent use. It is only touched by the
// goroutine that performs structural mutation.
type ChunkPool struct {
	typ        reflect.Type
	pages      []unsafe.Pointer // every page ever allocated, in allocation order
	free       []unsafe.Pointer // stack of pages ready to be acquired
	elemSize   uintptr
	chunkSize  int
	expandSize int
}

// NewChunkPool creates an empty pool for elements of typ. chunkSize is the
// number of elements per page and expandSize the number of pages reserved
// by a single allocation when the free stack runs dry.
func NewChunkPool(typ reflect.Type, chunkSize, expandSize int) *ChunkPool {
	assert.That(typ != nil, "chunk pool: nil element type")
	assert.That(chunkSize > 0, "chunk pool: chunk size must be positive, got %d", chunkSize)
	if expandSize < 1 {
		expandSize = 1
	}
	return &ChunkPool{
		typ:        typ,
		elemSize:   typ.Size(),
		chunkSize:  chunkSize,
		expandSize: expandSize,
		pages:      make([]unsafe.Pointer, 0, expandSize),
		free:       make([]unsafe.Pointer, 0, expandSize),
	}
}

// AcquireChunk returns the base address of a page of chunkSize elements.
// A recycled page is reused first; otherwise expandSize fresh pages are
// allocated at once and the spares are kept for later calls.
func (p *ChunkPool) AcquireChunk() unsafe.Pointer {
	if len(p.free) == 0 {
		p.expand()
	}
	last := len(p.free) - 1
	page := p.free[last]
	p.free = p.free[:last]
	return page
}

// Recycle puts a page previously returned by AcquireChunk back onto the free
// stack. The caller must have destructed every element on it.
func (p *ChunkPool) Recycle(page unsafe.Pointer) {
	p.free = append(p.free, page)
}

// ElementAt returns the address of element idx counted across every page
// the pool has allocated, in allocation order. Pages are shared between
// archetypes, so idx is a pool-wide position and not a storage slot;
// storages resolve slots through their own page lists. It does no bounds
// checking.
func (p *ChunkPool) ElementAt(idx int) unsafe.Pointer {
	return unsafe.Add(p.pages[idx/p.chunkSize], uintptr(idx%p.chunkSize)*p.elemSize)
}

// Type returns the element type.
func (p *ChunkPool) Type() reflect.Type { return p.typ }

// ElemSize returns the byte size of one element.
func (p *ChunkPool) ElemSize() uintptr { return p.elemSize }

// ChunkSize returns the number of elements per page.
func (p *ChunkPool) ChunkSize() int { return p.chunkSize }

// Pages returns the number of pages allocated so far.
func (p *ChunkPool) Pages() int { return len(p.pages) }

// Free returns the number of pages waiting on the free stack.
func (p *ChunkPool) Free() int { return len(p.free) }

// expand allocates expandSize pages in one typed slice.
func (p *ChunkPool) expand() {
	n := p.chunkSize * p.expandSize
	base := reflect.MakeSlice(reflect.SliceOf(p.typ), n, n).UnsafePointer()
	stride := uintptr(p.chunkSize) * p.elemSize
	for i := 0; i < p.expandSize; i++ {
		p.pages = append(p.pages, unsafe.Add(base, uintptr(i)*stride))
	}
	// push in reverse so pages are handed out in allocation order
	for i := p.expandSize - 1; i >= 0; i-- {
		p.free = append(p.free, unsafe.Add(base, uintptr(i)*stride))
	}
}
