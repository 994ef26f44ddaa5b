package websocket

import (
	"sync"
)

// BufferPool recycles outbound payload buffers.
type BufferPool struct {
	size int
	pool *sync.Pool
}

// DefaultBufferPool returns a pool sized for typical envelope frames.
func DefaultBufferPool() *BufferPool {
	return NewBufferPool(4 << 10)
}

// NewBufferPool creates a pool whose buffers start with the given capacity.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = 4 << 10
	}
	return &BufferPool{
		size: size,
		pool: &sync.Pool{
			New: func() any {
				return make([]byte, 0, size)
			},
		},
	}
}

// Get returns a buffer with length size. Requests larger than the pooled
// capacity are served by a fresh allocation.
func (p *BufferPool) Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	buf := p.pool.Get().([]byte)
	if cap(buf) < size {
		p.pool.Put(buf[:0])
		return make([]byte, size)
	}
	return buf[:size]
}

// Put returns a buffer to the pool. Oversized buffers are dropped.
func (p *BufferPool) Put(buf []byte) {
	if buf == nil || cap(buf) > p.size*4 {
		return
	}
	p.pool.Put(buf[:0])
}
