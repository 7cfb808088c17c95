package buffer

import (
	"sync"
)

// DefaultSize matches the MTProto upload part size.
const DefaultSize = 512 * 1024

// Pool recycles fixed-size byte slices.
type Pool struct {
	pool sync.Pool
	size int
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

func (p *Pool) Size() int {
	return p.size
}

// Get returns a slice of exactly Size bytes. Its contents are undefined.
func (p *Pool) Get() []byte {
	return (*p.pool.Get().(*[]byte))[:p.size]
}

// Put hands a slice back. Slices that are too small are dropped.
func (p *Pool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}

var Default = NewPool(DefaultSize)

func Get() []byte {
	return Default.Get()
}

func Put(b []byte) {
	Default.Put(b)
}
