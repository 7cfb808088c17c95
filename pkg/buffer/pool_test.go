package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPool(t *testing.T) {
	p := NewPool(16)
	assert.Equal(t, 16, p.Size())

	b := p.Get()
	assert.Len(t, b, 16)

	p.Put(b[:3])
	assert.Len(t, p.Get(), 16, "short slices come back at full length")

	p.Put(make([]byte, 4)) // dropped
	assert.Len(t, p.Get(), 16)

	assert.Equal(t, DefaultSize, NewPool(0).Size())
	assert.Len(t, Get(), DefaultSize)
}
