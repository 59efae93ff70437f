package audiobridge

import (
	"fmt"
	"sync"
)

// Endpoint is a borrowed handle to the media endpoint owned by the
// surrounding telephony stack. The bridge never takes ownership: the caller
// guarantees the endpoint outlives every bridge record that references it.
type Endpoint interface {
	// NewPool allocates a named memory pool of the given initial size and
	// growth increment. The returned pool is owned by the caller and must
	// be released when no longer needed.
	NewPool(name string, size, increment int) (Pool, error)
}

// Pool is a fixed-size memory pool acquired from an Endpoint.
type Pool interface {
	Name() string
	// Get returns a buffer of the pool's increment size.
	Get() []byte
	// Put returns a buffer obtained from Get.
	Put(buf []byte)
	// Release frees the pool. The pool must not be used afterwards.
	Release()
}

// BufferEndpoint is the production Endpoint implementation, handing out
// byte-buffer pools for transient media and command buffers.
type BufferEndpoint struct{}

// NewBufferEndpoint creates a BufferEndpoint.
func NewBufferEndpoint() *BufferEndpoint { return &BufferEndpoint{} }

// NewPool allocates a buffer pool. size and increment must be positive.
func (e *BufferEndpoint) NewPool(name string, size, increment int) (Pool, error) {
	if size <= 0 || increment <= 0 {
		return nil, fmt.Errorf("pool %s: invalid size %d/%d", name, size, increment)
	}
	p := &bufferPool{name: name, increment: increment}
	p.pool.New = func() interface{} { return make([]byte, increment) }
	return p, nil
}

type bufferPool struct {
	name      string
	increment int
	pool      sync.Pool
}

func (p *bufferPool) Name() string { return p.name }

func (p *bufferPool) Get() []byte { return p.pool.Get().([]byte) }

func (p *bufferPool) Put(buf []byte) {
	if cap(buf) < p.increment {
		return
	}
	p.pool.Put(buf[:p.increment])
}

func (p *bufferPool) Release() {
	// sync.Pool contents are reclaimed by the runtime; dropping the New
	// function prevents further allocation through a released pool.
	p.pool.New = nil
}
