package embed

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultPoolSize is the default number of live embedder instances.
const DefaultPoolSize = 4

// Factory constructs an embedder for a pool key.
type Factory func(key string) (Embedder, error)

// Pool keeps up to k live embedder instances keyed by configuration,
// evicting least-recently-used instances and closing them. The
// orchestrators own one pool and share instances across runs instead
// of constructing an embedder per invocation.
type Pool struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, Embedder]
	factory Factory
}

// NewPool creates a pool with keep-k LRU eviction.
func NewPool(size int, factory Factory) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	cache, _ := lru.NewWithEvict(size, func(_ string, e Embedder) {
		_ = e.Close()
	})
	return &Pool{cache: cache, factory: factory}
}

// Get returns the pooled embedder for key, constructing it on miss.
func (p *Pool) Get(key string) (Embedder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.cache.Get(key); ok {
		return e, nil
	}
	e, err := p.factory(key)
	if err != nil {
		return nil, err
	}
	p.cache.Add(key, e)
	return e, nil
}

// Put registers an already-constructed embedder under key.
func (p *Pool) Put(key string, e Embedder) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Add(key, e)
}

// Len reports the number of live instances.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cache.Len()
}

// Close evicts and closes every pooled instance.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Purge()
	return nil
}
