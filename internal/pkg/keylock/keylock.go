package keylock

import "sync"

// Registry hands out one mutex per key so that mutations on the same order id
// or table number serialize, while unrelated keys proceed in parallel. Locks
// are kept for the registry's lifetime; the key space is bounded by the
// number of orders and tables a single service instance handles.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (r *Registry) Lock(key string) func() {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
