package errcode

import (
	"fmt"
	"sync"
)

// Registry error code registry (prevents code conflicts between modules)
type Registry struct {
	mu    sync.RWMutex
	codes map[int]string // code -> module:msgKey
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{codes: make(map[int]string)}
}

// Register registers an error code in the global registry.
// Panics if the code is already taken by a different key.
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register registers an error code
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := err.Module() + ":" + err.MsgKey()
	if existing, ok := r.codes[err.Code()]; ok {
		if existing != key {
			panic(fmt.Sprintf("error code conflict: code %d is already registered as %s, cannot register as %s",
				err.Code(), existing, key))
		}
		// same code and key, idempotent
		return err
	}

	r.codes[err.Code()] = key
	return err
}

// GetAll returns a copy of all registered codes
func (r *Registry) GetAll() map[int]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make(map[int]string, len(r.codes))
	for k, v := range r.codes {
		codes[k] = v
	}
	return codes
}
