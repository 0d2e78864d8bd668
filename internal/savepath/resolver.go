// Package savepath holds the save-as choices a user made before the matching
// transfer reported its first byte.
package savepath

import "sync"

// Resolver is a URL-keyed table of pending save-path reservations. A
// reservation is consumed by the first Claim that matches it.
type Resolver struct {
	mu      sync.Mutex
	pending map[string]string
}

func NewResolver() *Resolver {
	return &Resolver{pending: make(map[string]string)}
}

// Reserve records path as the destination for url. Reserving the same url
// again replaces the earlier choice.
func (r *Resolver) Reserve(url, path string) {
	if url == "" || path == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending[url] = path
}

// Claim walks urlChain in order (origin first) and returns the path reserved
// for the first URL that has one, deleting that reservation.
func (r *Resolver) Claim(urlChain []string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range urlChain {
		if path, ok := r.pending[u]; ok {
			delete(r.pending, u)

			return path, true
		}
	}

	return "", false
}

// Flush drops every pending reservation.
func (r *Resolver) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.pending)
}

func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.pending)
}
