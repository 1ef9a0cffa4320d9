package conversation

import (
	"fmt"
	"sort"
	"sync"
)

type Registry struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

func NewRegistry(flows ...*Flow) (*Registry, error) {
	r := &Registry{flows: make(map[string]*Flow)}
	for _, f := range flows {
		if err := r.Register(f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds f under its command and aliases. A name may belong to one flow only.
func (r *Registry) Register(f *Flow) error {
	names := append([]string{f.Command}, f.Aliases...)
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if _, ok := r.flows[n]; ok {
			return fmt.Errorf("conversation %s already registered", n)
		}
	}
	for _, n := range names {
		r.flows[n] = f
	}
	return nil
}

func (r *Registry) Lookup(command string) (*Flow, bool) {
	command = normalizeCommand(command)
	r.mu.RLock()
	f, ok := r.flows[command]
	r.mu.RUnlock()
	return f, ok
}

// Flows lists each registered flow once, ordered by command.
func (r *Registry) Flows() []*Flow {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[*Flow]bool)
	var out []*Flow
	for _, f := range r.flows {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}
