package providers

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds adapters by name so chains can be assembled from config.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range adapters {
		r.Add(a)
	}
	return r
}

// Add registers a, replacing any adapter with the same name.
func (r *Registry) Add(a Adapter) {
	if a == nil {
		return
	}
	r.adapters[strings.ToLower(a.Name())] = a
}

// Names lists registered adapters in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Chains resolves per-capability adapter orders. Unknown names are an error
// so a typo in deployment config fails at startup.
func (r *Registry) Chains(order map[string][]string) (map[string][]Adapter, error) {
	chains := make(map[string][]Adapter, len(order))
	for capability, names := range order {
		list := make([]Adapter, 0, len(names))
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			key := strings.ToLower(strings.TrimSpace(name))
			a, ok := r.adapters[key]
			if !ok {
				return nil, fmt.Errorf("capability %s: unknown provider %q", capability, name)
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			list = append(list, a)
		}
		chains[capability] = list
	}
	return chains, nil
}
