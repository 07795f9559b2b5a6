package analyzer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kushal45/reviewgraph/internal/types"
)

// Registry maps language tags to an ordered list of analyzers.
//
// Analyzers are registered once; each language's list follows registration
// order unless SetOrder overrides it.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer
	order     map[types.Language][]string
	disabled  map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		analyzers: make(map[string]Analyzer),
		order:     make(map[types.Language][]string),
		disabled:  make(map[string]bool),
	}
}

// Register adds a for every language it declares.
func (r *Registry) Register(a Analyzer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if name == "" {
		return fmt.Errorf("analyzer name cannot be empty")
	}
	if _, exists := r.analyzers[name]; exists {
		return fmt.Errorf("analyzer %q already registered", name)
	}
	r.analyzers[name] = a
	for _, lang := range a.Languages() {
		r.order[lang] = append(r.order[lang], name)
	}
	return nil
}

// SetOrder replaces the analyzer list of lang. Every name must be registered
// and support lang.
func (r *Registry) SetOrder(lang types.Language, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		a, ok := r.analyzers[name]
		if !ok {
			return fmt.Errorf("unknown analyzer %q for %s", name, lang)
		}
		if !supports(a, lang) {
			return fmt.Errorf("analyzer %q does not support %s", name, lang)
		}
	}
	r.order[lang] = append([]string(nil), names...)
	return nil
}

// Disable removes analyzers from every language list without unregistering
// them. Unknown names are an error.
func (r *Registry) Disable(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		if _, ok := r.analyzers[name]; !ok {
			return fmt.Errorf("unknown analyzer %q", name)
		}
		r.disabled[name] = true
	}
	return nil
}

// For returns the enabled analyzers for lang, in order.
func (r *Registry) For(lang types.Language) []Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Analyzer
	for _, name := range r.order[lang] {
		if r.disabled[name] {
			continue
		}
		out = append(out, r.analyzers[name])
	}
	return out
}

// Get returns the analyzer registered as name.
func (r *Registry) Get(name string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyzers[name]
	return a, ok
}

// Names lists registered analyzers alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.analyzers))
	for name := range r.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enabled reports whether name is registered and not disabled.
func (r *Registry) Enabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.analyzers[name]
	return ok && !r.disabled[name]
}

func supports(a Analyzer, lang types.Language) bool {
	for _, l := range a.Languages() {
		if l == lang {
			return true
		}
	}
	return false
}
