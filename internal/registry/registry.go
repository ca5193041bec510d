// Package registry owns the configured source set. Credibility is the only
// mutable field and is guarded per source, so feedback updates for one
// source never contend with reads or updates for another.
package registry

import (
	"log"
	"sort"
	"sync"

	"github.com/mohammad-safakhou/prosora/config"
	"github.com/mohammad-safakhou/prosora/models"
)

type entry struct {
	mu  sync.Mutex
	src models.Source
}

// Registry holds the configured sources and the matching vocabulary.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	vocab   config.Vocabulary
	logger  *log.Logger
}

// New builds a registry from an already-validated source list.
func New(sources []models.Source, vocab config.Vocabulary, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(log.Writer(), "[REGISTRY] ", log.LstdFlags)
	}
	r := &Registry{entries: make(map[string]*entry), vocab: vocab, logger: logger}
	for _, src := range sources {
		r.entries[src.ID] = &entry{src: src}
	}
	return r
}

// Vocabulary returns the current extraction vocabulary.
func (r *Registry) Vocabulary() config.Vocabulary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.vocab
}

// Get returns the source with the given id.
func (r *Registry) Get(id string) (models.Source, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return models.Source{}, models.ErrSourceNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src, nil
}

// Snapshot returns all sources ordered by id.
func (r *Registry) Snapshot() []models.Source {
	r.mu.RLock()
	out := make([]models.Source, 0, len(r.entries))
	for _, e := range r.entries {
		e.mu.Lock()
		out = append(out, e.src)
		e.mu.Unlock()
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ForDomains returns sources whose tags intersect the given domains. An
// empty domain set selects everything.
func (r *Registry) ForDomains(domains []models.Domain) []models.Source {
	var out []models.Source
	for _, src := range r.Snapshot() {
		if src.HasDomain(domains) {
			out = append(out, src)
		}
	}
	return out
}

// AdjustCredibility nudges a source's credibility by delta, clamped to
// [0,1], and returns the new value. This is the only mutation path.
func (r *Registry) AdjustCredibility(id string, delta float64) (float64, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return 0, models.ErrSourceNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.src.Credibility = clamp01(e.src.Credibility + delta)
	return e.src.Credibility, nil
}

// SetCredibility overwrites a source's credibility, clamped to [0,1]. Used
// when restoring learned weights from the store at startup.
func (r *Registry) SetCredibility(id string, value float64) error {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return models.ErrSourceNotFound
	}
	e.mu.Lock()
	e.src.Credibility = clamp01(value)
	e.mu.Unlock()
	return nil
}

// Reload swaps in a freshly parsed source list. Sources whose id survives
// the reload keep their learned credibility; the file only wins for new ids.
func (r *Registry) Reload(sources []models.Source, vocab config.Vocabulary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[string]*entry, len(sources))
	for _, src := range sources {
		if old, ok := r.entries[src.ID]; ok {
			old.mu.Lock()
			src.Credibility = old.src.Credibility
			old.mu.Unlock()
		}
		next[src.ID] = &entry{src: src}
	}
	r.entries = next
	r.vocab = vocab
	r.logger.Printf("registry reloaded: %d sources", len(next))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
