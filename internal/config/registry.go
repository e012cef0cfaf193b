package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/orato/pkg/provider/aligner"
	"github.com/MrWong99/orato/pkg/provider/phonemes"
	"github.com/MrWong99/orato/pkg/provider/recognizer"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	recognizer map[string]func(ProviderEntry) (recognizer.Recognizer, error)
	aligner    map[string]func(ProviderEntry) (aligner.ForcedAligner, error)
	extractor  map[string]func(ProviderEntry) (phonemes.Extractor, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognizer: make(map[string]func(ProviderEntry) (recognizer.Recognizer, error)),
		aligner:    make(map[string]func(ProviderEntry) (aligner.ForcedAligner, error)),
		extractor:  make(map[string]func(ProviderEntry) (phonemes.Extractor, error)),
	}
}

// RegisterRecognizer registers a recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRecognizer(name string, factory func(ProviderEntry) (recognizer.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizer[name] = factory
}

// RegisterAligner registers a forced aligner factory under name.
func (r *Registry) RegisterAligner(name string, factory func(ProviderEntry) (aligner.ForcedAligner, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aligner[name] = factory
}

// RegisterExtractor registers a phoneme extractor factory under name.
func (r *Registry) RegisterExtractor(name string, factory func(ProviderEntry) (phonemes.Extractor, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractor[name] = factory
}

// CreateRecognizer instantiates a recognizer using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateRecognizer(entry ProviderEntry) (recognizer.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.recognizer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateAligner instantiates a forced aligner using the factory registered under entry.Name.
func (r *Registry) CreateAligner(entry ProviderEntry) (aligner.ForcedAligner, error) {
	r.mu.RLock()
	factory, ok := r.aligner[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: aligner/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateExtractor instantiates a phoneme extractor using the factory registered under entry.Name.
func (r *Registry) CreateExtractor(entry ProviderEntry) (phonemes.Extractor, error) {
	r.mu.RLock()
	factory, ok := r.extractor[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: extractor/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered provider names per kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"recognizer": sortedKeys(r.recognizer),
		"aligner":    sortedKeys(r.aligner),
		"extractor":  sortedKeys(r.extractor),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
