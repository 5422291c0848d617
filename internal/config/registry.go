package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lschiller/recapd/pkg/provider/embeddings"
	"github.com/lschiller/recapd/pkg/provider/llm"
	"github.com/lschiller/recapd/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// factorySet holds the registered constructors for one provider kind.
// Registering a name twice overwrites the earlier factory.
type factorySet[T any] struct {
	kind string
	mu   sync.RWMutex
	m    map[string]func(ProviderEntry) (T, error)
}

func newFactorySet[T any](kind string) *factorySet[T] {
	return &factorySet[T]{kind: kind, m: make(map[string]func(ProviderEntry) (T, error))}
}

func (s *factorySet[T]) register(name string, factory func(ProviderEntry) (T, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[name] = factory
}

func (s *factorySet[T]) create(entry ProviderEntry) (T, error) {
	s.mu.RLock()
	factory, ok := s.m[entry.Name]
	s.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, s.kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to constructor functions for each provider
// kind. Safe for concurrent use.
type Registry struct {
	llm        *factorySet[llm.Provider]
	stt        *factorySet[stt.Provider]
	embeddings *factorySet[embeddings.Provider]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        newFactorySet[llm.Provider]("llm"),
		stt:        newFactorySet[stt.Provider]("stt"),
		embeddings: newFactorySet[embeddings.Provider]("embeddings"),
	}
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.llm.register(name, factory)
}

// RegisterSTT registers an STT provider factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.stt.register(name, factory)
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Provider, error)) {
	r.embeddings.register(name, factory)
}

// CreateLLM instantiates the LLM provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] when the name is unknown.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	return r.llm.create(entry)
}

// CreateSTT instantiates the STT provider registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	return r.stt.create(entry)
}

// CreateEmbeddings instantiates the embeddings provider registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.create(entry)
}
