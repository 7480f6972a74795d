package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/castmix/pkg/provider/llm"
	"github.com/MrWong99/castmix/pkg/provider/stt"
	"github.com/MrWong99/castmix/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is a name-keyed set of factories for one provider kind.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func (f *factories[T]) create(entry ProviderEntry) (T, error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("config: create %s/%q: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

// Registry maps provider names to constructors for each provider kind. It is
// safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	tts factories[tts.Provider]
	llm factories[llm.Provider]
	stt factories[stt.Transcriber]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		tts: factories[tts.Provider]{kind: "tts", m: make(map[string]Factory[tts.Provider])},
		llm: factories[llm.Provider]{kind: "llm", m: make(map[string]Factory[llm.Provider])},
		stt: factories[stt.Transcriber]{kind: "stt", m: make(map[string]Factory[stt.Transcriber])},
	}
}

// RegisterTTS registers a TTS factory under name, replacing any previous one.
func (r *Registry) RegisterTTS(name string, factory Factory[tts.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = factory
}

// RegisterLLM registers an LLM factory under name.
func (r *Registry) RegisterLLM(name string, factory Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// RegisterSTT registers a transcription factory under name.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Transcriber]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = factory
}

// CreateTTS builds the TTS provider registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(entry)
}

// CreateLLM builds the LLM provider registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.llm.create(entry)
}

// CreateSTT builds the transcriber registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// Names returns the sorted registered names for kind ("tts", "llm" or "stt").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "tts":
		names = keys(r.tts.m)
	case "llm":
		names = keys(r.llm.m)
	case "stt":
		names = keys(r.stt.m)
	}
	slices.Sort(names)
	return names
}

func keys[T any](m map[string]Factory[T]) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
