// Package generator abstracts the language model that drives conversations.
// Concrete backends live outside this module and register their constructors
// by provider type, so a host links only the providers it uses.
package generator

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

//go:generate mockgen -source=generator.go -destination=../mocks/mockgenerator/generator_mock.gen.go -package mockgenerator

// Builder accumulates the messages of a single generation request.
// A Builder is single-use and not safe for concurrent use.
type Builder interface {
	// System appends a system message.
	System(content string) Builder
	// User appends a user message.
	User(content string) Builder
	// Assistant appends an assistant message.
	Assistant(content string) Builder
	// Execute sends the accumulated messages and returns the completion text.
	Execute(ctx context.Context) (string, error)
}

// Generator produces completions for the conversation engine.
type Generator interface {
	// Name identifies the backend and model, for logs.
	Name() string
	// Builder starts a new request.
	Builder() Builder
}

// Constructor creates a Generator from a provider configuration.
// preferredModels narrows the model choice, see ProviderConfig.FindModel.
type Constructor func(cfg *ProviderConfig, preferredModels ...string) (Generator, error)

var (
	regLock      sync.RWMutex
	constructors = map[string]Constructor{}
)

// Register makes a backend constructor available under the provider type,
// e.g. OPEN_AI, ANTHROPIC. Provider packages call it from init;
// a later Register for the same type replaces the earlier one.
func Register(providerType string, ctor Constructor) {
	regLock.Lock()
	defer regLock.Unlock()
	constructors[strings.ToUpper(providerType)] = ctor
}

// NewGenerator is a wrapper for CreateGenerator to allow for overriding the default implementation.
var NewGenerator = CreateGenerator

// CreateGenerator creates a Generator using the constructor registered for cfg.Type.
func CreateGenerator(cfg *ProviderConfig, preferredModels ...string) (Generator, error) {
	provType := strings.ToUpper(cfg.Type)

	regLock.RLock()
	ctor, ok := constructors[provType]
	regLock.RUnlock()

	if !ok {
		return nil, errors.Errorf("unsupported provider type: %s", provType)
	}
	return ctor(cfg, preferredModels...)
}
