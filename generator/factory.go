package generator

import (
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcphost", "generator")

// Factory creates and caches generators for the configured providers.
type Factory interface {
	// Default returns a generator for the default provider.
	Default() (Generator, error)
	// ByType returns a generator for the first provider of the given type.
	ByType(providerType string) (Generator, error)
	// ByName returns a generator for a provider offering one of the
	// preferred models; when none is found, it returns the default.
	ByName(preferredModels ...string) (Generator, error)
}

// New returns the generator for the default provider in cfg.
func New(cfg *Config) (Generator, error) {
	return NewFactory(cfg).Default()
}

type factory struct {
	cfg *Config

	defaultProvider *ProviderConfig
	byType          map[string]Generator
	byName          map[string]Generator
	lock            sync.Mutex
}

// NewFactory creates a generator factory.
func NewFactory(cfg *Config) Factory {
	f := &factory{
		cfg:    cfg,
		byType: make(map[string]Generator),
		byName: make(map[string]Generator),
	}

	if cfg.DefaultProvider != "" {
		for _, provider := range cfg.Providers {
			if provider.Name == cfg.DefaultProvider {
				f.defaultProvider = provider
				break
			}
		}
	}

	if f.defaultProvider == nil && len(f.cfg.Providers) > 0 {
		f.defaultProvider = f.cfg.Providers[0]
	}

	return f
}

func (f *factory) Default() (Generator, error) {
	if len(f.cfg.Providers) == 0 || f.defaultProvider == nil {
		return nil, errors.New("no providers configured")
	}

	return NewGenerator(f.defaultProvider, f.defaultProvider.DefaultModel)
}

func (f *factory) ByType(providerType string) (Generator, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if gen, ok := f.byType[providerType]; ok {
		return gen, nil
	}

	for _, cfg := range f.cfg.Providers {
		if cfg.Type == providerType {
			gen, err := NewGenerator(cfg)
			if err != nil {
				return nil, err
			}

			logger.KV(xlog.DEBUG,
				"status", "created_generator",
				"type", cfg.Type,
				"name", cfg.Name)

			f.byType[providerType] = gen
			return gen, nil
		}
	}
	return nil, errors.Errorf("provider not found for type: %s", providerType)
}

func (f *factory) ByName(preferredModels ...string) (Generator, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, modelName := range preferredModels {
		if gen, ok := f.byName[modelName]; ok {
			return gen, nil
		}

		for _, cfg := range f.cfg.Providers {
			if slices.Contains(cfg.AvailableModels, modelName) {
				gen, err := NewGenerator(cfg, preferredModels...)
				if err != nil {
					logger.KV(xlog.ERROR,
						"reason", "NewGenerator",
						"type", cfg.Type,
						"models", preferredModels,
					)
					continue
				}

				logger.KV(xlog.DEBUG,
					"status", "created_generator",
					"type", cfg.Type,
					"name", cfg.Name)

				f.byName[modelName] = gen
				return gen, nil
			}
		}
	}
	return f.Default()
}
