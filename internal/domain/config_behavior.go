package domain

import (
	"fmt"
	"time"
)

// FindModelByName searches for a model by its name
func (c *Config) FindModelByName(name string) (ModelDefinition, bool) {
	for _, model := range c.Models {
		if model.Name == name {
			return model, true
		}
	}
	return ModelDefinition{}, false
}

// HasModel checks if a model with the given name exists in the configuration
func (c *Config) HasModel(name string) bool {
	_, exists := c.FindModelByName(name)
	return exists
}

// PickModel resolves an override name, falling back to the default and then the first model.
func (c *Config) PickModel(override string) (ModelDefinition, error) {
	name := override
	if name == "" {
		name = c.Preferences.DefaultModel
	}
	if name == "" && len(c.Models) > 0 {
		return c.Models[0], nil
	}
	if model, ok := c.FindModelByName(name); ok {
		return model, nil
	}
	return ModelDefinition{}, fmt.Errorf("model %s not configured", name)
}

// CollaboratorTimeout returns the bound on a single collaborator call
func (c *Config) CollaboratorTimeout() time.Duration {
	if c.Collaborator.TimeoutSeconds <= 0 {
		return DefaultCollaboratorTimeout
	}
	return time.Duration(c.Collaborator.TimeoutSeconds) * time.Second
}

// VerificationParallelism returns how many codes VerifyAll checks at once
func (c *Config) VerificationParallelism() int {
	if c.Verification.Parallelism <= 0 {
		return DefaultVerificationParallelism
	}
	return c.Verification.Parallelism
}

// CacheTTL parses the cache TTL, falling back to the default on bad input
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTL == "" {
		return DefaultCacheTTL
	}
	ttl, err := time.ParseDuration(c.Cache.TTL)
	if err != nil || ttl <= 0 {
		return DefaultCacheTTL
	}
	return ttl
}

// GetCacheMaxEntries returns the maximum number of cache entries
func (c *Config) GetCacheMaxEntries() int {
	if c.Cache.MaxEntries <= 0 {
		return DefaultMaxCacheEntries
	}
	return c.Cache.MaxEntries
}

// ServerAddr returns the listen address for the HTTP API
func (c *Config) ServerAddr() string {
	if c.Server.Addr == "" {
		return DefaultServerAddr
	}
	return c.Server.Addr
}
