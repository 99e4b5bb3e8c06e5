package tenant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/helllo-ai/voice-bridge/internal/store"
)

// ErrUnknownTenant is returned for tenants with no config row
var ErrUnknownTenant = errors.New("unknown tenant")

// Cache is a process-wide read-mostly cache of tenant configurations. It is
// filled lazily; concurrent misses for the same tenant coalesce into a single
// authoritative fetch.
type Cache struct {
	mu      sync.RWMutex
	configs map[string]*store.TenantConfig
	group   singleflight.Group

	st            store.Store
	defaultTenant string
	logger        zerolog.Logger
}

// NewCache creates a tenant config cache over the persistence layer
func NewCache(st store.Store, defaultTenant string, logger zerolog.Logger) *Cache {
	return &Cache{
		configs:       make(map[string]*store.TenantConfig),
		st:            st,
		defaultTenant: defaultTenant,
		logger:        logger,
	}
}

// DefaultTenant returns the configured fallback tenant id
func (c *Cache) DefaultTenant() string {
	return c.defaultTenant
}

// Get returns the config for a tenant, fetching and memoizing on miss. Only
// active tenants with a usable config are returned.
func (c *Cache) Get(ctx context.Context, tenantID string) (*store.TenantConfig, error) {
	c.mu.RLock()
	cfg, ok := c.configs[tenantID]
	c.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	v, err, _ := c.group.Do(tenantID, func() (any, error) {
		fetched, err := c.st.TenantConfig(ctx, tenantID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownTenant
		}
		if err != nil {
			return nil, err
		}
		if err := validate(fetched); err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.configs[tenantID] = fetched
		c.mu.Unlock()

		c.logger.Info().
			Str("tenant", tenantID).
			Int("allowed_call_types", len(fetched.AllowedCallTypes)).
			Msg("Loaded tenant config")
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*store.TenantConfig), nil
}

// Known reports whether the tenant exists and is active. Used for override
// validation: an unknown tenant keeps the session on the default.
func (c *Cache) Known(ctx context.Context, tenantID string) bool {
	if tenantID == "" {
		return false
	}
	_, err := c.Get(ctx, tenantID)
	return err == nil
}

// Resolve returns the config for tenantID, falling back to the default
// tenant when the requested one is unknown or inactive
func (c *Cache) Resolve(ctx context.Context, tenantID string) (*store.TenantConfig, error) {
	if tenantID != "" {
		cfg, err := c.Get(ctx, tenantID)
		if err == nil {
			return cfg, nil
		}
		c.logger.Warn().
			Str("tenant", tenantID).
			Err(err).
			Str("fallback", c.defaultTenant).
			Msg("Unknown tenant, falling back to default")
	}
	return c.Get(ctx, c.defaultTenant)
}

// Preload fetches the listed tenants at startup so the first call does not
// pay the fetch latency. Failures are logged, not fatal: per-tenant config
// problems fall back to the default tenant at call time.
func (c *Cache) Preload(ctx context.Context, tenantIDs []string) {
	for _, id := range tenantIDs {
		if _, err := c.Get(ctx, id); err != nil {
			c.logger.Warn().Str("tenant", id).Err(err).Msg("Failed to preload tenant config")
		}
	}
}

func validate(cfg *store.TenantConfig) error {
	if !cfg.IsActive {
		return fmt.Errorf("tenant %q is not active: %w", cfg.TenantID, ErrUnknownTenant)
	}
	if cfg.AssistantPrompt == "" {
		return fmt.Errorf("tenant %q has no assistant prompt", cfg.TenantID)
	}
	if len(cfg.AllowedCallTypes) == 0 {
		return fmt.Errorf("tenant %q has no allowed call types", cfg.TenantID)
	}
	return nil
}
