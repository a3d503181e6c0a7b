package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ratewriter/ratewriter/pkg/types"
)

// MemoryProvider implements the Database interface entirely in process
// memory. It backs tests, local development and the one-shot CLI, where
// nothing needs to outlive the process.
type MemoryProvider struct {
	mu     sync.RWMutex
	sites  map[string]types.SiteConfig
	pushes map[string][]types.PushResult
}

// NewMemory returns an empty in-memory provider.
func NewMemory() *MemoryProvider {
	return &MemoryProvider{
		sites:  make(map[string]types.SiteConfig),
		pushes: make(map[string][]types.PushResult),
	}
}

func (m *MemoryProvider) UpsertSiteConfig(_ context.Context, site types.SiteConfig) error {
	if site.SiteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	// Match the durable providers: the plaintext token is not persisted.
	site.Token = ""
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[site.SiteID] = site
	return nil
}

func (m *MemoryProvider) GetSiteConfig(_ context.Context, siteID string) (types.SiteConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	site, ok := m.sites[siteID]
	if !ok {
		return types.SiteConfig{}, fmt.Errorf("%w: site %s", ErrNotFound, siteID)
	}
	return site, nil
}

func (m *MemoryProvider) ListSiteIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sites))
	for id := range m.sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryProvider) DeleteSiteConfig(_ context.Context, siteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sites, siteID)
	return nil
}

func (m *MemoryProvider) RecordPushResult(_ context.Context, siteID string, res types.PushResult) error {
	if siteID == "" {
		return fmt.Errorf("siteID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes[siteID] = append(m.pushes[siteID], res)
	return nil
}

func (m *MemoryProvider) GetLastPushResult(_ context.Context, siteID string) (types.PushResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := m.pushes[siteID]
	if len(results) == 0 {
		return types.PushResult{}, fmt.Errorf("%w: no push results for site %s", ErrNotFound, siteID)
	}
	return results[len(results)-1], nil
}

func (m *MemoryProvider) Close() error {
	return nil
}
