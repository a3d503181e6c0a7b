package storage

import (
	"context"
	"errors"

	"github.com/ratewriter/ratewriter/pkg/types"
)

// ErrNotFound is returned when a requested site or push result does not
// exist. Callers should match it with errors.Is since providers wrap it
// with detail.
var ErrNotFound = errors.New("not found")

// Database defines the interface for persisting site configurations and
// push outcomes.
type Database interface {
	// Sites
	// UpsertSiteConfig adds or replaces a site configuration. The plaintext
	// token never survives persistence; only the sealed token does.
	UpsertSiteConfig(ctx context.Context, site types.SiteConfig) error
	GetSiteConfig(ctx context.Context, siteID string) (types.SiteConfig, error)
	// ListSiteIDs returns all configured site IDs in lexicographic order.
	ListSiteIDs(ctx context.Context) ([]string, error)
	// DeleteSiteConfig removes a site configuration. Deleting a missing
	// site is not an error, and recorded push history is retained.
	DeleteSiteConfig(ctx context.Context, siteID string) error

	// Push history
	RecordPushResult(ctx context.Context, siteID string, res types.PushResult) error
	// GetLastPushResult returns the most recent result recorded for the
	// site, or ErrNotFound if none exists.
	GetLastPushResult(ctx context.Context, siteID string) (types.PushResult, error)

	// Lifecycle
	Close() error
}
