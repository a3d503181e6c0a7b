// Package notify keeps the sticky per-site failure notices that failed
// pushes raise and the next successful push clears.
package notify

import (
	"sort"
	"sync"
	"time"
)

// idPrefix namespaces notification IDs for this service.
const idPrefix = "ratewriter_push_failure"

// Notifier is what the publish pipeline needs: raise a sticky warning for a
// site, or clear it. Both are idempotent.
type Notifier interface {
	Warn(siteID, message string)
	Dismiss(siteID string)
}

// Notification is one active sticky notice.
type Notification struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Registry is an in-memory Notifier. State does not survive a restart; the
// durable record of a failed push lives in storage.
type Registry struct {
	mu     sync.Mutex
	active map[string]Notification

	now func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]Notification),
		now:    time.Now,
	}
}

// NotificationID returns the sticky notice ID for a site.
func NotificationID(siteID string) string {
	if siteID == "" {
		return idPrefix
	}
	return idPrefix + "_" + siteID
}

// Warn raises (or replaces) the sticky notice for the site.
func (r *Registry) Warn(siteID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[siteID] = Notification{
		ID:        NotificationID(siteID),
		SiteID:    siteID,
		Message:   message,
		CreatedAt: r.now(),
	}
}

// Dismiss clears the site's sticky notice. Dismissing a site with no active
// notice is a no-op.
func (r *Registry) Dismiss(siteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, siteID)
}

// Active returns the current notices ordered by site ID.
func (r *Registry) Active() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Notification, 0, len(r.active))
	for _, n := range r.active {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out
}
