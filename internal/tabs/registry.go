// Package tabs tracks open pages and reads their content on the
// coordinator's behalf. Page contexts announce themselves through tab
// updates; only the coordinator ever reaches into a page.
package tabs

import (
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"pagepilot/internal/domain"
)

// ErrNoWebPage is returned when no qualifying tab can be resolved.
var ErrNoWebPage = errors.New("tabs: no web page found")

// ownScheme marks the coordinator's own surfaces; their tabs never
// qualify as "the current web page".
const ownScheme = "pagepilot"

// Registry is the in-memory set of known tabs.
type Registry struct {
	mu   sync.RWMutex
	tabs map[int64]domain.Tab
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tabs: make(map[int64]domain.Tab)}
}

// Upsert inserts or replaces a tab record. A record with a zero access
// time is stamped with the current time. Marking a tab active clears the
// active flag on every other tab.
func (r *Registry) Upsert(tab domain.Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tab.LastAccessed.IsZero() {
		tab.LastAccessed = time.Now()
	}
	if tab.Active {
		for id, t := range r.tabs {
			if t.Active {
				t.Active = false
				r.tabs[id] = t
			}
		}
	}
	r.tabs[tab.ID] = tab
}

// Touch bumps a tab's access time and marks it active.
func (r *Registry) Touch(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tab, ok := r.tabs[id]
	if !ok {
		return
	}
	for tid, t := range r.tabs {
		if t.Active {
			t.Active = false
			r.tabs[tid] = t
		}
	}
	tab.Active = true
	tab.LastAccessed = time.Now()
	r.tabs[id] = tab
}

// Remove drops a tab record. Removing an unknown id is a no-op.
func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, id)
}

// Get returns the tab with the given id, if known.
func (r *Registry) Get(id int64) (domain.Tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tabs[id]
	return t, ok
}

// List returns all known tabs in unspecified order.
func (r *Registry) List() []domain.Tab {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Tab, 0, len(r.tabs))
	for _, t := range r.tabs {
		out = append(out, t)
	}
	return out
}

// Resolve picks "the current web page" from the given tab set: the
// coordinator's own surfaces are excluded, the active tab wins, otherwise the most recently
// accessed qualifying tab; an empty field resolves to ErrNoWebPage.
func Resolve(tabs []domain.Tab) (domain.Tab, error) {
	qualifying := tabs[:0:0]
	for _, t := range tabs {
		if qualifies(t) {
			qualifying = append(qualifying, t)
		}
	}
	if len(qualifying) == 0 {
		return domain.Tab{}, ErrNoWebPage
	}

	for _, t := range qualifying {
		if t.Active {
			return t, nil
		}
	}

	sort.Slice(qualifying, func(i, j int) bool {
		return qualifying[i].LastAccessed.After(qualifying[j].LastAccessed)
	})
	return qualifying[0], nil
}

func qualifies(t domain.Tab) bool {
	raw := strings.TrimSpace(t.URL)
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != ownScheme && u.Scheme != ""
}
