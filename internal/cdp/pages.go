package cdp

import (
	"sort"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// PageInfo describes an open tab.
type PageInfo struct {
	TargetID string    `json:"target_id"`
	Owner    string    `json:"owner"`
	URL      string    `json:"url,omitempty"`
	OpenedAt time.Time `json:"opened_at"`
}

// PageRegistry maps CDP target IDs to the collector that opened them.
type PageRegistry struct {
	pages map[target.ID]*PageInfo
	mu    sync.RWMutex
}

func NewPageRegistry() *PageRegistry {
	return &PageRegistry{pages: make(map[target.ID]*PageInfo)}
}

func (r *PageRegistry) Register(id target.ID, owner string) PageInfo {
	info := &PageInfo{TargetID: string(id), Owner: owner, OpenedAt: time.Now().UTC()}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[id] = info
	return *info
}

// SetURL records the page's current location. Unknown ids are ignored.
func (r *PageRegistry) SetURL(id target.ID, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.pages[id]; ok {
		info.URL = url
	}
}

func (r *PageRegistry) Get(id target.ID) (PageInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.pages[id]
	if !ok {
		return PageInfo{}, false
	}
	return *info, true
}

func (r *PageRegistry) Remove(id target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pages, id)
}

// List returns the open pages, oldest first.
func (r *PageRegistry) List() []PageInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PageInfo, 0, len(r.pages))
	for _, info := range r.pages {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].TargetID < out[j].TargetID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

func (r *PageRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}
