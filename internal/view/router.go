package view

import (
	"fmt"
	"sync"
)

// Tab identifies one dashboard view.
type Tab string

const (
	TabRequests  Tab = "requests"
	TabHistory   Tab = "history"
	TabReporting Tab = "reporting"
	TabPartners  Tab = "partners"
)

// Store names used as subscription-table entries and scheduler target keys.
const (
	StoreRequests = "requests"
	StoreHistory  = "history"
	StoreStats    = "stats"
	StorePartners = "partners"
)

// warmStores is the per-tab subscription table: which stores the scheduler
// keeps warm while a tab is active. Partners is warmed on every tab because
// the directory feeds the email workflow cross-tab.
var warmStores = map[Tab][]string{
	TabRequests:  {StoreRequests, StorePartners},
	TabHistory:   {StoreHistory, StorePartners},
	TabReporting: {StoreStats, StorePartners},
	TabPartners:  {StorePartners},
}

// WarmStores returns the stores to keep fresh for the given tab.
func WarmStores(t Tab) []string {
	return warmStores[t]
}

// Valid reports whether t names a known tab.
func (t Tab) Valid() bool {
	_, ok := warmStores[t]
	return ok
}

// Router holds the active tab.
type Router struct {
	mu     sync.Mutex
	active Tab
}

func NewRouter() *Router {
	return &Router{active: TabRequests}
}

func (r *Router) Active() Tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Router) SetActive(t Tab) error {
	if !t.Valid() {
		return fmt.Errorf("unknown tab %q", t)
	}
	r.mu.Lock()
	r.active = t
	r.mu.Unlock()
	return nil
}
