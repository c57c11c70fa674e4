// Package notify holds user-facing notices raised by failed exchanges.
package notify

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultTransientTTL is how long a transient notice stays visible.
const DefaultTransientTTL = 3 * time.Second

// Notice is one user-facing message.
type Notice struct {
	ID         uint64    `json:"id"`
	Title      string    `json:"title,omitempty"`
	Message    string    `json:"message"`
	Persistent bool      `json:"persistent"`
	CreatedAt  time.Time `json:"created_at"`
}

// Center keeps the currently visible notices. Transient notices expire after
// the configured TTL; persistent ones stay until dismissed.
type Center struct {
	items *cache.Cache
	ttl   time.Duration

	mu        sync.Mutex
	nextID    uint64
	listeners []func(Notice)
}

// NewCenter creates a Center. A non-positive ttl selects DefaultTransientTTL.
func NewCenter(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = DefaultTransientTTL
	}
	return &Center{
		items: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Subscribe registers fn to be called synchronously for every new notice.
func (c *Center) Subscribe(fn func(Notice)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Notify records a notice. It satisfies transport.Notifier.
func (c *Center) Notify(title, message string, persistent bool) {
	c.mu.Lock()
	c.nextID++
	n := Notice{
		ID:         c.nextID,
		Title:      title,
		Message:    message,
		Persistent: persistent,
		CreatedAt:  time.Now(),
	}
	listeners := append([]func(Notice){}, c.listeners...)
	c.mu.Unlock()

	exp := c.ttl
	if persistent {
		exp = cache.NoExpiration
	}
	c.items.Set(key(n.ID), n, exp)

	for _, fn := range listeners {
		fn(n)
	}
}

// Active returns the visible notices, oldest first.
func (c *Center) Active() []Notice {
	items := c.items.Items()
	out := make([]Notice, 0, len(items))
	for _, it := range items {
		out = append(out, it.Object.(Notice))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dismiss removes a notice. It reports whether the notice was still visible.
func (c *Center) Dismiss(id uint64) bool {
	if _, ok := c.items.Get(key(id)); !ok {
		return false
	}
	c.items.Delete(key(id))
	return true
}

// DismissAll clears every notice.
func (c *Center) DismissAll() {
	c.items.Flush()
}

func key(id uint64) string {
	return strconv.FormatUint(id, 10)
}
