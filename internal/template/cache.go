package template

import "sync"

// Cache is the local template store backing the chat view's template
// picker. Drafts saved here are usable immediately; templates fetched
// from Meta replace the cached copy by name.
type Cache struct {
	mu        sync.Mutex
	templates []Template
	persist   func([]Template)
}

// NewCache seeds the cache with previously persisted templates. persist
// is invoked with a snapshot after every mutation; it may be nil.
func NewCache(seed []Template, persist func([]Template)) *Cache {
	c := &Cache{templates: seed, persist: persist}
	for i := range c.templates {
		c.templates[i].Derive()
	}
	return c
}

func (c *Cache) All() []Template {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Template, len(c.templates))
	copy(out, c.templates)
	return out
}

// Add stores a template, replacing any cached entry with the same name.
func (c *Cache) Add(t Template) {
	t.Derive()
	c.mu.Lock()
	replaced := false
	for i := range c.templates {
		if c.templates[i].Name == t.Name {
			c.templates[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		c.templates = append(c.templates, t)
	}
	snapshot := make([]Template, len(c.templates))
	copy(snapshot, c.templates)
	c.mu.Unlock()

	if c.persist != nil {
		c.persist(snapshot)
	}
}

// Replace swaps the whole cache for a fresh provider listing.
func (c *Cache) Replace(ts []Template) {
	for i := range ts {
		ts[i].Derive()
	}
	c.mu.Lock()
	c.templates = ts
	snapshot := make([]Template, len(c.templates))
	copy(snapshot, c.templates)
	c.mu.Unlock()

	if c.persist != nil {
		c.persist(snapshot)
	}
}

func (c *Cache) Get(name string) (Template, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.templates {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}
