package asset

import (
	"maps"
	"strings"
	"sync"
)

// Categories translates abstract category labels ("sports", "music") into
// each vendor's own category identifiers.
type Categories struct {
	mu      sync.RWMutex
	vendors map[string]map[string]string
}

func NewCategories() *Categories {
	return &Categories{vendors: make(map[string]map[string]string)}
}

// Register merges a vendor's label to identifier map; later calls override
// earlier labels.
func (c *Categories) Register(vendor string, mapping map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.vendors[vendor]
	if !ok {
		current = make(map[string]string, len(mapping))
		c.vendors[vendor] = current
	}
	for label, id := range mapping {
		current[normalize(label)] = id
	}
}

// Has reports whether any vendor knows the label.
func (c *Categories) Has(category string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	label := normalize(category)
	for _, mapping := range c.vendors {
		if _, ok := mapping[label]; ok {
			return true
		}
	}
	return false
}

func (c *Categories) Lookup(category, vendor string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.vendors[vendor][normalize(category)]
	return id, ok
}

func (c *Categories) Vendor(vendor string) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.vendors[vendor])
}

func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
