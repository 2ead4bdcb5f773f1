package group

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyCatalog = errors.New("group catalog is empty")
	ErrEmptyID      = errors.New("group id is empty")
	ErrDuplicateID  = errors.New("duplicate group id")
)

// Group is a recipient group on the messaging platform
type Group struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Catalog is the fixed, ordered list of groups a message can target.
// It is immutable once built.
type Catalog struct {
	groups []Group
	index  map[string]int
}

// NewCatalog builds a catalog, rejecting empty or duplicate ids
func NewCatalog(groups []Group) (*Catalog, error) {
	if len(groups) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		groups: make([]Group, 0, len(groups)),
		index:  make(map[string]int, len(groups)),
	}

	for i, g := range groups {
		id := strings.TrimSpace(g.ID)
		if id == "" {
			return nil, fmt.Errorf("%w (entry %d)", ErrEmptyID, i)
		}
		if _, exists := c.index[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		name := strings.TrimSpace(g.Name)
		if name == "" {
			name = id
		}
		c.index[id] = len(c.groups)
		c.groups = append(c.groups, Group{ID: id, Name: name})
	}

	return c, nil
}

// Len returns the number of groups
func (c *Catalog) Len() int {
	return len(c.groups)
}

// All returns a copy of the groups in catalog order
func (c *Catalog) All() []Group {
	out := make([]Group, len(c.groups))
	copy(out, c.groups)
	return out
}

// IDs returns every group id in catalog order
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.groups))
	for i, g := range c.groups {
		ids[i] = g.ID
	}
	return ids
}

// Get looks up a group by id
func (c *Catalog) Get(id string) (Group, bool) {
	i, ok := c.index[id]
	if !ok {
		return Group{}, false
	}
	return c.groups[i], true
}

// Has reports whether id is part of the catalog
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Unknown returns the ids that are not in the catalog, preserving order
func (c *Catalog) Unknown(ids []string) []string {
	var unknown []string
	for _, id := range ids {
		if !c.Has(id) {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

// Order sorts a set of ids into catalog order, dropping unknown ids
func (c *Catalog) Order(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for _, g := range c.groups {
		if _, ok := set[g.ID]; ok {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

// Names maps ids to display names, skipping unknown ids
func (c *Catalog) Names(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if g, ok := c.Get(id); ok {
			names = append(names, g.Name)
		}
	}
	return names
}
