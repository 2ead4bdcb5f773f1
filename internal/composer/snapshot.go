package composer

import "unicode/utf8"

// GroupView is a catalog entry with its selection state
type GroupView struct {
	ID       string
	Name     string
	Selected bool
}

// Snapshot is a consistent, read-only copy of the composer state for rendering
type Snapshot struct {
	State         State
	Busy          bool
	Message       string
	Length        int
	MaxLength     int
	Groups        []GroupView
	Selected      []string
	SelectedNames []string
	AllSelected   bool
	Outcome       Outcome
	Confirmation  *Confirmation
}

// OverLimit reports whether the draft is past the advisory length
func (s Snapshot) OverLimit() bool {
	return s.Length > s.MaxLength
}

// Snapshot copies the current state
func (c *Composer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.catalog.All()
	groups := make([]GroupView, len(all))
	for i, g := range all {
		_, ok := c.selected[g.ID]
		groups[i] = GroupView{ID: g.ID, Name: g.Name, Selected: ok}
	}

	selected := c.selectedLocked()

	snap := Snapshot{
		State:         c.state,
		Busy:          c.state == StateSending,
		Message:       c.message,
		Length:        utf8.RuneCountInString(c.message),
		MaxLength:     MaxLength,
		Groups:        groups,
		Selected:      selected,
		SelectedNames: c.catalog.Names(selected),
		AllSelected:   len(selected) == c.catalog.Len() && c.catalog.Len() > 0,
		Outcome:       c.outcome,
	}

	if c.state == StateAwaitingConfirmation && c.pending != nil {
		conf := c.pending.conf
		snap.Confirmation = &conf
	}

	return snap
}
