package models

import "time"

// FilterSet is a named, prioritized filter list. A message passes a set when
// every filter matches and the optional CEL condition holds.
type FilterSet struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Filters     FilterList `json:"filters" swaggertype:"array,object"`
	Condition   string     `json:"condition,omitempty"`
	Priority    int        `json:"priority"`
	Enabled     bool       `json:"enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a copy whose filter list can be replaced without affecting
// the original. The records themselves are immutable and are shared.
func (s *FilterSet) Clone() *FilterSet {
	if s == nil {
		return nil
	}
	c := *s
	if s.Filters != nil {
		c.Filters = make(FilterList, len(s.Filters))
		copy(c.Filters, s.Filters)
	}
	return &c
}
