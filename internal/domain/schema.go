package domain

import (
	"cmp"
	"slices"
	"time"
)

// DatabaseConfig carries the module type, permissions and UI feature flags of
// a schema.
type DatabaseConfig struct {
	ModuleType  string          `json:"moduleType,omitempty"`
	Permissions map[string]bool `json:"permissions,omitempty"`
	Features    map[string]bool `json:"features,omitempty"`
}

// Schema describes one logical collection (a "database"): its properties,
// its views and its configuration.
type Schema struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Icon        string         `json:"icon,omitempty"`
	Description string         `json:"description,omitempty"`
	Properties  []Property     `json:"properties"`
	Views       []View         `json:"views"`
	Config      DatabaseConfig `json:"config"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Property returns the property with the given id.
func (s *Schema) Property(id string) (Property, bool) {
	for _, p := range s.Properties {
		if p.ID == id {
			return p, true
		}
	}
	return Property{}, false
}

// View returns the view with the given id.
func (s *Schema) View(id string) (View, bool) {
	for _, v := range s.Views {
		if v.ID == id {
			return v, true
		}
	}
	return View{}, false
}

// DefaultView returns the view flagged default, falling back to the first one.
func (s *Schema) DefaultView() (View, bool) {
	for _, v := range s.Views {
		if v.IsDefault {
			return v, true
		}
	}
	if len(s.Views) > 0 {
		return s.Views[0], true
	}
	return View{}, false
}

// NextPropertyOrder is the order index assigned to a newly added property.
func (s *Schema) NextPropertyOrder() int {
	next := 0
	for _, p := range s.Properties {
		if p.Order >= next {
			next = p.Order + 1
		}
	}
	return next
}

// SortedProperties returns the properties in ascending display order. Ties
// keep their list position.
func SortedProperties(props []Property) []Property {
	out := slices.Clone(props)
	slices.SortStableFunc(out, func(a, b Property) int { return cmp.Compare(a.Order, b.Order) })
	return out
}

// Record is one row of a schema. Properties is keyed by property id.
type Record struct {
	ID           string         `json:"id"`
	DatabaseID   string         `json:"databaseId"`
	Properties   map[string]any `json:"properties"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	CreatedBy    string         `json:"createdBy,omitempty"`
	LastEditedBy string         `json:"lastEditedBy,omitempty"`
}

// Value returns the stored value of a property, resolving computed timestamp
// and user properties from the audit fields.
func (r Record) Value(p Property) (any, bool) {
	switch p.Type {
	case PropertyCreatedTime:
		return r.CreatedAt, !r.CreatedAt.IsZero()
	case PropertyLastEditedTime:
		return r.UpdatedAt, !r.UpdatedAt.IsZero()
	case PropertyCreatedBy:
		return r.CreatedBy, r.CreatedBy != ""
	case PropertyLastEditedBy:
		return r.LastEditedBy, r.LastEditedBy != ""
	}
	v, ok := r.Properties[p.ID]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Merge applies a partial property map to the record.
func (r *Record) Merge(patch map[string]any) {
	if r.Properties == nil {
		r.Properties = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(r.Properties, k)
			continue
		}
		r.Properties[k] = v
	}
}

// RecordPage is one page of a record listing.
type RecordPage struct {
	Records    []Record `json:"records"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	PerPage    int      `json:"perPage"`
	TotalPages int      `json:"totalPages"`
}
