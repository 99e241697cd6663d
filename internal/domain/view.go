package domain

import "slices"

// ViewType is the presentation of a view.
type ViewType string

const (
	ViewTable    ViewType = "TABLE"
	ViewBoard    ViewType = "BOARD"
	ViewKanban   ViewType = "KANBAN"
	ViewGallery  ViewType = "GALLERY"
	ViewList     ViewType = "LIST"
	ViewCalendar ViewType = "CALENDAR"
	ViewTimeline ViewType = "TIMELINE"
)

// Valid reports whether t is a known view type.
func (t ViewType) Valid() bool {
	switch t {
	case ViewTable, ViewBoard, ViewKanban, ViewGallery, ViewList, ViewCalendar, ViewTimeline:
		return true
	}
	return false
}

// Operator is a filter comparison.
type Operator string

const (
	OpEquals             Operator = "equals"
	OpNotEquals          Operator = "not_equals"
	OpContains           Operator = "contains"
	OpNotContains        Operator = "not_contains"
	OpIn                 Operator = "in"
	OpNotIn              Operator = "not_in"
	OpLessThan           Operator = "less_than"
	OpGreaterThan        Operator = "greater_than"
	OpLessThanOrEqual    Operator = "less_than_or_equal"
	OpGreaterThanOrEqual Operator = "greater_than_or_equal"
	OpIsEmpty            Operator = "is_empty"
	OpIsNotEmpty         Operator = "is_not_empty"
)

// RelativeToday is the filter value resolved to the current calendar day.
const RelativeToday = "today"

// Filter is one predicate of a view. Filters of a view are AND-combined.
type Filter struct {
	PropertyID string   `json:"propertyId"`
	Operator   Operator `json:"operator"`
	Value      any      `json:"value,omitempty"`
}

// SortDirection orders a sort key.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort is one key of a view ordering.
type Sort struct {
	PropertyID string        `json:"propertyId"`
	Direction  SortDirection `json:"direction"`
}

// ViewConfig carries view-type specific settings.
type ViewConfig struct {
	GroupColumnProperty string `json:"groupColumnProperty,omitempty"`
	DateProperty        string `json:"dateProperty,omitempty"`
	EndDateProperty     string `json:"endDateProperty,omitempty"`
	CoverProperty       string `json:"coverProperty,omitempty"`
	PageSize            int    `json:"pageSize,omitempty"`
}

// View is a saved presentation over the records of a schema.
type View struct {
	ID                string     `json:"id"`
	DatabaseID        string     `json:"databaseId,omitempty"`
	Name              string     `json:"name"`
	Type              ViewType   `json:"type"`
	IsDefault         bool       `json:"isDefault"`
	VisibleProperties []string   `json:"visibleProperties,omitempty"`
	Filters           []Filter   `json:"filters,omitempty"`
	Sorts             []Sort     `json:"sorts,omitempty"`
	GroupBy           string     `json:"groupBy,omitempty"`
	Config            ViewConfig `json:"config"`
}

// Clone returns a deep copy of the view.
func (v View) Clone() View {
	c := v
	c.VisibleProperties = slices.Clone(v.VisibleProperties)
	c.Filters = slices.Clone(v.Filters)
	c.Sorts = slices.Clone(v.Sorts)
	return c
}

// VisibleProperties projects the property list through a view: the listed
// ids in listed order when the view names any, otherwise every property
// flagged visible in ascending order. A nil view behaves like an empty one.
func VisibleProperties(props []Property, view *View) []Property {
	if view != nil && len(view.VisibleProperties) > 0 {
		byID := make(map[string]Property, len(props))
		for _, p := range props {
			byID[p.ID] = p
		}
		out := make([]Property, 0, len(view.VisibleProperties))
		for _, id := range view.VisibleProperties {
			if p, ok := byID[id]; ok {
				out = append(out, p)
			}
		}
		return out
	}
	out := make([]Property, 0, len(props))
	for _, p := range SortedProperties(props) {
		if p.IsVisible {
			out = append(out, p)
		}
	}
	return out
}
