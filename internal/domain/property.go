package domain

import "slices"

// PropertyType is the wire name of a property (column) type.
type PropertyType string

const (
	PropertyText           PropertyType = "TEXT"
	PropertyNumber         PropertyType = "NUMBER"
	PropertySelect         PropertyType = "SELECT"
	PropertyMultiSelect    PropertyType = "MULTI_SELECT"
	PropertyDate           PropertyType = "DATE"
	PropertyCheckbox       PropertyType = "CHECKBOX"
	PropertyURL            PropertyType = "URL"
	PropertyEmail          PropertyType = "EMAIL"
	PropertyPhone          PropertyType = "PHONE"
	PropertyRelation       PropertyType = "RELATION"
	PropertyFormula        PropertyType = "FORMULA"
	PropertyRollup         PropertyType = "ROLLUP"
	PropertyCreatedTime    PropertyType = "CREATED_TIME"
	PropertyLastEditedTime PropertyType = "LAST_EDITED_TIME"
	PropertyCreatedBy      PropertyType = "CREATED_BY"
	PropertyLastEditedBy   PropertyType = "LAST_EDITED_BY"
)

// PropertyTypes lists every known type in declaration order.
var PropertyTypes = []PropertyType{
	PropertyText, PropertyNumber, PropertySelect, PropertyMultiSelect, PropertyDate,
	PropertyCheckbox, PropertyURL, PropertyEmail, PropertyPhone, PropertyRelation,
	PropertyFormula, PropertyRollup, PropertyCreatedTime, PropertyLastEditedTime,
	PropertyCreatedBy, PropertyLastEditedBy,
}

// Valid reports whether t is a known property type.
func (t PropertyType) Valid() bool {
	return slices.Contains(PropertyTypes, t)
}

// IsComputed reports whether values of this type are produced by the backend
// and therefore never written by clients.
func (t PropertyType) IsComputed() bool {
	switch t {
	case PropertyFormula, PropertyRollup,
		PropertyCreatedTime, PropertyLastEditedTime,
		PropertyCreatedBy, PropertyLastEditedBy:
		return true
	}
	return false
}

// HasOptions reports whether the type stores select option ids.
func (t PropertyType) HasOptions() bool {
	return t == PropertySelect || t == PropertyMultiSelect
}

// SelectOption is one choice of a select or multi-select property.
type SelectOption struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
	Unknown bool   `json:"-"`
}

// PropertyConfig holds type-specific settings.
type PropertyConfig struct {
	SelectOptions      []SelectOption `json:"selectOptions,omitempty"`
	RelationDatabaseID string         `json:"relationDatabaseId,omitempty"`
	Formula            string         `json:"formula,omitempty"`
	NumberFormat       string         `json:"numberFormat,omitempty"`
}

// Property is a column definition. Its ID is referenced by record values and
// never changes once records exist.
type Property struct {
	ID          string         `json:"id"`
	DatabaseID  string         `json:"databaseId,omitempty"`
	Name        string         `json:"name"`
	Type        PropertyType   `json:"type"`
	Required    bool           `json:"required"`
	IsVisible   bool           `json:"isVisible"`
	Order       int            `json:"order"`
	Width       *int           `json:"width,omitempty"`
	Description string         `json:"description,omitempty"`
	Config      PropertyConfig `json:"config"`
}

// Option looks up a select option by id.
func (p Property) Option(id string) (SelectOption, bool) {
	for _, o := range p.Config.SelectOptions {
		if o.ID == id {
			return o, true
		}
	}
	return SelectOption{}, false
}

// ResolveOption returns the option with the given id, or a placeholder
// flagged Unknown when the id no longer exists on the property.
func (p Property) ResolveOption(id string) SelectOption {
	if o, ok := p.Option(id); ok {
		return o
	}
	return SelectOption{ID: id, Name: "Unknown option", Unknown: true}
}

// OptionIndex returns the position of an option id, or -1.
func (p Property) OptionIndex(id string) int {
	return slices.IndexFunc(p.Config.SelectOptions, func(o SelectOption) bool { return o.ID == id })
}
