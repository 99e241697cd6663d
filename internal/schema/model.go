package schema

import (
	"time"

	"second-brain/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Database struct {
	ID          string `gorm:"primaryKey;size:36"`
	OwnerID     string `gorm:"index;size:36"`
	Name        string
	Icon        string
	Description string
	Config      datatypes.JSONType[domain.DatabaseConfig]
	Properties  []Property `gorm:"constraint:OnDelete:CASCADE"`
	Views       []View     `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Property struct {
	ID          string `gorm:"primaryKey;size:36"`
	DatabaseID  string `gorm:"index;size:36"`
	Name        string
	Type        domain.PropertyType
	Required    bool
	IsVisible   bool `gorm:"default:true"`
	Position    int
	Width       *int
	Description string
	Config      datatypes.JSONType[domain.PropertyConfig]
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type View struct {
	ID                string `gorm:"primaryKey;size:36"`
	DatabaseID        string `gorm:"index;size:36"`
	Name              string
	Type              domain.ViewType
	IsDefault         bool
	Position          int
	VisibleProperties datatypes.JSONSlice[string]
	Filters           datatypes.JSONSlice[domain.Filter]
	Sorts             datatypes.JSONSlice[domain.Sort]
	GroupBy           string
	Config            datatypes.JSONType[domain.ViewConfig]
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Record is soft deleted; a deleted record sits in the trash until removed
// permanently.
type Record struct {
	ID           string `gorm:"primaryKey;size:36"`
	DatabaseID   string `gorm:"index;size:36"`
	Properties   datatypes.JSONMap
	CreatedBy    string
	LastEditedBy string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (d *Database) BeforeCreate(*gorm.DB) error { newID(&d.ID); return nil }
func (p *Property) BeforeCreate(*gorm.DB) error { newID(&p.ID); return nil }
func (v *View) BeforeCreate(*gorm.DB) error     { newID(&v.ID); return nil }
func (r *Record) BeforeCreate(*gorm.DB) error   { newID(&r.ID); return nil }

func (d *Database) ToDomain() domain.Schema {
	s := domain.Schema{
		ID:          d.ID,
		Name:        d.Name,
		Icon:        d.Icon,
		Description: d.Description,
		Config:      d.Config.Data(),
		Properties:  make([]domain.Property, 0, len(d.Properties)),
		Views:       make([]domain.View, 0, len(d.Views)),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	for i := range d.Properties {
		s.Properties = append(s.Properties, d.Properties[i].ToDomain())
	}
	for i := range d.Views {
		s.Views = append(s.Views, d.Views[i].ToDomain())
	}
	s.Properties = domain.SortedProperties(s.Properties)
	return s
}

func (p *Property) ToDomain() domain.Property {
	return domain.Property{
		ID:          p.ID,
		DatabaseID:  p.DatabaseID,
		Name:        p.Name,
		Type:        p.Type,
		Required:    p.Required,
		IsVisible:   p.IsVisible,
		Order:       p.Position,
		Width:       p.Width,
		Description: p.Description,
		Config:      p.Config.Data(),
	}
}

func (v *View) ToDomain() domain.View {
	return domain.View{
		ID:                v.ID,
		DatabaseID:        v.DatabaseID,
		Name:              v.Name,
		Type:              v.Type,
		IsDefault:         v.IsDefault,
		VisibleProperties: []string(v.VisibleProperties),
		Filters:           []domain.Filter(v.Filters),
		Sorts:             []domain.Sort(v.Sorts),
		GroupBy:           v.GroupBy,
		Config:            v.Config.Data(),
	}
}

func (r *Record) ToDomain() domain.Record {
	props := make(map[string]any, len(r.Properties))
	for k, v := range r.Properties {
		props[k] = v
	}
	return domain.Record{
		ID:           r.ID,
		DatabaseID:   r.DatabaseID,
		Properties:   props,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		CreatedBy:    r.CreatedBy,
		LastEditedBy: r.LastEditedBy,
	}
}
