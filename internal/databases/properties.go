package databases

import (
	"context"
	"net/http"
	"slices"

	"second-brain/internal/domain"
	apperrors "second-brain/internal/errors"
	"second-brain/internal/notify"
	"second-brain/internal/query"
)

// PropertyInput creates or updates a property. Nil fields are left unchanged.
type PropertyInput struct {
	Name        string                 `json:"name,omitempty"`
	Type        domain.PropertyType    `json:"type,omitempty"`
	Required    *bool                  `json:"required,omitempty"`
	IsVisible   *bool                  `json:"isVisible,omitempty"`
	Order       *int                   `json:"order,omitempty"`
	Width       *int                   `json:"width,omitempty"`
	Description *string                `json:"description,omitempty"`
	Config      *domain.PropertyConfig `json:"config,omitempty"`
}

type propertyVars struct {
	id string
	in PropertyInput
}

func (s *Service) Properties(ctx context.Context, dbID string) ([]domain.Property, error) {
	return query.Fetch(ctx, s.cache, query.Query[[]domain.Property]{
		Key: PropertiesKey(dbID),
		Fn: func(ctx context.Context) ([]domain.Property, error) {
			var out []domain.Property
			err := s.api.Do(ctx, http.MethodGet, path("databases", dbID, "properties"), nil, &out)
			return out, err
		},
	})
}

// CreateProperty adds a property. Without an explicit order it is placed
// after the existing ones.
func (s *Service) CreateProperty(ctx context.Context, dbID string, in PropertyInput) (domain.Property, error) {
	if !in.Type.Valid() {
		return domain.Property{}, s.reject("type", "Unknown property type")
	}
	if in.Order == nil {
		props, err := s.schemaProperties(ctx, dbID)
		if err != nil {
			return domain.Property{}, err
		}
		next := (&domain.Schema{Properties: props}).NextPropertyOrder()
		in.Order = &next
	}

	return query.Mutate(ctx, s.cache, query.Mutation[PropertyInput, domain.Property]{
		Name: "createProperty",
		Fn: func(ctx context.Context, in PropertyInput) (domain.Property, error) {
			var out domain.Property
			err := s.api.Do(ctx, http.MethodPost, path("databases", dbID, "properties"), in, &out)
			return out, err
		},
		Invalidates:    func(PropertyInput, domain.Property) []query.Key { return []query.Key{DatabaseKey(dbID)} },
		SuccessMessage: "Property created",
	}, in)
}

// UpdateProperty edits a property in place. Changing the type is rejected
// here; use ChangePropertyType.
func (s *Service) UpdateProperty(ctx context.Context, dbID, propertyID string, in PropertyInput) (domain.Property, error) {
	if in.Type != "" {
		props, err := s.schemaProperties(ctx, dbID)
		if err != nil {
			return domain.Property{}, err
		}
		i := slices.IndexFunc(props, func(p domain.Property) bool { return p.ID == propertyID })
		if i < 0 || props[i].Type != in.Type {
			return domain.Property{}, s.reject("type", "Changing a property type is a separate operation")
		}
	}

	return query.Mutate(ctx, s.cache, query.Mutation[propertyVars, domain.Property]{
		Name: "updateProperty",
		Fn: func(ctx context.Context, v propertyVars) (domain.Property, error) {
			var out domain.Property
			err := s.api.Do(ctx, http.MethodPut, path("databases", dbID, "properties", v.id), v.in, &out)
			return out, err
		},
		Invalidates:    func(propertyVars, domain.Property) []query.Key { return []query.Key{DatabaseKey(dbID)} },
		SuccessMessage: "Property updated",
	}, propertyVars{id: propertyID, in: in})
}

// ChangePropertyType converts a property to another type. Stored values the
// backend cannot convert are cleared, so every record is refetched.
func (s *Service) ChangePropertyType(ctx context.Context, dbID, propertyID string, to domain.PropertyType, config *domain.PropertyConfig) (domain.Property, error) {
	if !to.Valid() {
		return domain.Property{}, s.reject("type", "Unknown property type")
	}
	body := struct {
		Type   domain.PropertyType    `json:"type"`
		Config *domain.PropertyConfig `json:"config,omitempty"`
	}{Type: to, Config: config}

	return query.Mutate(ctx, s.cache, query.Mutation[string, domain.Property]{
		Name: "changePropertyType",
		Fn: func(ctx context.Context, id string) (domain.Property, error) {
			var out domain.Property
			err := s.api.Do(ctx, http.MethodPut, path("databases", dbID, "properties", id, "type"), body, &out)
			return out, err
		},
		Invalidates:    func(string, domain.Property) []query.Key { return []query.Key{DatabaseKey(dbID)} },
		SuccessMessage: "Property type changed",
	}, propertyID)
}

func (s *Service) DeleteProperty(ctx context.Context, dbID, propertyID string) error {
	_, err := query.Mutate(ctx, s.cache, query.Mutation[string, struct{}]{
		Name: "deleteProperty",
		Fn: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, s.api.Do(ctx, http.MethodDelete, path("databases", dbID, "properties", id), nil, nil)
		},
		Invalidates:    func(string, struct{}) []query.Key { return []query.Key{DatabaseKey(dbID)} },
		SuccessMessage: "Property deleted",
	}, propertyID)
	return err
}

// ReorderProperties applies a new property order. ids must be a permutation
// of the current property ids. The cached schema is reordered immediately
// and restored if the backend rejects the change.
func (s *Service) ReorderProperties(ctx context.Context, dbID string, ids []string) error {
	props, err := s.schemaProperties(ctx, dbID)
	if err != nil {
		return err
	}
	if !isPermutation(props, ids) {
		return s.reject("propertyIds", "The new order must list every property exactly once")
	}

	_, err = query.Mutate(ctx, s.cache, query.Mutation[[]string, struct{}]{
		Name: "reorderProperties",
		Fn: func(ctx context.Context, ids []string) (struct{}, error) {
			body := map[string][]string{"propertyIds": ids}
			return struct{}{}, s.api.Do(ctx, http.MethodPost, path("databases", dbID, "properties", "reorder"), body, nil)
		},
		OnMutate: func(ids []string) func() {
			snap := s.cache.Snapshot(DatabaseKey(dbID))
			query.UpdateQueryData(s.cache, SchemaKey(dbID), func(schema domain.Schema) domain.Schema {
				schema.Properties = reorder(schema.Properties, ids)
				return schema
			})
			query.UpdateQueryData(s.cache, PropertiesKey(dbID), func(props []domain.Property) []domain.Property {
				return reorder(props, ids)
			})
			return func() { s.cache.Restore(snap) }
		},
		Invalidates:    func([]string, struct{}) []query.Key { return []query.Key{DatabaseKey(dbID)} },
		SuccessMessage: "Properties reordered",
	}, ids)
	return err
}

func isPermutation(props []domain.Property, ids []string) bool {
	if len(props) != len(ids) {
		return false
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return false
		}
		seen[id] = true
	}
	for _, p := range props {
		if !seen[p.ID] {
			return false
		}
	}
	return true
}

// reorder assigns Order by position in ids and returns the properties in
// that order.
func reorder(props []domain.Property, ids []string) []domain.Property {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	out := slices.Clone(props)
	for i := range out {
		if p, ok := pos[out[i].ID]; ok {
			out[i].Order = p
		}
	}
	return domain.SortedProperties(out)
}

// reject fails an operation locally, before any request is made.
func (s *Service) reject(field, msg string) error {
	notify.Error(s.cache.Notifier(), msg)
	return apperrors.Validation(msg, map[string]string{field: msg})
}
