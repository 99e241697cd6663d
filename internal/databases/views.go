package databases

import (
	"context"
	"net/http"

	"second-brain/internal/domain"
	"second-brain/internal/query"
)

// MsgLastView is shown when deleting the only view of a database.
const MsgLastView = "Cannot delete the last view"

// ViewInput creates or updates a view. Nil fields are left unchanged.
type ViewInput struct {
	Name              string             `json:"name,omitempty"`
	Type              domain.ViewType    `json:"type,omitempty"`
	IsDefault         *bool              `json:"isDefault,omitempty"`
	VisibleProperties []string           `json:"visibleProperties,omitempty"`
	Filters           []domain.Filter    `json:"filters,omitempty"`
	Sorts             []domain.Sort      `json:"sorts,omitempty"`
	GroupBy           *string            `json:"groupBy,omitempty"`
	Config            *domain.ViewConfig `json:"config,omitempty"`
}

type viewVars struct {
	id string
	in ViewInput
}

func (s *Service) Views(ctx context.Context, dbID string) ([]domain.View, error) {
	return query.Fetch(ctx, s.cache, query.Query[[]domain.View]{
		Key: ViewsKey(dbID),
		Fn: func(ctx context.Context) ([]domain.View, error) {
			var out []domain.View
			err := s.api.Do(ctx, http.MethodGet, path("databases", dbID, "views"), nil, &out)
			return out, err
		},
	})
}

func (s *Service) CreateView(ctx context.Context, dbID string, in ViewInput) (domain.View, error) {
	if !in.Type.Valid() {
		return domain.View{}, s.reject("type", "Unknown view type")
	}
	return s.createView(ctx, dbID, in, "View created")
}

func (s *Service) createView(ctx context.Context, dbID string, in ViewInput, msg string) (domain.View, error) {
	return query.Mutate(ctx, s.cache, query.Mutation[ViewInput, domain.View]{
		Name: "createView",
		Fn: func(ctx context.Context, in ViewInput) (domain.View, error) {
			var out domain.View
			err := s.api.Do(ctx, http.MethodPost, path("databases", dbID, "views"), in, &out)
			return out, err
		},
		Invalidates:    func(ViewInput, domain.View) []query.Key { return []query.Key{DatabaseKey(dbID)} },
		SuccessMessage: msg,
	}, in)
}

func (s *Service) UpdateView(ctx context.Context, dbID, viewID string, in ViewInput) (domain.View, error) {
	return query.Mutate(ctx, s.cache, query.Mutation[viewVars, domain.View]{
		Name: "updateView",
		Fn: func(ctx context.Context, v viewVars) (domain.View, error) {
			var out domain.View
			err := s.api.Do(ctx, http.MethodPut, path("databases", dbID, "views", v.id), v.in, &out)
			return out, err
		},
		Invalidates:    func(viewVars, domain.View) []query.Key { return []query.Key{DatabaseKey(dbID)} },
		SuccessMessage: "View updated",
	}, viewVars{id: viewID, in: in})
}

// SetDefaultView makes viewID the default. Exactly one view is flagged
// default in the cache while the request is in flight.
func (s *Service) SetDefaultView(ctx context.Context, dbID, viewID string) (domain.View, error) {
	isDefault := true
	return query.Mutate(ctx, s.cache, query.Mutation[viewVars, domain.View]{
		Name: "setDefaultView",
		Fn: func(ctx context.Context, v viewVars) (domain.View, error) {
			var out domain.View
			err := s.api.Do(ctx, http.MethodPut, path("databases", dbID, "views", v.id), v.in, &out)
			return out, err
		},
		OnMutate: func(v viewVars) func() {
			snap := s.cache.Snapshot(DatabaseKey(dbID))
			flag := func(views []domain.View) []domain.View {
				out := make([]domain.View, len(views))
				for i, view := range views {
					view.IsDefault = view.ID == v.id
					out[i] = view
				}
				return out
			}
			query.UpdateQueryData(s.cache, SchemaKey(dbID), func(schema domain.Schema) domain.Schema {
				schema.Views = flag(schema.Views)
				return schema
			})
			query.UpdateQueryData(s.cache, ViewsKey(dbID), flag)
			return func() { s.cache.Restore(snap) }
		},
		Invalidates:    func(viewVars, domain.View) []query.Key { return []query.Key{DatabaseKey(dbID)} },
		SuccessMessage: "Default view updated",
	}, viewVars{id: viewID, in: ViewInput{IsDefault: &isDefault}})
}

// DuplicateView copies a view's filters, sorts, grouping and config into a
// new view named "<name> (Copy)". The copy is never the default.
func (s *Service) DuplicateView(ctx context.Context, dbID, viewID string) (domain.View, error) {
	views, err := s.schemaViews(ctx, dbID)
	if err != nil {
		return domain.View{}, err
	}
	var src *domain.View
	for i := range views {
		if views[i].ID == viewID {
			src = &views[i]
			break
		}
	}
	if src == nil {
		return domain.View{}, s.reject("viewId", "View not found")
	}

	c := src.Clone()
	isDefault := false
	groupBy := c.GroupBy
	config := c.Config
	return s.createView(ctx, dbID, ViewInput{
		Name:              c.Name + " (Copy)",
		Type:              c.Type,
		IsDefault:         &isDefault,
		VisibleProperties: c.VisibleProperties,
		Filters:           c.Filters,
		Sorts:             c.Sorts,
		GroupBy:           &groupBy,
		Config:            &config,
	}, "View duplicated")
}

// DeleteView deletes a view. When the views are cached, deleting the last
// one fails locally without a request. Otherwise nothing is loaded first and
// the backend applies the same rule.
func (s *Service) DeleteView(ctx context.Context, dbID, viewID string) error {
	if views, ok := s.cachedViews(dbID); ok && len(views) <= 1 {
		return s.reject("viewId", MsgLastView)
	}

	_, err := query.Mutate(ctx, s.cache, query.Mutation[string, struct{}]{
		Name: "deleteView",
		Fn: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, s.api.Do(ctx, http.MethodDelete, path("databases", dbID, "views", id), nil, nil)
		},
		Invalidates:    func(string, struct{}) []query.Key { return []query.Key{DatabaseKey(dbID)} },
		SuccessMessage: "View deleted",
	}, viewID)
	return err
}

func (s *Service) cachedViews(dbID string) ([]domain.View, bool) {
	if schema, ok := query.GetQueryData[domain.Schema](s.cache, SchemaKey(dbID)); ok {
		return schema.Views, true
	}
	return query.GetQueryData[[]domain.View](s.cache, ViewsKey(dbID))
}

func (s *Service) schemaViews(ctx context.Context, dbID string) ([]domain.View, error) {
	if views, ok := s.cachedViews(dbID); ok {
		return views, nil
	}
	return s.Views(ctx, dbID)
}
