// Package databases wraps the database, property, record and view endpoints
// with cached reads and optimistic mutations.
package databases

import (
	"context"
	"net/http"
	"net/url"

	"second-brain/internal/api"
	"second-brain/internal/domain"
	"second-brain/internal/query"

	"github.com/rs/zerolog"
)

type Service struct {
	api   api.Doer
	cache *query.Cache
	log   zerolog.Logger
}

func NewService(client api.Doer, cache *query.Cache, log zerolog.Logger) *Service {
	return &Service{api: client, cache: cache, log: log}
}

// Cache exposes the query cache the service reads through.
func (s *Service) Cache() *query.Cache {
	return s.cache
}

// DatabaseInput creates or updates a database. Nil fields are left unchanged.
type DatabaseInput struct {
	Name        string                 `json:"name,omitempty"`
	Icon        *string                `json:"icon,omitempty"`
	Description *string                `json:"description,omitempty"`
	Config      *domain.DatabaseConfig `json:"config,omitempty"`
}

func path(segments ...string) string {
	p := ""
	for _, s := range segments {
		p += "/" + url.PathEscape(s)
	}
	return p
}

func (s *Service) List(ctx context.Context) ([]domain.Schema, error) {
	return query.Fetch(ctx, s.cache, query.Query[[]domain.Schema]{
		Key: DatabasesKey,
		Fn: func(ctx context.Context) ([]domain.Schema, error) {
			var out []domain.Schema
			err := s.api.Do(ctx, http.MethodGet, "/databases", nil, &out)
			return out, err
		},
	})
}

// Get returns the schema of a database: its properties, views and config.
func (s *Service) Get(ctx context.Context, id string) (domain.Schema, error) {
	return query.Fetch(ctx, s.cache, query.Query[domain.Schema]{
		Key: SchemaKey(id),
		Fn: func(ctx context.Context) (domain.Schema, error) {
			var out domain.Schema
			err := s.api.Do(ctx, http.MethodGet, path("databases", id), nil, &out)
			return out, err
		},
	})
}

func (s *Service) Create(ctx context.Context, in DatabaseInput) (domain.Schema, error) {
	return query.Mutate(ctx, s.cache, query.Mutation[DatabaseInput, domain.Schema]{
		Name: "createDatabase",
		Fn: func(ctx context.Context, in DatabaseInput) (domain.Schema, error) {
			var out domain.Schema
			err := s.api.Do(ctx, http.MethodPost, "/databases", in, &out)
			return out, err
		},
		OnSuccess: func(db domain.Schema, _ DatabaseInput) {
			query.SetQueryData(s.cache, SchemaKey(db.ID), db)
		},
		Invalidates: func(DatabaseInput, domain.Schema) []query.Key {
			return []query.Key{DatabasesKey}
		},
		SuccessMessage: "Database created",
	}, in)
}

func (s *Service) Update(ctx context.Context, id string, in DatabaseInput) (domain.Schema, error) {
	return query.Mutate(ctx, s.cache, query.Mutation[DatabaseInput, domain.Schema]{
		Name: "updateDatabase",
		Fn: func(ctx context.Context, in DatabaseInput) (domain.Schema, error) {
			var out domain.Schema
			err := s.api.Do(ctx, http.MethodPut, path("databases", id), in, &out)
			return out, err
		},
		Invalidates: func(DatabaseInput, domain.Schema) []query.Key {
			return []query.Key{DatabaseKey(id), DatabasesKey}
		},
		SuccessMessage: "Database updated",
	}, in)
}

// Delete removes a database and drops everything cached for it.
func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := query.Mutate(ctx, s.cache, query.Mutation[string, struct{}]{
		Name: "deleteDatabase",
		Fn: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, s.api.Do(ctx, http.MethodDelete, path("databases", id), nil, nil)
		},
		OnSuccess: func(struct{}, string) {
			s.cache.Remove(DatabaseKey(id))
		},
		Invalidates: func(string, struct{}) []query.Key {
			return []query.Key{DatabasesKey}
		},
		SuccessMessage: "Database deleted",
	}, id)
	return err
}

// schemaProperties returns the property list of a database, from the cached
// schema when possible.
func (s *Service) schemaProperties(ctx context.Context, dbID string) ([]domain.Property, error) {
	if schema, ok := query.GetQueryData[domain.Schema](s.cache, SchemaKey(dbID)); ok {
		return schema.Properties, nil
	}
	if props, ok := query.GetQueryData[[]domain.Property](s.cache, PropertiesKey(dbID)); ok {
		return props, nil
	}
	return s.Properties(ctx, dbID)
}
