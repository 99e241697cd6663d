// Package dashboard reads the home dashboard and the activity feed.
package dashboard

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"second-brain/internal/api"
	"second-brain/internal/query"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	Key         = query.Key{"dashboard"}
	ActivityKey = query.Key{"system", "activity"}
)

func SummaryKey() query.Key {
	return Key.With("summary")
}

func StatsKey(period string) query.Key {
	return Key.With("stats", period)
}

func ActivityListKey(limit int) query.Key {
	return Key.With("activity", strconv.Itoa(limit))
}

func FeedKey(p FeedParams) query.Key {
	return ActivityKey.With("feed", p.values().Encode())
}

type DatabaseRef struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Summary struct {
	TotalDatabases  int64         `json:"totalDatabases"`
	TotalRecords    int64         `json:"totalRecords"`
	RecentDatabases []DatabaseRef `json:"recentDatabases"`
}

type Stats struct {
	Period         string           `json:"period"`
	RecordsCreated int64            `json:"recordsCreated"`
	RecordsUpdated int64            `json:"recordsUpdated"`
	ByModule       map[string]int64 `json:"byModule,omitempty"`
}

type Activity struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	EntityType string    `json:"entityType,omitempty"`
	EntityID   string    `json:"entityId,omitempty"`
	Title      string    `json:"title"`
	UserID     string    `json:"userId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ActivityPage struct {
	Activities []Activity `json:"activities"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PerPage    int        `json:"perPage"`
}

// Overview is everything the dashboard shows. Warnings name the widgets
// that could not be loaded and are shown empty instead.
type Overview struct {
	Summary  Summary
	Stats    Stats
	Activity []Activity
	Warnings []string
}

type FeedParams struct {
	Type    string
	Page    int
	PerPage int
}

func (p FeedParams) values() url.Values {
	v := url.Values{}
	if p.Type != "" {
		v.Set("type", p.Type)
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		v.Set("perPage", strconv.Itoa(p.PerPage))
	}
	return v
}

// PageVisit is reported when the user opens a page worth listing in the
// recent activity.
type PageVisit struct {
	Path       string `json:"path"`
	Title      string `json:"title,omitempty"`
	EntityType string `json:"entityType,omitempty"`
	EntityID   string `json:"entityId,omitempty"`
}

type Service struct {
	api   api.Doer
	cache *query.Cache
	log   zerolog.Logger
}

func NewService(client api.Doer, cache *query.Cache, log zerolog.Logger) *Service {
	return &Service{api: client, cache: cache, log: log}
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	return query.Fetch(ctx, s.cache, query.Query[Summary]{
		Key: SummaryKey(),
		Fn: func(ctx context.Context) (Summary, error) {
			var out Summary
			err := s.api.Do(ctx, http.MethodGet, "/dashboard", nil, &out)
			return out, err
		},
	})
}

func (s *Service) Stats(ctx context.Context, period string) (Stats, error) {
	return query.Fetch(ctx, s.cache, query.Query[Stats]{
		Key: StatsKey(period),
		Fn: func(ctx context.Context) (Stats, error) {
			var out Stats
			var opts []api.RequestOption
			if period != "" {
				opts = append(opts, api.Query(url.Values{"period": {period}}))
			}
			err := s.api.Do(ctx, http.MethodGet, "/dashboard/stats", nil, &out, opts...)
			return out, err
		},
	})
}

func (s *Service) Activity(ctx context.Context, limit int) ([]Activity, error) {
	return query.Fetch(ctx, s.cache, query.Query[[]Activity]{
		Key: ActivityListKey(limit),
		Fn: func(ctx context.Context) ([]Activity, error) {
			var out []Activity
			err := s.api.Do(ctx, http.MethodGet, "/dashboard/activity", nil, &out,
				api.Query(url.Values{"limit": {strconv.Itoa(limit)}}))
			return out, err
		},
	})
}

// Overview loads the summary, stats and recent activity concurrently. The
// summary is required; stats and activity that fail are replaced by empty
// widgets and reported in Warnings.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	var (
		ov          Overview
		statsErr    error
		activityErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ov.Summary, err = s.Summary(gctx)
		return err
	})
	g.Go(func() error {
		ov.Stats, statsErr = s.Stats(gctx, "")
		return nil
	})
	g.Go(func() error {
		ov.Activity, activityErr = s.Activity(gctx, 10)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}

	if statsErr != nil {
		s.log.Warn().Err(statsErr).Msg("dashboard stats unavailable")
		ov.Stats = Stats{}
		ov.Warnings = append(ov.Warnings, "Statistics are unavailable right now")
	}
	if activityErr != nil {
		s.log.Warn().Err(activityErr).Msg("dashboard activity unavailable")
		ov.Activity = []Activity{}
		ov.Warnings = append(ov.Warnings, "Recent activity is unavailable right now")
	}
	return ov, nil
}

func (s *Service) ActivityFeed(ctx context.Context, p FeedParams) (ActivityPage, error) {
	return query.Fetch(ctx, s.cache, query.Query[ActivityPage]{
		Key: FeedKey(p),
		Fn: func(ctx context.Context) (ActivityPage, error) {
			var out ActivityPage
			err := s.api.Do(ctx, http.MethodGet, "/system/activity/feed", nil, &out, api.Query(p.values()))
			return out, err
		},
	})
}

// RecordPageVisit reports a visit. It is best effort: failures are logged
// and never shown to the user.
func (s *Service) RecordPageVisit(ctx context.Context, v PageVisit) error {
	if err := s.api.Do(ctx, http.MethodPost, "/system/activity/page-visit", v, nil); err != nil {
		s.log.Debug().Err(err).Str("path", v.Path).Msg("page visit not recorded")
		return err
	}
	s.cache.Invalidate(ctx, ActivityKey)
	s.cache.Invalidate(ctx, Key.With("activity"))
	return nil
}
