// Package notification reads and updates the user's in-app notifications.
package notification

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"second-brain/internal/api"
	"second-brain/internal/query"

	"github.com/rs/zerolog"
)

var Key = query.Key{"notifications"}

func UnreadCountKey() query.Key {
	return Key.With("unread-count")
}

func ListKey(p ListParams) query.Key {
	return Key.With("list", p.values().Encode())
}

type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type Page struct {
	Notifications []Notification `json:"notifications"`
	Total         int64          `json:"total"`
	Unread        int64          `json:"unread"`
	Page          int            `json:"page"`
	PerPage       int            `json:"perPage"`
}

type ListParams struct {
	UnreadOnly bool
	Page       int
	PerPage    int
}

func (p ListParams) values() url.Values {
	v := url.Values{}
	if p.UnreadOnly {
		v.Set("unread", "true")
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		v.Set("perPage", strconv.Itoa(p.PerPage))
	}
	return v
}

// Device is a push notification target.
type Device struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
	Name     string `json:"name,omitempty"`
}

type Service struct {
	api   api.Doer
	cache *query.Cache
	log   zerolog.Logger
}

func NewService(client api.Doer, cache *query.Cache, log zerolog.Logger) *Service {
	return &Service{api: client, cache: cache, log: log}
}

func (s *Service) List(ctx context.Context, p ListParams) (Page, error) {
	return query.Fetch(ctx, s.cache, query.Query[Page]{
		Key: ListKey(p),
		Fn: func(ctx context.Context) (Page, error) {
			var out Page
			err := s.api.Do(ctx, http.MethodGet, "/notifications", nil, &out, api.Query(p.values()))
			return out, err
		},
	})
}

func (s *Service) UnreadCount(ctx context.Context) (int64, error) {
	return query.Fetch(ctx, s.cache, query.Query[int64]{
		Key: UnreadCountKey(),
		Fn: func(ctx context.Context) (int64, error) {
			var out struct {
				Count int64 `json:"count"`
			}
			err := s.api.Do(ctx, http.MethodGet, "/notifications/unread-count", nil, &out)
			return out.Count, err
		},
	})
}

// MarkRead marks one notification read. Cached lists and the unread count
// change immediately and are restored if the request fails.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	_, err := query.Mutate(ctx, s.cache, query.Mutation[string, struct{}]{
		Name: "markNotificationRead",
		Fn: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, s.api.Do(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
		},
		OnMutate: func(id string) func() {
			snap := s.cache.Snapshot(Key)
			s.markCached(func(n Notification) bool { return n.ID == id })
			return func() { s.cache.Restore(snap) }
		},
		Invalidates: func(string, struct{}) []query.Key { return []query.Key{Key} },
	}, id)
	return err
}

func (s *Service) MarkAllRead(ctx context.Context) error {
	_, err := query.Mutate(ctx, s.cache, query.Mutation[struct{}, struct{}]{
		Name: "markAllNotificationsRead",
		Fn: func(ctx context.Context, _ struct{}) (struct{}, error) {
			return struct{}{}, s.api.Do(ctx, http.MethodPatch, "/notifications/read-all", nil, nil)
		},
		OnMutate: func(struct{}) func() {
			snap := s.cache.Snapshot(Key)
			s.markCached(func(Notification) bool { return true })
			query.UpdateQueryData(s.cache, UnreadCountKey(), func(int64) int64 { return 0 })
			return func() { s.cache.Restore(snap) }
		},
		Invalidates:    func(struct{}, struct{}) []query.Key { return []query.Key{Key} },
		SuccessMessage: "All notifications marked as read",
	}, struct{}{})
	return err
}

func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := query.Mutate(ctx, s.cache, query.Mutation[string, struct{}]{
		Name: "deleteNotification",
		Fn: func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, s.api.Do(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil)
		},
		OnMutate: func(id string) func() {
			snap := s.cache.Snapshot(Key)
			var unreadDropped bool
			query.UpdateMatching(s.cache, Key.With("list"), func(_ query.Key, p Page) Page {
				i := slices.IndexFunc(p.Notifications, func(n Notification) bool { return n.ID == id })
				if i < 0 {
					return p
				}
				if !p.Notifications[i].Read {
					p.Unread--
					unreadDropped = true
				}
				p.Notifications = slices.Delete(slices.Clone(p.Notifications), i, i+1)
				p.Total--
				return p
			})
			if unreadDropped {
				query.UpdateQueryData(s.cache, UnreadCountKey(), func(n int64) int64 { return max(n-1, 0) })
			}
			return func() { s.cache.Restore(snap) }
		},
		Invalidates:    func(string, struct{}) []query.Key { return []query.Key{Key} },
		SuccessMessage: "Notification deleted",
	}, id)
	return err
}

// RegisterDevice subscribes a device to push notifications.
func (s *Service) RegisterDevice(ctx context.Context, d Device) error {
	_, err := query.Mutate(ctx, s.cache, query.Mutation[Device, struct{}]{
		Name: "registerDevice",
		Fn: func(ctx context.Context, d Device) (struct{}, error) {
			return struct{}{}, s.api.Do(ctx, http.MethodPost, "/notifications/devices/register", d, nil)
		},
		Silent: true,
	}, d)
	if err != nil {
		s.log.Warn().Err(err).Str("platform", d.Platform).Msg("device registration failed")
	}
	return err
}

// markCached flags matching notifications read in every cached list and
// lowers the cached unread count by the number that changed.
func (s *Service) markCached(match func(Notification) bool) {
	seen := make(map[string]bool)
	var changed int64
	query.UpdateMatching(s.cache, Key.With("list"), func(_ query.Key, p Page) Page {
		p.Notifications = slices.Clone(p.Notifications)
		for i, n := range p.Notifications {
			if n.Read || !match(n) {
				continue
			}
			p.Notifications[i].Read = true
			p.Unread--
			if !seen[n.ID] {
				seen[n.ID] = true
				changed++
			}
		}
		p.Unread = max(p.Unread, 0)
		return p
	})
	query.UpdateQueryData(s.cache, UnreadCountKey(), func(n int64) int64 {
		if changed == 0 {
			return n
		}
		return max(n-changed, 0)
	})
}
