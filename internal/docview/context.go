// Package docview holds the state of one mounted document view: the schema
// being shown, the active view, ad-hoc search/filters/sorts, the selection
// and the open dialog.
package docview

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"second-brain/internal/databases"
	"second-brain/internal/domain"
	"second-brain/internal/projection"
	"second-brain/internal/query"

	"github.com/rs/zerolog"
)

type State int

const (
	StateIdle State = iota
	StateLoadingSchema
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingSchema:
		return "loading_schema"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrClosed is returned for work that finished after Close or after the
	// context moved on to another database. Its result is discarded.
	ErrClosed   = errors.New("docview: context closed")
	ErrNotReady = errors.New("docview: schema not loaded")
)

// Source loads schemas and records. *databases.Service implements it.
type Source interface {
	Get(ctx context.Context, dbID string) (domain.Schema, error)
	Records(ctx context.Context, dbID string, params databases.RecordParams) (domain.RecordPage, error)
	Cache() *query.Cache
}

// Snapshot is a copy of the context state handed to callers and listeners.
type Snapshot struct {
	State      State
	DatabaseID string
	Schema     domain.Schema
	Err        error

	CurrentViewID   string
	Dialog          DialogKind
	CurrentRecord   *domain.Record
	CurrentProperty *domain.Property
	TargetView      *domain.View

	Search   string
	Filters  []domain.Filter
	Sorts    []domain.Sort
	Selected []string
	Page     int
	PerPage  int
}

type Option func(*Context)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Context) { c.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

func WithPerPage(n int) Option {
	return func(c *Context) { c.perPage = n }
}

// Context is the state container of one document view. All transitions are
// synchronous; only Open and Records touch the network.
type Context struct {
	src     Source
	log     zerolog.Logger
	now     func() time.Time
	perPage int

	mu        sync.Mutex
	state     State
	dbID      string
	schema    domain.Schema
	err       error
	viewID    string
	dialog    DialogKind
	record    *domain.Record
	property  *domain.Property
	target    *domain.View
	search    string
	filters   []domain.Filter
	sorts     []domain.Sort
	selected  map[string]struct{}
	page      int
	seq       uint64
	closed    bool
	unwatch   func()
	listeners map[int]func(Snapshot)
	nextID    int
}

func New(src Source, opts ...Option) *Context {
	c := &Context{
		src:       src,
		log:       zerolog.Nop(),
		now:       time.Now,
		perPage:   50,
		selected:  make(map[string]struct{}),
		listeners: make(map[int]func(Snapshot)),
		page:      1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open loads the schema of dbID and makes it the current database. Local
// state from a previous database is reset. The schema stays subscribed to
// the cache, so mutations that refetch it are reflected here.
func (c *Context) Open(ctx context.Context, dbID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.seq++
	seq := c.seq
	if c.unwatch != nil {
		c.unwatch()
		c.unwatch = nil
	}
	c.resetLocked()
	c.dbID = dbID
	c.state = StateLoadingSchema
	c.mu.Unlock()
	c.emit()

	schema, err := c.src.Get(ctx, dbID)

	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		c.log.Debug().Str("database_id", dbID).Msg("dropping late schema load")
		return ErrClosed
	}
	if err != nil {
		c.state = StateFailed
		c.err = err
		c.mu.Unlock()
		c.emit()
		return err
	}
	c.setSchemaLocked(schema)
	c.state = StateReady
	c.mu.Unlock()

	unwatch := c.src.Cache().Subscribe(databases.SchemaKey(dbID), func(query.Key) {
		c.schemaChanged(seq, dbID)
	})
	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		unwatch()
		return ErrClosed
	}
	c.unwatch = unwatch
	c.mu.Unlock()

	c.emit()
	return nil
}

// Close detaches the context. Loads still in flight are dropped when they
// finish and listeners are no longer called.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.seq++
	unwatch := c.unwatch
	c.unwatch = nil
	clear(c.listeners)
	c.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
}

func (c *Context) schemaChanged(seq uint64, dbID string) {
	schema, ok := query.GetQueryData[domain.Schema](c.src.Cache(), databases.SchemaKey(dbID))
	if !ok {
		return
	}
	c.mu.Lock()
	if c.closed || seq != c.seq {
		c.mu.Unlock()
		return
	}
	c.setSchemaLocked(schema)
	c.mu.Unlock()
	c.emit()
}

// setSchemaLocked installs a schema and repairs references into it: a
// current view that no longer exists falls back to the default view.
func (c *Context) setSchemaLocked(schema domain.Schema) {
	c.schema = schema
	c.err = nil
	if _, ok := schema.View(c.viewID); !ok {
		c.viewID = ""
		if v, ok := schema.DefaultView(); ok {
			c.viewID = v.ID
		}
	}
	if c.property != nil {
		if p, ok := schema.Property(c.property.ID); ok {
			c.property = &p
		}
	}
}

func (c *Context) resetLocked() {
	c.state = StateIdle
	c.dbID = ""
	c.schema = domain.Schema{}
	c.err = nil
	c.viewID = ""
	c.closeDialogLocked()
	c.search = ""
	c.filters = nil
	c.sorts = nil
	clear(c.selected)
	c.page = 1
}

// Subscribe registers fn to receive a snapshot after every transition.
func (c *Context) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Context) emit() {
	c.mu.Lock()
	if c.closed || len(c.listeners) == 0 {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	fns := slices.Collect(maps.Values(c.listeners))
	c.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Context) snapshotLocked() Snapshot {
	selected := slices.Sorted(maps.Keys(c.selected))
	return Snapshot{
		State:           c.state,
		DatabaseID:      c.dbID,
		Schema:          c.schema,
		Err:             c.err,
		CurrentViewID:   c.viewID,
		Dialog:          c.dialog,
		CurrentRecord:   c.record,
		CurrentProperty: c.property,
		TargetView:      c.target,
		Search:          c.search,
		Filters:         slices.Clone(c.filters),
		Sorts:           slices.Clone(c.sorts),
		Selected:        selected,
		Page:            c.page,
		PerPage:         c.perPage,
	}
}

func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// update runs fn under the lock and notifies listeners when it reports a
// change.
func (c *Context) update(fn func() (bool, error)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	changed, err := fn()
	c.mu.Unlock()
	if changed {
		c.emit()
	}
	return err
}

// SetCurrentView switches the active view. Ad-hoc filters, sorts and the
// selection belong to the previous view and are cleared.
func (c *Context) SetCurrentView(viewID string) error {
	return c.update(func() (bool, error) {
		if c.state != StateReady {
			return false, ErrNotReady
		}
		if _, ok := c.schema.View(viewID); !ok {
			return false, fmt.Errorf("view %q not found", viewID)
		}
		if viewID == c.viewID {
			return false, nil
		}
		c.viewID = viewID
		c.filters = nil
		c.sorts = nil
		clear(c.selected)
		c.page = 1
		return true, nil
	})
}

// CurrentView returns the active view: the selected one, else the default.
func (c *Context) CurrentView() (domain.View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentViewLocked()
}

func (c *Context) currentViewLocked() (domain.View, bool) {
	if v, ok := c.schema.View(c.viewID); ok {
		return v, true
	}
	return c.schema.DefaultView()
}

// VisibleProperties is the property list projected through the active view.
func (c *Context) VisibleProperties() []domain.Property {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.currentViewLocked()
	if !ok {
		return domain.VisibleProperties(c.schema.Properties, nil)
	}
	return domain.VisibleProperties(c.schema.Properties, &view)
}

func (c *Context) SetSearchQuery(term string) error {
	return c.update(func() (bool, error) {
		if term == c.search {
			return false, nil
		}
		c.search = term
		c.page = 1
		return true, nil
	})
}

// SetFilters replaces the ad-hoc filters. They are AND-combined with the
// filters saved on the view.
func (c *Context) SetFilters(filters []domain.Filter) error {
	return c.update(func() (bool, error) {
		c.filters = slices.Clone(filters)
		c.page = 1
		return true, nil
	})
}

func (c *Context) AddFilter(f domain.Filter) error {
	return c.update(func() (bool, error) {
		c.filters = append(c.filters, f)
		c.page = 1
		return true, nil
	})
}

func (c *Context) RemoveFilter(i int) error {
	return c.update(func() (bool, error) {
		if i < 0 || i >= len(c.filters) {
			return false, nil
		}
		c.filters = slices.Delete(slices.Clone(c.filters), i, i+1)
		c.page = 1
		return true, nil
	})
}

// SetSorts replaces the ad-hoc sorts. When set they take precedence over
// the sorts saved on the view.
func (c *Context) SetSorts(sorts []domain.Sort) error {
	return c.update(func() (bool, error) {
		c.sorts = slices.Clone(sorts)
		return true, nil
	})
}

func (c *Context) SetPage(page int) error {
	return c.update(func() (bool, error) {
		if page < 1 {
			page = 1
		}
		if page == c.page {
			return false, nil
		}
		c.page = page
		return true, nil
	})
}

func (c *Context) Select(ids ...string) error {
	return c.update(func() (bool, error) {
		for _, id := range ids {
			c.selected[id] = struct{}{}
		}
		return len(ids) > 0, nil
	})
}

func (c *Context) Deselect(ids ...string) error {
	return c.update(func() (bool, error) {
		for _, id := range ids {
			delete(c.selected, id)
		}
		return len(ids) > 0, nil
	})
}

func (c *Context) ToggleSelected(id string) error {
	return c.update(func() (bool, error) {
		if _, ok := c.selected[id]; ok {
			delete(c.selected, id)
		} else {
			c.selected[id] = struct{}{}
		}
		return true, nil
	})
}

func (c *Context) ClearSelection() error {
	return c.update(func() (bool, error) {
		if len(c.selected) == 0 {
			return false, nil
		}
		clear(c.selected)
		return true, nil
	})
}

func (c *Context) IsSelected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.selected[id]
	return ok
}

// SetCurrentRecord sets or clears (nil) the record being viewed or edited.
func (c *Context) SetCurrentRecord(r *domain.Record) error {
	return c.update(func() (bool, error) {
		c.record = r
		return true, nil
	})
}

// SetCurrentProperty sets or clears (nil) the property being edited.
func (c *Context) SetCurrentProperty(p *domain.Property) error {
	return c.update(func() (bool, error) {
		c.property = p
		return true, nil
	})
}

// OpenDialog opens kind, replacing any open dialog. Dialogs acting on an
// item need it set first with SetCurrentRecord or SetCurrentProperty; view
// dialogs take the view id.
func (c *Context) OpenDialog(kind DialogKind, viewID ...string) error {
	return c.update(func() (bool, error) {
		if !kind.Valid() {
			return false, fmt.Errorf("unknown dialog %d", int(kind))
		}
		if kind == DialogNone {
			c.closeDialogLocked()
			return true, nil
		}

		var view *domain.View
		switch kind.target() {
		case targetRecord:
			if c.record == nil {
				return false, fmt.Errorf("%s dialog needs a current record", kind)
			}
		case targetProperty:
			if c.property == nil {
				return false, fmt.Errorf("%s dialog needs a current property", kind)
			}
		case targetView:
			if len(viewID) == 0 {
				return false, fmt.Errorf("%s dialog needs a view", kind)
			}
			v, ok := c.schema.View(viewID[0])
			if !ok {
				return false, fmt.Errorf("view %q not found", viewID[0])
			}
			view = &v
		}

		// Targets that the new dialog does not use would otherwise reopen
		// with it.
		t := kind.target()
		if t != targetRecord {
			c.record = nil
		}
		if t != targetProperty {
			c.property = nil
		}
		c.target = view
		c.dialog = kind
		return true, nil
	})
}

// CloseDialog closes the open dialog and clears every edit target.
func (c *Context) CloseDialog() error {
	return c.update(func() (bool, error) {
		if c.dialog == DialogNone && c.record == nil && c.property == nil && c.target == nil {
			return false, nil
		}
		c.closeDialogLocked()
		return true, nil
	})
}

func (c *Context) closeDialogLocked() {
	c.dialog = DialogNone
	c.record = nil
	c.property = nil
	c.target = nil
}

// EffectiveView is the active view with the ad-hoc state applied: ad-hoc
// filters are appended to the saved ones and ad-hoc sorts, when present,
// replace the saved sorts.
func (c *Context) EffectiveView() (domain.View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.effectiveViewLocked()
}

func (c *Context) effectiveViewLocked() (domain.View, bool) {
	view, ok := c.currentViewLocked()
	if !ok {
		return domain.View{}, false
	}
	view = view.Clone()
	view.Filters = append(view.Filters, c.filters...)
	if len(c.sorts) > 0 {
		view.Sorts = slices.Clone(c.sorts)
	}
	return view, true
}

// RecordsQuery returns the cache key and request parameters of the records
// currently on screen. The key changes whenever the view, search, filters,
// sorts or page change.
func (c *Context) RecordsQuery() (query.Key, databases.RecordParams, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateReady {
		return nil, databases.RecordParams{}, ErrNotReady
	}
	params := databases.RecordParams{
		ViewID:  c.viewID,
		Search:  c.search,
		Filters: slices.Clone(c.filters),
		Sorts:   slices.Clone(c.sorts),
		Page:    c.page,
		PerPage: c.perPage,
	}
	return databases.RecordsKey(c.dbID, params), params, nil
}

// Records loads the current page of records. A result that arrives after
// the context was closed or reopened is dropped.
func (c *Context) Records(ctx context.Context) (domain.RecordPage, error) {
	_, params, err := c.RecordsQuery()
	if err != nil {
		return domain.RecordPage{}, err
	}
	c.mu.Lock()
	seq, dbID := c.seq, c.dbID
	c.mu.Unlock()

	page, err := c.src.Records(ctx, dbID, params)

	c.mu.Lock()
	stale := c.closed || seq != c.seq
	c.mu.Unlock()
	if stale {
		return domain.RecordPage{}, ErrClosed
	}
	return page, err
}

// Project runs records through the effective view and the search term.
// Records already filtered by the backend pass through unchanged, so the
// projection is safe to apply to server results.
func (c *Context) Project(records []domain.Record) projection.Result {
	c.mu.Lock()
	view, _ := c.effectiveViewLocked()
	props := slices.Clone(c.schema.Properties)
	term := c.search
	now := c.now()
	c.mu.Unlock()

	if term != "" {
		records = projection.Search(records, props, term)
	}
	return projection.Apply(records, props, view, now)
}
