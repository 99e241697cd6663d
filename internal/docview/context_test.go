package docview

import (
	"context"
	"sync"
	"testing"
	"time"

	"second-brain/internal/databases"
	"second-brain/internal/domain"
	"second-brain/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	cache  *query.Cache
	schema domain.Schema
	gate   chan struct{}

	mu      sync.Mutex
	params  []databases.RecordParams
	records []domain.Record
}

func (s *fakeSource) Get(ctx context.Context, dbID string) (domain.Schema, error) {
	if s.gate != nil {
		<-s.gate
	}
	return query.Fetch(ctx, s.cache, query.Query[domain.Schema]{
		Key: databases.SchemaKey(dbID),
		Fn:  func(context.Context) (domain.Schema, error) { return s.schema, nil },
	})
}

func (s *fakeSource) Records(_ context.Context, _ string, params databases.RecordParams) (domain.RecordPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = append(s.params, params)
	return domain.RecordPage{Records: s.records, Total: int64(len(s.records)), Page: params.Page}, nil
}

func (s *fakeSource) Cache() *query.Cache { return s.cache }

func testSchema() domain.Schema {
	status := domain.PropertyConfig{SelectOptions: []domain.SelectOption{{ID: "todo", Name: "To do"}, {ID: "done", Name: "Done"}}}
	return domain.Schema{
		ID: "db1",
		Properties: []domain.Property{
			{ID: "p1", Name: "Title", Type: domain.PropertyText, IsVisible: true, Order: 0},
			{ID: "p2", Name: "Status", Type: domain.PropertySelect, IsVisible: true, Order: 1, Config: status},
			{ID: "p3", Name: "Points", Type: domain.PropertyNumber, IsVisible: true, Order: 2},
		},
		Views: []domain.View{
			{ID: "v1", Name: "All", Type: domain.ViewTable, IsDefault: true},
			{ID: "v2", Name: "Board", Type: domain.ViewBoard, GroupBy: "p2", VisibleProperties: []string{"p2", "p1"}},
		},
	}
}

func openContext(t *testing.T) (*Context, *fakeSource) {
	t.Helper()
	src := &fakeSource{cache: query.New(query.Options{StaleTime: time.Minute, Retry: query.NoRetry}), schema: testSchema()}
	c := New(src, WithClock(func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }))
	t.Cleanup(c.Close)
	require.NoError(t, c.Open(context.Background(), "db1"))
	return c, src
}

func TestOpen_TransitionsToReady(t *testing.T) {
	src := &fakeSource{cache: query.New(query.Options{}), schema: testSchema()}
	c := New(src)
	defer c.Close()

	var states []State
	c.Subscribe(func(s Snapshot) { states = append(states, s.State) })
	assert.Equal(t, StateIdle, c.State())

	require.NoError(t, c.Open(context.Background(), "db1"))
	assert.Equal(t, []State{StateLoadingSchema, StateReady}, states)

	snap := c.Snapshot()
	assert.Equal(t, "db1", snap.DatabaseID)
	assert.Equal(t, "v1", snap.CurrentViewID)
}

func TestOpen_LateLoadDroppedAfterClose(t *testing.T) {
	src := &fakeSource{cache: query.New(query.Options{}), schema: testSchema(), gate: make(chan struct{})}
	c := New(src)

	done := make(chan error, 1)
	go func() { done <- c.Open(context.Background(), "db1") }()
	require.Eventually(t, func() bool { return c.State() == StateLoadingSchema }, time.Second, time.Millisecond)

	c.Close()
	close(src.gate)

	assert.ErrorIs(t, <-done, ErrClosed)
	assert.Equal(t, StateLoadingSchema, c.State())
	assert.ErrorIs(t, c.SetSearchQuery("x"), ErrClosed)
}

func TestSetCurrentView_ClearsAdHocState(t *testing.T) {
	c, _ := openContext(t)

	require.NoError(t, c.SetFilters([]domain.Filter{{PropertyID: "p2", Operator: domain.OpEquals, Value: "todo"}}))
	require.NoError(t, c.SetSorts([]domain.Sort{{PropertyID: "p3", Direction: domain.SortDesc}}))
	require.NoError(t, c.Select("r1", "r2"))
	before, _, err := c.RecordsQuery()
	require.NoError(t, err)

	require.NoError(t, c.SetCurrentView("v2"))

	snap := c.Snapshot()
	assert.Equal(t, "v2", snap.CurrentViewID)
	assert.Empty(t, snap.Filters)
	assert.Empty(t, snap.Sorts)
	assert.Empty(t, snap.Selected)

	after, params, err := c.RecordsQuery()
	require.NoError(t, err)
	assert.False(t, before.Equal(after))
	assert.Equal(t, "v2", params.ViewID)
	assert.True(t, after.HasPrefix(databases.RecordsPrefix("db1")))

	assert.Error(t, c.SetCurrentView("missing"))
}

func TestVisibleProperties_FollowsActiveView(t *testing.T) {
	c, _ := openContext(t)

	ids := func() []string {
		var out []string
		for _, p := range c.VisibleProperties() {
			out = append(out, p.ID)
		}
		return out
	}
	assert.Equal(t, []string{"p1", "p2", "p3"}, ids())

	require.NoError(t, c.SetCurrentView("v2"))
	assert.Equal(t, []string{"p2", "p1"}, ids())
}

func TestSchemaChangesInCacheAreReflected(t *testing.T) {
	c, src := openContext(t)

	updated := testSchema()
	updated.Properties[0].Order, updated.Properties[1].Order = 1, 0
	query.SetQueryData(src.cache, databases.SchemaKey("db1"), updated)

	var ids []string
	for _, p := range c.VisibleProperties() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"p2", "p1", "p3"}, ids)
}

func TestDeletedCurrentViewFallsBackToDefault(t *testing.T) {
	c, src := openContext(t)
	require.NoError(t, c.SetCurrentView("v2"))

	updated := testSchema()
	updated.Views = updated.Views[:1]
	query.SetQueryData(src.cache, databases.SchemaKey("db1"), updated)

	assert.Equal(t, "v1", c.Snapshot().CurrentViewID)
}

func TestDialogs_OneAtATimeAndCloseClearsTargets(t *testing.T) {
	c, _ := openContext(t)

	assert.Error(t, c.OpenDialog(DialogEditRecord), "edit needs a record")

	rec := domain.Record{ID: "r1"}
	require.NoError(t, c.SetCurrentRecord(&rec))
	require.NoError(t, c.OpenDialog(DialogEditRecord))
	assert.Equal(t, DialogEditRecord, c.Snapshot().Dialog)

	require.NoError(t, c.OpenDialog(DialogDuplicateView, "v2"))
	snap := c.Snapshot()
	assert.Equal(t, DialogDuplicateView, snap.Dialog)
	assert.Nil(t, snap.CurrentRecord)
	require.NotNil(t, snap.TargetView)
	assert.Equal(t, "v2", snap.TargetView.ID)

	prop := testSchema().Properties[1]
	require.NoError(t, c.SetCurrentProperty(&prop))
	require.NoError(t, c.OpenDialog(DialogEditProperty))
	require.NoError(t, c.CloseDialog())

	snap = c.Snapshot()
	assert.Equal(t, DialogNone, snap.Dialog)
	assert.Nil(t, snap.CurrentRecord)
	assert.Nil(t, snap.CurrentProperty)
	assert.Nil(t, snap.TargetView)

	assert.Error(t, c.OpenDialog(DialogKind(99)))
}

func TestEffectiveView_CombinesAdHocState(t *testing.T) {
	c, _ := openContext(t)
	require.NoError(t, c.SetCurrentView("v2"))
	require.NoError(t, c.AddFilter(domain.Filter{PropertyID: "p3", Operator: domain.OpGreaterThan, Value: 1}))
	require.NoError(t, c.SetSorts([]domain.Sort{{PropertyID: "p3", Direction: domain.SortAsc}}))

	view, ok := c.EffectiveView()
	require.True(t, ok)
	assert.Len(t, view.Filters, 1)
	assert.Equal(t, []domain.Sort{{PropertyID: "p3", Direction: domain.SortAsc}}, view.Sorts)

	require.NoError(t, c.RemoveFilter(0))
	view, _ = c.EffectiveView()
	assert.Empty(t, view.Filters)
}

func TestRecordsAndProject(t *testing.T) {
	c, src := openContext(t)
	src.records = []domain.Record{
		{ID: "r1", Properties: map[string]any{"p1": "Write docs", "p2": "todo", "p3": 3}},
		{ID: "r2", Properties: map[string]any{"p1": "Ship", "p2": "done", "p3": 1}},
		{ID: "r3", Properties: map[string]any{"p1": "Review docs", "p3": 2}},
	}
	require.NoError(t, c.SetCurrentView("v2"))
	require.NoError(t, c.SetSearchQuery("docs"))
	require.NoError(t, c.SetPage(2))

	page, err := c.Records(context.Background())
	require.NoError(t, err)
	require.Len(t, src.params, 1)
	assert.Equal(t, databases.RecordParams{ViewID: "v2", Search: "docs", Page: 2, PerPage: 50}, src.params[0])

	res := c.Project(page.Records)
	require.Len(t, res.Groups, 3)
	assert.Equal(t, "todo", res.Groups[0].Key)
	assert.Equal(t, "r1", res.Groups[0].Records[0].ID)
	assert.Empty(t, res.Groups[1].Records)
	assert.Equal(t, "No Status", res.Groups[2].Label)
	assert.Equal(t, "r3", res.Groups[2].Records[0].ID)
}

func TestSelection(t *testing.T) {
	c, _ := openContext(t)
	require.NoError(t, c.Select("b", "a"))
	require.NoError(t, c.ToggleSelected("c"))
	require.NoError(t, c.ToggleSelected("a"))
	assert.Equal(t, []string{"b", "c"}, c.Snapshot().Selected)
	assert.True(t, c.IsSelected("b"))

	require.NoError(t, c.ClearSelection())
	assert.Empty(t, c.Snapshot().Selected)
}
