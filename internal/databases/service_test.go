package databases

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"second-brain/internal/api"
	"second-brain/internal/domain"
	apperrors "second-brain/internal/errors"
	"second-brain/internal/notify"
	"second-brain/internal/query"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu         sync.Mutex
	schema     domain.Schema
	requests   []string
	bodies     map[string]json.RawMessage
	failWrites bool
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	route := r.Method + " " + r.URL.Path
	b.requests = append(b.requests, route)
	var body json.RawMessage
	_ = json.NewDecoder(r.Body).Decode(&body)
	b.bodies[route] = body

	write := func(status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	if b.failWrites && r.Method != http.MethodGet {
		write(http.StatusInternalServerError, map[string]string{"message": "boom"})
		return
	}

	switch route {
	case "GET /databases/db1":
		write(http.StatusOK, map[string]any{"data": b.schema})
	case "POST /databases/db1/properties/reorder":
		var in struct {
			PropertyIDs []string `json:"propertyIds"`
		}
		_ = json.Unmarshal(body, &in)
		b.schema.Properties = reorder(b.schema.Properties, in.PropertyIDs)
		write(http.StatusOK, map[string]any{"message": "ok"})
	case "POST /databases/db1/views":
		var v domain.View
		_ = json.Unmarshal(body, &v)
		v.ID = "v-copy"
		write(http.StatusCreated, map[string]any{"data": v})
	case "DELETE /databases/db1/views/v1":
		if len(b.schema.Views) <= 1 {
			write(http.StatusUnprocessableEntity, map[string]any{"message": MsgLastView, "errors": map[string]string{}})
			return
		}
		write(http.StatusOK, map[string]any{"message": "View deleted"})
	case "POST /databases/db1/records":
		write(http.StatusCreated, map[string]any{"data": domain.Record{ID: "r-new", DatabaseID: "db1"}})
	default:
		write(http.StatusNotFound, map[string]string{"message": "not found"})
	}
}

func (b *fakeBackend) calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.requests {
		if r == route {
			n++
		}
	}
	return n
}

func (b *fakeBackend) setFailWrites(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWrites = fail
}

func (b *fakeBackend) body(route string) json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[route]
}

func setup(t *testing.T, schema domain.Schema) (*Service, *fakeBackend, *notify.Recorder) {
	t.Helper()
	backend := &fakeBackend{schema: schema, bodies: make(map[string]json.RawMessage)}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	rec := &notify.Recorder{}
	cache := query.New(query.Options{StaleTime: time.Minute, Retry: query.NoRetry}, query.WithNotifier(rec))
	svc := NewService(api.NewClient(srv.URL, nil), cache, zerolog.Nop())
	return svc, backend, rec
}

func threeProperties() domain.Schema {
	return domain.Schema{
		ID:   "db1",
		Name: "Tasks",
		Properties: []domain.Property{
			{ID: "p1", Name: "Title", Type: domain.PropertyText, IsVisible: true, Order: 0},
			{ID: "p2", Name: "Status", Type: domain.PropertySelect, IsVisible: true, Order: 1, Config: domain.PropertyConfig{
				SelectOptions: []domain.SelectOption{{ID: "todo", Name: "To do"}},
			}},
			{ID: "p3", Name: "Tags", Type: domain.PropertyMultiSelect, IsVisible: true, Order: 2, Config: domain.PropertyConfig{
				SelectOptions: []domain.SelectOption{{ID: "opt-b", Name: "B"}},
			}},
		},
		Views: []domain.View{{ID: "v1", Name: "Board", Type: domain.ViewBoard, IsDefault: true, Filters: []domain.Filter{{PropertyID: "p2", Operator: domain.OpEquals, Value: "todo"}}}},
	}
}

func visibleIDs(schema domain.Schema) []string {
	view, _ := schema.DefaultView()
	var ids []string
	for _, p := range domain.VisibleProperties(schema.Properties, &view) {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestReorderProperties_ReflectedInVisibleProperties(t *testing.T) {
	svc, backend, _ := setup(t, threeProperties())
	ctx := context.Background()

	schema, err := svc.Get(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, visibleIDs(schema))

	unsubscribe := svc.Cache().Subscribe(DatabaseKey("db1"), func(query.Key) {})
	defer unsubscribe()

	require.NoError(t, svc.ReorderProperties(ctx, "db1", []string{"p2", "p1", "p3"}))

	cached, ok := query.GetQueryData[domain.Schema](svc.Cache(), SchemaKey("db1"))
	require.True(t, ok)
	assert.Equal(t, []string{"p2", "p1", "p3"}, visibleIDs(cached))
	assert.Equal(t, 2, backend.calls("GET /databases/db1"))

	schema, err = svc.Get(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1", "p3"}, visibleIDs(schema))
}

func TestReorderProperties_RejectsNonPermutation(t *testing.T) {
	svc, backend, _ := setup(t, threeProperties())
	ctx := context.Background()
	_, err := svc.Get(ctx, "db1")
	require.NoError(t, err)

	err = svc.ReorderProperties(ctx, "db1", []string{"p1", "p1", "p3"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, 0, backend.calls("POST /databases/db1/properties/reorder"))
}

func TestReorderProperties_RollsBackOnFailure(t *testing.T) {
	svc, backend, rec := setup(t, threeProperties())
	ctx := context.Background()
	_, err := svc.Get(ctx, "db1")
	require.NoError(t, err)
	backend.setFailWrites(true)

	err = svc.ReorderProperties(ctx, "db1", []string{"p3", "p2", "p1"})
	require.Error(t, err)

	cached, _ := query.GetQueryData[domain.Schema](svc.Cache(), SchemaKey("db1"))
	assert.Equal(t, []string{"p1", "p2", "p3"}, visibleIDs(cached))
	last, _ := rec.Last()
	assert.Equal(t, notify.LevelError, last.Level)
}

func TestDeleteView_LastViewRejectedLocally(t *testing.T) {
	svc, backend, rec := setup(t, threeProperties())
	ctx := context.Background()
	_, err := svc.Get(ctx, "db1")
	require.NoError(t, err)

	err = svc.DeleteView(ctx, "db1", "v1")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, MsgLastView, apperrors.UserMessage(err))
	assert.Equal(t, 0, backend.calls("DELETE /databases/db1/views/v1"))

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, notify.Notification{Level: notify.LevelError, Message: MsgLastView}, last)
}

func TestDeleteView_UncachedLeavesGuardToBackend(t *testing.T) {
	svc, backend, _ := setup(t, threeProperties())

	err := svc.DeleteView(context.Background(), "db1", "v1")
	require.Error(t, err)
	assert.Equal(t, MsgLastView, apperrors.UserMessage(err))
	assert.Equal(t, 0, backend.calls("GET /databases/db1"))
	assert.Equal(t, 0, backend.calls("GET /databases/db1/views"))
	assert.Equal(t, 1, backend.calls("DELETE /databases/db1/views/v1"))
}

func TestDuplicateView_CopiesConfigAndIsNeverDefault(t *testing.T) {
	svc, backend, _ := setup(t, threeProperties())
	ctx := context.Background()
	_, err := svc.Get(ctx, "db1")
	require.NoError(t, err)

	view, err := svc.DuplicateView(ctx, "db1", "v1")
	require.NoError(t, err)
	assert.Equal(t, "Board (Copy)", view.Name)
	assert.False(t, view.IsDefault)
	assert.Equal(t, domain.ViewBoard, view.Type)
	require.Len(t, view.Filters, 1)
	assert.Equal(t, "p2", view.Filters[0].PropertyID)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(backend.body("POST /databases/db1/views"), &sent))
	assert.Equal(t, false, sent["isDefault"])
}

func TestUpdateProperty_TypeChangeRejected(t *testing.T) {
	svc, backend, _ := setup(t, threeProperties())
	ctx := context.Background()
	_, err := svc.Get(ctx, "db1")
	require.NoError(t, err)

	_, err = svc.UpdateProperty(ctx, "db1", "p1", PropertyInput{Type: domain.PropertyNumber})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, 0, backend.calls("PUT /databases/db1/properties/p1"))
}

func TestCreateRecord_UnknownOptionRejected(t *testing.T) {
	svc, backend, _ := setup(t, threeProperties())
	ctx := context.Background()
	_, err := svc.Get(ctx, "db1")
	require.NoError(t, err)

	_, err = svc.CreateRecord(ctx, "db1", map[string]any{"p1": "Ship", "p3": []string{"opt-a", "opt-b"}})
	require.Error(t, err)
	_, msg, _ := apperrors.FirstFieldError(err)
	assert.Equal(t, `Tags has an unknown option "opt-a"`, msg)
	assert.Equal(t, 0, backend.calls("POST /databases/db1/records"))

	rec, err := svc.CreateRecord(ctx, "db1", map[string]any{"p1": "Ship", "p3": []string{"opt-b"}})
	require.NoError(t, err)
	assert.Equal(t, "r-new", rec.ID)
}

func TestUpdateRecord_RequiredCannotBeCleared(t *testing.T) {
	schema := threeProperties()
	schema.Properties[0].Required = true
	svc, backend, rec := setup(t, schema)
	ctx := context.Background()
	_, err := svc.Get(ctx, "db1")
	require.NoError(t, err)

	_, err = svc.UpdateRecord(ctx, "db1", "r1", map[string]any{"p1": nil})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	_, msg, _ := apperrors.FirstFieldError(err)
	assert.Equal(t, "Title is required", msg)

	err = svc.BulkUpdate(ctx, "db1", []string{"r1", "r2"}, map[string]any{"p1": ""})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	assert.Equal(t, 0, backend.calls("PUT /databases/db1/records/r1"))
	assert.Equal(t, 0, backend.calls("POST /databases/db1/records/bulk-update"))
	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelError, last.Level)
}

func TestUpdateRecord_PatchesCachedPagesOptimistically(t *testing.T) {
	svc, backend, _ := setup(t, threeProperties())
	ctx := context.Background()
	_, err := svc.Get(ctx, "db1")
	require.NoError(t, err)

	key := RecordsKey("db1", RecordParams{Page: 1})
	query.SetQueryData(svc.Cache(), key, domain.RecordPage{Records: []domain.Record{
		{ID: "r1", Properties: map[string]any{"p1": "Old"}},
	}})
	backend.setFailWrites(true)

	_, err = svc.UpdateRecord(ctx, "db1", "r1", map[string]any{"p1": "New"})
	require.Error(t, err)

	page, _ := query.GetQueryData[domain.RecordPage](svc.Cache(), key)
	assert.Equal(t, "Old", page.Records[0].Properties["p1"])
}

func TestRecordParams_EncodeIsStable(t *testing.T) {
	p := RecordParams{ViewID: "v1", Search: "x", Page: 2, PerPage: 50, Sorts: []domain.Sort{{PropertyID: "p1", Direction: domain.SortAsc}}}
	assert.Equal(t, p.Encode(), p.Encode())
	assert.Equal(t, "2", p.Values().Get("page"))
	assert.JSONEq(t, `[{"propertyId":"p1","direction":"asc"}]`, p.Values().Get("sorts"))
}
