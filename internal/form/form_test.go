package form

import (
	"testing"
	"time"

	"second-brain/internal/domain"
	apperrors "second-brain/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProperties() []domain.Property {
	return []domain.Property{
		{ID: "title", Name: "Title", Type: domain.PropertyText, Required: true, Order: 0},
		{ID: "due", Name: "Due", Type: domain.PropertyDate, Order: 1},
		{ID: "estimate", Name: "Estimate", Type: domain.PropertyNumber, Order: 2},
		{ID: "status", Name: "Status", Type: domain.PropertySelect, Order: 3, Config: domain.PropertyConfig{
			SelectOptions: []domain.SelectOption{{ID: "todo", Name: "To do"}, {ID: "done", Name: "Done"}},
		}},
		{ID: "tags", Name: "Tags", Type: domain.PropertyMultiSelect, Order: 4, Config: domain.PropertyConfig{
			SelectOptions: []domain.SelectOption{{ID: "opt-b", Name: "B"}},
		}},
		{ID: "contact", Name: "Contact", Type: domain.PropertyEmail, Order: 5},
		{ID: "created", Name: "Created", Type: domain.PropertyCreatedTime, Order: 6},
	}
}

func build(t *testing.T) *Form {
	t.Helper()
	f, err := Build(testProperties())
	require.NoError(t, err)
	return f
}

func TestRules_CoverEveryPropertyType(t *testing.T) {
	for _, pt := range domain.PropertyTypes {
		rule, ok := RuleFor(pt)
		assert.True(t, ok, "no rule for %s", pt)
		assert.Equal(t, pt.IsComputed(), rule.Kind == KindComputed, "computed mismatch for %s", pt)
	}
}

func TestBuild_UnknownTypeFails(t *testing.T) {
	_, err := Build([]domain.Property{{ID: "x", Name: "X", Type: "HOLOGRAM"}})
	assert.Error(t, err)
}

func TestBuild_SkipsComputedFields(t *testing.T) {
	f := build(t)
	ids := make([]string, 0)
	for _, field := range f.Fields() {
		ids = append(ids, field.Property.ID)
	}
	assert.Equal(t, []string{"title", "due", "estimate", "status", "tags", "contact"}, ids)
	_, ok := f.Field("created")
	assert.False(t, ok)
}

func TestDate_RoundTripKeepsCalendarDay(t *testing.T) {
	f := build(t)

	payload, err := f.Submit(Values{"title": "Ship", "due": "2024-03-15T00:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-15T00:00:00Z", payload["due"])

	values := f.Prefill(domain.Record{Properties: payload})
	due, ok := values["due"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2024, due.Year())
	assert.Equal(t, time.March, due.Month())
	assert.Equal(t, 15, due.Day())

	local := time.Date(2024, 3, 15, 0, 0, 0, 0, time.FixedZone("UTC+2", 2*3600))
	assert.Equal(t, "2024-03-15T00:00:00Z", FormatDate(local))
}

func TestValidate_RequiredText(t *testing.T) {
	f := build(t)
	_, err := f.Validate(Values{"title": "   "})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	field, msg, ok := apperrors.FirstFieldError(err)
	require.True(t, ok)
	assert.Equal(t, "title", field)
	assert.Equal(t, "Title is required", msg)
}

func TestValidate_UnknownMultiSelectOptionRejected(t *testing.T) {
	f := build(t)
	_, err := f.Validate(Values{"title": "x", "tags": []any{"opt-a", "opt-b"}})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, `Tags has an unknown option "opt-a"`, appErr.Fields["tags"])
}

func TestValidate_CoercesAndFormats(t *testing.T) {
	f := build(t)

	values, err := f.Validate(Values{"title": "x", "estimate": "3.5", "status": map[string]any{"id": "done", "name": "Done"}})
	require.NoError(t, err)
	assert.Equal(t, 3.5, values["estimate"])
	assert.Equal(t, "done", values["status"])

	_, err = f.Validate(Values{"title": "x", "estimate": "lots"})
	assert.Error(t, err)

	_, err = f.Validate(Values{"title": "x", "contact": "not-an-email"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Contact must be a valid email address", appErr.Fields["contact"])
}

func TestPrefill_NormalizesLegacySelectShapes(t *testing.T) {
	f := build(t)
	rec := domain.Record{Properties: map[string]any{
		"status":  map[string]any{"id": "todo", "name": "To do", "color": "gray"},
		"tags":    []any{map[string]any{"id": "opt-b"}},
		"created": "2024-01-01T00:00:00Z",
	}}

	values := f.Prefill(rec)
	assert.Equal(t, "todo", values["status"])
	assert.Equal(t, []string{"opt-b"}, values["tags"])
	assert.NotContains(t, values, "created")
}

func TestSerialize_OmitsEmptyValues(t *testing.T) {
	f := build(t)
	payload := f.Serialize(Values{"title": "x", "estimate": "", "status": nil, "tags": []string{}, "contact": ""})
	assert.Equal(t, map[string]any{"title": "x"}, payload)
}

func TestCheckPayload(t *testing.T) {
	props := testProperties()

	assert.NoError(t, CheckPayload(props, map[string]any{"status": "todo", "estimate": 2, "due": nil}))

	err := CheckPayload(props, map[string]any{"tags": []string{"opt-a"}, "created": "now", "ghost": 1})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Fields, "tags")
	assert.Equal(t, "Created is read-only", appErr.Fields["created"])
	assert.Equal(t, "unknown property", appErr.Fields["ghost"])
}

func TestCheckPayload_RequiredCannotBeCleared(t *testing.T) {
	props := testProperties()

	for name, value := range map[string]any{"nil": nil, "empty": "", "blank": "   "} {
		t.Run(name, func(t *testing.T) {
			err := CheckPayload(props, map[string]any{"title": value})
			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "Title is required", appErr.Fields["title"])
		})
	}

	assert.NoError(t, CheckPayload(props, map[string]any{"title": "Still here", "estimate": nil}))
}

func TestMissingRequired(t *testing.T) {
	assert.Equal(t, map[string]string{"title": "Title is required"}, MissingRequired(testProperties(), map[string]any{}))
}
