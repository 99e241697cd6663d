package schema

import (
	"context"
	"encoding/json"
	defError "errors"
	"fmt"
	"slices"
	"time"

	"second-brain/internal/domain"
	"second-brain/internal/errors"
	"second-brain/internal/form"
	"second-brain/internal/projection"
	"second-brain/internal/utils"
	"second-brain/redis"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MsgLastView          = "Cannot delete the last view"
	MsgTypeChange        = "Use the type change endpoint to change a property type"
	MsgReorderIncomplete = "Property order must list every property exactly once"
)

// Inputs leave nil fields unchanged on update.
type DatabaseInput struct {
	Name        string                 `json:"name"`
	Icon        *string                `json:"icon"`
	Description *string                `json:"description"`
	Config      *domain.DatabaseConfig `json:"config"`
}

type PropertyInput struct {
	Name        string                 `json:"name"`
	Type        domain.PropertyType    `json:"type"`
	Required    *bool                  `json:"required"`
	IsVisible   *bool                  `json:"isVisible"`
	Order       *int                   `json:"order"`
	Width       *int                   `json:"width"`
	Description *string                `json:"description"`
	Config      *domain.PropertyConfig `json:"config"`
}

type ViewInput struct {
	Name              string             `json:"name"`
	Type              domain.ViewType    `json:"type"`
	IsDefault         *bool              `json:"isDefault"`
	VisibleProperties []string           `json:"visibleProperties"`
	Filters           []domain.Filter    `json:"filters"`
	Sorts             []domain.Sort      `json:"sorts"`
	GroupBy           *string            `json:"groupBy"`
	Config            *domain.ViewConfig `json:"config"`
}

// RecordQuery selects a page of records. Ad-hoc filters are added to the
// view's; ad-hoc sorts replace the view's.
type RecordQuery struct {
	ViewID  string          `json:"viewId,omitempty"`
	Search  string          `json:"search,omitempty"`
	Filters []domain.Filter `json:"filters,omitempty"`
	Sorts   []domain.Sort   `json:"sorts,omitempty"`
	Page    int             `json:"page"`
	PerPage int             `json:"perPage"`
}

type Service interface {
	ListDatabases(ctx context.Context, userID string) ([]domain.Schema, error)
	GetDatabase(ctx context.Context, userID, id string) (*domain.Schema, error)
	CreateDatabase(ctx context.Context, userID string, in DatabaseInput) (*domain.Schema, error)
	UpdateDatabase(ctx context.Context, userID, id string, in DatabaseInput) (*domain.Schema, error)
	DeleteDatabase(ctx context.Context, userID, id string) error

	ListProperties(ctx context.Context, userID, dbID string) ([]domain.Property, error)
	CreateProperty(ctx context.Context, userID, dbID string, in PropertyInput) (*domain.Property, error)
	UpdateProperty(ctx context.Context, userID, dbID, propertyID string, in PropertyInput) (*domain.Property, error)
	ChangePropertyType(ctx context.Context, userID, dbID, propertyID string, to domain.PropertyType, cfg *domain.PropertyConfig) (*domain.Property, error)
	DeleteProperty(ctx context.Context, userID, dbID, propertyID string) error
	ReorderProperties(ctx context.Context, userID, dbID string, ids []string) error

	ListViews(ctx context.Context, userID, dbID string) ([]domain.View, error)
	CreateView(ctx context.Context, userID, dbID string, in ViewInput) (*domain.View, error)
	UpdateView(ctx context.Context, userID, dbID, viewID string, in ViewInput) (*domain.View, error)
	DeleteView(ctx context.Context, userID, dbID, viewID string) error

	ListRecords(ctx context.Context, userID, dbID string, q RecordQuery) (*domain.RecordPage, error)
	GetRecord(ctx context.Context, userID, dbID, recordID string) (*domain.Record, error)
	CreateRecord(ctx context.Context, userID, dbID string, values map[string]any) (*domain.Record, error)
	UpdateRecord(ctx context.Context, userID, dbID, recordID string, patch map[string]any) (*domain.Record, error)
	DeleteRecord(ctx context.Context, userID, dbID, recordID string, permanent bool) error
	BulkUpdateRecords(ctx context.Context, userID, dbID string, ids []string, patch map[string]any) (int, error)
	BulkDeleteRecords(ctx context.Context, userID, dbID string, ids []string, permanent bool) (int64, error)
}

type DefaultService struct {
	repository SchemaRepository
	cache      *redis.Cache
	log        zerolog.Logger
	now        func() time.Time
}

// NewService creates the schema service. cache may be nil.
func NewService(repository SchemaRepository, cache *redis.Cache, log zerolog.Logger) Service {
	return &DefaultService{repository: repository, cache: cache, log: log, now: time.Now}
}

func versionKey(dbID string) string {
	return fmt.Sprintf("db:%s:records:version", dbID)
}

// touch bumps the record-list cache version of a database.
func (s *DefaultService) touch(ctx context.Context, dbID string) {
	s.cache.IncrementVersion(ctx, versionKey(dbID))
}

// database loads a database the user owns. Foreign databases are reported
// as missing.
func (s *DefaultService) database(ctx context.Context, userID, id string) (*Database, error) {
	db, err := s.repository.FindDatabase(ctx, id)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Database not found", err)
		}
		return nil, err
	}
	if db.OwnerID != userID {
		return nil, errors.NotFound("Database not found", nil)
	}
	return db, nil
}

func (s *DefaultService) ListDatabases(ctx context.Context, userID string) ([]domain.Schema, error) {
	dbs, err := s.repository.ListDatabases(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Schema, 0, len(dbs))
	for i := range dbs {
		out = append(out, dbs[i].ToDomain())
	}
	return out, nil
}

func (s *DefaultService) GetDatabase(ctx context.Context, userID, id string) (*domain.Schema, error) {
	db, err := s.database(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	schema := db.ToDomain()
	return &schema, nil
}

// CreateDatabase starts every database with a Name property and a default
// table view.
func (s *DefaultService) CreateDatabase(ctx context.Context, userID string, in DatabaseInput) (*domain.Schema, error) {
	if in.Name == "" {
		return nil, errors.Validation("Name is required", map[string]string{"name": "Name is required"})
	}
	db := &Database{
		OwnerID: userID,
		Name:    in.Name,
		Properties: []Property{{
			Name:      "Name",
			Type:      domain.PropertyText,
			IsVisible: true,
		}},
		Views: []View{{
			Name:      "Table",
			Type:      domain.ViewTable,
			IsDefault: true,
		}},
	}
	applyDatabaseInput(db, in)

	if err := s.repository.CreateDatabase(ctx, db); err != nil {
		return nil, err
	}
	s.log.Info().Str("database_id", db.ID).Str("user_id", userID).Msg("database created")
	schema := db.ToDomain()
	return &schema, nil
}

func (s *DefaultService) UpdateDatabase(ctx context.Context, userID, id string, in DatabaseInput) (*domain.Schema, error) {
	db, err := s.database(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Name != "" {
		db.Name = in.Name
	}
	applyDatabaseInput(db, in)
	if err := s.repository.UpdateDatabase(ctx, db); err != nil {
		return nil, err
	}
	schema := db.ToDomain()
	return &schema, nil
}

func applyDatabaseInput(db *Database, in DatabaseInput) {
	if in.Icon != nil {
		db.Icon = *in.Icon
	}
	if in.Description != nil {
		db.Description = *in.Description
	}
	if in.Config != nil {
		db.Config = datatypes.NewJSONType(*in.Config)
	}
}

func (s *DefaultService) DeleteDatabase(ctx context.Context, userID, id string) error {
	if _, err := s.database(ctx, userID, id); err != nil {
		return err
	}
	if err := s.repository.DeleteDatabase(ctx, id); err != nil {
		return err
	}
	s.touch(ctx, id)
	return nil
}

func (s *DefaultService) ListProperties(ctx context.Context, userID, dbID string) ([]domain.Property, error) {
	schema, err := s.GetDatabase(ctx, userID, dbID)
	if err != nil {
		return nil, err
	}
	return schema.Properties, nil
}

func (s *DefaultService) CreateProperty(ctx context.Context, userID, dbID string, in PropertyInput) (*domain.Property, error) {
	db, err := s.database(ctx, userID, dbID)
	if err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, errors.Validation("Name is required", map[string]string{"name": "Name is required"})
	}
	if !in.Type.Valid() {
		return nil, errors.Validation("Unknown property type", map[string]string{"type": "Unknown property type"})
	}

	p := &Property{DatabaseID: db.ID, Name: in.Name, Type: in.Type, IsVisible: true}
	if in.Order == nil {
		schema := db.ToDomain()
		p.Position = schema.NextPropertyOrder()
	}
	applyPropertyInput(p, in)

	if err := s.repository.CreateProperty(ctx, p); err != nil {
		return nil, err
	}
	out := p.ToDomain()
	return &out, nil
}

func (s *DefaultService) property(ctx context.Context, userID, dbID, propertyID string) (*Database, *Property, error) {
	db, err := s.database(ctx, userID, dbID)
	if err != nil {
		return nil, nil, err
	}
	i := slices.IndexFunc(db.Properties, func(p Property) bool { return p.ID == propertyID })
	if i < 0 {
		return nil, nil, errors.NotFound("Property not found", nil)
	}
	return db, &db.Properties[i], nil
}

// UpdateProperty never changes the type; that goes through
// ChangePropertyType.
func (s *DefaultService) UpdateProperty(ctx context.Context, userID, dbID, propertyID string, in PropertyInput) (*domain.Property, error) {
	_, p, err := s.property(ctx, userID, dbID, propertyID)
	if err != nil {
		return nil, err
	}
	if in.Type != "" && in.Type != p.Type {
		return nil, errors.Validation(MsgTypeChange, map[string]string{"type": MsgTypeChange})
	}
	if in.Name != "" {
		p.Name = in.Name
	}
	applyPropertyInput(p, in)

	if err := s.repository.SaveProperty(ctx, p); err != nil {
		return nil, err
	}
	s.touch(ctx, dbID)
	out := p.ToDomain()
	return &out, nil
}

// ChangePropertyType keeps stored values. Options are dropped when the new
// type has none.
func (s *DefaultService) ChangePropertyType(ctx context.Context, userID, dbID, propertyID string, to domain.PropertyType, cfg *domain.PropertyConfig) (*domain.Property, error) {
	_, p, err := s.property(ctx, userID, dbID, propertyID)
	if err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, errors.Validation("Unknown property type", map[string]string{"type": "Unknown property type"})
	}

	from := p.Type
	p.Type = to
	switch {
	case cfg != nil:
		p.Config = datatypes.NewJSONType(withOptionIDs(*cfg))
	case !to.HasOptions():
		c := p.Config.Data()
		c.SelectOptions = nil
		p.Config = datatypes.NewJSONType(c)
	}

	if err := s.repository.SaveProperty(ctx, p); err != nil {
		return nil, err
	}
	s.touch(ctx, dbID)
	s.log.Info().Str("property_id", p.ID).Str("from", string(from)).Str("to", string(to)).Msg("property type changed")
	out := p.ToDomain()
	return &out, nil
}

func applyPropertyInput(p *Property, in PropertyInput) {
	if in.Required != nil {
		p.Required = *in.Required
	}
	if in.IsVisible != nil {
		p.IsVisible = *in.IsVisible
	}
	if in.Order != nil {
		p.Position = *in.Order
	}
	if in.Width != nil {
		p.Width = in.Width
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Config != nil {
		p.Config = datatypes.NewJSONType(withOptionIDs(*in.Config))
	}
}

// withOptionIDs gives new select options an id.
func withOptionIDs(cfg domain.PropertyConfig) domain.PropertyConfig {
	cfg.SelectOptions = slices.Clone(cfg.SelectOptions)
	for i := range cfg.SelectOptions {
		if cfg.SelectOptions[i].ID == "" {
			cfg.SelectOptions[i].ID = uuid.NewString()
		}
	}
	return cfg
}

// DeleteProperty also scrubs the property from every view that mentions it.
func (s *DefaultService) DeleteProperty(ctx context.Context, userID, dbID, propertyID string) error {
	db, p, err := s.property(ctx, userID, dbID, propertyID)
	if err != nil {
		return err
	}

	var changed []View
	for _, v := range db.Views {
		if scrubView(&v, propertyID) {
			changed = append(changed, v)
		}
	}

	if err := s.repository.DeleteProperty(ctx, p, changed); err != nil {
		return err
	}
	s.touch(ctx, dbID)
	return nil
}

func scrubView(v *View, propertyID string) bool {
	changed := false
	if i := slices.Index(v.VisibleProperties, propertyID); i >= 0 {
		v.VisibleProperties = slices.Delete(slices.Clone(v.VisibleProperties), i, i+1)
		changed = true
	}
	filters := slices.DeleteFunc(slices.Clone(v.Filters), func(f domain.Filter) bool { return f.PropertyID == propertyID })
	if len(filters) != len(v.Filters) {
		v.Filters = filters
		changed = true
	}
	sorts := slices.DeleteFunc(slices.Clone(v.Sorts), func(s domain.Sort) bool { return s.PropertyID == propertyID })
	if len(sorts) != len(v.Sorts) {
		v.Sorts = sorts
		changed = true
	}
	if v.GroupBy == propertyID {
		v.GroupBy = ""
		changed = true
	}
	if cfg := v.Config.Data(); cfg.GroupColumnProperty == propertyID {
		cfg.GroupColumnProperty = ""
		v.Config = datatypes.NewJSONType(cfg)
		changed = true
	}
	return changed
}

// ReorderProperties requires a permutation of the database's property ids.
func (s *DefaultService) ReorderProperties(ctx context.Context, userID, dbID string, ids []string) error {
	db, err := s.database(ctx, userID, dbID)
	if err != nil {
		return err
	}

	existing := make([]string, 0, len(db.Properties))
	for _, p := range db.Properties {
		existing = append(existing, p.ID)
	}
	got := slices.Clone(ids)
	slices.Sort(existing)
	slices.Sort(got)
	if !slices.Equal(existing, got) {
		return errors.Validation(MsgReorderIncomplete, map[string]string{"propertyIds": MsgReorderIncomplete})
	}

	return s.repository.ReorderProperties(ctx, dbID, ids)
}

func (s *DefaultService) ListViews(ctx context.Context, userID, dbID string) ([]domain.View, error) {
	schema, err := s.GetDatabase(ctx, userID, dbID)
	if err != nil {
		return nil, err
	}
	return schema.Views, nil
}

// CreateView makes the first view of a database its default.
func (s *DefaultService) CreateView(ctx context.Context, userID, dbID string, in ViewInput) (*domain.View, error) {
	db, err := s.database(ctx, userID, dbID)
	if err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, errors.Validation("Name is required", map[string]string{"name": "Name is required"})
	}
	if !in.Type.Valid() {
		return nil, errors.Validation("Unknown view type", map[string]string{"type": "Unknown view type"})
	}

	v := &View{DatabaseID: db.ID, Name: in.Name, Type: in.Type, Position: len(db.Views)}
	applyViewInput(v, in)
	makeDefault := v.IsDefault || len(db.Views) == 0
	v.IsDefault = false

	if err := s.repository.CreateView(ctx, v); err != nil {
		return nil, err
	}
	if makeDefault {
		if err := s.repository.SetDefaultView(ctx, dbID, v.ID); err != nil {
			return nil, err
		}
		v.IsDefault = true
	}
	s.touch(ctx, dbID)
	out := v.ToDomain()
	return &out, nil
}

// UpdateView can make a view the default. Clearing the flag is ignored:
// a database always keeps one default view.
func (s *DefaultService) UpdateView(ctx context.Context, userID, dbID, viewID string, in ViewInput) (*domain.View, error) {
	db, err := s.database(ctx, userID, dbID)
	if err != nil {
		return nil, err
	}
	i := slices.IndexFunc(db.Views, func(v View) bool { return v.ID == viewID })
	if i < 0 {
		return nil, errors.NotFound("View not found", nil)
	}
	v := &db.Views[i]
	if in.Type != "" && !in.Type.Valid() {
		return nil, errors.Validation("Unknown view type", map[string]string{"type": "Unknown view type"})
	}

	wasDefault := v.IsDefault
	if in.Name != "" {
		v.Name = in.Name
	}
	if in.Type != "" {
		v.Type = in.Type
	}
	applyViewInput(v, in)
	promote := v.IsDefault && !wasDefault
	v.IsDefault = wasDefault

	if err := s.repository.SaveView(ctx, v); err != nil {
		return nil, err
	}
	if promote {
		if err := s.repository.SetDefaultView(ctx, dbID, v.ID); err != nil {
			return nil, err
		}
		v.IsDefault = true
	}
	s.touch(ctx, dbID)
	out := v.ToDomain()
	return &out, nil
}

func applyViewInput(v *View, in ViewInput) {
	if in.IsDefault != nil {
		v.IsDefault = *in.IsDefault
	}
	if in.VisibleProperties != nil {
		v.VisibleProperties = in.VisibleProperties
	}
	if in.Filters != nil {
		v.Filters = in.Filters
	}
	if in.Sorts != nil {
		v.Sorts = in.Sorts
	}
	if in.GroupBy != nil {
		v.GroupBy = *in.GroupBy
	}
	if in.Config != nil {
		v.Config = datatypes.NewJSONType(*in.Config)
	}
}

// DeleteView refuses to remove the last view. Deleting the default view
// promotes the first remaining one.
func (s *DefaultService) DeleteView(ctx context.Context, userID, dbID, viewID string) error {
	db, err := s.database(ctx, userID, dbID)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(db.Views, func(v View) bool { return v.ID == viewID })
	if i < 0 {
		return errors.NotFound("View not found", nil)
	}
	if len(db.Views) == 1 {
		return errors.UnprocessableEntity(MsgLastView, nil)
	}

	promote := ""
	if db.Views[i].IsDefault {
		for _, v := range db.Views {
			if v.ID != viewID {
				promote = v.ID
				break
			}
		}
	}

	if err := s.repository.DeleteView(ctx, &db.Views[i], promote); err != nil {
		return err
	}
	s.touch(ctx, dbID)
	return nil
}

// ListRecords applies the view, search, ad-hoc filters and sorts, then
// pages. Pages are cached per database version.
func (s *DefaultService) ListRecords(ctx context.Context, userID, dbID string, q RecordQuery) (*domain.RecordPage, error) {
	db, err := s.database(ctx, userID, dbID)
	if err != nil {
		return nil, err
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 || q.PerPage > utils.MaxPerPage {
		q.PerPage = utils.DefaultPerPage
	}

	v := s.cache.GetVersion(ctx, versionKey(dbID))
	encoded, _ := json.Marshal(q)
	cacheKey := fmt.Sprintf("records:db:%s:v:%d:q:%s", dbID, v, encoded)

	var cached domain.RecordPage
	if found, _ := s.cache.Get(ctx, cacheKey, &cached); found {
		return &cached, nil
	}

	schema := db.ToDomain()
	var view domain.View
	if q.ViewID != "" {
		found, ok := schema.View(q.ViewID)
		if !ok {
			return nil, errors.NotFound("View not found", nil)
		}
		view = found
	} else if def, ok := schema.DefaultView(); ok {
		view = def
	}

	filters := append(slices.Clone(view.Filters), q.Filters...)
	sorts := view.Sorts
	if len(q.Sorts) > 0 {
		sorts = q.Sorts
	}

	rows, err := s.repository.ListRecords(ctx, dbID)
	if err != nil {
		return nil, err
	}
	records := make([]domain.Record, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].ToDomain())
	}

	props := projection.PropertyMap(schema.Properties)
	records = projection.Search(records, schema.Properties, q.Search)
	records = projection.Filter(records, props, filters, s.now())
	records = projection.Sort(records, props, sorts)

	total := int64(len(records))
	start := min((q.Page-1)*q.PerPage, len(records))
	end := min(start+q.PerPage, len(records))

	page := domain.RecordPage{
		Records:    records[start:end],
		Total:      total,
		Page:       q.Page,
		PerPage:    q.PerPage,
		TotalPages: utils.TotalPages(total, q.PerPage),
	}

	go s.cache.Set(context.Background(), cacheKey, page, time.Hour)

	return &page, nil
}

func (s *DefaultService) GetRecord(ctx context.Context, userID, dbID, recordID string) (*domain.Record, error) {
	if _, err := s.database(ctx, userID, dbID); err != nil {
		return nil, err
	}
	rec, err := s.repository.FindRecord(ctx, dbID, recordID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Record not found", err)
		}
		return nil, err
	}
	out := rec.ToDomain()
	return &out, nil
}

func (s *DefaultService) CreateRecord(ctx context.Context, userID, dbID string, values map[string]any) (*domain.Record, error) {
	db, err := s.database(ctx, userID, dbID)
	if err != nil {
		return nil, err
	}
	props := db.ToDomain().Properties
	if err := form.CheckPayload(props, values); err != nil {
		return nil, err
	}
	if missing := form.MissingRequired(props, values); len(missing) > 0 {
		return nil, errors.Validation("Missing required values", missing)
	}

	rec := domain.Record{}
	rec.Merge(values)
	row := &Record{
		DatabaseID:   dbID,
		Properties:   datatypes.JSONMap(rec.Properties),
		CreatedBy:    userID,
		LastEditedBy: userID,
	}
	if err := s.repository.CreateRecord(ctx, row); err != nil {
		return nil, err
	}
	s.touch(ctx, dbID)
	out := row.ToDomain()
	return &out, nil
}

// UpdateRecord merges patch into the stored values. Concurrent edits are
// last-write-wins per property.
func (s *DefaultService) UpdateRecord(ctx context.Context, userID, dbID, recordID string, patch map[string]any) (*domain.Record, error) {
	db, err := s.database(ctx, userID, dbID)
	if err != nil {
		return nil, err
	}
	if err := form.CheckPayload(db.ToDomain().Properties, patch); err != nil {
		return nil, err
	}

	row, err := s.repository.FindRecord(ctx, dbID, recordID)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("Record not found", err)
		}
		return nil, err
	}
	mergeRow(row, patch, userID)

	if err := s.repository.SaveRecords(ctx, []Record{*row}); err != nil {
		return nil, err
	}
	s.touch(ctx, dbID)
	out := row.ToDomain()
	return &out, nil
}

func mergeRow(row *Record, patch map[string]any, userID string) {
	rec := row.ToDomain()
	rec.Merge(patch)
	row.Properties = datatypes.JSONMap(rec.Properties)
	row.LastEditedBy = userID
}

func (s *DefaultService) DeleteRecord(ctx context.Context, userID, dbID, recordID string, permanent bool) error {
	n, err := s.BulkDeleteRecords(ctx, userID, dbID, []string{recordID}, permanent)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFound("Record not found", nil)
	}
	return nil
}

// BulkUpdateRecords applies one patch to every listed record that exists.
func (s *DefaultService) BulkUpdateRecords(ctx context.Context, userID, dbID string, ids []string, patch map[string]any) (int, error) {
	db, err := s.database(ctx, userID, dbID)
	if err != nil {
		return 0, err
	}
	if err := form.CheckPayload(db.ToDomain().Properties, patch); err != nil {
		return 0, err
	}

	rows, err := s.repository.FindRecords(ctx, dbID, ids)
	if err != nil {
		return 0, err
	}
	for i := range rows {
		mergeRow(&rows[i], patch, userID)
	}
	if err := s.repository.SaveRecords(ctx, rows); err != nil {
		return 0, err
	}
	s.touch(ctx, dbID)
	return len(rows), nil
}

func (s *DefaultService) BulkDeleteRecords(ctx context.Context, userID, dbID string, ids []string, permanent bool) (int64, error) {
	if _, err := s.database(ctx, userID, dbID); err != nil {
		return 0, err
	}
	n, err := s.repository.DeleteRecords(ctx, dbID, ids, permanent)
	if err != nil {
		return 0, err
	}
	s.touch(ctx, dbID)
	return n, nil
}
