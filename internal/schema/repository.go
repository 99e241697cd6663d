package schema

import (
	"context"

	"gorm.io/gorm"
)

type SchemaRepository interface {
	ListDatabases(ctx context.Context, ownerID string) ([]Database, error)
	FindDatabase(ctx context.Context, id string) (*Database, error)
	CreateDatabase(ctx context.Context, db *Database) error
	UpdateDatabase(ctx context.Context, db *Database) error
	DeleteDatabase(ctx context.Context, id string) error

	CreateProperty(ctx context.Context, p *Property) error
	SaveProperty(ctx context.Context, p *Property) error
	DeleteProperty(ctx context.Context, p *Property, views []View) error
	ReorderProperties(ctx context.Context, dbID string, ids []string) error

	CreateView(ctx context.Context, v *View) error
	SaveView(ctx context.Context, v *View) error
	SetDefaultView(ctx context.Context, dbID, viewID string) error
	DeleteView(ctx context.Context, v *View, promoteID string) error

	ListRecords(ctx context.Context, dbID string) ([]Record, error)
	FindRecord(ctx context.Context, dbID, id string) (*Record, error)
	FindRecords(ctx context.Context, dbID string, ids []string) ([]Record, error)
	CreateRecord(ctx context.Context, r *Record) error
	SaveRecords(ctx context.Context, records []Record) error
	DeleteRecords(ctx context.Context, dbID string, ids []string, permanent bool) (int64, error)
}

type SchemaRepositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) SchemaRepository {
	return &SchemaRepositoryImpl{db: db}
}

func withSchema(tx *gorm.DB) *gorm.DB {
	return tx.
		Preload("Properties", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Views", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })
}

func (r *SchemaRepositoryImpl) ListDatabases(ctx context.Context, ownerID string) ([]Database, error) {
	var dbs []Database
	err := withSchema(r.db.WithContext(ctx)).
		Where("owner_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&dbs).Error
	return dbs, err
}

func (r *SchemaRepositoryImpl) FindDatabase(ctx context.Context, id string) (*Database, error) {
	var db Database
	if err := withSchema(r.db.WithContext(ctx)).First(&db, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &db, nil
}

// CreateDatabase inserts the database with its initial properties and views.
func (r *SchemaRepositoryImpl) CreateDatabase(ctx context.Context, db *Database) error {
	return r.db.WithContext(ctx).Create(db).Error
}

func (r *SchemaRepositoryImpl) UpdateDatabase(ctx context.Context, db *Database) error {
	return r.db.WithContext(ctx).Omit("Properties", "Views").Save(db).Error
}

func (r *SchemaRepositoryImpl) DeleteDatabase(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("database_id = ?", id).Delete(&Record{}).Error; err != nil {
			return err
		}
		if err := tx.Where("database_id = ?", id).Delete(&View{}).Error; err != nil {
			return err
		}
		if err := tx.Where("database_id = ?", id).Delete(&Property{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Database{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *SchemaRepositoryImpl) CreateProperty(ctx context.Context, p *Property) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *SchemaRepositoryImpl) SaveProperty(ctx context.Context, p *Property) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// DeleteProperty removes the property and saves the views that referenced it.
func (r *SchemaRepositoryImpl) DeleteProperty(ctx context.Context, p *Property, views []View) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range views {
			if err := tx.Save(&views[i]).Error; err != nil {
				return err
			}
		}
		return tx.Delete(p).Error
	})
}

func (r *SchemaRepositoryImpl) ReorderProperties(ctx context.Context, dbID string, ids []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, id := range ids {
			err := tx.Model(&Property{}).
				Where("id = ? AND database_id = ?", id, dbID).
				Update("position", i).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SchemaRepositoryImpl) CreateView(ctx context.Context, v *View) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *SchemaRepositoryImpl) SaveView(ctx context.Context, v *View) error {
	return r.db.WithContext(ctx).Save(v).Error
}

// SetDefaultView leaves exactly one default view.
func (r *SchemaRepositoryImpl) SetDefaultView(ctx context.Context, dbID, viewID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&View{}).
			Where("database_id = ? AND id <> ?", dbID, viewID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&View{}).
			Where("database_id = ? AND id = ?", dbID, viewID).
			Update("is_default", true).Error
	})
}

func (r *SchemaRepositoryImpl) DeleteView(ctx context.Context, v *View, promoteID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(v).Error; err != nil {
			return err
		}
		if promoteID == "" {
			return nil
		}
		return tx.Model(&View{}).Where("id = ?", promoteID).Update("is_default", true).Error
	})
}

func (r *SchemaRepositoryImpl) ListRecords(ctx context.Context, dbID string) ([]Record, error) {
	var records []Record
	err := r.db.WithContext(ctx).
		Where("database_id = ?", dbID).
		Order("created_at ASC").
		Find(&records).Error
	return records, err
}

func (r *SchemaRepositoryImpl) FindRecord(ctx context.Context, dbID, id string) (*Record, error) {
	var rec Record
	if err := r.db.WithContext(ctx).First(&rec, "id = ? AND database_id = ?", id, dbID).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SchemaRepositoryImpl) FindRecords(ctx context.Context, dbID string, ids []string) ([]Record, error) {
	var records []Record
	err := r.db.WithContext(ctx).
		Where("database_id = ? AND id IN ?", dbID, ids).
		Find(&records).Error
	return records, err
}

func (r *SchemaRepositoryImpl) CreateRecord(ctx context.Context, rec *Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *SchemaRepositoryImpl) SaveRecords(ctx context.Context, records []Record) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range records {
			if err := tx.Save(&records[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SchemaRepositoryImpl) DeleteRecords(ctx context.Context, dbID string, ids []string, permanent bool) (int64, error) {
	tx := r.db.WithContext(ctx)
	if permanent {
		tx = tx.Unscoped()
	}
	res := tx.Where("database_id = ? AND id IN ?", dbID, ids).Delete(&Record{})
	return res.RowsAffected, res.Error
}
