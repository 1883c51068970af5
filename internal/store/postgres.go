package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campus_shuttle/internal/backend"
)

// Postgres implements row access with gorm. Table and column names are
// expected to be validated by the caller; they are quoted, never spliced.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Query(ctx context.Context, q backend.Query, dest any) error {
	tx := where(p.db.WithContext(ctx).Table(q.Table), q.Filters)
	if q.Order != nil {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.Order.Column}, Desc: q.Order.Descending})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	rows := []map[string]any{}
	if err := tx.Find(&rows).Error; err != nil {
		return translate(q.Table, err)
	}
	return decode(rows, dest)
}

func (p *Postgres) Insert(ctx context.Context, table string, record any, dest any) error {
	row, err := p.prepare(table, record)
	if err != nil {
		return err
	}
	if err := p.db.WithContext(ctx).Table(table).Create(row).Error; err != nil {
		return translate(table, err)
	}
	return p.reload(ctx, table, row["id"], dest)
}

// Upsert inserts or, on an id conflict, overwrites the given columns.
func (p *Postgres) Upsert(ctx context.Context, table string, record any, dest any) error {
	row, err := p.prepare(table, record)
	if err != nil {
		return err
	}
	updates := make([]string, 0, len(row))
	for col := range row {
		if col != "id" {
			updates = append(updates, col)
		}
	}
	sort.Strings(updates)

	err = p.db.WithContext(ctx).Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(row).Error
	if err != nil {
		return translate(table, err)
	}
	return p.reload(ctx, table, row["id"], dest)
}

// Update patches the matching rows in one transaction and returns them.
func (p *Postgres) Update(ctx context.Context, table string, filters []backend.Filter, patch map[string]any, dest any) error {
	values := make(map[string]any, len(patch)+1)
	for k, v := range patch {
		values[k] = v
	}
	for _, col := range stampColumns[table] {
		if col == "updated_at" {
			values[col] = time.Now().UTC()
		}
	}

	rows := []map[string]any{}
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := where(tx.Table(table), filters).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		byID := clause.IN{Column: clause.Column{Name: "id"}, Values: anySlice(ids)}
		if err := tx.Table(table).Where(byID).Updates(values).Error; err != nil {
			return err
		}
		return tx.Table(table).Where(byID).Find(&rows).Error
	})
	if err != nil {
		return translate(table, err)
	}
	return decode(rows, dest)
}

func (p *Postgres) prepare(table string, record any) (map[string]any, error) {
	row, err := toRow(record)
	if err != nil {
		return nil, err
	}
	if id, _ := row["id"].(string); id == "" {
		row["id"] = uuid.NewString()
	}
	for _, col := range stampColumns[table] {
		if isUnset(row[col]) {
			row[col] = time.Now().UTC()
		}
	}
	return row, nil
}

func (p *Postgres) reload(ctx context.Context, table string, id any, dest any) error {
	if dest == nil {
		return nil
	}
	rows := []map[string]any{}
	err := p.db.WithContext(ctx).Table(table).
		Where(clause.Eq{Column: clause.Column{Name: "id"}, Value: id}).
		Limit(1).Find(&rows).Error
	if err != nil {
		return translate(table, err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s %v: %w", table, id, backend.ErrNotFound)
	}
	return decode(rows[0], dest)
}

func where(tx *gorm.DB, filters []backend.Filter) *gorm.DB {
	for _, f := range filters {
		tx = tx.Where(clause.Eq{Column: clause.Column{Name: f.Column}, Value: f.Value})
	}
	return tx
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func translate(table string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", table, backend.ErrConflict)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", table, backend.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", table, err)
}
