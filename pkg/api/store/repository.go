package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository is the CRUD capability set over one entity type keyed by ID.
type Repository[T any, ID comparable] interface {
	// FindAll returns every record ordered by primary key.
	FindAll(ctx context.Context) ([]T, error)

	// FindByID returns the record or an error wrapping ErrNotFound.
	FindByID(ctx context.Context, id ID) (*T, error)

	// Save inserts entity when its primary key is zero and otherwise
	// overwrites every column of the row with that key, inserting it if
	// the row does not exist. The assigned key is written back to entity.
	Save(ctx context.Context, entity *T) error

	// DeleteByID removes the record. Deleting a missing record is a no-op.
	DeleteByID(ctx context.Context, id ID) error
}

// Compile-time interface check.
var _ Repository[Run, uint] = (*gormRepository[Run, uint])(nil)

// gormRepository implements Repository on a gorm model. Every mutating call
// runs in its own transaction; concurrent saves to the same key are last
// write wins.
type gormRepository[T any, ID comparable] struct {
	db   *gorm.DB
	name string
}

func newGormRepository[T any, ID comparable](
	db *gorm.DB, name string,
) *gormRepository[T, ID] {
	return &gormRepository[T, ID]{db: db, name: name}
}

func (r *gormRepository[T, ID]) FindAll(ctx context.Context) ([]T, error) {
	var entities []T
	if err := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.name, err)
	}

	return entities, nil
}

func (r *gormRepository[T, ID]) FindByID(
	ctx context.Context, id ID,
) (*T, error) {
	var entity T
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("getting %s %v: %w", r.name, id, ErrNotFound)
		}

		return nil, fmt.Errorf("getting %s %v: %w", r.name, id, err)
	}

	return &entity, nil
}

func (r *gormRepository[T, ID]) Save(ctx context.Context, entity *T) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, column, explicit, err := primaryKeyOf(tx, entity)
		if err != nil {
			return err
		}

		if err := tx.Save(entity).Error; err != nil {
			return err
		}

		if explicit && tx.Dialector.Name() == "postgres" {
			if err := syncSequence(tx, table, column).Error; err != nil {
				return fmt.Errorf("syncing %s sequence: %w", table, err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("saving %s: %w", r.name, err)
	}

	return nil
}

func (r *gormRepository[T, ID]) DeleteByID(ctx context.Context, id ID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entity T

		return tx.Where("id = ?", id).Delete(&entity).Error
	})
	if err != nil {
		return fmt.Errorf("deleting %s %v: %w", r.name, id, err)
	}

	return nil
}

// primaryKeyOf reports the table and primary key column of entity and
// whether the key is already set.
func primaryKeyOf(tx *gorm.DB, entity any) (string, string, bool, error) {
	stmt := &gorm.Statement{DB: tx}
	if err := stmt.Parse(entity); err != nil {
		return "", "", false, fmt.Errorf("parsing model: %w", err)
	}

	pk := stmt.Schema.PrioritizedPrimaryField
	if pk == nil {
		return stmt.Schema.Table, "", false, nil
	}

	_, zero := pk.ValueOf(tx.Statement.Context, reflect.Indirect(reflect.ValueOf(entity)))

	return stmt.Schema.Table, pk.DBName, !zero, nil
}

// syncSequence moves the postgres serial sequence of table.column past the
// largest stored key. Rows inserted with an explicit key do not advance it.
func syncSequence(tx *gorm.DB, table, column string) *gorm.DB {
	return tx.Exec(
		"SELECT setval(pg_get_serial_sequence(?, ?), (SELECT COALESCE(MAX(?), 0) + 1 FROM ?), false)",
		table, column, clause.Column{Name: column}, clause.Table{Name: table},
	)
}
