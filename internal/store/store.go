// Package store persists menu items and orders through gorm.
//
// Every method takes a context so callers can abandon work before it reaches
// the database; gorm v1 does not propagate the context into the driver, so a
// cancelled context is only observed between statements.
package store

import (
	"context"
	"errors"

	"github.com/jinzhu/gorm"
)

// ErrNotFound is returned when a row addressed by id does not exist
var ErrNotFound = errors.New("not found")

// Store groups the repositories that share one database handle
type Store struct {
	db     *gorm.DB
	Menu   *MenuStore
	Orders *OrderStore
}

// New creates a store on top of db
func New(db *gorm.DB) *Store {
	return &Store{
		db:     db,
		Menu:   &MenuStore{db: db},
		Orders: &OrderStore{db: db},
	}
}

// Transaction runs fn with a store bound to a single database transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
// fn must not start another transaction on the store it receives.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

func offset(page, size int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * size
}

func notFound(err error) error {
	if gorm.IsRecordNotFoundError(err) {
		return ErrNotFound
	}
	return err
}
