// Package option provides composable gorm query modifiers used by the
// generic repository.
package option

import (
	"strconv"
	"strings"
	"time"

	"github.com/shieldhq/sentinel/pkg/db/pagination"
	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// WithLimit caps the number of returned rows.
func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

// WithOrder appends an ORDER BY clause, e.g. "created_at desc".
func WithOrder(order string) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		order = strings.TrimSpace(order)
		if order == "" {
			return db
		}
		return db.Order(order)
	})
}

// WithTimeRange bounds a timestamp column to [from, to). Zero bounds are skipped.
func WithTimeRange(column string, from, to any) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if from != nil {
			db = db.Where(column+" >= ?", from)
		}
		if to != nil {
			db = db.Where(column+" < ?", to)
		}
		return db
	})
}

// ApplyPagination decodes a cursor token and fetches one row past the page
// size so the caller can detect another page. The id column breaks ties
// between rows sharing the boundary created_at.
func ApplyPagination(p pagination.Pagination) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		size := p.PageSize
		if size <= 0 {
			size = 50
		}
		if token := strings.TrimSpace(p.PageToken); token != "" {
			cursor, err := pagination.DecodeCursor(token)
			if err == nil && cursor != nil && cursor.CreatedAt != "" {
				if at, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt); err == nil {
					if id, err := strconv.ParseInt(cursor.ID, 10, 64); err == nil {
						db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", at, at, id)
					} else {
						db = db.Where("created_at < ?", at)
					}
				}
			}
		}
		return db.Order("created_at desc, id desc").Limit(size + 1)
	})
}
