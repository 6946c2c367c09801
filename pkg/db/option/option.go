package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a gorm statement before execution.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

type Operator string

const (
	EQ     Operator = "="
	NEQ    Operator = "<>"
	GT     Operator = ">"
	GTE    Operator = ">="
	LT     Operator = "<"
	LTE    Operator = "<="
	IN     Operator = "IN"
	IsNull Operator = "IS NULL"
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ApplyOperator filters on a single column comparison.
func ApplyOperator(cond Condition) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(cond.Field)
		if field == "" {
			return db
		}
		switch cond.Operator {
		case IsNull:
			return db.Where(fmt.Sprintf("%s IS NULL", field))
		case IN:
			return db.Where(fmt.Sprintf("%s IN ?", field), cond.Value)
		case "":
			return db.Where(fmt.Sprintf("%s = ?", field), cond.Value)
		default:
			return db.Where(fmt.Sprintf("%s %s ?", field, cond.Operator), cond.Value)
		}
	})
}

// EffectiveAt keeps rows whose [from, to) window contains the given value.
func EffectiveAt(fromField, toField string, at any) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		return db.
			Where(fmt.Sprintf("%s <= ?", fromField), at).
			Where(fmt.Sprintf("(%s IS NULL OR %s > ?)", toField, toField), at)
	})
}

type QuerySortBy struct {
	Allow   map[string]bool
	SortBy  string
	OrderBy string
}

// WithSortBy orders by an allow-listed column, defaulting to created_at ASC.
func WithSortBy(sort QuerySortBy) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column := strings.ToLower(strings.TrimSpace(sort.SortBy))
		if column == "" || !sort.Allow[column] {
			column = "created_at"
		}
		direction := "ASC"
		if strings.EqualFold(strings.TrimSpace(sort.OrderBy), "desc") {
			direction = "DESC"
		}
		return db.Order(fmt.Sprintf("%s %s", column, direction))
	})
}

func WithLimit(limit int) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}
