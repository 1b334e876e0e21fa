// Package gormfilter applies filter predicates to GORM queries.
package gormfilter

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/platinummonkey/rbacabac/pkg/filter"
)

var (
	matchAll  = clause.Expr{SQL: "1=1"}
	matchNone = clause.Expr{SQL: "1=0"}
)

// Scope returns a GORM scope restricting the query to records matching p.
//
//	db.Scopes(gormfilter.Scope(pred)).Find(&reports)
//
// Columns are quoted by the dialector in use. An invalid predicate is added to the
// statement's errors so the query fails instead of running unfiltered.
func Scope(p filter.Predicate) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if p == nil {
			_ = db.AddError(filter.ErrUnknownPredicate)
			return db.Where("1=0")
		}
		if c, ok := p.(filter.Const); ok && bool(c) {
			return db
		}
		expr, err := Expression(p)
		if err != nil {
			_ = db.AddError(err)
			return db.Where("1=0")
		}
		return db.Clauses(clause.Where{Exprs: []clause.Expression{expr}})
	}
}

// Expression converts p into a GORM clause expression
func Expression(p filter.Predicate) (clause.Expression, error) {
	switch t := p.(type) {
	case filter.Const:
		if t {
			return matchAll, nil
		}
		return matchNone, nil
	case filter.Eq:
		col, err := column(t.Field)
		if err != nil {
			return nil, err
		}
		if t.Value == nil {
			return matchNone, nil
		}
		return clause.Eq{Column: col, Value: t.Value}, nil
	case filter.In:
		col, err := column(t.Field)
		if err != nil {
			return nil, err
		}
		if len(t.Values) == 0 {
			return matchNone, nil
		}
		return clause.IN{Column: col, Values: t.Values}, nil
	case filter.And:
		if len(t) == 0 {
			return matchAll, nil
		}
		exprs, err := expressions(t)
		if err != nil {
			return nil, err
		}
		return clause.And(exprs...), nil
	case filter.Or:
		if len(t) == 0 {
			return matchNone, nil
		}
		exprs, err := expressions(t)
		if err != nil {
			return nil, err
		}
		return clause.Or(exprs...), nil
	default:
		return nil, fmt.Errorf("%w: %T", filter.ErrUnknownPredicate, p)
	}
}

func expressions(ps []filter.Predicate) ([]clause.Expression, error) {
	exprs := make([]clause.Expression, len(ps))
	for i, p := range ps {
		expr, err := Expression(p)
		if err != nil {
			return nil, err
		}
		exprs[i] = expr
	}
	return exprs, nil
}

func column(field string) (clause.Column, error) {
	table, name, err := filter.SplitField(field)
	if err != nil {
		return clause.Column{}, err
	}
	return clause.Column{Table: table, Name: name}, nil
}
