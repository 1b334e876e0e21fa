package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidField is returned when a field name is not a safe SQL identifier
var ErrInvalidField = errors.New("invalid field name")

// Dialect selects the placeholder and identifier quoting style
type Dialect int

const (
	// Question renders ? placeholders and "double-quoted" identifiers (sqlite)
	Question Dialect = iota
	// Dollar renders $1, $2, ... placeholders and "double-quoted" identifiers (postgres)
	Dollar
	// Backtick renders ? placeholders and `backtick-quoted` identifiers (mysql)
	Backtick
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLOptions tunes rendering
type SQLOptions struct {
	Dialect Dialect
	// ArgOffset is the number of placeholders already used in the surrounding query (Dollar only)
	ArgOffset int
}

// ToSQL renders p as a parameterized WHERE fragment using d
func ToSQL(p Predicate, d Dialect) (string, []any, error) {
	return ToSQLWithOptions(p, SQLOptions{Dialect: d})
}

// ToSQLWithOptions renders p as a parameterized WHERE fragment
func ToSQLWithOptions(p Predicate, opts SQLOptions) (string, []any, error) {
	r := &sqlRenderer{opts: opts}
	clause, err := r.render(p)
	if err != nil {
		return "", nil, err
	}
	return clause, r.args, nil
}

type sqlRenderer struct {
	opts SQLOptions
	args []any
}

func (r *sqlRenderer) placeholder(v any) string {
	r.args = append(r.args, v)
	if r.opts.Dialect == Dollar {
		return "$" + strconv.Itoa(r.opts.ArgOffset+len(r.args))
	}
	return "?"
}

func (r *sqlRenderer) render(p Predicate) (string, error) {
	switch t := p.(type) {
	case Const:
		if t {
			return "1=1", nil
		}
		return "1=0", nil
	case Eq:
		col, err := r.quote(t.Field)
		if err != nil {
			return "", err
		}
		if t.Value == nil {
			return "1=0", nil
		}
		return col + " = " + r.placeholder(t.Value), nil
	case In:
		col, err := r.quote(t.Field)
		if err != nil {
			return "", err
		}
		if len(t.Values) == 0 {
			return "1=0", nil
		}
		holders := make([]string, len(t.Values))
		for i, v := range t.Values {
			holders[i] = r.placeholder(v)
		}
		return col + " IN (" + strings.Join(holders, ", ") + ")", nil
	case And:
		return r.renderList(t, " AND ", "1=1")
	case Or:
		return r.renderList(t, " OR ", "1=0")
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownPredicate, p)
	}
}

func (r *sqlRenderer) renderList(ps []Predicate, sep, empty string) (string, error) {
	if len(ps) == 0 {
		return empty, nil
	}
	parts := make([]string, len(ps))
	for i, p := range ps {
		s, err := r.render(p)
		if err != nil {
			return "", err
		}
		parts[i] = "(" + s + ")"
	}
	return strings.Join(parts, sep), nil
}

// SplitField validates a column reference and returns its optional table and column name
func SplitField(field string) (table, column string, err error) {
	if !identifierPattern.MatchString(field) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	if i := strings.IndexByte(field, '.'); i >= 0 {
		return field[:i], field[i+1:], nil
	}
	return "", field, nil
}

// quote validates a column reference (optionally table-qualified) and quotes it for the dialect
func (r *sqlRenderer) quote(field string) (string, error) {
	table, column, err := SplitField(field)
	if err != nil {
		return "", err
	}
	q := `"`
	if r.opts.Dialect == Backtick {
		q = "`"
	}
	if table == "" {
		return q + column + q, nil
	}
	return q + table + q + "." + q + column + q, nil
}
