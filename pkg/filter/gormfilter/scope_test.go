package gormfilter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/platinummonkey/rbacabac/pkg/filter"
)

type report struct {
	ID         uint
	OwnerID    string
	Department string
}

func setupGormTest(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "reports.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&report{}))

	require.NoError(t, db.Create([]report{
		{ID: 1, OwnerID: "u1", Department: "Sales"},
		{ID: 2, OwnerID: "u2", Department: "Sales"},
		{ID: 3, OwnerID: "u3", Department: "Ops"},
	}).Error)
	return db
}

func ids(rs []report) []uint {
	out := make([]uint, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestScope(t *testing.T) {
	db := setupGormTest(t)

	tests := []struct {
		name string
		p    filter.Predicate
		want []uint
	}{
		{"true", filter.True, []uint{1, 2, 3}},
		{"false", filter.False, []uint{}},
		{"owner", filter.Eq{Field: "owner_id", Value: "u2"}, []uint{2}},
		{
			"owner or department",
			filter.AnyOf(filter.Eq{Field: "owner_id", Value: "u3"}, filter.Eq{Field: "department", Value: "Sales"}),
			[]uint{1, 2, 3},
		},
		{"qualified column", filter.Eq{Field: "reports.owner_id", Value: "u1"}, []uint{1}},
		{"empty in", filter.InStrings("owner_id", nil), []uint{}},
		{"nil value", filter.Eq{Field: "department"}, []uint{}},
		{
			"department and owner set",
			filter.AllOf(filter.Eq{Field: "department", Value: "Sales"}, filter.InStrings("owner_id", []string{"u1", "u3"})),
			[]uint{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []report
			err := db.Scopes(Scope(tt.p)).Order("id").Find(&got).Error
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestScope_InvalidPredicateFailsQuery(t *testing.T) {
	db := setupGormTest(t)

	var got []report
	err := db.Scopes(Scope(filter.Eq{Field: "owner_id; --", Value: "u1"})).Find(&got).Error
	assert.ErrorIs(t, err, filter.ErrInvalidField)
	assert.Empty(t, got)
}

func TestScope_DialectorQuotesColumns(t *testing.T) {
	db := setupGormTest(t)

	p := filter.AnyOf(filter.Eq{Field: "owner_id", Value: "u1"}, filter.InStrings("department", []string{"Ops", "Sales"}))
	stmt := db.Session(&gorm.Session{DryRun: true}).Scopes(Scope(p)).Find(&[]report{}).Statement

	sql := stmt.SQL.String()
	assert.Contains(t, sql, "`owner_id` = ?")
	assert.Contains(t, sql, "`department` IN (?,?)")
	assert.NotContains(t, sql, `"owner_id"`)
	assert.Equal(t, []interface{}{"u1", "Ops", "Sales"}, stmt.Vars)
}

func TestExpression_InvalidField(t *testing.T) {
	_, err := Expression(filter.And{filter.Eq{Field: "a b", Value: 1}})
	assert.ErrorIs(t, err, filter.ErrInvalidField)
}
