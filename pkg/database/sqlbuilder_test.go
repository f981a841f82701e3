package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type builderRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

func TestUpdateBuilderPostgresPlaceholders(t *testing.T) {
	ub := NewUpdateBuilder()
	ub.Update("widgets")
	ub.Set(ub.Assign("name", "bolt"))
	ub.Where(
		ub.Equal("id", "abc"),
		ub.In("status", "NEW", "OPEN"),
	)

	sql, args := ub.Build()

	assert.Contains(t, sql, "UPDATE widgets")
	assert.Contains(t, sql, "$1")
	assert.NotContains(t, sql, "?")
	assert.Equal(t, []interface{}{"bolt", "abc", "NEW", "OPEN"}, args)
}

func TestDeleteBuilderPostgresPlaceholders(t *testing.T) {
	db := NewDeleteBuilder()
	db.DeleteFrom("widgets")
	db.Where(db.Equal("id", "abc"))

	sql, args := db.Build()

	assert.Contains(t, sql, "DELETE FROM widgets")
	assert.Contains(t, sql, "$1")
	assert.Equal(t, []interface{}{"abc"}, args)
}

func TestSelectBuilderGroupBy(t *testing.T) {
	sb := NewSelectBuilder()
	sb.Select("status", "COUNT(*)")
	sb.From("widgets")
	sb.Where(sb.In("status", "NEW", "OPEN"))
	sb.GroupBy("status")

	sql, args := sb.Build()

	assert.Contains(t, sql, "GROUP BY status")
	assert.Equal(t, []interface{}{"NEW", "OPEN"}, args)
}

func TestStructSelectFromListsTaggedColumns(t *testing.T) {
	s := NewStruct(new(builderRow))
	sb := s.SelectFrom("widgets")
	sb.Where(sb.Equal("id", "abc"))

	sql, args := sb.Build()

	assert.Contains(t, sql, "widgets.id")
	assert.Contains(t, sql, "widgets.name")
	assert.Contains(t, sql, "FROM widgets")
	require.Len(t, args, 1)
	assert.Equal(t, "abc", args[0])
}
