package tablequery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablequery/internal/core/apperror"
	"tablequery/internal/domain/filter"
	"tablequery/internal/domain/relation"
)

func TestCompile(t *testing.T) {
	b := newBuilder().SetFields("name").SetOptions(Options{
		Filters: []filter.Filter{filter.Spec("name;ann")},
		Page:    3,
		Limit:   20,
	})
	require.NoError(t, b.SetRelations(relation.Expr("badge|label")))

	c, err := b.Compile(context.Background(), 100)
	require.NoError(t, err)

	sql, args := toSQL(t, c.Paginated)
	assert.Equal(t,
		"SELECT workers.*, badges.label AS badges_label FROM workers "+
			"LEFT JOIN badges ON workers.badge_id = badges.id "+
			"WHERE workers.name = $1 ORDER BY workers.created_at DESC LIMIT 20 OFFSET 40",
		sql)
	assert.Equal(t, []any{"ann"}, args)

	unpaginated, _ := toSQL(t, c.Query)
	assert.NotContains(t, unpaginated, "LIMIT")

	assert.Equal(t, 3, c.Page)
	assert.Equal(t, 20, c.Limit)
	require.Len(t, c.Diagnostics, 1)
	assert.Equal(t, apperror.CodeUnsupportedCardinality, c.Diagnostics[0].Code)
}

func TestCompile_MaxLimit(t *testing.T) {
	_, err := newBuilder().SetOptions(Options{Limit: 500}).Compile(context.Background(), 100)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	c, err := newBuilder().SetOptions(Options{Limit: 500}).Compile(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 500, c.Limit)
}

func TestCompile_PropagatesComposeError(t *testing.T) {
	_, err := newBuilder().SetOptions(Options{OrderBy: "1; drop"}).Compile(context.Background(), 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}
