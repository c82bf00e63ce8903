package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablequery/internal/core/apperror"
	"tablequery/internal/domain/relation"
	"tablequery/internal/domain/tablequery"
)

func TestRegistry_Builder(t *testing.T) {
	r := testRegistry(t)

	b, err := r.Builder("workers", nil)
	require.NoError(t, err)

	q, err := b.Compose(context.Background())
	require.NoError(t, err)

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT workers.*, companies.name AS company, concat(companies.name, '-', companies.id) AS company_concat "+
			"FROM workers LEFT JOIN companies ON workers.company_id = companies.company_id "+
			"ORDER BY workers.created_at DESC",
		sql)
	assert.Empty(t, args)
	assert.Equal(t, []string{"id", "name", "email", "phone", "created_at"}, b.Fields())
}

func TestRegistry_Builder_DefaultOrderFromSchema(t *testing.T) {
	r := testRegistry(t)

	b, err := r.Builder("companies", nil)
	require.NoError(t, err)

	q, err := b.Compose(context.Background())
	require.NoError(t, err)

	sql, _, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM companies ORDER BY companies.founded_at DESC", sql)
}

func TestRegistry_Builder_ExtraRelations(t *testing.T) {
	r := testRegistry(t)

	b, err := r.Builder("workers", []relation.Spec{relation.Expr("badge|label")})
	require.NoError(t, err)

	require.Len(t, b.Relations(), 3)
	require.Len(t, b.Diagnostics(), 1)
	assert.Equal(t, apperror.CodeUnsupportedCardinality, b.Diagnostics()[0].Code)

	b.SetOptions(tablequery.Options{OrderBy: "badges_label", Ascending: true})
	q, err := b.Compose(context.Background())
	require.NoError(t, err)

	sql, _, err := q.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "badges.label AS badges_label")
	assert.Contains(t, sql, "LEFT JOIN badges ON workers.badge_id = badges.id")
	assert.Contains(t, sql, "ORDER BY badges_label ASC")
}

func TestRegistry_Builder_Errors(t *testing.T) {
	r := testRegistry(t)

	_, err := r.Builder("missing", nil)
	assert.True(t, apperror.IsNotFound(err))

	_, err = r.Builder("workers", []relation.Spec{relation.Expr("nope|name")})
	assert.True(t, apperror.IsUnknownRelation(err))

	_, err = r.Builder("workers", []relation.Spec{relation.Expr("company")})
	assert.True(t, apperror.IsMalformedRelationSpec(err))
}
