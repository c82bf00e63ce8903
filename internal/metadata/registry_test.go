package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablequery/internal/core/apperror"
	"tablequery/internal/domain/relation"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := LoadRegistry("testdata/schema.yaml")
	require.NoError(t, err)
	return r
}

func TestRegistry_Relation(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name        string
		parent, rel string
		want        relation.Meta
	}{
		{
			name:   "belongs to with defaults",
			parent: "workers", rel: "company",
			want: relation.Meta{
				Table: "companies", ForeignKey: "company_id", PrimaryKey: "company_id",
				Cardinality: relation.BelongsTo, Tag: "belongs_to",
			},
		},
		{
			name:   "has many uses parent primary key",
			parent: "workers", rel: "notes",
			want: relation.Meta{
				Table: "notes", ForeignKey: "worker_id", PrimaryKey: "id",
				Cardinality: relation.HasMany, Tag: "has_many",
			},
		},
		{
			name:   "has many on custom primary key",
			parent: "companies", rel: "workers",
			want: relation.Meta{
				Table: "workers", ForeignKey: "company_id", PrimaryKey: "company_id",
				Cardinality: relation.HasMany, Tag: "has_many",
			},
		},
		{
			name:   "unsupported cardinality keeps tag",
			parent: "workers", rel: "badge",
			want: relation.Meta{
				Table: "badges", ForeignKey: "badge_id", PrimaryKey: "id",
				Cardinality: relation.Other, Tag: "has_one",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Relation(tt.parent, tt.rel)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_RelationUnknown(t *testing.T) {
	r := testRegistry(t)

	_, err := r.Relation("workers", "manager")
	assert.True(t, apperror.IsUnknownRelation(err))

	_, err = r.Relation("ghosts", "company")
	assert.True(t, apperror.IsUnknownRelation(err))
}

func TestRegistry_Defaults(t *testing.T) {
	r := testRegistry(t)

	workers := r.MustGet("workers")
	assert.Equal(t, "id", workers.PrimaryKey)
	assert.Equal(t, "created_at", workers.CreatedAt)
	assert.Len(t, workers.Specs(), 2)
	assert.Equal(t, "company|name as company", workers.Specs()[0].Expr)

	companies := r.MustGet("companies")
	assert.Equal(t, "company_id", companies.PrimaryKey)
	assert.Equal(t, "founded_at", companies.CreatedAt)

	names := make([]string, 0)
	for _, def := range r.List() {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"companies", "notes", "workers"}, names)

	assert.Panics(t, func() { r.MustGet("ghosts") })
}

func TestRegistry_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		def  TableDef
	}{
		{"bad table name", TableDef{Name: "work ers"}},
		{"qualified table name", TableDef{Name: "public.workers"}},
		{"bad field", TableDef{Name: "workers", Fields: []string{"name", "1=1"}}},
		{"bad relation table", TableDef{Name: "workers", Relations: map[string]RelationDef{"c": {Table: "x y"}}}},
		{"bad relation key", TableDef{Name: "workers", Relations: map[string]RelationDef{"c": {Table: "c", ForeignKey: "a;b"}}}},
		{"self reference", TableDef{Name: "workers", Relations: map[string]RelationDef{"manager": {Table: "workers"}}}},
		{"has many without foreign key", TableDef{Name: "workers", Relations: map[string]RelationDef{"notes": {Table: "notes", Cardinality: "has_many"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.def)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
		})
	}
}

func TestRegistry_ReplaceIsAtomic(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(TableDef{Name: "workers"}))

	err := r.Replace([]TableDef{{Name: "companies"}, {Name: "bad name"}})
	require.Error(t, err)
	_, ok := r.Get("workers")
	assert.True(t, ok)

	err = r.Replace([]TableDef{{Name: "companies"}, {Name: "companies"}})
	require.Error(t, err)

	require.NoError(t, r.Replace([]TableDef{{Name: "companies"}}))
	_, ok = r.Get("workers")
	assert.False(t, ok)
}
