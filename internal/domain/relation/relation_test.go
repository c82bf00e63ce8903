package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablequery/internal/core/apperror"
	"tablequery/internal/core/query"
)

// fakeSchema maps "parent.relation" to metadata.
type fakeSchema map[string]Meta

func (s fakeSchema) Relation(parent, name string) (Meta, error) {
	m, ok := s[parent+"."+name]
	if !ok {
		return Meta{}, apperror.NewUnknownRelation(parent, name)
	}
	return m, nil
}

func workerSchema() fakeSchema {
	return fakeSchema{
		"workers.company": {Table: "companies", ForeignKey: "company_id", PrimaryKey: "id", Cardinality: BelongsTo},
		"workers.notes":   {Table: "notes", ForeignKey: "worker_id", PrimaryKey: "id", Cardinality: HasMany},
		"workers.badge":   {Table: "badges", ForeignKey: "badge_id", PrimaryKey: "id", Cardinality: Other, Tag: "has_one"},
	}
}

func TestResolve(t *testing.T) {
	count := Projection(func(q query.Query) query.Query { return q.Select("count(*)") })

	tests := []struct {
		name       string
		spec       Spec
		wantName   string
		wantColumn Column
		wantAlias  string
		wantCard   Cardinality
	}{
		{
			name:       "explicit alias",
			spec:       Expr("company|name as company"),
			wantName:   "company",
			wantColumn: Literal("name"),
			wantAlias:  "company",
			wantCard:   BelongsTo,
		},
		{
			name:       "default alias",
			spec:       Expr("company|name"),
			wantName:   "company",
			wantColumn: Literal("name"),
			wantAlias:  "companies_name",
			wantCard:   BelongsTo,
		},
		{
			name:       "upper case separator",
			spec:       Expr("company|name AS company_name"),
			wantName:   "company",
			wantColumn: Literal("name"),
			wantAlias:  "company_name",
			wantCard:   BelongsTo,
		},
		{
			name:       "raw expression",
			spec:       Expr(`company|concat(companies.name, ' as ', companies.id) as company_concat`),
			wantName:   "company",
			wantColumn: RawExpression(`concat(companies.name, ' as ', companies.id)`),
			wantAlias:  "company_concat",
			wantCard:   BelongsTo,
		},
		{
			name:       "has many literal",
			spec:       Expr("notes|body"),
			wantName:   "notes",
			wantColumn: Literal("body"),
			wantAlias:  "notes_body",
			wantCard:   HasMany,
		},
		{
			name:      "callback with alias",
			spec:      Callback("notes as notes_count", count),
			wantName:  "notes",
			wantAlias: "notes_count",
			wantCard:  HasMany,
		},
		{
			name:      "callback default alias",
			spec:      Callback("notes", count),
			wantName:  "notes",
			wantAlias: "notes_notes",
			wantCard:  HasMany,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Resolve(tt.spec, "workers", workerSchema())
			require.NoError(t, err)

			assert.Equal(t, tt.wantName, d.Name)
			assert.Equal(t, tt.wantAlias, d.Alias)
			assert.Equal(t, tt.wantCard, d.Cardinality)
			assert.Equal(t, "workers", d.Parent)
			if tt.wantColumn != nil {
				assert.Equal(t, tt.wantColumn, d.Column)
			} else {
				assert.IsType(t, Projection(nil), d.Column)
			}
		})
	}
}

func TestResolve_Malformed(t *testing.T) {
	noop := Projection(func(q query.Query) query.Query { return q })

	tests := []struct {
		name string
		spec Spec
	}{
		{"missing pair", Expr("company")},
		{"missing pair with alias", Expr("company as c")},
		{"empty column", Expr("company| as c")},
		{"callback with column", Callback("notes|id as n", noop)},
		{"raw expression without alias", Expr("company|upper(name)")},
		{"invalid alias", Expr("company|name as bad alias")},
		{"invalid column", Expr("company|name;drop")},
		{"invalid relation name", Expr("comp-any|name")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.spec, "workers", workerSchema())
			require.Error(t, err)
			assert.True(t, apperror.IsMalformedRelationSpec(err), "got %v", err)
		})
	}
}

func TestResolve_UnknownRelation(t *testing.T) {
	_, err := Resolve(Expr("manager|name"), "workers", workerSchema())
	require.Error(t, err)
	assert.True(t, apperror.IsUnknownRelation(err))
}

func TestParseCardinality(t *testing.T) {
	assert.Equal(t, HasMany, ParseCardinality("has_many"))
	assert.Equal(t, HasMany, ParseCardinality("HasMany"))
	assert.Equal(t, BelongsTo, ParseCardinality("belongs-to"))
	assert.Equal(t, Other, ParseCardinality("morph_to"))
	assert.Equal(t, Other, ParseCardinality(""))
}

func TestSplitAlias(t *testing.T) {
	tests := []struct {
		in, left, alias string
	}{
		{"company|name as company", "company|name", "company"},
		{"company|name", "company|name", ""},
		{"company|name\tAS\tc", "company|name", "c"},
		{"notes|cast(id as text) as note_id", "notes|cast(id as text)", "note_id"},
		{`company|concat(name, " as ") as x`, `company|concat(name, " as ")`, "x"},
		{"company|alias", "company|alias", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			left, alias := splitAlias(tt.in)
			assert.Equal(t, tt.left, left)
			assert.Equal(t, tt.alias, alias)
		})
	}
}
