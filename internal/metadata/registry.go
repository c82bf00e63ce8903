// Package metadata holds table and relation definitions: the schema provider the
// relation resolver consults, loaded from a YAML file and optionally hot-reloaded.
package metadata

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"tablequery/internal/core/apperror"
	"tablequery/internal/domain/filter"
	"tablequery/internal/domain/relation"
)

const (
	defaultPrimaryKey = "id"
	defaultCreatedAt  = "created_at"
)

// TableDef describes a queryable table.
type TableDef struct {
	Name       string `yaml:"name" json:"name"`
	PrimaryKey string `yaml:"primaryKey,omitempty" json:"primaryKey,omitempty"`
	// CreatedAt is the default sort column.
	CreatedAt string `yaml:"createdAt,omitempty" json:"createdAt,omitempty"`
	// Fields is the search and sort whitelist.
	Fields []string `yaml:"fields" json:"fields"`
	// Include lists relation specs ("company|name as company") attached by default.
	Include   []string               `yaml:"include,omitempty" json:"include,omitempty"`
	Relations map[string]RelationDef `yaml:"relations,omitempty" json:"relations,omitempty"`
}

// RelationDef describes one relation of a table.
type RelationDef struct {
	Table       string `yaml:"table" json:"table"`
	ForeignKey  string `yaml:"foreignKey,omitempty" json:"foreignKey,omitempty"`
	PrimaryKey  string `yaml:"primaryKey,omitempty" json:"primaryKey,omitempty"`
	Cardinality string `yaml:"cardinality" json:"cardinality"`
}

// Validate checks identifiers and applies defaults.
func (d *TableDef) Validate() error {
	if !isName(d.Name) {
		return apperror.NewValidation("invalid table name").WithDetail("table", d.Name)
	}
	if d.PrimaryKey == "" {
		d.PrimaryKey = defaultPrimaryKey
	}
	if d.CreatedAt == "" {
		d.CreatedAt = defaultCreatedAt
	}
	if !isName(d.PrimaryKey) || !isName(d.CreatedAt) {
		return apperror.NewValidation("invalid key column").WithDetail("table", d.Name)
	}

	for _, f := range d.Fields {
		if !isName(f) {
			return apperror.NewValidation("invalid field").
				WithDetail("table", d.Name).
				WithDetail("field", f)
		}
	}

	for name, rel := range d.Relations {
		if !isName(name) || !isName(rel.Table) {
			return apperror.NewValidation("invalid relation").
				WithDetail("table", d.Name).
				WithDetail("relation", name)
		}
		if rel.Table == d.Name {
			return apperror.NewValidation("self-referencing relations are not supported").
				WithDetail("table", d.Name).
				WithDetail("relation", name)
		}
		for _, key := range []string{rel.ForeignKey, rel.PrimaryKey} {
			if key != "" && !isName(key) {
				return apperror.NewValidation("invalid relation key").
					WithDetail("table", d.Name).
					WithDetail("relation", name)
			}
		}
		if relation.ParseCardinality(rel.Cardinality) == relation.HasMany && rel.ForeignKey == "" {
			return apperror.NewValidation("has_many relation requires foreignKey").
				WithDetail("table", d.Name).
				WithDetail("relation", name)
		}
	}
	return nil
}

// Specs returns the default relation specs.
func (d TableDef) Specs() []relation.Spec {
	specs := make([]relation.Spec, len(d.Include))
	for i, s := range d.Include {
		specs[i] = relation.Expr(s)
	}
	return specs
}

func isName(s string) bool {
	return filter.IsIdentifier(s) && !strings.Contains(s, ".")
}

// Registry stores table definitions. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]TableDef
}

var _ relation.Schema = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		tables: make(map[string]TableDef),
	}
}

// Register validates def and adds or replaces it.
func (r *Registry) Register(def TableDef) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.tables[def.Name] = def
	r.mu.Unlock()
	return nil
}

// Replace swaps the whole set of definitions. Nothing changes if any definition is invalid.
func (r *Registry) Replace(defs []TableDef) error {
	tables := make(map[string]TableDef, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return err
		}
		if _, dup := tables[def.Name]; dup {
			return apperror.NewValidation("duplicate table").WithDetail("table", def.Name)
		}
		tables[def.Name] = def
	}

	r.mu.Lock()
	r.tables = tables
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(name string) (TableDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tables[name]
	return d, ok
}

// List returns all definitions sorted by name.
func (r *Registry) List() []TableDef {
	r.mu.RLock()
	list := make([]TableDef, 0, len(r.tables))
	for _, def := range r.tables {
		list = append(list, def)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Relation implements relation.Schema.
//
// Key defaults: belongs-to uses "<name>_id" on the parent and the related table's
// primary key; has-many uses the parent's primary key.
func (r *Registry) Relation(parent, name string) (relation.Meta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tables[parent]
	if !ok {
		return relation.Meta{}, apperror.NewUnknownRelation(parent, name).WithDetail("reason", "unknown table")
	}
	rel, ok := def.Relations[name]
	if !ok {
		return relation.Meta{}, apperror.NewUnknownRelation(parent, name)
	}

	meta := relation.Meta{
		Table:       rel.Table,
		ForeignKey:  rel.ForeignKey,
		PrimaryKey:  rel.PrimaryKey,
		Cardinality: relation.ParseCardinality(rel.Cardinality),
		Tag:         rel.Cardinality,
	}

	switch meta.Cardinality {
	case relation.HasMany:
		if meta.PrimaryKey == "" {
			meta.PrimaryKey = def.PrimaryKey
		}
	default:
		if meta.ForeignKey == "" {
			meta.ForeignKey = name + "_id"
		}
		if meta.PrimaryKey == "" {
			meta.PrimaryKey = defaultPrimaryKey
			if related, ok := r.tables[rel.Table]; ok {
				meta.PrimaryKey = related.PrimaryKey
			}
		}
	}

	return meta, nil
}

// MustGet is Get for tables known to exist.
func (r *Registry) MustGet(name string) TableDef {
	def, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("metadata: table %s is not registered", name))
	}
	return def
}
