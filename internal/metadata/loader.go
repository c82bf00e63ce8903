package metadata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the schema file layout:
//
//	tables:
//	  - name: workers
//	    fields: [id, name, email]
//	    include: ["company|name as company"]
//	    relations:
//	      company: {table: companies, cardinality: belongs_to}
//	      notes: {table: notes, foreignKey: worker_id, cardinality: has_many}
type File struct {
	Tables []TableDef `yaml:"tables"`
}

// Parse decodes a schema document. Unknown keys are rejected.
func Parse(data []byte) ([]TableDef, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	for i := range f.Tables {
		if err := f.Tables[i].Validate(); err != nil {
			return nil, fmt.Errorf("table #%d: %w", i+1, err)
		}
	}
	return f.Tables, nil
}

// LoadFile reads and parses a schema file.
func LoadFile(path string) ([]TableDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	return Parse(data)
}

// LoadRegistry builds a registry from a schema file.
func LoadRegistry(path string) (*Registry, error) {
	tables, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	if err := r.Replace(tables); err != nil {
		return nil, err
	}
	return r, nil
}
