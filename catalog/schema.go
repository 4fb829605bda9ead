package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"mit.edu/dsg/rowdb/common"
)

// Schema is the YAML form of a set of table definitions:
//
//	tables:
//	  - name: users
//	    columns:
//	      - {name: id, type: INT, unique: true}
//	      - {name: name, type: VARCHAR}
//	    indexes:
//	      - {name: users_name, type: btree, column: name}
type Schema struct {
	Tables []TableSchema `yaml:"tables"`
}

type TableSchema struct {
	Name    string        `yaml:"name"`
	Columns []Column      `yaml:"columns"`
	Indexes []IndexSchema `yaml:"indexes,omitempty"`
}

type IndexSchema struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Column string `yaml:"column"`
	Unique bool   `yaml:"unique,omitempty"`
}

// ParseSchema decodes a schema document. Unknown keys are rejected so that typos do not silently drop columns.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, common.WrapError(common.ParseError, err, "invalid schema document")
	}
	for i := range s.Tables {
		t := &s.Tables[i]
		if t.Name == "" {
			return nil, common.NewError(common.BindError, "table %d has no name", i)
		}
		for j := range t.Indexes {
			if t.Indexes[j].Type == "" {
				t.Indexes[j].Type = "btree"
			}
			if t.Indexes[j].Name == "" {
				t.Indexes[j].Name = fmt.Sprintf("%s_%s", t.Name, t.Indexes[j].Column)
			}
		}
	}
	return &s, nil
}

// LoadSchema reads and decodes a schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSchema(data)
}

// Apply registers every table and index of the schema in the catalog, in document order. It stops at the first
// failure; objects created before the failure stay in the catalog.
func (s *Schema) Apply(c *Catalog, provider PersistenceProvider) error {
	for _, ts := range s.Tables {
		if _, err := c.AddTable(ts.Name, ts.Columns, provider); err != nil {
			return err
		}
		for _, is := range ts.Indexes {
			if _, err := c.AddIndex(is.Name, ts.Name, is.Type, is.Column, is.Unique, provider); err != nil {
				return err
			}
		}
	}
	return nil
}

// Schema exports the current catalog contents in the schema document form.
func (c *Catalog) Schema() *Schema {
	s := &Schema{}
	for _, t := range c.AllTables() {
		ts := TableSchema{Name: t.Name, Columns: append([]Column(nil), t.Columns...)}
		for _, idx := range t.Indexes {
			ts.Indexes = append(ts.Indexes, IndexSchema{Name: idx.Name, Type: idx.Type, Column: idx.Column, Unique: idx.Unique})
		}
		s.Tables = append(s.Tables, ts)
	}
	return s
}

// Marshal renders the schema as YAML.
func (s *Schema) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}
