// Package catalog holds an offline snapshot of database metadata, used to
// answer table-contents questions when no live connection is available.
package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nsxbet/ddlguard/pkg/pgparser"
)

// FinderContext is the context for finder.
type FinderContext struct {
	// Ignore case sensitive is the policy for identifier name comparison case-sensitive.
	IgnoreCaseSensitive bool
}

type tableKey struct {
	schema string
	table  string
}

// Finder is the service for finding schema information in database.
// It is read-only after construction and safe for concurrent use.
type Finder struct {
	ctx    FinderContext
	tables map[tableKey]*TableMetadata
}

// NewFinder creates a new finder.
func NewFinder(database *DatabaseSchemaMetadata, ctx *FinderContext) *Finder {
	f := &Finder{tables: make(map[tableKey]*TableMetadata)}
	if ctx != nil {
		f.ctx = *ctx
	}
	if database == nil {
		return f
	}
	for _, schema := range database.Schemas {
		if schema == nil {
			continue
		}
		for _, table := range schema.Tables {
			if table == nil {
				continue
			}
			f.tables[f.key(schema.Name, table.Name)] = table
		}
	}
	return f
}

// NewEmptyFinder creates a finder with empty database.
func NewEmptyFinder(ctx *FinderContext) *Finder {
	return NewFinder(&DatabaseSchemaMetadata{}, ctx)
}

func (f *Finder) key(schema, table string) tableKey {
	k := tableKey{schema: pgparser.NormalizeSchemaName(schema), table: table}
	if f.ctx.IgnoreCaseSensitive {
		k.schema = strings.ToLower(k.schema)
		k.table = strings.ToLower(k.table)
	}
	return k
}

// FindTable looks up a table. An empty schema means "public".
func (f *Finder) FindTable(schema, table string) (*TableMetadata, bool) {
	t, ok := f.tables[f.key(schema, table)]
	return t, ok
}

// Len returns the number of tables in the snapshot.
func (f *Finder) Len() int {
	return len(f.tables)
}

// LoadFromFile reads a snapshot from a JSON or YAML file. The format is
// chosen by extension; unknown extensions try JSON first, then YAML.
func LoadFromFile(filename string) (*DatabaseSchemaMetadata, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read schema file: %s", filename)
	}

	var meta DatabaseSchemaMetadata
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		err = json.Unmarshal(data, &meta)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &meta)
	default:
		if err = json.Unmarshal(data, &meta); err != nil {
			err = yaml.Unmarshal(data, &meta)
		}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse schema file: %s", filename)
	}
	return &meta, nil
}
