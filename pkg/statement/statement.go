// Package statement defines the typed views of parsed utility statements and
// the classifier that builds them from the PostgreSQL parse tree.
//
// A Statement is immutable once built. The policy layer only reads it; the
// ANTLR tree it was built from is not retained.
package statement

import "strings"

// Statement is one top-level SQL statement.
type Statement interface {
	Kind() Kind
	// Text is the statement's source text without the trailing semicolon.
	Text() string
	// Line is the 1-based line the statement starts on.
	Line() int
}

// Classify returns the kind of stmt. A nil statement is KindOther.
func Classify(stmt Statement) Kind {
	if stmt == nil {
		return KindOther
	}
	return stmt.Kind()
}

// source is embedded by every variant.
type source struct {
	text string
	line int
}

func (s source) Text() string { return s.text }
func (s source) Line() int    { return s.line }

func (s *source) setSource(src source) { *s = src }

// sourced is implemented by every variant through the embedded source.
type sourced interface {
	setSource(src source)
}

// QualifiedName is a normalized, possibly schema-qualified relation name.
type QualifiedName struct {
	Schema string
	Name   string
}

// String renders the name as written by a user, without quoting.
func (n QualifiedName) String() string {
	if n.Schema == "" {
		return n.Name
	}
	return n.Schema + "." + n.Name
}

// Parts returns the non-empty name parts, schema first.
func (n QualifiedName) Parts() []string {
	if n.Schema == "" {
		return []string{n.Name}
	}
	return []string{n.Schema, n.Name}
}

func qualifiedNameFromParts(parts []string) QualifiedName {
	switch len(parts) {
	case 0:
		return QualifiedName{}
	case 1:
		return QualifiedName{Name: parts[0]}
	default:
		// catalog.schema.table keeps the last two parts.
		return QualifiedName{Schema: parts[len(parts)-2], Name: parts[len(parts)-1]}
	}
}

// Persistence is the relpersistence of a table being created.
type Persistence int

const (
	PersistencePermanent Persistence = iota
	PersistenceUnlogged
	PersistenceTemporary
)

// ColumnDef is a column of a CREATE TABLE statement.
type ColumnDef struct {
	Name string
	// Collation is the COLLATE clause name, empty when absent.
	Collation string
}

// CreateTable is CREATE [TEMP|UNLOGGED] TABLE.
type CreateTable struct {
	source
	Relation    QualifiedName
	Persistence Persistence
	// Inherits lists INHERITS parents, and the parent of PARTITION OF.
	Inherits    []QualifiedName
	Partitioned bool
	Columns     []ColumnDef
}

func (*CreateTable) Kind() Kind { return KindCreateTable }

// SortOrder is the ordering written for one index element.
type SortOrder int

const (
	SortDefault SortOrder = iota
	SortAsc
	SortDesc
)

func (o SortOrder) String() string {
	switch o {
	case SortAsc:
		return "ASC"
	case SortDesc:
		return "DESC"
	default:
		return "DEFAULT"
	}
}

// IndexElem is one key or INCLUDE column of an index.
type IndexElem struct {
	// Name is the column name, or the expression text for expression keys.
	Name     string
	Ordering SortOrder
}

// CreateIndex is CREATE INDEX.
type CreateIndex struct {
	source
	Name      string
	Relation  QualifiedName
	Params    []IndexElem
	Including []IndexElem
}

func (*CreateIndex) Kind() Kind { return KindCreateIndex }

// DefElem is one option clause of CREATE FUNCTION, e.g. LANGUAGE sql.
type DefElem struct {
	Name  string
	Value string
}

// CreateFunction is CREATE [OR REPLACE] FUNCTION or PROCEDURE.
type CreateFunction struct {
	source
	Name      []string
	Procedure bool
	Options   []DefElem
}

func (*CreateFunction) Kind() Kind { return KindCreateFunction }

// Option returns the value of the option named name, matched case-insensitively.
func (f *CreateFunction) Option(name string) (string, bool) {
	for _, opt := range f.Options {
		if strings.EqualFold(opt.Name, name) {
			return opt.Value, true
		}
	}
	return "", false
}

// Tagged is a statement the policy only distinguishes by kind.
type Tagged struct {
	source
	kind Kind
}

func (t *Tagged) Kind() Kind { return t.kind }

// Other is any statement without a dedicated kind.
type Other struct {
	source
	// Subcommands are the elements of CREATE SCHEMA, in source order. The
	// engine runs each of them as a statement of its own.
	Subcommands []Statement
}

func (*Other) Kind() Kind { return KindOther }

// Subcommands returns the statements stmt runs on its own behalf, or nil.
func Subcommands(stmt Statement) []Statement {
	if other, ok := stmt.(*Other); ok {
		return other.Subcommands
	}
	return nil
}

// NewTagged builds a kind-only statement, mostly for callers that construct
// statements without the parser.
func NewTagged(kind Kind, text string) *Tagged {
	return &Tagged{source: source{text: text, line: 1}, kind: kind}
}

// NewOther builds an unclassified statement.
func NewOther(text string) *Other {
	return &Other{source: source{text: text, line: 1}}
}

var (
	_ Statement = (*CreateTable)(nil)
	_ Statement = (*CreateIndex)(nil)
	_ Statement = (*CreateFunction)(nil)
	_ Statement = (*Tagged)(nil)
	_ Statement = (*Other)(nil)
)
