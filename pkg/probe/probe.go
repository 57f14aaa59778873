// Package probe answers the one question the index rule asks of the
// database: does a table already hold at least one row?
package probe

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/nsxbet/ddlguard/pkg/catalog"
	"github.com/nsxbet/ddlguard/pkg/statement"
)

// ErrProbe marks a probe that could not produce an answer.
var ErrProbe = errors.New("table probe failed")

// Prober reports whether a table holds rows.
type Prober interface {
	TableHasRows(ctx context.Context, table statement.QualifiedName) (bool, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, table statement.QualifiedName) (bool, error)

// TableHasRows calls f.
func (f ProberFunc) TableHasRows(ctx context.Context, table statement.QualifiedName) (bool, error) {
	return f(ctx, table)
}

// FailurePolicy decides what a probe failure means.
type FailurePolicy int

const (
	// FailOpen treats an unanswerable probe as an empty table.
	FailOpen FailurePolicy = iota
	// FailClosed rejects the statement when the probe cannot answer.
	FailClosed
)

func (p FailurePolicy) String() string {
	switch p {
	case FailOpen:
		return "allow"
	case FailClosed:
		return "deny"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy parses "allow" or "deny". An empty string is "allow".
func ParseFailurePolicy(name string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "allow":
		return FailOpen, nil
	case "deny":
		return FailClosed, nil
	default:
		return FailOpen, errors.Errorf("unknown probe failure policy %q, expected allow or deny", name)
	}
}

// Quote renders table as a quoted identifier, one quoted part per name part.
func Quote(table statement.QualifiedName) string {
	parts := table.Parts()
	quoted := make([]string, 0, len(parts))
	for _, part := range parts {
		quoted = append(quoted, pq.QuoteIdentifier(part))
	}
	return strings.Join(quoted, ".")
}

// SQL probes a live database.
type SQL struct {
	db *sql.DB
}

// NewSQL creates a prober over db.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

// TableHasRows opens a connection for the duration of the call and runs a
// single-row existence query against table.
func (p *SQL) TableHasRows(ctx context.Context, table statement.QualifiedName) (bool, error) {
	if table.Name == "" {
		return false, errors.Wrap(ErrProbe, "empty table name")
	}

	conn, err := p.db.Conn(ctx)
	if err != nil {
		return false, errors.Wrapf(ErrProbe, "failed to acquire connection: %v", err)
	}
	defer conn.Close()

	query := "SELECT 1 FROM " + Quote(table) + " LIMIT 1"
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return false, errors.Wrapf(ErrProbe, "failed to query %s: %v", table, err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, errors.Wrapf(ErrProbe, "failed to read %s: %v", table, err)
	}
	return found, nil
}

// Catalog answers from an offline snapshot.
type Catalog struct {
	finder *catalog.Finder
}

// NewCatalog creates a prober backed by finder.
func NewCatalog(finder *catalog.Finder) *Catalog {
	return &Catalog{finder: finder}
}

// TableHasRows looks table up in the snapshot. Unknown tables are a failure.
func (p *Catalog) TableHasRows(_ context.Context, table statement.QualifiedName) (bool, error) {
	meta, ok := p.finder.FindTable(table.Schema, table.Name)
	if !ok {
		return false, errors.Wrapf(ErrProbe, "table %s not found in schema snapshot", table)
	}
	return meta.RowCount > 0, nil
}

type empty struct{}

func (empty) TableHasRows(context.Context, statement.QualifiedName) (bool, error) {
	return false, nil
}

// Empty reports every table as empty.
var Empty Prober = empty{}
