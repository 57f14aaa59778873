// Package executor is the standard execution path: it runs approved
// statements against a database/sql connection pool.
package executor

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/nsxbet/ddlguard/pkg/hook"
)

// Executor runs statements on db.
type Executor struct {
	db *sql.DB
}

// Compile-time check that Executor implements hook.Handler.
var _ hook.Handler = (*Executor)(nil)

// New creates an executor over db.
func New(db *sql.DB) *Executor {
	return &Executor{db: db}
}

// ProcessUtility executes call.Query with call.Params. Rows are streamed to
// call.Dest when it is set; otherwise the statement is executed for effect.
func (e *Executor) ProcessUtility(ctx context.Context, call *hook.Call) error {
	var (
		count int64
		err   error
	)
	if call.Dest != nil {
		count, err = e.query(ctx, call)
	} else {
		count, err = e.exec(ctx, call)
	}
	if err != nil {
		return err
	}

	if call.Completion != nil {
		call.Completion.Tag = CommandTag(call.Query)
		call.Completion.Rows = count
	}
	return nil
}

func (e *Executor) exec(ctx context.Context, call *hook.Call) (int64, error) {
	result, err := e.db.ExecContext(ctx, call.Query, call.Params...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to execute statement")
	}
	// Drivers that cannot report affected rows leave the count at zero.
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

func (e *Executor) query(ctx context.Context, call *hook.Call) (int64, error) {
	rows, err := e.db.QueryContext(ctx, call.Query, call.Params...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to execute statement")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read result columns")
	}

	var count int64
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return count, errors.Wrap(err, "failed to scan row")
		}
		if err := call.Dest.Receive(columns, values); err != nil {
			return count, errors.Wrap(err, "receiver rejected row")
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, errors.Wrap(err, "failed to read rows")
	}
	return count, nil
}

// modifiers are skipped when building a command tag.
var modifiers = map[string]bool{
	"OR":         true,
	"REPLACE":    true,
	"TEMP":       true,
	"TEMPORARY":  true,
	"UNLOGGED":   true,
	"UNIQUE":     true,
	"GLOBAL":     true,
	"LOCAL":      true,
	"TRUSTED":    true,
	"PROCEDURAL": true,
}

// CommandTag approximates the completion tag the server reports for query,
// e.g. "CREATE TABLE" or "INSERT".
func CommandTag(query string) string {
	words := strings.Fields(strings.ToUpper(query))
	if len(words) == 0 {
		return ""
	}
	verb := strings.TrimSuffix(words[0], ";")
	switch verb {
	case "CREATE", "ALTER", "DROP":
	default:
		return verb
	}
	for _, word := range words[1:] {
		word = strings.TrimSuffix(word, ";")
		if modifiers[word] {
			continue
		}
		if word == "MATERIALIZED" {
			return verb + " MATERIALIZED VIEW"
		}
		return verb + " " + word
	}
	return verb
}
