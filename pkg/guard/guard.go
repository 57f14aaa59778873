// Package guard provides a high-level API for running SQL scripts through
// the statement policy.
//
// # Quick Start
//
//	// Dry run: evaluate without executing anything
//	g := guard.New(nil)
//	result, err := g.Run(context.Background(), "CREATE TEMP TABLE t (a int);")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, o := range result.FilterByStatus(guard.StatusRejected) {
//	    fmt.Printf("line %d: %s\n", o.Line, o.Message)
//	}
//
// # Executing Approved Statements
//
//	db, _ := sql.Open("postgres", dsn)
//	g := guard.New(executor.New(db),
//	    guard.WithProber(probe.NewSQL(db)),
//	    guard.WithStopOnError(true),
//	)
//	result, err := g.Run(ctx, script)
package guard

import (
	"context"
	"log/slog"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/nsxbet/ddlguard/pkg/hook"
	"github.com/nsxbet/ddlguard/pkg/logger"
	"github.com/nsxbet/ddlguard/pkg/statement"
)

// Guard parses scripts and sends each statement through a Dispatcher.
//
// Guard is safe for concurrent use by multiple goroutines.
type Guard struct {
	dispatcher  *hook.Dispatcher
	cache       *lru.Cache[uint64, cachedParse]
	logger      logger.Interface
	stopOnError bool
}

// cachedParse keeps the script next to its statements so a hash collision
// is detected instead of served.
type cachedParse struct {
	sql        string
	statements []statement.Statement
}

// New creates a Guard forwarding approved statements to next. A nil next
// makes every run a dry run.
func New(next hook.Handler, opts ...Option) *Guard {
	o := options{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if next == nil {
		next = hook.Discard
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	g := &Guard{
		dispatcher:  hook.NewDispatcher(next, o.hook...),
		logger:      o.logger,
		stopOnError: o.stopOnError,
	}
	if o.cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		g.cache, _ = lru.New[uint64, cachedParse](o.cacheSize)
	}
	return g
}

// Dispatcher returns the dispatcher statements are sent through.
func (g *Guard) Dispatcher() *hook.Dispatcher {
	return g.dispatcher
}

// Parse splits sql into typed statements, using the cache when enabled.
// Syntax errors are returned as *pgparser.SyntaxError.
func (g *Guard) Parse(sql string) ([]statement.Statement, error) {
	if g.cache == nil {
		return statement.Parse(sql)
	}

	key := xxhash.Sum64String(sql)
	if cached, ok := g.cache.Get(key); ok && cached.sql == sql {
		return cached.statements, nil
	}

	stmts, err := statement.Parse(sql)
	if err != nil {
		return nil, err
	}
	g.cache.Add(key, cachedParse{sql: sql, statements: stmts})
	return stmts, nil
}

// Run evaluates every statement in sql, in order, and forwards those that
// pass. Rejections and downstream failures are reported in the Result, not
// as an error; Run only fails on a syntax error or a cancelled context, in
// which case the outcomes so far are returned with the error.
func (g *Guard) Run(ctx context.Context, sql string) (*Result, error) {
	stmts, err := g.Parse(sql)
	if err != nil {
		return nil, err
	}

	result := &Result{Outcomes: make([]*Outcome, 0, len(stmts))}
	for _, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return result, errors.Wrap(err, "guard run interrupted")
		}

		outcome := g.process(ctx, stmt)
		result.add(outcome)
		if g.stopOnError && outcome.Status != StatusForwarded {
			g.logger.Debug("stopping at first unsuccessful statement", "line", outcome.Line)
			break
		}
	}
	return result, nil
}

func (g *Guard) process(ctx context.Context, stmt statement.Statement) *Outcome {
	call := &hook.Call{
		Statement:  stmt,
		Query:      stmt.Text(),
		TopLevel:   true,
		Context:    hook.ContextTopLevel,
		Completion: &hook.Completion{},
	}
	outcome := &Outcome{
		Statement: stmt.Text(),
		Line:      stmt.Line(),
		Kind:      stmt.Kind(),
		Status:    StatusForwarded,
	}

	err := g.dispatcher.ProcessUtility(ctx, call)
	var violation *hook.PolicyViolation
	switch {
	case err == nil:
		outcome.Tag = call.Completion.Tag
		outcome.Rows = call.Completion.Rows
	case errors.As(err, &violation):
		outcome.Status = StatusRejected
		outcome.Rule = violation.Rule
		outcome.Message = violation.Message
	default:
		outcome.Status = StatusFailed
		outcome.Message = err.Error()
		g.logger.Warn("statement failed", "line", outcome.Line, logger.Error(err))
	}
	return outcome
}
