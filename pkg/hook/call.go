// Package hook is the interception point for utility statements. A
// Dispatcher evaluates each statement against the policy in package rules
// and forwards approved calls, untouched, to the next Handler in the chain.
package hook

import (
	"context"

	"github.com/nsxbet/ddlguard/pkg/statement"
)

// UtilityContext says where a utility statement came from.
type UtilityContext int

const (
	// ContextTopLevel is a statement submitted directly by a client.
	ContextTopLevel UtilityContext = iota
	// ContextQuery is a statement run from inside a query, e.g. a function body.
	ContextQuery
	// ContextQueryNonAtomic is ContextQuery where transaction control is allowed.
	ContextQueryNonAtomic
	// ContextSubcommand is a statement generated while running another one.
	ContextSubcommand
)

func (c UtilityContext) String() string {
	switch c {
	case ContextTopLevel:
		return "toplevel"
	case ContextQuery:
		return "query"
	case ContextQueryNonAtomic:
		return "query_nonatomic"
	case ContextSubcommand:
		return "subcommand"
	default:
		return "unknown"
	}
}

// Receiver consumes the rows a statement returns.
type Receiver interface {
	Receive(columns []string, values []any) error
}

// ReceiverFunc adapts a function to Receiver.
type ReceiverFunc func(columns []string, values []any) error

// Receive calls f.
func (f ReceiverFunc) Receive(columns []string, values []any) error {
	return f(columns, values)
}

// Completion is filled in by the handler that executes the statement.
type Completion struct {
	Tag  string
	Rows int64
}

// Call is the parameter set handed to a Handler for one statement. The
// policy layer reads Statement and Query; everything else is passed through.
type Call struct {
	Statement  statement.Statement
	Query      string
	TopLevel   bool
	Context    UtilityContext
	Params     []any
	QueryEnv   any
	Dest       Receiver
	Completion *Completion
}

// Handler processes one utility statement.
type Handler interface {
	ProcessUtility(ctx context.Context, call *Call) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, call *Call) error

// ProcessUtility calls f.
func (f HandlerFunc) ProcessUtility(ctx context.Context, call *Call) error {
	return f(ctx, call)
}

// Discard accepts every call and does nothing with it.
var Discard Handler = HandlerFunc(func(context.Context, *Call) error { return nil })
