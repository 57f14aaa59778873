// Package rules holds the compiled-in statement policy: the catalog of
// statement kinds that are always rejected and the structural inspectors
// that look inside table, index and function definitions.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nsxbet/ddlguard/pkg/logger"
	"github.com/nsxbet/ddlguard/pkg/probe"
	"github.com/nsxbet/ddlguard/pkg/statement"
)

// Rule identifiers reported with a rejection.
const (
	RuleTableTemporary    = "table.disallow-temporary"
	RuleTableInheritance  = "table.disallow-inheritance"
	RuleTablePartition    = "table.disallow-partition"
	RuleTableCollation    = "table.disallow-column-collation"
	RuleIndexOrdering     = "index.disallow-ordering"
	RuleIndexExistingData = "index.disallow-existing-data"
	RuleIndexProbeFailure = "index.probe-failure"
	RuleFunctionLanguage  = "function.language-allowlist"
	RuleCatalogPrefix     = "statement.disallow."
)

// Verdict is the outcome of evaluating one statement.
type Verdict struct {
	Rejected bool
	Rule     string
	Message  string
}

// Pass returns the verdict that lets a statement through.
func Pass() Verdict {
	return Verdict{}
}

// Reject returns a rejecting verdict for rule.
func Reject(rule, format string, args ...any) Verdict {
	return Verdict{
		Rejected: true,
		Rule:     rule,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Env carries what inspectors may consult besides the statement itself.
type Env struct {
	// Probe answers whether a table holds rows. Nil means every table is empty.
	Probe          probe.Prober
	OnProbeFailure probe.FailurePolicy
	Logger         logger.Interface
}

func (e Env) prober() probe.Prober {
	if e.Probe == nil {
		return probe.Empty
	}
	return e.Probe
}

func (e Env) logger() logger.Interface {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

// Inspector examines the typed fields of one statement kind.
type Inspector interface {
	Inspect(ctx context.Context, stmt statement.Statement, env Env) Verdict
}

// InspectorFunc adapts a function to Inspector.
type InspectorFunc func(ctx context.Context, stmt statement.Statement, env Env) Verdict

// Inspect calls f.
func (f InspectorFunc) Inspect(ctx context.Context, stmt statement.Statement, env Env) Verdict {
	return f(ctx, stmt, env)
}

var (
	inspectorMu sync.RWMutex
	inspectors  = make(map[statement.Kind]Inspector)
)

// Register makes an inspector available for kind.
// If Register is called twice with the same kind or if inspector is nil,
// it panics.
func Register(kind statement.Kind, inspector Inspector) {
	inspectorMu.Lock()
	defer inspectorMu.Unlock()
	if inspector == nil {
		panic("rules: Register inspector is nil")
	}
	if _, dup := inspectors[kind]; dup {
		panic(fmt.Sprintf("rules: Register called twice for kind %v", kind))
	}
	inspectors[kind] = inspector
}

// InspectorFor returns the inspector registered for kind.
func InspectorFor(kind statement.Kind) (Inspector, bool) {
	inspectorMu.RLock()
	defer inspectorMu.RUnlock()
	inspector, ok := inspectors[kind]
	return inspector, ok
}

// InspectedKinds returns the kinds that have an inspector, in kind order.
func InspectedKinds() []statement.Kind {
	inspectorMu.RLock()
	defer inspectorMu.RUnlock()
	var kinds []statement.Kind
	for _, kind := range statement.AllKinds() {
		if _, ok := inspectors[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// Inspect runs the inspector registered for stmt's kind, if any.
func Inspect(ctx context.Context, stmt statement.Statement, env Env) Verdict {
	inspector, ok := InspectorFor(statement.Classify(stmt))
	if !ok {
		return Pass()
	}
	return inspector.Inspect(ctx, stmt, env)
}

// Evaluate runs the structural inspector for stmt, then the catalog lookup.
// A rejecting inspector ends evaluation.
func Evaluate(ctx context.Context, stmt statement.Statement, env Env) Verdict {
	if verdict := Inspect(ctx, stmt, env); verdict.Rejected {
		return verdict
	}
	return CatalogVerdict(statement.Classify(stmt))
}
