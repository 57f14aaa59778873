package hook

import (
	"context"

	"github.com/pkg/errors"

	"github.com/nsxbet/ddlguard/pkg/logger"
	"github.com/nsxbet/ddlguard/pkg/metrics"
	"github.com/nsxbet/ddlguard/pkg/probe"
	"github.com/nsxbet/ddlguard/pkg/rules"
	"github.com/nsxbet/ddlguard/pkg/statement"
)

// Dispatcher evaluates each call against the policy and forwards the ones
// that pass to next. It holds no mutable state and may be shared.
type Dispatcher struct {
	next    Handler
	env     rules.Env
	logger  logger.Interface
	metrics *metrics.Metrics
}

// Compile-time check that Dispatcher implements Handler.
var _ Handler = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher delegating to next. It panics if next
// is nil.
func NewDispatcher(next Handler, opts ...Option) *Dispatcher {
	if next == nil {
		panic("hook: NewDispatcher next handler is nil")
	}
	o := newOptions(opts)

	var prober probe.Prober = o.prober
	if o.metrics != nil {
		prober = &instrumentedProber{next: prober, metrics: o.metrics}
	}

	return &Dispatcher{
		next: next,
		env: rules.Env{
			Probe:          prober,
			OnProbeFailure: o.onProbeFailure,
			Logger:         o.logger,
		},
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// Evaluate returns the policy verdict for stmt without forwarding anything.
// Subcommands of stmt are evaluated first, in order, and the first
// rejection wins.
func (d *Dispatcher) Evaluate(ctx context.Context, stmt statement.Statement) rules.Verdict {
	_, verdict := d.evaluate(ctx, stmt)
	return verdict
}

// evaluate returns the verdict together with the statement it is about:
// stmt itself or the subcommand that was rejected.
func (d *Dispatcher) evaluate(ctx context.Context, stmt statement.Statement) (statement.Statement, rules.Verdict) {
	if subs := statement.Subcommands(stmt); len(subs) > 0 {
		created := &createdTables{next: d.env.Probe}
		env := d.env
		env.Probe = created
		for _, sub := range subs {
			d.logger.Debug("evaluating statement",
				"kind", sub.Kind().String(),
				"context", ContextSubcommand.String(),
			)
			if verdict := rules.Evaluate(ctx, sub, env); verdict.Rejected {
				return sub, verdict
			}
			if table, ok := sub.(*statement.CreateTable); ok {
				created.add(table.Relation)
			}
		}
	}
	return stmt, rules.Evaluate(ctx, stmt, d.env)
}

// ProcessUtility rejects call with a *PolicyViolation or forwards it to the
// next handler. Errors from the next handler are returned as they are.
func (d *Dispatcher) ProcessUtility(ctx context.Context, call *Call) error {
	if call == nil {
		return errors.New("hook: nil call")
	}
	kind := statement.Classify(call.Statement)

	offender, verdict := d.evaluate(ctx, call.Statement)
	if verdict.Rejected {
		rejected := statement.Classify(offender)
		d.logger.Info("statement rejected",
			"kind", rejected.String(),
			"rule", verdict.Rule,
			"reason", verdict.Message,
			logger.Statement(call.Query),
		)
		d.metrics.Decision(rejected.String(), metrics.ResultRejected)
		d.metrics.Rejection(verdict.Rule)
		return &PolicyViolation{
			Kind:    rejected,
			Rule:    verdict.Rule,
			Message: verdict.Message,
			Query:   call.Query,
		}
	}

	d.logger.Debug("statement forwarded",
		"kind", kind.String(),
		"context", call.Context.String(),
	)
	if err := d.next.ProcessUtility(ctx, call); err != nil {
		d.metrics.Decision(kind.String(), metrics.ResultFailed)
		return err
	}
	d.metrics.Decision(kind.String(), metrics.ResultForwarded)
	return nil
}

type instrumentedProber struct {
	next    probe.Prober
	metrics *metrics.Metrics
}

func (p *instrumentedProber) TableHasRows(ctx context.Context, table statement.QualifiedName) (bool, error) {
	hasRows, err := p.next.TableHasRows(ctx, table)
	switch {
	case err != nil:
		p.metrics.Probe(metrics.ProbeFailure)
	case hasRows:
		p.metrics.Probe(metrics.ProbeHasRows)
	default:
		p.metrics.Probe(metrics.ProbeEmpty)
	}
	return hasRows, err
}

// createdTables reports tables created earlier in the same statement as
// empty; they do not exist yet when the statement is evaluated.
type createdTables struct {
	next   probe.Prober
	tables map[statement.QualifiedName]struct{}
}

func (p *createdTables) add(table statement.QualifiedName) {
	if p.tables == nil {
		p.tables = make(map[statement.QualifiedName]struct{})
	}
	p.tables[table] = struct{}{}
}

func (p *createdTables) TableHasRows(ctx context.Context, table statement.QualifiedName) (bool, error) {
	if _, ok := p.tables[table]; ok {
		return false, nil
	}
	return p.next.TableHasRows(ctx, table)
}
