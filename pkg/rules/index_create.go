package rules

import (
	"context"

	"github.com/nsxbet/ddlguard/pkg/logger"
	"github.com/nsxbet/ddlguard/pkg/probe"
	"github.com/nsxbet/ddlguard/pkg/statement"
)

func init() {
	Register(statement.KindCreateIndex, InspectorFunc(inspectCreateIndex))
}

// inspectCreateIndex rejects explicit orderings before it probes the table,
// so an invalid statement never costs a query.
func inspectCreateIndex(ctx context.Context, stmt statement.Statement, env Env) Verdict {
	index, ok := stmt.(*statement.CreateIndex)
	if !ok {
		return Pass()
	}

	for _, elems := range [][]statement.IndexElem{index.Params, index.Including} {
		for _, elem := range elems {
			if elem.Ordering != statement.SortDefault {
				return Reject(RuleIndexOrdering, "index column ordering is unsupported, column %q is %s", elem.Name, elem.Ordering)
			}
		}
	}

	table := index.Relation.String()
	hasRows, err := env.prober().TableHasRows(ctx, index.Relation)
	if err != nil {
		if env.OnProbeFailure == probe.FailClosed {
			return Reject(RuleIndexProbeFailure, "CREATE INDEX on table %q is unsupported, its contents could not be checked", table)
		}
		env.logger().Warn("table probe failed, treating table as empty",
			"table", table,
			logger.Error(err),
		)
		return Pass()
	}
	if hasRows {
		return Reject(RuleIndexExistingData, "CREATE INDEX on table %q with existing data is unsupported", table)
	}
	return Pass()
}
