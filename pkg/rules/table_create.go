package rules

import (
	"context"

	"github.com/nsxbet/ddlguard/pkg/statement"
)

func init() {
	Register(statement.KindCreateTable, InspectorFunc(inspectCreateTable))
}

// inspectCreateTable checks, in order: persistence, inheritance,
// partitioning, column collations. The first violation wins.
func inspectCreateTable(_ context.Context, stmt statement.Statement, _ Env) Verdict {
	table, ok := stmt.(*statement.CreateTable)
	if !ok {
		return Pass()
	}

	if table.Persistence == statement.PersistenceTemporary {
		return Reject(RuleTableTemporary, "temporary tables are unsupported")
	}
	if len(table.Inherits) > 0 {
		return Reject(RuleTableInheritance, "table inheritance is unsupported, %q inherits from %q", table.Relation.String(), table.Inherits[0].String())
	}
	if table.Partitioned {
		return Reject(RuleTablePartition, "partitioned tables are unsupported, table %q", table.Relation.String())
	}
	for _, column := range table.Columns {
		if column.Collation != "" {
			return Reject(RuleTableCollation, "column collation is unsupported, column %q uses collation %q", column.Name, column.Collation)
		}
	}
	return Pass()
}
