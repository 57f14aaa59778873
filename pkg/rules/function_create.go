package rules

import (
	"context"

	"github.com/nsxbet/ddlguard/pkg/statement"
)

// NativeLanguage is the only function language allowed.
const NativeLanguage = "sql"

func init() {
	Register(statement.KindCreateFunction, InspectorFunc(inspectCreateFunction))
}

func inspectCreateFunction(_ context.Context, stmt statement.Statement, _ Env) Verdict {
	function, ok := stmt.(*statement.CreateFunction)
	if !ok {
		return Pass()
	}

	language, ok := function.Option("language")
	if !ok || language == NativeLanguage {
		return Pass()
	}
	return Reject(RuleFunctionLanguage, "function language %q is unsupported, only %q is allowed", language, NativeLanguage)
}
