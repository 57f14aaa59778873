package statement

import (
	"strings"

	"github.com/antlr4-go/antlr/v4"
	parser "github.com/bytebase/parser/postgresql"
	"github.com/nsxbet/ddlguard/pkg/pgparser"
)

// Parse parses sql and returns one Statement per top-level statement, in
// source order. Syntax errors are returned as *pgparser.SyntaxError.
func Parse(sql string) ([]Statement, error) {
	result, err := pgparser.ParsePostgreSQL(sql)
	if err != nil {
		return nil, err
	}
	return FromParseResult(result), nil
}

// FromParseResult builds the typed statements of an already parsed script.
func FromParseResult(result *pgparser.ParseResult) []Statement {
	c := &classifier{
		BasePostgreSQLParserListener: &parser.BasePostgreSQLParserListener{},
		result:                       result,
	}
	antlr.ParseTreeWalkerDefault.Walk(c, result.Tree)
	return c.statements
}

// classifier walks the tree once. EnterStmt opens an Other for each
// top-level statement; the kind-specific Enter methods then replace it.
// Elements of CREATE SCHEMA are collected the same way as subcommands of
// the enclosing statement.
type classifier struct {
	*parser.BasePostgreSQLParserListener

	result     *pgparser.ParseResult
	statements []Statement
	current    source
	schema     *schemaScope
}

// schemaScope is the CREATE SCHEMA statement being walked.
type schemaScope struct {
	name    string
	owner   *Other
	current source
}

// isTopLevel checks if the context is at the top level of the parse tree.
func isTopLevel(ctx antlr.Tree) bool {
	if ctx == nil {
		return true
	}

	switch ctx := ctx.(type) {
	case *parser.RootContext, *parser.StmtblockContext:
		return true
	case *parser.StmtmultiContext, *parser.StmtContext:
		return isTopLevel(ctx.GetParent())
	default:
		return false
	}
}

func (c *classifier) EnterStmt(ctx *parser.StmtContext) {
	if !isTopLevel(ctx.GetParent()) || ctx.GetChildCount() == 0 {
		return
	}
	c.current = source{
		text: c.result.Text(ctx),
		line: ctx.GetStart().GetLine(),
	}
	c.statements = append(c.statements, &Other{source: c.current})
}

// emit places a typed view built for the statement whose parent is parent.
// Top-level statements replace the Other opened by EnterStmt, schema
// elements replace the Other opened by EnterSchema_stmt, anything else is
// dropped.
func (c *classifier) emit(parent antlr.Tree, stmt Statement) {
	switch {
	case isTopLevel(parent):
		if len(c.statements) == 0 {
			return
		}
		stmt.(sourced).setSource(c.current)
		c.statements[len(c.statements)-1] = stmt
	case c.schema != nil:
		if _, ok := parent.(*parser.Schema_stmtContext); !ok {
			return
		}
		subs := c.schema.owner.Subcommands
		if len(subs) == 0 {
			return
		}
		stmt.(sourced).setSource(c.schema.current)
		c.schema.qualify(stmt)
		subs[len(subs)-1] = stmt
	}
}

func (c *classifier) tag(parent antlr.Tree, kind Kind) {
	c.emit(parent, &Tagged{kind: kind})
}

func (c *classifier) EnterCreateschemastmt(ctx *parser.CreateschemastmtContext) {
	if !isTopLevel(ctx.GetParent()) || len(c.statements) == 0 {
		return
	}
	owner, ok := c.statements[len(c.statements)-1].(*Other)
	if !ok {
		return
	}
	c.schema = &schemaScope{name: schemaName(ctx), owner: owner}
}

func (c *classifier) ExitCreateschemastmt(_ *parser.CreateschemastmtContext) {
	c.schema = nil
}

// EnterSchema_stmt opens an Other for each schema element; the
// kind-specific Enter methods then replace it.
func (c *classifier) EnterSchema_stmt(ctx *parser.Schema_stmtContext) {
	if c.schema == nil {
		return
	}
	c.schema.current = source{
		text: c.result.Text(ctx),
		line: ctx.GetStart().GetLine(),
	}
	c.schema.owner.Subcommands = append(c.schema.owner.Subcommands, &Other{source: c.schema.current})
}

// schemaName returns the schema a CREATE SCHEMA statement creates: the
// explicit name, else the AUTHORIZATION role. CURRENT_USER and
// SESSION_USER yield "".
func schemaName(ctx *parser.CreateschemastmtContext) string {
	switch {
	case ctx.Colid() != nil:
		return pgparser.NormalizePostgreSQLColid(ctx.Colid())
	case ctx.Optschemaname() != nil:
		return pgparser.NormalizePostgreSQLColid(ctx.Optschemaname().Colid())
	case ctx.Rolespec() != nil && ctx.Rolespec().Nonreservedword() != nil:
		return pgparser.NormalizeWordOrString(ctx.Rolespec().Nonreservedword().GetText())
	default:
		return ""
	}
}

// qualify places unqualified relations of a schema element in the new schema.
func (s *schemaScope) qualify(stmt Statement) {
	if s.name == "" {
		return
	}
	switch stmt := stmt.(type) {
	case *CreateTable:
		if stmt.Relation.Schema == "" {
			stmt.Relation.Schema = s.name
		}
	case *CreateIndex:
		if stmt.Relation.Schema == "" {
			stmt.Relation.Schema = s.name
		}
	}
}

func (c *classifier) EnterCreatestmt(ctx *parser.CreatestmtContext) {
	stmt := &CreateTable{}

	if names := ctx.AllQualified_name(); len(names) > 0 {
		stmt.Relation = qualifiedName(names[0])
		// PARTITION OF parent
		for _, parent := range names[1:] {
			stmt.Inherits = append(stmt.Inherits, qualifiedName(parent))
		}
	}

	if ctx.Opttemp() != nil {
		text := strings.ToUpper(ctx.Opttemp().GetText())
		switch {
		case strings.Contains(text, "TEMP"):
			stmt.Persistence = PersistenceTemporary
		case strings.Contains(text, "UNLOGGED"):
			stmt.Persistence = PersistenceUnlogged
		}
	}

	if ctx.Optinherit() != nil && ctx.Optinherit().Qualified_name_list() != nil {
		for _, parent := range ctx.Optinherit().Qualified_name_list().AllQualified_name() {
			stmt.Inherits = append(stmt.Inherits, qualifiedName(parent))
		}
	}

	stmt.Partitioned = ctx.Optpartitionspec() != nil && ctx.Optpartitionspec().Partitionspec() != nil

	if ctx.Opttableelementlist() != nil && ctx.Opttableelementlist().Tableelementlist() != nil {
		for _, elem := range ctx.Opttableelementlist().Tableelementlist().AllTableelement() {
			colDef := elem.ColumnDef()
			if colDef == nil {
				continue
			}
			column := ColumnDef{Name: pgparser.NormalizePostgreSQLColid(colDef.Colid())}
			if colDef.Colquallist() != nil {
				for _, constraint := range colDef.Colquallist().AllColconstraint() {
					if constraint.COLLATE() == nil || constraint.Any_name() == nil {
						continue
					}
					column.Collation = strings.Join(pgparser.NormalizePostgreSQLAnyName(constraint.Any_name()), ".")
				}
			}
			stmt.Columns = append(stmt.Columns, column)
		}
	}

	c.emit(ctx.GetParent(), stmt)
}

func (c *classifier) EnterIndexstmt(ctx *parser.IndexstmtContext) {
	stmt := &CreateIndex{}
	if ctx.Name() != nil {
		stmt.Name = pgparser.NormalizePostgreSQLName(ctx.Name())
	}
	if ctx.Relation_expr() != nil && ctx.Relation_expr().Qualified_name() != nil {
		stmt.Relation = qualifiedName(ctx.Relation_expr().Qualified_name())
	}
	if ctx.Index_params() != nil {
		for _, elem := range ctx.Index_params().AllIndex_elem() {
			stmt.Params = append(stmt.Params, c.indexElem(elem))
		}
	}
	if ctx.Opt_include() != nil && ctx.Opt_include().Index_including_params() != nil {
		for _, elem := range ctx.Opt_include().Index_including_params().AllIndex_elem() {
			stmt.Including = append(stmt.Including, c.indexElem(elem))
		}
	}

	c.emit(ctx.GetParent(), stmt)
}

// indexElem names the key without its options: the column name, the
// function call, or the parenthesized expression.
func (c *classifier) indexElem(elem parser.IIndex_elemContext) IndexElem {
	ie := IndexElem{Ordering: indexOrdering(elem)}
	switch {
	case elem.Colid() != nil:
		ie.Name = pgparser.NormalizePostgreSQLColid(elem.Colid())
	case elem.Func_expr_windowless() != nil:
		ie.Name = c.result.Text(elem.Func_expr_windowless())
	case elem.A_expr() != nil:
		ie.Name = "(" + c.result.Text(elem.A_expr()) + ")"
	default:
		ie.Name = c.result.Text(elem)
	}
	return ie
}

// indexOrdering looks for ASC or DESC among the element options. The first
// child is the key column or expression and is skipped, as are
// parenthesized expressions, so orderings inside expressions do not count.
func indexOrdering(elem parser.IIndex_elemContext) SortOrder {
	for i, child := range elem.GetChildren() {
		if i == 0 {
			continue
		}
		if _, ok := child.(*parser.A_exprContext); ok {
			continue
		}
		switch {
		case hasToken(child, parser.PostgreSQLParserDESC):
			return SortDesc
		case hasToken(child, parser.PostgreSQLParserASC):
			return SortAsc
		}
	}
	return SortDefault
}

func (c *classifier) EnterCreatefunctionstmt(ctx *parser.CreatefunctionstmtContext) {
	stmt := &CreateFunction{
		Name:      pgparser.NormalizePostgreSQLFuncName(ctx.Func_name()),
		Procedure: ctx.PROCEDURE() != nil,
	}

	if ctx.Createfunc_opt_list() != nil {
		for _, item := range ctx.Createfunc_opt_list().AllCreatefunc_opt_item() {
			stmt.Options = append(stmt.Options, c.functionOption(item))
		}
	}

	c.emit(ctx.GetParent(), stmt)
}

func (c *classifier) functionOption(item parser.ICreatefunc_opt_itemContext) DefElem {
	if item.LANGUAGE() != nil && item.Nonreservedword_or_sconst() != nil {
		return DefElem{
			Name:  "language",
			Value: pgparser.NormalizeWordOrString(item.Nonreservedword_or_sconst().GetText()),
		}
	}

	// Other options keep their leading keyword as name and the rest as value.
	text := strings.TrimSpace(c.result.Text(item))
	name, value, _ := strings.Cut(text, " ")
	return DefElem{
		Name:  strings.ToLower(name),
		Value: strings.TrimSpace(value),
	}
}

func (c *classifier) EnterViewstmt(ctx *parser.ViewstmtContext) {
	c.tag(ctx.GetParent(), KindCreateView)
}

func (c *classifier) EnterTruncatestmt(ctx *parser.TruncatestmtContext) {
	c.tag(ctx.GetParent(), KindTruncate)
}

func (c *classifier) EnterCreateseqstmt(ctx *parser.CreateseqstmtContext) {
	c.tag(ctx.GetParent(), KindCreateSequence)
}

func (c *classifier) EnterCreatematviewstmt(ctx *parser.CreatematviewstmtContext) {
	c.tag(ctx.GetParent(), KindCreateTableAs)
}

func (c *classifier) EnterCreateasstmt(ctx *parser.CreateasstmtContext) {
	c.tag(ctx.GetParent(), KindCreateTableAs)
}

func (c *classifier) EnterCreatetrigstmt(ctx *parser.CreatetrigstmtContext) {
	c.tag(ctx.GetParent(), KindCreateTrigger)
}

func (c *classifier) EnterCreatetablespacestmt(ctx *parser.CreatetablespacestmtContext) {
	c.tag(ctx.GetParent(), KindCreateTablespace)
}

// EnterDefinestmt only tags CREATE TYPE ... AS (composite, enum, range).
// Base types, aggregates, operators and the rest stay Other.
func (c *classifier) EnterDefinestmt(ctx *parser.DefinestmtContext) {
	if ctx.TYPE_P() == nil || ctx.AS() == nil {
		return
	}
	c.tag(ctx.GetParent(), KindCreateType)
}

func (c *classifier) EnterCreatedbstmt(ctx *parser.CreatedbstmtContext) {
	c.tag(ctx.GetParent(), KindCreateDatabase)
}

func (c *classifier) EnterVacuumstmt(ctx *parser.VacuumstmtContext) {
	c.tag(ctx.GetParent(), KindVacuum)
}

func (c *classifier) EnterAltersystemstmt(ctx *parser.AltersystemstmtContext) {
	c.tag(ctx.GetParent(), KindAlterSystem)
}

func (c *classifier) EnterCreateextensionstmt(ctx *parser.CreateextensionstmtContext) {
	c.tag(ctx.GetParent(), KindCreateExtension)
}

func qualifiedName(ctx parser.IQualified_nameContext) QualifiedName {
	return qualifiedNameFromParts(pgparser.NormalizePostgreSQLQualifiedName(ctx))
}

// hasToken reports whether any terminal under tree has tokenType.
func hasToken(tree antlr.Tree, tokenType int) bool {
	if terminal, ok := tree.(antlr.TerminalNode); ok {
		return terminal.GetSymbol().GetTokenType() == tokenType
	}
	for _, child := range tree.GetChildren() {
		if hasToken(child, tokenType) {
			return true
		}
	}
	return false
}
