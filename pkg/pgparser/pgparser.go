// Package pgparser provides PostgreSQL SQL parsing functionality.
//
// This package wraps the Bytebase PostgreSQL parser and provides the identifier
// normalization and source-text helpers used to build typed statement views.
package pgparser

import (
	"fmt"
	"strings"

	"github.com/antlr4-go/antlr/v4"
	parser "github.com/bytebase/parser/postgresql"
)

// ParseResult contains the parsed SQL statement tree and tokens.
type ParseResult struct {
	Tree   antlr.Tree
	Tokens *antlr.CommonTokenStream

	// source holds the input as runes; ANTLR token offsets index runes, not bytes.
	source []rune
}

// Position is a 1-based line and 0-based column inside the parsed input.
type Position struct {
	Line   int `json:"line" yaml:"line"`
	Column int `json:"column" yaml:"column"`
}

// SyntaxError represents a SQL syntax error with position information.
type SyntaxError struct {
	Message  string
	Position *Position
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Position != nil {
		return fmt.Sprintf("syntax error at line %d, column %d: %s",
			e.Position.Line, e.Position.Column, e.Message)
	}
	return fmt.Sprintf("syntax error: %s", e.Message)
}

// syntaxErrorListener keeps the first syntax error reported during parsing.
type syntaxErrorListener struct {
	*antlr.DefaultErrorListener
	err *SyntaxError
}

// SyntaxError is called when a syntax error is encountered.
func (l *syntaxErrorListener) SyntaxError(
	_ antlr.Recognizer,
	_ interface{},
	line, column int,
	msg string,
	_ antlr.RecognitionException,
) {
	if l.err == nil {
		l.err = &SyntaxError{
			Message: msg,
			Position: &Position{
				Line:   line,
				Column: column,
			},
		}
	}
}

// ParsePostgreSQL parses one or more PostgreSQL statements and returns the parse tree.
//
// Example:
//
//	result, err := pgparser.ParsePostgreSQL("CREATE TABLE users (id INT);")
//	if err != nil {
//	    // Handle syntax error
//	}
func ParsePostgreSQL(sql string) (*ParseResult, error) {
	inputStream := antlr.NewInputStream(sql)
	lexer := parser.NewPostgreSQLLexer(inputStream)

	lexerErrorListener := &syntaxErrorListener{}
	lexer.RemoveErrorListeners()
	lexer.AddErrorListener(lexerErrorListener)

	stream := antlr.NewCommonTokenStream(lexer, antlr.TokenDefaultChannel)

	p := parser.NewPostgreSQLParser(stream)
	p.BuildParseTrees = true

	parserErrorListener := &syntaxErrorListener{}
	p.RemoveErrorListeners()
	p.AddErrorListener(parserErrorListener)

	tree := p.Root()

	if lexerErrorListener.err != nil {
		return nil, lexerErrorListener.err
	}
	if parserErrorListener.err != nil {
		return nil, parserErrorListener.err
	}
	if tree == nil {
		return nil, &SyntaxError{
			Message: "failed to parse SQL statement",
		}
	}

	return &ParseResult{
		Tree:   tree,
		Tokens: stream,
		source: []rune(sql),
	}, nil
}

// Text returns the original source text covered by ctx, including hidden
// tokens such as whitespace and comments between its first and last token.
func (r *ParseResult) Text(ctx antlr.ParserRuleContext) string {
	if ctx == nil || ctx.GetStart() == nil || ctx.GetStop() == nil {
		return ""
	}
	start, stop := ctx.GetStart().GetStart(), ctx.GetStop().GetStop()
	if start < 0 || stop < start || stop >= len(r.source) {
		return ctx.GetText()
	}
	return string(r.source[start : stop+1])
}

// NormalizePostgreSQLQualifiedName normalizes a qualified name (schema.table).
// Returns a slice of name parts (e.g., ["schema", "table"]).
func NormalizePostgreSQLQualifiedName(ctx parser.IQualified_nameContext) []string {
	if ctx == nil {
		return []string{}
	}

	res := []string{NormalizePostgreSQLColid(ctx.Colid())}

	if ctx.Indirection() != nil {
		res = append(res, normalizePostgreSQLIndirection(ctx.Indirection())...)
	}
	return res
}

func normalizePostgreSQLIndirection(ctx parser.IIndirectionContext) []string {
	if ctx == nil {
		return []string{}
	}

	var res []string
	for _, child := range ctx.AllIndirection_el() {
		res = append(res, normalizePostgreSQLIndirectionEl(child))
	}
	return res
}

func normalizePostgreSQLIndirectionEl(ctx parser.IIndirection_elContext) string {
	if ctx == nil {
		return ""
	}

	if ctx.DOT() != nil {
		if ctx.STAR() != nil {
			return "*"
		}
		return normalizePostgreSQLCollabel(ctx.Attr_name().Collabel())
	}
	return ctx.GetText()
}

func normalizePostgreSQLCollabel(ctx parser.ICollabelContext) string {
	if ctx == nil {
		return ""
	}
	if ctx.Identifier() != nil {
		return normalizePostgreSQLIdentifier(ctx.Identifier())
	}
	return FoldIdentifier(ctx.GetText())
}

// NormalizePostgreSQLColid normalizes a column identifier.
func NormalizePostgreSQLColid(ctx parser.IColidContext) string {
	if ctx == nil {
		return ""
	}

	if ctx.Identifier() != nil {
		return normalizePostgreSQLIdentifier(ctx.Identifier())
	}

	// Unreserved keywords used as names.
	return FoldIdentifier(ctx.GetText())
}

func normalizePostgreSQLIdentifier(ctx parser.IIdentifierContext) string {
	if ctx == nil {
		return ""
	}

	if ctx.QuotedIdentifier() != nil {
		return unquoteIdentifier(ctx.QuotedIdentifier().GetText())
	}

	if ctx.UnicodeQuotedIdentifier() != nil {
		text := ctx.UnicodeQuotedIdentifier().GetText()
		if len(text) > 3 && (text[0] == 'U' || text[0] == 'u') && text[1] == '&' {
			return unquoteIdentifier(text[2:])
		}
		return text
	}

	return FoldIdentifier(ctx.GetText())
}

// NormalizePostgreSQLName normalizes a name context.
func NormalizePostgreSQLName(ctx parser.INameContext) string {
	if ctx == nil {
		return ""
	}
	return NormalizePostgreSQLColid(ctx.Colid())
}

// NormalizePostgreSQLAnyName normalizes an any_name context.
// Returns a slice of name parts.
func NormalizePostgreSQLAnyName(ctx parser.IAny_nameContext) []string {
	if ctx == nil {
		return nil
	}

	result := []string{NormalizePostgreSQLColid(ctx.Colid())}
	if ctx.Attrs() != nil {
		for _, item := range ctx.Attrs().AllAttr_name() {
			result = append(result, normalizePostgreSQLCollabel(item.Collabel()))
		}
	}

	return result
}

// NormalizePostgreSQLFuncName normalizes a function name.
// Returns a slice of name parts.
func NormalizePostgreSQLFuncName(ctx parser.IFunc_nameContext) []string {
	if ctx == nil {
		return []string{}
	}

	var result []string

	if ctx.Type_function_name() != nil {
		text := ctx.Type_function_name().GetText()
		if strings.HasPrefix(text, `"`) {
			result = append(result, unquoteIdentifier(text))
		} else {
			result = append(result, FoldIdentifier(text))
		}
	}

	if ctx.Colid() != nil {
		result = append(result, NormalizePostgreSQLColid(ctx.Colid()))
		if ctx.Indirection() != nil {
			result = append(result, normalizePostgreSQLIndirection(ctx.Indirection())...)
		}
	}

	if ctx.Builtin_function_name() != nil {
		result = append(result, FoldIdentifier(ctx.Builtin_function_name().GetText()))
	}

	// LEFT, RIGHT and similar keywords used as names.
	if len(result) == 0 && ctx.GetText() != "" {
		result = append(result, FoldIdentifier(ctx.GetText()))
	}

	return result
}

// NormalizeWordOrString normalizes a NonReservedWord_or_Sconst value such as
// the argument of LANGUAGE: string constants are unquoted verbatim, bare
// words are folded like identifiers.
func NormalizeWordOrString(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case len(text) >= 2 && text[0] == '\'' && text[len(text)-1] == '\'':
		return strings.ReplaceAll(text[1:len(text)-1], "''", "'")
	case len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"':
		return unquoteIdentifier(text)
	default:
		return FoldIdentifier(text)
	}
}

// FoldIdentifier folds an unquoted identifier the way PostgreSQL does:
// only ASCII letters are lowercased.
func FoldIdentifier(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// unquoteIdentifier removes surrounding double quotes and unescapes doubled quotes.
func unquoteIdentifier(s string) string {
	if len(s) < 2 {
		return s
	}
	return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
}

// NormalizeSchemaName normalizes a schema name, returning "public" for empty schemas.
func NormalizeSchemaName(schemaName string) string {
	if schemaName == "" {
		return "public"
	}
	return schemaName
}
