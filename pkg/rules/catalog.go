package rules

import (
	"github.com/nsxbet/ddlguard/pkg/statement"
)

// Entry pairs a statement kind with the label used in its rejection.
type Entry struct {
	Kind  statement.Kind
	Label string
}

// catalog lists the kinds rejected on sight, in evaluation order.
var catalog = []Entry{
	{Kind: statement.KindCreateView, Label: "CREATE VIEW"},
	{Kind: statement.KindTruncate, Label: "TRUNCATE TABLE"},
	{Kind: statement.KindCreateSequence, Label: "CREATE SEQUENCE"},
	{Kind: statement.KindCreateTableAs, Label: "CREATE MATERIALIZED VIEW"},
	{Kind: statement.KindCreateTablespace, Label: "CREATE TABLESPACE"},
	{Kind: statement.KindCreateTrigger, Label: "CREATE TRIGGER"},
	{Kind: statement.KindCreateType, Label: "CREATE TYPE"},
	{Kind: statement.KindCreateDatabase, Label: "CREATE DATABASE"},
	{Kind: statement.KindVacuum, Label: "VACUUM"},
	{Kind: statement.KindCreateExtension, Label: "CREATE EXTENSION"},
	{Kind: statement.KindAlterSystem, Label: "ALTER SYSTEM"},
}

var catalogIndex = func() map[statement.Kind]int {
	index := make(map[statement.Kind]int, len(catalog))
	for i, entry := range catalog {
		index[entry.Kind] = i
	}
	return index
}()

// Lookup returns the catalog label for kind.
func Lookup(kind statement.Kind) (string, bool) {
	i, ok := catalogIndex[kind]
	if !ok {
		return "", false
	}
	return catalog[i].Label, true
}

// Entries returns a copy of the catalog.
func Entries() []Entry {
	entries := make([]Entry, len(catalog))
	copy(entries, catalog)
	return entries
}

// CatalogVerdict rejects kind when it is in the catalog.
func CatalogVerdict(kind statement.Kind) Verdict {
	label, ok := Lookup(kind)
	if !ok {
		return Pass()
	}
	return Reject(RuleCatalogPrefix+kind.String(), "%s statements are unsupported", label)
}
