package statement

// Kind is the closed set of statement kinds the policy distinguishes.
type Kind int

const (
	// KindOther is every statement the policy does not name, including DML.
	KindOther Kind = iota
	KindCreateTable
	KindCreateIndex
	KindCreateFunction
	KindCreateView
	KindTruncate
	KindCreateSequence
	// KindCreateTableAs covers CREATE MATERIALIZED VIEW and CREATE TABLE ... AS.
	KindCreateTableAs
	KindCreateTrigger
	KindCreateTablespace
	// KindCreateType covers composite, range and enum type definitions.
	KindCreateType
	KindCreateDatabase
	KindVacuum
	KindAlterSystem
	KindCreateExtension
)

var kindNames = map[Kind]string{
	KindOther:            "other",
	KindCreateTable:      "create_table",
	KindCreateIndex:      "create_index",
	KindCreateFunction:   "create_function",
	KindCreateView:       "create_view",
	KindTruncate:         "truncate",
	KindCreateSequence:   "create_sequence",
	KindCreateTableAs:    "create_table_as",
	KindCreateTrigger:    "create_trigger",
	KindCreateTablespace: "create_tablespace",
	KindCreateType:       "create_type",
	KindCreateDatabase:   "create_database",
	KindVacuum:           "vacuum",
	KindAlterSystem:      "alter_system",
	KindCreateExtension:  "create_extension",
}

// String returns the stable snake-case name used in logs and metrics.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the kind by name in JSON and YAML output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// AllKinds returns every kind in declaration order.
func AllKinds() []Kind {
	kinds := make([]Kind, 0, len(kindNames))
	for k := KindOther; k <= KindCreateExtension; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}
