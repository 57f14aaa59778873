package catalog

// DatabaseSchemaMetadata represents database schema metadata
type DatabaseSchemaMetadata struct {
	Name    string            `json:"name" yaml:"name"`
	Schemas []*SchemaMetadata `json:"schemas" yaml:"schemas"`
}

// SchemaMetadata represents schema metadata
type SchemaMetadata struct {
	Name   string           `json:"name" yaml:"name"`
	Tables []*TableMetadata `json:"tables" yaml:"tables"`
}

// TableMetadata represents table metadata
type TableMetadata struct {
	Name     string `json:"name" yaml:"name"`
	RowCount int64  `json:"rowCount" yaml:"rowCount"`
}
