// Package schema models the legacy archive job definition: one
// TableDefinition per table, with an ordered column list, source file
// format parameters, and the lakehouse target identity.
package schema

import (
	"fmt"
	"strings"
)

// Source type names recognized by the attribute validator. The full closed
// enumeration (and its target mapping) lives in the typemap package.
const (
	TypeDecimal   = "DECIMAL"
	TypeVarchar   = "VARCHAR"
	TypeWVarchar  = "WVARCHAR"
	TypeChar      = "CHAR"
	TypeWChar     = "WCHAR"
	TypeInt       = "INT"
	TypeSmallint  = "SMALLINT"
	TypeBigint    = "BIGINT"
	TypeFloat     = "FLOAT"
	TypeDouble    = "DOUBLE"
	TypeTimestamp = "TIMESTAMP"
	TypeDate      = "DATE"
	TypeTime      = "TIME"
)

// FormatKind identifies the source file flavor, derived from the file
// extension the way the legacy tooling did.
type FormatKind string

const (
	FormatCSV       FormatKind = "csv"
	FormatDelimited FormatKind = "delimited"
	FormatBCP       FormatKind = "bcp"
)

// ColumnDefinition is one typed column. Precision, Scale, and Length are
// pointers so that "absent in the XML" survives the JSON round trip.
type ColumnDefinition struct {
	Name       string `json:"name"`
	SourceType string `json:"source_type"`
	Precision  *int   `json:"precision,omitempty"`
	Scale      *int   `json:"scale,omitempty"`
	Length     *int   `json:"length,omitempty"`
	Nullable   bool   `json:"nullable"`
}

// SourceSpec describes where and how the table's flat file is laid out.
type SourceSpec struct {
	FilePattern     string     `json:"file_pattern"`
	ColumnSeparator string     `json:"column_separator"`
	RowSeparator    string     `json:"row_separator"`
	NullIndicator   string     `json:"null_indicator"`
	Format          FormatKind `json:"format"`
}

// TargetSpec identifies the lakehouse table the asset lands in.
type TargetSpec struct {
	Catalog string `json:"catalog"`
	Schema  string `json:"schema"`
	Table   string `json:"table"`
}

// TableDefinition is the normalized definition of one archived table.
// Column order is authoritative: field i of every source record binds to
// Columns[i].
type TableDefinition struct {
	AssetID  string             `json:"asset_id"`
	Name     string             `json:"name"`
	Database string             `json:"database"`
	Schema   string             `json:"schema"`
	KeepData bool               `json:"keep_data"`
	Columns  []ColumnDefinition `json:"columns"`
	Source   SourceSpec         `json:"source"`
	Target   TargetSpec         `json:"target"`
}

// QualifiedName returns database.schema.name as declared in the XML.
func (t *TableDefinition) QualifiedName() string {
	return t.Database + "." + t.Schema + "." + t.Name
}

// TargetTable returns the fully qualified target table name.
func (t *TableDefinition) TargetTable() string {
	return t.Target.Catalog + "." + t.Target.Schema + "." + t.Target.Table
}

// AssetID derives the lowercase asset key for a table identity.
func AssetID(database, schemaName, table string) string {
	return strings.ToLower(database) + "_" + strings.ToLower(schemaName) + "_" + strings.ToLower(table)
}

// GlobalDefaults holds the global-parameters block. CryptoKey is carried
// through untouched; this tool never interprets it.
type GlobalDefaults struct {
	KeepData        bool   `json:"keep_data"`
	ColumnSeparator string `json:"column_separator"`
	RowSeparator    string `json:"row_separator"`
	NullIndicator   string `json:"null_indicator"`
	CryptoKey       string `json:"crypto_key,omitempty"`
}

// Document is the normalized schema artifact.
type Document struct {
	JobType  string            `json:"job_type"`
	Defaults GlobalDefaults    `json:"global_params"`
	Assets   []TableDefinition `json:"data_assets"`
}

// ParseError is a fatal schema extraction error. It names the offending
// table and column (when applicable) and the missing or invalid attribute.
type ParseError struct {
	Table  string
	Column string
	Attr   string
	Reason string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("schema parse error")
	if e.Table != "" {
		fmt.Fprintf(&b, " in table %s", e.Table)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, ", column %s", e.Column)
	}
	if e.Attr != "" {
		fmt.Fprintf(&b, ": attribute %s", e.Attr)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	return b.String()
}
