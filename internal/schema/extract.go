package schema

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// xmlDocument mirrors the legacy master.xml layout. Optional elements are
// pointers so the extractor can tell "absent, inherit the default" from
// "present, override" per individual parameter.
type xmlDocument struct {
	XMLName     xml.Name
	JobType     string          `xml:"JOB_TYPE"`
	GlobalParam *xmlGlobalParam `xml:"GLOBAL_PARAM"`
	Tables      []xmlTable      `xml:"TABLES>TABLE"`
}

type xmlGlobalParam struct {
	KeepData        *string `xml:"KEEP_DATA"`
	ColumnSeparator *string `xml:"COLUMN_SEPARATOR"`
	RowSeparator    *string `xml:"ROW_SEPARATOR"`
	NullIndicator   *string `xml:"NULL_INDICATOR"`
	CryptoKey       *string `xml:"CRYPTO_KEY"`
}

type xmlTable struct {
	Name            string      `xml:"NAME,attr"`
	Database        string      `xml:"DATABASE,attr"`
	Schema          string      `xml:"SCHEMA,attr"`
	KeepData        *string     `xml:"KEEP_DATA"`
	ColumnSeparator *string     `xml:"COLUMN_SEPARATOR"`
	RowSeparator    *string     `xml:"ROW_SEPARATOR"`
	NullIndicator   *string     `xml:"NULL_INDICATOR"`
	FilePath        *string     `xml:"FILE_PATH"`
	SctPath         *string     `xml:"SCT_PATH"`
	Columns         []xmlColumn `xml:"COLUMNS>COLUMN"`
}

type xmlColumn struct {
	Name      string  `xml:"NAME,attr"`
	Type      *string `xml:"TYPE"`
	Precision *string `xml:"PRECISION"`
	Scale     *string `xml:"SCALE"`
	Length    *string `xml:"LENGTH"`
	Nullable  *string `xml:"NULLABLE"`
}

// Extractor turns legacy XML into a normalized Document. TargetCatalog and
// TargetSchema name the lakehouse destination for every asset.
type Extractor struct {
	TargetCatalog string
	TargetSchema  string
}

// Fallbacks used when the XML carries no global-parameters block, matching
// the legacy parser's behavior.
const (
	defaultColumnSeparator = ","
	defaultRowSeparator    = "\n"
	defaultNullIndicator   = "NULL"
)

// Extract parses the XML content and validates it eagerly. Any structural
// defect returns a *ParseError and no document.
func (e *Extractor) Extract(data []byte) (*Document, error) {
	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("malformed XML: %v", err)}
	}

	defaults := GlobalDefaults{
		KeepData:        true,
		ColumnSeparator: defaultColumnSeparator,
		RowSeparator:    defaultRowSeparator,
		NullIndicator:   defaultNullIndicator,
	}
	if gp := doc.GlobalParam; gp != nil {
		if gp.KeepData != nil {
			defaults.KeepData = *gp.KeepData == "1"
		}
		if gp.ColumnSeparator != nil {
			defaults.ColumnSeparator = decodeSeparator(*gp.ColumnSeparator)
		}
		if gp.RowSeparator != nil {
			defaults.RowSeparator = decodeSeparator(*gp.RowSeparator)
		}
		if gp.NullIndicator != nil {
			defaults.NullIndicator = *gp.NullIndicator
		}
		if gp.CryptoKey != nil {
			defaults.CryptoKey = *gp.CryptoKey
		}
	}

	out := &Document{
		JobType:  doc.JobType,
		Defaults: defaults,
	}
	if out.JobType == "" {
		out.JobType = "UNKNOWN"
	}

	seen := make(map[string]string)
	for _, tbl := range doc.Tables {
		def, err := e.extractTable(tbl, defaults)
		if err != nil {
			return nil, err
		}
		if prior, dup := seen[def.AssetID]; dup {
			return nil, &ParseError{
				Table:  def.QualifiedName(),
				Reason: fmt.Sprintf("duplicate asset_id %q (already used by %s)", def.AssetID, prior),
			}
		}
		seen[def.AssetID] = def.QualifiedName()
		out.Assets = append(out.Assets, *def)
	}

	return out, nil
}

func (e *Extractor) extractTable(tbl xmlTable, defaults GlobalDefaults) (*TableDefinition, error) {
	name := tbl.Database + "." + tbl.Schema + "." + tbl.Name
	if tbl.Name == "" {
		return nil, &ParseError{Table: name, Attr: "NAME", Reason: "missing"}
	}
	if tbl.Database == "" {
		return nil, &ParseError{Table: tbl.Name, Attr: "DATABASE", Reason: "missing"}
	}
	if tbl.Schema == "" {
		return nil, &ParseError{Table: tbl.Name, Attr: "SCHEMA", Reason: "missing"}
	}
	qualified := tbl.Database + "." + tbl.Schema + "." + tbl.Name

	if len(tbl.Columns) == 0 {
		return nil, &ParseError{Table: qualified, Reason: "table declares no columns"}
	}

	columns := make([]ColumnDefinition, 0, len(tbl.Columns))
	for _, col := range tbl.Columns {
		def, err := extractColumn(qualified, col)
		if err != nil {
			return nil, err
		}
		columns = append(columns, *def)
	}

	filePath := ""
	if tbl.FilePath != nil {
		filePath = *tbl.FilePath
	}

	assetID := AssetID(tbl.Database, tbl.Schema, tbl.Name)
	def := &TableDefinition{
		AssetID:  assetID,
		Name:     tbl.Name,
		Database: tbl.Database,
		Schema:   tbl.Schema,
		KeepData: resolveBool(tbl.KeepData, defaults.KeepData),
		Columns:  columns,
		Source: SourceSpec{
			FilePattern:     filePath,
			ColumnSeparator: resolveSeparator(tbl.ColumnSeparator, defaults.ColumnSeparator),
			RowSeparator:    resolveSeparator(tbl.RowSeparator, defaults.RowSeparator),
			NullIndicator:   resolveString(tbl.NullIndicator, defaults.NullIndicator),
			Format:          formatFromPath(filePath),
		},
		Target: TargetSpec{
			Catalog: e.TargetCatalog,
			Schema:  e.TargetSchema,
			Table:   assetID,
		},
	}
	return def, nil
}

func extractColumn(table string, col xmlColumn) (*ColumnDefinition, error) {
	if col.Name == "" {
		return nil, &ParseError{Table: table, Attr: "NAME", Reason: "column missing name"}
	}
	if col.Type == nil || strings.TrimSpace(*col.Type) == "" {
		return nil, &ParseError{Table: table, Column: col.Name, Attr: "TYPE", Reason: "missing"}
	}
	sourceType := strings.ToUpper(strings.TrimSpace(*col.Type))

	def := &ColumnDefinition{
		Name:       col.Name,
		SourceType: sourceType,
		Nullable:   col.Nullable == nil || *col.Nullable == "1",
	}

	precision, err := optionalInt(table, col.Name, "PRECISION", col.Precision)
	if err != nil {
		return nil, err
	}
	scale, err := optionalInt(table, col.Name, "SCALE", col.Scale)
	if err != nil {
		return nil, err
	}
	length, err := optionalInt(table, col.Name, "LENGTH", col.Length)
	if err != nil {
		return nil, err
	}

	switch sourceType {
	case TypeDecimal:
		if precision == nil {
			return nil, &ParseError{Table: table, Column: col.Name, Attr: "PRECISION", Reason: "required for DECIMAL"}
		}
		if scale == nil {
			return nil, &ParseError{Table: table, Column: col.Name, Attr: "SCALE", Reason: "required for DECIMAL"}
		}
		def.Precision = precision
		def.Scale = scale
	case TypeVarchar, TypeWVarchar, TypeChar, TypeWChar:
		// The legacy XML encodes character lengths in PRECISION; an
		// explicit LENGTH element wins when both are present.
		if length == nil {
			length = precision
		}
		if length == nil || *length <= 0 {
			return nil, &ParseError{Table: table, Column: col.Name, Attr: "LENGTH", Reason: "required for " + sourceType}
		}
		def.Length = length
	}

	return def, nil
}

func optionalInt(table, column, attr string, raw *string) (*int, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(*raw))
	if err != nil {
		return nil, &ParseError{Table: table, Column: column, Attr: attr, Reason: fmt.Sprintf("not an integer: %q", *raw)}
	}
	return &v, nil
}

// resolveSeparator implements per-field inheritance: an element present in
// the table block overrides the global value; an absent element inherits it.
func resolveSeparator(override *string, global string) string {
	if override != nil {
		return decodeSeparator(*override)
	}
	return global
}

func resolveString(override *string, global string) string {
	if override != nil {
		return *override
	}
	return global
}

func resolveBool(override *string, global bool) bool {
	if override != nil {
		return *override == "1"
	}
	return global
}

// decodeSeparator translates the backslash escapes the legacy XML uses for
// control characters in separator values.
func decodeSeparator(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r", `\\`, `\`)
	return r.Replace(s)
}

func formatFromPath(path string) FormatKind {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".txt"):
		return FormatDelimited
	case strings.HasSuffix(lower, ".bcp"):
		return FormatBCP
	default:
		return FormatCSV
	}
}

// ExtractFile reads and extracts an XML file.
func (e *Extractor) ExtractFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return e.Extract(data)
}

// WriteJSON writes the normalized schema artifact.
func (d *Document) WriteJSON(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding schema: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// LoadJSON reads a normalized schema artifact back into a Document.
func LoadJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &doc, nil
}
