// Package typemap converts legacy source column types to their lakehouse
// equivalents. The mapping is a pure, total function over the closed source
// enumeration; anything outside it is an UnsupportedTypeError.
package typemap

import (
	"fmt"

	"github.com/archivelake/lakemigrate/internal/schema"
)

// TargetType is a mapped lakehouse column type.
type TargetType struct {
	Name      string `json:"name"`
	Precision int    `json:"precision,omitempty"`
	Scale     int    `json:"scale,omitempty"`
	Length    int    `json:"length,omitempty"`
}

// String renders the type as it appears in DDL.
func (t TargetType) String() string {
	switch t.Name {
	case "DECIMAL":
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case "VARCHAR", "CHAR":
		return fmt.Sprintf("%s(%d)", t.Name, t.Length)
	default:
		return t.Name
	}
}

// UnsupportedTypeError reports a source type outside the closed enumeration.
type UnsupportedTypeError struct {
	SourceType string
	Column     string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported source type %q on column %s", e.SourceType, e.Column)
}

// Map converts one column definition. Precision, scale, and length are
// preserved exactly for the types that carry them; wide-character variants
// collapse to their narrow equivalents. No numeric coercion happens here.
func Map(col schema.ColumnDefinition) (TargetType, error) {
	switch col.SourceType {
	case schema.TypeDecimal:
		return TargetType{Name: "DECIMAL", Precision: *col.Precision, Scale: *col.Scale}, nil
	case schema.TypeVarchar, schema.TypeWVarchar:
		return TargetType{Name: "VARCHAR", Length: *col.Length}, nil
	case schema.TypeChar, schema.TypeWChar:
		return TargetType{Name: "CHAR", Length: *col.Length}, nil
	case schema.TypeInt:
		return TargetType{Name: "INTEGER"}, nil
	case schema.TypeSmallint:
		return TargetType{Name: "SMALLINT"}, nil
	case schema.TypeBigint:
		return TargetType{Name: "BIGINT"}, nil
	case schema.TypeFloat:
		return TargetType{Name: "REAL"}, nil
	case schema.TypeDouble:
		return TargetType{Name: "DOUBLE"}, nil
	case schema.TypeTimestamp:
		return TargetType{Name: "TIMESTAMP"}, nil
	case schema.TypeDate:
		return TargetType{Name: "DATE"}, nil
	case schema.TypeTime:
		return TargetType{Name: "TIME"}, nil
	default:
		return TargetType{}, &UnsupportedTypeError{SourceType: col.SourceType, Column: col.Name}
	}
}

// MapAll maps every column of a table, preserving declared order.
func MapAll(table *schema.TableDefinition) ([]TargetType, error) {
	out := make([]TargetType, len(table.Columns))
	for i, col := range table.Columns {
		t, err := Map(col)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
