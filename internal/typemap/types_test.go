package typemap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivelake/lakemigrate/internal/schema"
)

func intp(v int) *int { return &v }

func TestMap(t *testing.T) {
	tests := []struct {
		name string
		col  schema.ColumnDefinition
		want string
	}{
		{"decimal", schema.ColumnDefinition{SourceType: "DECIMAL", Precision: intp(12), Scale: intp(2)}, "DECIMAL(12,2)"},
		{"varchar", schema.ColumnDefinition{SourceType: "VARCHAR", Length: intp(100)}, "VARCHAR(100)"},
		{"wvarchar", schema.ColumnDefinition{SourceType: "WVARCHAR", Length: intp(200)}, "VARCHAR(200)"},
		{"char", schema.ColumnDefinition{SourceType: "CHAR", Length: intp(10)}, "CHAR(10)"},
		{"wchar", schema.ColumnDefinition{SourceType: "WCHAR", Length: intp(4)}, "CHAR(4)"},
		{"int", schema.ColumnDefinition{SourceType: "INT"}, "INTEGER"},
		{"smallint", schema.ColumnDefinition{SourceType: "SMALLINT"}, "SMALLINT"},
		{"bigint", schema.ColumnDefinition{SourceType: "BIGINT"}, "BIGINT"},
		{"float", schema.ColumnDefinition{SourceType: "FLOAT"}, "REAL"},
		{"double", schema.ColumnDefinition{SourceType: "DOUBLE"}, "DOUBLE"},
		{"timestamp", schema.ColumnDefinition{SourceType: "TIMESTAMP"}, "TIMESTAMP"},
		{"date", schema.ColumnDefinition{SourceType: "DATE"}, "DATE"},
		{"time", schema.ColumnDefinition{SourceType: "TIME"}, "TIME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Map(tt.col)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestMapUnsupported(t *testing.T) {
	_, err := Map(schema.ColumnDefinition{Name: "blob_col", SourceType: "IMAGE"})
	require.Error(t, err)

	var ute *UnsupportedTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "IMAGE", ute.SourceType)
	assert.Equal(t, "blob_col", ute.Column)
}

func TestMapAllPreservesOrder(t *testing.T) {
	table := &schema.TableDefinition{
		Columns: []schema.ColumnDefinition{
			{Name: "z", SourceType: "INT"},
			{Name: "a", SourceType: "VARCHAR", Length: intp(5)},
			{Name: "m", SourceType: "DATE"},
		},
	}

	targets, err := MapAll(table)
	require.NoError(t, err)
	require.Len(t, targets, 3)
	assert.Equal(t, "INTEGER", targets[0].Name)
	assert.Equal(t, "VARCHAR", targets[1].Name)
	assert.Equal(t, "DATE", targets[2].Name)
}

func TestMapAllFailsFast(t *testing.T) {
	table := &schema.TableDefinition{
		Columns: []schema.ColumnDefinition{
			{Name: "ok", SourceType: "INT"},
			{Name: "bad", SourceType: "GEOMETRY"},
		},
	}

	_, err := MapAll(table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEOMETRY")
}
