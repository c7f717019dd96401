package convert

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivelake/lakemigrate/internal/reader"
	"github.com/archivelake/lakemigrate/internal/schema"
)

func intp(v int) *int { return &v }

func testTable(cols ...schema.ColumnDefinition) *schema.TableDefinition {
	return &schema.TableDefinition{
		AssetID:  "testdb_dbo_sample",
		Name:     "Sample",
		Database: "TestDB",
		Schema:   "dbo",
		Columns:  cols,
		Source: schema.SourceSpec{
			ColumnSeparator: "@#",
			RowSeparator:    "\n",
			NullIndicator:   "NULL",
		},
	}
}

func runConvert(t *testing.T, table *schema.TableDefinition, input string) (*Result, *bytes.Buffer) {
	t.Helper()
	conv, err := New(table)
	require.NoError(t, err)

	src, err := reader.New(strings.NewReader(input), reader.Options{
		ColumnSeparator: table.Source.ColumnSeparator,
		RowSeparator:    table.Source.RowSeparator,
		NullIndicator:   table.Source.NullIndicator,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	res, err := conv.Convert(src, &buf)
	require.NoError(t, err)
	return res, &buf
}

func parquetRows(t *testing.T, buf *bytes.Buffer) int64 {
	t.Helper()
	f, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return f.NumRows()
}

func TestConvertAllTypes(t *testing.T) {
	table := testTable(
		schema.ColumnDefinition{Name: "id", SourceType: "INT"},
		schema.ColumnDefinition{Name: "amount", SourceType: "DECIMAL", Precision: intp(12), Scale: intp(2)},
		schema.ColumnDefinition{Name: "name", SourceType: "WVARCHAR", Length: intp(50)},
		schema.ColumnDefinition{Name: "ratio", SourceType: "DOUBLE"},
		schema.ColumnDefinition{Name: "created", SourceType: "TIMESTAMP"},
		schema.ColumnDefinition{Name: "day", SourceType: "DATE"},
		schema.ColumnDefinition{Name: "at", SourceType: "TIME"},
	)

	input := "1@#100.25@#Widget@#0.5@#2023-06-15 10:30:00@#2023-06-15@#10:30:00\n" +
		"2@#NULL@#Gadget@#1.25@#2023-06-16 00:00:00@#2023-06-16@#23:59:59\n" +
		"3@#-42.01@#NULL@#NULL@#NULL@#NULL@#NULL\n"

	res, buf := runConvert(t, table, input)
	assert.Equal(t, int64(3), res.Rows)
	assert.Zero(t, res.ErrorCount)
	assert.False(t, res.Truncated)
	assert.Equal(t, int64(3), parquetRows(t, buf))
}

func TestConvertFieldCountMismatch(t *testing.T) {
	table := testTable(
		schema.ColumnDefinition{Name: "a", SourceType: "INT"},
		schema.ColumnDefinition{Name: "b", SourceType: "INT"},
	)

	input := "1@#2\n1@#2@#3\n4@#5\n"
	res, buf := runConvert(t, table, input)

	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, int64(1), res.ErrorCount)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, int64(1), res.Errors[0].Row)
	assert.Contains(t, res.Errors[0].Reason, "field count mismatch")
	assert.Equal(t, int64(2), parquetRows(t, buf))
}

func TestConvertDecimalValidation(t *testing.T) {
	table := testTable(
		schema.ColumnDefinition{Name: "v", SourceType: "DECIMAL", Precision: intp(5), Scale: intp(2)},
	)

	tests := []struct {
		value string
		ok    bool
	}{
		{"123.45", true},
		{"-999.99", true},
		{"0", true},
		{"0.1", true},
		{"999.99", true},
		{"123456.789", false}, // too many digits
		{"1.234", false},      // scale overflow
		{"1000.00", false},    // precision overflow after scaling
		{"abc", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			res, _ := runConvert(t, table, tt.value+"\n")
			if tt.ok {
				assert.Equal(t, int64(1), res.Rows, "expected %q to convert", tt.value)
				assert.Zero(t, res.ErrorCount)
			} else {
				assert.Zero(t, res.Rows, "expected %q to be rejected", tt.value)
				assert.Equal(t, int64(1), res.ErrorCount)
			}
		})
	}
}

func TestConvertWideDecimal(t *testing.T) {
	table := testTable(
		schema.ColumnDefinition{Name: "v", SourceType: "DECIMAL", Precision: intp(25), Scale: intp(4)},
	)

	input := "123456789012345678901.2345\n-123456789012345678901.2345\n"
	res, buf := runConvert(t, table, input)
	assert.Equal(t, int64(2), res.Rows)
	assert.Zero(t, res.ErrorCount)
	assert.Equal(t, int64(2), parquetRows(t, buf))
}

func TestConvertLengthOverflow(t *testing.T) {
	table := testTable(
		schema.ColumnDefinition{Name: "s", SourceType: "VARCHAR", Length: intp(5)},
	)

	res, _ := runConvert(t, table, "short\ntoo long value\n")
	assert.Equal(t, int64(1), res.Rows)
	assert.Equal(t, int64(1), res.ErrorCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Reason, "exceeds declared")
}

func TestConvertBadValues(t *testing.T) {
	table := testTable(
		schema.ColumnDefinition{Name: "n", SourceType: "INT"},
		schema.ColumnDefinition{Name: "ts", SourceType: "TIMESTAMP"},
	)

	input := "1@#2023-06-15 10:30:00\n" +
		"x@#2023-06-15 10:30:00\n" + // bad int
		"3@#15/06/2023\n" + // bad timestamp layout
		"99999999999@#2023-06-15 10:30:00\n" // int32 overflow

	res, _ := runConvert(t, table, input)
	assert.Equal(t, int64(1), res.Rows)
	assert.Equal(t, int64(3), res.ErrorCount)
}

func TestConvertSmallintRange(t *testing.T) {
	table := testTable(schema.ColumnDefinition{Name: "n", SourceType: "SMALLINT"})

	res, _ := runConvert(t, table, "32767\n-32768\n32768\n")
	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, int64(1), res.ErrorCount)
}

func TestConvertTruncatedInput(t *testing.T) {
	table := testTable(schema.ColumnDefinition{Name: "n", SourceType: "INT"})

	res, buf := runConvert(t, table, "1\n2")
	assert.Equal(t, int64(2), res.Rows)
	assert.True(t, res.Truncated)
	assert.Equal(t, int64(2), parquetRows(t, buf))
}

func TestConvertErrorDetailCap(t *testing.T) {
	table := testTable(schema.ColumnDefinition{Name: "n", SourceType: "INT"})

	var b strings.Builder
	for i := 0; i < maxStoredErrors+50; i++ {
		b.WriteString("bad\n")
	}
	res, _ := runConvert(t, table, b.String())

	assert.Equal(t, int64(maxStoredErrors+50), res.ErrorCount)
	assert.Len(t, res.Errors, maxStoredErrors)
}

type failingReader struct {
	data []byte
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, fmt.Errorf("disk read failed")
}

func TestConvertReaderError(t *testing.T) {
	table := testTable(schema.ColumnDefinition{Name: "n", SourceType: "INT"})
	conv, err := New(table)
	require.NoError(t, err)

	src, err := reader.New(&failingReader{data: []byte("1\n2\n")}, reader.Options{
		ColumnSeparator: "@#",
		RowSeparator:    "\n",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = conv.Convert(src, &buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading source")
}

func TestNewRejectsDuplicateColumns(t *testing.T) {
	table := testTable(
		schema.ColumnDefinition{Name: "a", SourceType: "INT"},
		schema.ColumnDefinition{Name: "a", SourceType: "INT"},
	)
	_, err := New(table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")
}

func TestNewRejectsUnsupportedType(t *testing.T) {
	table := testTable(schema.ColumnDefinition{Name: "a", SourceType: "IMAGE"})
	_, err := New(table)
	require.Error(t, err)
}

func TestDecimalFixedWidth(t *testing.T) {
	// 19 digits need 9 bytes, 38 digits need 16.
	assert.Equal(t, 9, decimalFixedWidth(19))
	assert.Equal(t, 16, decimalFixedWidth(38))
}

func bigInt(v int64) *big.Int { return big.NewInt(v) }

func TestTwosComplement(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x7b}, twosComplement(bigInt(123), 2))
	assert.Equal(t, []byte{0xff, 0x85}, twosComplement(bigInt(-123), 2))
	assert.Equal(t, []byte{0xff, 0xff}, twosComplement(bigInt(-1), 2))
}
