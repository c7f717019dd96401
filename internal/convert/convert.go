// Package convert coerces raw delimited records into typed rows and encodes
// them as a Snappy-compressed Parquet file. Every value is validated against
// its declared type, precision, scale, and length; a value that does not fit
// is a row-level error and the row is dropped, never truncated.
package convert

import (
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/archivelake/lakemigrate/internal/reader"
	"github.com/archivelake/lakemigrate/internal/schema"
	"github.com/archivelake/lakemigrate/internal/typemap"
	"github.com/archivelake/lakemigrate/internal/util"
)

// Accepted temporal layouts. The legacy archive emits exactly these.
const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05"
)

// maxStoredErrors bounds the per-asset error detail kept in memory; the
// total count is always exact.
const maxStoredErrors = 100

const writeBatchSize = 512

// RowError is a recoverable defect confined to one record.
type RowError struct {
	Row    int64  `json:"row"`
	Column string `json:"column,omitempty"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d, column %s: %s (value %q)", e.Row, e.Column, e.Reason, e.Value)
}

// Result summarizes one conversion.
type Result struct {
	Rows       int64      // rows written to the artifact
	ErrorCount int64      // rows dropped for row-level defects
	Errors     []RowError // first maxStoredErrors defects
	Truncated  bool       // final row was unterminated
}

func (r *Result) record(e RowError) {
	r.ErrorCount++
	if len(r.Errors) < maxStoredErrors {
		r.Errors = append(r.Errors, e)
	}
}

// column carries everything needed to coerce one field position.
type column struct {
	def     schema.ColumnDefinition
	target  typemap.TargetType
	leafIdx int      // parquet column index for this field
	limit   *big.Int // 10^precision, DECIMAL only
	width   int      // fixed byte width, wide DECIMAL only
}

// Converter encodes records for one table definition.
type Converter struct {
	table    *schema.TableDefinition
	pqSchema *parquet.Schema
	columns  []column
}

// New maps the table's columns and builds the Parquet schema. Fails on any
// unsupported source type or duplicate column name.
func New(table *schema.TableDefinition) (*Converter, error) {
	targets, err := typemap.MapAll(table)
	if err != nil {
		return nil, err
	}

	group := parquet.Group{}
	for i, col := range table.Columns {
		if _, dup := group[col.Name]; dup {
			return nil, fmt.Errorf("table %s: duplicate column name %q", table.QualifiedName(), col.Name)
		}
		node, err := leafNode(targets[i])
		if err != nil {
			return nil, fmt.Errorf("table %s, column %s: %w", table.QualifiedName(), col.Name, err)
		}
		group[col.Name] = parquet.Optional(node)
	}
	pqSchema := parquet.NewSchema(table.AssetID, group)

	// The schema orders leaves by name; recover the index of each
	// declared column so positional binding stays intact.
	leafIdx := make(map[string]int, len(table.Columns))
	for i, path := range pqSchema.Columns() {
		leafIdx[path[len(path)-1]] = i
	}

	columns := make([]column, len(table.Columns))
	for i, def := range table.Columns {
		c := column{def: def, target: targets[i], leafIdx: leafIdx[def.Name]}
		if def.SourceType == schema.TypeDecimal {
			c.limit = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(*def.Precision)), nil)
			if *def.Precision > 18 {
				c.width = decimalFixedWidth(*def.Precision)
			}
		}
		columns[i] = c
	}

	return &Converter{table: table, pqSchema: pqSchema, columns: columns}, nil
}

// Schema exposes the generated Parquet schema, mainly for tests.
func (c *Converter) Schema() *parquet.Schema { return c.pqSchema }

// Convert drains src into w. Row-level defects are accumulated in the
// Result; only I/O and encoder failures abort the conversion. The writer is
// closed exactly once on every path.
func (c *Converter) Convert(src *reader.Reader, w io.Writer) (*Result, error) {
	pw := parquet.NewGenericWriter[any](w, c.pqSchema, parquet.Compression(&parquet.Snappy))

	res := &Result{}
	err := c.writeRows(pw, src, res)
	if cerr := pw.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing parquet writer: %w", cerr)
	}
	if err != nil {
		return nil, err
	}

	res.Truncated = src.Truncated()
	return res, nil
}

func (c *Converter) writeRows(pw *parquet.GenericWriter[any], src *reader.Reader, res *Result) error {
	batch := make([]parquet.Row, 0, writeBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(batch); err != nil {
			return fmt.Errorf("writing parquet rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}

		row, rowErr := c.convertRecord(rec)
		if rowErr != nil {
			res.record(*rowErr)
			continue
		}
		batch = append(batch, row)
		res.Rows++

		if len(batch) == writeBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	return flush()
}

// convertRecord coerces one record. The returned row has one value per
// parquet column, placed at that column's leaf index.
func (c *Converter) convertRecord(rec *reader.Record) (parquet.Row, *RowError) {
	if len(rec.Fields) != len(c.columns) {
		return nil, &RowError{
			Row:    rec.Index,
			Reason: fmt.Sprintf("field count mismatch: got %d fields, want %d", len(rec.Fields), len(c.columns)),
		}
	}

	row := make(parquet.Row, len(c.columns))
	for i, field := range rec.Fields {
		col := &c.columns[i]
		if field.Null {
			row[col.leafIdx] = parquet.ValueOf(nil).Level(0, 0, col.leafIdx)
			continue
		}
		v, err := coerce(col, field.Value)
		if err != nil {
			return nil, &RowError{
				Row:    rec.Index,
				Column: col.def.Name,
				Value:  util.Truncate(field.Value, 64),
				Reason: err.Error(),
			}
		}
		row[col.leafIdx] = v.Level(0, 1, col.leafIdx)
	}
	return row, nil
}

func coerce(col *column, raw string) (parquet.Value, error) {
	switch col.target.Name {
	case "SMALLINT":
		n, err := strconv.ParseInt(raw, 10, 16)
		if err != nil {
			return parquet.Value{}, fmt.Errorf("not a valid SMALLINT")
		}
		return parquet.Int32Value(int32(n)), nil
	case "INTEGER":
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return parquet.Value{}, fmt.Errorf("not a valid INTEGER")
		}
		return parquet.Int32Value(int32(n)), nil
	case "BIGINT":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return parquet.Value{}, fmt.Errorf("not a valid BIGINT")
		}
		return parquet.Int64Value(n), nil
	case "REAL":
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return parquet.Value{}, fmt.Errorf("not a valid REAL")
		}
		return parquet.FloatValue(float32(f)), nil
	case "DOUBLE":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return parquet.Value{}, fmt.Errorf("not a valid DOUBLE")
		}
		return parquet.DoubleValue(f), nil
	case "VARCHAR", "CHAR":
		if n := utf8.RuneCountInString(raw); n > col.target.Length {
			return parquet.Value{}, fmt.Errorf("length %d exceeds declared %s(%d)", n, col.target.Name, col.target.Length)
		}
		return parquet.ByteArrayValue([]byte(raw)), nil
	case "TIMESTAMP":
		t, err := time.ParseInLocation(timestampLayout, raw, time.UTC)
		if err != nil {
			return parquet.Value{}, fmt.Errorf("not a valid TIMESTAMP (want %s)", timestampLayout)
		}
		return parquet.Int64Value(t.UnixMilli()), nil
	case "DATE":
		t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return parquet.Value{}, fmt.Errorf("not a valid DATE (want %s)", dateLayout)
		}
		return parquet.Int32Value(int32(t.Unix() / 86400)), nil
	case "TIME":
		t, err := time.ParseInLocation(timeLayout, raw, time.UTC)
		if err != nil {
			return parquet.Value{}, fmt.Errorf("not a valid TIME (want %s)", timeLayout)
		}
		millis := (t.Hour()*3600 + t.Minute()*60 + t.Second()) * 1000
		return parquet.Int32Value(int32(millis)), nil
	case "DECIMAL":
		return coerceDecimal(col, raw)
	default:
		return parquet.Value{}, fmt.Errorf("no coercion for target type %s", col.target.Name)
	}
}

// coerceDecimal parses raw exactly and validates it against the declared
// precision and scale. A value with more fractional digits than the scale,
// or more total digits than the precision allows, is an error.
func coerceDecimal(col *column, raw string) (parquet.Value, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return parquet.Value{}, fmt.Errorf("not a valid DECIMAL")
	}

	scaled := d.Shift(int32(col.target.Scale))
	if !scaled.IsInteger() {
		return parquet.Value{}, fmt.Errorf("scale exceeds declared DECIMAL(%d,%d)", col.target.Precision, col.target.Scale)
	}
	unscaled := scaled.BigInt()
	if unscaled.CmpAbs(col.limit) >= 0 {
		return parquet.Value{}, fmt.Errorf("value out of range for DECIMAL(%d,%d)", col.target.Precision, col.target.Scale)
	}

	switch {
	case col.target.Precision <= 9:
		return parquet.Int32Value(int32(unscaled.Int64())), nil
	case col.target.Precision <= 18:
		return parquet.Int64Value(unscaled.Int64()), nil
	default:
		return parquet.FixedLenByteArrayValue(twosComplement(unscaled, col.width)), nil
	}
}

// leafNode picks the physical Parquet representation for a target type.
func leafNode(t typemap.TargetType) (parquet.Node, error) {
	switch t.Name {
	case "DECIMAL":
		switch {
		case t.Precision <= 9:
			return parquet.Decimal(t.Scale, t.Precision, parquet.Int32Type), nil
		case t.Precision <= 18:
			return parquet.Decimal(t.Scale, t.Precision, parquet.Int64Type), nil
		default:
			return parquet.Decimal(t.Scale, t.Precision, parquet.FixedLenByteArrayType(decimalFixedWidth(t.Precision))), nil
		}
	case "VARCHAR", "CHAR":
		return parquet.String(), nil
	case "SMALLINT":
		return parquet.Int(16), nil
	case "INTEGER":
		return parquet.Int(32), nil
	case "BIGINT":
		return parquet.Int(64), nil
	case "REAL":
		return parquet.Leaf(parquet.FloatType), nil
	case "DOUBLE":
		return parquet.Leaf(parquet.DoubleType), nil
	case "TIMESTAMP":
		return parquet.Timestamp(parquet.Millisecond), nil
	case "DATE":
		return parquet.Date(), nil
	case "TIME":
		return parquet.Time(parquet.Millisecond), nil
	default:
		return nil, fmt.Errorf("no parquet representation for %s", t.Name)
	}
}

// decimalFixedWidth returns the minimum byte width that can hold any
// decimal of the given precision in two's complement.
func decimalFixedWidth(precision int) int {
	return int(math.Ceil((float64(precision)*math.Log2(10) + 1) / 8))
}

// twosComplement encodes x as big-endian two's complement in width bytes.
func twosComplement(x *big.Int, width int) []byte {
	b := make([]byte, width)
	if x.Sign() >= 0 {
		x.FillBytes(b)
		return b
	}
	v := new(big.Int).Lsh(big.NewInt(1), uint(width*8))
	v.Add(v, x)
	v.FillBytes(b)
	return b
}
