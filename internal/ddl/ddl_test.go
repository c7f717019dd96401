package ddl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivelake/lakemigrate/internal/schema"
)

func intp(v int) *int { return &v }

func sampleAsset() schema.TableDefinition {
	return schema.TableDefinition{
		AssetID:  "salesdb_dbo_orders",
		Name:     "Orders",
		Database: "SalesDB",
		Schema:   "dbo",
		Columns: []schema.ColumnDefinition{
			{Name: "order_id", SourceType: "INT", Nullable: false},
			{Name: "amount", SourceType: "DECIMAL", Precision: intp(12), Scale: intp(2), Nullable: true},
			{Name: "customer", SourceType: "WVARCHAR", Length: intp(200), Nullable: true},
		},
		Source: schema.SourceSpec{
			FilePattern:     `D:\archive\Orders.txt`,
			ColumnSeparator: "@#",
			RowSeparator:    "\n",
			Format:          schema.FormatDelimited,
		},
		Target: schema.TargetSpec{
			Catalog: "iceberg_data",
			Schema:  "archive_data",
			Table:   "salesdb_dbo_orders",
		},
	}
}

func testGenerator() *Generator {
	return &Generator{
		Catalog:    "iceberg_data",
		Schema:     "archive_data",
		Bucket:     "lake-bucket",
		PathPrefix: "archive_data",
	}
}

func TestCreateTable(t *testing.T) {
	asset := sampleAsset()
	sql, err := testGenerator().CreateTable(&asset)
	require.NoError(t, err)

	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS iceberg_data.archive_data.salesdb_dbo_orders")
	assert.Contains(t, sql, "order_id INTEGER NOT NULL")
	assert.Contains(t, sql, "amount DECIMAL(12,2)")
	assert.NotContains(t, sql, "amount DECIMAL(12,2) NOT NULL")
	assert.Contains(t, sql, "customer VARCHAR(200)")
	assert.Contains(t, sql, "format = 'PARQUET'")
	assert.Contains(t, sql, "location = 's3://lake-bucket/archive_data/salesdb_dbo_orders/'")
}

func TestCreateTableBucketPlaceholder(t *testing.T) {
	gen := testGenerator()
	gen.Bucket = ""

	asset := sampleAsset()
	sql, err := gen.CreateTable(&asset)
	require.NoError(t, err)
	assert.Contains(t, sql, "s3://"+BucketPlaceholder+"/archive_data/salesdb_dbo_orders/")
}

func TestCreateTableRejectsBadIdentifier(t *testing.T) {
	asset := sampleAsset()
	asset.Columns[0].Name = "order id; DROP TABLE x"

	_, err := testGenerator().CreateTable(&asset)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid character")
}

func TestCreateTableRejectsBadTargetIdentifiers(t *testing.T) {
	asset := sampleAsset()
	asset.Target.Table = "orders; DROP TABLE x"
	_, err := testGenerator().CreateTable(&asset)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid character")

	gen := testGenerator()
	gen.Schema = `archive"data`
	bad := sampleAsset()
	_, err = gen.CreateTable(&bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target schema")

	gen = testGenerator()
	gen.Catalog = "iceberg data"
	_, err = gen.MasterScript([]schema.TableDefinition{sampleAsset()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target catalog")
}

func TestCreateTableRejectsUnsupportedType(t *testing.T) {
	asset := sampleAsset()
	asset.Columns[0].SourceType = "IMAGE"

	_, err := testGenerator().CreateTable(&asset)
	require.Error(t, err)
}

func TestMasterScript(t *testing.T) {
	assets := []schema.TableDefinition{sampleAsset()}
	sql, err := testGenerator().MasterScript(assets)
	require.NoError(t, err)

	assert.Contains(t, sql, "CREATE SCHEMA IF NOT EXISTS iceberg_data.archive_data;")
	assert.Contains(t, sql, "Total tables: 1")
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS iceberg_data.archive_data.salesdb_dbo_orders")
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	assets := []schema.TableDefinition{sampleAsset()}

	manifest, err := testGenerator().Generate(dir, assets)
	require.NoError(t, err)
	require.Len(t, manifest.Assets, 1)

	entry := manifest.Assets[0]
	assert.Equal(t, "salesdb_dbo_orders", entry.AssetID)
	assert.Equal(t, "generated", entry.Status)
	assert.FileExists(t, entry.CreateFile)
	assert.FileExists(t, entry.LoadFile)
	assert.FileExists(t, filepath.Join(dir, "00_create_all_tables.sql"))

	data, err := os.ReadFile(filepath.Join(dir, "asset_manifest.json"))
	require.NoError(t, err)

	var loaded Manifest
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, "iceberg_data", loaded.Catalog)
	require.Len(t, loaded.Assets, 1)
	assert.Equal(t, "salesdb_dbo_orders", loaded.Assets[0].Definition.AssetID)
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, validateIdentifier("order_id"))
	assert.NoError(t, validateIdentifier("_x9"))
	assert.Error(t, validateIdentifier(""))
	assert.Error(t, validateIdentifier("9lives"))
	assert.Error(t, validateIdentifier("bad-name"))
	assert.Error(t, validateIdentifier("semi;colon"))
}
