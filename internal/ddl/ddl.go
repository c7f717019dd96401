// Package ddl generates lakehouse DDL artifacts for the migrated tables:
// one CREATE TABLE IF NOT EXISTS script and one staging-load template per
// asset, a master script covering every table, and the asset manifest.
package ddl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/archivelake/lakemigrate/internal/schema"
	"github.com/archivelake/lakemigrate/internal/typemap"
)

// BucketPlaceholder is substituted into storage locations when no bucket
// has been configured, so generated scripts stay templated.
const BucketPlaceholder = "${LAKEHOUSE_BUCKET}"

// Generator renders DDL for a fixed target catalog and storage layout.
type Generator struct {
	Catalog    string
	Schema     string
	Bucket     string
	PathPrefix string
}

// ManifestEntry records one asset's generated artifacts. Written once per
// table after DDL generation and immutable thereafter.
type ManifestEntry struct {
	AssetID    string                  `json:"asset_id"`
	Definition *schema.TableDefinition `json:"definition"`
	CreateFile string                  `json:"create_file"`
	LoadFile   string                  `json:"load_file"`
	Status     string                  `json:"status"`
}

// Manifest is the asset manifest artifact.
type Manifest struct {
	Catalog string          `json:"catalog"`
	Schema  string          `json:"schema"`
	Assets  []ManifestEntry `json:"assets"`
}

func (g *Generator) bucket() string {
	if g.Bucket == "" {
		return BucketPlaceholder
	}
	return g.Bucket
}

func (g *Generator) location(table string) string {
	return fmt.Sprintf("s3://%s/%s/%s/", g.bucket(), g.PathPrefix, table)
}

// CreateTable renders the CREATE TABLE IF NOT EXISTS statement for one
// asset, with columns mapped per the type table.
func (g *Generator) CreateTable(asset *schema.TableDefinition) (string, error) {
	if err := g.validateTarget(); err != nil {
		return "", err
	}
	if err := validateIdentifier(asset.Target.Table); err != nil {
		return "", fmt.Errorf("table %s: %w", asset.QualifiedName(), err)
	}

	targets, err := typemap.MapAll(asset)
	if err != nil {
		return "", err
	}

	cols := make([]string, len(asset.Columns))
	for i, col := range asset.Columns {
		if err := validateIdentifier(col.Name); err != nil {
			return "", fmt.Errorf("table %s: %w", asset.QualifiedName(), err)
		}
		nullable := ""
		if !col.Nullable {
			nullable = " NOT NULL"
		}
		cols[i] = fmt.Sprintf("  %s %s%s", col.Name, targets[i], nullable)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- Create table for %s from %s.%s\n", asset.Name, asset.Database, asset.Schema)
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s.%s.%s (\n", g.Catalog, g.Schema, asset.Target.Table)
	b.WriteString(strings.Join(cols, ",\n"))
	b.WriteString("\n)\nWITH (\n  format = 'PARQUET',\n")
	fmt.Fprintf(&b, "  location = '%s'\n);\n", g.location(asset.Target.Table))
	return b.String(), nil
}

// LoadTemplate renders the non-executable staging-to-target insert pattern
// operators follow when loading outside this tool.
func (g *Generator) LoadTemplate(asset *schema.TableDefinition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "-- Load data for %s\n", asset.Name)
	fmt.Fprintf(&b, "-- Source: %s\n", strings.ReplaceAll(asset.Source.FilePattern, `\`, "/"))
	b.WriteString("-- Note: files must be staged in object storage first\n\n")
	fmt.Fprintf(&b, "-- CREATE EXTERNAL TABLE temp_%s_staging (\n", asset.Target.Table)
	b.WriteString("--   ... columns ...\n-- )\n-- WITH (\n")
	fmt.Fprintf(&b, "--   format = '%s',\n", asset.Source.Format)
	b.WriteString("--   external_location = 's3://staging-bucket/path/',\n")
	fmt.Fprintf(&b, "--   field_delimiter = %q,\n", asset.Source.ColumnSeparator)
	fmt.Fprintf(&b, "--   line_delimiter = %q\n-- );\n\n", asset.Source.RowSeparator)
	fmt.Fprintf(&b, "-- INSERT INTO %s.%s.%s\n", g.Catalog, g.Schema, asset.Target.Table)
	fmt.Fprintf(&b, "-- SELECT * FROM temp_%s_staging;\n\n", asset.Target.Table)
	fmt.Fprintf(&b, "-- DROP TABLE temp_%s_staging;\n", asset.Target.Table)
	return b.String()
}

// validateTarget guards the configured catalog and schema names, which land
// in every generated statement.
func (g *Generator) validateTarget() error {
	if err := validateIdentifier(g.Catalog); err != nil {
		return fmt.Errorf("target catalog: %w", err)
	}
	if err := validateIdentifier(g.Schema); err != nil {
		return fmt.Errorf("target schema: %w", err)
	}
	return nil
}

// MasterScript renders schema creation followed by every table's DDL.
func (g *Generator) MasterScript(assets []schema.TableDefinition) (string, error) {
	if err := g.validateTarget(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("-- Master DDL for archive data migration\n")
	fmt.Fprintf(&b, "-- Total tables: %d\n\n", len(assets))
	fmt.Fprintf(&b, "CREATE SCHEMA IF NOT EXISTS %s.%s;\n\n", g.Catalog, g.Schema)
	for i := range assets {
		stmt, err := g.CreateTable(&assets[i])
		if err != nil {
			return "", err
		}
		b.WriteString(stmt)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Generate writes all DDL artifacts and the manifest into outputDir and
// returns the manifest.
func (g *Generator) Generate(outputDir string, assets []schema.TableDefinition) (*Manifest, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	manifest := &Manifest{Catalog: g.Catalog, Schema: g.Schema}
	for i := range assets {
		asset := &assets[i]

		createSQL, err := g.CreateTable(asset)
		if err != nil {
			return nil, err
		}
		createFile := filepath.Join(outputDir, asset.AssetID+"_create.sql")
		if err := os.WriteFile(createFile, []byte(createSQL), 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", createFile, err)
		}

		loadFile := filepath.Join(outputDir, asset.AssetID+"_load.sql")
		if err := os.WriteFile(loadFile, []byte(g.LoadTemplate(asset)), 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", loadFile, err)
		}

		manifest.Assets = append(manifest.Assets, ManifestEntry{
			AssetID:    asset.AssetID,
			Definition: asset,
			CreateFile: createFile,
			LoadFile:   loadFile,
			Status:     "generated",
		})
	}

	master, err := g.MasterScript(assets)
	if err != nil {
		return nil, err
	}
	masterFile := filepath.Join(outputDir, "00_create_all_tables.sql")
	if err := os.WriteFile(masterFile, []byte(master), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", masterFile, err)
	}

	manifestFile := filepath.Join(outputDir, "asset_manifest.json")
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(manifestFile, append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", manifestFile, err)
	}

	return manifest, nil
}

// validateIdentifier rejects names that could escape a SQL identifier
// position in generated DDL.
func validateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 128 {
		return fmt.Errorf("identifier too long: %d characters (max 128)", len(name))
	}
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return fmt.Errorf("identifier must start with letter or underscore: %q", name)
			}
		default:
			return fmt.Errorf("identifier contains invalid character %q: %q", r, name)
		}
	}
	return nil
}
