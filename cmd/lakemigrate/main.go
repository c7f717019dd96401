package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/archivelake/lakemigrate/internal/config"
	"github.com/archivelake/lakemigrate/internal/ddl"
	"github.com/archivelake/lakemigrate/internal/lakehouse"
	"github.com/archivelake/lakemigrate/internal/logging"
	"github.com/archivelake/lakemigrate/internal/objectstore"
	"github.com/archivelake/lakemigrate/internal/orchestrator"
	"github.com/archivelake/lakemigrate/internal/schema"
	"github.com/archivelake/lakemigrate/internal/state"
	"github.com/archivelake/lakemigrate/internal/util"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "lakemigrate",
		Usage:   "Migrate legacy XML-described archive extracts into a lakehouse",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "parse",
				Usage:  "Extract table definitions from a master XML file",
				Action: runParse,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "xml",
						Usage:    "Path to the master XML job definition",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Path for the normalized schema JSON (default <output_dir>/schema.json)",
					},
				},
			},
			{
				Name:   "ddl",
				Usage:  "Generate CREATE TABLE scripts and the asset manifest",
				Action: runDDL,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "schema",
						Usage: "Path to the schema JSON produced by parse",
					},
					&cli.StringFlag{
						Name:  "xml",
						Usage: "Path to the master XML (alternative to --schema)",
					},
				},
			},
			{
				Name:   "run",
				Usage:  "Convert, upload, and register every mapped asset",
				Action: runMigration,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "schema",
						Usage: "Path to the schema JSON produced by parse",
					},
					&cli.StringFlag{
						Name:  "xml",
						Usage: "Path to the master XML (alternative to --schema)",
					},
					&cli.StringFlag{
						Name:     "sources",
						Usage:    "Path to the asset-to-file mapping JSON",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of parallel workers",
					},
					&cli.StringFlag{
						Name:  "assets",
						Usage: "Comma-separated asset IDs to run (default all)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Convert locally without touching the lakehouse or object storage",
					},
				},
			},
			{
				Name:  "history",
				Usage: "List past runs, or view details of a specific run",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Show details for a specific run ID",
					},
				},
				Action: showHistory,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)
	logging.SetFormat(cfg.Log.Format)
	return cfg, nil
}

// loadDocument resolves the schema document from --schema (the JSON
// artifact) or --xml (the raw master file).
func loadDocument(c *cli.Context, cfg *config.Config) (*schema.Document, error) {
	if path := c.String("schema"); path != "" {
		return schema.LoadJSON(path)
	}
	if path := c.String("xml"); path != "" {
		ex := &schema.Extractor{
			TargetCatalog: cfg.Watsonx.Catalog,
			TargetSchema:  cfg.Watsonx.Schema,
		}
		return ex.ExtractFile(path)
	}
	return nil, fmt.Errorf("either --schema or --xml is required")
}

func runParse(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ex := &schema.Extractor{
		TargetCatalog: cfg.Watsonx.Catalog,
		TargetSchema:  cfg.Watsonx.Schema,
	}
	doc, err := ex.ExtractFile(c.String("xml"))
	if err != nil {
		return err
	}

	for i := range doc.Assets {
		a := &doc.Assets[i]
		fmt.Printf("  %-50s %3d columns  %s\n", a.QualifiedName(), len(a.Columns), a.Source.Format)
	}

	out := c.String("out")
	if out == "" {
		if err := os.MkdirAll(cfg.Migration.OutputDir, 0o755); err != nil {
			return err
		}
		out = filepath.Join(cfg.Migration.OutputDir, "schema.json")
	}
	if err := doc.WriteJSON(out); err != nil {
		return err
	}

	logging.Info("Extracted %d assets to %s", len(doc.Assets), out)
	return nil
}

func runDDL(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	doc, err := loadDocument(c, cfg)
	if err != nil {
		return err
	}

	gen := &ddl.Generator{
		Catalog:    cfg.Watsonx.Catalog,
		Schema:     cfg.Watsonx.Schema,
		Bucket:     cfg.Storage.Bucket,
		PathPrefix: cfg.Storage.PathPrefix,
	}
	manifest, err := gen.Generate(cfg.Migration.OutputDir, doc.Assets)
	if err != nil {
		return err
	}

	logging.Info("Generated DDL for %d tables in %s", len(manifest.Assets), cfg.Migration.OutputDir)
	return nil
}

func runMigration(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("workers") {
		cfg.Migration.Workers = c.Int("workers")
	}

	doc, err := loadDocument(c, cfg)
	if err != nil {
		return err
	}
	sourceMap, err := orchestrator.LoadSourceMap(c.String("sources"))
	if err != nil {
		return err
	}

	if filter := util.SplitCSV(c.String("assets")); filter != nil {
		doc.Assets = filterAssets(doc.Assets, filter)
		if len(doc.Assets) == 0 {
			return fmt.Errorf("no assets match --assets filter")
		}
	}

	var (
		catalog  lakehouse.Catalog
		uploader objectstore.Uploader
	)
	if c.Bool("dry-run") {
		logging.Info("Dry run: remote calls disabled")
		catalog = lakehouse.Noop{}
		uploader = objectstore.Noop{}
	} else {
		if err := cfg.ValidateRemote(); err != nil {
			return err
		}
		catalog = lakehouse.NewClient(cfg.Watsonx.Host, cfg.Watsonx.Port, cfg.Watsonx.EngineID, cfg.Watsonx.APIKey)
		uploader, err = objectstore.NewS3Uploader(&cfg.Storage)
		if err != nil {
			return err
		}
	}

	store, err := state.Open(cfg.Migration.StateDB)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nInterrupted. Finishing in-flight assets...")
		cancel()
	}()

	orch := orchestrator.New(cfg, catalog, uploader, store)
	summary, err := orch.Run(ctx, doc, sourceMap)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Migration.OutputDir, 0o755); err != nil {
		return err
	}
	summaryPath := filepath.Join(cfg.Migration.OutputDir, "migration_summary.json")
	if err := summary.WriteJSON(summaryPath); err != nil {
		return err
	}
	logging.Info("Summary written to %s", summaryPath)

	if summary.Failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d assets failed", summary.Failed, summary.TotalAssets), 1)
	}
	return nil
}

func filterAssets(assets []schema.TableDefinition, ids []string) []schema.TableDefinition {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []schema.TableDefinition
	for i := range assets {
		if want[assets[i].AssetID] {
			out = append(out, assets[i])
		}
	}
	return out
}

func showHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	store, err := state.Open(cfg.Migration.StateDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if runID := c.String("run"); runID != "" {
		return showRunDetails(store, runID)
	}

	runs, err := store.GetRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-38s %-20s %-10s %8s %8s %8s %8s\n",
		"RUN ID", "STARTED", "STATUS", "TOTAL", "OK", "FAILED", "SKIPPED")
	for _, r := range runs {
		fmt.Printf("%-38s %-20s %-10s %8d %8d %8d %8d\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status, r.TotalAssets, r.Successful, r.Failed, r.Skipped)
	}
	return nil
}

func showRunDetails(store *state.Store, runID string) error {
	recs, err := store.GetRunAssets(runID)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("no assets recorded for run %s", runID)
	}

	fmt.Printf("%-40s %-10s %10s %8s %10s %-16s\n",
		"ASSET", "STATUS", "ROWS", "ERRORS", "DURATION", "FAILED STEP")
	for _, rec := range recs {
		fmt.Printf("%-40s %-10s %10d %8d %10s %-16s\n",
			rec.AssetID, rec.Status, rec.RowCount, rec.ConversionErrors,
			(time.Duration(rec.DurationMS) * time.Millisecond).Round(time.Millisecond),
			rec.FailedStep)
		if rec.Error != "" {
			fmt.Printf("    %s\n", rec.Error)
		}
	}
	return nil
}
