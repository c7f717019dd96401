// Package orchestrator sequences the archive flow per asset
// (read -> convert -> create table -> upload -> verify) and aggregates the
// per-asset outcomes into a run summary. Assets are independent and run
// concurrently under a bounded worker pool; the summary accumulator is the
// only shared state.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/archivelake/lakemigrate/internal/config"
	"github.com/archivelake/lakemigrate/internal/ddl"
	"github.com/archivelake/lakemigrate/internal/lakehouse"
	"github.com/archivelake/lakemigrate/internal/logging"
	"github.com/archivelake/lakemigrate/internal/objectstore"
	"github.com/archivelake/lakemigrate/internal/progress"
	"github.com/archivelake/lakemigrate/internal/schema"
	"github.com/archivelake/lakemigrate/internal/state"
)

// Step names a stage in the per-asset state machine. Transitions are
// strictly sequential; no state is revisited.
type Step string

const (
	StepPending       Step = "pending"
	StepReading       Step = "reading"
	StepConverting    Step = "converting"
	StepCreatingTable Step = "creating_table"
	StepUploading     Step = "uploading"
	StepVerifying     Step = "verifying"
)

// Status is a terminal asset state.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// ExternalCallError marks a remote call failure and the step it happened in.
// It is fatal for its asset only; sibling assets keep running.
type ExternalCallError struct {
	Step Step
	Err  error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("external call failed during %s: %v", e.Step, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

// AssetResult is the outcome of one asset.
type AssetResult struct {
	AssetID          string  `json:"asset_id"`
	Status           Status  `json:"status"`
	RowCount         int64   `json:"row_count"`
	ConversionErrors int64   `json:"conversion_errors,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds"`
	TargetTable      string  `json:"target_table,omitempty"`
	FailedStep       Step    `json:"failed_step,omitempty"`
	Error            string  `json:"error,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// Summary aggregates a whole run. successful + failed + skipped always
// equals TotalAssets.
type Summary struct {
	RunID       string        `json:"run_id"`
	TotalAssets int           `json:"total_assets"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Results     []AssetResult `json:"results"`
	Timestamp   time.Time     `json:"timestamp"`
}

// WriteJSON writes the run summary artifact.
func (s *Summary) WriteJSON(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Orchestrator runs the archive flow.
type Orchestrator struct {
	cfg      *config.Config
	catalog  lakehouse.Catalog
	uploader objectstore.Uploader
	store    *state.Store
	gen      *ddl.Generator
	progress *progress.Tracker
}

// New wires an Orchestrator. store may be nil to skip history recording.
func New(cfg *config.Config, catalog lakehouse.Catalog, uploader objectstore.Uploader, store *state.Store) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		catalog:  catalog,
		uploader: uploader,
		store:    store,
		gen: &ddl.Generator{
			Catalog:    cfg.Watsonx.Catalog,
			Schema:     cfg.Watsonx.Schema,
			Bucket:     cfg.Storage.Bucket,
			PathPrefix: cfg.Storage.PathPrefix,
		},
		progress: progress.New(),
	}
}

// LoadSourceMap reads the asset_id -> source file path mapping.
func LoadSourceMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source map %s: %w", path, err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding source map %s: %w", path, err)
	}
	return m, nil
}

// Run archives every asset in the document. Mapping entries that name no
// schema asset are dropped with a warning; schema assets without a usable
// source file terminate skipped.
func (o *Orchestrator) Run(ctx context.Context, doc *schema.Document, sourceMap map[string]string) (*Summary, error) {
	known := make(map[string]bool, len(doc.Assets))
	for i := range doc.Assets {
		known[doc.Assets[i].AssetID] = true
	}
	for assetID := range sourceMap {
		if !known[assetID] {
			logging.Warn("Source mapping names unknown asset %s, ignoring", assetID)
		}
	}

	runID := uuid.NewString()
	startedAt := time.Now()
	logging.Info("Starting archive run %s (%d assets, %d workers)",
		runID, len(doc.Assets), o.cfg.Migration.Workers)

	if o.store != nil {
		if err := o.store.CreateRun(runID, startedAt, len(doc.Assets)); err != nil {
			return nil, err
		}
	}

	o.progress.SetTotal(int64(len(doc.Assets)))

	var (
		mu      sync.Mutex
		results []AssetResult
	)

	sem := make(chan struct{}, o.cfg.Migration.Workers)
	var wg sync.WaitGroup

	for i := range doc.Assets {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(asset *schema.TableDefinition) {
			defer wg.Done()
			defer func() { <-sem }()

			res := o.archiveAsset(ctx, asset, sourceMap[asset.AssetID])

			mu.Lock()
			results = append(results, res)
			mu.Unlock()

			if o.store != nil {
				if err := o.store.RecordAsset(runID, assetRecord(res)); err != nil {
					logging.Warn("Failed to record %s in history: %v", res.AssetID, err)
				}
			}
			o.progress.AssetDone(res.RowCount)
		}(&doc.Assets[i])
	}

	wg.Wait()
	o.progress.Finish()

	sort.Slice(results, func(i, j int) bool { return results[i].AssetID < results[j].AssetID })

	summary := &Summary{
		RunID:       runID,
		TotalAssets: len(doc.Assets),
		Results:     results,
		Timestamp:   time.Now(),
	}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			summary.Successful++
		case StatusFailed:
			summary.Failed++
		case StatusSkipped:
			summary.Skipped++
		}
	}

	if o.store != nil {
		status := "success"
		if summary.Failed > 0 {
			status = "failed"
		}
		if err := o.store.CompleteRun(runID, status, summary.Successful, summary.Failed, summary.Skipped); err != nil {
			logging.Warn("Failed to finalize run history: %v", err)
		}
	}

	logging.Info("Run %s complete: %d successful, %d failed, %d skipped",
		runID, summary.Successful, summary.Failed, summary.Skipped)
	return summary, nil
}

func assetRecord(r AssetResult) state.AssetRecord {
	errMsg := r.Error
	if errMsg == "" {
		errMsg = r.Reason
	}
	return state.AssetRecord{
		AssetID:          r.AssetID,
		Status:           string(r.Status),
		RowCount:         r.RowCount,
		ConversionErrors: r.ConversionErrors,
		DurationMS:       int64(r.DurationSeconds * 1000),
		TargetTable:      r.TargetTable,
		FailedStep:       string(r.FailedStep),
		Error:            errMsg,
	}
}
