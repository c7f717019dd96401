package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/archivelake/lakemigrate/internal/convert"
	"github.com/archivelake/lakemigrate/internal/logging"
	"github.com/archivelake/lakemigrate/internal/reader"
	"github.com/archivelake/lakemigrate/internal/schema"
)

// archiveAsset drives one asset through the state machine. Every failure is
// confined to this asset; the caller aggregates.
func (o *Orchestrator) archiveAsset(ctx context.Context, asset *schema.TableDefinition, sourcePath string) AssetResult {
	start := time.Now()
	res := AssetResult{
		AssetID:     asset.AssetID,
		TargetTable: asset.TargetTable(),
	}
	finish := func() AssetResult {
		res.DurationSeconds = time.Since(start).Seconds()
		return res
	}
	fail := func(step Step, err error) AssetResult {
		res.Status = StatusFailed
		res.FailedStep = step
		res.Error = err.Error()
		logging.Error("Asset %s failed during %s: %v", asset.AssetID, step, err)
		return finish()
	}
	skip := func(reason string) AssetResult {
		res.Status = StatusSkipped
		res.Reason = reason
		logging.Warn("Skipping asset %s: %s", asset.AssetID, reason)
		return finish()
	}

	if sourcePath == "" {
		return skip("no source file mapped")
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return skip(fmt.Sprintf("source file not found: %s", sourcePath))
	}

	conv, err := convert.New(asset)
	if err != nil {
		return fail(StepConverting, err)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fail(StepReading, err)
	}
	defer src.Close()

	rdr, err := reader.New(src, reader.Options{
		ColumnSeparator: asset.Source.ColumnSeparator,
		RowSeparator:    asset.Source.RowSeparator,
		NullIndicator:   asset.Source.NullIndicator,
		RejectTruncated: o.cfg.Migration.RejectTruncated,
	})
	if err != nil {
		return fail(StepReading, err)
	}

	tmp, err := os.CreateTemp("", asset.AssetID+"-*.parquet")
	if err != nil {
		return fail(StepConverting, err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	convRes, err := conv.Convert(rdr, tmp)
	if err != nil {
		return fail(StepConverting, err)
	}
	res.RowCount = convRes.Rows
	res.ConversionErrors = convRes.ErrorCount
	if convRes.Truncated {
		logging.Warn("Asset %s: final row was unterminated, accepted as data", asset.AssetID)
	}
	for i := range convRes.Errors {
		logging.Debug("Asset %s: %s", asset.AssetID, convRes.Errors[i].Error())
	}
	if convRes.ErrorCount > 0 {
		logging.Warn("Asset %s: dropped %d rows with conversion errors", asset.AssetID, convRes.ErrorCount)
	}

	createDDL, err := o.gen.CreateTable(asset)
	if err != nil {
		return fail(StepCreatingTable, err)
	}
	if err := o.catalog.EnsureSchema(ctx, asset.Target.Catalog, asset.Target.Schema); err != nil {
		return fail(StepCreatingTable, &ExternalCallError{Step: StepCreatingTable, Err: err})
	}
	if err := o.catalog.CreateTable(ctx, createDDL); err != nil {
		return fail(StepCreatingTable, &ExternalCallError{Step: StepCreatingTable, Err: err})
	}

	if _, err := tmp.Seek(0, 0); err != nil {
		return fail(StepUploading, err)
	}
	key := objectKey(o.cfg.Storage.PathPrefix, asset.Target.Table)
	if err := o.uploader.Upload(ctx, o.cfg.Storage.Bucket, key, tmp); err != nil {
		return fail(StepUploading, &ExternalCallError{Step: StepUploading, Err: err})
	}

	if err := o.catalog.RefreshTable(ctx, asset.Target.Catalog, asset.Target.Schema, asset.Target.Table); err != nil {
		return fail(StepVerifying, &ExternalCallError{Step: StepVerifying, Err: err})
	}
	remote, err := o.catalog.RowCount(ctx, asset.Target.Catalog, asset.Target.Schema, asset.Target.Table)
	if err != nil {
		return fail(StepVerifying, &ExternalCallError{Step: StepVerifying, Err: err})
	}
	if remote >= 0 && remote < convRes.Rows {
		return fail(StepVerifying, fmt.Errorf(
			"row count mismatch: table %s has %d rows, converted %d", res.TargetTable, remote, convRes.Rows))
	}

	res.Status = StatusSuccess
	logging.Info("Asset %s archived: %d rows to %s", asset.AssetID, convRes.Rows, res.TargetTable)
	return finish()
}

// objectKey names the uploaded artifact under the table's data directory.
// The suffix keeps repeated runs from clobbering each other.
func objectKey(prefix, table string) string {
	name := fmt.Sprintf("data_%s_%s.parquet",
		time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	return filepath.ToSlash(filepath.Join(prefix, table, name))
}
