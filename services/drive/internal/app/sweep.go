package app

import (
	"context"
	"errors"
	"fmt"

	"drivex/internal/util"
	"drivex/pkg/domain"
	"drivex/pkg/storage"
)

const purgeBatchSize = 200

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	TempRemoved    int   `json:"tempRemoved"`
	OrphansRemoved int   `json:"orphansRemoved"`
	TrashPurged    int   `json:"trashPurged"`
	BytesFreed     int64 `json:"bytesFreed"`
	Failures       int   `json:"failures"`
}

// Sweep repairs drift between blobs and rows: it removes abandoned temp
// files, blobs no row references, and trashed files past retention. Blobs
// younger than the grace period are left alone so in-flight uploads are not
// mistaken for orphans.
func (a *App) Sweep(ctx context.Context) (SweepReport, error) {
	logger := util.LoggerFromContext(ctx)
	var report SweepReport
	now := a.now().UTC()

	var candidates []storage.BlobInfo
	err := a.blobs.List(ctx, func(info storage.BlobInfo) error {
		if info.ModTime.After(now.Add(-a.sweepGrace)) {
			return nil
		}
		candidates = append(candidates, info)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("list blobs: %w", err)
	}

	for _, info := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !info.Temp {
			referenced, err := a.store.FilePathExists(ctx, domain.UploadsPrefix+info.Key)
			if err != nil {
				return report, fmt.Errorf("check blob reference: %w", err)
			}
			if referenced {
				continue
			}
		}
		if err := a.blobs.Delete(ctx, info.Key); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
			report.Failures++
			logger.Warn("sweep blob delete failed", "key", info.Key, "err", err)
			continue
		}
		report.BytesFreed += info.Size
		if info.Temp {
			report.TempRemoved++
		} else {
			report.OrphansRemoved++
		}
	}

	cutoff := now.Add(-a.trashRetention)
	for {
		batch, err := a.store.ListTrashedBefore(ctx, cutoff, purgeBatchSize)
		if err != nil {
			return report, fmt.Errorf("list expired trash: %w", err)
		}
		purged := 0
		for _, f := range batch {
			// A restore between listing and purging keeps the file.
			file, ok, err := a.store.PurgeTrashed(ctx, f.ID, f.UserID, cutoff)
			if err != nil {
				return report, fmt.Errorf("purge file row: %w", err)
			}
			if !ok {
				continue
			}
			purged++
			a.removeBlob(ctx, file)
			report.TrashPurged++
			report.BytesFreed += file.FileSize
		}
		if len(batch) < purgeBatchSize || purged == 0 {
			break
		}
	}

	logger.Info("sweep finished",
		"temp_removed", report.TempRemoved,
		"orphans_removed", report.OrphansRemoved,
		"trash_purged", report.TrashPurged,
		"bytes_freed", report.BytesFreed,
		"failures", report.Failures,
	)
	return report, nil
}
