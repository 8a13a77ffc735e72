package jobs

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/manual"
	"github.com/ati-tools/manualfinder/internal/metrics"
)

// Downloader fetches and validates a document by URL. Satisfied by
// resolver.Fetcher.
type Downloader interface {
	DownloadPDF(ctx context.Context, url string) ([]byte, bool)
}

// Archiver bundles a project's resolved documents into a zip. Documents come
// from blob storage when the cache holds stored bytes, otherwise they are
// re-downloaded from the recorded link. Items whose document cannot be
// produced are skipped, not fatal.
type Archiver struct {
	items      manual.ItemStore
	cache      manual.CacheStore
	blob       manual.BlobStore
	downloader Downloader
	progress   *ProgressStore
	logger     *zap.Logger
}

// NewArchiver wires an Archiver.
func NewArchiver(items manual.ItemStore, cache manual.CacheStore, blob manual.BlobStore, downloader Downloader, progress *ProgressStore, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		items:      items,
		cache:      cache,
		blob:       blob,
		downloader: downloader,
		progress:   progress,
		logger:     logger,
	}
}

// BuildArchive assembles the zip for a project and parks it in the progress
// store for a one-time download.
func (a *Archiver) BuildArchive(ctx context.Context, jobID, projectID, projectName string) error {
	metrics.ObserveJob("archive", "started")
	a.progress.SetArchive(jobID, ArchiveProgress{
		Status:  ArchiveBuilding,
		Message: "collecting documents",
	})

	items, err := a.items.ListByProject(ctx, projectID)
	if err != nil {
		a.failArchive(jobID, fmt.Sprintf("failed to load project items: %v", err))
		return fmt.Errorf("list items for project %s: %w", projectID, err)
	}

	var resolved []manual.WorkItem
	for _, item := range items {
		if item.Status == manual.StatusFound || item.Status == manual.StatusManualEntry {
			resolved = append(resolved, item)
		}
	}
	total := len(resolved)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]int)
	added := 0

	for i, item := range resolved {
		if err := ctx.Err(); err != nil {
			a.progress.SetArchive(jobID, ArchiveProgress{
				Status:  ArchiveError,
				Message: "archive canceled",
			})
			metrics.ObserveJob("archive", "canceled")
			return err
		}
		a.progress.SetArchive(jobID, ArchiveProgress{
			Status:  ArchiveBuilding,
			Message: fmt.Sprintf("Adding %d/%d: %s", i+1, total, item.Identity.Label()),
			Current: i + 1,
			Total:   total,
		})

		data, ok := a.documentBytes(ctx, item)
		if !ok {
			a.logger.Warn("document unavailable for archive",
				zap.String("item_id", item.ID),
				zap.String("model", item.Identity.Model))
			continue
		}
		name := entryName(item.Identity.Model, used)
		w, err := zw.Create(name)
		if err != nil {
			a.failArchive(jobID, fmt.Sprintf("failed to build archive: %v", err))
			return fmt.Errorf("create zip entry %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			a.failArchive(jobID, fmt.Sprintf("failed to build archive: %v", err))
			return fmt.Errorf("write zip entry %s: %w", name, err)
		}
		added++
	}

	if err := zw.Close(); err != nil {
		a.failArchive(jobID, fmt.Sprintf("failed to finalize archive: %v", err))
		return fmt.Errorf("close zip: %w", err)
	}

	fileName := archiveFileName(projectName)
	a.progress.SetArchive(jobID, ArchiveProgress{
		Status:   ArchiveBuilding,
		Message:  fmt.Sprintf("Packaged %d of %d documents", added, total),
		Current:  total,
		Total:    total,
		FileName: fileName,
	})
	a.progress.PutArchiveFile(jobID, fileName, buf.Bytes())
	metrics.ObserveJob("archive", "completed")
	return nil
}

// documentBytes produces the document for one item: stored bytes first, then
// a fresh validated download of the recorded link.
func (a *Archiver) documentBytes(ctx context.Context, item manual.WorkItem) ([]byte, bool) {
	model := item.CacheModel
	if model == "" {
		model = item.Identity.Model
	}
	record, err := a.cache.GetByModel(ctx, model)
	if err != nil && !errors.Is(err, manual.ErrNotFound) {
		a.logger.Warn("cache lookup failed during archive",
			zap.String("model", model), zap.Error(err))
	}
	if err == nil && record.StorageRef != "" {
		data, err := a.blob.GetObject(ctx, record.StorageRef)
		if err == nil {
			return data, true
		}
		a.logger.Warn("stored document unreadable, falling back to link",
			zap.String("storage_ref", record.StorageRef), zap.Error(err))
	}

	url := item.DocumentURL
	if url == "" && err == nil {
		url = record.DocumentURL
	}
	if url == "" || a.downloader == nil {
		return nil, false
	}
	return a.downloader.DownloadPDF(ctx, url)
}

func (a *Archiver) failArchive(jobID, message string) {
	a.progress.SetArchive(jobID, ArchiveProgress{
		Status:  ArchiveError,
		Message: message,
	})
	metrics.ObserveJob("archive", "failed")
}

// entryName builds a unique zip member name for a model.
func entryName(model string, used map[string]int) string {
	base := strings.NewReplacer("/", "-", "\\", "-", " ", "_").Replace(model)
	if base == "" {
		base = "document"
	}
	used[base]++
	if used[base] > 1 {
		return fmt.Sprintf("%s_%d.pdf", base, used[base])
	}
	return base + ".pdf"
}

// archiveFileName derives the download name from the project name.
func archiveFileName(projectName string) string {
	name := strings.TrimSpace(projectName)
	if name == "" {
		name = "project"
	}
	name = strings.NewReplacer("/", "-", "\\", "-", " ", "_").Replace(name)
	return name + "_manuals.zip"
}
