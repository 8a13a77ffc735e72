package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/manual"
	"github.com/ati-tools/manualfinder/internal/metrics"
)

// ItemProcessor resolves one work item. Satisfied by cache.Gate.
type ItemProcessor interface {
	Process(ctx context.Context, item manual.WorkItem) (manual.WorkItem, error)
}

// ItemEvent is published after each item's cache pass settles.
type ItemEvent struct {
	ProjectID   string `json:"project_id"`
	ItemID      string `json:"item_id"`
	Model       string `json:"model"`
	Status      string `json:"status"`
	DocumentURL string `json:"document_url,omitempty"`
}

// CompletionEvent is published when a project's resolution run finishes.
type CompletionEvent struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	Total       int    `json:"total"`
	Found       int    `json:"found"`
	NotFound    int    `json:"not_found"`
}

// Runner executes resolution runs: each project's items are worked strictly
// in order, one at a time. Separate projects may run on different workers
// concurrently; the cache absorbs races with a last-writer-wins upsert.
type Runner struct {
	items     manual.ItemStore
	processor ItemProcessor
	progress  *ProgressStore
	publisher manual.Publisher
	topic     string
	logger    *zap.Logger
}

// NewRunner wires a Runner. topic may be empty to skip event publishing.
func NewRunner(items manual.ItemStore, processor ItemProcessor, progress *ProgressStore, publisher manual.Publisher, topic string, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		items:     items,
		processor: processor,
		progress:  progress,
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// ProcessProject resolves every pending item of a project. Failing to load
// the item list aborts the run; a single item failing is recorded on the item
// and the run continues.
func (r *Runner) ProcessProject(ctx context.Context, projectID, projectName string) error {
	metrics.ObserveJob("resolve", "started")
	items, err := r.items.ListByProject(ctx, projectID)
	if err != nil {
		r.progress.SetProject(projectID, ProjectProgress{
			Message: "failed to load project items",
			Done:    true,
			Err:     err.Error(),
		})
		metrics.ObserveJob("resolve", "failed")
		return fmt.Errorf("list items for project %s: %w", projectID, err)
	}

	var pending []manual.WorkItem
	for _, item := range items {
		if item.Status == manual.StatusPending {
			pending = append(pending, item)
		}
	}
	total := len(pending)

	found, notFound := 0, 0
	for i, item := range pending {
		if err := ctx.Err(); err != nil {
			r.progress.SetProject(projectID, ProjectProgress{
				Message: "run canceled",
				Current: i,
				Total:   total,
				Done:    true,
				Err:     err.Error(),
			})
			metrics.ObserveJob("resolve", "canceled")
			return err
		}
		r.progress.SetProject(projectID, ProjectProgress{
			Message: fmt.Sprintf("Searching %d/%d: %s", i+1, total, item.Identity.Label()),
			Current: i + 1,
			Total:   total,
		})

		updated := r.processItem(ctx, item)
		if updated.Status == manual.StatusFound {
			found++
		} else {
			notFound++
		}
	}

	r.progress.SetProject(projectID, ProjectProgress{
		Message: fmt.Sprintf("Done: %d found, %d not found", found, notFound),
		Current: total,
		Total:   total,
		Done:    true,
	})
	metrics.ObserveJob("resolve", "completed")

	r.publishEvent(ctx, CompletionEvent{
		ProjectID:   projectID,
		ProjectName: projectName,
		Total:       total,
		Found:       found,
		NotFound:    notFound,
	})
	return nil
}

// ProcessItem resolves a single item outside a project run. Used by retries.
func (r *Runner) ProcessItem(ctx context.Context, itemID string) (manual.WorkItem, error) {
	item, err := r.items.GetItem(ctx, itemID)
	if err != nil {
		return manual.WorkItem{}, fmt.Errorf("load item %s: %w", itemID, err)
	}
	return r.processItem(ctx, item), nil
}

// processItem runs the gate and persists the outcome. A processing error
// marks the item not found with the cause in its notes instead of failing
// the run.
func (r *Runner) processItem(ctx context.Context, item manual.WorkItem) manual.WorkItem {
	updated, err := r.processor.Process(ctx, item)
	if err != nil {
		r.logger.Warn("item resolution failed",
			zap.String("item_id", item.ID),
			zap.String("model", item.Identity.Model),
			zap.Error(err))
		updated = item
		updated.Status = manual.StatusNotFound
		updated.Notes = "search failed: " + err.Error()
	}
	if err := r.items.UpdateItem(ctx, updated); err != nil {
		r.logger.Error("item update failed",
			zap.String("item_id", item.ID),
			zap.Error(err))
	}
	r.publishEvent(ctx, ItemEvent{
		ProjectID:   updated.ProjectID,
		ItemID:      updated.ID,
		Model:       updated.Identity.Model,
		Status:      string(updated.Status),
		DocumentURL: updated.DocumentURL,
	})
	return updated
}

// publishEvent sends one event when a publisher and topic are configured.
// Publish failures never fail the run.
func (r *Runner) publishEvent(ctx context.Context, event any) {
	if r.publisher == nil || r.topic == "" {
		return
	}
	if _, err := r.publisher.Publish(ctx, r.topic, event); err != nil {
		r.logger.Warn("event publish failed", zap.Error(err))
	}
}
