// Package cache decides when a product needs a fresh document search and
// records the outcome for every project that follows.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/manual"
	"github.com/ati-tools/manualfinder/internal/metrics"
)

// DecisionKind classifies what the cache already knows about a model.
type DecisionKind string

// Gate decisions.
const (
	// DecisionFullHit: a document is on record, no search runs.
	DecisionFullHit DecisionKind = "full_hit"
	// DecisionSuppressedMiss: a recent search found nothing, the repeat
	// search is skipped until the record goes stale.
	DecisionSuppressedMiss DecisionKind = "suppressed_miss"
	// DecisionPartialHit: the record is document-less and stale, a new
	// search runs seeded with whatever the record still holds.
	DecisionPartialHit DecisionKind = "partial_hit"
	// DecisionColdMiss: the model has never been seen.
	DecisionColdMiss DecisionKind = "cold_miss"
)

// Decision is the gate verdict for one model. Record is nil for a cold miss.
type Decision struct {
	Kind   DecisionKind
	Record *manual.CacheRecord
}

// SuppressedNote is recorded on items answered from a recent failed search.
const SuppressedNote = "previously searched, no manual found"

// unverifiedNote marks items holding a link that never validated as a
// document.
const unverifiedNote = "link could not be verified as a document"

// ProductResolver runs the actual document and warranty search. Satisfied by
// resolver.Orchestrator.
type ProductResolver interface {
	Resolve(ctx context.Context, identity manual.ProductIdentity) (manual.ProductResult, error)
}

// Gate wraps the resolver with the cross-project cache: it answers items from
// the cache when it can and records every search outcome, found or not, so
// the next project benefits.
type Gate struct {
	store     manual.CacheStore
	blob      manual.BlobStore
	resolver  ProductResolver
	clock     manual.Clock
	window    time.Duration
	signedTTL time.Duration
	logger    *zap.Logger
}

// Config carries the gate's tunables.
type Config struct {
	// FreshnessWindow is how long a failed search suppresses repeats.
	FreshnessWindow time.Duration
	// SignedURLTTL bounds the lifetime of issued document links.
	SignedURLTTL time.Duration
}

// NewGate wires the gate.
func NewGate(store manual.CacheStore, blob manual.BlobStore, resolver ProductResolver, clock manual.Clock, cfg Config, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 7 * 24 * time.Hour
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = 24 * time.Hour
	}
	return &Gate{
		store:     store,
		blob:      blob,
		resolver:  resolver,
		clock:     clock,
		window:    cfg.FreshnessWindow,
		signedTTL: cfg.SignedURLTTL,
		logger:    logger,
	}
}

// Decide classifies the model against the cache without side effects.
func (g *Gate) Decide(ctx context.Context, model string) (Decision, error) {
	record, err := g.store.GetByModel(ctx, manual.NormalizeModel(model))
	if errors.Is(err, manual.ErrNotFound) {
		return Decision{Kind: DecisionColdMiss}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("cache lookup for %s: %w", model, err)
	}
	if record.StorageRef != "" || record.DocumentURL != "" {
		return Decision{Kind: DecisionFullHit, Record: &record}, nil
	}
	if record.LastVerifiedAt != nil && g.clock.Now().Sub(*record.LastVerifiedAt) <= g.window {
		return Decision{Kind: DecisionSuppressedMiss, Record: &record}, nil
	}
	return Decision{Kind: DecisionPartialHit, Record: &record}, nil
}

// Process resolves one work item through the gate and returns the updated
// item. Hits never invoke the resolver; misses run the full search and write
// the outcome back to the cache, refreshing the verification time either way.
func (g *Gate) Process(ctx context.Context, item manual.WorkItem) (manual.WorkItem, error) {
	decision, err := g.Decide(ctx, item.Identity.Model)
	if err != nil {
		return item, err
	}
	metrics.ObserveCacheDecision(string(decision.Kind))

	switch decision.Kind {
	case DecisionFullHit:
		record := *decision.Record
		item.Status = manual.StatusFound
		item.CacheModel = record.Model
		item.DocumentURL = g.documentLink(ctx, record)
		g.logger.Info("cache hit",
			zap.String("model", record.Model),
			zap.String("item_id", item.ID))
		return item, nil

	case DecisionSuppressedMiss:
		item.Status = manual.StatusNotFound
		item.CacheModel = decision.Record.Model
		item.Notes = SuppressedNote
		return item, nil
	}

	return g.processMiss(ctx, item, decision)
}

// processMiss runs the search and writes the outcome to cache and item.
func (g *Gate) processMiss(ctx context.Context, item manual.WorkItem, decision Decision) (manual.WorkItem, error) {
	result, err := g.resolver.Resolve(ctx, item.Identity)
	if err != nil {
		return item, fmt.Errorf("resolve %s: %w", item.Identity.Label(), err)
	}

	warranty := result.Warranty
	if warranty == "" && decision.Record != nil {
		// Stale records keep their warranty when the new pass finds none.
		warranty = decision.Record.WarrantyText
	}

	now := g.clock.Now()
	record := manual.CacheRecord{
		Model:          item.Identity.Model,
		Brand:          item.Identity.Brand,
		Name:           item.Identity.Name,
		WarrantyText:   warranty,
		LastVerifiedAt: &now,
	}

	switch result.Document.Kind {
	case manual.ResolutionFound:
		ref, err := g.blob.PutObject(ctx, DocumentPath(item.Identity.Model), "application/pdf", result.Document.Bytes)
		if err != nil {
			return item, fmt.Errorf("store document for %s: %w", item.Identity.Label(), err)
		}
		record.StorageRef = ref
		record.DocumentURL = result.Document.URL
		item.Status = manual.StatusFound
		item.DocumentURL = g.documentLink(ctx, record)

	case manual.ResolutionURLOnly:
		// Found means validated bytes. A bare reference URL is surfaced
		// for a human to chase but the item stays not found.
		record.DocumentURL = result.Document.URL
		item.Status = manual.StatusNotFound
		item.DocumentURL = result.Document.URL
		item.Notes = unverifiedNote

	default:
		item.Status = manual.StatusNotFound
	}

	stored, err := g.store.Upsert(ctx, record)
	if err != nil {
		return item, fmt.Errorf("cache upsert for %s: %w", item.Identity.Label(), err)
	}
	item.CacheModel = stored.Model
	return item, nil
}

// documentLink produces the best retrieval URL for a record: a signed link to
// stored bytes when available, the external URL otherwise.
func (g *Gate) documentLink(ctx context.Context, record manual.CacheRecord) string {
	if record.StorageRef != "" {
		signed, err := g.blob.SignedURL(ctx, record.StorageRef, g.signedTTL)
		if err == nil {
			return signed
		}
		g.logger.Warn("signed url failed, falling back to source link",
			zap.String("model", record.Model),
			zap.Error(err))
	}
	return record.DocumentURL
}

// DocumentPath is the blob key for a model's stored document.
func DocumentPath(model string) string {
	safe := strings.NewReplacer("/", "-", "\\", "-", " ", "_").Replace(model)
	return "manuals/" + safe + ".pdf"
}
