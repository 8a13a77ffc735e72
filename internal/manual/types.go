// Package manual defines core types shared across subsystems.
package manual

import (
	"strings"
	"time"
)

// ItemStatus represents the resolution state of a WorkItem.
type ItemStatus string

// Item status values persisted in the item store.
const (
	StatusPending     ItemStatus = "pending"
	StatusFound       ItemStatus = "found"
	StatusNotFound    ItemStatus = "not_found"
	StatusManualEntry ItemStatus = "manual_entry"
)

// ProductIdentity identifies one hardware product extracted from a contract.
// Model is the normalized cache key; Brand and Name are descriptive only.
type ProductIdentity struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
	Name  string `json:"name"`
}

// NewIdentity builds a ProductIdentity with a normalized model key.
func NewIdentity(brand, model, name string) ProductIdentity {
	return ProductIdentity{
		Brand: strings.TrimSpace(brand),
		Model: NormalizeModel(model),
		Name:  strings.TrimSpace(name),
	}
}

// NormalizeModel returns the canonical cache-key form of a model number.
// Comparison and storage always use this form.
func NormalizeModel(model string) string {
	return strings.ToUpper(strings.TrimSpace(model))
}

// Label returns a human-readable "Brand MODEL" string for logs and progress
// messages.
func (p ProductIdentity) Label() string {
	if p.Brand == "" {
		return p.Model
	}
	return p.Brand + " " + p.Model
}

// CacheRecord is the cross-project memo of a model's resolution outcome.
// One record exists per unique normalized model.
type CacheRecord struct {
	Model          string     `json:"model"`
	Brand          string     `json:"brand,omitempty"`
	Name           string     `json:"name,omitempty"`
	DocumentURL    string     `json:"document_url,omitempty"`
	StorageRef     string     `json:"document_storage_ref,omitempty"`
	WarrantyText   string     `json:"warranty_text,omitempty"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
}

// WorkItem is one product entry within a project awaiting or holding a
// resolution outcome.
type WorkItem struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Identity    ProductIdentity `json:"identity"`
	Status      ItemStatus      `json:"status"`
	DocumentURL string          `json:"document_url,omitempty"`
	Notes       string          `json:"notes,omitempty"`
	CacheModel  string          `json:"cache_model,omitempty"`
}

// Project groups the WorkItems created from one contract upload.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ResolutionKind distinguishes the three possible outcomes of a document
// search: validated bytes, a link that could not be fetched, or nothing.
type ResolutionKind string

// Resolution outcome kinds.
const (
	ResolutionFound    ResolutionKind = "found"
	ResolutionURLOnly  ResolutionKind = "url_only"
	ResolutionNotFound ResolutionKind = "not_found"
)

// Resolution is the tagged outcome of a document search. Bytes is non-nil
// exactly when Kind is ResolutionFound; URL is set for Found and URLOnly.
type Resolution struct {
	Kind  ResolutionKind
	URL   string
	Bytes []byte
}

// Found builds a Resolution carrying validated document bytes.
func Found(url string, data []byte) Resolution {
	return Resolution{Kind: ResolutionFound, URL: url, Bytes: data}
}

// URLOnly builds a Resolution for a link that could not be downloaded.
func URLOnly(url string) Resolution {
	return Resolution{Kind: ResolutionURLOnly, URL: url}
}

// NotFound builds an empty Resolution.
func NotFound() Resolution {
	return Resolution{Kind: ResolutionNotFound}
}

// ProductResult is the merged output of the Resolution Orchestrator: the best
// document outcome plus the independently resolved warranty text.
type ProductResult struct {
	Document Resolution
	Warranty string
}

// Found reports whether validated document bytes were obtained. A URL alone
// does not count.
func (r ProductResult) Found() bool {
	return r.Document.Kind == ResolutionFound
}
