package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/cache"
	"github.com/ati-tools/manualfinder/internal/jobs"
	"github.com/ati-tools/manualfinder/internal/manual"
)

// backgroundTimeout bounds detached work kicked off by a request, such as
// retries and manual-entry document downloads.
const backgroundTimeout = 10 * time.Minute

type createProjectResponse struct {
	ProjectID string            `json:"project_id"`
	Name      string            `json:"name"`
	ItemCount int               `json:"item_count"`
	Items     []manual.WorkItem `json:"items"`
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("contract")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing contract file")
		return
	}
	defer file.Close()

	contractPDF, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable contract file")
		return
	}

	identities, err := s.parser.Parse(r.Context(), contractPDF)
	if err != nil {
		s.logger.Warn("contract parse failed", zap.Error(err))
		writeError(w, http.StatusUnprocessableEntity, "could not extract products from contract")
		return
	}
	if len(identities) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no products found in contract")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	projectID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	project := manual.Project{ID: projectID, Name: name, CreatedAt: s.clock.Now()}
	if err := s.projects.CreateProject(r.Context(), project); err != nil {
		s.logger.Error("create project failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create project")
		return
	}

	items := make([]manual.WorkItem, 0, len(identities))
	for _, identity := range identities {
		itemID, err := s.idGen.NewID()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "id generation failed")
			return
		}
		items = append(items, manual.WorkItem{
			ID:        itemID,
			ProjectID: projectID,
			Identity:  identity,
			Status:    manual.StatusPending,
		})
	}
	if err := s.items.CreateItems(r.Context(), items); err != nil {
		s.logger.Error("create items failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create work items")
		return
	}

	// Resolution starts right away; a full queue is recoverable through the
	// explicit resolve endpoint.
	s.progress.SetProject(projectID, jobs.ProjectProgress{Message: "queued"})
	task := jobs.Task{Kind: jobs.TaskResolve, ProjectID: projectID, ProjectName: name}
	if err := s.queue.Enqueue(r.Context(), task); err != nil {
		s.logger.Warn("resolve enqueue failed", zap.String("project_id", projectID), zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, createProjectResponse{
		ProjectID: projectID,
		Name:      name,
		ItemCount: len(items),
		Items:     items,
	})
}

func (s *Server) startResolve(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	project, err := s.projects.GetProject(r.Context(), projectID)
	if err != nil {
		s.notFoundOr500(w, err, "project lookup failed")
		return
	}

	s.progress.SetProject(projectID, jobs.ProjectProgress{Message: "queued"})
	task := jobs.Task{Kind: jobs.TaskResolve, ProjectID: project.ID, ProjectName: project.Name}
	if err := s.queue.Enqueue(r.Context(), task); err != nil {
		writeError(w, http.StatusServiceUnavailable, "job queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "project_id": project.ID})
}

func (s *Server) projectProgress(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	progress, err := s.progress.Project(projectID)
	if err == nil {
		writeJSON(w, http.StatusOK, progress)
		return
	}
	// A project with no run yet is not an error.
	if _, lookupErr := s.projects.GetProject(r.Context(), projectID); lookupErr != nil {
		s.notFoundOr500(w, lookupErr, "project lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, jobs.ProjectProgress{Message: "not started"})
}

// retryItem re-runs the cache pass for one item synchronously and returns the
// settled item.
func (s *Server) retryItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	item, err := s.runner.ProcessItem(r.Context(), itemID)
	if err != nil {
		s.notFoundOr500(w, err, "item retry failed")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type patchItemRequest struct {
	DocumentURL  string `json:"document_url"`
	Notes        string `json:"notes"`
	WarrantyText string `json:"warranty_text"`
}

func (s *Server) patchItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	var req patchItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DocumentURL == "" {
		writeError(w, http.StatusBadRequest, "document_url is required")
		return
	}

	item, err := s.items.GetItem(r.Context(), itemID)
	if err != nil {
		s.notFoundOr500(w, err, "item lookup failed")
		return
	}

	item.Status = manual.StatusManualEntry
	item.DocumentURL = req.DocumentURL
	item.Notes = req.Notes
	item.CacheModel = item.Identity.Model
	if err := s.items.UpdateItem(r.Context(), item); err != nil {
		s.logger.Error("item update failed", zap.String("item_id", itemID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not update item")
		return
	}

	// Fold the operator-supplied link into the cache off the request path so
	// later projects hit it.
	go s.absorbManualEntry(item, req.DocumentURL, req.WarrantyText)

	writeJSON(w, http.StatusOK, item)
}

// absorbManualEntry downloads an operator-supplied document link, stores the
// bytes when they validate, and upserts the cache record for the model. When
// the link is an HTML page rather than the document itself, the page is
// scanned for document links and each one is tried in turn.
func (s *Server) absorbManualEntry(item manual.WorkItem, url, warranty string) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	record := manual.CacheRecord{
		Model:        item.Identity.Model,
		Brand:        item.Identity.Brand,
		Name:         item.Identity.Name,
		DocumentURL:  url,
		WarrantyText: warranty,
	}
	if record.WarrantyText == "" {
		if existing, err := s.cache.GetByModel(ctx, item.Identity.Model); err == nil {
			record.WarrantyText = existing.WarrantyText
		}
	}

	if body, ok := s.fetchDocument(ctx, url); ok {
		ref, err := s.blob.PutObject(ctx, cache.DocumentPath(item.Identity.Model), "application/pdf", body)
		if err != nil {
			s.logger.Warn("manual entry store failed",
				zap.String("model", item.Identity.Model), zap.Error(err))
		} else {
			record.StorageRef = ref
		}
	}

	now := s.clock.Now()
	record.LastVerifiedAt = &now
	if _, err := s.cache.Upsert(ctx, record); err != nil {
		s.logger.Warn("manual entry cache upsert failed",
			zap.String("model", item.Identity.Model), zap.Error(err))
	}
}

// fetchDocument tries the URL directly, then falls back to scanning it as a
// page. The scan runs with an empty model token so every document link on the
// page is a candidate.
func (s *Server) fetchDocument(ctx context.Context, url string) ([]byte, bool) {
	if s.downloader == nil {
		return nil, false
	}
	if body, ok := s.downloader.DownloadPDF(ctx, url); ok {
		return body, true
	}
	if s.scanner == nil {
		return nil, false
	}
	for _, link := range s.scanner.Scan(ctx, url, "") {
		if body, ok := s.downloader.DownloadPDF(ctx, link); ok {
			return body, true
		}
	}
	return nil, false
}

type productResponse struct {
	Model          string     `json:"model"`
	Brand          string     `json:"brand"`
	Name           string     `json:"name"`
	DocumentURL    string     `json:"document_url,omitempty"`
	WarrantyText   string     `json:"warranty_text,omitempty"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	records, err := s.cache.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.logger.Error("product list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list products")
		return
	}

	products := make([]productResponse, 0, len(records))
	for _, record := range records {
		link := record.DocumentURL
		if record.StorageRef != "" {
			if signed, err := s.blob.SignedURL(r.Context(), record.StorageRef, s.cfg.SignedURLTTL); err == nil {
				link = signed
			}
		}
		products = append(products, productResponse{
			Model:          record.Model,
			Brand:          record.Brand,
			Name:           record.Name,
			DocumentURL:    link,
			WarrantyText:   record.WarrantyText,
			LastVerifiedAt: record.LastVerifiedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) startArchive(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	project, err := s.projects.GetProject(r.Context(), projectID)
	if err != nil {
		s.notFoundOr500(w, err, "project lookup failed")
		return
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "id generation failed")
		return
	}
	s.progress.SetArchive(jobID, jobs.ArchiveProgress{Status: jobs.ArchiveBuilding, Message: "queued"})
	task := jobs.Task{Kind: jobs.TaskArchive, JobID: jobID, ProjectID: project.ID, ProjectName: project.Name}
	if err := s.queue.Enqueue(r.Context(), task); err != nil {
		writeError(w, http.StatusServiceUnavailable, "job queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) archiveProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	progress, err := s.progress.Archive(jobID)
	if err != nil {
		s.notFoundOr500(w, err, "archive lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (s *Server) archiveFile(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	progress, err := s.progress.Archive(jobID)
	if err != nil {
		s.notFoundOr500(w, err, "archive lookup failed")
		return
	}
	if progress.Status != jobs.ArchiveDone {
		writeError(w, http.StatusConflict, fmt.Sprintf("archive is %s", progress.Status))
		return
	}

	fileName, data, err := s.progress.TakeArchiveFile(jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "archive no longer available")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) notFoundOr500(w http.ResponseWriter, err error, logMsg string) {
	if errors.Is(err, manual.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error(logMsg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
