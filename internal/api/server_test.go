package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ati-tools/manualfinder/internal/jobs"
	"github.com/ati-tools/manualfinder/internal/manual"
	memstore "github.com/ati-tools/manualfinder/internal/store/memory"
	memblob "github.com/ati-tools/manualfinder/internal/storage/memory"
)

type fakeParser struct {
	identities []manual.ProductIdentity
	err        error
}

func (p *fakeParser) Parse(context.Context, []byte) ([]manual.ProductIdentity, error) {
	return p.identities, p.err
}

type fakeProcessor struct {
	mu    sync.Mutex
	calls int
}

func (p *fakeProcessor) Process(_ context.Context, item manual.WorkItem) (manual.WorkItem, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	item.Status = manual.StatusFound
	item.DocumentURL = "https://example.com/retried.pdf"
	return item, nil
}

type fakeDownloader struct {
	body  []byte
	ok    bool
	byURL map[string][]byte
}

func (d *fakeDownloader) DownloadPDF(_ context.Context, url string) ([]byte, bool) {
	if d.byURL != nil {
		body, ok := d.byURL[url]
		return body, ok
	}
	return d.body, d.ok
}

type fakeScanner struct {
	mu     sync.Mutex
	links  []string
	pages  []string
	tokens []string
}

func (s *fakeScanner) Scan(_ context.Context, pageURL, modelToken string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, pageURL)
	s.tokens = append(s.tokens, modelToken)
	return s.links
}

func (s *fakeScanner) scanned() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pages...), append([]string(nil), s.tokens...)
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

type testEnv struct {
	server     *Server
	projects   *memstore.ProjectStore
	items      *memstore.ItemStore
	cache      *memstore.CacheStore
	blob       *memblob.BlobStore
	parser     *fakeParser
	processor  *fakeProcessor
	downloader *fakeDownloader
	scanner    *fakeScanner
	progress   *jobs.ProgressStore
	queue      *jobs.Queue
	clock      *fakeClock
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		projects:   memstore.NewProjectStore(),
		items:      memstore.NewItemStore(),
		cache:      memstore.NewCacheStore(),
		blob:       memblob.New(),
		parser:     &fakeParser{},
		processor:  &fakeProcessor{},
		downloader: &fakeDownloader{body: []byte("%PDF-1.7 data"), ok: true},
		scanner:    &fakeScanner{},
		progress:   jobs.NewProgressStore(),
		queue:      jobs.NewQueue(8),
		clock:      &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	runner := jobs.NewRunner(env.items, env.processor, env.progress, nil, "", zap.NewNop())
	env.server = NewServer(Deps{
		Projects:   env.projects,
		Items:      env.items,
		Cache:      env.cache,
		Blob:       env.blob,
		Parser:     env.parser,
		Progress:   env.progress,
		Queue:      env.queue,
		Runner:     runner,
		Downloader: env.downloader,
		Scanner:    env.scanner,
		IDGen:      &seqIDGen{},
		Clock:      env.clock,
		Logger:     zap.NewNop(),
	}, cfg)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func contractUpload(t *testing.T, projectName string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if projectName != "" {
		require.NoError(t, mw.WriteField("name", projectName))
	}
	fw, err := mw.CreateFormFile("contract", "contract.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.7 contract"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func seedProject(t *testing.T, env *testEnv, projectID string, items ...manual.WorkItem) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.projects.CreateProject(ctx, manual.Project{ID: projectID, Name: "HQ refresh"}))
	if len(items) > 0 {
		require.NoError(t, env.items.CreateItems(ctx, items))
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateProject(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.parser.identities = []manual.ProductIdentity{
		manual.NewIdentity("Crestron", "DM-MD-8X8", "Matrix Switcher"),
		manual.NewIdentity("Sony", "VPL-PHZ61", "Projector"),
	}

	body, contentType := contractUpload(t, "HQ refresh")
	rec := env.do(t, http.MethodPost, "/api/projects", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createProjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "HQ refresh", resp.Name)
	require.Equal(t, 2, resp.ItemCount)
	require.Len(t, resp.Items, 2)
	require.Equal(t, manual.StatusPending, resp.Items[0].Status)

	project, err := env.projects.GetProject(context.Background(), resp.ProjectID)
	require.NoError(t, err)
	require.Equal(t, env.clock.now, project.CreatedAt)

	stored, err := env.items.ListByProject(context.Background(), resp.ProjectID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "DM-MD-8X8", stored[0].Identity.Model)

	// the upload kicks off resolution immediately
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, err := env.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskResolve, task.Kind)
	require.Equal(t, resp.ProjectID, task.ProjectID)

	progress, err := env.progress.Project(resp.ProjectID)
	require.NoError(t, err)
	require.Equal(t, "queued", progress.Message)
}

func TestCreateProject_NameDefaultsToFileName(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.parser.identities = []manual.ProductIdentity{manual.NewIdentity("Sony", "X100", "")}

	body, contentType := contractUpload(t, "")
	rec := env.do(t, http.MethodPost, "/api/projects", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createProjectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "contract.pdf", resp.Name)
}

func TestCreateProject_BadRequests(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodPost, "/api/projects", bytes.NewBufferString("not multipart"), "text/plain")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	env.parser.err = fmt.Errorf("model refused")
	body, contentType := contractUpload(t, "x")
	rec = env.do(t, http.MethodPost, "/api/projects", body, contentType)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	env.parser.err = nil
	env.parser.identities = nil
	body, contentType = contractUpload(t, "x")
	rec = env.do(t, http.MethodPost, "/api/projects", body, contentType)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestStartResolve(t *testing.T) {
	env := newTestEnv(t, Config{})
	seedProject(t, env, "p1")

	rec := env.do(t, http.MethodPost, "/api/projects/p1/resolve", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, err := env.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskResolve, task.Kind)
	require.Equal(t, "p1", task.ProjectID)
	require.Equal(t, "HQ refresh", task.ProjectName)

	progress, err := env.progress.Project("p1")
	require.NoError(t, err)
	require.Equal(t, "queued", progress.Message)
}

func TestStartResolve_UnknownProject(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodPost, "/api/projects/missing/resolve", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProjectProgress(t *testing.T) {
	env := newTestEnv(t, Config{})
	seedProject(t, env, "p1")
	env.progress.SetProject("p1", jobs.ProjectProgress{Message: "Searching 1/3: Sony X100", Current: 1, Total: 3})

	rec := env.do(t, http.MethodGet, "/api/projects/p1/progress", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var progress jobs.ProjectProgress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &progress))
	require.Equal(t, 3, progress.Total)
	require.Contains(t, progress.Message, "Sony X100")
}

func TestProjectProgress_NotStarted(t *testing.T) {
	env := newTestEnv(t, Config{})
	seedProject(t, env, "p1")

	rec := env.do(t, http.MethodGet, "/api/projects/p1/progress", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "not started")

	rec = env.do(t, http.MethodGet, "/api/projects/ghost/progress", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetryItem(t *testing.T) {
	env := newTestEnv(t, Config{})
	seedProject(t, env, "p1", manual.WorkItem{
		ID:        "i1",
		ProjectID: "p1",
		Identity:  manual.NewIdentity("Sony", "X100", ""),
		Status:    manual.StatusNotFound,
	})

	rec := env.do(t, http.MethodPost, "/api/items/i1/retry", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var returned manual.WorkItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &returned))
	require.Equal(t, manual.StatusFound, returned.Status)

	item, err := env.items.GetItem(context.Background(), "i1")
	require.NoError(t, err)
	require.Equal(t, manual.StatusFound, item.Status)
	require.Equal(t, "https://example.com/retried.pdf", item.DocumentURL)
}

func TestRetryItem_Unknown(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodPost, "/api/items/ghost/retry", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchItem_ManualEntry(t *testing.T) {
	env := newTestEnv(t, Config{})
	seedProject(t, env, "p1", manual.WorkItem{
		ID:        "i1",
		ProjectID: "p1",
		Identity:  manual.NewIdentity("Sony", "X100", "Display"),
		Status:    manual.StatusNotFound,
	})
	// Record from an earlier failed pass; its warranty survives the patch.
	_, err := env.cache.Upsert(context.Background(), manual.CacheRecord{
		Model:        "X100",
		Brand:        "Sony",
		WarrantyText: "3 years",
	})
	require.NoError(t, err)

	body := bytes.NewBufferString(`{"document_url":"https://sony.com/x100.pdf","notes":"vendor portal"}`)
	rec := env.do(t, http.MethodPatch, "/api/items/i1", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	item, err := env.items.GetItem(context.Background(), "i1")
	require.NoError(t, err)
	require.Equal(t, manual.StatusManualEntry, item.Status)
	require.Equal(t, "https://sony.com/x100.pdf", item.DocumentURL)
	require.Equal(t, "vendor portal", item.Notes)

	require.Eventually(t, func() bool {
		record, err := env.cache.GetByModel(context.Background(), "X100")
		return err == nil && record.StorageRef != ""
	}, 2*time.Second, 10*time.Millisecond)

	record, err := env.cache.GetByModel(context.Background(), "X100")
	require.NoError(t, err)
	require.Equal(t, "3 years", record.WarrantyText)
	require.Equal(t, "https://sony.com/x100.pdf", record.DocumentURL)
	require.NotNil(t, record.LastVerifiedAt)
	stored, err := env.blob.GetObject(context.Background(), record.StorageRef)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.7 data"), stored)
}

func TestPatchItem_PageLinkScanned(t *testing.T) {
	env := newTestEnv(t, Config{})
	// The operator pasted a support page, not the document itself. The
	// direct download fails and the embedded link is picked up instead.
	env.downloader.byURL = map[string][]byte{
		"https://sony.com/files/x100-manual.pdf": []byte("%PDF-1.7 embedded"),
	}
	env.scanner.links = []string{"https://sony.com/files/x100-manual.pdf"}
	seedProject(t, env, "p1", manual.WorkItem{
		ID:       "i1",
		Identity: manual.NewIdentity("Sony", "X100", ""),
	})

	body := bytes.NewBufferString(`{"document_url":"https://sony.com/support/x100"}`)
	rec := env.do(t, http.MethodPatch, "/api/items/i1", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		record, err := env.cache.GetByModel(context.Background(), "X100")
		return err == nil && record.StorageRef != ""
	}, 2*time.Second, 10*time.Millisecond)

	record, err := env.cache.GetByModel(context.Background(), "X100")
	require.NoError(t, err)
	require.Equal(t, "https://sony.com/support/x100", record.DocumentURL)
	stored, err := env.blob.GetObject(context.Background(), record.StorageRef)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.7 embedded"), stored)

	pages, tokens := env.scanner.scanned()
	require.Equal(t, []string{"https://sony.com/support/x100"}, pages)
	require.Equal(t, []string{""}, tokens)
}

func TestPatchItem_DeadLinkStillCached(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.downloader.ok = false
	seedProject(t, env, "p1", manual.WorkItem{
		ID:       "i1",
		Identity: manual.NewIdentity("Sony", "X100", ""),
	})

	body := bytes.NewBufferString(`{"document_url":"https://sony.com/gone.pdf","warranty_text":"5 years parts"}`)
	rec := env.do(t, http.MethodPatch, "/api/items/i1", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		record, err := env.cache.GetByModel(context.Background(), "X100")
		return err == nil && record.DocumentURL == "https://sony.com/gone.pdf" && record.StorageRef == ""
	}, 2*time.Second, 10*time.Millisecond)

	record, err := env.cache.GetByModel(context.Background(), "X100")
	require.NoError(t, err)
	require.Equal(t, "5 years parts", record.WarrantyText)
}

func TestPatchItem_Validation(t *testing.T) {
	env := newTestEnv(t, Config{})

	rec := env.do(t, http.MethodPatch, "/api/items/i1", bytes.NewBufferString("{"), "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/items/i1", bytes.NewBufferString(`{"notes":"no url"}`), "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/items/ghost", bytes.NewBufferString(`{"document_url":"https://x.test/a.pdf"}`), "application/json")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProducts(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx := context.Background()
	ref, err := env.blob.PutObject(ctx, "manuals/X100.pdf", "application/pdf", []byte("%PDF-1.7"))
	require.NoError(t, err)
	now := time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)
	_, err = env.cache.Upsert(ctx, manual.CacheRecord{
		Model: "X100", Brand: "Sony", Name: "Display",
		StorageRef: ref, WarrantyText: "3 years", LastVerifiedAt: &now,
	})
	require.NoError(t, err)
	_, err = env.cache.Upsert(ctx, manual.CacheRecord{
		Model: "AVR-200", Brand: "Denon", DocumentURL: "https://denon.com/avr200.pdf",
	})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/products", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Products []productResponse `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Products, 2)
	require.Equal(t, "AVR-200", resp.Products[0].Model)
	require.Equal(t, "https://denon.com/avr200.pdf", resp.Products[0].DocumentURL)
	require.Equal(t, "X100", resp.Products[1].Model)
	require.True(t, strings.HasPrefix(resp.Products[1].DocumentURL, "memory://"))
	require.Equal(t, "3 years", resp.Products[1].WarrantyText)

	rec = env.do(t, http.MethodGet, "/api/products?search=denon", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Products, 1)
	require.Equal(t, "AVR-200", resp.Products[0].Model)
}

func TestStartArchive(t *testing.T) {
	env := newTestEnv(t, Config{})
	seedProject(t, env, "p1")

	rec := env.do(t, http.MethodPost, "/api/projects/p1/archive", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["job_id"])

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, err := env.queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskArchive, task.Kind)
	require.Equal(t, resp["job_id"], task.JobID)

	progress, err := env.progress.Archive(resp["job_id"])
	require.NoError(t, err)
	require.Equal(t, jobs.ArchiveBuilding, progress.Status)
}

func TestArchiveProgress_Unknown(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/api/archives/ghost/progress", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArchiveFile(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.progress.SetArchive("j1", jobs.ArchiveProgress{Status: jobs.ArchiveBuilding})

	rec := env.do(t, http.MethodGet, "/api/archives/j1/file", nil, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	env.progress.PutArchiveFile("j1", "HQ_refresh_manuals.zip", []byte("zip-bytes"))
	rec = env.do(t, http.MethodGet, "/api/archives/j1/file", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "HQ_refresh_manuals.zip")
	require.Equal(t, "zip-bytes", rec.Body.String())

	// Consume-once: the archive is gone after the first download.
	rec = env.do(t, http.MethodGet, "/api/archives/j1/file", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	env := newTestEnv(t, Config{AuthEnabled: true, APIKey: "sekrit"})

	rec := env.do(t, http.MethodGet, "/api/products", nil, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("X-API-Key", "sekrit")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/products?api_key=sekrit", nil)
	w = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Health endpoints stay open.
	rec = env.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, Config{})
	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
