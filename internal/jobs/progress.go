package jobs

import (
	"sync"

	"github.com/ati-tools/manualfinder/internal/manual"
)

// ProjectProgress is the live state of a resolution run, polled by clients.
type ProjectProgress struct {
	Message string `json:"message"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Done    bool   `json:"done"`
	Err     string `json:"error,omitempty"`
}

// ArchiveStatus enumerates the states of an archive build.
type ArchiveStatus string

// Archive build states.
const (
	ArchiveBuilding ArchiveStatus = "building"
	ArchiveDone     ArchiveStatus = "done"
	ArchiveError    ArchiveStatus = "error"
)

// ArchiveProgress is the live state of an archive job.
type ArchiveProgress struct {
	Status   ArchiveStatus `json:"status"`
	Message  string        `json:"message"`
	Current  int           `json:"current"`
	Total    int           `json:"total"`
	FileName string        `json:"file_name,omitempty"`
}

type archiveEntry struct {
	progress ArchiveProgress
	file     []byte
}

// ProgressStore tracks in-flight job state in memory. Finished archives are
// held until fetched exactly once.
type ProgressStore struct {
	mu       sync.RWMutex
	projects map[string]ProjectProgress
	archives map[string]*archiveEntry
}

// NewProgressStore builds an empty store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		projects: make(map[string]ProjectProgress),
		archives: make(map[string]*archiveEntry),
	}
}

// SetProject replaces the progress snapshot for a project run.
func (s *ProgressStore) SetProject(projectID string, p ProjectProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[projectID] = p
}

// Project returns the progress snapshot for a project run.
func (s *ProgressStore) Project(projectID string) (ProjectProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return ProjectProgress{}, manual.ErrNotFound
	}
	return p, nil
}

// SetArchive replaces the progress snapshot for an archive job, keeping any
// stored file.
func (s *ProgressStore) SetArchive(jobID string, p ArchiveProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.archives[jobID]
	if !ok {
		entry = &archiveEntry{}
		s.archives[jobID] = entry
	}
	entry.progress = p
}

// Archive returns the progress snapshot for an archive job.
func (s *ProgressStore) Archive(jobID string) (ArchiveProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.archives[jobID]
	if !ok {
		return ArchiveProgress{}, manual.ErrNotFound
	}
	return entry.progress, nil
}

// PutArchiveFile attaches the finished file to an archive job and marks it
// done.
func (s *ProgressStore) PutArchiveFile(jobID, fileName string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.archives[jobID]
	if !ok {
		entry = &archiveEntry{}
		s.archives[jobID] = entry
	}
	entry.file = data
	entry.progress.Status = ArchiveDone
	entry.progress.FileName = fileName
	entry.progress.Message = "archive ready"
}

// TakeArchiveFile hands out the finished archive exactly once: the job entry
// is deleted on success, so a second fetch reports not found.
func (s *ProgressStore) TakeArchiveFile(jobID string) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.archives[jobID]
	if !ok || entry.progress.Status != ArchiveDone || entry.file == nil {
		return "", nil, manual.ErrNotFound
	}
	delete(s.archives, jobID)
	return entry.progress.FileName, entry.file, nil
}
