package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"lecture-rag/internal/helper"
	"lecture-rag/internal/models"
)

// Manager maps subject names to their stores and is the only place subjects are created or removed.
// The in-memory map and the directories under basePath are kept in step by every mutation.
type Manager struct {
	basePath string
	opts     Options

	mu         sync.RWMutex
	stores     map[string]*SubjectStore
	order      []string
	manifests  map[string][]string
	loadErrors []error
	// skipped holds subjects whose directory exists but failed to load; they refuse updates until deleted.
	skipped map[string]*LoadError
}

// NewManager scans basePath and loads every persisted subject. A subject that fails to load is
// logged and skipped; its error is kept in LoadErrors.
func NewManager(basePath string, opts Options) (*Manager, error) {
	if err := helper.CreateFolder(basePath); err != nil {
		return nil, err
	}
	m := &Manager{
		basePath:  basePath,
		opts:      opts,
		stores:    make(map[string]*SubjectStore),
		manifests: make(map[string][]string),
		skipped:   make(map[string]*LoadError),
	}

	entries, err := os.ReadDir(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", basePath, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		dir := filepath.Join(basePath, name)
		store, err := LoadSubjectStore(name, dir, opts)
		if err != nil {
			lerr := &LoadError{Subject: name, Err: err}
			log.Error().Err(err).Str("subject", name).Msg("Skipping subject that failed to load")
			m.loadErrors = append(m.loadErrors, lerr)
			m.skipped[name] = lerr
			continue
		}
		files, err := readManifest(dir)
		if err != nil {
			log.Warn().Err(err).Str("subject", name).Msg("Could not read manifest")
		}
		m.stores[name] = store
		m.manifests[name] = files
		m.order = append(m.order, name)
		log.Info().Str("subject", name).Int("chunks", store.DocumentCount()).Int("files", len(files)).Msg("Loaded subject")
	}
	return m, nil
}

// LoadErrors returns the subjects skipped at startup.
func (m *Manager) LoadErrors() []error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]error(nil), m.loadErrors...)
}

// ValidateSubject rejects names that are blank or not a single directory name.
// Names are otherwise used verbatim.
func ValidateSubject(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: name is blank", ErrInvalidSubject)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidSubject, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidSubject, name)
	}
	return nil
}

// ListSubjects returns the known subjects in discovery order, newly created ones last.
func (m *Manager) ListSubjects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Get returns the store for subject. It never creates one.
func (m *Manager) Get(subject string) (*SubjectStore, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stores[subject]
	return s, ok
}

// CreateOrUpdate merges chunks into subject, creating the subject on first use, and records
// sourceFile in the subject manifest when given. It returns the number of chunks added.
func (m *Manager) CreateOrUpdate(ctx context.Context, subject string, chunks []models.Chunk, sourceFile string) (int, error) {
	if err := ValidateSubject(subject); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, ErrNoChunks
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if lerr, ok := m.skipped[subject]; ok {
		return 0, fmt.Errorf("subject %q must be deleted before it can be updated: %w", subject, lerr)
	}

	dir := filepath.Join(m.basePath, subject)
	store, exists := m.stores[subject]
	createdDir := false
	if !exists {
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			createdDir = true
		}
		var err error
		store, err = NewSubjectStore(subject, dir, m.opts)
		if err != nil {
			return 0, err
		}
	}

	added, err := store.CreateOrMerge(ctx, chunks)
	if err != nil {
		if createdDir {
			// nothing was registered; drop whatever partial state reached disk
			_ = os.RemoveAll(dir)
		}
		return 0, fmt.Errorf("failed to update subject %q: %w", subject, err)
	}

	if !exists {
		m.stores[subject] = store
		m.order = append(m.order, subject)
		log.Info().Str("subject", subject).Msg("Created subject")
	}

	if sourceFile != "" {
		name, written, err := appendManifest(dir, sourceFile, m.manifests[subject])
		if err != nil {
			log.Warn().Err(err).Str("subject", subject).Str("file", sourceFile).Msg("Could not record uploaded file")
		} else if written {
			m.manifests[subject] = append(m.manifests[subject], name)
		}
	}
	return added, nil
}

// Delete removes subject from memory and deletes its directory. Unknown subjects are a no-op,
// though a leftover directory of the same name is still removed.
func (m *Manager) Delete(subject string) error {
	if err := ValidateSubject(subject); err != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(m.basePath, subject)); err != nil {
		return fmt.Errorf("failed to remove subject %q: %w", subject, err)
	}
	if lerr, ok := m.skipped[subject]; ok {
		delete(m.skipped, subject)
		m.loadErrors = lo.Without(m.loadErrors, error(lerr))
		log.Info().Str("subject", subject).Msg("Deleted subject that failed to load")
	}
	if _, ok := m.stores[subject]; !ok {
		return nil
	}
	delete(m.stores, subject)
	delete(m.manifests, subject)
	m.order = lo.Without(m.order, subject)
	log.Info().Str("subject", subject).Msg("Deleted subject")
	return nil
}

// SubjectInfo reports status and counts. Unknown subjects are "uninitialized" with zero counts.
func (m *Manager) SubjectInfo(subject string) models.SubjectInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	store, ok := m.stores[subject]
	if !ok {
		return models.SubjectInfo{Name: subject, Status: models.StatusUninitialized}
	}
	return models.SubjectInfo{
		Name:              subject,
		Status:            models.StatusActive,
		DocumentCount:     store.DocumentCount(),
		UploadedFileCount: len(m.manifests[subject]),
	}
}

// Search runs a similarity search in subject. Unknown subjects yield no results.
func (m *Manager) Search(ctx context.Context, subject, query string, k int) ([]models.SearchResult, error) {
	store, ok := m.Get(subject)
	if !ok {
		return nil, nil
	}
	return store.SimilaritySearch(ctx, query, k)
}

// Sample returns up to n random chunks of subject. Unknown subjects yield no results.
func (m *Manager) Sample(ctx context.Context, subject string, n int) ([]models.SearchResult, error) {
	store, ok := m.Get(subject)
	if !ok {
		return nil, nil
	}
	return store.Sample(ctx, n)
}

// HasUploaded reports whether fileName is already in subject's manifest.
func (m *Manager) HasUploaded(subject, fileName string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Contains(m.manifests[subject], manifestName(fileName))
}

// UploadedFiles returns subject's manifest in upload order.
func (m *Manager) UploadedFiles(subject string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.manifests[subject]...)
}

// IsNotFound reports whether err means the subject does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSubjectNotFound)
}
