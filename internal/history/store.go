// Package history maintains the JSON-file ledger of completed generations
// and derives the day-grouped library views from it.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
)

// maxRecords caps the ledger; the oldest entries are silently dropped.
const maxRecords = 1000

type ledger struct {
	Items []domain.HistoryRecord `json:"items"`
}

// Store is the append-only ledger of generation records, newest first. Every
// read-modify-write runs under one mutex and persists atomically, so a crash
// mid-write never leaves a truncated ledger behind. It is a single-process
// store by design; there is no cross-process coordination.
type Store struct {
	path   string
	mu     sync.Mutex
	now    func() time.Time
	logger infra.Logger
}

// NewStore creates a ledger store backed by the JSON document at path.
func NewStore(path string, logger infra.Logger) *Store {
	return &Store{path: path, now: time.Now, logger: logger}
}

// Append prepends a record for one produced artifact, truncates the ledger to
// its cap and persists. The generated record id is returned.
func (s *Store) Append(recordType, prompt, filename string, params map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return "", err
	}

	if params == nil {
		params = map[string]any{}
	}
	record := domain.HistoryRecord{
		ID:        uuid.NewString(),
		Type:      recordType,
		Prompt:    prompt,
		Filename:  filename,
		CreatedAt: s.now(),
		Params:    params,
	}

	items = append([]domain.HistoryRecord{record}, items...)
	if len(items) > maxRecords {
		items = items[:maxRecords]
	}

	if err := s.persist(items); err != nil {
		return "", err
	}
	s.logger.Info().Str("record_id", record.ID).Str("type", recordType).Msg("history: record added")
	return record.ID, nil
}

// List returns one page of records, optionally filtered by type, plus the
// filtered total.
func (s *Store) List(typeFilter string, limit, offset int) ([]domain.HistoryRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return nil, 0, err
	}

	if typeFilter != "" {
		filtered := items[:0]
		for _, item := range items {
			if item.Type == typeFilter {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	total := len(items)

	if offset < 0 {
		offset = 0
	}
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	out := make([]domain.HistoryRecord, len(items))
	copy(out, items)
	return out, total, nil
}

// Get returns the record with the given id, or domain.ErrNotFound.
func (s *Store) Get(id string) (*domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == id {
			record := items[i]
			return &record, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Delete removes the first record with a matching id and reports whether one
// was found.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return false, err
	}
	for i := range items {
		if items[i].ID == id {
			items = append(items[:i], items[i+1:]...)
			if err := s.persist(items); err != nil {
				return false, err
			}
			s.logger.Info().Str("record_id", id).Msg("history: record deleted")
			return true, nil
		}
	}
	return false, nil
}

// Clear removes every record, or every record of one type, and returns how
// many were dropped.
func (s *Store) Clear(typeFilter string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return 0, err
	}
	before := len(items)

	if typeFilter == "" {
		items = nil
	} else {
		kept := items[:0]
		for _, item := range items {
			if item.Type != typeFilter {
				kept = append(kept, item)
			}
		}
		items = kept
	}

	if err := s.persist(items); err != nil {
		return 0, err
	}
	deleted := before - len(items)
	s.logger.Info().Int("deleted", deleted).Str("type", typeFilter).Msg("history: records cleared")
	return deleted, nil
}

// load reads the ledger; a missing file is an empty ledger.
func (s *Store) load() ([]domain.HistoryRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: read ledger: %w", err)
	}
	var doc ledger
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("history: parse ledger: %w", err)
	}
	return doc.Items, nil
}

// persist rewrites the whole ledger atomically: temp file in the same
// directory, then rename over the target.
func (s *Store) persist(items []domain.HistoryRecord) error {
	if items == nil {
		items = []domain.HistoryRecord{}
	}
	data, err := json.MarshalIndent(ledger{Items: items}, "", "  ")
	if err != nil {
		return fmt.Errorf("history: encode ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("history: ensure data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("history: create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("history: write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("history: close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("history: replace ledger: %w", err)
	}
	return nil
}
