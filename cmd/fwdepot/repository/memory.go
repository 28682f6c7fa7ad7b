package repository

import (
	"context"
	"sync"

	"github.com/fleetware/fwdepot/cmd/fwdepot/models"
)

// MemoryFirmwareStore keeps firmware records in memory only.
// Used by unit tests and local development without Postgres.
type MemoryFirmwareStore struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
}

type memoryRecord struct {
	fileURL *string
	deltas  []byte
}

// NewMemoryFirmwareStore creates an empty in-memory store
func NewMemoryFirmwareStore() *MemoryFirmwareStore {
	return &MemoryFirmwareStore{records: make(map[string]*memoryRecord)}
}

// Create inserts a new firmware record
func (s *MemoryFirmwareStore) Create(ctx context.Context, fw *models.Firmware) error {
	deltas, err := fw.Deltas.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[fw.FwID] = &memoryRecord{fileURL: fw.FileURL, deltas: deltas}
	return nil
}

// Get retrieves a firmware record by identity
func (s *MemoryFirmwareStore) Get(ctx context.Context, fwID string) (*models.Firmware, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[fwID]
	if !ok {
		return nil, models.ErrNotFound
	}

	deltas, err := models.DecodeDeltaHistory(rec.deltas)
	if err != nil {
		return nil, err
	}

	fw := &models.Firmware{FwID: fwID, Deltas: deltas}
	if rec.fileURL != nil {
		url := *rec.fileURL
		fw.FileURL = &url
	}
	return fw, nil
}

// Exists reports whether a firmware record exists for the identity
func (s *MemoryFirmwareStore) Exists(ctx context.Context, fwID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[fwID]
	return ok, nil
}

// SetMainArtifact rewrites the record's main artifact URL
func (s *MemoryFirmwareStore) SetMainArtifact(ctx context.Context, fwID, fileURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fwID]
	if !ok {
		return models.ErrNotFound
	}
	rec.fileURL = &fileURL
	return nil
}

// GetDeltaHistory returns the record's serialized delta history
func (s *MemoryFirmwareStore) GetDeltaHistory(ctx context.Context, fwID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[fwID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return rec.deltas, nil
}

// SetDeltaHistory rewrites the record's serialized delta history
func (s *MemoryFirmwareStore) SetDeltaHistory(ctx context.Context, fwID string, deltas []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[fwID]
	if !ok {
		return models.ErrNotFound
	}
	rec.deltas = deltas
	return nil
}
