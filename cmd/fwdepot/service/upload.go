package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fleetware/fwdepot/cmd/fwdepot/models"
	"github.com/fleetware/fwdepot/common/lock"
	"github.com/fleetware/fwdepot/common/logger"
	"github.com/fleetware/fwdepot/common/storage"
)

// VersionKind classifies an upload as a main or delta artifact
type VersionKind string

const (
	VersionMain  VersionKind = "main"
	VersionDelta VersionKind = "delta"
)

// ParseVersionKind interprets the URL's version-status segment
func ParseVersionKind(s string) (VersionKind, bool) {
	switch VersionKind(s) {
	case VersionMain:
		return VersionMain, true
	case VersionDelta:
		return VersionDelta, true
	}
	return "", false
}

// FirmwareStore is the record-store surface the upload pipeline consumes.
// Implemented by repository.FirmwareRepository (Postgres) and
// repository.MemoryFirmwareStore (tests).
type FirmwareStore interface {
	Exists(ctx context.Context, fwID string) (bool, error)
	SetMainArtifact(ctx context.Context, fwID, fileURL string) error
	GetDeltaHistory(ctx context.Context, fwID string) ([]byte, error)
	SetDeltaHistory(ctx context.Context, fwID string, deltas []byte) error
}

// UploadService drives the upload admission and delta-versioning pipeline:
// streaming multipart ingest, admission filtering, file placement, and the
// record-store update that registers the artifact.
type UploadService struct {
	store    FirmwareStore
	paths    *storage.Resolver
	locks    lock.Locker
	log      *logger.Logger
	maxBytes int64
}

// NewUploadService creates a new upload service
func NewUploadService(store FirmwareStore, paths *storage.Resolver, locks lock.Locker, log *logger.Logger, maxBytes int64) *UploadService {
	return &UploadService{
		store:    store,
		paths:    paths,
		locks:    locks,
		log:      log,
		maxBytes: maxBytes,
	}
}

// UploadResult describes one accepted artifact
type UploadResult struct {
	FwID         string
	DeltaVersion string
	Filename     string
	Dir          string
	FileURL      string
	Size         int64
}

// Upload runs the pipeline for one request body. Request-level header
// preconditions (multipart content type, declared content length) are the
// handler's job; everything from body parse to persist happens here.
//
// The file streams to a spool file first and moves to its destination only
// after the whole body is parsed and admission passes. Spooling trades some
// wasted I/O on rejected uploads for independence from field ordering: the
// firmware identity may arrive after the file part.
func (s *UploadService) Upload(ctx context.Context, kind VersionKind, r *http.Request) (*UploadResult, error) {
	ing, err := s.ingest(ctx, r)
	defer ing.discard()
	if err != nil {
		return nil, err
	}

	if !ing.accepted {
		return nil, models.ErrEmptyUpload
	}

	fwID := ing.fields[fieldFwID]
	deltaVersion := ing.fields[fieldDeltaVersion]

	if err := s.admitReference(ctx, kind, fwID, deltaVersion); err != nil {
		return nil, err
	}
	if kind == VersionMain {
		// main artifacts are never version-scoped
		deltaVersion = ""
	}

	dir, err := s.paths.Dir(fwID, deltaVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInternal, err)
	}

	filename := storage.NormalizeFilename(ing.filename)
	dest := filepath.Join(dir, filename)
	if err := os.Rename(ing.spoolPath, dest); err != nil {
		return nil, fmt.Errorf("%w: place artifact: %v", models.ErrInternal, err)
	}

	fileURL := s.paths.FileURL(fwID, deltaVersion, filename)
	if err := s.persist(ctx, kind, fwID, deltaVersion, fileURL); err != nil {
		return nil, err
	}

	s.log.Info("firmware artifact uploaded",
		"fw_id", fwID,
		"kind", string(kind),
		"delta_version", deltaVersion,
		"file", filename,
		"size", ing.size,
	)

	return &UploadResult{
		FwID:         fwID,
		DeltaVersion: deltaVersion,
		Filename:     filename,
		Dir:          dir,
		FileURL:      fileURL,
		Size:         ing.size,
	}, nil
}

// persist registers the placed artifact in the record store. For deltas the
// read-modify-write over the serialized history runs under the per-firmware
// lock; concurrent delta uploads for one identity serialize here instead of
// silently dropping each other's entries.
func (s *UploadService) persist(ctx context.Context, kind VersionKind, fwID, deltaVersion, fileURL string) error {
	if kind == VersionMain {
		if err := s.store.SetMainArtifact(ctx, fwID, fileURL); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrMissingReference
			}
			return fmt.Errorf("%w: update main artifact: %v", models.ErrInternal, err)
		}
		return nil
	}

	release, err := s.locks.Acquire(ctx, fwID)
	if err != nil {
		return fmt.Errorf("%w: acquire upload lock: %v", models.ErrInternal, err)
	}
	defer release()

	raw, err := s.store.GetDeltaHistory(ctx, fwID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrMissingReference
		}
		return fmt.Errorf("%w: read delta history: %v", models.ErrInternal, err)
	}

	history, err := models.DecodeDeltaHistory(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInternal, err)
	}

	merged := history.Merge(fwID, deltaVersion, fileURL, time.Now().UTC())

	encoded, err := merged.Encode()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrInternal, err)
	}

	if err := s.store.SetDeltaHistory(ctx, fwID, encoded); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrMissingReference
		}
		return fmt.Errorf("%w: update delta history: %v", models.ErrInternal, err)
	}

	return nil
}
