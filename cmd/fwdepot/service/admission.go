package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fleetware/fwdepot/cmd/fwdepot/models"
)

// Allowed artifact formats. Firmware images are raw binaries; anything else
// is rejected before its bytes are accepted onto disk.
var allowedExts = []string{".bin"}

const allowedMediaType = "application/octet-stream"

// admitFileMetadata gates a file part on what is known at stream time:
// a non-empty original filename and an allowed extension and media type.
// It runs before the part's bytes are read so rejected formats never touch
// the filesystem.
func admitFileMetadata(filename, contentType string) error {
	if filename == "" {
		return models.ErrMalformedUpload
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !extAllowed(ext) || contentType != allowedMediaType {
		return models.ErrUnsupportedMedia
	}

	return nil
}

// admitReference gates the upload on the fields only known once the whole
// body is parsed: the firmware identity (which may arrive after the file
// part), the delta version for delta uploads, and the identity resolving to
// an existing record. The lookup is read-only.
func (s *UploadService) admitReference(ctx context.Context, kind VersionKind, fwID, deltaVersion string) error {
	if fwID == "" {
		return models.ErrMissingReference
	}

	if kind == VersionDelta && deltaVersion == "" {
		return models.ErrMalformedUpload
	}

	exists, err := s.store.Exists(ctx, fwID)
	if err != nil {
		return fmt.Errorf("%w: firmware lookup: %v", models.ErrInternal, err)
	}
	if !exists {
		return models.ErrMissingReference
	}

	return nil
}

func extAllowed(ext string) bool {
	for _, allowed := range allowedExts {
		if ext == allowed {
			return true
		}
	}
	return false
}
