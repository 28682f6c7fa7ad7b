package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetware/fwdepot/cmd/fwdepot/models"
)

const (
	fieldFwID         = "fwId"
	fieldDeltaVersion = "deltaVersion"

	// Text fields never carry artifact data; anything past this is abuse
	maxFieldBytes = 1 << 20
)

// ingested is the outcome of one body parse: collected text fields plus the
// spooled file, if a file part was accepted.
type ingested struct {
	fields      map[string]string
	filename    string
	contentType string
	spoolPath   string
	size        int64
	accepted    bool
}

// discard removes the spool file if it has not been moved to its
// destination. Safe to call unconditionally.
func (ing *ingested) discard() {
	if ing.spoolPath != "" {
		_ = os.Remove(ing.spoolPath)
	}
}

// ingest streams the multipart body. Text fields are collected; the first
// file part is filtered on metadata (filename, extension, media type) before
// any of its bytes touch disk, then spooled. The byte cap applies to the
// whole stream regardless of the declared Content-Length, since a client
// could lie. On client disconnect the spool file is discarded by the caller
// via ingested.discard.
func (s *UploadService) ingest(ctx context.Context, r *http.Request) (*ingested, error) {
	ing := &ingested{fields: make(map[string]string)}

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return ing, models.ErrUnsupportedMedia
	}

	body := http.MaxBytesReader(nil, r.Body, s.maxBytes)
	defer body.Close()

	mr := multipart.NewReader(body, params["boundary"])

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ing, s.classifyReadError(ctx, err)
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			part.Close()
			if err != nil {
				return ing, s.classifyReadError(ctx, err)
			}
			ing.fields[part.FormName()] = string(value)
			continue
		}

		if ing.accepted {
			// The contract is a single binary part per request; any extras
			// are drained so trailing text fields still parse, and dropped.
			_, err := io.Copy(io.Discard, part)
			part.Close()
			if err != nil {
				return ing, s.classifyReadError(ctx, err)
			}
			continue
		}

		filename := part.FileName()
		contentType := part.Header.Get("Content-Type")
		if err := admitFileMetadata(filename, contentType); err != nil {
			part.Close()
			return ing, err
		}

		spoolPath, size, err := s.spool(ctx, part)
		part.Close()
		if err != nil {
			return ing, err
		}

		ing.filename = filename
		ing.contentType = contentType
		ing.spoolPath = spoolPath
		ing.size = size
		ing.accepted = true
	}

	return ing, nil
}

// spool writes the file part to the spool directory, enforcing the byte cap
// mid-stream. Nothing is left behind on failure.
func (s *UploadService) spool(ctx context.Context, part *multipart.Part) (string, int64, error) {
	dir, err := s.paths.SpoolDir()
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", models.ErrInternal, err)
	}

	spoolPath := filepath.Join(dir, uuid.NewString()+".part")
	f, err := os.Create(spoolPath)
	if err != nil {
		return "", 0, fmt.Errorf("%w: create spool file: %v", models.ErrInternal, err)
	}

	size, err := io.Copy(f, part)
	if err != nil {
		f.Close()
		os.Remove(spoolPath)
		return "", 0, s.classifyReadError(ctx, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(spoolPath)
		return "", 0, fmt.Errorf("%w: finish spool file: %v", models.ErrInternal, err)
	}

	return spoolPath, size, nil
}

// classifyReadError maps body-read failures: cap overflow is a payload
// rejection, a closed client connection is surfaced with its context cause,
// everything else is an internal parse failure.
func (s *UploadService) classifyReadError(ctx context.Context, err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return models.ErrPayloadTooLarge
	}

	if ctx.Err() != nil {
		return fmt.Errorf("client closed connection: %w", ctx.Err())
	}

	return fmt.Errorf("%w: read upload body: %v", models.ErrInternal, err)
}
