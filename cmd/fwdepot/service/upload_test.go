package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetware/fwdepot/cmd/fwdepot/models"
	"github.com/fleetware/fwdepot/cmd/fwdepot/repository"
	"github.com/fleetware/fwdepot/cmd/fwdepot/service"
	"github.com/fleetware/fwdepot/common/lock"
	"github.com/fleetware/fwdepot/common/logger"
	"github.com/fleetware/fwdepot/common/storage"
)

const testMaxBytes = 1 << 20 // plenty for unit-test bodies

func newTestService(t *testing.T, store service.FirmwareStore, maxBytes int64) (*service.UploadService, string) {
	t.Helper()

	root := t.TempDir()
	resolver := storage.NewResolver(root, "files")
	log := logger.New("error", "json")

	return service.NewUploadService(store, resolver, lock.NewMemoryLocker(), log, maxBytes), root
}

func seededStore(t *testing.T, fwIDs ...string) *repository.MemoryFirmwareStore {
	t.Helper()

	store := repository.NewMemoryFirmwareStore()
	for _, fwID := range fwIDs {
		require.NoError(t, store.Create(context.Background(), &models.Firmware{FwID: fwID}))
	}
	return store
}

type uploadBody struct {
	fields          map[string]string
	fieldsAfterFile bool
	filename        string
	partContentType string
	content         []byte
	noFile          bool
}

func buildMultipart(t *testing.T, b uploadBody) (*bytes.Buffer, string) {
	t.Helper()

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	writeFields := func() {
		for name, value := range b.fields {
			require.NoError(t, w.WriteField(name, value))
		}
	}

	if !b.fieldsAfterFile {
		writeFields()
	}

	if !b.noFile {
		contentType := b.partContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="file"; filename="%s"`, b.filename))
		header.Set("Content-Type", contentType)

		part, err := w.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(b.content)
		require.NoError(t, err)
	}

	if b.fieldsAfterFile {
		writeFields()
	}

	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func uploadRequest(body io.Reader, contentType string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/fws/upload/main", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func spoolEntries(t *testing.T, root string) []os.DirEntry {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(root, "fws", ".spool"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func TestUpload_MainSuccess(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, root := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields:   map[string]string{"fwId": "FW1"},
		filename: "a.bin",
		content:  []byte("firmware-bytes"),
	})

	res, err := svc.Upload(context.Background(), service.VersionMain, uploadRequest(buf, contentType))
	require.NoError(t, err)

	assert.Equal(t, "files/fws/FW1/main/a.bin", res.FileURL)
	assert.Equal(t, "a.bin", res.Filename)

	data, err := os.ReadFile(filepath.Join(root, "fws", "FW1", "main", "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("firmware-bytes"), data)

	fw, err := store.Get(context.Background(), "FW1")
	require.NoError(t, err)
	require.NotNil(t, fw.FileURL)
	assert.Equal(t, "files/fws/FW1/main/a.bin", *fw.FileURL)

	assert.Empty(t, spoolEntries(t, root), "spool file should have been moved")
}

func TestUpload_MainOverwriteIsIdempotent(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, _ := newTestService(t, store, testMaxBytes)

	for i := 0; i < 2; i++ {
		buf, contentType := buildMultipart(t, uploadBody{
			fields:   map[string]string{"fwId": "FW1"},
			filename: "a.bin",
			content:  []byte("v2-bytes"),
		})
		_, err := svc.Upload(context.Background(), service.VersionMain, uploadRequest(buf, contentType))
		require.NoError(t, err)
	}

	fw, err := store.Get(context.Background(), "FW1")
	require.NoError(t, err)
	require.NotNil(t, fw.FileURL)
	assert.Equal(t, "files/fws/FW1/main/a.bin", *fw.FileURL)
}

func TestUpload_DeltaNewVersion(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, root := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields:   map[string]string{"fwId": "FW1", "deltaVersion": "v2"},
		filename: "b.bin",
		content:  []byte("delta-bytes"),
	})

	res, err := svc.Upload(context.Background(), service.VersionDelta, uploadRequest(buf, contentType))
	require.NoError(t, err)
	assert.Equal(t, "files/fws/FW1/delta/v2/b.bin", res.FileURL)

	_, err = os.Stat(filepath.Join(root, "fws", "FW1", "delta", "v2", "b.bin"))
	require.NoError(t, err)

	fw, err := store.Get(context.Background(), "FW1")
	require.NoError(t, err)
	require.Len(t, fw.Deltas, 1)
	entry := fw.Deltas[0]
	assert.Equal(t, "FW1", entry.FwID)
	assert.Equal(t, "v2", entry.Version)
	assert.Equal(t, "files/fws/FW1/delta/v2/b.bin", entry.FileURL)
	assert.False(t, entry.CreationDate.IsZero())
	assert.Nil(t, entry.UpdatingDate)
}

func TestUpload_DeltaReuploadSameVersion(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, _ := newTestService(t, store, testMaxBytes)

	upload := func(filename string) {
		buf, contentType := buildMultipart(t, uploadBody{
			fields:   map[string]string{"fwId": "FW1", "deltaVersion": "v2"},
			filename: filename,
			content:  []byte("delta-bytes"),
		})
		_, err := svc.Upload(context.Background(), service.VersionDelta, uploadRequest(buf, contentType))
		require.NoError(t, err)
	}

	upload("b.bin")

	fw, err := store.Get(context.Background(), "FW1")
	require.NoError(t, err)
	require.Len(t, fw.Deltas, 1)
	created := fw.Deltas[0].CreationDate

	upload("c.bin")

	fw, err = store.Get(context.Background(), "FW1")
	require.NoError(t, err)
	require.Len(t, fw.Deltas, 1, "re-upload must not grow the history")
	entry := fw.Deltas[0]
	assert.Equal(t, "files/fws/FW1/delta/v2/c.bin", entry.FileURL)
	assert.Equal(t, created, entry.CreationDate, "creation date must survive re-upload")
	require.NotNil(t, entry.UpdatingDate)
	assert.True(t, entry.UpdatingDate.After(created) || entry.UpdatingDate.Equal(created))
}

func TestUpload_UnknownFirmware(t *testing.T) {
	store := seededStore(t) // empty
	svc, root := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields:   map[string]string{"fwId": "FW9"},
		filename: "a.bin",
		content:  []byte("bytes"),
	})

	_, err := svc.Upload(context.Background(), service.VersionMain, uploadRequest(buf, contentType))
	require.ErrorIs(t, err, models.ErrMissingReference)

	_, statErr := os.Stat(filepath.Join(root, "fws", "FW9"))
	assert.ErrorIs(t, statErr, os.ErrNotExist, "no destination may exist for a rejected upload")
	assert.Empty(t, spoolEntries(t, root), "spooled bytes must be discarded")
}

func TestUpload_MissingFwID(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, _ := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields:   map[string]string{},
		filename: "a.bin",
		content:  []byte("bytes"),
	})

	_, err := svc.Upload(context.Background(), service.VersionMain, uploadRequest(buf, contentType))
	require.ErrorIs(t, err, models.ErrMissingReference)
}

func TestUpload_WrongExtension(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, root := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields:   map[string]string{"fwId": "FW1"},
		filename: "a.zip",
		content:  []byte("bytes"),
	})

	_, err := svc.Upload(context.Background(), service.VersionMain, uploadRequest(buf, contentType))
	require.ErrorIs(t, err, models.ErrUnsupportedMedia)

	// Rejected on metadata, before any bytes were accepted onto disk
	assert.Empty(t, spoolEntries(t, root))
	_, statErr := os.Stat(filepath.Join(root, "fws", "FW1"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestUpload_WrongPartMediaType(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, _ := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields:          map[string]string{"fwId": "FW1"},
		filename:        "a.bin",
		partContentType: "text/plain",
		content:         []byte("bytes"),
	})

	_, err := svc.Upload(context.Background(), service.VersionMain, uploadRequest(buf, contentType))
	require.ErrorIs(t, err, models.ErrUnsupportedMedia)
}

func TestUpload_NoFilePart(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, _ := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields: map[string]string{"fwId": "FW1"},
		noFile: true,
	})

	_, err := svc.Upload(context.Background(), service.VersionMain, uploadRequest(buf, contentType))
	require.ErrorIs(t, err, models.ErrEmptyUpload)
}

func TestUpload_DeltaWithoutVersion(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, _ := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields:   map[string]string{"fwId": "FW1"},
		filename: "a.bin",
		content:  []byte("bytes"),
	})

	_, err := svc.Upload(context.Background(), service.VersionDelta, uploadRequest(buf, contentType))
	require.ErrorIs(t, err, models.ErrMalformedUpload)
}

func TestUpload_FieldsAfterFilePart(t *testing.T) {
	// The firmware identity may arrive after the file part; admission of the
	// reference is deferred until the whole body is parsed.
	store := seededStore(t, "FW1")
	svc, _ := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields:          map[string]string{"fwId": "FW1"},
		fieldsAfterFile: true,
		filename:        "a.bin",
		content:         []byte("bytes"),
	})

	res, err := svc.Upload(context.Background(), service.VersionMain, uploadRequest(buf, contentType))
	require.NoError(t, err)
	assert.Equal(t, "files/fws/FW1/main/a.bin", res.FileURL)
}

func TestUpload_FilenameSpaceReplacement(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, root := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields:   map[string]string{"fwId": "FW1"},
		filename: "my firmware.bin",
		content:  []byte("bytes"),
	})

	res, err := svc.Upload(context.Background(), service.VersionMain, uploadRequest(buf, contentType))
	require.NoError(t, err)
	assert.Equal(t, "my_firmware.bin", res.Filename)

	_, err = os.Stat(filepath.Join(root, "fws", "FW1", "main", "my_firmware.bin"))
	require.NoError(t, err)
}

func TestUpload_BodyCapBoundary(t *testing.T) {
	store := seededStore(t, "FW1")

	buf, contentType := buildMultipart(t, uploadBody{
		fields:   map[string]string{"fwId": "FW1"},
		filename: "a.bin",
		content:  bytes.Repeat([]byte{0xAB}, 4096),
	})
	bodyLen := int64(buf.Len())

	// A body exactly at the cap is accepted
	svc, _ := newTestService(t, store, bodyLen)
	_, err := svc.Upload(context.Background(), service.VersionMain,
		uploadRequest(bytes.NewReader(buf.Bytes()), contentType))
	require.NoError(t, err)

	// One byte over is rejected mid-stream
	svc, root := newTestService(t, store, bodyLen-1)
	_, err = svc.Upload(context.Background(), service.VersionMain,
		uploadRequest(bytes.NewReader(buf.Bytes()), contentType))
	require.ErrorIs(t, err, models.ErrPayloadTooLarge)
	assert.Empty(t, spoolEntries(t, root), "partial spool must be discarded")
}

type brokenReader struct {
	data []byte
	off  int
}

func (r *brokenReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, errors.New("connection reset by peer")
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}

func TestUpload_ClientDisconnectDiscardsPartial(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, root := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields:   map[string]string{"fwId": "FW1"},
		filename: "a.bin",
		content:  bytes.Repeat([]byte{0xCD}, 8192),
	})

	// Deliver most of the body, then fail the way a dropped connection does
	truncated := buf.Bytes()[:buf.Len()-512]
	req := uploadRequest(&brokenReader{data: truncated}, contentType)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req = req.WithContext(ctx)

	_, err := svc.Upload(ctx, service.VersionMain, req)
	require.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, spoolEntries(t, root), "partial file must be cleaned up on disconnect")
	_, statErr := os.Stat(filepath.Join(root, "fws", "FW1"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestUpload_ConcurrentDeltasSameFirmware(t *testing.T) {
	store := seededStore(t, "FW1")
	svc, _ := newTestService(t, store, testMaxBytes)

	const uploads = 8
	var wg sync.WaitGroup
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(version string) {
			defer wg.Done()

			buf, contentType := buildMultipart(t, uploadBody{
				fields:   map[string]string{"fwId": "FW1", "deltaVersion": version},
				filename: "d.bin",
				content:  []byte("delta"),
			})
			_, err := svc.Upload(context.Background(), service.VersionDelta,
				uploadRequest(buf, contentType))
			if err != nil {
				t.Error(err)
			}
		}(fmt.Sprintf("v%d", i))
	}
	wg.Wait()

	// With the per-firmware lock, no concurrent merge drops an entry
	fw, err := store.Get(context.Background(), "FW1")
	require.NoError(t, err)
	assert.Len(t, fw.Deltas, uploads)
}

type failingStore struct {
	*repository.MemoryFirmwareStore
	failMain  bool
	failDelta bool
}

func (s *failingStore) SetMainArtifact(ctx context.Context, fwID, fileURL string) error {
	if s.failMain {
		return errors.New("record store unavailable")
	}
	return s.MemoryFirmwareStore.SetMainArtifact(ctx, fwID, fileURL)
}

func (s *failingStore) SetDeltaHistory(ctx context.Context, fwID string, deltas []byte) error {
	if s.failDelta {
		return errors.New("record store unavailable")
	}
	return s.MemoryFirmwareStore.SetDeltaHistory(ctx, fwID, deltas)
}

func TestUpload_StoreFailureIsInternal(t *testing.T) {
	store := &failingStore{
		MemoryFirmwareStore: seededStore(t, "FW1"),
		failMain:            true,
	}
	svc, _ := newTestService(t, store, testMaxBytes)

	buf, contentType := buildMultipart(t, uploadBody{
		fields:   map[string]string{"fwId": "FW1"},
		filename: "a.bin",
		content:  []byte("bytes"),
	})

	_, err := svc.Upload(context.Background(), service.VersionMain, uploadRequest(buf, contentType))
	require.ErrorIs(t, err, models.ErrInternal)
}
