package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir_Main(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root, "files")

	dir, err := r.Dir("FW1", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "fws", "FW1", "main"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDir_Delta(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root, "files")

	dir, err := r.Dir("FW1", "v2")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "fws", "FW1", "delta", "v2"), dir)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDir_Idempotent(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root, "files")

	first, err := r.Dir("FW1", "v1")
	require.NoError(t, err)

	second, err := r.Dir("FW1", "v1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSpoolDir(t *testing.T) {
	root := t.TempDir()
	r := NewResolver(root, "files")

	dir, err := r.SpoolDir()
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFileURL(t *testing.T) {
	r := NewResolver("static/files", "files")

	assert.Equal(t, "files/fws/FW1/main/a.bin", r.FileURL("FW1", "", "a.bin"))
	assert.Equal(t, "files/fws/FW1/delta/v2/b.bin", r.FileURL("FW1", "v2", "b.bin"))
}

func TestNormalizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"firmware.bin", "firmware.bin"},
		{"my firmware.bin", "my_firmware.bin"},
		// only the first space is replaced; kept for URL compatibility
		{"a b c.bin", "a_b c.bin"},
		// client-supplied directory components are stripped
		{"../../etc/passwd", "passwd"},
		{"dir/sub/image.bin", "image.bin"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeFilename(tt.in), "input %q", tt.in)
	}
}
