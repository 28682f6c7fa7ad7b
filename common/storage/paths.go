// Package storage computes and prepares the on-disk layout for firmware
// artifacts:
//
//	{root}/fws/{fwId}/main/{filename}
//	{root}/fws/{fwId}/delta/{deltaVersion}/{filename}
//
// Stored records reference files by public URL ({prefix}/fws/...), never by
// filesystem path.
package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	fwsDir   = "fws"
	mainDir  = "main"
	deltaDir = "delta"
	spoolDir = ".spool"

	dirMode = 0o755
)

// Resolver maps firmware identities to destination directories and URLs
type Resolver struct {
	root         string
	publicPrefix string
}

// NewResolver creates a resolver rooted at the given storage directory
func NewResolver(root, publicPrefix string) *Resolver {
	return &Resolver{
		root:         root,
		publicPrefix: publicPrefix,
	}
}

// Dir returns the destination directory for an upload and guarantees it
// exists. deltaVersion empty means a main-artifact upload. Creation is
// idempotent; a pre-existing directory is not an error.
func (r *Resolver) Dir(fwID, deltaVersion string) (string, error) {
	var dir string
	if deltaVersion == "" {
		dir = filepath.Join(r.root, fwsDir, fwID, mainDir)
	} else {
		dir = filepath.Join(r.root, fwsDir, fwID, deltaDir, deltaVersion)
	}

	if err := os.MkdirAll(dir, dirMode); err != nil {
		return "", fmt.Errorf("create upload directory %s: %w", dir, err)
	}

	return dir, nil
}

// SpoolDir returns the directory in-flight uploads are written to before
// admission completes. It lives under the storage root so the final
// placement is an atomic same-filesystem rename.
func (r *Resolver) SpoolDir() (string, error) {
	dir := filepath.Join(r.root, fwsDir, spoolDir)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return "", fmt.Errorf("create spool directory %s: %w", dir, err)
	}
	return dir, nil
}

// FileURL builds the public URL recorded in the firmware record for a
// stored artifact
func (r *Resolver) FileURL(fwID, deltaVersion, filename string) string {
	if deltaVersion == "" {
		return path.Join(r.publicPrefix, fwsDir, fwID, mainDir, filename)
	}
	return path.Join(r.publicPrefix, fwsDir, fwID, deltaDir, deltaVersion, filename)
}

// NormalizeFilename strips any client-supplied directory components and
// replaces the first space with an underscore. Only the first space is
// replaced to stay compatible with URLs already recorded by earlier
// deployments; see DESIGN.md.
func NormalizeFilename(name string) string {
	return strings.Replace(filepath.Base(name), " ", "_", 1)
}
