package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Firmware represents one firmware product line in the record store.
// Maps to: fws table. Registration of new firmwares is handled by a
// separate flow; the upload pipeline only rewrites FileURL or Deltas.
type Firmware struct {
	// Caller-supplied unique identity of the product line
	FwID string `db:"fw_id" json:"fwId"`

	// URL of the main (non-incremental) artifact, nil until first upload
	FileURL *string `db:"file_url" json:"fileUrl,omitempty"`

	// Ordered history of incremental update packages
	Deltas DeltaHistory `db:"deltas" json:"deltas,omitempty"`
}

// DeltaEntry is one incremental update package in a firmware's history.
// At most one entry exists per (fwId, version) pair; re-uploading a version
// overwrites FileURL and stamps UpdatingDate in place.
//
// JSON keys match the serialized form already present in deployed records
// (lowercase date keys included), so histories written before this service
// keep decoding.
type DeltaEntry struct {
	FwID         string     `json:"fwId"`
	Version      string     `json:"version"`
	FileURL      string     `json:"fileUrl"`
	CreationDate time.Time  `json:"creationdate"`
	UpdatingDate *time.Time `json:"updatingdate,omitempty"`
}

// DeltaHistory is the ordered delta list for one firmware.
// Insertion order is arrival order; lookups go by version key.
type DeltaHistory []DeltaEntry

// DecodeDeltaHistory deserializes a stored history. An absent, empty or
// JSON-null value is an empty history, not an error.
func DecodeDeltaHistory(raw []byte) (DeltaHistory, error) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return DeltaHistory{}, nil
	}

	var history DeltaHistory
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("decode delta history: %w", err)
	}

	return history, nil
}

// Encode serializes the history to its stored representation
func (h DeltaHistory) Encode() ([]byte, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode delta history: %w", err)
	}
	return raw, nil
}

// Find returns the first entry with the given version, or nil
func (h DeltaHistory) Find(version string) *DeltaEntry {
	for i := range h {
		if h[i].Version == version {
			return &h[i]
		}
	}
	return nil
}

// Merge reconciles a freshly uploaded delta into the history. An existing
// entry for the version is updated in place: FileURL is overwritten,
// UpdatingDate stamped, CreationDate untouched. Only the first match is
// updated; duplicate versions can only come from external corruption and
// are left as found. An unseen version is appended with a fresh
// CreationDate and no UpdatingDate.
func (h DeltaHistory) Merge(fwID, version, fileURL string, now time.Time) DeltaHistory {
	for i := range h {
		if h[i].Version == version {
			h[i].FileURL = fileURL
			h[i].UpdatingDate = &now
			return h
		}
	}

	return append(h, DeltaEntry{
		FwID:         fwID,
		Version:      version,
		FileURL:      fileURL,
		CreationDate: now,
	})
}
