// Package storage defines the local file target used for the settings
// document and for exported backup bundles.
package storage

import "time"

// FileMeta describes one stored file.
type FileMeta struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Provider is the interface for local file operations. Paths are relative
// to the provider root.
type Provider interface {
	// List returns metadata for every file under dir whose name ends with
	// suffix (all files when suffix is empty).
	List(dir, suffix string) ([]FileMeta, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Abs resolves path to an absolute location under the root.
	Abs(path string) (string, error)
}
