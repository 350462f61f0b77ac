// Package storage reads and writes build output directories.
package storage

import "github.com/starford/commitbook/internal/models"

// Provider is the interface for output directory file operations. Paths are
// relative to the provider root and use forward slashes.
type Provider interface {
	// List returns every file under dir whose name ends in suffix.
	List(dir, suffix string) ([]models.Artifact, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
}
