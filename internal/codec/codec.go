// Package codec converts valley descriptions between text formats and the
// typed domain model.
package codec

import (
	"encoding/json"
	"io"

	"hydrovalley/internal/domain"
)

// Importer reads a valley description in some text format
type Importer interface {
	Parse(r io.Reader) (*domain.ValleyModel, error)
	Format() string
}

// Exporter writes a valley model in some text format
type Exporter interface {
	Export(model *domain.ValleyModel, w io.Writer) error
	Format() string
}

// Canonical returns the canonical JSON serialization of a model, the body
// sent to the external services and the input of its fingerprint.
func Canonical(model *domain.ValleyModel) ([]byte, error) {
	return json.Marshal(model)
}

// ForFilename picks the importer for a dataset or CLI file name
func ForFilename(name string) Importer {
	switch extension(name) {
	case ".yaml", ".yml":
		return NewYAMLCodec()
	default:
		return NewJSONCodec()
	}
}
