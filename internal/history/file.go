package history

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// FileSource reads a YAML snapshot. JSON files parse as well.
type FileSource struct {
	Path string
}

// NewFileSource returns a source reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load implements Source.
func (f *FileSource) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "read snapshot")
	}
	return ParseSnapshot(data)
}

// ParseSnapshot decodes and validates snapshot bytes.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrap(err, "parse snapshot")
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
