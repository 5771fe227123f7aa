package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// RecordFileName is the build record kept in the output directory.
const RecordFileName = "luma.lock"

// BuildRecord lists the images produced by the last project build, so
// unchanged sources can be skipped.
type BuildRecord struct {
	StripDebug bool          `toml:"strip-debug"`
	Images     []ImageRecord `toml:"image"`
}

// ImageRecord describes one compiled source.
type ImageRecord struct {
	Source     string `toml:"source"`
	Image      string `toml:"image"`
	SourceHash string `toml:"source-hash"`
	ImageHash  string `toml:"image-hash"`
}

// RecordPath returns the path of the build record.
func (m *Manifest) RecordPath() string {
	return filepath.Join(m.OutputDir(), RecordFileName)
}

// ReadRecord reads a build record. A missing file yields nil, nil.
func ReadRecord(path string) (*BuildRecord, error) {
	var r BuildRecord
	if _, err := toml.DecodeFile(path, &r); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return &r, nil
}

// WriteRecord writes a build record, creating its directory if needed.
func WriteRecord(path string, r *BuildRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(r); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

// Find returns the record for source, or nil.
func (r *BuildRecord) Find(source string) *ImageRecord {
	if r == nil {
		return nil
	}
	for i := range r.Images {
		if r.Images[i].Source == source {
			return &r.Images[i]
		}
	}
	return nil
}
