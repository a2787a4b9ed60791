package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

const artifactFormat = "evrange-pipeline/v1"

type artifact struct {
	Format   string    `json:"format"`
	Pipeline *Pipeline `json:"pipeline"`
}

// SavePipeline writes the pipeline next to path and renames it into place, so
// readers see either the old artifact or the complete new one.
func SavePipeline(path string, p *Pipeline) (err error) {
	if p == nil || p.Forest == nil || len(p.Forest.Trees) == 0 {
		return ErrNotFitted
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, ignoreNotExist(os.Remove(tmp.Name())))
		}
	}()

	if err = json.NewEncoder(tmp).Encode(artifact{Format: artifactFormat, Pipeline: p}); err != nil {
		return multierr.Append(fmt.Errorf("encode pipeline: %w", err), tmp.Close())
	}
	if err = tmp.Sync(); err != nil {
		return multierr.Append(err, tmp.Close())
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadPipeline returns ErrArtifactMissing when nothing has been saved at path.
func LoadPipeline(path string) (*Pipeline, error) {
	payload, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrArtifactMissing
	}
	if err != nil {
		return nil, err
	}
	var a artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, fmt.Errorf("decode pipeline %s: %w", path, err)
	}
	if a.Format != artifactFormat {
		return nil, fmt.Errorf("unsupported artifact format %q", a.Format)
	}
	p := a.Pipeline
	if p == nil || p.Preprocessor == nil || p.Forest == nil || len(p.Forest.Trees) == 0 || len(p.Features) == 0 {
		return nil, fmt.Errorf("artifact %s is incomplete", path)
	}
	return p, nil
}

func ignoreNotExist(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
