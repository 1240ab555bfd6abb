package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink stores a successful artifact under name and returns where it went.
type Sink interface {
	Save(ctx context.Context, name string, a Artifact) (string, error)
}

// DirSink writes artifacts into a local directory, creating it on demand.
type DirSink struct {
	Dir string
}

// Save implements Sink. Names that would resolve outside Dir are rejected.
func (s DirSink) Save(_ context.Context, name string, a Artifact) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("output name %q escapes %s", name, s.Dir)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(s.Dir, name)
	if err := a.Persist(path); err != nil {
		return "", fmt.Errorf("persist %s: %w", path, err)
	}
	return path, nil
}
