package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Recorder writes numbered screenshots into a directory and remembers them
// in capture order.
type Recorder struct {
	dir string

	mu    sync.Mutex
	seq   int
	paths []string
}

// NewRecorder creates a recorder writing into dir.
func NewRecorder(dir string) *Recorder {
	return &Recorder{dir: dir}
}

// Capture screenshots page and saves it as NN-name.png.
func (r *Recorder) Capture(ctx context.Context, page Page, name string) (string, error) {
	data, err := page.Screenshot(ctx)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	filename := fmt.Sprintf("%02d-%s.png", r.seq, unsafeName.ReplaceAllString(name, "_"))
	path := filepath.Join(r.dir, filename)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}

	r.paths = append(r.paths, path)
	return path, nil
}

// Paths returns the screenshots captured so far.
func (r *Recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// Dir is the directory screenshots are written to.
func (r *Recorder) Dir() string {
	return r.dir
}
