package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/abdulmalikadeyemo/email-assistant/graph"
)

// FileSink writes each artifact to <Dir>/<name>.md.
//
// With PerRun set, artifacts go to <Dir>/<run id>/<name>.md so concurrent
// runs do not overwrite each other. Without it, every run writes to the same
// files and the last one wins.
type FileSink struct {
	Dir    string
	PerRun bool
}

// NewFileSink creates a FileSink rooted at dir.
func NewFileSink(dir string, perRun bool) *FileSink {
	return &FileSink{Dir: dir, PerRun: perRun}
}

// Write implements Sink.
func (f *FileSink) Write(ctx context.Context, name string, content any) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	dir := f.Dir
	if f.PerRun {
		id := runID(ctx)
		if !ValidName(id) {
			return fmt.Errorf("invalid run ID %q for artifact directory", id)
		}
		dir = filepath.Join(dir, id)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	path := filepath.Join(dir, name+".md")
	if err := os.WriteFile(path, []byte(Format(content)), 0o644); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	return nil
}

// Path returns where Write stores name for runID.
func (f *FileSink) Path(runID, name string) string {
	if f.PerRun {
		return filepath.Join(f.Dir, runID, name+".md")
	}
	return filepath.Join(f.Dir, name+".md")
}

func runID(ctx context.Context) string {
	return graph.RunIDFrom(ctx)
}
