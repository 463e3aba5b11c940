package chunks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AkaakuHub/twix-saver/pkg/logger"
)

const timestampLayout = "20060102_150405"

// Writer spools harvested posts to JSONL chunk files on local disk. Chunks
// survive process crashes; the ingestion pipeline deletes each file only
// after its contents are persisted.
type Writer struct {
	dir      string
	target   string
	stamp    string
	sequence int
	log      logger.Logger
}

// NewWriter creates a chunk writer for one target's run. The timestamp is
// fixed at creation so every chunk of the run shares it.
func NewWriter(dir, target string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	return &Writer{
		dir:    dir,
		target: target,
		stamp:  time.Now().UTC().Format(timestampLayout),
		log:    logger.GetLogger().WithField("component", "chunk_writer"),
	}, nil
}

// Write flushes one buffer of posts as the next chunk file and returns its
// path. An empty buffer writes nothing.
func (w *Writer) Write(posts []map[string]any) (string, error) {
	if len(posts) == 0 {
		return "", nil
	}

	w.sequence++
	name := fmt.Sprintf("posts_%s_%s_chunk%03d.jsonl", w.target, w.stamp, w.sequence)
	path := filepath.Join(w.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create chunk file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, post := range posts {
		if err := enc.Encode(post); err != nil {
			return "", fmt.Errorf("failed to encode post: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync chunk file: %w", err)
	}

	w.log.DebugWithFields("chunk written", map[string]interface{}{
		"file":  name,
		"posts": len(posts),
	})
	return path, nil
}

// ChunkCount returns how many chunks have been written so far
func (w *Writer) ChunkCount() int {
	return w.sequence
}
