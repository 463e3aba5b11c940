package chunks

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/AkaakuHub/twix-saver/pkg/logger"
)

// ListPending returns the chunk files waiting for ingestion, oldest name
// first so runs are processed in write order
func ListPending(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk files: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Read decodes the posts of one chunk file. Lines that fail to decode are
// skipped with a warning so one corrupt record cannot block the whole chunk.
func Read(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk file: %w", err)
	}
	defer f.Close()

	log := logger.GetLogger().WithField("component", "chunk_reader")

	var posts []map[string]any
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var post map[string]any
		if err := json.Unmarshal(line, &post); err != nil {
			log.WarnWithFields("skipping malformed chunk line", map[string]interface{}{
				"file": filepath.Base(path),
				"line": lineNo,
			})
			continue
		}
		posts = append(posts, post)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunk file: %w", err)
	}
	return posts, nil
}

// Delete removes a fully ingested chunk file
func Delete(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete chunk file: %w", err)
	}
	return nil
}
