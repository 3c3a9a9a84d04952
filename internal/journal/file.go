package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileJournal appends one JSON line per record to a file.
type FileJournal struct {
	mu   sync.Mutex
	f    *os.File
	sync bool
}

// OpenFile opens (or creates) path for appending. With syncWrites every record is fsynced.
func OpenFile(path string, syncWrites bool) (*FileJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	return &FileJournal{f: f, sync: syncWrites}, nil
}

func (j *FileJournal) Append(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", r.OrderID, err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	// a single write keeps lines whole under O_APPEND
	if _, err := j.f.Write(line); err != nil {
		return fmt.Errorf("append record %s: %w", r.OrderID, err)
	}
	if j.sync {
		if err := j.f.Sync(); err != nil {
			return fmt.Errorf("sync journal: %w", err)
		}
	}
	return nil
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
