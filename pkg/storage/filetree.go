package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileTree is the legacy history backend: one gzipped JSON document per
// record, grouped by date directory, plus a single index file.
//
//	root/
//	  index.json
//	  2026-08-25/
//	    a1b2c3d4e5f6.json.gz
type FileTree struct {
	root string

	mu    sync.Mutex
	index map[string]indexEntry
}

type indexEntry struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	PlanName  string    `json:"plan_name,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

const indexFile = "index.json"

// NewFileTree opens the file-tree backend rooted at dir, loading the index
// if one exists.
func NewFileTree(root string) (*FileTree, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	ft := &FileTree{root: root, index: map[string]indexEntry{}}
	data, err := os.ReadFile(filepath.Join(root, indexFile))
	if err == nil {
		if err := json.Unmarshal(data, &ft.index); err != nil {
			return nil, fmt.Errorf("corrupt history index: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read history index: %w", err)
	}
	return ft, nil
}

// Save upserts a record as a gzipped JSON file and updates the index.
func (ft *FileTree) Save(_ context.Context, rec *ExecutionRecord) error {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	day := rec.Timestamp.UTC().Format("2006-01-02")
	dir := filepath.Join(ft.root, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create date directory: %w", err)
	}

	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	compressed, err := gzipBytes(payload)
	if err != nil {
		return fmt.Errorf("failed to compress record: %w", err)
	}

	rel := filepath.Join(day, rec.ID+".json.gz")
	path := filepath.Join(ft.root, rel)
	if err := atomicWrite(path, compressed); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	// An upsert may move the record to a new date directory.
	if old, ok := ft.index[rec.ID]; ok && old.Path != rel {
		_ = os.Remove(filepath.Join(ft.root, old.Path))
	}
	ft.index[rec.ID] = indexEntry{
		Path:      rel,
		Timestamp: rec.Timestamp.UTC(),
		Status:    rec.Status,
		PlanName:  rec.PlanName,
		Tags:      rec.Tags,
	}
	return ft.writeIndexLocked()
}

// Get loads one record by id.
func (ft *FileTree) Get(_ context.Context, id string) (*ExecutionRecord, error) {
	ft.mu.Lock()
	entry, ok := ft.index[id]
	ft.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution record not found: %s", id)
	}
	return ft.load(entry.Path)
}

func (ft *FileTree) load(rel string) (*ExecutionRecord, error) {
	compressed, err := os.ReadFile(filepath.Join(ft.root, rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	payload, err := gunzipBytes(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress record: %w", err)
	}
	var rec ExecutionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

// List filters over the index, newest first, then loads the page.
func (ft *FileTree) List(_ context.Context, filter ListFilter) ([]*ExecutionRecord, error) {
	ft.mu.Lock()
	entries := make([]struct {
		id    string
		entry indexEntry
	}, 0, len(ft.index))
	for id, e := range ft.index {
		entries = append(entries, struct {
			id    string
			entry indexEntry
		}{id, e})
	}
	ft.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].entry.Timestamp.After(entries[j].entry.Timestamp)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	records := []*ExecutionRecord{}
	skipped := 0
	for _, e := range entries {
		rec, err := ft.load(e.entry.Path)
		if err != nil {
			return nil, err
		}
		if !rec.matchesFilter(filter) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		records = append(records, rec)
		if len(records) >= limit {
			break
		}
	}
	return records, nil
}

// Delete removes the record file and its index entry.
func (ft *FileTree) Delete(_ context.Context, id string) (bool, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	entry, ok := ft.index[id]
	if !ok {
		return false, nil
	}
	if err := os.Remove(filepath.Join(ft.root, entry.Path)); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	delete(ft.index, id)
	return true, ft.writeIndexLocked()
}

// Stats aggregates over the index without loading record bodies.
func (ft *FileTree) Stats(_ context.Context) (*Stats, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	st := &Stats{Backend: "file"}
	for _, entry := range ft.index {
		st.Total++
		switch entry.Status {
		case "success":
			st.SuccessCount++
		case "failure":
			st.FailureCount++
		case "error":
			st.ErrorCount++
		}
		ts := entry.Timestamp
		if st.Oldest == nil || ts.Before(*st.Oldest) {
			t := ts
			st.Oldest = &t
		}
		if st.Newest == nil || ts.After(*st.Newest) {
			t := ts
			st.Newest = &t
		}
		if info, err := os.Stat(filepath.Join(ft.root, entry.Path)); err == nil {
			st.SizeBytes += info.Size()
		}
	}
	return st, nil
}

// Clear removes every record and resets the index.
func (ft *FileTree) Clear(_ context.Context) (int, error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	removed := 0
	for _, entry := range ft.index {
		if err := os.Remove(filepath.Join(ft.root, entry.Path)); err == nil || os.IsNotExist(err) {
			removed++
		}
	}
	ft.index = map[string]indexEntry{}
	return removed, ft.writeIndexLocked()
}

// Close flushes the index.
func (ft *FileTree) Close() error {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.writeIndexLocked()
}

// MigrateTo copies every record into another backend, typically the
// embedded database. Records already present there are overwritten.
func (ft *FileTree) MigrateTo(ctx context.Context, dest Backend) (int, error) {
	ft.mu.Lock()
	total := len(ft.index)
	ft.mu.Unlock()

	records, err := ft.List(ctx, ListFilter{Limit: total + 1})
	if err != nil {
		return 0, err
	}
	migrated := 0
	for _, rec := range records {
		if err := dest.Save(ctx, rec); err != nil {
			return migrated, fmt.Errorf("failed to migrate record %s: %w", rec.ID, err)
		}
		migrated++
	}
	return migrated, nil
}

func (ft *FileTree) writeIndexLocked() error {
	payload, err := json.MarshalIndent(ft.index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := atomicWrite(filepath.Join(ft.root, indexFile), payload); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
