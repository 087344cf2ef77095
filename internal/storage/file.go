package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/makt28/downwatch/internal/model"
)

const CurrentFileVersion = 1

// FileData is the root structure persisted in monitors.json.
type FileData struct {
	Version      int                       `json:"version"`
	LastDumpTime int64                     `json:"last_dump_time"`
	Monitors     map[string]*MonitorRecord `json:"monitors"`
}

// MonitorRecord is a monitor with its downtime log embedded.
type MonitorRecord struct {
	model.Monitor
	Logs []model.DowntimeInterval `json:"logs"`
}

// FileStore keeps all monitors in memory and writes the whole set to a JSON
// file atomically after every mutation.
type FileStore struct {
	mu       sync.RWMutex
	data     FileData
	filePath string
}

// NewFileStore loads monitors from disk or starts empty.
func NewFileStore(filePath string) (*FileStore, error) {
	fs := &FileStore{filePath: filePath}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		slog.Info("monitors file not found, starting fresh", "path", filePath)
		fs.data = FileData{
			Version:  CurrentFileVersion,
			Monitors: make(map[string]*MonitorRecord),
		}
		return fs, nil
	}
	if err := fs.load(); err != nil {
		return nil, fmt.Errorf("load monitors: %w", err)
	}
	return fs, nil
}

func (fs *FileStore) CreateMonitor(ctx context.Context, m model.Monitor) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.data.Monitors[m.ID]; ok {
		return fmt.Errorf("monitor %s already exists", m.ID)
	}
	fs.data.Monitors[m.ID] = &MonitorRecord{Monitor: m, Logs: []model.DowntimeInterval{}}
	if err := fs.dumpLocked(); err != nil {
		delete(fs.data.Monitors, m.ID)
		return err
	}
	return nil
}

func (fs *FileStore) GetMonitor(ctx context.Context, id string) (model.Monitor, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	rec, ok := fs.data.Monitors[id]
	if !ok {
		return model.Monitor{}, ErrNotFound
	}
	return rec.Monitor, nil
}

func (fs *FileStore) ListMonitors(ctx context.Context) ([]model.Monitor, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]model.Monitor, 0, len(fs.data.Monitors))
	for _, rec := range fs.data.Monitors {
		out = append(out, rec.Monitor)
	}
	sortMonitors(out)
	return out, nil
}

func (fs *FileStore) SetState(ctx context.Context, id string, state model.State) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.data.Monitors[id]
	if !ok {
		return ErrNotFound
	}
	prev := rec.State
	rec.State = state
	if err := fs.dumpLocked(); err != nil {
		rec.State = prev
		return err
	}
	return nil
}

func (fs *FileStore) AppendInterval(ctx context.Context, id string, iv model.DowntimeInterval) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.data.Monitors[id]
	if !ok {
		return ErrNotFound
	}
	rec.Logs = append(rec.Logs, iv)
	if err := fs.dumpLocked(); err != nil {
		rec.Logs = rec.Logs[:len(rec.Logs)-1]
		return err
	}
	return nil
}

func (fs *FileStore) ListIntervals(ctx context.Context, id string) ([]model.DowntimeInterval, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	rec, ok := fs.data.Monitors[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]model.DowntimeInterval, len(rec.Logs))
	copy(out, rec.Logs)
	return out, nil
}

func (fs *FileStore) DeleteMonitor(ctx context.Context, id string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rec, ok := fs.data.Monitors[id]
	if !ok {
		return nil
	}
	delete(fs.data.Monitors, id)
	if err := fs.dumpLocked(); err != nil {
		fs.data.Monitors[id] = rec
		return err
	}
	return nil
}

func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.dumpLocked()
}

// dumpLocked persists the current state. Caller holds fs.mu.
func (fs *FileStore) dumpLocked() error {
	fs.data.LastDumpTime = time.Now().Unix()
	if err := atomicWriteJSON(fs.filePath, fs.data); err != nil {
		return fmt.Errorf("dump monitors: %w", err)
	}
	return nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if err != nil {
		return err
	}

	var fd FileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return fmt.Errorf("parse monitors JSON: %w", err)
	}
	if fd.Monitors == nil {
		fd.Monitors = make(map[string]*MonitorRecord)
	}
	for _, rec := range fd.Monitors {
		if rec.Logs == nil {
			rec.Logs = []model.DowntimeInterval{}
		}
	}
	fs.data = fd
	return nil
}

func sortMonitors(ms []model.Monitor) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}

// atomicWriteJSON writes data as JSON to a file atomically.
func atomicWriteJSON(filePath string, data interface{}) error {
	bs, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	tmp, err := os.CreateTemp(dir, filepath.Base(filePath)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(bs); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	tmp = nil

	return os.Rename(tmpName, filePath)
}
