package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Data represents the persisted history file.
type Data struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Entries   []Entry   `json:"entries"`
}

const (
	currentVersion = 1
	dataFileName   = "bore_history.json"
)

// FileStore keeps the history in memory and flushes it to a JSON file in
// dataDir, periodically and on Stop.
type FileStore struct {
	dataDir       string
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.RWMutex
	data   *Data
	dirty  bool
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFileStore creates a file store. Call Load before appending to keep
// entries written by a previous process.
func NewFileStore(dataDir string, flushInterval time.Duration, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileStore{
		dataDir:       dataDir,
		flushInterval: flushInterval,
		logger:        logger,
		data:          newEmptyData(),
		done:          make(chan struct{}),
	}
}

func newEmptyData() *Data {
	return &Data{
		Version:   currentVersion,
		UpdatedAt: time.Now(),
	}
}

// Path returns the location of the history file.
func (s *FileStore) Path() string {
	return filepath.Join(s.dataDir, dataFileName)
}

// Load reads the history from disk and returns a copy of its entries. A
// missing or unreadable file starts an empty history.
func (s *FileStore) Load(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.Path()

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("no existing history file, starting fresh", "path", filePath)
			s.data = newEmptyData()
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var data Data
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		s.logger.Warn("failed to decode history file, starting fresh", "error", err)
		s.data = newEmptyData()
		return nil, nil
	}

	if data.Version > currentVersion {
		s.logger.Warn("history file version is newer than supported, starting fresh",
			"file_version", data.Version,
			"supported_version", currentVersion,
		)
		s.data = newEmptyData()
		return nil, nil
	}

	s.data = &data
	s.logger.Info("loaded history from disk",
		"path", filePath,
		"entries", len(data.Entries),
	)

	return s.entriesLocked(), nil
}

// Append adds an entry in memory. It reaches disk on the next flush.
func (s *FileStore) Append(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.Entries = append(s.data.Entries, e)
	s.dirty = true
	return nil
}

// Entries returns a copy of the entries held in memory.
func (s *FileStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entriesLocked()
}

func (s *FileStore) entriesLocked() []Entry {
	out := make([]Entry, len(s.data.Entries))
	copy(out, s.data.Entries)
	return out
}

// Save writes the history to disk.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveLocked()
}

func (s *FileStore) saveLocked() error {
	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	filePath := s.Path()
	tempPath := filePath + ".tmp"

	s.data.UpdatedAt = time.Now()

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return err
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	// Atomic rename
	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return err
	}

	s.dirty = false
	s.logger.Debug("saved history to disk", "path", filePath, "entries", len(s.data.Entries))

	return nil
}

// Start starts the periodic flush goroutine.
func (s *FileStore) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.flushLoop(ctx)
}

// Stop stops the periodic flush and saves final state.
func (s *FileStore) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
		s.cancel = nil
	}

	return s.Save()
}

// Close implements Store.
func (s *FileStore) Close() error {
	return s.Stop()
}

func (s *FileStore) flushLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.IsDirty() {
				if err := s.Save(); err != nil {
					s.logger.Error("failed to save history", "error", err)
				}
			}
		}
	}
}

// IsDirty returns whether the history has unsaved entries.
func (s *FileStore) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Len returns the number of entries held in memory.
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data.Entries)
}

var _ Store = (*FileStore)(nil)
