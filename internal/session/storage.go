package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Durable storage keys.
const (
	KeyAuthToken    = "authToken"
	KeySelectedTeam = "selectedTeam"
	KeyUser         = "user"
)

// Storage is the durable key/value store backing a session. Values for
// KeySelectedTeam and KeyUser are JSON encoded by the Store.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// stateFile is the on-disk layout of FileStorage.
type stateFile struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

// FileStorage persists session keys to a single JSON file on the local filesystem.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileStorage creates a file backed storage in baseDir.
// If baseDir is empty, uses ~/.smartschedule/
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if baseDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		baseDir = dir
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	fs := &FileStorage{path: filepath.Join(baseDir, "session.json")}

	if _, err := os.Stat(fs.path); os.IsNotExist(err) {
		if err := fs.save(&stateFile{Version: 1, Values: map[string]string{}}); err != nil {
			return nil, err
		}
	}

	log.Debug().Str("path", fs.path).Msg("session storage initialized")

	return fs, nil
}

// DefaultDir returns the default state directory, ~/.smartschedule.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".smartschedule"), nil
}

// Path returns the location of the state file.
func (f *FileStorage) Path() string {
	return f.path
}

func (f *FileStorage) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.load()
	if err != nil {
		return "", false, err
	}

	v, ok := st.Values[key]
	return v, ok, nil
}

func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.load()
	if err != nil {
		return err
	}

	st.Values[key] = value
	return f.save(st)
}

func (f *FileStorage) Delete(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.load()
	if err != nil {
		return err
	}

	for _, k := range keys {
		delete(st.Values, k)
	}
	return f.save(st)
}

func (f *FileStorage) load() (*stateFile, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &stateFile{Version: 1, Values: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}

	var st stateFile
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to parse session state: %w", err)
	}

	if st.Values == nil {
		st.Values = make(map[string]string)
	}

	return &st, nil
}

// save writes the state file atomically.
func (f *FileStorage) save(st *stateFile) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save session state: %w", err)
	}

	return nil
}

// MemoryStorage keeps session keys in memory. Data is lost on restart.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}
