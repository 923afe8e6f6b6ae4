package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pfrederiksen/race-alerts/internal/event"
	"github.com/spf13/afero"
)

const notifiedFile = "notified.json"

// Storage handles persistence of event dumps and the notified set
type Storage struct {
	fs      afero.Fs
	dataDir string
}

// New creates a new Storage instance rooted at dataDir
func New(fs afero.Fs, dataDir string) (*Storage, error) {
	// Expand ~ to home directory
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	// Create data directory if it doesn't exist
	if err := fs.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Storage{
		fs:      fs,
		dataDir: dataDir,
	}, nil
}

// DataDir returns the resolved data directory
func (s *Storage) DataDir() string {
	return s.dataDir
}

// SaveEvents writes events to path as a JSON array
func (s *Storage) SaveEvents(path string, events []*event.RaceEvent) error {
	if events == nil {
		events = []*event.RaceEvent{}
	}

	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding events: %w", err)
	}

	if err := s.writeAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("writing events: %w", err)
	}
	return nil
}

// LoadEvents reads an event dump written by SaveEvents
func (s *Storage) LoadEvents(path string) ([]*event.RaceEvent, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	var events []*event.RaceEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parsing events: %w", err)
	}
	return events, nil
}

// writeAtomic writes data to a temp file in the target directory and renames it over path
func (s *Storage) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return err
	}

	if err := s.fs.Rename(tmpName, path); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// NotifiedSet records the matches a digest was already sent for
type NotifiedSet struct {
	mu        sync.Mutex
	UpdatedAt string               `json:"updated_at,omitempty"`
	Keys      map[string]time.Time `json:"keys"`
}

// NewNotifiedSet creates an empty set
func NewNotifiedSet() *NotifiedSet {
	return &NotifiedSet{Keys: make(map[string]time.Time)}
}

// Has reports whether key was notified before
func (n *NotifiedSet) Has(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.Keys[key]
	return ok
}

// Add marks key as notified at t, keeping the first time it was seen
func (n *NotifiedSet) Add(key string, t time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.Keys[key]; !ok {
		n.Keys[key] = t.UTC()
	}
}

// Len returns the number of keys
func (n *NotifiedSet) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Keys)
}

func (s *Storage) notifiedPath() string {
	return filepath.Join(s.dataDir, notifiedFile)
}

// LoadNotified loads the notified set, returning an empty set when none was saved yet
func (s *Storage) LoadNotified() (*NotifiedSet, error) {
	data, err := afero.ReadFile(s.fs, s.notifiedPath())
	if err != nil {
		if os.IsNotExist(err) {
			// No previous set, return empty one
			return NewNotifiedSet(), nil
		}
		return nil, fmt.Errorf("reading notified set: %w", err)
	}

	set := NewNotifiedSet()
	if err := json.Unmarshal(data, set); err != nil {
		return nil, fmt.Errorf("parsing notified set: %w", err)
	}

	// Ensure Keys map is initialized
	if set.Keys == nil {
		set.Keys = make(map[string]time.Time)
	}
	return set, nil
}

// SaveNotified writes the notified set to the data directory
func (s *Storage) SaveNotified(set *NotifiedSet) error {
	set.mu.Lock()
	set.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(set, "", "  ")
	set.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encoding notified set: %w", err)
	}

	if err := s.writeAtomic(s.notifiedPath(), append(data, '\n')); err != nil {
		return fmt.Errorf("writing notified set: %w", err)
	}
	return nil
}
