// Package prefs keeps user preferences (recently viewed symbols and files,
// last chart axes and similar small values) in memory with JSON
// persistence and pub/sub for SSE push.
package prefs

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Recent-list kinds used by the API.
const (
	KindSymbols = "symbols"
	KindFiles   = "files"
)

// DefaultMaxRecent bounds each recent list when the caller passes no limit.
const DefaultMaxRecent = 10

// Event is the wire format for SSE messages.
type Event struct {
	Type   string   `json:"type"`             // "set", "delete", "recent"
	Key    string   `json:"key,omitempty"`    // set/delete only
	Value  string   `json:"value,omitempty"`  // set only
	Kind   string   `json:"kind,omitempty"`   // recent only
	Recent []string `json:"recent,omitempty"` // recent only
}

type state struct {
	Values map[string]string   `json:"values"`
	Recent map[string][]string `json:"recent"`
}

// Store holds preferences in memory, persisting every change to a JSON file.
// An empty file path keeps everything in memory.
type Store struct {
	mu        sync.RWMutex
	st        state
	filePath  string
	maxRecent int
	log       *slog.Logger

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan Event
}

// NewStore creates a Store, loading persisted state from filePath.
func NewStore(filePath string, maxRecent int, log *slog.Logger) *Store {
	if maxRecent <= 0 {
		maxRecent = DefaultMaxRecent
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		st:        state{Values: map[string]string{}, Recent: map[string][]string{}},
		filePath:  filePath,
		maxRecent: maxRecent,
		log:       log,
		subs:      make(map[int]chan Event),
	}
	s.load()
	return s
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.st.Values[key]
	return v, ok
}

// Set stores a value, persists to disk, and broadcasts to subscribers.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	s.st.Values[key] = value
	err := s.flush()
	s.mu.Unlock()

	s.broadcast(Event{Type: "set", Key: key, Value: value})
	return err
}

// Delete removes a value, persists to disk, and broadcasts to subscribers.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	delete(s.st.Values, key)
	err := s.flush()
	s.mu.Unlock()

	s.broadcast(Event{Type: "delete", Key: key})
	return err
}

// Recent returns the recent list for kind, most recent first.
func (s *Store) Recent(kind string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.st.Recent[kind]...)
}

// Touch moves value to the front of kind's recent list, evicting the oldest
// entries beyond the configured maximum.
func (s *Store) Touch(kind, value string) ([]string, error) {
	s.mu.Lock()
	list := []string{value}
	for _, v := range s.st.Recent[kind] {
		if v != value {
			list = append(list, v)
		}
	}
	if len(list) > s.maxRecent {
		list = list[:s.maxRecent]
	}
	s.st.Recent[kind] = list
	err := s.flush()
	out := append([]string{}, list...)
	s.mu.Unlock()

	s.broadcast(Event{Type: "recent", Kind: kind, Recent: out})
	return out, err
}

// ClearRecent empties kind's recent list.
func (s *Store) ClearRecent(kind string) error {
	s.mu.Lock()
	delete(s.st.Recent, kind)
	err := s.flush()
	s.mu.Unlock()

	s.broadcast(Event{Type: "recent", Kind: kind})
	return err
}

// Subscribe returns a channel that receives events. bufSize controls the
// channel buffer; slow consumers will have events dropped.
func (s *Store) Subscribe(bufSize int) (int, <-chan Event) {
	ch := make(chan Event, bufSize)
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	s.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Store) Unsubscribe(id int) {
	s.subsMu.Lock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
	s.subsMu.Unlock()
}

// broadcast sends an event to all subscribers non-blocking (drop on full).
func (s *Store) broadcast(e Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// load reads the JSON file into memory.
func (s *Store) load() {
	if s.filePath == "" {
		return
	}
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return // File doesn't exist yet, start empty.
	}
	var loaded state
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.log.Warn("loading prefs file", "path", s.filePath, "error", err)
		return
	}
	if loaded.Values != nil {
		s.st.Values = loaded.Values
	}
	if loaded.Recent != nil {
		for kind, list := range loaded.Recent {
			if len(list) > s.maxRecent {
				list = list[:s.maxRecent]
			}
			s.st.Recent[kind] = list
		}
	}
	s.log.Info("loaded prefs", "values", len(s.st.Values), "recent_kinds", len(s.st.Recent))
}

// flush writes the in-memory state to disk via a temp file and rename. Must
// be called with mu held.
func (s *Store) flush() error {
	if s.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling prefs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("creating prefs dir: %w", err)
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.log.Error("writing prefs file", "error", err)
		return fmt.Errorf("writing prefs: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("replacing prefs file: %w", err)
	}
	return nil
}
