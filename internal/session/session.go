// Package session tracks memory activity per client session. Every
// mutation is appended to a JSONL event log under the session storage
// directory so sessions survive process restarts.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	pingerr "github.com/ping-mem/pingmem/internal/errors"
)

// EventType classifies session log entries.
type EventType string

const (
	EventMemorySaved   EventType = "memory_saved"
	EventMemoryDeleted EventType = "memory_deleted"
	EventSearch        EventType = "search"
	EventIngest        EventType = "ingest"
)

// Event is one JSONL log line.
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"sessionId"`
	MemoryID  string         `json:"memoryId,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	At        time.Time      `json:"at"`
}

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// ValidateSessionID rejects ids that cannot name a log file.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return pingerr.InvalidInput(fmt.Sprintf("invalid session id %q", id))
	}
	return nil
}

// Manager owns session ids and their event logs.
type Manager struct {
	storagePath string

	mu      sync.Mutex
	current string
}

// NewManager creates the storage directory and a manager.
func NewManager(storagePath string) (*Manager, error) {
	if storagePath == "" {
		return nil, pingerr.InvalidInput("session storage path is required")
	}
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session storage: %w", err)
	}
	return &Manager{storagePath: storagePath}, nil
}

// Current returns the active session id, creating one on first use.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == "" {
		m.current = "session-" + time.Now().UTC().Format("20060102") + "-" + uuid.NewString()[:8]
	}
	return m.current
}

// SetCurrent switches the active session.
func (m *Manager) SetCurrent(id string) error {
	if err := ValidateSessionID(id); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = id
	m.mu.Unlock()
	return nil
}

func (m *Manager) logPath(sessionID string) string {
	return filepath.Join(m.storagePath, sessionID+".jsonl")
}

// Append writes one event to the session log.
func (m *Manager) Append(ev Event) error {
	if ev.SessionID == "" {
		ev.SessionID = m.Current()
	}
	if err := ValidateSessionID(ev.SessionID); err != nil {
		return err
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode session event: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.OpenFile(m.logPath(ev.SessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open session log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append session event: %w", err)
	}
	return nil
}

// Events replays the log of one session in append order.
func (m *Manager) Events(sessionID string) ([]Event, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	f, err := os.Open(m.logPath(sessionID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open session log: %w", err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			// A torn tail line from a crashed writer is skipped.
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session log: %w", err)
	}
	return events, nil
}

// List returns the known session ids, newest log first.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	type item struct {
		id  string
		mod time.Time
	}
	var items []item
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		items = append(items, item{
			id:  e.Name()[:len(e.Name())-len(".jsonl")],
			mod: info.ModTime(),
		})
	}
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].mod.After(items[j-1].mod); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}

// Delete removes one session log. Returns true if it existed.
func (m *Manager) Delete(sessionID string) (bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return false, err
	}
	err := os.Remove(m.logPath(sessionID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete session log: %w", err)
	}
	return true, nil
}
