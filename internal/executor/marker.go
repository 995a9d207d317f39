package executor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Marker records the process-visible "a trade occurred" flag the
// orchestration loop consumes after a session.
type Marker interface {
	MarkTraded() error
}

// NopMarker discards the flag.
type NopMarker struct{}

func (NopMarker) MarkTraded() error { return nil }

// FileMarker persists the flag as a small JSON file, written atomically so
// a reader never sees a torn flag.
type FileMarker struct {
	Path string
}

type markerState struct {
	Traded bool   `json:"traded"`
	At     string `json:"at"`
}

func (m FileMarker) MarkTraded() error {
	if err := os.MkdirAll(filepath.Dir(m.Path), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(markerState{Traded: true, At: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return err
	}
	tmp := m.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, m.Path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Traded reports whether the flag file records a trade.
func (m FileMarker) Traded() bool {
	b, err := os.ReadFile(m.Path)
	if err != nil {
		return false
	}
	var st markerState
	if err := json.Unmarshal(b, &st); err != nil {
		return false
	}
	return st.Traded
}

// Clear removes the flag ahead of a new session.
func (m FileMarker) Clear() error {
	err := os.Remove(m.Path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
