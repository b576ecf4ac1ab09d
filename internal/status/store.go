// Package status persists the scheduler's run state as a single JSON record
// for the dashboard to read. The record is overwritten in place; the last
// writer wins, which is fine because the scheduler serializes its phases.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

type RunStatus struct {
	IsRunning    bool   `json:"is_running"`
	LastRunTime  string `json:"last_run_time"`
	NextRunTime  string `json:"next_run_time"`
	LastStatus   string `json:"last_status"` // success, failed, unknown
	ErrorMessage string `json:"error_message"`
}

type Store struct {
	path string
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Read returns the persisted status, or ok=false when no record exists yet.
func (s *Store) Read() (RunStatus, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return RunStatus{LastStatus: "unknown"}, false
	}
	var st RunStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return RunStatus{LastStatus: "unknown"}, false
	}
	return st, true
}

func (s *Store) MarkRunning() error {
	st, _ := s.Read()
	st.IsRunning = true
	st.LastRunTime = s.now().Format(timeLayout)
	return s.write(st)
}

func (s *Store) MarkCompleted(success bool, message string) error {
	st, _ := s.Read()
	st.IsRunning = false
	if success {
		st.LastStatus = "success"
	} else {
		st.LastStatus = "failed"
	}
	if message != "" {
		st.ErrorMessage = message
	}
	return s.write(st)
}

func (s *Store) UpdateNextRun(nextRun time.Time) error {
	st, _ := s.Read()
	st.NextRunTime = nextRun.Format(timeLayout)
	return s.write(st)
}

func (s *Store) write(st RunStatus) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create status dir: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return nil
}
