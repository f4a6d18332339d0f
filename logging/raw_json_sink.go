package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const rawGoEventsLog = "raw_go_events.log"

// RawJSONSink keeps the raw `go test -json` output of each execution on disk
// until the check it belongs to is published, then appends it to
// raw_go_events.log. A check executed several times keeps every execution,
// in order. The result is usable by tools like gotestsum.
type RawJSONSink struct {
	logger *FileLogger

	mu            sync.Mutex
	rawJSONEvents map[string][]string // check id -> temp files with raw JSON events
}

// GoTestEvent represents an event in the go test JSON output
// Matches the format described in Go's test2json package
type GoTestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"`
	Package string    `json:"Package"`
	Test    string    `json:"Test,omitempty"`
	Output  string    `json:"Output,omitempty"`
	Elapsed float64   `json:"Elapsed,omitempty"`
}

// GetRawEventsFile returns the path to the raw_go_events.log file of the run
func (s *RawJSONSink) GetRawEventsFile() string {
	return filepath.Join(s.logger.logDir, rawGoEventsLog)
}

// StoreRawJSON stores the raw JSON output of one execution of a check
func (s *RawJSONSink) StoreRawJSON(checkID string, rawJSON []byte) error {
	if len(rawJSON) == 0 {
		return nil
	}

	tmpFile, err := s.createTempRawFile(checkID)
	if err != nil {
		return err
	}

	if _, err := tmpFile.Write(rawJSON); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("failed to write raw JSON: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("failed to close raw JSON file: %w", err)
	}

	s.storePath(checkID, tmpFile.Name())
	return nil
}

// StoreRawJSONFromFile copies an existing file into the sink-managed storage.
func (s *RawJSONSink) StoreRawJSONFromFile(checkID, sourcePath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open raw JSON source %s: %w", sourcePath, err)
	}
	defer func() {
		_ = src.Close()
	}()

	tmpFile, err := s.createTempRawFile(checkID)
	if err != nil {
		return err
	}

	if _, err := io.Copy(tmpFile, src); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("failed to copy raw JSON: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpFile.Name())
		return fmt.Errorf("failed to close raw JSON file: %w", err)
	}

	s.storePath(checkID, tmpFile.Name())
	return nil
}

// GetRawJSON returns the stored raw JSON of every execution of a check,
// concatenated, and whether anything was stored.
func (s *RawJSONSink) GetRawJSON(checkID string) ([]byte, bool) {
	paths := s.getPaths(checkID)
	if len(paths) == 0 {
		return nil, false
	}
	var out []byte
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, false
		}
		out = append(out, data...)
	}
	return out, true
}

// flush appends the stored output of checkID to raw_go_events.log and
// releases it.
func (s *RawJSONSink) flush(checkID string) error {
	paths := s.getPaths(checkID)
	if len(paths) == 0 {
		return nil
	}
	defer s.DeleteRawJSON(checkID)

	writer, err := s.logger.getAsyncWriter(s.GetRawEventsFile())
	if err != nil {
		return err
	}
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open raw JSON file %s: %w", path, err)
		}
		_, err = io.Copy(asyncFileWriterAdapter{writer: writer}, file)
		_ = file.Close()
		if err != nil {
			return fmt.Errorf("failed to write raw JSON events: %w", err)
		}
	}
	return nil
}

func (s *RawJSONSink) createTempRawFile(checkID string) (*os.File, error) {
	prefix := fmt.Sprintf("raw-json-%s-", safeFilename(checkID))
	tmpFile, err := os.CreateTemp("", prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp raw JSON file: %w", err)
	}
	return tmpFile, nil
}

func (s *RawJSONSink) storePath(checkID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rawJSONEvents == nil {
		s.rawJSONEvents = make(map[string][]string)
	}
	s.rawJSONEvents[checkID] = append(s.rawJSONEvents[checkID], path)
}

func (s *RawJSONSink) getPaths(checkID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := s.rawJSONEvents[checkID]
	out := make([]string, len(paths))
	copy(out, paths)
	return out
}

// DeleteRawJSON removes the stored raw JSON of a check.
func (s *RawJSONSink) DeleteRawJSON(checkID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, path := range s.rawJSONEvents[checkID] {
		_ = os.Remove(path)
	}
	delete(s.rawJSONEvents, checkID)
}

func (s *RawJSONSink) cleanupStoredFiles() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for checkID, paths := range s.rawJSONEvents {
		for _, path := range paths {
			_ = os.Remove(path)
		}
		delete(s.rawJSONEvents, checkID)
	}
}
