package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-rerun/reporting"
	"github.com/ethereum-optimism/infra/op-rerun/types"
)

const (
	RunDirectoryPrefix = "rerun-" // Standardized prefix for run directories
	EventsFilename     = "events.jsonl"
	AllLogsFilename    = "all.log"
	SummaryFilename    = "summary.log"
)

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(filepath string) (*AsyncFile, error) {
	file, err := os.Create(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filepath, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100), // Buffer channel to reduce blocking
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return fmt.Errorf("async file is closed")
	}

	// Make a copy of the data to avoid race conditions
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- dataCopy
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		_, err := af.file.Write(data)
		if err != nil {
			// Log the error but continue processing
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	// Wait for all writes to complete
	af.wg.Wait()
	return af.file.Close()
}

// asyncFileWriterAdapter lets io.Copy stream into an AsyncFile.
type asyncFileWriterAdapter struct {
	writer *AsyncFile
}

func (a asyncFileWriterAdapter) Write(p []byte) (int, error) {
	if err := a.writer.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// EventRecord is one line of the events.jsonl file.
type EventRecord struct {
	Time         time.Time     `json:"time"`
	RunID        string        `json:"run_id"`
	CheckID      string        `json:"check_id"`
	Stage        types.Stage   `json:"stage"`
	Outcome      types.Outcome `json:"outcome"`
	Detail       string        `json:"detail,omitempty"`
	DurationMS   int64         `json:"duration_ms"`
	ExpectedFail bool          `json:"expected_fail,omitempty"`
}

// FileLogger writes the published results of a session into a run directory:
//
//	rerun-<runID>/events.jsonl       one JSON object per published event
//	rerun-<runID>/all.log            a readable block per check
//	rerun-<runID>/summary.log        the terminal transcript and rerun summary
//	rerun-<runID>/raw_go_events.log  go test -json output of every execution
//
// It implements the reporting sink contract.
type FileLogger struct {
	baseDir      string
	logDir       string
	runID        string
	mu           sync.Mutex
	asyncWriters map[string]*AsyncFile
	rawJSON      *RawJSONSink

	current    string
	events     []types.OutcomeEvent
	transcript bytes.Buffer
	text       *reporting.TextSink
}

// NewFileLogger creates a new FileLogger with given configuration
func NewFileLogger(baseDir string, runID string, hideRerunSummary bool) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", logDir, err)
	}

	l := &FileLogger{
		baseDir:      baseDir,
		logDir:       logDir,
		runID:        runID,
		asyncWriters: make(map[string]*AsyncFile),
	}
	l.rawJSON = &RawJSONSink{logger: l}
	l.text = reporting.NewTextSink(&l.transcript, reporting.TextSinkOptions{HideRerunSummary: hideRerunSummary})
	return l, nil
}

// getAsyncWriter gets or creates an AsyncFile for the given path
func (l *FileLogger) getAsyncWriter(path string) (*AsyncFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if writer, exists := l.asyncWriters[path]; exists {
		return writer, nil
	}
	writer, err := NewAsyncFile(path)
	if err != nil {
		return nil, err
	}
	l.asyncWriters[path] = writer
	return writer, nil
}

// Start opens the report of a check.
func (l *FileLogger) Start(checkID string) error {
	if l.current != "" {
		return fmt.Errorf("check %s started while %s is still open", checkID, l.current)
	}
	l.current = checkID
	l.events = nil
	return l.text.Start(checkID)
}

// Report appends one event to events.jsonl.
func (l *FileLogger) Report(ev types.OutcomeEvent) error {
	writer, err := l.getAsyncWriter(filepath.Join(l.logDir, EventsFilename))
	if err != nil {
		return err
	}
	line, err := json.Marshal(EventRecord{
		Time:         time.Now().UTC(),
		RunID:        l.runID,
		CheckID:      ev.CheckID,
		Stage:        ev.Stage,
		Outcome:      ev.Outcome,
		Detail:       ev.Detail,
		DurationMS:   ev.Duration.Milliseconds(),
		ExpectedFail: ev.ExpectedFail,
	})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if err := writer.Write(append(line, '\n')); err != nil {
		return err
	}
	l.events = append(l.events, ev)
	return l.text.Report(ev)
}

// Finish writes the all.log block of the open check and copies its raw go
// test output, if any was stored.
func (l *FileLogger) Finish(checkID string) error {
	if l.current != checkID {
		return fmt.Errorf("finishing %s but %q is open", checkID, l.current)
	}
	l.current = ""

	writer, err := l.getAsyncWriter(filepath.Join(l.logDir, AllLogsFilename))
	if err != nil {
		return err
	}
	report := types.CheckReport{CheckID: checkID, Events: l.events}
	if err := writer.Write([]byte(formatCheckBlock(report))); err != nil {
		return err
	}
	if err := l.rawJSON.flush(checkID); err != nil {
		return err
	}
	return l.text.Finish(checkID)
}

// Summary writes the transcript, rerun section and stats line to summary.log.
func (l *FileLogger) Summary(reruns []types.OutcomeEvent) error {
	if err := l.text.Summary(reruns); err != nil {
		return err
	}
	writer, err := l.getAsyncWriter(filepath.Join(l.logDir, SummaryFilename))
	if err != nil {
		return err
	}
	return writer.Write(l.transcript.Bytes())
}

// Close flushes and closes every file written so far.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, writer := range l.asyncWriters {
		errs = append(errs, writer.Close())
	}
	l.asyncWriters = make(map[string]*AsyncFile)
	l.rawJSON.cleanupStoredFiles()
	return errors.Join(errs...)
}

// GetRunID returns the current runID
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// GetBaseDir returns the directory of this run
func (l *FileLogger) GetBaseDir() string {
	return l.logDir
}

// RawJSON returns the store for raw go test output.
func (l *FileLogger) RawJSON() *RawJSONSink {
	return l.rawJSON
}

func formatCheckBlock(report types.CheckReport) string {
	status := "UNKNOWN"
	if final, ok := report.Final(); ok {
		status = strings.ToUpper(string(final.Outcome))
	}

	var content strings.Builder
	fmt.Fprintf(&content, "\n")
	fmt.Fprintf(&content, "┌─────────────────────────────────────────────────────────────────────┐\n")
	fmt.Fprintf(&content, "│ CHECK: %-61s │\n", truncateString(report.CheckID, 61))
	fmt.Fprintf(&content, "├─────────────────────────────────────────────────────────────────────┤\n")
	fmt.Fprintf(&content, "│ Status:   %-58s │\n", status)
	fmt.Fprintf(&content, "│ Reruns:   %-58d │\n", report.Reruns())
	fmt.Fprintf(&content, "│ Duration: %-58s │\n", report.Duration())
	fmt.Fprintf(&content, "│ Time:     %-58s │\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&content, "└─────────────────────────────────────────────────────────────────────┘\n\n")

	for _, ev := range report.Events {
		fmt.Fprintf(&content, "%-8s %-8s %s\n", ev.Stage, ev.Outcome, ev.Duration)
		if ev.Detail != "" {
			fmt.Fprintf(&content, "%s\n", indentText(strings.TrimRight(ev.Detail, "\n"), "  "))
		}
	}
	fmt.Fprintf(&content, "\n")
	return content.String()
}

// Helper functions

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	replacer := strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
		"[", "_", "]", "_",
	)
	return replacer.Replace(s)
}

// indentText adds indentation to each line of text for better readability
func indentText(text, indent string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

// truncateString truncates a string to the specified max length
// and adds an ellipsis if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
