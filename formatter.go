package rerun

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-rerun/reporting"
	"github.com/ethereum-optimism/infra/op-rerun/runner"
)

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(result *runner.Result) error
}

// ConsoleResultFormatter prints the results table.
type ConsoleResultFormatter struct {
	logger      log.Logger
	writer      reporting.ReportWriter
	showMembers bool
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter writing to
// w, or stdout when w is nil.
func NewConsoleResultFormatter(logger log.Logger, w reporting.ReportWriter, showMembers bool) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger:      logger,
		writer:      w,
		showMembers: showMembers,
	}
}

// FormatResults formats and displays the run results.
func (f *ConsoleResultFormatter) FormatResults(result *runner.Result) error {
	f.logger.Debug("Printing results...")
	title := fmt.Sprintf("Rerun Results (%s)", formatDuration(result.Duration))
	if err := reporting.NewTableReporter(title, f.showMembers, f.writer).Print(result.Checks); err != nil {
		return fmt.Errorf("printing results table: %w", err)
	}
	return nil
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
