// -----------------------------------------------------------------------
// Report Sink - renders results as json or text to stdout or files
// -----------------------------------------------------------------------

package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
)

// Format is the report encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Destination is where reports go
type Destination string

const (
	DestinationStdout Destination = "stdout"
	DestinationFile   Destination = "file"
)

// Handle describes where one report ended up. Err is set when the write failed;
// the failure has already been logged and echoed to stderr.
type Handle struct {
	Format      Format      `json:"format"`
	Destination Destination `json:"destination"`
	Path        string      `json:"path,omitempty"`
	Bytes       int         `json:"bytes"`
	Err         error       `json:"-"`
}

// Sink writes reports. It is safe for concurrent use and never panics on a
// well-formed result: write failures degrade to stderr.
type Sink struct {
	logger      arbor.ILogger
	format      Format
	destination Destination
	dir         string

	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

// Option configures a Sink
type Option func(*Sink)

// WithOutput replaces stdout and stderr
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Sink) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// NewSink creates a sink from the [report] configuration
func NewSink(logger arbor.ILogger, config common.ReportConfig, options ...Option) *Sink {
	s := &Sink{
		logger:      logger,
		format:      Format(config.Format),
		destination: Destination(config.Destination),
		dir:         config.Dir,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	if s.format != FormatJSON {
		s.format = FormatText
	}
	if s.destination != DestinationFile {
		s.destination = DestinationStdout
	}
	if s.dir == "" {
		s.dir = "reports"
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Write renders one scenario result
func (s *Sink) Write(result *models.Result) Handle {
	if result == nil {
		return s.fail(Handle{Format: s.format, Destination: s.destination}, fmt.Errorf("nil result"))
	}
	name := fmt.Sprintf("%s-%s", common.Slug(result.Scenario), result.ID)
	return s.emit(result.RunID, name, func(w io.Writer) error {
		if s.format == FormatJSON {
			return writeJSON(w, result)
		}
		return newTextWriter(w, s.colorTarget()).result(result)
	})
}

// WriteSummary renders the per-run summary
func (s *Sink) WriteSummary(summary *models.RunSummary) Handle {
	if summary == nil {
		return s.fail(Handle{Format: s.format, Destination: s.destination}, fmt.Errorf("nil summary"))
	}
	return s.emit(summary.RunID, "summary", func(w io.Writer) error {
		if s.format == FormatJSON {
			return writeJSON(w, summaryView(summary))
		}
		return newTextWriter(w, s.colorTarget()).summary(summary)
	})
}

// emit renders into memory first so a rendering error never leaves half a report behind
func (s *Sink) emit(runID, name string, render func(io.Writer) error) (handle Handle) {
	handle = Handle{Format: s.format, Destination: s.destination}
	defer func() {
		if recovered := recover(); recovered != nil {
			handle = s.fail(handle, fmt.Errorf("report rendering panicked: %v", recovered))
		}
	}()

	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return s.fail(handle, fmt.Errorf("failed to render report: %w", err))
	}
	handle.Bytes = buf.Len()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destination == DestinationStdout {
		if _, err := s.stdout.Write(buf.Bytes()); err != nil {
			return s.failLocked(handle, fmt.Errorf("failed to write report to stdout: %w", err))
		}
		return handle
	}

	ext := ".txt"
	if s.format == FormatJSON {
		ext = ".json"
	}
	dir := s.dir
	if runID != "" {
		dir = filepath.Join(dir, runID)
	}
	handle.Path = filepath.Join(dir, name+ext)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return s.failLocked(handle, fmt.Errorf("failed to create report directory: %w", err))
	}
	if err := os.WriteFile(handle.Path, buf.Bytes(), 0644); err != nil {
		return s.failLocked(handle, fmt.Errorf("failed to write report file: %w", err))
	}
	s.logger.Debug().Str("path", handle.Path).Int("bytes", handle.Bytes).Msg("Report written")
	return handle
}

// colorTarget is the writer whose terminal capabilities decide text colors
func (s *Sink) colorTarget() io.Writer {
	if s.destination == DestinationStdout {
		return s.stdout
	}
	return io.Discard
}

func (s *Sink) fail(handle Handle, err error) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failLocked(handle, err)
}

func (s *Sink) failLocked(handle Handle, err error) Handle {
	handle.Err = err
	s.logger.Error().Err(err).Str("path", handle.Path).Msg("Report write failed")
	fmt.Fprintf(s.stderr, "vigil: report write failed: %v\n", err)
	return handle
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// summaryView keeps the summary report small: per-scenario lines instead of full results
func summaryView(summary *models.RunSummary) interface{} {
	type line struct {
		Scenario  string                `json:"scenario"`
		Status    models.ScenarioStatus `json:"status"`
		ErrorKind string                `json:"error_kind,omitempty"`
		Duration  string                `json:"duration"`
		Artifacts []string              `json:"artifacts,omitempty"`
	}
	lines := make([]line, 0, len(summary.Results))
	for _, r := range summary.Results {
		if r == nil {
			continue
		}
		lines = append(lines, line{
			Scenario:  r.Scenario,
			Status:    r.Status,
			ErrorKind: r.ErrorKind,
			Duration:  r.Duration.String(),
			Artifacts: r.Artifacts,
		})
	}
	return struct {
		RunID     string `json:"run_id"`
		Total     int    `json:"total"`
		Passed    int    `json:"passed"`
		Failed    int    `json:"failed"`
		Errored   int    `json:"errored"`
		ExitCode  int    `json:"exit_code"`
		Error     string `json:"error,omitempty"`
		Duration  string `json:"duration"`
		Scenarios []line `json:"scenarios"`
	}{
		RunID:     summary.RunID,
		Total:     summary.Total,
		Passed:    summary.Passed,
		Failed:    summary.Failed,
		Errored:   summary.Errored,
		ExitCode:  summary.ExitCode,
		Error:     summary.Error,
		Duration:  summary.Duration.String(),
		Scenarios: lines,
	}
}
