package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/observe"
)

// textWriter renders human-readable reports. Colors follow the capabilities of
// target, the final destination, so files and pipes get plain text.
type textWriter struct {
	w      io.Writer
	pass   lipgloss.Style
	fail   lipgloss.Style
	errs   lipgloss.Style
	dim    lipgloss.Style
	bold   lipgloss.Style
	failed bool
}

func newTextWriter(w, target io.Writer) *textWriter {
	r := lipgloss.NewRenderer(target)
	return &textWriter{
		w:    w,
		pass: r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		fail: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		errs: r.NewStyle().Foreground(lipgloss.Color("5")).Bold(true),
		dim:  r.NewStyle().Faint(true),
		bold: r.NewStyle().Bold(true),
	}
}

func (t *textWriter) printf(format string, args ...interface{}) {
	if t.failed {
		return
	}
	if _, err := fmt.Fprintf(t.w, format, args...); err != nil {
		t.failed = true
	}
}

func (t *textWriter) scenarioBadge(status models.ScenarioStatus) string {
	switch status {
	case models.ScenarioStatusPassed:
		return t.pass.Render("PASS")
	case models.ScenarioStatusFailed:
		return t.fail.Render("FAIL")
	default:
		return t.errs.Render("ERROR")
	}
}

func (t *textWriter) stepBadge(status models.StepStatus) string {
	switch status {
	case models.StepStatusPassed:
		return t.pass.Render("ok  ")
	case models.StepStatusFailed:
		return t.fail.Render("FAIL")
	case models.StepStatusErrored:
		return t.errs.Render("ERR ")
	default:
		return t.dim.Render("skip")
	}
}

// result renders one scenario: header, every step, assertions, artifacts
func (t *textWriter) result(r *models.Result) error {
	header := fmt.Sprintf("%s %s (%s)", t.scenarioBadge(r.Status), t.bold.Render(r.Scenario), round(r.Duration))
	if r.SourceFile != "" {
		header += " " + t.dim.Render(r.SourceFile)
	}
	t.printf("%s\n", header)
	if r.Error != "" {
		t.printf("  error [%s]: %s\n", r.ErrorKind, r.Error)
	}

	for _, s := range r.Steps {
		line := fmt.Sprintf("  %s %2d %s", t.stepBadge(s.Status), s.Index, s.Name)
		if s.Attempts > 1 {
			line += t.dim.Render(fmt.Sprintf(" (%d attempts)", s.Attempts))
		}
		t.printf("%s\n", line)
		if s.Status != models.StepStatusFailed && s.Status != models.StepStatusErrored {
			continue
		}
		if s.ErrorKind != "" {
			t.printf("         kind:      %s\n", s.ErrorKind)
		}
		if s.Expected != "" {
			t.printf("         expected:  %s\n", s.Expected)
		}
		if s.Actual != "" {
			t.printf("         actual:    %s\n", s.Actual)
		}
		if s.Message != "" {
			t.printf("         message:   %s\n", s.Message)
		}
		for _, a := range s.Artifacts {
			t.printf("         artifact:  %s\n", a)
		}
	}

	if len(r.Assertions) > 0 {
		t.printf("  assertions:\n")
		for _, a := range r.Assertions {
			t.printf("  %s    %s %s\n", t.stepBadge(a.Status), a.Name,
				t.dim.Render(fmt.Sprintf("expected %s, got %s", a.Expected, a.Actual)))
		}
	}

	if len(r.Artifacts) > 0 {
		t.printf("  artifacts:\n")
		for _, a := range r.Artifacts {
			t.printf("    %s\n", a)
		}
	}
	if len(r.Observations) > 0 {
		t.printf("  observations: %d captured\n", len(r.Observations))
		for _, dir := range []models.Direction{models.DirectionSent, models.DirectionReceived} {
			if tally := frameTally(r.Observations, dir); tally != "" {
				t.printf("  ws %s: %s\n", dir, tally)
			}
		}
		for _, o := range lastObservations(r.Observations, 10) {
			t.printf("    %s\n", t.dim.Render(describeObservation(o)))
		}
	}
	t.printf("\n")

	if t.failed {
		return fmt.Errorf("text report truncated")
	}
	return nil
}

// summary renders the per-run tally
func (t *textWriter) summary(s *models.RunSummary) error {
	rule := strings.Repeat("-", 60)
	t.printf("%s\n", rule)
	t.printf("%s %d scenarios: %s passed, %s failed, %s errored in %s\n",
		t.bold.Render("Run"), s.Total,
		t.pass.Render(fmt.Sprint(s.Passed)),
		t.fail.Render(fmt.Sprint(s.Failed)),
		t.errs.Render(fmt.Sprint(s.Errored)),
		round(s.Duration))
	if s.Error != "" {
		t.printf("run aborted: %s\n", s.Error)
	}
	for _, r := range s.Results {
		if r == nil || r.Status == models.ScenarioStatusPassed {
			continue
		}
		t.printf("  %s %s\n", t.scenarioBadge(r.Status), r.Scenario)
	}
	t.printf("exit code %d\n", s.ExitCode)

	if t.failed {
		return fmt.Errorf("text summary truncated")
	}
	return nil
}

func lastObservations(obs []models.Observation, n int) []models.Observation {
	if len(obs) <= n {
		return obs
	}
	return obs[len(obs)-n:]
}

// frameTally renders WebSocket frame counts per message type, sorted by type
func frameTally(obs []models.Observation, dir models.Direction) string {
	counts := observe.CountByType(obs, dir)
	types := make([]string, 0, len(counts))
	for typ := range counts {
		types = append(types, typ)
	}
	sort.Strings(types)
	parts := make([]string, len(types))
	for i, typ := range types {
		parts[i] = fmt.Sprintf("%s=%d", typ, counts[typ])
	}
	return strings.Join(parts, " ")
}

func describeObservation(o models.Observation) string {
	parts := []string{fmt.Sprintf("#%d", o.Seq), string(o.Category)}
	if o.Level != "" {
		parts = append(parts, o.Level)
	}
	if o.Direction != "" {
		parts = append(parts, string(o.Direction))
	}
	if o.Type != "" {
		parts = append(parts, "type="+o.Type)
	}
	parts = append(parts, common.Truncate(o.Text, 100))
	return strings.Join(parts, " ")
}

func round(d time.Duration) time.Duration {
	if d > time.Second {
		return d.Round(10 * time.Millisecond)
	}
	return d.Round(time.Millisecond)
}
