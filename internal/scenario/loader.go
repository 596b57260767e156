// -----------------------------------------------------------------------
// Scenario loader - TOML/YAML files with placeholder substitution
// -----------------------------------------------------------------------

// Package scenario loads scenario definitions from TOML and YAML files.
package scenario

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
)

// File is the on-disk layout: [[scenario]] tables in TOML, a scenarios list in YAML
type File struct {
	Scenarios []models.Scenario `toml:"scenario" yaml:"scenarios"`
}

// Loader reads, expands and validates scenario files
type Loader struct {
	logger   arbor.ILogger
	vars     map[string]string
	validate *validator.Validate
}

// NewLoader creates a loader. vars are substituted for {name} references before parsing.
func NewLoader(logger arbor.ILogger, vars map[string]string) *Loader {
	return &Loader{
		logger:   logger,
		vars:     vars,
		validate: validator.New(),
	}
}

// Load reads a scenario file, or every .toml/.yaml/.yml file under a directory in name order
func (l *Loader) Load(path string) ([]models.Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios %s: %w", path, err)
	}

	var files []string
	if info.IsDir() {
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isScenarioFile(p) {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan scenario directory %s: %w", path, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no scenario files found in %s", path)
		}
	} else {
		files = []string{path}
	}

	var all []models.Scenario
	seen := make(map[string]string)
	for _, file := range files {
		scenarios, err := l.LoadFile(file)
		if err != nil {
			return nil, err
		}
		for _, sc := range scenarios {
			if previous, dup := seen[sc.Name]; dup {
				return nil, fmt.Errorf("%s: scenario %q already defined in %s", file, sc.Name, previous)
			}
			seen[sc.Name] = file
		}
		all = append(all, scenarios...)
	}

	l.logger.Debug().
		Str("path", path).
		Int("files", len(files)).
		Int("scenarios", len(all)).
		Msg("Scenarios loaded")

	return all, nil
}

// LoadFile reads one scenario file; the format follows the extension
func (l *Loader) LoadFile(path string) ([]models.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file %s: %w", path, err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return l.Parse(data, format, path)
}

// Parse decodes and validates scenarios from data. format is toml, yaml or yml.
func (l *Loader) Parse(data []byte, format, source string) ([]models.Scenario, error) {
	text := common.ReplaceKeyReferences(string(data), l.vars, l.logger)

	var file File
	switch format {
	case "toml":
		if err := toml.Unmarshal([]byte(text), &file); err != nil {
			return nil, fmt.Errorf("%s: failed to parse TOML: %w", source, err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal([]byte(text), &file); err != nil {
			return nil, fmt.Errorf("%s: failed to parse YAML: %w", source, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported scenario format %q (use .toml, .yaml or .yml)", source, format)
	}

	if len(file.Scenarios) == 0 {
		return nil, fmt.Errorf("%s: no scenarios defined", source)
	}

	for i := range file.Scenarios {
		sc := &file.Scenarios[i]
		sc.SourceFile = source
		if err := l.Validate(sc); err != nil {
			name := sc.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i+1)
			}
			return nil, fmt.Errorf("%s: scenario %q: %w", source, name, err)
		}
	}
	return file.Scenarios, nil
}

var stepIndexPattern = regexp.MustCompile(`Steps\[(\d+)\]`)

// Validate checks struct tags and the per-kind field requirements
func (l *Loader) Validate(sc *models.Scenario) error {
	if err := l.validate.Struct(sc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				field := strings.TrimPrefix(fe.Namespace(), "Scenario.")
				field = stepIndexPattern.ReplaceAllStringFunc(field, func(m string) string {
					n, _ := strconv.Atoi(stepIndexPattern.FindStringSubmatch(m)[1])
					return fmt.Sprintf("step %d", n+1)
				})
				if fe.Param() != "" {
					msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
				} else {
					msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
				}
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	for i, step := range sc.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Label(), err)
		}
	}
	for i, q := range sc.Assertions {
		if err := validatePattern(q.Pattern); err != nil {
			return fmt.Errorf("assertion %d: %w", i+1, err)
		}
	}
	if sc.Capture != nil {
		if err := validatePattern(sc.Capture.Pattern); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
	}
	return nil
}

func validateStep(step models.Step) error {
	if step.Kind.NeedsSelector() && step.Selector == "" {
		return fmt.Errorf("selector is required for %s", step.Kind)
	}
	if step.Retry != nil && step.Retry.Timeout <= 0 {
		return fmt.Errorf("retry.timeout must be positive")
	}
	if step.Kind.IsAction() && step.Expect != nil {
		return fmt.Errorf("expect is not allowed on %s: follow the action with a check step", step.Kind)
	}

	switch step.Kind {
	case models.StepNavigate:
		if step.URL == "" {
			return fmt.Errorf("url is required for navigate")
		}
	case models.StepSelect:
		if step.Value == "" {
			return fmt.Errorf("value is required for select")
		}
	case models.StepPress:
		if step.Key == "" {
			return fmt.Errorf("key is required for press")
		}
	case models.StepEvaluate:
		if step.Script == "" {
			return fmt.Errorf("script is required for evaluate")
		}
	case models.StepHTTP:
		if step.HTTP == nil {
			return fmt.Errorf("http block is required for http steps")
		}
	case models.StepWS:
		if step.WS == nil {
			return fmt.Errorf("ws block is required for ws steps")
		}
		if step.WS.Send != nil && step.WS.SendText != "" {
			return fmt.Errorf("ws.send and ws.send_text are mutually exclusive")
		}
	case models.StepObserve:
		if step.Observe == nil {
			return fmt.Errorf("observe block is required for observe steps")
		}
		if err := validatePattern(step.Observe.Pattern); err != nil {
			return err
		}
	case models.StepCount:
		if step.Expect == nil || step.Expect.Count == nil {
			return fmt.Errorf("expect.count is required for count")
		}
	case models.StepText:
		if step.Expect == nil || (step.Expect.Text == nil && step.Expect.TextContains == "") {
			return fmt.Errorf("expect.text or expect.text_contains is required for text")
		}
	}
	return nil
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return nil
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return nil
}

func isScenarioFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".yaml", ".yml":
		return true
	}
	return false
}

// Filter keeps scenarios whose name is in names or that carry one of tags.
// Empty names and tags keep everything.
func Filter(scenarios []models.Scenario, names, tags []string) []models.Scenario {
	if len(names) == 0 && len(tags) == 0 {
		return scenarios
	}
	wantName := make(map[string]bool, len(names))
	for _, n := range names {
		wantName[n] = true
	}
	wantTag := make(map[string]bool, len(tags))
	for _, t := range tags {
		wantTag[t] = true
	}

	out := make([]models.Scenario, 0, len(scenarios))
	for _, sc := range scenarios {
		keep := wantName[sc.Name]
		for _, t := range sc.Tags {
			if wantTag[t] {
				keep = true
			}
		}
		if keep {
			out = append(out, sc)
		}
	}
	return out
}
