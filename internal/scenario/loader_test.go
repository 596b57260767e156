package scenario

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/models"
)

func newTestLoader() *Loader {
	return NewLoader(arbor.NewLogger(), map[string]string{
		"base_url": "http://localhost:5173",
		"api_url":  "http://localhost:5175",
	})
}

func TestLoadFile_VoiceChatTOML(t *testing.T) {
	scenarios, err := newTestLoader().LoadFile("testdata/voice_chat.toml")
	require.NoError(t, err)
	require.Len(t, scenarios, 1)

	sc := scenarios[0]
	assert.Equal(t, "voice chat send", sc.Name)
	assert.Equal(t, models.FailurePolicyContinue, sc.Policy)
	assert.Equal(t, time.Minute, sc.Timeout.Std())
	assert.Equal(t, "testdata/voice_chat.toml", sc.SourceFile)
	require.NotNil(t, sc.Capture)
	assert.Len(t, sc.Capture.Categories, 3)

	require.Len(t, sc.Steps, 7)
	assert.Equal(t, "http://localhost:5173/", sc.Steps[0].URL, "variables are expanded")

	visible := sc.Steps[1]
	assert.Equal(t, models.StepVisible, visible.Kind)
	assert.Equal(t, `[data-testid="voice-tab"]`, visible.Selector)
	require.NotNil(t, visible.Retry)
	assert.Equal(t, 5*time.Second, visible.Retry.Timeout.Std())
	assert.Equal(t, 250*time.Millisecond, visible.Retry.PollInterval.Std())

	assert.True(t, sc.Steps[2].Critical)
	assert.Equal(t, "ping", sc.Steps[4].Text)

	observe := sc.Steps[6]
	require.NotNil(t, observe.Observe)
	assert.Equal(t, models.CategoryWebSocket, observe.Observe.Category)
	assert.Equal(t, models.DirectionSent, observe.Observe.Direction)
	require.NotNil(t, observe.Observe.Count)
	assert.Equal(t, 1, *observe.Observe.Count)

	require.Len(t, sc.Assertions, 2)
	assert.Equal(t, "response.create", sc.Assertions[0].Type)
	require.NotNil(t, sc.Assertions[0].Max)
	assert.Equal(t, 1, *sc.Assertions[0].Max)
}

func TestLoadFile_OrchestrateYAML(t *testing.T) {
	scenarios, err := newTestLoader().LoadFile("testdata/orchestrate.yaml")
	require.NoError(t, err)
	require.Len(t, scenarios, 1)

	step := scenarios[0].Steps[0]
	require.NotNil(t, step.HTTP)
	assert.Equal(t, "POST", step.HTTP.Method)
	assert.Equal(t, "http://localhost:5175/api/orchestrate", step.HTTP.Path)
	assert.Equal(t, map[string]interface{}{"query": "Show PLTR chart"}, step.HTTP.Body)
	require.Len(t, step.HTTP.JSON, 3)
	assert.Equal(t, "CHART:PLTR", step.HTTP.JSON[0].Contains)
	require.NotNil(t, step.HTTP.JSON[0].Occurrences)
	assert.Equal(t, 1, *step.HTTP.JSON[0].Occurrences)
}

func TestLoad_DirectoryInNameOrder(t *testing.T) {
	scenarios, err := newTestLoader().Load("testdata/suite")
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "login page", scenarios[0].Name)
	assert.Equal(t, "settings page", scenarios[1].Name)
	assert.Equal(t, models.FailurePolicyAbort, scenarios[1].Policy)
	assert.True(t, scenarios[1].Steps[2].ExpectsAbsence())
}

func TestLoad_DuplicateNamesRejected(t *testing.T) {
	dir := t.TempDir()
	content := "[[scenario]]\nname = \"same\"\n[[scenario.steps]]\nkind = \"navigate\"\nurl = \"/\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.toml"), []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.toml"), []byte(content), 0644))

	_, err := newTestLoader().Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already defined")
}

func TestParse_ValidationErrorsNameFileScenarioAndStep(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "missing name",
			content: "[[scenario]]\n[[scenario.steps]]\nkind = \"navigate\"\nurl = \"/\"\n",
			want:    []string{"x.toml", "#1", "Name failed required"},
		},
		{
			name:    "unknown kind",
			content: "[[scenario]]\nname = \"s\"\n[[scenario.steps]]\nkind = \"navigate\"\nurl = \"/\"\n[[scenario.steps]]\nkind = \"hover\"\n",
			want:    []string{"scenario \"s\"", "step 2", "oneof"},
		},
		{
			name:    "missing selector",
			content: "[[scenario]]\nname = \"s\"\n[[scenario.steps]]\nkind = \"click\"\n",
			want:    []string{"step 1", "selector is required"},
		},
		{
			name:    "expect on action",
			content: "[[scenario]]\nname = \"s\"\n[[scenario.steps]]\nkind = \"click\"\nselector = \"#send\"\nexpect = { visible = true }\n",
			want:    []string{"step 1", "expect is not allowed on click"},
		},
		{
			name:    "no steps",
			content: "[[scenario]]\nname = \"s\"\n",
			want:    []string{"Steps failed required"},
		},
		{
			name:    "bad pattern",
			content: "[[scenario]]\nname = \"s\"\n[[scenario.steps]]\nkind = \"observe\"\nobserve = { pattern = \"(\" }\n",
			want:    []string{"invalid pattern"},
		},
		{
			name:    "bad duration",
			content: "[[scenario]]\nname = \"s\"\ntimeout = \"soon\"\n[[scenario.steps]]\nkind = \"drain\"\n",
			want:    []string{"x.toml", "invalid duration"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader().Parse([]byte(tt.content), "toml", "x.toml")
			require.Error(t, err)
			for _, want := range tt.want {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestParse_UnsupportedFormat(t *testing.T) {
	_, err := newTestLoader().Parse([]byte("{}"), "json", "x.json")
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	scenarios := []models.Scenario{
		{Name: "a", Tags: []string{"smoke"}},
		{Name: "b"},
		{Name: "c", Tags: []string{"voice"}},
	}
	assert.Len(t, Filter(scenarios, nil, nil), 3)

	got := Filter(scenarios, []string{"b"}, []string{"voice"})
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, "c", got[1].Name)
}
