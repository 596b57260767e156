package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

// createTestLogger creates a logger for testing
func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestReplaceKeyReferences_Simple(t *testing.T) {
	vars := map[string]string{"base_url": "http://localhost:5173"}

	result := ReplaceKeyReferences(`url = "{base_url}/settings"`, vars, createTestLogger())
	assert.Equal(t, `url = "http://localhost:5173/settings"`, result)
}

func TestReplaceKeyReferences_Multiple(t *testing.T) {
	vars := map[string]string{
		"key1": "val1",
		"key2": "val2",
		"key3": "val3",
	}

	result := ReplaceKeyReferences("key1={key1}, key2={key2}, key3={key3}", vars, createTestLogger())
	assert.Equal(t, "key1=val1, key2=val2, key3=val3", result)
}

func TestReplaceKeyReferences_MissingKey(t *testing.T) {
	vars := map[string]string{"other-key": "value"}

	input := "api_key = {missing-key}"
	assert.Equal(t, input, ReplaceKeyReferences(input, vars, createTestLogger()))
}

func TestReplaceKeyReferences_ScriptBodiesUnchanged(t *testing.T) {
	vars := map[string]string{"base_url": "http://localhost:5173"}

	input := `script = "() => { const {x} = window.state; return x }"`
	assert.Equal(t, input, ReplaceKeyReferences(input, vars, nil))
}

func TestScenarioVariables(t *testing.T) {
	t.Setenv("VIGIL_VAR_USER_EMAIL", "qa@example.com")

	config := NewDefaultConfig()
	config.Runner.BaseURL = "http://localhost:5173/"
	config.Runner.APIURL = "http://localhost:5175"

	vars := ScenarioVariables(config)
	assert.Equal(t, "http://localhost:5173", vars["base_url"])
	assert.Equal(t, "http://localhost:5175", vars["api_url"])
	assert.Equal(t, "qa@example.com", vars["user_email"])
}
