// Package common provides configuration, logging and {name} variable replacement.
//
// Scenario files may reference variables with the {name} syntax. Before a file
// is parsed, references are replaced with values from the variable map.
//
// Example:
//
//	Input:  url = "{base_url}/settings"
//	Vars:   {"base_url": "http://localhost:5173"}
//	Output: url = "http://localhost:5173/settings"
//
// Replacement is case-sensitive. Unknown names are left unchanged so script
// bodies containing braces survive untouched.
package common

import (
	"os"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
)

// keyRefPattern matches {name} references in strings
// Allows alphanumeric characters, hyphens, and underscores
var keyRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// VariableEnvPrefix marks environment variables exposed to scenario files
const VariableEnvPrefix = "VIGIL_VAR_"

// ReplaceKeyReferences replaces all {name} references in input with values from vars.
// Unresolved references are left unchanged and logged at debug level.
func ReplaceKeyReferences(input string, vars map[string]string, logger arbor.ILogger) string {
	if input == "" || len(vars) == 0 {
		return input
	}

	return keyRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[1 : len(match)-1]
		if value, exists := vars[name]; exists {
			return value
		}
		if logger != nil {
			logger.Debug().Str("reference", match).Msg("Unresolved variable reference left unchanged")
		}
		return match
	})
}

// ScenarioVariables returns the variables available to scenario files:
// base_url, api_url and every VIGIL_VAR_<NAME> environment variable as <name>.
func ScenarioVariables(config *Config) map[string]string {
	vars := map[string]string{
		"base_url": strings.TrimRight(config.Runner.BaseURL, "/"),
		"api_url":  strings.TrimRight(config.APIBaseURL(), "/"),
	}
	for _, entry := range os.Environ() {
		if !strings.HasPrefix(entry, VariableEnvPrefix) {
			continue
		}
		kv := strings.SplitN(strings.TrimPrefix(entry, VariableEnvPrefix), "=", 2)
		if len(kv) == 2 && kv[0] != "" {
			vars[strings.ToLower(kv[0])] = kv[1]
		}
	}
	return vars
}
