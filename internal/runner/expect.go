package runner

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
)

// elementExpectation resolves what a probe step checks. Kinds imply a default:
// exists wants a match, visible and wait_for want it visible, hidden wants it not visible.
func elementExpectation(step models.Step) models.Expect {
	var exp models.Expect
	if step.Expect != nil {
		exp = *step.Expect
	}
	yes, no := true, false
	switch step.Kind {
	case models.StepExists:
		if exp.Exists == nil && exp.Count == nil {
			exp.Exists = &yes
		}
	case models.StepVisible, models.StepWaitFor:
		if exp.Visible == nil {
			exp.Visible = &yes
		}
	case models.StepHidden:
		exp.Visible = &no
	}
	return exp
}

// checkElement compares an element snapshot with exp.
// Requirements that need an element fail with ElementNotFoundError when nothing matched.
func checkElement(selector string, exp models.Expect, state models.ElementState) error {
	if exp.Exists != nil {
		if state.Exists() != *exp.Exists {
			if *exp.Exists {
				return &models.ElementNotFoundError{Selector: selector}
			}
			return mismatch(selector+" exists", "false", fmt.Sprintf("true (count=%d)", state.Count))
		}
		if !*exp.Exists {
			return nil
		}
	}

	if exp.Count != nil && state.Count != *exp.Count {
		return mismatch(selector+" count", fmt.Sprint(*exp.Count), fmt.Sprint(state.Count))
	}

	if exp.Visible != nil && !*exp.Visible {
		if state.Exists() && state.Visible {
			return mismatch(selector+" visible", "false", "true")
		}
	}

	needsElement := (exp.Visible != nil && *exp.Visible) || exp.Enabled != nil ||
		exp.Text != nil || exp.TextContains != "" || exp.Value != nil
	if !needsElement {
		return nil
	}
	if !state.Exists() {
		return &models.ElementNotFoundError{Selector: selector}
	}

	if exp.Visible != nil && *exp.Visible && !state.Visible {
		return mismatch(selector+" visible", "true", "false")
	}
	if exp.Enabled != nil && state.Enabled != *exp.Enabled {
		return mismatch(selector+" enabled", fmt.Sprint(*exp.Enabled), fmt.Sprint(state.Enabled))
	}
	if err := checkText(selector, exp, state.Text); err != nil {
		return err
	}
	if exp.Value != nil {
		actual := deref(state.Value)
		if actual != *exp.Value {
			return mismatch(selector+" value", quote(*exp.Value), quote(actual))
		}
	}
	return nil
}

// checkText compares trimmed textContent with exp.Text or exp.TextContains
func checkText(selector string, exp models.Expect, text *string) error {
	actual := strings.TrimSpace(deref(text))
	if exp.Text != nil && actual != strings.TrimSpace(*exp.Text) {
		return mismatch(selector+" text", quote(strings.TrimSpace(*exp.Text)), quote(actual))
	}
	if exp.TextContains != "" && !strings.Contains(actual, exp.TextContains) {
		return mismatch(selector+" text", "containing "+quote(exp.TextContains), quote(actual))
	}
	return nil
}

// checkBox requires a rendered box at least MinWidth x MinHeight, or non-zero without minimums
func checkBox(selector string, exp models.Expect, rect *models.Rect) error {
	if rect == nil {
		return &models.ElementNotFoundError{Selector: selector}
	}
	actual := fmt.Sprintf("%.0fx%.0f", rect.Width, rect.Height)
	if exp.MinWidth == 0 && exp.MinHeight == 0 {
		if rect.Width <= 0 || rect.Height <= 0 {
			return mismatch(selector+" size", "non-zero", actual)
		}
		return nil
	}
	if rect.Width < exp.MinWidth || rect.Height < exp.MinHeight {
		return mismatch(selector+" size", fmt.Sprintf(">= %.0fx%.0f", exp.MinWidth, exp.MinHeight), actual)
	}
	return nil
}

// jsonEqual compares two values after a JSON round trip so numbers,
// maps from different decoders and slices compare by value
func jsonEqual(expected, actual interface{}) bool {
	return reflect.DeepEqual(normalizeJSON(expected), normalizeJSON(actual))
}

func normalizeJSON(v interface{}) interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

// renderJSON formats a value for expected/actual report fields
func renderJSON(v interface{}) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return common.Truncate(string(raw), 200)
}

func mismatch(what, expected, actual string) error {
	return &models.AssertionMismatchError{What: what, Expected: expected, Actual: actual}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
