package browser

import (
	"encoding/json"
	"fmt"
)

// inspectScript snapshots the first element matching a CSS selector.
// Visible means a non-empty box that is not display:none, visibility:hidden or opacity:0.
// Enabled means not disabled, not inside a disabled fieldset and not aria-disabled.
const inspectScript = `(() => {
	const els = document.querySelectorAll(%s);
	const el = els[0];
	if (!el) {
		return {count: 0, visible: false, enabled: false, text: null, value: null, rect: null};
	}
	const style = window.getComputedStyle(el);
	const r = el.getBoundingClientRect();
	const visible = r.width > 0 && r.height > 0 &&
		style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
	const enabled = !el.disabled && !el.closest('fieldset[disabled]') &&
		el.getAttribute('aria-disabled') !== 'true';
	const value = (typeof el.value === 'string') ? el.value : null;
	return {
		count: els.length,
		visible: visible,
		enabled: enabled,
		text: el.textContent,
		value: value,
		rect: {x: r.x, y: r.y, width: r.width, height: r.height}
	};
})()`

// clearScript empties an input through the native value setter so framework
// bindings observe the change.
const clearScript = `(() => {
	const el = document.querySelector(%s);
	if (!el) return false;
	const proto = Object.getPrototypeOf(el);
	const desc = Object.getOwnPropertyDescriptor(proto, 'value');
	if (desc && desc.set) {
		desc.set.call(el, '');
	} else if (el.isContentEditable) {
		el.textContent = '';
	} else {
		el.value = '';
	}
	el.dispatchEvent(new Event('input', {bubbles: true}));
	return true;
})()`

// selectScript picks an option by value and fires input and change.
const selectScript = `(() => {
	const el = document.querySelector(%s);
	if (!el || !el.options) return false;
	const wanted = %s;
	const option = Array.from(el.options).find(o => o.value === wanted);
	if (!option) return false;
	el.value = wanted;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
})()`

// evaluateScript awaits expr and maps undefined to null.
const evaluateScript = `(async () => {
	const __vigil_value = await (%s);
	return __vigil_value === undefined ? null : __vigil_value;
})()`

// callScript calls the function expr evaluates to with JSON arguments.
const callScript = `(async () => {
	const __vigil_fn = (%s);
	const __vigil_value = await __vigil_fn(...%s);
	return __vigil_value === undefined ? null : __vigil_value;
})()`

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func buildInspect(selector string) string {
	return fmt.Sprintf(inspectScript, jsString(selector))
}

func buildClear(selector string) string {
	return fmt.Sprintf(clearScript, jsString(selector))
}

func buildSelect(selector, value string) string {
	return fmt.Sprintf(selectScript, jsString(selector), jsString(value))
}

func buildEvaluate(script string, args []interface{}) (string, error) {
	if len(args) == 0 {
		return fmt.Sprintf(evaluateScript, script), nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode evaluate args: %w", err)
	}
	return fmt.Sprintf(callScript, script, string(data)), nil
}
