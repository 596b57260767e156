package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/ternarybob/vigil/internal/models"
)

// Driver implements interfaces.ActionDriver. Every element action checks that
// the target is visible and enabled before dispatching input.
type Driver struct {
	session *Session
}

// keyNames maps readable key names to chromedp key sequences
var keyNames = map[string]string{
	"enter":      kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"space":      " ",
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
}

// KeySequence resolves a key name such as "Enter" or "ArrowDown"; anything else is typed literally
func KeySequence(key string) string {
	if seq, ok := keyNames[strings.ToLower(key)]; ok {
		return seq
	}
	return key
}

// requireInteractable is the precondition shared by element actions
func (d *Driver) requireInteractable(ctx context.Context, selector string) error {
	state, err := d.session.probe.Inspect(ctx, selector)
	if err != nil {
		return err
	}
	if !state.Exists() {
		return &models.ElementNotFoundError{Selector: selector}
	}
	if !state.Interactable() {
		return &models.ElementNotInteractableError{
			Selector: selector,
			Visible:  state.Visible,
			Enabled:  state.Enabled,
		}
	}
	return nil
}

// Click clicks the first element matching selector
func (d *Driver) Click(ctx context.Context, selector string) error {
	if err := d.requireInteractable(ctx, selector); err != nil {
		return err
	}
	if err := d.session.run(ctx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// Fill replaces the value of an input with text, typed key by key
func (d *Driver) Fill(ctx context.Context, selector, text string) error {
	if err := d.requireInteractable(ctx, selector); err != nil {
		return err
	}
	var cleared bool
	err := d.session.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.Evaluate(buildClear(selector), &cleared),
	)
	if err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	if !cleared {
		return &models.ElementNotFoundError{Selector: selector}
	}
	if text == "" {
		return nil
	}
	if err := d.session.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("fill %s: %w", selector, err)
	}
	return nil
}

// SelectOption selects the option with the given value
func (d *Driver) SelectOption(ctx context.Context, selector, value string) error {
	if err := d.requireInteractable(ctx, selector); err != nil {
		return err
	}
	var selected bool
	if err := d.session.run(ctx, chromedp.Evaluate(buildSelect(selector, value), &selected)); err != nil {
		return fmt.Errorf("select %s: %w", selector, err)
	}
	if !selected {
		return &models.ElementNotFoundError{Selector: fmt.Sprintf("%s option[value=%q]", selector, value)}
	}
	return nil
}

// PressKey focuses selector (when given) and dispatches key
func (d *Driver) PressKey(ctx context.Context, selector, key string) error {
	actions := make([]chromedp.Action, 0, 2)
	if selector != "" {
		if err := d.requireInteractable(ctx, selector); err != nil {
			return err
		}
		actions = append(actions, chromedp.Focus(selector, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.KeyEvent(KeySequence(key)))
	if err := d.session.run(ctx, actions...); err != nil {
		return fmt.Errorf("press %s: %w", key, err)
	}
	return nil
}

// Navigate loads url and waits for the load event
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.session.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}
