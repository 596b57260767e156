package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/ternarybob/vigil/internal/models"
)

// Probe implements interfaces.PageProbe with in-page JavaScript queries.
// It never dispatches input events or changes page state.
type Probe struct {
	session *Session
}

type inspectResult struct {
	Count   int          `json:"count"`
	Visible bool         `json:"visible"`
	Enabled bool         `json:"enabled"`
	Text    *string      `json:"text"`
	Value   *string      `json:"value"`
	Rect    *models.Rect `json:"rect"`
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// Inspect returns the state of the first element matching selector
func (p *Probe) Inspect(ctx context.Context, selector string) (models.ElementState, error) {
	var res inspectResult
	if err := p.session.run(ctx, chromedp.Evaluate(buildInspect(selector), &res)); err != nil {
		return models.ElementState{}, fmt.Errorf("inspect %s: %w", selector, err)
	}
	state := models.ElementState{
		Count:   res.Count,
		Visible: res.Visible,
		Enabled: res.Enabled,
	}
	if res.Count > 0 {
		state.Text = res.Text
		state.Value = res.Value
		state.Rect = res.Rect
	}
	return state, nil
}

// Exists reports whether at least one element matches
func (p *Probe) Exists(ctx context.Context, selector string) (bool, error) {
	state, err := p.Inspect(ctx, selector)
	if err != nil {
		return false, err
	}
	return state.Exists(), nil
}

// IsVisible reports whether the first match is rendered and visible. Absence is not visible.
func (p *Probe) IsVisible(ctx context.Context, selector string) (bool, error) {
	state, err := p.Inspect(ctx, selector)
	if err != nil {
		return false, err
	}
	return state.Exists() && state.Visible, nil
}

// BoundingBox returns the first match's box relative to the viewport
func (p *Probe) BoundingBox(ctx context.Context, selector string) (*models.Rect, error) {
	state, err := p.Inspect(ctx, selector)
	if err != nil {
		return nil, err
	}
	if !state.Exists() || state.Rect == nil {
		return nil, &models.ElementNotFoundError{Selector: selector}
	}
	return state.Rect, nil
}

// TextContent returns the first match's textContent
func (p *Probe) TextContent(ctx context.Context, selector string) (*string, error) {
	state, err := p.Inspect(ctx, selector)
	if err != nil {
		return nil, err
	}
	if !state.Exists() {
		return nil, &models.ElementNotFoundError{Selector: selector}
	}
	return state.Text, nil
}

// Count returns how many elements match
func (p *Probe) Count(ctx context.Context, selector string) (int, error) {
	state, err := p.Inspect(ctx, selector)
	if err != nil {
		return 0, err
	}
	return state.Count, nil
}

// Evaluate runs script in page context and returns its JSON value.
// Promises are awaited and undefined becomes nil.
func (p *Probe) Evaluate(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	expr, err := buildEvaluate(script, args)
	if err != nil {
		return nil, err
	}
	var res interface{}
	if err := p.session.run(ctx, chromedp.Evaluate(expr, &res, awaitPromise)); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return res, nil
}
