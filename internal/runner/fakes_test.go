package runner

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/observe"
)

// fakePage is an in-memory page: selectors map to element states and actions
// can trigger callbacks that change the page or emit observations.
type fakePage struct {
	mu        sync.Mutex
	elements  map[string]models.ElementState
	onClick   map[string]func(p *fakePage, o *fakeObserver)
	evalValue interface{}
	hang      bool  // probes block until their context ends
	failWith  error // returned by every probe, as from a crashed session

	navigated   []string
	filled      map[string]string
	screenshots []string
	clicks      map[string]int
}

func newFakePage() *fakePage {
	return &fakePage{
		elements: make(map[string]models.ElementState),
		onClick:  make(map[string]func(p *fakePage, o *fakeObserver)),
		filled:   make(map[string]string),
		clicks:   make(map[string]int),
	}
}

func visibleElement(text string) models.ElementState {
	return models.ElementState{
		Count:   1,
		Visible: true,
		Enabled: true,
		Text:    &text,
		Rect:    &models.Rect{Width: 100, Height: 20},
	}
}

func (p *fakePage) set(selector string, state models.ElementState) {
	p.mu.Lock()
	p.elements[selector] = state
	p.mu.Unlock()
}

func (p *fakePage) state(selector string) models.ElementState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.elements[selector]
}

type fakeSession struct {
	id       string
	page     *fakePage
	observer *fakeObserver
	closed   atomic.Bool
}

func newFakeSession(id string, page *fakePage) *fakeSession {
	return &fakeSession{id: id, page: page, observer: &fakeObserver{recorder: observe.NewRecorder(id)}}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Info() models.SessionInfo {
	state := models.SessionStateReady
	if s.closed.Load() {
		state = models.SessionStateClosed
	}
	return models.SessionInfo{ID: s.id, State: state}
}

func (s *fakeSession) Probe() interfaces.PageProbe        { return &fakeProbe{page: s.page} }
func (s *fakeSession) Driver() interfaces.ActionDriver    { return &fakeDriver{page: s.page, observer: s.observer} }
func (s *fakeSession) Observer() interfaces.EventObserver { return s.observer }

func (s *fakeSession) Screenshot(ctx context.Context, path string) error {
	s.page.mu.Lock()
	s.page.screenshots = append(s.page.screenshots, path)
	s.page.mu.Unlock()
	return nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeObserver struct {
	recorder *observe.Recorder
}

func (o *fakeObserver) StartCapture(ctx context.Context, filter models.ObservationFilter) error {
	return o.recorder.Start(filter)
}
func (o *fakeObserver) Record(obs models.Observation) { o.recorder.Record(obs) }
func (o *fakeObserver) Drain() []models.Observation   { return o.recorder.Drain() }

type fakeProbe struct {
	page *fakePage
}

func (p *fakeProbe) wait(ctx context.Context) error {
	p.page.mu.Lock()
	hang, failWith := p.page.hang, p.page.failWith
	p.page.mu.Unlock()
	if failWith != nil {
		return failWith
	}
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return ctx.Err()
}

func (p *fakeProbe) Inspect(ctx context.Context, selector string) (models.ElementState, error) {
	if err := p.wait(ctx); err != nil {
		return models.ElementState{}, err
	}
	return p.page.state(selector), nil
}

func (p *fakeProbe) Exists(ctx context.Context, selector string) (bool, error) {
	state, err := p.Inspect(ctx, selector)
	return state.Exists(), err
}

func (p *fakeProbe) IsVisible(ctx context.Context, selector string) (bool, error) {
	state, err := p.Inspect(ctx, selector)
	return state.Exists() && state.Visible, err
}

func (p *fakeProbe) BoundingBox(ctx context.Context, selector string) (*models.Rect, error) {
	state, err := p.Inspect(ctx, selector)
	if err != nil {
		return nil, err
	}
	if !state.Exists() {
		return nil, &models.ElementNotFoundError{Selector: selector}
	}
	return state.Rect, nil
}

func (p *fakeProbe) TextContent(ctx context.Context, selector string) (*string, error) {
	state, err := p.Inspect(ctx, selector)
	if err != nil {
		return nil, err
	}
	if !state.Exists() {
		return nil, &models.ElementNotFoundError{Selector: selector}
	}
	return state.Text, nil
}

func (p *fakeProbe) Count(ctx context.Context, selector string) (int, error) {
	state, err := p.Inspect(ctx, selector)
	return state.Count, err
}

func (p *fakeProbe) Evaluate(ctx context.Context, script string, args ...interface{}) (interface{}, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.page.mu.Lock()
	defer p.page.mu.Unlock()
	return p.page.evalValue, nil
}

type fakeDriver struct {
	page     *fakePage
	observer *fakeObserver
}

func (d *fakeDriver) require(selector string) error {
	state := d.page.state(selector)
	if !state.Exists() {
		return &models.ElementNotFoundError{Selector: selector}
	}
	if !state.Interactable() {
		return &models.ElementNotInteractableError{Selector: selector, Visible: state.Visible, Enabled: state.Enabled}
	}
	return nil
}

func (d *fakeDriver) Click(ctx context.Context, selector string) error {
	if err := d.require(selector); err != nil {
		return err
	}
	d.page.mu.Lock()
	d.page.clicks[selector]++
	fn := d.page.onClick[selector]
	d.page.mu.Unlock()
	if fn != nil {
		fn(d.page, d.observer)
	}
	return nil
}

func (d *fakeDriver) Fill(ctx context.Context, selector, text string) error {
	if err := d.require(selector); err != nil {
		return err
	}
	d.page.mu.Lock()
	d.page.filled[selector] = text
	d.page.mu.Unlock()
	return nil
}

func (d *fakeDriver) SelectOption(ctx context.Context, selector, value string) error {
	return d.Fill(ctx, selector, value)
}

func (d *fakeDriver) PressKey(ctx context.Context, selector, key string) error {
	if selector == "" {
		return nil
	}
	return d.require(selector)
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.page.mu.Lock()
	d.page.navigated = append(d.page.navigated, url)
	d.page.mu.Unlock()
	return nil
}

// fakeFactory hands out sessions over one shared page
type fakeFactory struct {
	mu       sync.Mutex
	page     *fakePage
	err      error
	opened   int
	sessions []*fakeSession
	setup    func(s *fakeSession)
}

func (f *fakeFactory) Open(ctx context.Context, config models.SessionConfig) (interfaces.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	if f.err != nil {
		return nil, f.err
	}
	s := newFakeSession("ses_fake", f.page)
	if f.setup != nil {
		f.setup(s)
	}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeFactory) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if !s.closed.Load() {
			return false
		}
	}
	return true
}
