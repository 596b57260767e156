// -----------------------------------------------------------------------
// Browser Session Manager - one Chrome process and one page per session
// -----------------------------------------------------------------------

package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/httpclient"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// DefaultStartTimeout bounds browser launch plus target reachability
const DefaultStartTimeout = 30 * time.Second

// permissionTypes maps configured permission names to CDP permission types
var permissionTypes = map[string][]browser.PermissionType{
	"microphone":    {browser.PermissionTypeAudioCapture},
	"camera":        {browser.PermissionTypeVideoCapture},
	"notifications": {browser.PermissionTypeNotifications},
	"geolocation":   {browser.PermissionTypeGeolocation},
	"clipboard":     {browser.PermissionTypeClipboardReadWrite, browser.PermissionTypeClipboardSanitizedWrite},
}

// Manager opens chromedp-backed sessions
type Manager struct {
	logger arbor.ILogger
}

// NewManager creates a session manager
func NewManager(logger arbor.ILogger) *Manager {
	return &Manager{logger: logger}
}

var _ interfaces.SessionFactory = (*Manager)(nil)

// Open launches a browser and a page. Any failure is a *models.SessionStartError
// and leaves no process or profile behind.
func (m *Manager) Open(ctx context.Context, config models.SessionConfig) (interfaces.Session, error) {
	startTimeout := config.StartTimeout
	if startTimeout <= 0 {
		startTimeout = DefaultStartTimeout
	}
	startErr := func(err error) error {
		return &models.SessionStartError{Target: config.TargetURL, Err: err}
	}

	permissions, err := resolvePermissions(config.Permissions)
	if err != nil {
		return nil, startErr(err)
	}

	if config.TargetURL != "" {
		if err := httpclient.WaitReachable(ctx, config.TargetURL, startTimeout, 500*time.Millisecond); err != nil {
			return nil, startErr(err)
		}
	}

	profileDir, err := os.MkdirTemp("", "vigil-profile-")
	if err != nil {
		return nil, startErr(fmt.Errorf("failed to create browser profile: %w", err))
	}

	s := &Session{
		logger:     m.logger,
		profileDir: profileDir,
		info: models.SessionInfo{
			ID:          common.NewSessionID(),
			Viewport:    config.Viewport,
			Permissions: append([]string(nil), config.Permissions...),
			State:       models.SessionStateStarting,
			StartedAt:   time.Now(),
		},
	}
	s.observer = newObserver(s.info.ID)
	s.probe = &Probe{session: s}
	s.driver = &Driver{session: s}

	// The session outlives the caller's open context, so the browser hangs off Background
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(config, profileDir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	s.ctx = browserCtx
	s.cancelBrowser = browserCancel
	s.cancelAlloc = allocCancel

	chromedp.ListenTarget(browserCtx, s.observer.handleEvent)

	if err := s.start(ctx, startTimeout, config, permissions); err != nil {
		_ = s.Close()
		return nil, startErr(err)
	}

	s.setState(models.SessionStateReady)
	m.logger.Debug().
		Str("session_id", s.info.ID).
		Bool("headless", config.Headless).
		Int("width", config.Viewport.Width).
		Int("height", config.Viewport.Height).
		Strs("permissions", config.Permissions).
		Msg("Browser session ready")

	return s, nil
}

// start allocates the browser on the first Run. That Run must use the session
// context itself, so the start budget is enforced by cancelling the session.
func (s *Session) start(ctx context.Context, timeout time.Duration, config models.SessionConfig, permissions []browser.PermissionType) error {
	actions := []chromedp.Action{
		network.Enable(),
		runtime.Enable(),
	}
	if config.Viewport.Width > 0 && config.Viewport.Height > 0 {
		actions = append(actions, chromedp.EmulateViewport(int64(config.Viewport.Width), int64(config.Viewport.Height)))
	}
	if len(permissions) > 0 {
		grant := browser.GrantPermissions(permissions)
		if origin := originOf(config.TargetURL); origin != "" {
			grant = grant.WithOrigin(origin)
		}
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			c := chromedp.FromContext(ctx)
			return grant.Do(cdp.WithExecutor(ctx, c.Browser))
		}))
	}

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(s.ctx, actions...)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		return nil
	case <-timer.C:
		s.cancelBrowser()
		<-done
		return fmt.Errorf("browser did not start within %v", timeout)
	case <-ctx.Done():
		s.cancelBrowser()
		<-done
		return ctx.Err()
	}
}

func allocatorOptions(config models.SessionConfig, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("no-sandbox", config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.UserDataDir(profileDir),
	)
	if config.Viewport.Width > 0 && config.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(config.Viewport.Width, config.Viewport.Height))
	}
	if config.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(config.ChromePath))
	}
	if needsFakeMedia(config.Permissions) {
		opts = append(opts,
			chromedp.Flag("use-fake-ui-for-media-stream", true),
			chromedp.Flag("use-fake-device-for-media-stream", true),
			chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		)
	}
	for _, arg := range config.Args {
		name, value := parseArg(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseArg turns "--name=value" or "name" into a chromedp flag
func parseArg(arg string) (string, interface{}) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if name, value, ok := strings.Cut(arg, "="); ok {
		return name, value
	}
	return arg, true
}

func resolvePermissions(names []string) ([]browser.PermissionType, error) {
	var out []browser.PermissionType
	for _, name := range names {
		types, ok := permissionTypes[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown permission %q", name)
		}
		out = append(out, types...)
	}
	return out, nil
}

func needsFakeMedia(names []string) bool {
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "microphone", "camera":
			return true
		}
	}
	return false
}

func originOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Session is one browser process plus one page
type Session struct {
	logger     arbor.ILogger
	profileDir string

	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc

	observer *Observer
	probe    *Probe
	driver   *Driver

	mu   sync.Mutex
	info models.SessionInfo

	closeOnce sync.Once
	closeErr  error
}

var _ interfaces.Session = (*Session)(nil)

// ID returns the session id
func (s *Session) ID() string {
	return s.info.ID
}

// Info returns a snapshot of the session attributes
func (s *Session) Info() models.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info
	info.Permissions = append([]string(nil), s.info.Permissions...)
	return info
}

// Probe returns the page probe
func (s *Session) Probe() interfaces.PageProbe {
	return s.probe
}

// Driver returns the action driver
func (s *Session) Driver() interfaces.ActionDriver {
	return s.driver
}

// Observer returns the event observer
func (s *Session) Observer() interfaces.EventObserver {
	return s.observer
}

// Screenshot writes a PNG of the viewport to path
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

// Close shuts the browser down, waits for the process to exit and removes the profile.
// Safe to call more than once and from any goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.ctx != nil {
			// Graceful close first; cancelling the allocator then kills anything left
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			done := make(chan error, 1)
			go func() { done <- chromedp.Cancel(s.ctx) }()
			select {
			case err := <-done:
				if err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Debug().Err(err).Str("session_id", s.info.ID).Msg("Graceful browser close failed")
				}
			case <-closeCtx.Done():
			}
			cancel()
			s.cancelBrowser()
			s.cancelAlloc()
		}
		if s.profileDir != "" {
			if err := os.RemoveAll(s.profileDir); err != nil {
				s.closeErr = fmt.Errorf("failed to remove browser profile %s: %w", s.profileDir, err)
			}
		}
		s.setState(models.SessionStateClosed)
		s.logger.Debug().Str("session_id", s.info.ID).Msg("Browser session closed")
	})
	return s.closeErr
}

func (s *Session) setState(state models.SessionState) {
	s.mu.Lock()
	s.info.State = state
	s.mu.Unlock()
}

// run executes actions on the page, bounded by the caller's ctx as well as the session
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.Info().State == models.SessionStateClosed {
		return fmt.Errorf("session %s is closed", s.info.ID)
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

// browserPID returns the Chrome process id, or 0 before start
func (s *Session) browserPID() int {
	if s.ctx == nil {
		return 0
	}
	c := chromedp.FromContext(s.ctx)
	if c == nil || c.Browser == nil || c.Browser.Process() == nil {
		return 0
	}
	return c.Browser.Process().Pid
}
