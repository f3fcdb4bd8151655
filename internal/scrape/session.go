package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/applytrail/tracker/internal/tracker"
)

// DefaultLoginURL is the platform's credential login page.
const DefaultLoginURL = "https://www.linkedin.com/login"

const cardSelector = `div[data-chameleon-result-urn]`
const nextButtonSelector = `button[aria-label='Next']`

// SessionConfig controls the headless browser session.
type SessionConfig struct {
	UserAgent   string
	Headless    bool
	UserDataDir string
	OpTimeout   time.Duration
	LoginURL    string
	Email       string
	Password    string
}

// Session is a single logged-in browser tab implementing tracker.ListingPage.
// All operations run sequentially against the same tab; the tab carries the
// login cookies and scroll position for the whole run.
type Session struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	cfg         SessionConfig
	logger      *zap.Logger
}

// NewSession starts a browser and opens the tab. The caller must Close the
// session on every exit path.
func NewSession(cfg SessionConfig, logger *zap.Logger) (*Session, error) {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 45 * time.Second
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("start-maximized", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Session{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

// Close tears down the tab and the browser allocator.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.tabCancel()
	s.allocCancel()
}

// Login performs the credential login flow. It is a no-op when no email is
// configured, which covers sessions reusing a persistent user data dir.
func (s *Session) Login(ctx context.Context) error {
	if s.cfg.Email == "" {
		s.logger.Info("no credentials configured, assuming existing browser profile session")
		return nil
	}
	err := s.run(ctx,
		chromedp.Navigate(s.cfg.LoginURL),
		chromedp.WaitVisible(`#username`, chromedp.ByID),
		chromedp.SendKeys(`#username`, s.cfg.Email, chromedp.ByID),
		chromedp.SendKeys(`#password`, s.cfg.Password, chromedp.ByID),
		chromedp.Click(`button[type='submit']`, chromedp.ByQuery),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("linkedin login: %w", err)
	}
	s.logger.Info("logged into linkedin")
	return nil
}

// Navigate loads url and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// ScrollStep scrolls forward half a viewport.
func (s *Session) ScrollStep(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Evaluate(`window.scrollBy(0, window.innerHeight/2)`, nil)); err != nil {
		return fmt.Errorf("scroll step: %w", err)
	}
	return nil
}

// ContentLength measures the loaded document height, the signal the
// stabilization loop converges on.
func (s *Session) ContentLength(ctx context.Context) (int, error) {
	var height int
	if err := s.run(ctx, chromedp.Evaluate(`document.body.scrollHeight`, &height)); err != nil {
		return 0, fmt.Errorf("content length: %w", err)
	}
	return height, nil
}

// ListCards enumerates the currently visible cards. Each handle addresses
// its card by DOM position, so a re-rendered page makes old handles stale.
func (s *Session) ListCards(ctx context.Context) ([]tracker.Card, error) {
	var urns []string
	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(e => e.getAttribute('data-chameleon-result-urn') || '')`,
		cardSelector,
	)
	if err := s.run(ctx, chromedp.Evaluate(script, &urns)); err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	cards := make([]tracker.Card, len(urns))
	for i, urn := range urns {
		cards[i] = &sessionCard{session: s, index: i, urn: urn}
	}
	return cards, nil
}

// ClickNext activates the next-page control.
func (s *Session) ClickNext(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Click(nextButtonSelector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click next: %w", err)
	}
	return nil
}

// NextDisabled reports whether the next-page control is missing or disabled.
func (s *Session) NextDisabled(ctx context.Context) (bool, error) {
	var probe struct {
		Found    bool `json:"found"`
		Disabled bool `json:"disabled"`
	}
	script := fmt.Sprintf(`(() => {
	const btn = document.querySelector(%q);
	if (!btn) return {found: false, disabled: true};
	const cls = btn.getAttribute('class') || '';
	return {found: true, disabled: btn.disabled || cls.includes('disabled')};
})()`, nextButtonSelector)
	if err := s.run(ctx, chromedp.Evaluate(script, &probe)); err != nil {
		return true, fmt.Errorf("probe next button: %w", err)
	}
	return probe.Disabled, nil
}

// HTML returns the rendered document, used for snapshot archival.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML(`html`, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("capture html: %w", err)
	}
	return html, nil
}

// run executes actions on the session tab under the op timeout, honoring
// caller cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.tabCtx, s.cfg.OpTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	return chromedp.Run(opCtx, actions...)
}

// sessionCard addresses one listing card by its enumeration position.
type sessionCard struct {
	session *Session
	index   int
	urn     string
}

type cardProbe struct {
	Ok   bool   `json:"ok"`
	Text string `json:"text"`
}

func (c *sessionCard) Identifier(context.Context) (string, error) {
	return c.urn, nil
}

func (c *sessionCard) Text(ctx context.Context) (string, error) {
	script := fmt.Sprintf(`(() => {
	const els = document.querySelectorAll(%q);
	const el = els[%d];
	if (!el) return {ok: false, text: ""};
	return {ok: true, text: el.innerText || ""};
})()`, cardSelector, c.index)
	return c.session.probeText(ctx, script)
}

func (c *sessionCard) SubText(ctx context.Context, selector string) (string, error) {
	script := fmt.Sprintf(`(() => {
	const els = document.querySelectorAll(%q);
	const el = els[%d];
	if (!el) return {ok: false, text: ""};
	const sub = el.querySelector(%q);
	if (!sub) return {ok: false, text: ""};
	return {ok: true, text: sub.innerText || ""};
})()`, cardSelector, c.index, selector)
	return c.session.probeText(ctx, script)
}

func (s *Session) probeText(ctx context.Context, script string) (string, error) {
	var probe cardProbe
	if err := s.run(ctx, chromedp.Evaluate(script, &probe)); err != nil {
		return "", fmt.Errorf("card probe: %w", err)
	}
	if !probe.Ok {
		return "", fmt.Errorf("card element detached")
	}
	return probe.Text, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
