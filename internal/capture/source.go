package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"ipcollector/internal/domain"
)

const maxTrackedRequests = 10000

// Sink receives every observation the browser produces.
type Sink interface {
	Observe(ctx context.Context, obs domain.Observation) error
}

type Options struct {
	// ControlURL attaches to an already running browser. When empty a browser is launched.
	ControlURL string
	Headless   bool
	Proxy      string

	SeedURLs []string
	// VisitInterval separates seed rounds; IntervalUpdates may change it later.
	VisitInterval   time.Duration
	IntervalUpdates <-chan time.Duration
	VisitTimeout    time.Duration

	// SeedLeader, when set, restricts seed visits to the instance holding it.
	SeedLeader Leader
}

type Leader interface {
	Run(ctx context.Context, run func(context.Context)) error
}

// Source turns DevTools network events from every page of a browser into
// observations.
type Source struct {
	sink Sink
	opts Options

	tracker *requestTracker

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	attached map[proto.TargetTargetID]*attachment
}

// attachment ends the event loop of one page.
type attachment struct {
	cancel context.CancelFunc
}

func New(sink Sink, opts Options) *Source {
	return &Source{
		sink:     sink,
		opts:     opts,
		tracker:  newRequestTracker(maxTrackedRequests),
		attached: make(map[proto.TargetTargetID]*attachment),
	}
}

// Run connects to the browser and captures until ctx is cancelled.
func (s *Source) Run(ctx context.Context) error {
	browser, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(browser); err != nil {
		return fmt.Errorf("capture: discover targets: %w", err)
	}

	waitTargets := browser.Context(ctx).EachEvent(
		func(e *proto.TargetTargetCreated) {
			if e.TargetInfo == nil || e.TargetInfo.Type != proto.TargetTargetInfoTypePage {
				return
			}
			s.attachTarget(ctx, browser, e.TargetInfo.TargetID)
		},
		func(e *proto.TargetTargetDestroyed) {
			s.release(e.TargetID)
		},
	)
	go waitTargets()

	pages, err := browser.Pages()
	if err != nil {
		return fmt.Errorf("capture: list pages: %w", err)
	}
	for _, page := range pages {
		s.attachPage(ctx, page)
	}
	log.Info("Browser capture started", "pages", len(pages), "seeds", len(s.opts.SeedURLs))

	s.visitLoop(ctx, browser)
	log.Info("Browser capture stopped")
	return nil
}

func (s *Source) connect(ctx context.Context) (*rod.Browser, error) {
	controlURL := s.opts.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Leakless(true).
			Headless(s.opts.Headless).
			Set("disable-background-timer-throttling").
			Set("disable-renderer-backgrounding")
		if s.opts.Proxy != "" {
			l = l.Proxy(s.opts.Proxy)
		}

		url, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("capture: launch browser: %w", err)
		}
		s.mu.Lock()
		s.launcher = l
		s.mu.Unlock()
		controlURL = url
	}

	b := rod.New().ControlURL(controlURL)
	var err error
	for i := 0; i < 10; i++ {
		if err = b.Connect(); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(250*(i+1)) * time.Millisecond):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("capture: connect browser: %w", err)
	}

	s.mu.Lock()
	s.browser = b
	s.mu.Unlock()
	return b, nil
}

func (s *Source) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil && s.launcher != nil {
		_ = rod.Try(func() { s.browser.MustClose() })
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	s.browser = nil
	s.launcher = nil
}

func (s *Source) attachTarget(ctx context.Context, browser *rod.Browser, id proto.TargetTargetID) {
	page, err := browser.PageFromTarget(id)
	if err != nil {
		log.Debug("Failed to attach to new page", "target", id, "error", err)
		return
	}
	s.attachPage(ctx, page)
}

// track registers a page once. The returned context ends when the page is
// released or ctx is done; a nil attachment means the page is already tracked.
func (s *Source) track(ctx context.Context, id proto.TargetTargetID) (context.Context, *attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attached[id]; ok {
		return nil, nil
	}
	pageCtx, cancel := context.WithCancel(ctx)
	a := &attachment{cancel: cancel}
	s.attached[id] = a
	return pageCtx, a
}

// release stops the event loop of a page that went away.
func (s *Source) release(id proto.TargetTargetID) {
	s.mu.Lock()
	a := s.attached[id]
	delete(s.attached, id)
	s.mu.Unlock()

	if a != nil {
		a.cancel()
	}
}

// untrack drops a, leaving any newer attachment for the same target alone.
func (s *Source) untrack(id proto.TargetTargetID, a *attachment) {
	s.mu.Lock()
	if s.attached[id] == a {
		delete(s.attached, id)
	}
	s.mu.Unlock()
	a.cancel()
}

func (s *Source) attachedPages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attached)
}

func (s *Source) attachPage(ctx context.Context, page *rod.Page) {
	pageCtx, a := s.track(ctx, page.TargetID)
	if a == nil {
		return
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		log.Debug("Failed to enable network events", "target", page.TargetID, "error", err)
		s.untrack(page.TargetID, a)
		return
	}

	wait := page.Context(pageCtx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request != nil {
				s.tracker.remember(e.RequestID, e.Request.URL)
			}
		},
		func(e *proto.NetworkResponseReceived) {
			s.deliver(ctx, completedObservation(e))
		},
		func(e *proto.NetworkLoadingFinished) {
			s.tracker.forget(e.RequestID)
		},
		func(e *proto.NetworkLoadingFailed) {
			url, ok := s.tracker.forget(e.RequestID)
			if !ok {
				return
			}
			s.deliver(ctx, failedObservation(url))
		},
	)

	go func() {
		wait()
		s.untrack(page.TargetID, a)
	}()
}

func (s *Source) deliver(ctx context.Context, obs domain.Observation) {
	if err := s.sink.Observe(ctx, obs); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Failed to record observation", "url", obs.URL, "error", err)
	}
}

func (s *Source) visitLoop(ctx context.Context, browser *rod.Browser) {
	if len(s.opts.SeedURLs) == 0 {
		<-ctx.Done()
		return
	}

	if s.opts.SeedLeader != nil {
		err := s.opts.SeedLeader.Run(ctx, func(leaderCtx context.Context) {
			log.Info("Seed visits led by this instance")
			s.seedRounds(leaderCtx, browser)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Seed leadership ended", "error", err)
			<-ctx.Done()
		}
		return
	}
	s.seedRounds(ctx, browser)
}

func (s *Source) seedRounds(ctx context.Context, browser *rod.Browser) {
	interval := s.visitInterval()

	s.visitSeeds(ctx, browser)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.opts.IntervalUpdates:
			if d <= 0 || d == interval {
				continue
			}
			log.Info("Seed visit interval changed", "interval", d)
			interval = d
			s.mu.Lock()
			s.opts.VisitInterval = d
			s.mu.Unlock()
			timer.Reset(interval)
		case <-timer.C:
			s.visitSeeds(ctx, browser)
			timer.Reset(interval)
		}
	}
}

func (s *Source) visitInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.VisitInterval <= 0 {
		return 15 * time.Minute
	}
	return s.opts.VisitInterval
}

func (s *Source) visitSeeds(ctx context.Context, browser *rod.Browser) {
	for _, url := range s.opts.SeedURLs {
		if ctx.Err() != nil {
			return
		}
		if err := s.visit(ctx, browser, url); err != nil {
			log.Warn("Seed visit failed", "url", url, "error", err)
		}
	}
}

func (s *Source) visit(ctx context.Context, browser *rod.Browser, url string) error {
	page, err := stealth.Page(browser)
	if err != nil {
		return fmt.Errorf("stealth page: %w", err)
	}

	defer func() {
		_ = rod.Try(func() { page.MustClose() })
		s.release(page.TargetID)
	}()

	// the target watcher may not have seen this page yet
	s.attachPage(ctx, page)

	timeout := s.opts.VisitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := page.Timeout(timeout)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}
