package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/claimgate/api/schemas"
	"github.com/xkilldash9x/claimgate/internal/config"
	"go.uber.org/zap"
)

// ErrLaunch wraps any failure to start Chrome. Callers treat it as fatal.
var ErrLaunch = errors.New("browser launch failed")

const defaultCloseTimeout = 5 * time.Second

// Session owns one headless Chrome process and its single tab. It implements
// schemas.Page.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

var _ schemas.Page = (*Session)(nil)

// NewSession launches Chrome and opens a blank tab. The returned session lives
// until Close is called or parent is canceled.
func NewSession(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	logger = logger.Named("browser")

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, DefaultAllocatorOptions(cfg)...)

	ctxOpts := []chromedp.ContextOption{
		chromedp.WithErrorf(logger.Sugar().Debugf),
	}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(logger.Sugar().Debugf), chromedp.WithDebugf(logger.Sugar().Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	// The first Run starts the browser process.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	logger.Debug("Browser session started.", zap.Bool("headless", cfg.Headless))

	return &Session{
		cfg:         cfg,
		logger:      logger,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

// run executes actions against the tab, bounded by ctx as well as the session.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(s.tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(opCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("navigation to %s timed out: %w", url, err)
		}
		if Unreachable(err) {
			return fmt.Errorf("%w: %s: %w", schemas.ErrTargetUnreachable, url, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// QueryAll returns all nodes matching selector without waiting for any to appear.
func (s *Session) QueryAll(ctx context.Context, selector string) ([]schemas.Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return s.wrap(nodes), nil
}

// URL reports the tab's current location.
func (s *Session) URL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// Text returns the visible text of the current document.
func (s *Session) Text(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return ExtractText(html)
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close shuts the tab and then the browser process down. Each step is
// bounded by the configured close timeout and logged on its own.
func (s *Session) Close() error {
	timeout := s.cfg.CloseTimeout
	if timeout <= 0 {
		timeout = defaultCloseTimeout
	}

	var alloc chromedp.Allocator
	if c := chromedp.FromContext(s.tabCtx); c != nil {
		alloc = c.Allocator
	}

	tabErr := s.closeWithin("tab", timeout, func() error {
		// The close command needs a live context even when the caller's
		// context, and with it the tab's, is already canceled.
		closeCtx, cancel := context.WithTimeout(Detach(s.tabCtx), timeout)
		defer cancel()
		err := chromedp.Cancel(closeCtx)
		s.tabCancel()
		return err
	})
	allocErr := s.closeWithin("allocator", timeout, func() error {
		s.allocCancel()
		if alloc != nil {
			// Blocks until the Chrome process has exited.
			alloc.Wait()
		}
		return nil
	})
	return errors.Join(tabErr, allocErr)
}

func (s *Session) closeWithin(what string, timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("Browser close failed.", zap.String("target", what), zap.Error(err))
			return fmt.Errorf("close %s: %w", what, err)
		}
		s.logger.Debug("Browser closed.", zap.String("target", what))
		return nil
	case <-time.After(timeout):
		s.logger.Warn("Browser close timed out.", zap.String("target", what), zap.Duration("timeout", timeout))
		return fmt.Errorf("close %s: timed out after %s", what, timeout)
	}
}

func (s *Session) wrap(nodes []*cdp.Node) []schemas.Element {
	out := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.NodeType != cdp.NodeTypeElement {
			continue
		}
		out = append(out, &element{session: s, node: n})
	}
	return out
}

// Network errors Chrome reports while loading a page that mean the target
// itself cannot be reached. net::ERR_ABORTED and timeouts are not among them.
var unreachableErrors = []string{
	"net::ERR_NAME_NOT_RESOLVED",
	"net::ERR_NAME_RESOLUTION_FAILED",
	"net::ERR_CONNECTION_REFUSED",
	"net::ERR_CONNECTION_RESET",
	"net::ERR_CONNECTION_CLOSED",
	"net::ERR_CONNECTION_FAILED",
	"net::ERR_ADDRESS_UNREACHABLE",
	"net::ERR_ADDRESS_INVALID",
	"net::ERR_INTERNET_DISCONNECTED",
	"net::ERR_NETWORK_CHANGED",
	"net::ERR_SSL_PROTOCOL_ERROR",
	"net::ERR_CERT_",
	"net::ERR_EMPTY_RESPONSE",
	"net::ERR_PROXY_CONNECTION_FAILED",
}

// Unreachable reports whether a navigation error is a network-level failure.
func Unreachable(err error) bool {
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	for _, code := range unreachableErrors {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}
