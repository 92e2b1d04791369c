package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

// StatusError reports an HTTP error response.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StaticOptions configures the HTTP driver.
type StaticOptions struct {
	UserAgent        string
	Timeout          time.Duration
	RespectRobotsTxt bool
	// Transport overrides the collector transport; tests pass a mock.
	Transport http.RoundTripper
	Limiter   *rate.Limiter
}

// StaticFactory serves sessions that fetch raw HTML without running scripts.
// Scrolling is a no-op and lookups never wait.
type StaticFactory struct {
	opts StaticOptions
}

// NewStaticFactory builds a static HTTP driver.
func NewStaticFactory(opts StaticOptions) *StaticFactory {
	return &StaticFactory{opts: opts}
}

func (f *StaticFactory) NewSession(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options := []colly.CollectorOption{colly.AllowURLRevisit()}
	if f.opts.UserAgent != "" {
		options = append(options, colly.UserAgent(f.opts.UserAgent))
	}
	collector := colly.NewCollector(options...)
	if f.opts.Timeout > 0 {
		collector.SetRequestTimeout(f.opts.Timeout)
	}
	collector.IgnoreRobotsTxt = !f.opts.RespectRobotsTxt
	if f.opts.Transport != nil {
		collector.WithTransport(f.opts.Transport)
	}

	s := &staticSession{collector: collector, limiter: f.opts.Limiter}
	collector.OnResponse(func(r *colly.Response) {
		s.body = r.Body
		s.base = r.Request.URL
	})
	collector.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			s.status = r.StatusCode
		}
	})
	return s, nil
}

func (f *StaticFactory) Close() error {
	return nil
}

type staticSession struct {
	collector *colly.Collector
	limiter   *rate.Limiter

	body   []byte
	status int
	base   *url.URL
	root   *html.Node
	doc    *goquery.Document
	closed bool
}

func (s *staticSession) Navigate(ctx context.Context, target string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("navigate %s: %w", target, err)
		}
	}

	s.body, s.root, s.doc = nil, nil, nil
	s.status = 0
	if err := s.collector.Visit(target); err != nil {
		if s.status >= http.StatusBadRequest {
			err = &StatusError{Code: s.status, Err: err}
		}
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	if s.body == nil {
		return fmt.Errorf("navigate %s: empty response", target)
	}

	root, err := htmlquery.Parse(bytes.NewReader(s.body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", target, err)
	}
	s.root = root
	s.doc = goquery.NewDocumentFromNode(root)
	return nil
}

func (s *staticSession) nodes(loc Locator) ([]*html.Node, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.root == nil {
		return nil, errors.New("browser: no page loaded")
	}
	if loc.Kind == XPath {
		nodes, err := htmlquery.QueryAll(s.root, loc.Expr)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", loc, err)
		}
		return nodes, nil
	}
	return s.doc.Find(loc.Expr).Nodes, nil
}

// WaitElement does not wait: the document is complete once fetched.
func (s *staticSession) WaitElement(ctx context.Context, loc Locator, _ time.Duration) (Element, error) {
	return s.Find(ctx, loc)
}

func (s *staticSession) Find(_ context.Context, loc Locator) (Element, error) {
	nodes, err := s.nodes(loc)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, loc)
	}
	return &staticElement{node: nodes[0], base: s.base}, nil
}

func (s *staticSession) FindAll(_ context.Context, loc Locator) ([]Element, error) {
	nodes, err := s.nodes(loc)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &staticElement{node: n, base: s.base})
	}
	return out, nil
}

func (s *staticSession) ScrollHeight(context.Context) (int, error) { return 0, nil }

func (s *staticSession) ScrollTo(context.Context, int) error { return nil }

func (s *staticSession) ScrollBy(context.Context, int) error { return nil }

func (s *staticSession) Close() error {
	s.closed = true
	s.body, s.root, s.doc = nil, nil, nil
	return nil
}

type staticElement struct {
	node *html.Node
	base *url.URL
}

func (e *staticElement) Text() (string, error) {
	return htmlquery.InnerText(e.node), nil
}

func (e *staticElement) Attribute(name string) (string, bool, error) {
	for _, attr := range e.node.Attr {
		if attr.Key == name {
			return attr.Val, true, nil
		}
	}
	return "", false, nil
}

func (e *staticElement) Href() (string, error) {
	href := htmlquery.SelectAttr(e.node, "href")
	if href == "" {
		return "", nil
	}
	if e.base == nil {
		return href, nil
	}
	resolved, err := e.base.Parse(href)
	if err != nil {
		return "", fmt.Errorf("resolve href %q: %w", href, err)
	}
	return resolved.String(), nil
}
