package scrape

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"

	"github.com/permaevidence/HopPT/internal/helpers"
	"github.com/permaevidence/HopPT/internal/webctx"
)

const (
	// Rendering contexts are heavyweight; unbounded parallelism risks
	// resource exhaustion, so local scrapes share a small permit pool.
	defaultMaxRenderers = 3

	defaultRenderTimeout = 45 * time.Second
	defaultUserAgent     = "HopPT/1.0 (+https://github.com/permaevidence/HopPT)"

	stabilityPollInterval = 500 * time.Millisecond
	stabilitySamples      = 3
	stabilityTolerance    = 0.02

	scrollStepPx    = 800
	scrollStepPause = 200 * time.Millisecond
)

// Requests to third-party consent-management hosts are blocked outright so
// banners never load.
var consentHostPatterns = []string{
	"*cookielaw.org*",
	"*onetrust.com*",
	"*cookiebot.com*",
	"*usercentrics.eu*",
	"*trustarc.com*",
	"*quantcast.mgr.consensu.org*",
	"*sourcepoint.mgr.consensu.org*",
	"*didomi.io*",
	"*consent.google.com*",
}

// Any consent DOM that still renders is hidden by a style injected at
// document start.
const consentHideScript = `(function() {
	var css = '#onetrust-banner-sdk, #onetrust-consent-sdk, #CybotCookiebotDialog, ' +
		'.qc-cmp2-container, #didomi-host, #sp_message_container, [id^="sp_message"], ' +
		'.cc-window, .truste_overlay, .truste_box_overlay, [class*="cookie-banner"], ' +
		'[id*="cookie-consent"] { display: none !important; }';
	function inject() {
		var style = document.createElement('style');
		style.textContent = css;
		(document.head || document.documentElement).appendChild(style);
	}
	if (document.readyState === 'loading') {
		document.addEventListener('DOMContentLoaded', inject);
	} else {
		inject();
	}
})();`

// LocalStrategy renders pages in an isolated headless browsing context and
// extracts readable content. Direct PDF URLs bypass rendering entirely.
type LocalStrategy struct {
	timeout    time.Duration
	userAgent  string
	permits    chan struct{}
	httpClient *http.Client
	converter  *converter.Converter
	logger     *log.Logger

	// renderHTML is swappable so tests can count concurrent renders
	// without a browser.
	renderHTML func(ctx context.Context, url string) (string, error)
}

// NewLocalStrategy builds the chromedp-backed strategy.
func NewLocalStrategy(timeout time.Duration, maxRenderers int, userAgent string, logger *log.Logger) *LocalStrategy {
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	if maxRenderers <= 0 {
		maxRenderers = defaultMaxRenderers
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[RENDER] ", log.LstdFlags)
	}
	s := &LocalStrategy{
		timeout:    timeout,
		userAgent:  userAgent,
		permits:    make(chan struct{}, maxRenderers),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		logger: logger,
	}
	s.renderHTML = s.chromedpRender
	return s
}

// Fetch renders rawURL and extracts its content. PDFs are detected by
// extension or a HEAD content-type sniff and extracted directly.
func (s *LocalStrategy) Fetch(ctx context.Context, rawURL string) (*webctx.ScrapedDoc, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, errors.New("empty url")
	}
	if s.isPDF(ctx, rawURL) {
		return s.fetchPDF(ctx, rawURL)
	}

	// Acquire a renderer permit; cancellation is observed while waiting.
	select {
	case s.permits <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.permits }()

	renderCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	html, err := s.renderHTML(renderCtx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("render failed: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(rawURL))
	if err != nil {
		return nil, fmt.Errorf("content extraction failed: %w", err)
	}

	doc := &webctx.ScrapedDoc{
		URL:    rawURL,
		Source: helpers.Host(rawURL),
		Title:  strings.TrimSpace(article.Title),
	}
	if md, err := s.converter.ConvertString(article.Content, converter.WithDomain(rawURL)); err == nil && strings.TrimSpace(md) != "" {
		doc.Markdown = strings.TrimSpace(md)
	} else {
		doc.Text = strings.TrimSpace(article.TextContent)
	}
	if doc.Body() == "" {
		return nil, errors.New("extraction produced empty content")
	}
	return doc, nil
}

// isPDF checks the URL extension, then falls back to a HEAD sniff. Sniff
// failures are treated as "not a PDF" and rendering proceeds.
func (s *LocalStrategy) isPDF(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err == nil && strings.HasSuffix(strings.ToLower(parsed.Path), ".pdf") {
		return true
	}
	headCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(headCtx, "HEAD", rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return strings.Contains(resp.Header.Get("Content-Type"), "application/pdf")
}

type stabilityProbe struct {
	Ready  bool `json:"ready"`
	Text   int  `json:"text"`
	Height int  `json:"height"`
}

const stabilityProbeJS = `({
	ready: document.readyState === 'complete',
	text: document.body ? document.body.innerText.length : 0,
	height: document.body ? document.body.scrollHeight : 0
})`

// chromedpRender navigates a fresh non-persistent browser context to the
// URL, waits for content stability, triggers lazy-loaded content by
// scrolling, and returns the final DOM.
func (s *LocalStrategy) chromedpRender(ctx context.Context, rawURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("incognito", true),
		chromedp.UserAgent(s.userAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		network.Enable(),
		network.SetBlockedURLs(consentHostPatterns),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(consentHideScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(rawURL),
		s.waitForStability(),
		s.triggerLazyLoad(),
		s.waitForStability(),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

// waitForStability polls readiness, text length and layout height until
// both vary by at most 2% across consecutive samples for a fixed number of
// samples, bounded by the surrounding render timeout.
func (s *LocalStrategy) waitForStability() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var prev stabilityProbe
		stable := 0
		for {
			select {
			case <-ctx.Done():
				// Timeout is not fatal: whatever rendered so far is used.
				return nil
			case <-time.After(stabilityPollInterval):
			}

			var probe stabilityProbe
			if err := chromedp.Evaluate(stabilityProbeJS, &probe).Do(ctx); err != nil {
				return err
			}
			if probe.Ready && withinTolerance(prev.Text, probe.Text) && withinTolerance(prev.Height, probe.Height) {
				stable++
				if stable >= stabilitySamples {
					return nil
				}
			} else {
				stable = 0
			}
			prev = probe
		}
	})
}

func withinTolerance(prev, cur int) bool {
	if prev == 0 && cur == 0 {
		return true
	}
	larger := prev
	if cur > larger {
		larger = cur
	}
	delta := prev - cur
	if delta < 0 {
		delta = -delta
	}
	return float64(delta)/float64(larger) <= stabilityTolerance
}

// triggerLazyLoad scrolls the full scroll height in fixed steps, then
// returns to the top, so below-the-fold content loads before extraction.
func (s *LocalStrategy) triggerLazyLoad() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var height int
		if err := chromedp.Evaluate(`document.body ? document.body.scrollHeight : 0`, &height).Do(ctx); err != nil {
			return err
		}
		for y := 0; y < height; y += scrollStepPx {
			if err := chromedp.Evaluate(fmt.Sprintf(`window.scrollTo(0, %d)`, y), nil).Do(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(scrollStepPause):
			}
		}
		return chromedp.Evaluate(`window.scrollTo(0, 0)`, nil).Do(ctx)
	})
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
