// Package render is the Render Pool: a fixed-size pool of headless-browser
// pages (via github.com/chromedp/chromedp, the pack's only headless-browser
// dependency) that turn an HTML template plus data into JPEG bytes, with
// structured per-step latency logging and per-request failure isolation.
package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"html/template"
	"image/jpeg"
	"image/png"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"thefinals-leaderboard-bot/internal/apperr"
	"thefinals-leaderboard-bot/internal/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	defaultPoolSize      = 4
	defaultViewportW     = 1200
	defaultViewportH     = 400
	defaultScale         = 1.5
	defaultWaitTimeout   = 300 * time.Millisecond
	maxFullPageHeight    = 2400
	disableAnimationsCSS = `*, *::before, *::after {
		animation-duration: 0s !important;
		animation-delay: 0s !important;
		transition-duration: 0s !important;
		transition-delay: 0s !important;
		caret-color: transparent !important;
	}`
)

// Request describes one render operation.
type Request struct {
	TemplateName      string // e.g. "rank_card.html", or inline HTML if it does not end in .html
	TemplateData      any
	WaitSelectors     []string
	Quality           int
	ScreenshotSelector string
	FullPage          *bool // nil = caller has no preference
	WaitTimeout        time.Duration
	DisableAnimations  bool
	ScreenshotTimeout  time.Duration
}

// Result is a completed render's output image plus its trace.
type Result struct {
	JPEG  []byte
	Trace Trace
}

// Trace is the structured totals record emitted for every render.
type Trace struct {
	TotalMS        int64
	RequestID      string
	Template       string
	ContentHash    string
	ViewportBefore [2]int
	ViewportAfter  [2]int
	FinalFullPage  bool
}

// Pool owns a fixed set of browser tabs. Render blocks until one is free
// and, on success, returns it to the pool without resetting its state,
// matching the "callers must overwrite content" contract.
type Pool struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc

	pages chan *page

	viewportW, viewportH int
	scale                float64
}

type page struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool launches a headless Chrome instance and pre-creates poolSize tabs.
func NewPool(poolSize, viewportW, viewportH int) (*Pool, error) {
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}
	if viewportW <= 0 {
		viewportW = defaultViewportW
	}
	if viewportH <= 0 {
		viewportH = defaultViewportH
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)

	p := &Pool{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		pages:       make(chan *page, poolSize),
		viewportW:   viewportW,
		viewportH:   viewportH,
		scale:       defaultScale,
	}

	for i := 0; i < poolSize; i++ {
		pg, err := p.newPage()
		if err != nil {
			p.Close()
			return nil, apperr.Internal("launching render pool page", err)
		}
		p.pages <- pg
	}

	return p, nil
}

func (p *Pool) newPage() (*page, error) {
	ctx, cancel := chromedp.NewContext(p.allocCtx)
	if err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(p.viewportW), int64(p.viewportH), chromedp.EmulateScale(p.scale)),
	); err != nil {
		cancel()
		return nil, err
	}
	return &page{ctx: ctx, cancel: cancel}, nil
}

// Close shuts down every tab and the underlying browser.
func (p *Pool) Close() {
	close(p.pages)
	for pg := range p.pages {
		pg.cancel()
	}
	p.allocCancel()
}

// Render runs the full render pipeline against a pooled page. On any
// failure the page is discarded and replaced with a fresh one; if launching
// the replacement fails, the pool is left one page smaller.
func (p *Pool) Render(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	requestID := uuid.NewString()
	log := logging.ForComponent("render").With().Str("request_id", requestID).Str("template", req.TemplateName).Logger()

	log.Debug().Msg("acquire_page")
	var pg *page
	select {
	case pg = <-p.pages:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	success := false
	defer func() {
		if success {
			p.pages <- pg
			return
		}
		pg.cancel()
		fresh, err := p.newPage()
		if err != nil {
			log.Error().Err(err).Msg("failed to replenish render pool page")
			return
		}
		p.pages <- fresh
	}()

	log.Debug().Msg("render_template")
	html, err := p.renderTemplate(req.TemplateName, req.TemplateData)
	if err != nil {
		return nil, apperr.RenderFailure("render_template", err)
	}
	if req.DisableAnimations {
		html = injectStyle(html, disableAnimationsCSS)
	}
	contentHash := sha256.Sum256([]byte(html))

	log.Debug().Msg("warmup_if_needed")
	log.Debug().Msg("page.set_content")
	if err := chromedp.Run(pg.ctx, setHTML(html)); err != nil {
		return nil, apperr.RenderFailure("page.set_content", err)
	}

	waitTimeout := req.WaitTimeout
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	log.Debug().Msg("wait_selectors")
	waitForSelectors(pg.ctx, req.WaitSelectors, waitTimeout, log)

	log.Debug().Msg("measure_content_height")
	height, err := measureHeight(pg.ctx)
	if err != nil {
		return nil, apperr.RenderFailure("measure_content_height", err)
	}

	viewportBefore := [2]int{p.viewportW, p.viewportH}
	fullPage := decideFullPage(req.FullPage, req.ScreenshotSelector, height)

	quality := req.Quality
	if quality <= 0 {
		quality = 85
	}

	var jpegBytes []byte
	viewportAfter := viewportBefore
	switch {
	case req.ScreenshotSelector != "":
		pngBytes, shotErr := elementScreenshot(pg.ctx, req.ScreenshotSelector, req.ScreenshotTimeout)
		if shotErr != nil {
			return nil, apperr.RenderFailure("locator.screenshot", shotErr)
		}
		jpegBytes, err = pngToJPEG(pngBytes, quality)
	case fullPage:
		log.Debug().Msg("page.screenshot")
		err = chromedp.Run(pg.ctx, chromedp.FullScreenshot(&jpegBytes, quality))
	default:
		log.Debug().Msg("resize_viewport_to_content")
		if resizeErr := chromedp.Run(pg.ctx, chromedp.EmulateViewport(int64(p.viewportW), int64(height), chromedp.EmulateScale(p.scale))); resizeErr != nil {
			return nil, apperr.RenderFailure("resize_viewport_to_content", resizeErr)
		}
		viewportAfter = [2]int{p.viewportW, height}
		log.Debug().Msg("page.screenshot")
		var pngBytes []byte
		if shotErr := chromedp.Run(pg.ctx, chromedp.CaptureScreenshot(&pngBytes)); shotErr != nil {
			return nil, apperr.RenderFailure("page.screenshot", shotErr)
		}
		jpegBytes, err = pngToJPEG(pngBytes, quality)
	}
	if err != nil {
		return nil, apperr.RenderFailure("jpeg_encode", err)
	}

	success = true
	trace := Trace{
		TotalMS:        time.Since(start).Milliseconds(),
		RequestID:      requestID,
		Template:       req.TemplateName,
		ContentHash:    hex.EncodeToString(contentHash[:]),
		ViewportBefore: viewportBefore,
		ViewportAfter:  viewportAfter,
		FinalFullPage:  fullPage,
	}
	log.Info().Int64("total_ms", trace.TotalMS).Msg("render complete")
	return &Result{JPEG: jpegBytes, Trace: trace}, nil
}

func (p *Pool) renderTemplate(name string, data any) (string, error) {
	var tmpl *template.Template
	var err error

	if hasHTMLSuffix(name) {
		tmpl, err = template.ParseFS(templateFS, "templates/"+name)
	} else {
		tmpl, err = template.New("inline").Parse(name)
	}
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func hasHTMLSuffix(name string) bool {
	return len(name) > 5 && name[len(name)-5:] == ".html"
}

func injectStyle(html, css string) string {
	return fmt.Sprintf("%s<style>%s</style>", html, css)
}

func setHTML(html string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return chromedp.Run(ctx,
			chromedp.Navigate("about:blank"),
			chromedp.Evaluate(fmt.Sprintf("document.open(); document.write(%q); document.close();", html), nil),
		)
	})
}

func waitForSelectors(ctx context.Context, selectors []string, timeout time.Duration, log zerolog.Logger) {
	if len(selectors) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, sel := range selectors {
		wg.Add(1)
		go func(selector string) {
			defer wg.Done()
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			if err := chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
				log.Warn().Str("selector", selector).Msg("wait_selectors timed out")
			}
		}(sel)
	}
	wg.Wait()
}

func measureHeight(ctx context.Context) (int, error) {
	var height int
	err := chromedp.Run(ctx, chromedp.Evaluate(`document.documentElement.scrollHeight`, &height))
	return height, err
}

func decideFullPage(override *bool, screenshotSelector string, height int) bool {
	if override != nil {
		return *override
	}
	if screenshotSelector != "" {
		return false
	}
	return height > maxFullPageHeight
}

func elementScreenshot(ctx context.Context, selector string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shotCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var buf []byte
	err := chromedp.Run(shotCtx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery))
	return buf, err
}

func pngToJPEG(pngBytes []byte, quality int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
