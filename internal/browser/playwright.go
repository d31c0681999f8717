package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/browserpilot/browserpilot/internal/task"
	"github.com/browserpilot/browserpilot/pkg/logger"
)

const pwCapturePageJS = `() => ({
	url: window.location.href,
	title: document.title,
	content: document.body ? document.body.innerText : "",
	html: document.documentElement ? document.documentElement.outerHTML : ""
})`

const pwExtractElementsJS = `(sel) => Array.from(document.querySelectorAll(sel)).map((el) => {
	const attrs = {};
	for (const a of el.attributes) {
		attrs[a.name] = a.value;
	}
	return {
		text: el.innerText || el.textContent || "",
		html: el.outerHTML,
		attributes: attrs
	};
})`

// Playwright drives Chromium through playwright-go with a persistent
// profile. It implements task.Browser.
type Playwright struct {
	pw      *playwright.Playwright
	context playwright.BrowserContext
	page    playwright.Page
	timing  task.Timing
	log     *logger.Logger
}

func NewPlaywright(headless bool, timing task.Timing, log *logger.Logger) (*Playwright, error) {
	if log == nil {
		log = logger.Discard()
	}

	if err := playwright.Install(); err != nil {
		return nil, fmt.Errorf("install pw failed: %w", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start pw failed: %w", err)
	}

	userDataDir, _ := os.Getwd()
	userDataDir = filepath.Join(userDataDir, ".playwright_data")

	browserCtx, err := pw.Chromium.LaunchPersistentContext(
		userDataDir,
		playwright.BrowserTypeLaunchPersistentContextOptions{
			Headless: playwright.Bool(headless),
			Viewport: nil,
			Args: []string{
				"--disable-blink-features=AutomationControlled",
			},
		},
	)
	if err != nil {
		_ = pw.Stop()
		return nil, err
	}

	var page playwright.Page
	pages := browserCtx.Pages()
	if len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = browserCtx.NewPage()
		if err != nil {
			_ = browserCtx.Close()
			_ = pw.Stop()
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
	}

	navTimeout := float64(timing.NavigationTimeout.Milliseconds())
	page.SetDefaultTimeout(navTimeout)
	page.SetDefaultNavigationTimeout(navTimeout)

	return &Playwright{
		pw:      pw,
		context: browserCtx,
		page:    page,
		timing:  timing,
		log:     log,
	}, nil
}

func (b *Playwright) Close() {
	if b.context != nil {
		_ = b.context.Close()
	}
	if b.pw != nil {
		_ = b.pw.Stop()
	}
}

func (b *Playwright) Navigate(ctx context.Context, pageURL string) (*task.PageContext, error) {
	b.log.Info("navigating to %s", pageURL)

	if _, err := b.page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(b.timing.NavigationTimeout.Milliseconds())),
	}); err != nil {
		if strings.Contains(err.Error(), "Timeout") {
			return nil, fmt.Errorf("navigation timeout")
		}
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	time.Sleep(b.timing.SettleDelay)

	return b.capturePage()
}

func (b *Playwright) capturePage() (*task.PageContext, error) {
	result, err := b.page.Evaluate(pwCapturePageJS)
	if err != nil {
		return nil, fmt.Errorf("page capture failed: %w", err)
	}

	snap, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object from page capture, got %T", result)
	}

	return &task.PageContext{
		URL:          asString(snap["url"]),
		Title:        asString(snap["title"]),
		Content:      asString(snap["content"]),
		OriginalHTML: asString(snap["html"]),
	}, nil
}

func (b *Playwright) OpenSearch(ctx context.Context, query string) error {
	b.log.Info("opening search tab for %q", query)

	page, err := b.context.NewPage()
	if err != nil {
		return fmt.Errorf("failed to open search tab: %w", err)
	}
	if _, err := page.Goto(searchURL(query)); err != nil {
		return fmt.Errorf("search navigation failed: %w", err)
	}
	return nil
}

func (b *Playwright) ExtractElements(ctx context.Context, selector string) ([]task.ExtractedItem, error) {
	result, err := b.page.Evaluate(pwExtractElementsJS, selector)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}

	raw, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array from selector query, got %T", result)
	}

	items := make([]task.ExtractedItem, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		item := task.ExtractedItem{
			Text:       asString(m["text"]),
			HTML:       asString(m["html"]),
			Attributes: map[string]string{},
		}
		if attrs, ok := m["attributes"].(map[string]any); ok {
			for k, v := range attrs {
				item.Attributes[k] = asString(v)
			}
		}
		items = append(items, item)
	}

	b.log.Debug("selector %q matched %d elements", selector, len(items))
	return items, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
