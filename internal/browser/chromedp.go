package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/browserpilot/browserpilot/internal/task"
	"github.com/browserpilot/browserpilot/pkg/logger"
)

// capturePageJS snapshots the page the same way the engine sees it:
// innerText for content, outerHTML for structure.
const capturePageJS = `(() => ({
	url: window.location.href,
	title: document.title,
	content: document.body ? document.body.innerText : "",
	html: document.documentElement ? document.documentElement.outerHTML : ""
}))()`

type pageSnapshot struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	HTML    string `json:"html"`
}

// Chromedp drives a Chrome instance over the DevTools protocol. It
// implements task.Browser.
type Chromedp struct {
	allocCtx context.Context
	ctx      context.Context
	cancels  []context.CancelFunc
	timing   task.Timing
	log      *logger.Logger
}

func NewChromedp(headless bool, timing task.Timing, log *logger.Logger) (*Chromedp, error) {
	if log == nil {
		log = logger.Discard()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)

	// Start the browser process up front so the first Navigate does not
	// pay the launch cost inside its timeout.
	if err := chromedp.Run(ctx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &Chromedp{
		allocCtx: allocCtx,
		ctx:      ctx,
		cancels:  []context.CancelFunc{cancelAlloc, cancelCtx},
		timing:   timing,
		log:      log,
	}, nil
}

func (b *Chromedp) Close() {
	for i := len(b.cancels) - 1; i >= 0; i-- {
		b.cancels[i]()
	}
}

// Navigate opens the URL in the active tab, waits for the document to be
// ready within the navigation timeout, lets the page settle, then returns
// a fresh snapshot.
func (b *Chromedp) Navigate(ctx context.Context, pageURL string) (*task.PageContext, error) {
	b.log.Info("navigating to %s", pageURL)

	tctx, cancel := context.WithTimeout(b.ctx, b.timing.NavigationTimeout)
	defer cancel()

	err := chromedp.Run(tctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("navigation timeout")
		}
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	// Late-rendering scripts get a fixed settle window before capture.
	time.Sleep(b.timing.SettleDelay)

	return b.capturePage()
}

func (b *Chromedp) capturePage() (*task.PageContext, error) {
	var snap pageSnapshot
	if err := chromedp.Run(b.ctx, chromedp.Evaluate(capturePageJS, &snap)); err != nil {
		return nil, fmt.Errorf("page capture failed: %w", err)
	}
	return &task.PageContext{
		URL:          snap.URL,
		Title:        snap.Title,
		Content:      snap.Content,
		OriginalHTML: snap.HTML,
	}, nil
}

// OpenSearch opens a search-results tab for the query in a new target.
func (b *Chromedp) OpenSearch(ctx context.Context, query string) error {
	b.log.Info("opening search tab for %q", query)

	tabCtx, cancel := chromedp.NewContext(b.ctx)
	b.cancels = append(b.cancels, cancel)

	tctx, tcancel := context.WithTimeout(tabCtx, b.timing.NavigationTimeout)
	defer tcancel()

	if err := chromedp.Run(tctx, chromedp.Navigate(searchURL(query))); err != nil {
		return fmt.Errorf("search navigation failed: %w", err)
	}
	return nil
}

func searchURL(query string) string {
	return "https://www.google.com/search?q=" + url.QueryEscape(query)
}

// ExtractElements resolves every node matched by the selector and collects
// its text, outer HTML and attributes through the DOM domain.
func (b *Chromedp) ExtractElements(ctx context.Context, selector string) ([]task.ExtractedItem, error) {
	var nodes []*cdp.Node
	err := chromedp.Run(b.ctx,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	)
	if err != nil {
		return nil, fmt.Errorf("selector query failed: %w", err)
	}

	items := make([]task.ExtractedItem, 0, len(nodes))
	err = chromedp.Run(b.ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		for _, node := range nodes {
			html, err := dom.GetOuterHTML().WithBackendNodeID(node.BackendNodeID).Do(cctx)
			if err != nil {
				return fmt.Errorf("outer html failed: %w", err)
			}

			text, err := nodeInnerText(cctx, node.BackendNodeID)
			if err != nil {
				return err
			}

			attrs := make(map[string]string, len(node.Attributes)/2)
			for i := 0; i+1 < len(node.Attributes); i += 2 {
				attrs[node.Attributes[i]] = node.Attributes[i+1]
			}

			items = append(items, task.ExtractedItem{
				Text:       text,
				HTML:       html,
				Attributes: attrs,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}

	b.log.Debug("selector %q matched %d elements", selector, len(items))
	return items, nil
}

func nodeInnerText(ctx context.Context, id cdp.BackendNodeID) (string, error) {
	obj, err := dom.ResolveNode().WithBackendNodeID(id).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve node failed: %w", err)
	}
	if obj == nil || obj.ObjectID == "" {
		return "", fmt.Errorf("object id is empty (node might be detached)")
	}

	res, _, err := runtime.CallFunctionOn(`function() { return this.innerText || this.textContent || ""; }`).
		WithObjectID(obj.ObjectID).
		WithReturnByValue(true).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("inner text failed: %w", err)
	}
	if res == nil || res.Value == nil {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(res.Value, &text); err != nil {
		return "", fmt.Errorf("unexpected inner text value: %w", err)
	}
	return text, nil
}
