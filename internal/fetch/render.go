package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Renderer fetches a page through a headless browser for hosts that build the
// leaderboard table with scripts. Only the initial page load needs this; the
// pagination endpoints return server-rendered fragments.
type Renderer struct {
	timeout time.Duration
	logger  *zap.Logger
}

func NewRenderer(timeout time.Duration, logger *zap.Logger) *Renderer {
	return &Renderer{timeout: timeout, logger: logger}
}

// FetchRendered navigates to the URL, waits for a table to appear and returns
// the rendered document HTML.
func (r *Renderer) FetchRendered(ctx context.Context, url string, headers map[string]string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, r.timeout)
	defer cancelTimeout()

	extraHeaders := network.Headers{}
	for k, v := range headers {
		extraHeaders[k] = v
	}

	var html string
	err := chromedp.Run(taskCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(extraHeaders),
		chromedp.Navigate(url),
		chromedp.WaitVisible("table", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("rendered fetch %s: %w", url, err)
	}

	r.logger.Debug("rendered page", zap.String("url", url), zap.Int("bytes", len(html)))
	return html, nil
}
