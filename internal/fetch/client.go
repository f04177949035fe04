package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/aoisupersix/strava-leaderboard-enhanced/internal/domain"
)

// Client executes page requests against the host site. The underlying resty
// client keeps a cookie jar, so the host session travels with every request
// the way same-origin credentials do in a browser.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/107.0.0.0 Safari/537.36")
	return &Client{http: c, logger: logger}
}

// Do executes one PageRequestSpec and returns the response body. Non-2xx
// statuses are errors; the caller decides whether to fall back to another
// request strategy.
func (c *Client) Do(ctx context.Context, spec domain.PageRequestSpec) ([]byte, error) {
	req := c.http.R().SetContext(ctx).SetHeaders(spec.Headers)

	var res *resty.Response
	var err error
	switch spec.Method {
	case http.MethodPost:
		res, err = req.SetFormData(spec.Params).Post(spec.URL)
	default:
		res, err = req.SetQueryParams(spec.Params).Get(spec.URL)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", spec.Method, spec.URL, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("%s %s: unexpected status %d", spec.Method, spec.URL, res.StatusCode())
	}

	c.logger.Debug("fetched page",
		zap.String("method", spec.Method),
		zap.String("url", spec.URL),
		zap.Int("status", res.StatusCode()),
		zap.Int("bytes", len(res.Body())))
	return res.Body(), nil
}

// Get fetches a plain URL with the standard request headers, used for the
// initial page load.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.Do(ctx, domain.PageRequestSpec{
		URL:    url,
		Method: http.MethodGet,
		Headers: map[string]string{
			"Accept":        "text/html, application/xhtml+xml",
			"Cache-Control": "no-cache",
		},
	})
}
