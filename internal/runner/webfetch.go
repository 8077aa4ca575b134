package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/nanoclaw/ops/internal/plan"
	"github.com/nanoclaw/ops/internal/policy"
)

const (
	maxFetchBody      = 12000
	webFetchUserAgent = "nanoclaw-runner/1.0 (+ops orchestrator)"
)

func (e *Executor) execWebFetch(ctx context.Context, idx int, start time.Time, a plan.WebFetchAction) Result {
	if err := policy.CheckWebFetchURL(a.URL, a.Mode, a.RequiresApproval); err != nil {
		e.record("blocked", "web_fetch", err.Error(), a.URL)
		return blocked(idx, err.Error())
	}

	if a.Mode == "browser" {
		return e.execWebFetchBrowser(ctx, idx, start, a)
	}
	return e.execWebFetchHTTP(ctx, idx, start, a)
}

func (e *Executor) execWebFetchHTTP(ctx context.Context, idx int, start time.Time, a plan.WebFetchAction) Result {
	timeout := time.Duration(e.cfg.HTTPTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Re-apply the safety filter to every redirect hop: a URL that
			// passed the initial check can still redirect into a blocked
			// range.
			if err := policy.CheckWebFetchURL(req.URL.String(), "http", true); err != nil {
				return fmt.Errorf("redirect target blocked: %w", err)
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.URL, nil)
	if err != nil {
		return failed(idx, start, err)
	}
	req.Header.Set("User-Agent", webFetchUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return failed(idx, start, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return failed(idx, start, err)
	}

	r := ok(idx, start)
	r.ResultText = fmt.Sprintf("url=%s status=%d content-type=%s\n\n%s",
		a.URL, resp.StatusCode, resp.Header.Get("Content-Type"), string(body))
	if resp.StatusCode >= 400 {
		r.Status = "failed"
		r.ExitCode = resp.StatusCode
		r.ErrorText = fmt.Sprintf("http status %d", resp.StatusCode)
	}
	return r
}

func (e *Executor) execWebFetchBrowser(ctx context.Context, idx int, start time.Time, a plan.WebFetchAction) Result {
	timeout := time.Duration(e.cfg.HTTPTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	browserCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var title, text string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(a.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.Text("body", &text, chromedp.ByQuery),
	)
	if err == nil {
		r := ok(idx, start)
		if len(text) > maxFetchBody {
			text = text[:maxFetchBody]
		}
		r.ResultText = fmt.Sprintf("url=%s title=%q\n\n%s", a.URL, title, text)
		return r
	}

	e.logger.Warn("web_fetch: headless browser failed, falling back to readable mirror", "url", a.URL, "error", err)
	if e.cfg.ReadableMirrorURL == "" {
		return failed(idx, start, fmt.Errorf("browser navigation failed and no readable-mirror fallback is configured: %w", err))
	}

	mirrorURL := e.cfg.ReadableMirrorURL + a.URL
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, mirrorURL, nil)
	if reqErr != nil {
		return failed(idx, start, reqErr)
	}
	req.Header.Set("User-Agent", webFetchUserAgent)

	resp, fetchErr := (&http.Client{Timeout: timeout}).Do(req)
	if fetchErr != nil {
		return failed(idx, start, fmt.Errorf("browser navigation failed (%v) and readable-mirror fetch also failed: %w", err, fetchErr))
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if readErr != nil {
		return failed(idx, start, readErr)
	}
	if resp.StatusCode >= 400 || len(body) == 0 {
		return failed(idx, start, fmt.Errorf("browser navigation failed (%v) and readable-mirror returned status %d", err, resp.StatusCode))
	}

	r := ok(idx, start)
	r.ResultText = fmt.Sprintf("url=%s (via readable mirror, browser fallback)\n\n%s", a.URL, string(body))
	return r
}
