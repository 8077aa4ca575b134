package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nanoclaw/ops/internal/plan"
)

func (e *Executor) execImageToText(ctx context.Context, idx int, start time.Time, a plan.ImageToTextAction) Result {
	if e.cfg.ImageToTextURL == "" {
		return failed(idx, start, fmt.Errorf("image_to_text endpoint is not configured"))
	}
	body := map[string]string{"imageUrl": a.ImageURL}
	if a.Prompt != "" {
		body["prompt"] = a.Prompt
	}
	return e.postMediaJSON(ctx, idx, start, e.cfg.ImageToTextURL, body)
}

func (e *Executor) execVoiceToText(ctx context.Context, idx int, start time.Time, a plan.VoiceToTextAction) Result {
	if e.cfg.VoiceToTextURL == "" {
		return failed(idx, start, fmt.Errorf("voice_to_text endpoint is not configured"))
	}
	body := map[string]string{"audioUrl": a.AudioURL}
	if a.Language != "" {
		body["language"] = a.Language
	}
	return e.postMediaJSON(ctx, idx, start, e.cfg.VoiceToTextURL, body)
}

func (e *Executor) postMediaJSON(ctx context.Context, idx int, start time.Time, url string, payload map[string]string) Result {
	raw, err := json.Marshal(payload)
	if err != nil {
		return failed(idx, start, err)
	}

	timeout := time.Duration(e.cfg.HTTPTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return failed(idx, start, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.MediaBearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.MediaBearerToken)
	}

	resp, err := (&http.Client{Timeout: timeout}).Do(req)
	if err != nil {
		return failed(idx, start, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return failed(idx, start, err)
	}

	if resp.StatusCode >= 400 {
		return failed(idx, start, fmt.Errorf("endpoint returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	r := ok(idx, start)
	r.ResultText = string(respBody)
	return r
}
