package runner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoclaw/ops/internal/config"
	"github.com/nanoclaw/ops/internal/plan"
)

func TestExecImageToText_UnconfiguredEndpointFails(t *testing.T) {
	e := NewExecutor(config.RunnerConfig{}, nil, nil, nil, nil)
	r := e.execImageToText(context.Background(), 0, time.Now(), plan.ImageToTextAction{ImageURL: "https://example.com/a.png"})
	assert.Equal(t, "failed", r.Status)
}

func TestExecImageToText_PostsToConfiguredEndpointWithBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("a cat"))
	}))
	defer srv.Close()

	e := NewExecutor(config.RunnerConfig{ImageToTextURL: srv.URL, MediaBearerToken: "tok"}, nil, nil, nil, nil)
	r := e.execImageToText(context.Background(), 0, time.Now(), plan.ImageToTextAction{ImageURL: "https://example.com/a.png"})
	require.Equal(t, "ok", r.Status)
	assert.Equal(t, "a cat", r.ResultText)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestExecVoiceToText_UnconfiguredEndpointFails(t *testing.T) {
	e := NewExecutor(config.RunnerConfig{}, nil, nil, nil, nil)
	r := e.execVoiceToText(context.Background(), 0, time.Now(), plan.VoiceToTextAction{AudioURL: "https://example.com/a.mp3"})
	assert.Equal(t, "failed", r.Status)
}

func TestExecVoiceToText_EndpointErrorStatusIsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewExecutor(config.RunnerConfig{VoiceToTextURL: srv.URL}, nil, nil, nil, nil)
	r := e.execVoiceToText(context.Background(), 0, time.Now(), plan.VoiceToTextAction{AudioURL: "https://example.com/a.mp3"})
	assert.Equal(t, "failed", r.Status)
	assert.Contains(t, r.ErrorText, "503")
}
