package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoclaw/ops/internal/config"
)

func TestComplete_UsesReasoningModelWhenRequested(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model
		_ = json.NewEncoder(w).Encode(chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: "ok"}}}})
	}))
	defer srv.Close()

	c := New(config.PlannerConfig{BaseURL: srv.URL, CompletionModel: "small", ReasoningModel: "big"})
	text, err := c.Complete(context.Background(), "", "hi", true)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, "big", gotModel)
}

func TestComplete_RejectsNonFreeModelWhenRequired(t *testing.T) {
	c := New(config.PlannerConfig{BaseURL: "http://unused", CompletionModel: "gpt-4", RequireFreeTier: true})
	_, err := c.Complete(context.Background(), "", "hi", false)
	require.Error(t, err)
	var nonFree *ErrNonFreeModel
	require.ErrorAs(t, err, &nonFree)
}

func TestComplete_AllowsFreeTierSuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: "ok"}}}})
	}))
	defer srv.Close()

	c := New(config.PlannerConfig{BaseURL: srv.URL, CompletionModel: "some-model:free", RequireFreeTier: true})
	_, err := c.Complete(context.Background(), "", "hi", false)
	require.NoError(t, err)
}

func TestComplete_SurfacesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(config.PlannerConfig{BaseURL: srv.URL, CompletionModel: "m"})
	_, err := c.Complete(context.Background(), "", "hi", false)
	require.Error(t, err)
}

func TestParseWithRepair_SucceedsOnFirstTry(t *testing.T) {
	c := New(config.PlannerConfig{BaseURL: "http://unused", CompletionModel: "m"})
	p, _, errs := c.ParseWithRepair(context.Background(), "here's your answer\n```json\n{\"actions\":[]}\n```")
	assert.Empty(t, errs)
	require.NotNil(t, p)
	assert.Empty(t, p.Actions)
}

func TestParseWithRepair_RepairsInvalidPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{Choices: []chatChoice{{Message: chatMessage{Content: "```json\n{\"actions\":[]}\n```"}}}})
	}))
	defer srv.Close()

	c := New(config.PlannerConfig{BaseURL: srv.URL, CompletionModel: "m"})
	p, _, errs := c.ParseWithRepair(context.Background(), "not json at all, no fence")
	assert.Empty(t, errs)
	require.NotNil(t, p)
	assert.Empty(t, p.Actions)
}
