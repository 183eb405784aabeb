package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGenerationServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestGenerate(t *testing.T) {
	var gotReq chatRequest
	server := newGenerationServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"  import pandas as pd\n  "}}]}`)
	})

	svc := NewGenerationService(&GenerationConfig{
		Model:   "test-model",
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 5 * time.Second,
	})

	code, err := svc.Generate(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)
	assert.Equal(t, "import pandas as pd", code)

	assert.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	assert.False(t, gotReq.Stream)
}

func TestGenerateEmptyResult(t *testing.T) {
	server := newGenerationServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"   "}}]}`)
	})

	svc := NewGenerationService(&GenerationConfig{Model: "m", BaseURL: server.URL})

	_, err := svc.Generate(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrEmptyGeneration)
}

func TestGenerateAPIError(t *testing.T) {
	server := newGenerationServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
	})

	svc := NewGenerationService(&GenerationConfig{Model: "m", BaseURL: server.URL})

	_, err := svc.Generate(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGenerateStream(t *testing.T) {
	server := newGenerationServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"import \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"pandas\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	svc := NewGenerationService(&GenerationConfig{Model: "m", BaseURL: server.URL})

	var snapshots []string
	code, err := svc.GenerateStream(context.Background(), "s", "u", func(cumulative string) error {
		snapshots = append(snapshots, cumulative)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "import pandas", code)
	assert.Equal(t, []string{"import", "import pandas"}, snapshots)
}

func TestGenerateStreamCallbackAborts(t *testing.T) {
	server := newGenerationServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"chunk\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	svc := NewGenerationService(&GenerationConfig{Model: "m", BaseURL: server.URL})

	abort := fmt.Errorf("client went away")
	_, err := svc.GenerateStream(context.Background(), "s", "u", func(string) error {
		return abort
	})
	assert.ErrorIs(t, err, abort)
}
