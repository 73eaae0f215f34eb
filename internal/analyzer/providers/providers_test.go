package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	retry "github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		category types.Category
		reason   string
		wantErr  bool
	}{
		{"verdict", `{"reason": "electoral politics", "verdict": "filtered"}`, types.Filtered, "electoral politics", false},
		{"highlight", `{"reason":"deep dive","verdict":"Highlighted"}`, types.Highlighted, "deep dive", false},
		{"unknown verdict", `{"reason":"?","verdict":"maybe"}`, types.Allowed, "?", false},
		{"legacy true", `{"filter": true, "reason": "engagement bait"}`, types.Filtered, "engagement bait", false},
		{"legacy false", `{"filter": false, "reason": "tech tip"}`, types.Allowed, "tech tip", false},
		{"fenced", "```json\n{\"reason\":\"vibes\",\"verdict\":\"filtered\"}\n```", types.Filtered, "vibes", false},
		{"braces after", `{"reason":"spam","verdict":"filtered"} (note: {ignore} this)`, types.Filtered, "spam", false},
		{"braces before", `Using {criteria}: {"reason":"fine","verdict":"allowed"}`, types.Allowed, "fine", false},
		{"no object", "filtered", "", "", true},
		{"no verdict", `{"reason":"x"}`, "", "", true},
		{"broken", `{"reason": "x", "verdict": }`, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, reason, err := ParseResponse(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.category, c)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(config.CriteriaConfig{Filter: "- crypto shilling"})

	assert.True(t, strings.HasPrefix(p, systemPromptPrefix))
	assert.Contains(t, p, "FILTER these posts:\n- crypto shilling\n")
	assert.Contains(t, p, "ALLOW these posts:\n"+config.DefaultCriteria().Allow)
	assert.True(t, strings.HasSuffix(p, systemPromptSuffix))
}

func TestUserContent(t *testing.T) {
	assert.Equal(t, "@ann: hello", UserContent(types.ClassifyRequest{Author: "ann", Text: "hello"}))
	assert.Equal(t, "hello", UserContent(types.ClassifyRequest{Text: "hello"}))
	assert.Equal(t, imagePrompt, UserContent(types.ClassifyRequest{Author: "ann", Images: []string{"https://img"}}))
}

func fastBackoff() retry.Backoff {
	return retry.NewConstant(time.Millisecond)
}

func remoteConfig(url string) config.AnalysisConfig {
	return config.AnalysisConfig{RemoteURL: url, TimeoutSeconds: 1, MaxRetries: 5}
}

func TestRemoteProviderRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var got remoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"filter": true, "reason": "rage bait"}`)
	}))
	defer srv.Close()

	p := NewRemoteProvider(remoteConfig(srv.URL), WithBackoff(fastBackoff))
	out, err := p.Classify(t.Context(), types.ClassifyRequest{
		CorrelationID: "abc",
		Text:          "ratio this",
		Author:        "troll",
		Images:        []string{"https://img/1"},
	}, config.CriteriaConfig{Filter: "- bait"})
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, types.Filtered, out.Category)
	assert.Equal(t, "rage bait", out.Reason)
	assert.Equal(t, remoteRequest{
		TweetText: "ratio this",
		TweetID:   "abc",
		Author:    "troll",
		Images:    []string{"https://img/1"},
		Criteria:  "- bait",
	}, got)
}

func TestRemoteProviderGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error": "Internal server error"}`)
	}))
	defer srv.Close()

	p := NewRemoteProvider(remoteConfig(srv.URL), WithBackoff(fastBackoff))
	_, err := p.Classify(t.Context(), types.ClassifyRequest{CorrelationID: "x", Text: "t"}, config.CriteriaConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Internal server error")
	assert.Equal(t, int32(5), calls.Load())
}

func TestRemoteProviderDoesNotRetryBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error": "Missing tweetText or tweetId"}`)
	}))
	defer srv.Close()

	p := NewRemoteProvider(remoteConfig(srv.URL), WithBackoff(fastBackoff))
	_, err := p.Classify(t.Context(), types.ClassifyRequest{}, config.CriteriaConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing tweetText")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIProviderSendsFirstImage(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "c1", "object": "chat.completion", "created": 1, "model": "m",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"reason\": \"shallow poll\", \"verdict\": \"filtered\"}"}}]
		}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(config.AnalysisConfig{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "m"})
	out, err := p.Classify(t.Context(), types.ClassifyRequest{
		Text:   "which one?",
		Author: "ann",
		Images: []string{"https://img/1", "https://img/2"},
	}, config.CriteriaConfig{})
	require.NoError(t, err)

	assert.Equal(t, types.Filtered, out.Category)
	assert.Equal(t, "shallow poll", out.Reason)
	assert.Equal(t, BuildPrompt(config.CriteriaConfig{}), out.Prompt)

	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "@ann: which one?", parts[0].(map[string]any)["text"])
	assert.Equal(t, "https://img/1", parts[1].(map[string]any)["image_url"].(map[string]any)["url"])
	assert.Equal(t, "json_object", body["response_format"].(map[string]any)["type"])
}

func TestAnthropicProviderPrefillsBrace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "m",
			"content": [{"type": "text", "text": "\"reason\": \"useful workflow tip\", \"verdict\": \"allowed\"}"}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 1, "output_tokens": 1}
		}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(config.AnalysisConfig{APIKey: "k", BaseURL: srv.URL + "/", Model: "m"})
	out, err := p.Classify(t.Context(), types.ClassifyRequest{Text: "try this"}, config.CriteriaConfig{})
	require.NoError(t, err)
	assert.Equal(t, types.Allowed, out.Category)
	assert.Equal(t, "useful workflow tip", out.Reason)
	assert.True(t, strings.HasPrefix(out.RawResponse, "{"))
}
