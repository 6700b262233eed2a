package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/feedstream/pkg/config"
)

// fakeLLM serves an OpenAI-compatible chat completion endpoint, each call
// pops the next canned reply
func fakeLLM(t *testing.T, replies ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)

		n := int(calls.Add(1)) - 1
		if n >= len(replies) {
			n = len(replies) - 1
		}
		resp := openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: replies[n]}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func testLLMConfig(endpoint string) config.LLMConfig {
	return config.LLMConfig{
		Endpoint:    endpoint + "/v1",
		APIKey:      "test-key",
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   500,
		Timeout:     5 * time.Second,
	}
}

func TestTagger_GenerateTags(t *testing.T) {
	ts, calls := fakeLLM(t, `["Tech", " golang ", "", "ai"]`)
	tagger := NewTagger(testLLMConfig(ts.URL))

	tags, err := tagger.GenerateTags(context.Background(), "Go Blog", "posts about go", []string{"generics", "iterators"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tech", "golang", "ai"}, tags, "tags lowercased, trimmed, empties dropped")
	assert.Equal(t, int32(1), calls.Load())
}

func TestTagger_GenerateTags_ProseWrapped(t *testing.T) {
	ts, _ := fakeLLM(t, "Sure, here are the tags:\n```json\n[\"tech\", \"news\"]\n```")
	tagger := NewTagger(testLLMConfig(ts.URL))

	tags, err := tagger.GenerateTags(context.Background(), "Feed", "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"tech", "news"}, tags, "array extracted out of prose and code fences")
}

func TestTagger_GenerateTags_RetriesBadJSON(t *testing.T) {
	ts, calls := fakeLLM(t, "I cannot answer that", `["tech"]`)
	tagger := NewTagger(testLLMConfig(ts.URL))

	tags, err := tagger.GenerateTags(context.Background(), "Feed", "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"tech"}, tags)
	assert.Equal(t, int32(2), calls.Load(), "unparseable reply retried")
}

func TestTagger_GenerateTags_GivesUpAfterRetries(t *testing.T) {
	ts, calls := fakeLLM(t, "not json")
	tagger := NewTagger(testLLMConfig(ts.URL))

	_, err := tagger.GenerateTags(context.Background(), "Feed", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, int32(3), calls.Load())
}

func TestTagger_GenerateTags_RequestError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer ts.Close()

	tagger := NewTagger(testLLMConfig(ts.URL))
	_, err := tagger.GenerateTags(context.Background(), "Feed", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm request failed")
}

func TestTagger_GenerateInsights(t *testing.T) {
	ts, _ := fakeLLM(t, `{"summary":"Busy week in tech.","trends":[{"topic":"ai","count":3},{"topic":"go","count":7},{"topic":"rust","count":5}]}`)
	tagger := NewTagger(testLLMConfig(ts.URL))

	insights, err := tagger.GenerateInsights(context.Background(), []string{"headline one", "headline two"})
	require.NoError(t, err)
	assert.Equal(t, "Busy week in tech.", insights.Summary)
	require.Len(t, insights.Trends, 3)
	assert.Equal(t, "go", insights.Trends[0].Topic, "trends sorted by count descending")
	assert.Equal(t, 7, insights.Trends[0].Count)
	assert.Equal(t, "rust", insights.Trends[1].Topic)
	assert.Equal(t, "ai", insights.Trends[2].Topic)
}

func TestTagger_DiscoverFeeds(t *testing.T) {
	ts, _ := fakeLLM(t, `[{"name":"The Go Blog","url":"https://go.dev/blog/feed.atom"},{"name":"No URL","url":""},{"name":"","url":"https://x/feed"}]`)
	tagger := NewTagger(testLLMConfig(ts.URL))

	feeds, err := tagger.DiscoverFeeds(context.Background(), "golang")
	require.NoError(t, err)
	require.Len(t, feeds, 1, "entries missing name or url dropped")
	assert.Equal(t, "The Go Blog", feeds[0].Name)
	assert.Equal(t, "https://go.dev/blog/feed.atom", feeds[0].URL)
}

func TestExtractJSON(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		arr, err := extractJSONArray(`prefix ["a","b"] suffix`)
		require.NoError(t, err)
		assert.Equal(t, `["a","b"]`, arr)

		_, err = extractJSONArray("no array here")
		require.Error(t, err)
	})

	t.Run("object", func(t *testing.T) {
		obj, err := extractJSONObject("```json\n{\"a\":1}\n```")
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, obj)

		_, err = extractJSONObject("nothing")
		require.Error(t, err)
	})
}
