package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/umputun/feedstream/pkg/config"
	"github.com/umputun/feedstream/pkg/domain"
)

// Tagger talks to an OpenAI-compatible endpoint for feed tagging,
// dashboard insights and feed discovery. Callers decide how failures
// degrade, the tagger just reports them.
type Tagger struct {
	client *openai.Client
	config config.LLMConfig
}

// NewTagger creates an LLM tagger
func NewTagger(cfg config.LLMConfig) *Tagger {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Tagger{client: openai.NewClientWithConfig(clientConfig), config: cfg}
}

// GenerateTags produces 3-5 one-word lowercase tags categorizing a feed
func (t *Tagger) GenerateTags(ctx context.Context, title, description string, sampleTitles []string) ([]string, error) {
	var sb strings.Builder
	sb.WriteString("Based on this RSS feed information:\n")
	sb.WriteString(fmt.Sprintf("- Title: %q\n", title))
	sb.WriteString(fmt.Sprintf("- Description: %q\n", description))
	sb.WriteString(fmt.Sprintf("- Recent article titles: %q\n\n", strings.Join(sampleTitles, ", ")))
	sb.WriteString("Generate 3 to 5 relevant, one-word, lowercase tags that categorize this feed.\n")
	sb.WriteString("Respond with a JSON array of strings and nothing else.")

	var tags []string
	err := t.completeJSON(ctx, sb.String(), func(content string) error {
		arr, err := extractJSONArray(content)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(arr), &tags)
	})
	if err != nil {
		return nil, err
	}

	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	return cleaned, nil
}

// GenerateInsights summarizes recent headlines and extracts trending
// topics for the dashboard, trends sorted by count descending
func (t *Tagger) GenerateInsights(ctx context.Context, titles []string) (*domain.Insights, error) {
	var sb strings.Builder
	sb.WriteString("Analyze these recent news headlines:\n")
	for _, title := range titles {
		sb.WriteString(fmt.Sprintf("- %q\n", title))
	}
	sb.WriteString("\n1. Provide a concise, engaging summary (3-4 sentences) of the most important news stories.\n")
	sb.WriteString("2. Identify the top 5 most frequently mentioned topics or keywords and count their occurrences.\n\n")
	sb.WriteString(`Respond with a JSON object {"summary": string, "trends": [{"topic": string, "count": number}]} and nothing else.`)

	var insights domain.Insights
	err := t.completeJSON(ctx, sb.String(), func(content string) error {
		obj, err := extractJSONObject(content)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(obj), &insights)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(insights.Trends, func(i, j int) bool { return insights.Trends[i].Count > insights.Trends[j].Count })
	return &insights, nil
}

// DiscoverFeeds suggests real, well-known feeds for a topic
func (t *Tagger) DiscoverFeeds(ctx context.Context, topic string) ([]domain.DiscoveredFeed, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Suggest up to 5 well-known, currently active RSS or Atom feeds about %q.\n", topic))
	sb.WriteString("Only include feeds you are confident exist, with their real feed URLs.\n")
	sb.WriteString(`Respond with a JSON array of objects {"name": string, "url": string} and nothing else.`)

	var feeds []domain.DiscoveredFeed
	err := t.completeJSON(ctx, sb.String(), func(content string) error {
		arr, err := extractJSONArray(content)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(arr), &feeds)
	})
	if err != nil {
		return nil, err
	}

	valid := feeds[:0]
	for _, f := range feeds {
		if f.URL != "" && f.Name != "" {
			valid = append(valid, f)
		}
	}
	return valid, nil
}

// completeJSON runs one chat completion and hands the content to parse,
// retrying up to 3 times when the model returned unparseable JSON
func (t *Tagger) completeJSON(ctx context.Context, prompt string, parse func(content string) error) error {
	req := openai.ChatCompletionRequest{
		Model:       t.config.Model,
		Temperature: float32(t.config.Temperature),
		MaxTokens:   t.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are an assistant that answers with strict JSON only, no prose around it."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		resp, err := t.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return fmt.Errorf("llm request failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response from llm")
		}

		if lastErr = parse(resp.Choices[0].Message.Content); lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("failed after 3 attempts: %w", lastErr)
}

// extractJSONArray pulls the outermost JSON array out of a response that
// may wrap it in prose or code fences
func extractJSONArray(content string) (string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || start >= end {
		return "", fmt.Errorf("no json array found in response")
	}
	return content[start : end+1], nil
}

// extractJSONObject pulls the outermost JSON object out of a response
func extractJSONObject(content string) (string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || start >= end {
		return "", fmt.Errorf("no json object found in response")
	}
	return content[start : end+1], nil
}
