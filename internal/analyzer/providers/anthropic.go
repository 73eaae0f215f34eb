package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// AnthropicProvider classifies posts with Claude. It sends text only;
// image URLs are listed in the user turn.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(cfg config.AnalysisConfig) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSeconds > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(cfg.TimeoutSeconds)*time.Second))
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (c *AnthropicProvider) Name() string  { return config.ProviderAnthropic }
func (c *AnthropicProvider) Model() string { return c.model }

// Classify sends one post to Claude
func (c *AnthropicProvider) Classify(ctx context.Context, req types.ClassifyRequest, criteria config.CriteriaConfig) (Outcome, error) {
	prompt := BuildPrompt(criteria)

	user := UserContent(req)
	if len(req.Images) > 0 {
		user += "\n\nImages: " + strings.Join(req.Images, " ")
	}

	// Prefill the opening brace so Claude continues with the JSON object
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   100,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: prompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock("{")),
		},
	})
	if err != nil {
		return Outcome{Prompt: prompt}, fmt.Errorf("failed to call Claude API: %w", err)
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return Outcome{Prompt: prompt}, fmt.Errorf("Claude returned empty response")
	}

	raw := "{" + responseText
	out := Outcome{Prompt: prompt, RawResponse: raw}
	out.Category, out.Reason, err = ParseResponse(raw)
	return out, err
}
