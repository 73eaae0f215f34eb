package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/ibeckermayer/feedsieve/internal/config"
	"github.com/ibeckermayer/feedsieve/internal/types"
)

// OpenAIProvider classifies through any OpenAI-compatible chat endpoint.
// The default base URL points at Groq.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates a provider from the analysis config
func NewOpenAIProvider(cfg config.AnalysisConfig) *OpenAIProvider {
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
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (p *OpenAIProvider) Name() string  { return config.ProviderOpenAI }
func (p *OpenAIProvider) Model() string { return p.model }

// Classify sends one post. The first image, if any, goes along as an image part.
func (p *OpenAIProvider) Classify(ctx context.Context, req types.ClassifyRequest, criteria config.CriteriaConfig) (Outcome, error) {
	prompt := BuildPrompt(criteria)

	user := openai.UserMessage(UserContent(req))
	if len(req.Images) > 0 {
		user = openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(UserContent(req)),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: req.Images[0]}),
		})
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       p.model,
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(prompt), user},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(100),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return Outcome{Prompt: prompt}, fmt.Errorf("failed to call chat completions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Outcome{Prompt: prompt}, fmt.Errorf("no choices in response")
	}

	raw := resp.Choices[0].Message.Content
	out := Outcome{Prompt: prompt, RawResponse: raw}
	out.Category, out.Reason, err = ParseResponse(raw)
	return out, err
}
