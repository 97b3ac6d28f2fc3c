// Package ocr drives the hosted vision-language OCR endpoint. The
// endpoint is an OpenAI-compatible chat-completion API that accepts an
// image plus a prompt and returns free-form text expected to contain JSON.
package ocr

import (
	"context"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/toricodesthings/smart-doc-parser/internal/parse"
)

const (
	// DefaultBaseURL is the fixed provider endpoint used when no
	// credential-level base is configured.
	DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	// DefaultModel is the hardcoded fallback model tag.
	DefaultModel = "qwen-vl-ocr"

	maxResponseTokens = 4096
)

// Config carries the provider-level stored credential. Any field may be
// empty; per-call overrides and hardcoded defaults fill the gaps.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client runs per-page OCR calls. One client is safe for reuse across
// requests; the underlying SDK client is rebuilt per call because the
// API key and base URL are per-call resolvable.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	return &Client{cfg: cfg}
}

// Run sends each image to the vision model in order, strictly
// sequentially: page k+1's call starts only after page k's completes or
// fails. A page failure is recorded inline and never aborts the batch.
// Page numbers are 1-based in rendering order.
func (c *Client) Run(ctx context.Context, images []string, prompt string, apiKey, model *string) []parse.PageResult {
	key := c.cfg.APIKey
	if apiKey != nil {
		key = strings.TrimSpace(*apiKey)
	}
	mdl := c.cfg.Model
	if model != nil {
		mdl = strings.TrimSpace(*model)
	}
	if mdl == "" {
		mdl = DefaultModel
	}
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}

	// An empty API key is passed through; the provider rejects it with a
	// structured auth error that lands in the page's error field.
	clientCfg := openai.DefaultConfig(key)
	clientCfg.BaseURL = base
	clientCfg.HTTPClient = &http.Client{Timeout: c.cfg.Timeout}
	sdk := openai.NewClientWithConfig(clientCfg)

	pages := make([]parse.PageResult, 0, len(images))
	for idx, image := range images {
		page := idx + 1

		resp, err := sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: mdl,
			Messages: []openai.ChatCompletionMessage{
				{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{Type: openai.ChatMessagePartTypeText, Text: prompt},
						{
							Type:     openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{URL: image},
						},
					},
				},
			},
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			MaxTokens: maxResponseTokens,
		})
		if err != nil {
			pages = append(pages, parse.PageResult{Page: page, Error: err.Error()})
			continue
		}

		text := "{}"
		if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
			text = resp.Choices[0].Message.Content
		}
		pages = append(pages, parse.PageResult{Page: page, Content: parse.SafeJSONLoads(text)})
	}
	return pages
}
