package provider

import (
	"context"
	"fmt"
	"strings"
)

const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterTitle   = "Chess AI Game"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// chatCompletions talks to OpenAI-compatible /chat/completions endpoints.
// OpenAI and OpenRouter differ only in base URL and extra headers.
type chatCompletions struct {
	id      ID
	baseURL string
	extra   map[string]string
	t       *jsonTransport
}

func newOpenAI(t *jsonTransport, baseURL string) *chatCompletions {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = openAIBaseURL
	}
	return &chatCompletions{id: OpenAI, baseURL: strings.TrimRight(baseURL, "/"), t: t}
}

func newOpenRouter(t *jsonTransport, baseURL, referer string) *chatCompletions {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = openRouterBaseURL
	}
	extra := map[string]string{"X-Title": openRouterTitle}
	if r := strings.TrimSpace(referer); r != "" {
		extra["HTTP-Referer"] = r
	}
	return &chatCompletions{id: OpenRouter, baseURL: strings.TrimRight(baseURL, "/"), extra: extra, t: t}
}

func (c *chatCompletions) ID() ID { return c.id }

func (c *chatCompletions) Send(ctx context.Context, req Request) (string, error) {
	req, err := prepare(c.id, req)
	if err != nil {
		return "", err
	}
	headers := map[string]string{"Authorization": "Bearer " + req.Credentials}
	for k, v := range c.extra {
		headers[k] = v
	}
	body := chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
	}
	var out chatResponse
	if err := c.t.postJSON(ctx, c.baseURL+"/chat/completions", headers, body, &out); err != nil {
		return "", newError(c.id, err)
	}
	if len(out.Choices) == 0 {
		return "", newError(c.id, fmt.Errorf("%w: no choices", ErrMalformedResponse))
	}
	return nonEmpty(c.id, out.Choices[0].Message.Content)
}
