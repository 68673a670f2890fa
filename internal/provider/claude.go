package provider

import (
	"context"
	"fmt"
	"strings"
)

const (
	claudeBaseURL    = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

type claudeRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type claudeAdapter struct {
	baseURL string
	t       *jsonTransport
}

func newClaude(t *jsonTransport, baseURL string) *claudeAdapter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = claudeBaseURL
	}
	return &claudeAdapter{baseURL: strings.TrimRight(baseURL, "/"), t: t}
}

func (a *claudeAdapter) ID() ID { return Claude }

func (a *claudeAdapter) Send(ctx context.Context, req Request) (string, error) {
	req, err := prepare(Claude, req)
	if err != nil {
		return "", err
	}
	headers := map[string]string{
		"x-api-key":         req.Credentials,
		"anthropic-version": anthropicVersion,
	}
	body := claudeRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
	}
	var out claudeResponse
	if err := a.t.postJSON(ctx, a.baseURL+"/messages", headers, body, &out); err != nil {
		return "", newError(Claude, err)
	}
	for _, block := range out.Content {
		if block.Type == "" || block.Type == "text" {
			return nonEmpty(Claude, block.Text)
		}
	}
	return "", newError(Claude, fmt.Errorf("%w: no text content", ErrMalformedResponse))
}
