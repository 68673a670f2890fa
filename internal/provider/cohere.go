package provider

import (
	"context"
	"fmt"
	"strings"
)

const cohereBaseURL = "https://api.cohere.ai/v1"

type cohereRequest struct {
	Model         string   `json:"model"`
	Prompt        string   `json:"prompt"`
	MaxTokens     int      `json:"max_tokens"`
	Temperature   float64  `json:"temperature"`
	StopSequences []string `json:"stop_sequences"`
}

type cohereResponse struct {
	Generations []struct {
		Text string `json:"text"`
	} `json:"generations"`
}

type cohereAdapter struct {
	baseURL string
	t       *jsonTransport
}

func newCohere(t *jsonTransport, baseURL string) *cohereAdapter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = cohereBaseURL
	}
	return &cohereAdapter{baseURL: strings.TrimRight(baseURL, "/"), t: t}
}

func (a *cohereAdapter) ID() ID { return Cohere }

func (a *cohereAdapter) Send(ctx context.Context, req Request) (string, error) {
	req, err := prepare(Cohere, req)
	if err != nil {
		return "", err
	}
	body := cohereRequest{
		Model:         req.Model,
		Prompt:        req.Prompt,
		MaxTokens:     req.MaxOutputTokens,
		Temperature:   req.Temperature,
		StopSequences: []string{"\n"},
	}
	var out cohereResponse
	headers := map[string]string{"Authorization": "Bearer " + req.Credentials}
	if err := a.t.postJSON(ctx, a.baseURL+"/generate", headers, body, &out); err != nil {
		return "", newError(Cohere, err)
	}
	if len(out.Generations) == 0 {
		return "", newError(Cohere, fmt.Errorf("%w: no generations", ErrMalformedResponse))
	}
	return nonEmpty(Cohere, out.Generations[0].Text)
}
