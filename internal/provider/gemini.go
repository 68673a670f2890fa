package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/genai"
)

const geminiClientCacheSize = 64

// geminiAdapter calls the Gemini API through the official genai SDK.
// Clients are cached per API key since players bring their own keys.
type geminiAdapter struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients *lru.Cache[string, *genai.Client]
}

func newGemini(baseURL string, httpClient *http.Client) (*geminiAdapter, error) {
	cache, err := lru.New[string, *genai.Client](geminiClientCacheSize)
	if err != nil {
		return nil, fmt.Errorf("gemini client cache: %w", err)
	}
	return &geminiAdapter{
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: httpClient,
		clients:    cache,
	}, nil
}

func (a *geminiAdapter) ID() ID { return Google }

func (a *geminiAdapter) Send(ctx context.Context, req Request) (string, error) {
	req, err := prepare(Google, req)
	if err != nil {
		return "", err
	}
	cli, err := a.client(ctx, req.Credentials)
	if err != nil {
		return "", newError(Google, err)
	}

	resp, err := cli.Models.GenerateContent(ctx, req.Model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}},
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(req.Temperature)),
			MaxOutputTokens: int32(req.MaxOutputTokens),
		},
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code > 0 {
			err = &statusError{status: apiErr.Code, body: truncate(apiErr.Message, errorBodyLimit)}
		}
		return "", newError(Google, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", newError(Google, fmt.Errorf("%w: no candidates", ErrMalformedResponse))
	}
	return nonEmpty(Google, resp.Candidates[0].Content.Parts[0].Text)
}

func (a *geminiAdapter) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	sum := sha256.Sum256([]byte(apiKey))
	key := hex.EncodeToString(sum[:])

	a.mu.Lock()
	defer a.mu.Unlock()
	if cli, ok := a.clients.Get(key); ok {
		return cli, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: a.httpClient,
	}
	if a.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: a.baseURL}
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.clients.Add(key, cli)
	return cli, nil
}
