package provider

import (
	"fmt"
	"net/http"
	"time"

	"github.com/valyala/fasthttp"
)

// Options configures the adapter set. Zero values select public endpoints.
type Options struct {
	HTTPClient       *fasthttp.Client
	GeminiHTTPClient *http.Client
	Timeout          time.Duration

	OpenAIBaseURL     string
	ClaudeBaseURL     string
	CohereBaseURL     string
	OpenRouterBaseURL string
	GeminiBaseURL     string

	// OpenRouterReferer is sent as HTTP-Referer for OpenRouter rankings.
	OpenRouterReferer string
}

// Registry maps backend ids to adapters.
type Registry struct {
	adapters map[ID]Adapter
}

func NewRegistry(opts Options) (*Registry, error) {
	t := newJSONTransport(opts.HTTPClient, opts.Timeout)
	geminiHTTP := opts.GeminiHTTPClient
	if geminiHTTP == nil && opts.Timeout > 0 {
		geminiHTTP = &http.Client{Timeout: opts.Timeout}
	}
	gemini, err := newGemini(opts.GeminiBaseURL, geminiHTTP)
	if err != nil {
		return nil, err
	}
	r := &Registry{adapters: make(map[ID]Adapter, 5)}
	r.Register(newOpenAI(t, opts.OpenAIBaseURL))
	r.Register(newClaude(t, opts.ClaudeBaseURL))
	r.Register(gemini)
	r.Register(newCohere(t, opts.CohereBaseURL))
	r.Register(newOpenRouter(t, opts.OpenRouterBaseURL, opts.OpenRouterReferer))
	return r, nil
}

// Register replaces the adapter for a.ID().
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.adapters[a.ID()] = a
}

func (r *Registry) Adapter(id ID) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	return a, nil
}
