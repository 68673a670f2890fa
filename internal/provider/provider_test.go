package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type captured struct {
	mu      sync.Mutex
	path    string
	headers map[string]string
	body    map[string]any
	calls   int
}

func (c *captured) snapshot() captured {
	c.mu.Lock()
	defer c.mu.Unlock()
	return captured{path: c.path, headers: c.headers, body: c.body, calls: c.calls}
}

// fakeLLM serves a canned response on an in-memory listener.
func fakeLLM(t *testing.T, status int, reply string) (*fasthttp.Client, *captured) {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	rec := &captured{}
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		rec.mu.Lock()
		rec.calls++
		rec.path = string(ctx.Path())
		rec.headers = map[string]string{}
		ctx.Request.Header.VisitAll(func(k, v []byte) {
			rec.headers[string(k)] = string(v)
		})
		rec.body = map[string]any{}
		_ = json.Unmarshal(ctx.PostBody(), &rec.body)
		rec.mu.Unlock()

		ctx.SetStatusCode(status)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(reply)
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	client := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	return client, rec
}

func registryFor(t *testing.T, client *fasthttp.Client) *Registry {
	t.Helper()
	reg, err := NewRegistry(Options{
		HTTPClient:        client,
		OpenAIBaseURL:     "http://llm.test/v1",
		ClaudeBaseURL:     "http://llm.test/v1",
		CohereBaseURL:     "http://llm.test/v1",
		OpenRouterBaseURL: "http://llm.test/api/v1",
		OpenRouterReferer: "https://chess.example",
	})
	require.NoError(t, err)
	return reg
}

func send(t *testing.T, reg *Registry, id ID, req Request) (string, error) {
	t.Helper()
	a, err := reg.Adapter(id)
	require.NoError(t, err)
	return a.Send(context.Background(), req)
}

func TestOpenAISendsChatCompletion(t *testing.T) {
	client, rec := fakeLLM(t, 200, `{"choices":[{"message":{"role":"assistant","content":" e4 \n"}}]}`)
	reg := registryFor(t, client)

	got, err := send(t, reg, OpenAI, Request{Prompt: "move?", Credentials: "sk-test", Temperature: 0.7, MaxOutputTokens: 500})
	require.NoError(t, err)
	assert.Equal(t, "e4", got)

	snap := rec.snapshot()
	assert.Equal(t, "/v1/chat/completions", snap.path)
	assert.Equal(t, "Bearer sk-test", snap.headers["Authorization"])
	assert.Equal(t, "gpt-4o-mini", snap.body["model"])
	assert.EqualValues(t, MaxOutputTokens, snap.body["max_tokens"])
	assert.InDelta(t, 0.7, snap.body["temperature"], 1e-9)
}

func TestOpenRouterAddsAttributionHeaders(t *testing.T) {
	client, rec := fakeLLM(t, 200, `{"choices":[{"message":{"content":"Nf3"}}]}`)
	reg := registryFor(t, client)

	got, err := send(t, reg, OpenRouter, Request{Prompt: "move?", Credentials: "or-key", Model: "deepseek/deepseek-chat"})
	require.NoError(t, err)
	assert.Equal(t, "Nf3", got)

	snap := rec.snapshot()
	assert.Equal(t, "/api/v1/chat/completions", snap.path)
	assert.Equal(t, "https://chess.example", snap.headers["Http-Referer"])
	assert.Equal(t, "Chess AI Game", snap.headers["X-Title"])
	assert.Equal(t, "deepseek/deepseek-chat", snap.body["model"])
}

func TestClaudeUsesMessagesAPI(t *testing.T) {
	client, rec := fakeLLM(t, 200, `{"content":[{"type":"text","text":"Nc6"}]}`)
	reg := registryFor(t, client)

	got, err := send(t, reg, Claude, Request{Prompt: "move?", Credentials: "ant-key", Tier: "expert"})
	require.NoError(t, err)
	assert.Equal(t, "Nc6", got)

	snap := rec.snapshot()
	assert.Equal(t, "/v1/messages", snap.path)
	assert.Equal(t, "ant-key", snap.headers["X-Api-Key"])
	assert.Equal(t, "2023-06-01", snap.headers["Anthropic-Version"])
	assert.Equal(t, "claude-3-5-sonnet-latest", snap.body["model"])
}

func TestCohereStopsAtNewline(t *testing.T) {
	client, rec := fakeLLM(t, 200, `{"generations":[{"text":"d4"}]}`)
	reg := registryFor(t, client)

	got, err := send(t, reg, Cohere, Request{Prompt: "move?", Credentials: "co-key"})
	require.NoError(t, err)
	assert.Equal(t, "d4", got)

	snap := rec.snapshot()
	assert.Equal(t, "/v1/generate", snap.path)
	assert.Equal(t, []any{"\n"}, snap.body["stop_sequences"])
	assert.Equal(t, "move?", snap.body["prompt"])
}

func TestSendFailuresAreProviderErrors(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		client, _ := fakeLLM(t, 401, `{"error":"bad key"}`)
		_, err := send(t, registryFor(t, client), OpenAI, Request{Prompt: "p", Credentials: "k"})
		var pe *ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, 401, pe.Status)
		assert.ErrorIs(t, err, ErrHTTPStatus)
	})

	t.Run("malformed body", func(t *testing.T) {
		client, _ := fakeLLM(t, 200, `not json`)
		_, err := send(t, registryFor(t, client), Claude, Request{Prompt: "p", Credentials: "k"})
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("empty reply", func(t *testing.T) {
		client, _ := fakeLLM(t, 200, `{"choices":[{"message":{"content":"   "}}]}`)
		_, err := send(t, registryFor(t, client), OpenAI, Request{Prompt: "p", Credentials: "k"})
		assert.ErrorIs(t, err, ErrEmptyReply)
	})

	t.Run("missing credentials", func(t *testing.T) {
		client, rec := fakeLLM(t, 200, `{}`)
		_, err := send(t, registryFor(t, client), Cohere, Request{Prompt: "p", Credentials: " "})
		assert.ErrorIs(t, err, ErrMissingCredentials)
		assert.Zero(t, rec.snapshot().calls)
	})
}

func TestSendDoesNotRetry(t *testing.T) {
	client, rec := fakeLLM(t, 503, `overloaded`)
	_, err := send(t, registryFor(t, client), OpenRouter, Request{Prompt: "p", Credentials: "k"})
	require.Error(t, err)
	assert.Equal(t, 1, rec.snapshot().calls)
}

func TestParseIDAndRegistry(t *testing.T) {
	for raw, want := range map[string]ID{"Gemini": Google, "anthropic": Claude, "OR": OpenRouter, "openai": OpenAI} {
		got, err := ParseID(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}
	_, err := ParseID("llama")
	assert.True(t, errors.Is(err, ErrUnknownProvider))

	reg, err := NewRegistry(Options{})
	require.NoError(t, err)
	for _, id := range IDs() {
		a, err := reg.Adapter(id)
		require.NoError(t, err)
		assert.Equal(t, id, a.ID())
	}
	_, err = reg.Adapter("mistral")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestModelDefaultsAndCatalog(t *testing.T) {
	assert.Equal(t, "gpt-4o", DefaultModel(OpenAI, "expert"))
	assert.Equal(t, "command", DefaultModel(Cohere, "expert"))
	assert.Equal(t, "gemini-1.5-flash", ResolveModel(Google, " ", "standard"))
	assert.Equal(t, "custom", ResolveModel(Google, "custom", "standard"))
	assert.Equal(t, FallbackModel, DefaultModel("unknown", "basic"))

	m, ok := LookupCatalogModel("claude 3.5 sonnet")
	require.True(t, ok)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", m.ID)

	cat := OpenRouterCatalog()
	cat[0].ID = "mutated"
	assert.NotEqual(t, "mutated", OpenRouterCatalog()[0].ID)
}
