package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
)

// ID names a text-generation backend.
type ID string

const (
	OpenAI     ID = "openai"
	Claude     ID = "claude"
	Google     ID = "google"
	Cohere     ID = "cohere"
	OpenRouter ID = "openrouter"
)

// MaxOutputTokens caps every reply; a move token needs only a few.
const MaxOutputTokens = 10

var (
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrEmptyReply         = errors.New("empty reply")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrHTTPStatus         = errors.New("unexpected http status")
)

// IDs lists the supported backends in display order.
func IDs() []ID { return []ID{OpenAI, Claude, Google, Cohere, OpenRouter} }

// ParseID resolves a backend name or a common alias.
func ParseID(raw string) (ID, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai", "gpt", "chatgpt":
		return OpenAI, nil
	case "claude", "anthropic":
		return Claude, nil
	case "google", "gemini":
		return Google, nil
	case "cohere":
		return Cohere, nil
	case "openrouter", "or":
		return OpenRouter, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
}

// Request is the provider-neutral shape of one move request.
type Request struct {
	Prompt          string
	Credentials     string
	Model           string
	Tier            chess.ModelTier
	Temperature     float64
	MaxOutputTokens int
}

// Adapter sends a prompt to one backend and returns the raw reply text.
// Implementations never retry; every failure is a *ProviderError.
type Adapter interface {
	ID() ID
	Send(ctx context.Context, req Request) (string, error)
}

// ProviderError is the single failure type surfaced by adapters.
type ProviderError struct {
	Provider ID
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	var sb strings.Builder
	sb.WriteString("provider ")
	sb.WriteString(string(e.Provider))
	if e.Status > 0 {
		fmt.Fprintf(&sb, " status=%d", e.Status)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	} else if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

func newError(id ID, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	out := &ProviderError{Provider: id, Err: err}
	var se *statusError
	if errors.As(err, &se) {
		out.Status = se.status
		out.Message = se.Error()
	}
	return out
}

// prepare validates credentials and fills in the model and token cap.
func prepare(id ID, req Request) (Request, error) {
	req.Credentials = strings.TrimSpace(req.Credentials)
	if req.Credentials == "" {
		return req, &ProviderError{Provider: id, Err: ErrMissingCredentials}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return req, &ProviderError{Provider: id, Message: "empty prompt", Err: ErrMalformedResponse}
	}
	req.Model = ResolveModel(id, req.Model, req.Tier)
	if req.MaxOutputTokens <= 0 || req.MaxOutputTokens > MaxOutputTokens {
		req.MaxOutputTokens = MaxOutputTokens
	}
	if req.Temperature < 0 {
		req.Temperature = 0
	}
	if req.Temperature > 1 {
		req.Temperature = 1
	}
	return req, nil
}

func nonEmpty(id ID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &ProviderError{Provider: id, Err: ErrEmptyReply}
	}
	return text, nil
}
