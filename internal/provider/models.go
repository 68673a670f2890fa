package provider

import (
	"strings"

	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
)

// FallbackModel is used for a backend missing from the default table.
const FallbackModel = "gpt-4o-mini"

var defaultModels = map[ID]string{
	OpenAI:     "gpt-4o-mini",
	Claude:     "claude-3-5-haiku-latest",
	Google:     "gemini-1.5-flash",
	Cohere:     "command",
	OpenRouter: "openai/gpt-4o-mini",
}

// expertModels replace the default for the expert tier.
var expertModels = map[ID]string{
	OpenAI: "gpt-4o",
	Claude: "claude-3-5-sonnet-latest",
	Google: "gemini-1.5-pro",
}

// DefaultModel returns the model used for id when none is configured.
func DefaultModel(id ID, tier chess.ModelTier) string {
	if tier == chess.TierExpert {
		if m, ok := expertModels[id]; ok {
			return m
		}
	}
	if m, ok := defaultModels[id]; ok {
		return m
	}
	return FallbackModel
}

// ResolveModel keeps an explicit model and falls back to the default table.
func ResolveModel(id ID, model string, tier chess.ModelTier) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return DefaultModel(id, tier)
}

// CatalogModel describes an OpenRouter model offered to players.
type CatalogModel struct {
	ID     string
	Name   string
	Vendor string
}

var openRouterCatalog = []CatalogModel{
	{ID: "openai/gpt-4o", Name: "GPT-4o", Vendor: "OpenAI"},
	{ID: "openai/gpt-4o-mini", Name: "GPT-4o Mini", Vendor: "OpenAI"},
	{ID: "openai/o3-mini", Name: "o3-mini", Vendor: "OpenAI"},
	{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Vendor: "Anthropic"},
	{ID: "anthropic/claude-3.5-haiku", Name: "Claude 3.5 Haiku", Vendor: "Anthropic"},
	{ID: "google/gemini-1.5-pro", Name: "Gemini 1.5 Pro", Vendor: "Google"},
	{ID: "google/gemini-1.5-flash", Name: "Gemini 1.5 Flash", Vendor: "Google"},
	{ID: "xai/grok-2", Name: "Grok-2", Vendor: "xAI"},
	{ID: "meta-llama/llama-3.1-405b-instruct", Name: "Llama 3.1 405B", Vendor: "Meta"},
	{ID: "meta-llama/llama-3.1-70b-instruct", Name: "Llama 3.1 70B", Vendor: "Meta"},
	{ID: "meta-llama/llama-3.1-8b-instruct", Name: "Llama 3.1 8B", Vendor: "Meta"},
	{ID: "mistralai/mistral-large-latest", Name: "Mistral Large", Vendor: "Mistral"},
	{ID: "mistralai/mixtral-8x22b-instruct", Name: "Mixtral 8x22B", Vendor: "Mistral"},
	{ID: "deepseek/deepseek-chat", Name: "DeepSeek Chat", Vendor: "DeepSeek"},
	{ID: "deepseek/deepseek-reasoner", Name: "DeepSeek Reasoner", Vendor: "DeepSeek"},
	{ID: "qwen/qwen2.5-72b-instruct", Name: "Qwen2.5 72B", Vendor: "Qwen"},
	{ID: "qwen/qwq-32b", Name: "QwQ-32B", Vendor: "Qwen"},
}

// OpenRouterCatalog returns a copy of the curated OpenRouter model list.
func OpenRouterCatalog() []CatalogModel {
	return append([]CatalogModel(nil), openRouterCatalog...)
}

// LookupCatalogModel finds a catalog entry by id or case-insensitive name.
func LookupCatalogModel(query string) (CatalogModel, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, m := range openRouterCatalog {
		if strings.ToLower(m.ID) == q || strings.ToLower(m.Name) == q {
			return m, true
		}
	}
	return CatalogModel{}, false
}
