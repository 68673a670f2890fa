package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/park285/Cheese-LLMChess-bot/internal/arbiter"
	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
	"github.com/park285/Cheese-LLMChess-bot/internal/irisfast"
	"github.com/park285/Cheese-LLMChess-bot/internal/msgcat"
	"github.com/park285/Cheese-LLMChess-bot/internal/prompt"
	"github.com/park285/Cheese-LLMChess-bot/internal/provider"
)

func main() {
	only := flag.String("provider", "", "check a single provider (openai|claude|google|cohere|openrouter)")
	model := flag.String("model", "", "model override")
	difficulty := flag.String("difficulty", chess.DefaultProfileName, "difficulty profile used for the prompt")
	timeout := flag.Duration("timeout", 45*time.Second, "per-request timeout")
	flag.Parse()

	_ = godotenv.Load()

	checkIris()

	keys := provider.Keyring{
		provider.OpenAI:     os.Getenv("OPENAI_API_KEY"),
		provider.Claude:     os.Getenv("ANTHROPIC_API_KEY"),
		provider.Google:     os.Getenv("GEMINI_API_KEY"),
		provider.Cohere:     os.Getenv("COHERE_API_KEY"),
		provider.OpenRouter: os.Getenv("OPENROUTER_API_KEY"),
	}
	ids := keys.Configured()
	if *only != "" {
		id, err := provider.ParseID(*only)
		if err != nil {
			log.Fatalf("provider: %v", err)
		}
		ids = []provider.ID{id}
	}
	if len(ids) == 0 {
		log.Println("no provider credentials set; nothing to check")
		return
	}

	profile, err := chess.GetProfile(*difficulty)
	if err != nil {
		log.Fatalf("difficulty: %v", err)
	}
	cat, err := msgcat.New(strings.TrimSpace(os.Getenv("MSGCAT_DIR")))
	if err != nil {
		log.Fatalf("templates: %v", err)
	}
	prompts, err := prompt.NewBuilder(cat)
	if err != nil {
		log.Fatalf("prompt builder: %v", err)
	}
	registry, err := provider.NewRegistry(provider.Options{
		Timeout:           *timeout,
		OpenRouterReferer: os.Getenv("OPENROUTER_REFERER"),
	})
	if err != nil {
		log.Fatalf("providers: %v", err)
	}
	oracle := chess.NewOracle()
	engine, err := arbiter.NewEngine(prompts, registry, oracle, arbiter.WithMaxAttempts(1))
	if err != nil {
		log.Fatalf("arbiter: %v", err)
	}

	pos := chess.NewPosition()
	legal, err := oracle.LegalMoves(pos)
	if err != nil {
		log.Fatalf("legal moves: %v", err)
	}

	failed := 0
	for _, id := range ids {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout+5*time.Second)
		out, err := engine.ChooseMove(ctx, arbiter.Request{
			Position:    pos,
			LegalMoves:  legal,
			Provider:    id,
			Credentials: keys.Credentials(id),
			Model:       provider.ResolveModel(id, *model, profile.Tier),
			Profile:     profile,
			Side:        chess.White,
		})
		cancel()
		switch {
		case err != nil:
			failed++
			fmt.Printf("%-10s error: %v\n", id, err)
		case out.UsedFallback:
			failed++
			fmt.Printf("%-10s fallback move=%s (%v)\n", id, out.Move, out.Err)
		default:
			fmt.Printf("%-10s ok move=%s method=%s took=%s raw=%q\n", id, out.Move, out.Method, out.Duration.Round(time.Millisecond), truncate(out.Raw, 60))
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func checkIris() {
	baseURL := os.Getenv("IRIS_BASE_URL")
	if baseURL == "" {
		log.Println("IRIS_BASE_URL not set; skipping Iris check")
		return
	}
	headers := func() map[string]string {
		m := map[string]string{}
		if v := os.Getenv("X_USER_ID"); v != "" {
			m["X-User-Id"] = v
		}
		if v := os.Getenv("X_USER_EMAIL"); v != "" {
			m["X-User-Email"] = v
		}
		if v := os.Getenv("X_SESSION_ID"); v != "" {
			m["X-Session-Id"] = v
		}
		return m
	}
	client := irisfast.NewClient(baseURL,
		irisfast.WithHeaderProvider(headers),
		irisfast.WithTimeout(8*time.Second),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		log.Printf("/config error: %v", err)
		return
	}
	log.Printf("/config ok: port=%d polling=%d rate=%d endpoint=%s", cfg.Port, cfg.PollingSpeed, cfg.MessageRate, cfg.WebserverEndpoint)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
