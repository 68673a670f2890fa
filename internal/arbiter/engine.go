// Package arbiter asks a language model for a move and guarantees a legal
// answer: bounded retries, then a uniform random legal move.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
	"github.com/park285/Cheese-LLMChess-bot/internal/prompt"
	"github.com/park285/Cheese-LLMChess-bot/internal/provider"
	"github.com/park285/Cheese-LLMChess-bot/internal/resolver"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 1500 * time.Millisecond
)

var ErrNoLegalMoves = errors.New("no legal moves")

// PromptBuilder renders the move request.
type PromptBuilder interface {
	Build(in prompt.Input) (string, error)
}

// AdapterSource looks up a provider adapter by id.
type AdapterSource interface {
	Adapter(id provider.ID) (provider.Adapter, error)
}

// Request is one chooseMove call. Side is the side the model plays and must
// be the side to move in Position.
type Request struct {
	Position    chess.Position
	History     []string
	LegalMoves  []string
	Provider    provider.ID
	Credentials string
	Model       string
	Profile     chess.DifficultyProfile
	Side        chess.Side
}

// Outcome always carries a legal Move unless ChooseMove returned an error.
type Outcome struct {
	Move         string
	UsedFallback bool
	ProviderID   provider.ID
	Attempts     int
	Method       resolver.Method
	Raw          string
	Duration     time.Duration
	// Err is nil on a clean resolution, *FallbackUsed otherwise.
	Err error
}

type Option func(*Engine)

func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.retryDelay = d
		}
	}
}

// WithSleep replaces the backoff wait; tests pass a no-op.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// WithRand sets the source for fallback picks. The engine serializes its use.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rand = r
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

type Engine struct {
	prompts  PromptBuilder
	adapters AdapterSource
	oracle   chess.Oracle
	resolver *resolver.Resolver
	logger   *zap.Logger

	maxAttempts int
	retryDelay  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewEngine(prompts PromptBuilder, adapters AdapterSource, oracle chess.Oracle, opts ...Option) (*Engine, error) {
	if prompts == nil || adapters == nil || oracle == nil {
		return nil, errors.New("arbiter requires prompt builder, adapters and oracle")
	}
	e := &Engine{
		prompts:     prompts,
		adapters:    adapters,
		oracle:      oracle,
		resolver:    resolver.New(oracle),
		logger:      zap.NewNop(),
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		sleep:       sleepContext,
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ChooseMove returns a member of the legal move set for req.Position. The
// only errors are a side-to-move mismatch, an empty legal set, or an explicit
// cancel of ctx. Provider failures, unparseable replies and an expired
// deadline all end in a fallback move.
// Callers must not run two ChooseMove calls for the same game at once.
func (e *Engine) ChooseMove(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()

	actual, err := e.oracle.SideToMove(req.Position)
	if err != nil {
		return Outcome{}, err
	}
	if actual != req.Side {
		return Outcome{}, &ConsistencyError{Expected: req.Side, Actual: actual}
	}

	legal := req.LegalMoves
	if len(legal) == 0 {
		if legal, err = e.oracle.LegalMoves(req.Position); err != nil {
			return Outcome{}, err
		}
	}
	if len(legal) == 0 {
		return Outcome{}, ErrNoLegalMoves
	}

	out := Outcome{ProviderID: req.Provider}
	var failures *multierror.Error

	text, adapter, err := e.prepare(req, legal)
	if err != nil {
		failures = multierror.Append(failures, err)
		return e.fallback(out, legal, failures, start), nil
	}

	log := e.logger.With(zap.String("provider", string(req.Provider)), zap.String("model", req.Model))
	preq := provider.Request{
		Prompt:          text,
		Credentials:     req.Credentials,
		Model:           req.Model,
		Tier:            req.Profile.Tier,
		Temperature:     req.Profile.Temperature,
		MaxOutputTokens: provider.MaxOutputTokens,
	}

	for out.Attempts < e.maxAttempts {
		if out.Attempts > 0 {
			if err := e.sleep(ctx, e.retryDelay); err != nil {
				if !errors.Is(err, context.DeadlineExceeded) {
					return Outcome{}, err
				}
				failures = multierror.Append(failures, err)
				break
			}
		}
		out.Attempts++

		raw, err := adapter.Send(ctx, preq)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				if !errors.Is(ctxErr, context.DeadlineExceeded) {
					return Outcome{}, ctxErr
				}
				// Deadline spent: no time left for another attempt.
				log.Warn("arbiter_deadline_exceeded", zap.Int("attempt", out.Attempts), zap.Error(err))
				failures = multierror.Append(failures, fmt.Errorf("attempt %d: %w", out.Attempts, err))
				break
			}
			log.Warn("arbiter_attempt_failed", zap.Int("attempt", out.Attempts), zap.Error(err))
			failures = multierror.Append(failures, fmt.Errorf("attempt %d: %w", out.Attempts, err))
			continue
		}

		move, method, ok := e.resolver.Resolve(raw, legal, req.Position)
		if !ok {
			unresolved := &UnresolvableMoveError{Raw: raw}
			log.Warn("arbiter_unresolved_reply", zap.Int("attempt", out.Attempts), zap.String("raw", raw))
			failures = multierror.Append(failures, fmt.Errorf("attempt %d: %w", out.Attempts, unresolved))
			continue
		}

		out.Move = move
		out.Method = method
		out.Raw = raw
		out.Duration = time.Since(start)
		log.Debug("arbiter_resolved",
			zap.String("move", move),
			zap.String("method", string(method)),
			zap.Int("attempt", out.Attempts),
		)
		return out, nil
	}

	return e.fallback(out, legal, failures, start), nil
}

func (e *Engine) prepare(req Request, legal []string) (string, provider.Adapter, error) {
	adapter, err := e.adapters.Adapter(req.Provider)
	if err != nil {
		return "", nil, err
	}
	text, err := e.prompts.Build(prompt.Input{
		Position:   req.Position,
		History:    req.History,
		LegalMoves: legal,
		Profile:    req.Profile,
		Side:       req.Side,
	})
	if err != nil {
		return "", nil, fmt.Errorf("build prompt: %w", err)
	}
	return text, adapter, nil
}

func (e *Engine) fallback(out Outcome, legal []string, failures *multierror.Error, start time.Time) Outcome {
	e.randMu.Lock()
	idx := e.rand.Intn(len(legal))
	e.randMu.Unlock()

	out.Move = legal[idx]
	out.UsedFallback = true
	out.Method = resolver.MethodNone
	out.Duration = time.Since(start)
	out.Err = &FallbackUsed{Attempts: out.Attempts, Cause: failures.ErrorOrNil()}
	e.logger.Warn("arbiter_fallback",
		zap.String("provider", string(out.ProviderID)),
		zap.String("move", out.Move),
		zap.Int("attempts", out.Attempts),
		zap.Error(out.Err),
	)
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
