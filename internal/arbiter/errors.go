package arbiter

import (
	"errors"
	"fmt"

	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
)

// ErrFallbackUsed matches any *FallbackUsed via errors.Is.
var ErrFallbackUsed = errors.New("fallback move used")

// ConsistencyError means the engine was invoked for the wrong side. It is a
// caller bug and is never retried.
type ConsistencyError struct {
	Expected chess.Side
	Actual   chess.Side
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("side to move is %s, expected %s", e.Actual, e.Expected)
}

// UnresolvableMoveError carries a reply that matched no legal move.
type UnresolvableMoveError struct {
	Raw string
}

func (e *UnresolvableMoveError) Error() string {
	return fmt.Sprintf("unresolvable move reply %q", e.Raw)
}

// FallbackUsed reports that the returned move was picked at random after
// every attempt failed.
type FallbackUsed struct {
	Attempts int
	Cause    error
}

func (e *FallbackUsed) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("fallback move used after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("fallback move used after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *FallbackUsed) Unwrap() error { return e.Cause }

func (e *FallbackUsed) Is(target error) bool { return target == ErrFallbackUsed }
