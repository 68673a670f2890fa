// Package resolver maps a provider's raw reply onto the legal move set.
package resolver

import (
	"strings"

	"github.com/park285/Cheese-LLMChess-bot/internal/chess"
)

// Method records which matching rule produced a move.
type Method string

const (
	MethodNone    Method = ""
	MethodExact   Method = "exact"
	MethodCapture Method = "capture_tolerant"
	MethodOracle  Method = "oracle"
)

// Applier is the part of the rules oracle the resolver needs.
type Applier interface {
	Apply(pos chess.Position, moveText string) (chess.ApplyResult, error)
}

type Resolver struct {
	oracle Applier
}

func New(oracle Applier) *Resolver {
	return &Resolver{oracle: oracle}
}

// Resolve returns the legal move that raw denotes. Cheap string comparisons
// run first; the oracle sees the untouched reply since piece letters are
// case-sensitive in SAN.
func (r *Resolver) Resolve(raw string, legal []string, pos chess.Position) (string, Method, bool) {
	norm := normalize(raw)
	if norm == "" || len(legal) == 0 {
		return "", MethodNone, false
	}

	// "bxc4" and "Bxc4" can both be legal, so case only folds for a unique hit.
	trimmed := strings.TrimSpace(raw)
	for _, mv := range legal {
		if mv == trimmed {
			return mv, MethodExact, true
		}
	}
	if mv, ok := unique(legal, norm, normalize); ok {
		return mv, MethodExact, true
	}

	// Stripping "x" can make distinct moves collide, so only a unique hit counts.
	if mv, ok := unique(legal, stripCapture(norm), func(s string) string { return stripCapture(normalize(s)) }); ok {
		return mv, MethodCapture, true
	}

	if r.oracle == nil {
		return "", MethodNone, false
	}
	res, err := r.oracle.Apply(pos, trimmed)
	if err != nil || !res.Accepted {
		return "", MethodNone, false
	}
	for _, mv := range legal {
		if mv == res.SAN {
			return mv, MethodOracle, true
		}
	}
	return "", MethodNone, false
}

func unique(legal []string, want string, key func(string) string) (string, bool) {
	match := ""
	hits := 0
	for _, mv := range legal {
		if key(mv) == want {
			match = mv
			hits++
		}
	}
	return match, hits == 1
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func stripCapture(s string) string {
	return strings.ReplaceAll(s, "x", "")
}
