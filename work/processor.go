// Package work implements the demo computation performed for each
// request: input screening plus a deterministic CPU-bound transform whose
// cost scales with the requested complexity.
package work

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-relay/core"
)

const (
	// MaxInputBytes caps the serialized input size.
	MaxInputBytes = 10 * 1024
	// MaxInputDepth caps nesting of the input document.
	MaxInputDepth = 10

	MinComplexity = 1
	MaxComplexity = 10

	iterationsPerUnit = 1000
	yieldEvery        = 100
)

// suspiciousFragments are rejected anywhere inside string values. The
// screen is substring-based on purpose; it is a demo filter, not a
// sanitizer.
var suspiciousFragments = []string{
	"<script",
	"javascript:",
	"eval(",
	"exec(",
}

type Processor struct {
	now func() time.Time
}

type Config struct {
	Now func() time.Time
}

func New(cfg Config) *Processor {
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Processor{now: now}
}

// ValidateInput screens the request document before any record is
// created, so rejected inputs never reach the ledger.
func (p *Processor) ValidateInput(input map[string]any) error {
	if len(input) == 0 {
		return badInput("input data is required", "empty_input")
	}

	serialized, err := json.Marshal(input)
	if err != nil {
		return badInput("input data is not serializable", "unserializable_input")
	}
	if len(serialized) > MaxInputBytes {
		return badInput(
			fmt.Sprintf("input data exceeds %d bytes", MaxInputBytes),
			"input_too_large",
		)
	}
	if depthOf(input, 1) > MaxInputDepth {
		return badInput(
			fmt.Sprintf("input data exceeds nesting depth %d", MaxInputDepth),
			"input_too_deep",
		)
	}
	if fragment := findSuspiciousFragment(input); fragment != "" {
		return badInput("input data contains a suspicious pattern", "suspicious_content").
			WithMetadata(map[string]any{"reason": "suspicious_content", "pattern": fragment})
	}
	return nil
}

// Process runs the deterministic transform. Iteration count scales
// linearly with complexity; the loop yields to the context every hundred
// iterations so cancellation is honored mid-computation.
func (p *Processor) Process(ctx context.Context, input map[string]any, complexity int) (core.WorkResult, error) {
	if complexity < MinComplexity || complexity > MaxComplexity {
		return core.WorkResult{}, badInput(
			fmt.Sprintf("complexity must be between %d and %d", MinComplexity, MaxComplexity),
			"invalid_complexity",
		)
	}

	checksum, err := checksumOf(input)
	if err != nil {
		return core.WorkResult{}, badInput("input data is not serializable", "unserializable_input")
	}

	startedAt := time.Now()
	iterations := complexity * iterationsPerUnit
	computed := 0.0
	for i := 0; i < iterations; i++ {
		if i%yieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				return core.WorkResult{}, fmt.Errorf("work: processing canceled: %w", err)
			}
		}
		x := float64(i%100) + 1
		computed += math.Sin(x)*math.Cos(x) + math.Sqrt(x)
	}

	result := map[string]any{
		"original_data":    input,
		"complexity_level": complexity,
		"computed_value":   computed,
		"data_checksum":    checksum,
		"processing_metadata": map[string]any{
			"timestamp":            p.nowUTC().Format(time.RFC3339Nano),
			"iterations_performed": iterations,
			"deterministic_hash":   checksum,
		},
	}
	return core.WorkResult{
		Result:           result,
		ProcessingTimeMS: float64(time.Since(startedAt).Microseconds()) / 1000,
	}, nil
}

func (p *Processor) nowUTC() time.Time {
	if p != nil && p.now != nil {
		return p.now().UTC()
	}
	return time.Now().UTC()
}

// checksumOf hashes a canonical rendering of the input so equal documents
// always produce the same value regardless of map iteration order.
func checksumOf(input map[string]any) (string, error) {
	canonical, err := canonicalJSON(input)
	if err != nil {
		return "", err
	}
	hasher := fnv.New64a()
	hasher.Write(canonical)
	return fmt.Sprintf("%016x", hasher.Sum64()), nil
}

// canonicalJSON renders value with object keys sorted at every level.
// encoding/json already sorts map keys, so a plain marshal suffices once
// the value round-trips through generic types.
func canonicalJSON(value any) ([]byte, error) {
	return json.Marshal(value)
}

func depthOf(value any, depth int) int {
	switch typed := value.(type) {
	case map[string]any:
		deepest := depth
		for _, child := range typed {
			if childDepth := depthOf(child, depth+1); childDepth > deepest {
				deepest = childDepth
			}
		}
		return deepest
	case []any:
		deepest := depth
		for _, child := range typed {
			if childDepth := depthOf(child, depth+1); childDepth > deepest {
				deepest = childDepth
			}
		}
		return deepest
	default:
		return depth
	}
}

func findSuspiciousFragment(value any) string {
	switch typed := value.(type) {
	case string:
		lower := strings.ToLower(typed)
		for _, fragment := range suspiciousFragments {
			if strings.Contains(lower, fragment) {
				return fragment
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if fragment := findSuspiciousFragment(key); fragment != "" {
				return fragment
			}
			if fragment := findSuspiciousFragment(typed[key]); fragment != "" {
				return fragment
			}
		}
	case []any:
		for _, child := range typed {
			if fragment := findSuspiciousFragment(child); fragment != "" {
				return fragment
			}
		}
	}
	return ""
}

func badInput(message string, reason string) *goerrors.Error {
	return goerrors.New(fmt.Sprintf("work: %s", message), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput).
		WithMetadata(map[string]any{"reason": reason})
}

var _ core.WorkProcessor = (*Processor)(nil)
