package generic

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// GENERATION RESULT - Per-run summary
// =============================================================================

type Kind string

const (
	KindBilling Kind = "billing"
	KindPayroll Kind = "payroll"
)

type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusSkipped RunStatus = "skipped"
)

// EntitySummary lists an entity that produced at least one record.
type EntitySummary struct {
	EntityID EntityID `json:"entity_id"`
	Label    string   `json:"label,omitempty"`
	Created  int      `json:"created"`
}

// GenerationResult is the only thing a caller learns about a run. Partial
// success (Failed > 0 with Status success) is a normal outcome.
type GenerationResult struct {
	Kind          Kind            `json:"kind"`
	Status        RunStatus       `json:"status"`
	Reason        string          `json:"reason,omitempty"`
	ReferenceDate TimePoint       `json:"reference_date"`
	Actor         string          `json:"actor,omitempty"`
	Entities      int             `json:"entities"`
	Created       int             `json:"created"`
	Skipped       int             `json:"skipped"`
	Failed        int             `json:"failed"`
	Errors        []EntityError   `json:"-"`
	Produced      []EntitySummary `json:"produced,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   time.Time       `json:"completed_at"`
}

// ErrorMessages flattens Errors for logs and JSON payloads.
func (r *GenerationResult) ErrorMessages() []string {
	out := make([]string, 0, len(r.Errors))
	for i := range r.Errors {
		out = append(out, r.Errors[i].Error())
	}
	return out
}

// SkippedResult is returned when a precondition fails (nothing to process,
// not a payroll day). It is not an error.
func SkippedResult(kind Kind, ref TimePoint, reason string, now time.Time) *GenerationResult {
	return &GenerationResult{
		Kind:          kind,
		Status:        StatusSkipped,
		Reason:        reason,
		ReferenceDate: ref,
		StartedAt:     now,
		CompletedAt:   now,
	}
}

// =============================================================================
// BATCH RUNNER - Iterates entities, isolating failures
// =============================================================================

// Outcome is what one entity's generation produced.
type Outcome struct {
	Created int
	Skipped int
	Label   string
}

// BatchRunner runs a generator over every entity of a batch. Each entity is
// its own failure boundary: an error or panic is recorded against that
// entity and the batch moves on.
type BatchRunner struct {
	// Concurrency > 1 processes entities in parallel. Entities never share
	// records, so ordering between them does not matter.
	Concurrency int
	Clock       Clock
	Log         zerolog.Logger
}

func (br BatchRunner) now() time.Time {
	if br.Clock == nil {
		return time.Now()
	}
	return br.Clock.Now()
}

type entityRun struct {
	id      EntityID
	outcome Outcome
	err     error
}

// RunBatch applies fn to every item and folds the outcomes into a result.
// Results are reported in item order regardless of Concurrency.
func RunBatch[T any](
	ctx context.Context,
	br BatchRunner,
	kind Kind,
	ref TimePoint,
	items []T,
	key func(T) EntityID,
	fn func(context.Context, T) (Outcome, error),
) *GenerationResult {
	result := &GenerationResult{
		Kind:          kind,
		Status:        StatusSuccess,
		ReferenceDate: ref,
		Entities:      len(items),
		StartedAt:     br.now(),
	}

	runs := make([]entityRun, len(items))
	g, gctx := errgroup.WithContext(ctx)
	limit := br.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, item := range items {
		runs[i].id = key(item)
		g.Go(func() error {
			runs[i].outcome, runs[i].err = safeRun(gctx, item, fn)
			return nil
		})
	}
	_ = g.Wait()

	for _, run := range runs {
		if run.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, EntityError{EntityID: run.id, Err: run.err})
			br.Log.Error().Err(run.err).
				Str("kind", string(kind)).
				Str("entity_id", string(run.id)).
				Msg("generation failed for entity")
			continue
		}
		result.Created += run.outcome.Created
		result.Skipped += run.outcome.Skipped
		if run.outcome.Created > 0 {
			result.Produced = append(result.Produced, EntitySummary{
				EntityID: run.id,
				Label:    run.outcome.Label,
				Created:  run.outcome.Created,
			})
		}
	}

	result.CompletedAt = br.now()
	return result
}

func safeRun[T any](ctx context.Context, item T, fn func(context.Context, T) (Outcome, error)) (out Outcome, err error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, fmt.Errorf("batch interrupted: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			out, err = Outcome{}, &PanicError{Value: v}
		}
	}()
	return fn(ctx, item)
}
