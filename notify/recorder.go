package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/warp/obligation-engine/generic"
)

// RunRecorder appends every run, skipped ones included, to a RunLog.
type RunRecorder struct {
	Runs generic.RunLog
}

func (r RunRecorder) PublishSummary(ctx context.Context, result *generic.GenerationResult) error {
	if err := r.Runs.SaveRun(ctx, ToRunRecord(result)); err != nil {
		return fmt.Errorf("record %s run: %w", result.Kind, err)
	}
	return nil
}

// ToRunRecord converts a result into its persisted form with a fresh ID.
func ToRunRecord(result *generic.GenerationResult) generic.RunRecord {
	return generic.RunRecord{
		ID:            uuid.NewString(),
		Kind:          result.Kind,
		Status:        result.Status,
		Reason:        result.Reason,
		ReferenceDate: result.ReferenceDate,
		Actor:         result.Actor,
		Entities:      result.Entities,
		Created:       result.Created,
		Skipped:       result.Skipped,
		Failed:        result.Failed,
		Errors:        result.ErrorMessages(),
		StartedAt:     result.StartedAt,
		CompletedAt:   result.CompletedAt,
	}
}
