/*
Package notify delivers generation summaries.

NOTIFIERS:
  LogNotifier:   one structured log line per run
  RedisNotifier: JSON summary on a pub/sub channel
  InboxNotifier: in-app notification per owner, only when records were created
  RunRecorder:   persists the run into a generic.RunLog
  Multi:         fans one summary out to several notifiers

All of them implement generic.Notifier. The engine logs and ignores their
errors: a lost notification never fails a run.
*/
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/warp/obligation-engine/generic"
)

// Multi calls every notifier and joins their errors.
type Multi []generic.Notifier

func (m Multi) PublishSummary(ctx context.Context, result *generic.GenerationResult) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.PublishSummary(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes the summary to the logger. Entity failures were already
// logged with their errors by the batch runner; the summary only lists ids.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) PublishSummary(_ context.Context, result *generic.GenerationResult) error {
	ev := n.Log.Info()
	if result.Failed > 0 {
		ev = n.Log.Warn()
		ids := make([]string, len(result.Errors))
		for i := range result.Errors {
			ids[i] = string(result.Errors[i].EntityID)
		}
		ev = ev.Strs("failed_entities", ids)
	}
	ev.Str("kind", string(result.Kind)).
		Str("status", string(result.Status)).
		Str("reference_date", result.ReferenceDate.String()).
		Str("actor", result.Actor).
		Int("entities", result.Entities).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Dur("took", result.CompletedAt.Sub(result.StartedAt)).
		Msg("generation summary")
	return nil
}
