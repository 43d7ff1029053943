package conversation

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// TextEvent is one step of a streaming text turn. Exactly one terminal
// event (Done or Err) ends the sequence.
type TextEvent struct {
	Delta string
	Done  bool
	Err   error
}

// StreamText runs a streaming text turn. Text produced before the sequence
// ends, for whatever reason, is saved as the assistant message before the
// terminal event is yielded, and also when the consumer stops early.
func (s *Service) StreamText(ctx context.Context, req TextRequest) iter.Seq[TextEvent] {
	return func(yield func(TextEvent) bool) {
		ctx, span := s.startSpan(ctx, TurnTextStream, req.SessionID)
		defer span.End()
		defer s.metrics.RecordTurn(ctx, TurnTextStream, time.Now())

		t, prompt, err := s.prepare(ctx, TurnTextStream, req.SessionID, req.Content, req.Style)
		if err != nil {
			s.fail(ctx, span, TurnTextStream, err)
			yield(TextEvent{Err: err})
			return
		}

		var reply strings.Builder
		deltas := 0
		save := sync.OnceValue(func() error {
			s.metrics.AddDeltas(ctx, deltas)
			if strings.TrimSpace(reply.String()) == "" {
				return nil
			}
			_, err := s.appendReply(ctx, t, reply.String())
			return err
		})
		defer func() {
			if err := save(); err != nil {
				slog.Error("failed to save partial reply", "turn_id", t.id, "session_id", t.session.ID, "error", err)
			}
		}()

		for delta, err := range s.gen.Stream(ctx, prompt) {
			if err != nil {
				genErr := generationError(TurnTextStream, err)
				_ = save()
				s.fail(ctx, span, TurnTextStream, genErr)
				slog.Info("stream ended early", "turn_id", t.id, "session_id", t.session.ID, "saved_length", reply.Len())
				yield(TextEvent{Err: genErr})
				return
			}
			if delta == "" {
				continue
			}
			reply.WriteString(delta)
			deltas++
			if !yield(TextEvent{Delta: delta}) {
				slog.Info("stream consumer went away", "turn_id", t.id, "session_id", t.session.ID)
				return
			}
		}

		if err := save(); err != nil {
			s.fail(ctx, span, TurnTextStream, err)
			yield(TextEvent{Err: err})
			return
		}
		slog.Info("stream turn completed", "turn_id", t.id, "session_id", t.session.ID, "reply_length", reply.Len())
		yield(TextEvent{Done: true})
	}
}
