package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/shared"
)

func TestStreamTextPersistsFullReply(t *testing.T) {
	f := newFixture(t)
	f.gen.chunks = []string{"Hello ", "from ", "stream!"}

	var deltas []string
	var done bool
	for ev := range f.svc.StreamText(context.Background(), TextRequest{SessionID: f.session.ID, Content: "Hi"}) {
		switch {
		case ev.Err != nil:
			t.Fatalf("Unexpected error event: %v", ev.Err)
		case ev.Done:
			done = true
		default:
			if done {
				t.Fatal("Delta after done")
			}
			deltas = append(deltas, ev.Delta)
		}
	}
	if !done {
		t.Fatal("Expected done event")
	}
	if strings.Join(deltas, "") != "Hello from stream!" {
		t.Errorf("Unexpected deltas %q", deltas)
	}

	msgs := f.messages(t)
	if len(msgs) != 2 || msgs[1].Role != domain.RoleAssistant || msgs[1].Content != "Hello from stream!" {
		t.Errorf("Unexpected messages %+v", msgs)
	}
}

func TestStreamTextSavesPartialReplyBeforeError(t *testing.T) {
	f := newFixture(t)
	f.gen.chunks = []string{"Hello ", "wor"}
	f.gen.streamErr = shared.MarkUnreachable(errors.New("connection reset by peer"))

	var gotErr error
	for ev := range f.svc.StreamText(context.Background(), TextRequest{SessionID: f.session.ID, Content: "Hi"}) {
		if ev.Done {
			t.Fatal("Did not expect done")
		}
		if ev.Err != nil {
			gotErr = ev.Err
			msgs := f.messages(t)
			if len(msgs) != 2 || msgs[1].Content != "Hello wor" {
				t.Errorf("Expected partial reply saved before error event, got %+v", msgs)
			}
		}
	}
	if KindOf(gotErr) != KindUnreachable {
		t.Fatalf("Expected unreachable error, got %v", gotErr)
	}
}

func TestStreamTextErrorWithoutOutputSavesNothing(t *testing.T) {
	f := newFixture(t)
	f.gen.streamErr = errors.New("model overloaded")

	var gotErr error
	for ev := range f.svc.StreamText(context.Background(), TextRequest{SessionID: f.session.ID, Content: "Hi"}) {
		gotErr = ev.Err
	}
	if KindOf(gotErr) != KindGeneration {
		t.Fatalf("Expected generation error, got %v", gotErr)
	}
	msgs := f.messages(t)
	if len(msgs) != 1 || msgs[0].Role != domain.RoleUser {
		t.Errorf("Expected only the user message, got %+v", msgs)
	}
}

func TestStreamTextSavesWhenConsumerStops(t *testing.T) {
	f := newFixture(t)
	f.gen.chunks = []string{"Hello ", "there ", "friend"}

	for ev := range f.svc.StreamText(context.Background(), TextRequest{SessionID: f.session.ID, Content: "Hi"}) {
		if ev.Delta == "there " {
			break
		}
	}

	msgs := f.messages(t)
	if len(msgs) != 2 || msgs[1].Content != "Hello there " {
		t.Errorf("Expected delivered text saved, got %+v", msgs)
	}
}

func TestStreamTextCanceledContextStillSaves(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.gen.chunks = []string{"partial"}
	f.gen.streamErr = context.Canceled

	for ev := range f.svc.StreamText(ctx, TextRequest{SessionID: f.session.ID, Content: "Hi"}) {
		if ev.Delta != "" {
			cancel()
		}
	}
	cancel()

	msgs := f.messages(t)
	if len(msgs) != 2 || msgs[1].Content != "partial" {
		t.Errorf("Expected partial reply saved after cancel, got %+v", msgs)
	}
}
