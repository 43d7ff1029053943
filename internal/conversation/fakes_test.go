package conversation

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/llm"
	"github.com/ashureev/agentdesk/internal/store"
)

type fakeLLM struct {
	mu        sync.Mutex
	reply     string
	err       error
	chunks    []string
	streamErr error
	prompts   [][]llm.Message
}

func (f *fakeLLM) record(prompt []llm.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
}

func (f *fakeLLM) Complete(_ context.Context, prompt []llm.Message) (string, error) {
	f.record(prompt)
	return f.reply, f.err
}

func (f *fakeLLM) Stream(_ context.Context, prompt []llm.Message) iter.Seq2[string, error] {
	f.record(prompt)
	return func(yield func(string, error) bool) {
		for _, c := range f.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if f.streamErr != nil {
			yield("", f.streamErr)
		}
	}
}

func (f *fakeLLM) lastPrompt() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return nil
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeSpeech struct {
	mu         sync.Mutex
	transcript string
	sttErr     error
	audio      []byte
	ttsErr     error
	failOn     string
	spoken     []string
	voices     []string
}

func (f *fakeSpeech) SpeechToText(context.Context, []byte, string) (string, error) {
	return f.transcript, f.sttErr
}

func (f *fakeSpeech) TextToSpeech(_ context.Context, text, voice string) ([]byte, error) {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.voices = append(f.voices, voice)
	f.mu.Unlock()
	if f.ttsErr != nil {
		return nil, f.ttsErr
	}
	return f.audio, nil
}

func (f *fakeSpeech) TextToSpeechStream(_ context.Context, text, voice string) iter.Seq2[[]byte, error] {
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.voices = append(f.voices, voice)
	f.mu.Unlock()
	return func(yield func([]byte, error) bool) {
		if f.ttsErr != nil || (f.failOn != "" && text == f.failOn) {
			yield(nil, errors.New("tts backend error"))
			return
		}
		yield([]byte("audio:"+text), nil)
	}
}

func (f *fakeSpeech) ContentType() string  { return "audio/mpeg" }
func (f *fakeSpeech) DefaultVoice() string { return "alloy" }

type fixture struct {
	repo    *store.SQLiteStore
	gen     *fakeLLM
	speech  *fakeSpeech
	svc     *Service
	agent   *domain.Agent
	session *domain.Session
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "conv.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	ctx := context.Background()
	agent := &domain.Agent{Name: "Ada", Prompt: "You are Ada. 100% helpful."}
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}
	sess := &domain.Session{AgentID: agent.ID}
	if err := repo.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	gen := &fakeLLM{}
	sp := &fakeSpeech{transcript: "transcribed text", audio: []byte("mp3")}
	return &fixture{
		repo:    repo,
		gen:     gen,
		speech:  sp,
		svc:     NewService(repo, gen, sp, opts...),
		agent:   agent,
		session: sess,
	}
}

func (f *fixture) messages(t *testing.T) []*domain.Message {
	t.Helper()
	msgs, err := f.repo.ListMessages(context.Background(), f.session.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	return msgs
}
