package api

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/agentdesk/internal/conversation"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/llm"
	"github.com/ashureev/agentdesk/internal/speech"
	"github.com/go-chi/chi/v5"
)

type fakeRepo struct {
	mu       sync.Mutex
	agents   map[int64]*domain.Agent
	sessions map[int64]*domain.Session
	messages map[int64][]*domain.Message
	nextID   int64
	clock    time.Time
	pingErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		agents:   make(map[int64]*domain.Agent),
		sessions: make(map[int64]*domain.Session),
		messages: make(map[int64][]*domain.Message),
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp. Callers hold mu.
func (f *fakeRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Millisecond)
	return f.clock
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) Ping(context.Context) error { return f.pingErr }
func (f *fakeRepo) Close() error               { return nil }

func (f *fakeRepo) CreateAgent(_ context.Context, a *domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = f.id()
	a.CreatedAt = f.tick()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	f.agents[a.ID] = &cp
	return nil
}

func (f *fakeRepo) GetAgent(_ context.Context, id int64) (*domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) ListAgents(context.Context) ([]*domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Agent, 0, len(f.agents))
	for _, a := range f.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) UpdateAgent(_ context.Context, a *domain.Agent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.agents[a.ID]; !ok {
		return errors.New("agent not found")
	}
	a.UpdatedAt = f.tick()
	cp := *a
	f.agents[a.ID] = &cp
	return nil
}

func (f *fakeRepo) DeleteAgent(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.agents[id]; !ok {
		return false, nil
	}
	delete(f.agents, id)
	for sid, s := range f.sessions {
		if s.AgentID == id {
			delete(f.sessions, sid)
			delete(f.messages, sid)
		}
	}
	return true, nil
}

func (f *fakeRepo) CreateSession(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.agents[s.AgentID]; !ok {
		return errors.New("FOREIGN KEY constraint failed")
	}
	s.ID = f.id()
	s.CreatedAt = f.tick()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeRepo) GetSession(_ context.Context, id int64) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) ListSessions(_ context.Context, agentID int64) ([]*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Session
	for _, s := range f.sessions {
		if s.AgentID == agentID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeRepo) UpdateSession(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.sessions[s.ID]
	if !ok {
		return errors.New("session not found")
	}
	if s.UpdatedAt.After(cur.UpdatedAt) {
		cur.UpdatedAt = s.UpdatedAt
	}
	return nil
}

func (f *fakeRepo) DeleteSession(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return false, nil
	}
	delete(f.sessions, id)
	delete(f.messages, id)
	return true, nil
}

func (f *fakeRepo) CreateMessage(_ context.Context, m *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[m.SessionID]; !ok {
		return errors.New("FOREIGN KEY constraint failed")
	}
	m.ID = f.id()
	m.CreatedAt = f.tick()
	cp := *m
	f.messages[m.SessionID] = append(f.messages[m.SessionID], &cp)
	return nil
}

func (f *fakeRepo) ListMessages(_ context.Context, sessionID int64) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Message, 0, len(f.messages[sessionID]))
	for _, m := range f.messages[sessionID] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

type fakeLLM struct {
	reply  string
	chunks []string
	err    error
	// canceled, when set, makes Stream block after its chunks until ctx is
	// done and then closes canceled.
	canceled chan struct{}
}

func (f *fakeLLM) Complete(context.Context, []llm.Message) (string, error) {
	return f.reply, f.err
}

func (f *fakeLLM) Stream(ctx context.Context, _ []llm.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, c := range f.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if f.canceled != nil {
			<-ctx.Done()
			close(f.canceled)
			yield("", ctx.Err())
			return
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

type fakeSpeech struct {
	transcript string
	sttErr     error
}

func (f *fakeSpeech) SpeechToText(context.Context, []byte, string) (string, error) {
	return f.transcript, f.sttErr
}

func (f *fakeSpeech) TextToSpeech(_ context.Context, text, _ string) ([]byte, error) {
	return []byte("audio:" + text), nil
}

func (f *fakeSpeech) TextToSpeechStream(_ context.Context, text, _ string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		yield([]byte("audio:"+text), nil)
	}
}

func (f *fakeSpeech) ContentType() string  { return "audio/mpeg" }
func (f *fakeSpeech) DefaultVoice() string { return "alloy" }

type testEnv struct {
	repo    *fakeRepo
	gen     *fakeLLM
	speech  *fakeSpeech
	router  chi.Router
	agent   *domain.Agent
	session *domain.Session
}

// newTestEnv wires the handlers to in-memory fakes. Pass a nil gen or sp to
// simulate an unconfigured provider.
func newTestEnv(t *testing.T, gen *fakeLLM, sp *fakeSpeech) *testEnv {
	t.Helper()
	repo := newFakeRepo()

	var provider llm.Provider
	if gen != nil {
		provider = gen
	}
	var speechProvider speech.Provider
	if sp != nil {
		speechProvider = sp
	}
	conv := conversation.NewService(repo, provider, speechProvider)

	r := chi.NewRouter()
	NewAgentHandler(repo, 0).RegisterRoutes(r)
	NewChatHandler(conv, 0, 1<<20).RegisterRoutes(r)
	r.Handle("/sessions/voice-ws", NewVoiceSocketHandler(conv, []string{"*"}, false, 1<<20))
	NewHealthHandler(repo, gen != nil, sp != nil).RegisterHealth(r)

	ctx := context.Background()
	agent := &domain.Agent{Name: "Ada", Prompt: "You are Ada."}
	if err := repo.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}
	sess := &domain.Session{AgentID: agent.ID}
	if err := repo.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return &testEnv{repo: repo, gen: gen, speech: sp, router: r, agent: agent, session: sess}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// sseEvents returns the data payloads of an event-stream body.
func sseEvents(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		data, ok := strings.CutPrefix(block, "data: ")
		if !ok {
			t.Fatalf("malformed event %q", block)
		}
		out = append(out, data)
	}
	return out
}

func newRouterFor(h *AgentHandler) chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}
