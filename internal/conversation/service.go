// Package conversation runs conversation turns: it loads the session and
// agent, persists messages, talks to the generation and speech providers
// and reports progress as events.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/ashureev/agentdesk/internal/llm"
	"github.com/ashureev/agentdesk/internal/speech"
	"github.com/ashureev/agentdesk/internal/store"
	"github.com/ashureev/agentdesk/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Turn names used in logs, spans and metrics.
const (
	TurnText        = "text"
	TurnTextStream  = "text_stream"
	TurnVoice       = "voice"
	TurnVoiceStream = "voice_stream"
	TurnTranscribe  = "transcribe"
)

// TextRequest is the input of a text turn.
type TextRequest struct {
	SessionID int64
	Content   string
	Style     string
}

// VoiceRequest is the input of a synchronous voice turn.
type VoiceRequest struct {
	SessionID int64
	Audio     []byte
	Filename  string
	Style     string
}

// VoiceReply is the result of a synchronous voice turn.
type VoiceReply struct {
	Transcript  string
	Reply       *domain.Message
	Audio       []byte
	ContentType string
}

// Service runs turns. It keeps no per-session state between calls.
type Service struct {
	repo    store.Repository
	gen     llm.Provider
	speech  speech.Provider
	styles  *Styles
	convLog ConversationLogger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	window  int
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithStyles sets the response style catalog.
func WithStyles(s *Styles) Option { return func(svc *Service) { svc.styles = s } }

// WithConversationLogger sets the conversation log sink.
func WithConversationLogger(l ConversationLogger) Option {
	return func(svc *Service) { svc.convLog = l }
}

// WithMetrics sets the turn instruments.
func WithMetrics(m *telemetry.Metrics) Option { return func(svc *Service) { svc.metrics = m } }

// WithTracer sets the tracer used for turn spans.
func WithTracer(t trace.Tracer) Option { return func(svc *Service) { svc.tracer = t } }

// WithHistoryWindow caps how many history entries are sent to the model.
// Zero sends the whole history.
func WithHistoryWindow(n int) Option { return func(svc *Service) { svc.window = n } }

// WithClock overrides the time source used for session touches.
func WithClock(now func() time.Time) Option { return func(svc *Service) { svc.now = now } }

// NewService returns a Service. gen and sp may be nil when the matching
// provider is not configured; turns needing them then fail as unavailable.
func NewService(repo store.Repository, gen llm.Provider, sp speech.Provider, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		gen:     gen,
		speech:  sp,
		styles:  DefaultStyles(),
		convLog: noopConversationLogger{},
		tracer:  otel.Tracer(telemetry.ScopeName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Styles returns the response style catalog.
func (s *Service) Styles() []domain.Style { return s.styles.List() }

// Messages returns a session's history oldest first.
func (s *Service) Messages(ctx context.Context, sessionID int64) ([]*domain.Message, error) {
	const op = "messages"
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, newError(KindInternal, op, msgLoadFailed, err)
	}
	if sess == nil {
		return nil, newError(KindNotFound, op, msgSessionNotFound, nil)
	}
	msgs, err := s.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, newError(KindInternal, op, msgLoadFailed, err)
	}
	return msgs, nil
}

// turnState is what a turn learns while starting up.
type turnState struct {
	id        string
	op        string
	session   *domain.Session
	agent     *domain.Agent
	styleText string
}

func (s *Service) startSpan(ctx context.Context, op string, sessionID int64) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "conversation."+op, trace.WithAttributes(
		attribute.Int64("session.id", sessionID),
	))
}

// fail records err on the span, the metrics and the log.
func (s *Service) fail(ctx context.Context, span trace.Span, op string, err error) {
	kind := KindOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	s.metrics.RecordFailure(ctx, op, string(kind))

	if kind == KindNotFound || kind == KindInvalidInput || kind == KindCanceled {
		slog.Info("turn rejected", "turn", op, "kind", kind, "error", err)
		return
	}
	slog.Error("turn failed", "turn", op, "kind", kind, "error", err)
}

// begin validates the style and loads the session and its agent.
func (s *Service) begin(ctx context.Context, op string, sessionID int64, style string) (*turnState, error) {
	t := &turnState{id: uuid.NewString(), op: op}

	if style != "" {
		st, ok := s.styles.Lookup(style)
		if !ok {
			return nil, newError(KindInvalidInput, op, "Unknown style: "+style, nil)
		}
		t.styleText = st.Instruction
	}

	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, newError(KindInternal, op, msgLoadFailed, err)
	}
	if sess == nil {
		return nil, newError(KindNotFound, op, msgSessionNotFound, nil)
	}
	agent, err := s.repo.GetAgent(ctx, sess.AgentID)
	if err != nil {
		return nil, newError(KindInternal, op, msgLoadFailed, err)
	}
	if agent == nil {
		return nil, newError(KindNotFound, op, msgAgentNotFound, nil)
	}

	t.session = sess
	t.agent = agent
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("turn.id", t.id),
		attribute.Int64("agent.id", agent.ID),
	)
	return t, nil
}

// appendMessage persists one message. Writes ignore caller cancellation so
// a disconnect cannot lose an utterance that was already produced.
func (s *Service) appendMessage(ctx context.Context, t *turnState, role domain.Role, content string) (*domain.Message, error) {
	ctx = context.WithoutCancel(ctx)
	msg := &domain.Message{SessionID: t.session.ID, Role: role, Content: content}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, newError(KindPersistence, t.op, msgPersistFailed, err)
	}

	s.convLog.Log(ConversationLogEvent{
		Timestamp:  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		TurnID:     t.id,
		AgentID:    t.agent.ID,
		SessionID:  t.session.ID,
		Turn:       t.op,
		Role:       string(role),
		ContentRaw: content,
	})
	return msg, nil
}

// appendReply persists the assistant message and touches the session.
func (s *Service) appendReply(ctx context.Context, t *turnState, content string) (*domain.Message, error) {
	msg, err := s.appendMessage(ctx, t, domain.RoleAssistant, content)
	if err != nil {
		return nil, err
	}
	t.session.Touch(s.now())
	if err := s.repo.UpdateSession(context.WithoutCancel(ctx), t.session); err != nil {
		return nil, newError(KindPersistence, t.op, msgPersistFailed, err)
	}
	return msg, nil
}

// prompt reloads the session history and assembles the model input.
func (s *Service) prompt(ctx context.Context, t *turnState) ([]llm.Message, error) {
	history, err := s.repo.ListMessages(ctx, t.session.ID)
	if err != nil {
		return nil, newError(KindInternal, t.op, msgLoadFailed, err)
	}
	return BuildPrompt(t.agent.Prompt, t.styleText, history, s.window), nil
}

// prepare runs the shared preamble of every generating turn: load, persist
// the user utterance, assemble the prompt.
func (s *Service) prepare(ctx context.Context, op string, sessionID int64, content, style string) (*turnState, []llm.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, newError(KindInvalidInput, op, "content is required", nil)
	}
	if s.gen == nil {
		return nil, nil, newError(KindUnavailable, op, msgLLMUnavailable, nil)
	}
	t, err := s.begin(ctx, op, sessionID, style)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.appendMessage(ctx, t, domain.RoleUser, content); err != nil {
		return nil, nil, err
	}
	prompt, err := s.prompt(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	return t, prompt, nil
}

// complete asks the model for a whole reply and persists it.
func (s *Service) complete(ctx context.Context, t *turnState, prompt []llm.Message) (*domain.Message, error) {
	reply, err := s.gen.Complete(ctx, prompt)
	if err != nil {
		return nil, generationError(t.op, err)
	}
	if strings.TrimSpace(reply) == "" {
		return nil, newError(KindEmptyResult, t.op, msgGenerateFailed, errors.New("empty reply"))
	}
	return s.appendReply(ctx, t, reply)
}

// SendText runs a synchronous text turn and returns the assistant message.
func (s *Service) SendText(ctx context.Context, req TextRequest) (*domain.Message, error) {
	ctx, span := s.startSpan(ctx, TurnText, req.SessionID)
	defer span.End()
	defer s.metrics.RecordTurn(ctx, TurnText, time.Now())

	t, prompt, err := s.prepare(ctx, TurnText, req.SessionID, req.Content, req.Style)
	if err != nil {
		s.fail(ctx, span, TurnText, err)
		return nil, err
	}
	msg, err := s.complete(ctx, t, prompt)
	if err != nil {
		s.fail(ctx, span, TurnText, err)
		return nil, err
	}

	slog.Info("text turn completed", "turn_id", t.id, "session_id", t.session.ID, "reply_length", len(msg.Content))
	return msg, nil
}
