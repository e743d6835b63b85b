// Package chat manages a single conversation: it keeps the ordered message
// log, sends each new prompt with the prior history to a language model and
// renders the reply.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quells-bot/chat-session/imaging"
	"github.com/quells-bot/chat-session/llm"
	"github.com/quells-bot/chat-session/markdown"
)

// LanguageModel generates a reply to prompt given the earlier turns.
// *llm.Client satisfies it.
type LanguageModel interface {
	Generate(ctx context.Context, history []llm.Message, prompt string, image *llm.ImageData) (string, error)
}

// Renderer turns a raw model reply into displayable HTML.
type Renderer interface {
	Render(text string) string
}

// Option configures a Session.
type Option func(*Session)

// WithRenderer replaces the default markdown renderer.
func WithRenderer(r Renderer) Option {
	return func(s *Session) {
		s.renderer = r
	}
}

// WithImageBounds sets the maximum size images are scaled to before sending.
func WithImageBounds(maxWidth, maxHeight int) Option {
	return func(s *Session) {
		s.bounds = imaging.Bounds{MaxWidth: maxWidth, MaxHeight: maxHeight}
	}
}

// WithStateListener registers fn to be called on every state change.
// fn runs on the goroutine calling Send and must not call back into the session's Send.
func WithStateListener(fn func(State)) Option {
	return func(s *Session) {
		s.listeners = append(s.listeners, fn)
	}
}

// WithRejectWhenBusy makes Send fail fast with ErrBusy while another request
// is in flight, instead of waiting for it.
func WithRejectWhenBusy() Option {
	return func(s *Session) {
		s.rejectBusy = true
	}
}

// WithHistoryWindow limits the history sent with each request to the last n
// messages. Zero or less sends everything.
func WithHistoryWindow(n int) Option {
	return func(s *Session) {
		s.window = n
	}
}

// WithLogger sets the logger used to report failures.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithClock overrides the time source used to stamp turns.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// Session is one conversation with a language model.
// It is safe for concurrent use; requests are handled one at a time.
type Session struct {
	model      LanguageModel
	renderer   Renderer
	bounds     imaging.Bounds
	window     int
	rejectBusy bool
	listeners  []func(State)
	log        zerolog.Logger
	now        func() time.Time

	// slot holds a token while a request is in flight.
	slot chan struct{}

	mu    sync.Mutex
	turns []Turn
	state State
	// pending is the index of the user turn awaiting a reply, or -1.
	pending int
}

// NewSession creates an empty session backed by model.
func NewSession(model LanguageModel, opts ...Option) *Session {
	s := &Session{
		model:    model,
		renderer: markdown.New(),
		bounds:   imaging.DefaultBounds(),
		log:      zerolog.Nop(),
		now:      time.Now,
		slot:     make(chan struct{}, 1),
		pending:  -1,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("component", "chat_session").Logger()
	return s
}

// Send submits a prompt and optional image, waits for the model and returns
// the rendered reply. Failures are reported in the Reply, never as a panic
// or error return.
func (s *Session) Send(ctx context.Context, prompt string, image []byte) Reply {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" && len(image) == 0 {
		return Reply{Skipped: true, State: StateIdle, Err: ErrEmptyInput}
	}

	if reply, ok := s.acquire(ctx); !ok {
		return reply
	}
	defer s.release()

	if prompt == "" {
		prompt = DefaultImagePrompt
	}

	var img *llm.ImageData
	if len(image) > 0 {
		n, err := imaging.Normalize(image, s.bounds)
		if err != nil {
			s.appendTurn(llm.UserMessage(prompt), true)
			return s.fail(FailureUnsupportedInput, err)
		}
		img = &llm.ImageData{Data: n.Data, MediaType: n.MediaType, Width: n.Width, Height: n.Height}
	}

	history := s.History()
	s.beginTurn(llm.UserImageMessage(prompt, img))
	s.setState(StateAwaitingResponse)

	raw, err := s.model.Generate(ctx, history, prompt, img)
	if err != nil {
		s.endTurn(nil)
		return s.fail(classify(err), err)
	}

	reply := llm.ModelMessage(raw)
	s.endTurn(&reply)
	html := s.renderer.Render(raw)
	s.setState(StateRendered)
	s.setState(StateIdle)

	return Reply{Text: html, Raw: raw, State: StateRendered}
}

func (s *Session) acquire(ctx context.Context) (Reply, bool) {
	// A done context is never accepted, even when the slot is free.
	if err := ctx.Err(); err != nil {
		return Reply{Text: FallbackServiceError, State: StateFailed, Failure: FailureService, Err: err}, false
	}
	if s.rejectBusy {
		select {
		case s.slot <- struct{}{}:
			return Reply{}, true
		default:
			return Reply{Text: FallbackBusy, State: StateFailed, Failure: FailureBusy, Err: ErrBusy}, false
		}
	}

	select {
	case s.slot <- struct{}{}:
		return Reply{}, true
	case <-ctx.Done():
		return Reply{Text: FallbackServiceError, State: StateFailed, Failure: FailureService, Err: ctx.Err()}, false
	}
}

func (s *Session) release() {
	<-s.slot
}

func (s *Session) fail(kind FailureKind, err error) Reply {
	ev := s.log.Warn().Err(err).Str("failure", kind.String())
	if k, ok := llm.KindOf(err); ok {
		ev = ev.Str("kind", k.String())
	}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) && llmErr.Provider != "" {
		ev = ev.Str("provider", llmErr.Provider)
	}
	ev.Msg("request failed")

	s.setState(StateFailed)
	s.setState(StateIdle)
	return Reply{Text: fallbackFor(kind), State: StateFailed, Failure: kind, Err: err}
}

func classify(err error) FailureKind {
	if llm.IsKind(err, llm.ErrUnsupportedInput) || errors.Is(err, imaging.ErrUnsupportedFormat) {
		return FailureUnsupportedInput
	}
	return FailureService
}

func (s *Session) appendTurn(m llm.Message, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{ID: uuid.New(), Message: m, At: s.now(), Failed: failed})
}

// beginTurn appends the user turn of the request about to be dispatched.
func (s *Session) beginTurn(m llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{ID: uuid.New(), Message: m, At: s.now()})
	s.pending = len(s.turns) - 1
}

// endTurn closes the in-flight turn: with a reply it appends the model turn,
// without one it marks the user turn failed.
func (s *Session) endTurn(reply *llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reply == nil {
		s.turns[s.pending].Failed = true
	} else {
		s.turns = append(s.turns, Turn{ID: uuid.New(), Message: *reply, At: s.now()})
	}
	s.pending = -1
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	for _, fn := range s.listeners {
		fn(st)
	}
}

// State returns the current request state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len returns the number of turns in the log, failed ones included.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Log returns a copy of the conversation log.
func (s *Session) Log() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// History returns the messages sent as context with the next request:
// answered turns only, images stripped, limited to the history window.
// A user turn still awaiting its reply is not included.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]llm.Message, 0, len(s.turns))
	for i, t := range s.turns {
		if t.Failed || i == s.pending {
			continue
		}
		msgs = append(msgs, t.Message.TextOnly())
	}

	if s.window > 0 && len(msgs) > s.window {
		msgs = msgs[len(msgs)-s.window:]
		// History must open with a user turn.
		if len(msgs) > 0 && msgs[0].Role != llm.RoleUser {
			msgs = msgs[1:]
		}
	}
	return msgs
}
