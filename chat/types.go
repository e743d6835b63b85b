package chat

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/quells-bot/chat-session/llm"
)

// State is where a session is in its request cycle.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
	StateRendered
	StateFailed
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateAwaitingResponse: "awaiting_response",
	StateRendered:         "rendered",
	StateFailed:           "failed",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// FailureKind classifies why a Send produced no model reply.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureService
	FailureUnsupportedInput
	FailureBusy
)

var failureNames = [...]string{
	FailureNone:             "none",
	FailureService:          "service",
	FailureUnsupportedInput: "unsupported_input",
	FailureBusy:             "busy",
}

func (k FailureKind) String() string {
	if int(k) >= 0 && int(k) < len(failureNames) {
		return failureNames[k]
	}
	return "unknown"
}

// Fixed texts shown in place of a model reply.
const (
	FallbackServiceError     = "Sorry, I encountered an error processing your request."
	FallbackUnsupportedInput = "I'm sorry, but the image analysis model is currently unavailable. Please try again with a text-only prompt."
	FallbackBusy             = "Please wait for the current response before sending another message."
)

// DefaultImagePrompt is used when an image is sent without text.
const DefaultImagePrompt = "Describe this image in detail"

var (
	// ErrEmptyInput marks a submission with neither text nor image.
	ErrEmptyInput = errors.New("chat: empty input")
	// ErrBusy is returned when a request is already in flight and the session rejects concurrent sends.
	ErrBusy = errors.New("chat: request already in flight")
)

// Turn is one entry of the conversation log.
type Turn struct {
	ID      uuid.UUID
	Message llm.Message
	At      time.Time
	// Failed is set on a user turn whose request got no reply.
	Failed bool
}

// Reply is the outcome of a Send.
type Reply struct {
	// Text is the rendered HTML of the model reply, or a fallback message on failure.
	Text    string
	Raw     string
	State   State
	Failure FailureKind
	Err     error
	// Skipped is true when the submission was empty and nothing happened.
	Skipped bool
}

// Failed reports whether the send ended without a model reply.
func (r Reply) Failed() bool {
	return r.Failure != FailureNone
}

func fallbackFor(k FailureKind) string {
	switch k {
	case FailureUnsupportedInput:
		return FallbackUnsupportedInput
	case FailureBusy:
		return FallbackBusy
	default:
		return FallbackServiceError
	}
}
