package llm

import (
	"encoding/base64"
	"strings"
)

// Role represents a message participant.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "model"
)

// ContentKind identifies the type of a ContentPart.
type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
)

// ContentPart is a tagged union: only the field matching Kind is populated.
type ContentPart struct {
	Kind  ContentKind
	Text  string     // Kind == ContentText
	Image *ImageData // Kind == ContentImage
}

type ImageData struct {
	Data      []byte // raw image bytes
	MediaType string // e.g., "image/png"
	Width     int
	Height    int
}

// Base64 returns the standard base64 encoding of the image bytes.
func (img ImageData) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURI returns the image as a data URI, e.g. "data:image/png;base64,...".
func (img ImageData) DataURI() string {
	return "data:" + img.MediaType + ";base64," + img.Base64()
}

// Format returns the short image format name ("png", "jpeg", ...).
func (img ImageData) Format() string {
	return strings.TrimPrefix(img.MediaType, "image/")
}

// Message is a single message in a conversation.
type Message struct {
	Role    Role
	Content []ContentPart
}

// Text concatenates all text content parts in the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Content {
		if p.Kind == ContentText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Images returns all image content parts in the message.
func (m Message) Images() []ImageData {
	var imgs []ImageData
	for _, p := range m.Content {
		if p.Kind == ContentImage && p.Image != nil {
			imgs = append(imgs, *p.Image)
		}
	}
	return imgs
}

// HasImage reports whether the message carries at least one image part.
func (m Message) HasImage() bool {
	for _, p := range m.Content {
		if p.Kind == ContentImage && p.Image != nil {
			return true
		}
	}
	return false
}

// TextOnly returns a copy of the message with image parts removed.
func (m Message) TextOnly() Message {
	out := Message{Role: m.Role}
	for _, p := range m.Content {
		if p.Kind == ContentText {
			out.Content = append(out.Content, p)
		}
	}
	return out
}

// SystemMessage creates a system message with a single text part.
func SystemMessage(text string) Message {
	return Message{
		Role:    RoleSystem,
		Content: []ContentPart{{Kind: ContentText, Text: text}},
	}
}

// UserMessage creates a user message with a single text part.
func UserMessage(text string) Message {
	return Message{
		Role:    RoleUser,
		Content: []ContentPart{{Kind: ContentText, Text: text}},
	}
}

// UserImageMessage creates a user message with a text part followed by an image part.
// A nil image yields the same message as UserMessage.
func UserImageMessage(text string, img *ImageData) Message {
	m := UserMessage(text)
	if img != nil {
		m.Content = append(m.Content, ContentPart{Kind: ContentImage, Image: img})
	}
	return m
}

// ModelMessage creates a model message with a single text part.
func ModelMessage(text string) Message {
	return Message{
		Role:    RoleModel,
		Content: []ContentPart{{Kind: ContentText, Text: text}},
	}
}

// Request is the unified request to any LLM provider.
type Request struct {
	Model         string
	Messages      []Message
	Provider      string
	Temperature   *float64
	TopP          *float64
	MaxTokens     *int
	StopSequences []string
}

// HasImage reports whether any message in the request carries an image.
func (r *Request) HasImage() bool {
	for _, m := range r.Messages {
		if m.HasImage() {
			return true
		}
	}
	return false
}

// System concatenates the text of all system messages, separated by blank lines.
func (r *Request) System() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			if t := m.Text(); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// Turns returns the non-system messages in order.
func (r *Request) Turns() []Message {
	turns := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			turns = append(turns, m)
		}
	}
	return turns
}

// FinishReason describes why generation stopped.
type FinishReason struct {
	Reason string // unified: "stop", "length", "content_filter", "error"
	Raw    string // provider's native string
}

const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
	FinishReasonError         = "error"
)

// Usage contains token counts from the response.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// Add sums two Usage values.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + other.InputTokens,
		OutputTokens:     u.OutputTokens + other.OutputTokens,
		CacheReadTokens:  u.CacheReadTokens + other.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens + other.CacheWriteTokens,
	}
}

// Response is the unified response from any LLM provider.
type Response struct {
	ID           string
	Model        string
	Provider     string
	Message      Message
	FinishReason FinishReason
	Usage        Usage
}

// Text returns concatenated text from all text content parts.
func (r *Response) Text() string {
	return r.Message.Text()
}
