package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// ChatCompleter abstracts the go-openai chat completion call for testing.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIBackend sends requests to an OpenAI-compatible Chat Completions endpoint.
type OpenAIBackend struct {
	client ChatCompleter
}

// NewOpenAIBackend creates an OpenAIBackend. *openai.Client satisfies ChatCompleter.
func NewOpenAIBackend(client ChatCompleter) *OpenAIBackend {
	return &OpenAIBackend{client: client}
}

func (a *OpenAIBackend) Provider() string { return "openai" }

func (a *OpenAIBackend) Complete(ctx context.Context, req *Request) (*Response, error) {
	resp, err := a.client.CreateChatCompletion(ctx, buildOpenAIRequest(req))
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{Kind: ErrAdapter, Provider: a.Provider(), Message: "response has no choices"}
	}

	choice := resp.Choices[0]
	msg := Message{Role: RoleModel}
	if choice.Message.Content != "" {
		msg.Content = append(msg.Content, ContentPart{Kind: ContentText, Text: choice.Message.Content})
	}

	return &Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Provider:     a.Provider(),
		Message:      msg,
		FinishReason: mapOpenAIFinishReason(string(choice.FinishReason)),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func buildOpenAIRequest(req *Request) openai.ChatCompletionRequest {
	or := openai.ChatCompletionRequest{
		Model: req.Model,
		Stop:  req.StopSequences,
	}
	if req.Temperature != nil {
		or.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		or.TopP = float32(*req.TopP)
	}
	if req.MaxTokens != nil {
		or.MaxTokens = *req.MaxTokens
	}

	for _, m := range req.Messages {
		or.Messages = append(or.Messages, translateOpenAIMessage(m))
	}
	return or
}

func translateOpenAIMessage(m Message) openai.ChatCompletionMessage {
	om := openai.ChatCompletionMessage{}

	switch m.Role {
	case RoleSystem:
		om.Role = openai.ChatMessageRoleSystem
	case RoleUser:
		om.Role = openai.ChatMessageRoleUser
	case RoleModel:
		om.Role = openai.ChatMessageRoleAssistant
	}

	if !m.HasImage() {
		om.Content = m.Text()
		return om
	}

	// Content and MultiContent are mutually exclusive.
	for _, p := range m.Content {
		switch p.Kind {
		case ContentText:
			if p.Text != "" {
				om.MultiContent = append(om.MultiContent, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: p.Text,
				})
			}
		case ContentImage:
			if p.Image != nil {
				om.MultiContent = append(om.MultiContent, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: p.Image.DataURI()},
				})
			}
		}
	}
	return om
}

func mapOpenAIFinishReason(raw string) FinishReason {
	switch raw {
	case "stop", "":
		return FinishReason{Reason: FinishReasonStop, Raw: raw}
	case "length":
		return FinishReason{Reason: FinishReasonLength, Raw: raw}
	case "content_filter":
		return FinishReason{Reason: FinishReasonContentFilter, Raw: raw}
	default:
		return FinishReason{Reason: raw, Raw: raw}
	}
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError

	switch {
	case errors.As(err, &apiErr):
		kind := kindForStatus(apiErr.HTTPStatusCode)
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			kind = ErrContextLength
		}
		return &Error{Kind: kind, Provider: "openai", Message: apiErr.Message, Cause: err}
	case errors.As(err, &reqErr):
		return &Error{Kind: kindForStatus(reqErr.HTTPStatusCode), Provider: "openai", Message: err.Error(), Cause: err}
	default:
		return transportError("openai", err)
	}
}
