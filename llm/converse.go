package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockConverser abstracts the Bedrock Converse call for testing.
type BedrockConverser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockBackend sends requests through the AWS Bedrock Converse API.
type BedrockBackend struct {
	converser BedrockConverser
}

// NewBedrockBackend creates a BedrockBackend. *bedrockruntime.Client satisfies BedrockConverser.
func NewBedrockBackend(converser BedrockConverser) *BedrockBackend {
	return &BedrockBackend{converser: converser}
}

func (b *BedrockBackend) Provider() string { return "bedrock" }

func (b *BedrockBackend) Complete(ctx context.Context, req *Request) (*Response, error) {
	input, err := toConverseInput(req)
	if err != nil {
		return nil, err
	}

	out, err := b.converser.Converse(ctx, input)
	if err != nil {
		return nil, classifyBedrockError(b.Provider(), err)
	}

	msg, usage, reason, err := fromConverseOutput(out)
	if err != nil {
		return nil, &Error{Kind: ErrAdapter, Provider: b.Provider(), Message: err.Error(), Cause: err}
	}

	return &Response{
		Model:        req.Model,
		Provider:     b.Provider(),
		Message:      *msg,
		FinishReason: reason,
		Usage:        *usage,
	}, nil
}

// toConverseInput translates a Request into a Bedrock ConverseInput.
func toConverseInput(req *Request) (*bedrockruntime.ConverseInput, error) {
	input := &bedrockruntime.ConverseInput{
		ModelId: strPtr(req.Model),
	}

	// System prompts
	for _, m := range req.Messages {
		if m.Role == RoleSystem && m.Text() != "" {
			input.System = append(input.System, &types.SystemContentBlockMemberText{Value: m.Text()})
		}
	}
	// Anthropic: add cache point after last system block
	if isAnthropicModel(req.Model) && len(input.System) > 0 {
		input.System = append(input.System, &types.SystemContentBlockMemberCachePoint{
			Value: types.CachePointBlock{},
		})
	}

	// Messages
	for _, m := range req.Turns() {
		msg, err := toConverseMessage(m)
		if err != nil {
			return nil, err
		}
		input.Messages = append(input.Messages, msg)
	}

	// Inference config
	if req.MaxTokens != nil || req.Temperature != nil || req.TopP != nil || len(req.StopSequences) > 0 {
		ic := &types.InferenceConfiguration{}
		if req.MaxTokens != nil {
			v := int32(*req.MaxTokens)
			ic.MaxTokens = &v
		}
		if req.Temperature != nil {
			v := float32(*req.Temperature)
			ic.Temperature = &v
		}
		if req.TopP != nil {
			v := float32(*req.TopP)
			ic.TopP = &v
		}
		if len(req.StopSequences) > 0 {
			ic.StopSequences = req.StopSequences
		}
		input.InferenceConfig = ic
	}

	return input, nil
}

func toConverseMessage(m Message) (types.Message, error) {
	msg := types.Message{}

	switch m.Role {
	case RoleUser:
		msg.Role = types.ConversationRoleUser
	case RoleModel:
		msg.Role = types.ConversationRoleAssistant
	}

	for _, p := range m.Content {
		switch p.Kind {
		case ContentText:
			if p.Text != "" {
				msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: p.Text})
			}
		case ContentImage:
			if p.Image == nil || len(p.Image.Data) == 0 {
				continue
			}
			format, ok := converseImageFormat(p.Image.MediaType)
			if !ok {
				return msg, &Error{Kind: ErrUnsupportedInput, Provider: "bedrock", Message: fmt.Sprintf("unsupported image type %q", p.Image.MediaType)}
			}
			msg.Content = append(msg.Content, &types.ContentBlockMemberImage{
				Value: types.ImageBlock{
					Format: format,
					Source: &types.ImageSourceMemberBytes{Value: p.Image.Data},
				},
			})
		}
	}

	return msg, nil
}

func converseImageFormat(mediaType string) (types.ImageFormat, bool) {
	switch mediaType {
	case "image/png":
		return types.ImageFormatPng, true
	case "image/jpeg":
		return types.ImageFormatJpeg, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	}
	return "", false
}

// fromConverseOutput translates a Bedrock ConverseOutput into our types.
func fromConverseOutput(out *bedrockruntime.ConverseOutput) (*Message, *Usage, FinishReason, error) {
	msgOut, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, nil, FinishReason{}, fmt.Errorf("unexpected output type: %T", out.Output)
	}

	msg := &Message{Role: RoleModel}
	for _, block := range msgOut.Value.Content {
		if b, ok := block.(*types.ContentBlockMemberText); ok {
			msg.Content = append(msg.Content, ContentPart{Kind: ContentText, Text: b.Value})
		}
	}

	usage := &Usage{}
	if out.Usage != nil {
		if out.Usage.InputTokens != nil {
			usage.InputTokens = int(*out.Usage.InputTokens)
		}
		if out.Usage.OutputTokens != nil {
			usage.OutputTokens = int(*out.Usage.OutputTokens)
		}
		if out.Usage.CacheReadInputTokens != nil {
			usage.CacheReadTokens = int(*out.Usage.CacheReadInputTokens)
		}
		if out.Usage.CacheWriteInputTokens != nil {
			usage.CacheWriteTokens = int(*out.Usage.CacheWriteInputTokens)
		}
	}

	return msg, usage, mapStopReason(out.StopReason), nil
}

func mapStopReason(sr types.StopReason) FinishReason {
	raw := string(sr)
	switch sr {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return FinishReason{Reason: FinishReasonStop, Raw: raw}
	case types.StopReasonMaxTokens:
		return FinishReason{Reason: FinishReasonLength, Raw: raw}
	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		return FinishReason{Reason: FinishReasonContentFilter, Raw: raw}
	default:
		return FinishReason{Reason: raw, Raw: raw}
	}
}

func classifyBedrockError(provider string, err error) error {
	var kind ErrorKind
	msg := err.Error()

	// Check for specific Bedrock exception types
	var accessDenied *types.AccessDeniedException
	var validation *types.ValidationException
	var notFound *types.ResourceNotFoundException
	var throttling *types.ThrottlingException
	var timeout *types.ModelTimeoutException
	var internal *types.InternalServerException
	var modelErr *types.ModelErrorException

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		kind = ErrCanceled
	case errors.As(err, &accessDenied):
		kind = ErrAuthentication
	case errors.As(err, &validation):
		kind = ErrInvalidRequest
	case errors.As(err, &notFound):
		kind = ErrNotFound
	case errors.As(err, &throttling):
		kind = ErrRateLimit
	case errors.As(err, &timeout):
		kind = ErrServer
	case errors.As(err, &internal):
		kind = ErrServer
	case errors.As(err, &modelErr):
		kind = ErrServer
	default:
		// Check message content for additional classification
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "context length") || strings.Contains(lower, "too many tokens"):
			kind = ErrContextLength
		case strings.Contains(lower, "content filter") || strings.Contains(lower, "guardrail"):
			kind = ErrContentFilter
		default:
			kind = ErrServer
		}
	}

	return &Error{
		Kind:     kind,
		Provider: provider,
		Message:  msg,
		Cause:    err,
	}
}

func isAnthropicModel(model string) bool {
	return strings.Contains(model, "anthropic.")
}

func strPtr(s string) *string { return &s }
