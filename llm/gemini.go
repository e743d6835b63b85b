package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultGeminiBaseURL is the public Generative Language API endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiBackend calls the Generative Language REST API (generateContent).
type GeminiBackend struct {
	http *resty.Client
}

// GeminiOption configures a GeminiBackend.
type GeminiOption func(*resty.Client)

// WithGeminiBaseURL overrides the API base URL.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(c *resty.Client) {
		c.SetBaseURL(strings.TrimRight(url, "/"))
	}
}

// WithGeminiTimeout sets the HTTP timeout. Zero means no timeout.
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// NewGeminiBackend creates a GeminiBackend authenticated with apiKey.
func NewGeminiBackend(apiKey string, opts ...GeminiOption) *GeminiBackend {
	c := resty.New().
		SetBaseURL(DefaultGeminiBaseURL).
		SetHeader("x-goog-api-key", apiKey).
		SetHeader("Content-Type", "application/json")
	for _, o := range opts {
		o(c)
	}
	return &GeminiBackend{http: c}
}

func (g *GeminiBackend) Provider() string { return "gemini" }

// --- Gemini request types ---

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// --- Gemini response types ---

type geminiResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *geminiUsage          `json:"usageMetadata,omitempty"`
	ModelVersion   string                `json:"modelVersion"`
	ResponseID     string                `json:"responseId"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason"`
}

type geminiUsage struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *GeminiBackend) Complete(ctx context.Context, req *Request) (*Response, error) {
	body := buildGeminiRequest(req)
	model := strings.TrimPrefix(req.Model, "models/")

	var out geminiResponse
	var apiErr geminiErrorBody
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1beta/models/" + model + ":generateContent")
	if err != nil {
		return nil, transportError(g.Provider(), err)
	}
	if resp.IsError() {
		return nil, classifyGeminiError(resp.StatusCode(), apiErr, resp.Body())
	}

	return parseGeminiResponse(&out, req.Model, resp.Body())
}

func buildGeminiRequest(req *Request) geminiRequest {
	gr := geminiRequest{}

	if sys := req.System(); sys != "" {
		gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: sys}}}
	}

	for _, m := range req.Turns() {
		gc := geminiContent{Role: "user"}
		if m.Role == RoleModel {
			gc.Role = "model"
		}
		for _, p := range m.Content {
			switch p.Kind {
			case ContentText:
				if p.Text != "" {
					gc.Parts = append(gc.Parts, geminiPart{Text: p.Text})
				}
			case ContentImage:
				if p.Image != nil && len(p.Image.Data) > 0 {
					gc.Parts = append(gc.Parts, geminiPart{InlineData: &geminiInlineData{
						MimeType: p.Image.MediaType,
						Data:     p.Image.Base64(),
					}})
				}
			}
		}
		if len(gc.Parts) > 0 {
			gr.Contents = append(gr.Contents, gc)
		}
	}

	if req.Temperature != nil || req.TopP != nil || req.MaxTokens != nil || len(req.StopSequences) > 0 {
		gr.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.StopSequences,
		}
	}

	return gr
}

func parseGeminiResponse(out *geminiResponse, model string, raw []byte) (*Response, error) {
	if len(out.Candidates) == 0 {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return nil, &Error{Kind: ErrContentFilter, Provider: "gemini", Message: "prompt blocked: " + out.PromptFeedback.BlockReason, Raw: raw}
		}
		return nil, &Error{Kind: ErrAdapter, Provider: "gemini", Message: "response has no candidates", Raw: raw}
	}

	cand := out.Candidates[0]
	msg := Message{Role: RoleModel}
	for _, p := range cand.Content.Parts {
		if p.Text != "" {
			msg.Content = append(msg.Content, ContentPart{Kind: ContentText, Text: p.Text})
		}
	}

	var usage Usage
	if out.UsageMetadata != nil {
		usage.InputTokens = out.UsageMetadata.PromptTokenCount
		usage.OutputTokens = out.UsageMetadata.CandidatesTokenCount
		usage.CacheReadTokens = out.UsageMetadata.CachedContentTokenCount
	}

	if out.ModelVersion != "" {
		model = out.ModelVersion
	}

	return &Response{
		ID:           out.ResponseID,
		Model:        model,
		Provider:     "gemini",
		Message:      msg,
		FinishReason: mapGeminiFinishReason(cand.FinishReason),
		Usage:        usage,
	}, nil
}

func mapGeminiFinishReason(raw string) FinishReason {
	switch raw {
	case "STOP", "":
		return FinishReason{Reason: FinishReasonStop, Raw: raw}
	case "MAX_TOKENS":
		return FinishReason{Reason: FinishReasonLength, Raw: raw}
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return FinishReason{Reason: FinishReasonContentFilter, Raw: raw}
	default:
		return FinishReason{Reason: strings.ToLower(raw), Raw: raw}
	}
}

func classifyGeminiError(status int, body geminiErrorBody, raw []byte) error {
	msg := body.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("unexpected status %d", status)
	}
	kind := kindForStatus(status)
	if body.Error.Status == "RESOURCE_EXHAUSTED" {
		kind = ErrRateLimit
	}
	return &Error{Kind: kind, Provider: "gemini", Message: msg, Raw: raw}
}
