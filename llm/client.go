package llm

import (
	"context"
	"strings"
)

// CompleteFunc is the signature for the core completion call and middleware next functions.
type CompleteFunc func(ctx context.Context, req *Request) (*Response, error)

// Middleware wraps a Complete call.
type Middleware func(ctx context.Context, req *Request, next CompleteFunc) (*Response, error)

// Backend sends a unified Request to one provider.
type Backend interface {
	// Provider returns the provider name (e.g., "gemini", "openai", "bedrock").
	Provider() string

	// Complete sends the request and translates the provider's reply.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Client routes requests to backends, selects models and applies middleware.
type Client struct {
	backends        map[string]Backend
	defaultProvider string
	textModel       string
	visionModel     string
	system          string
	middleware      []Middleware
}

type clientConfig struct {
	backends        []Backend
	defaultProvider string
	textModel       string
	visionModel     string
	system          string
	middleware      []Middleware
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithBackend registers a backend with the client.
func WithBackend(b Backend) ClientOption {
	return func(c *clientConfig) {
		c.backends = append(c.backends, b)
	}
}

// WithDefaultProvider sets the default provider for requests that don't specify one.
func WithDefaultProvider(provider string) ClientOption {
	return func(c *clientConfig) {
		c.defaultProvider = provider
	}
}

// WithModels sets the models used when a request doesn't name one.
// Requests carrying images use vision; an empty vision model means images are unsupported.
func WithModels(text, vision string) ClientOption {
	return func(c *clientConfig) {
		c.textModel = text
		c.visionModel = vision
	}
}

// WithSystemPrompt prepends a system message to every Generate call.
func WithSystemPrompt(text string) ClientOption {
	return func(c *clientConfig) {
		c.system = text
	}
}

// WithMiddleware adds middleware to the client.
func WithMiddleware(m ...Middleware) ClientOption {
	return func(c *clientConfig) {
		c.middleware = append(c.middleware, m...)
	}
}

// NewClient creates a new Client with the given options.
// With a single backend and no explicit default, that backend becomes the default.
func NewClient(opts ...ClientOption) *Client {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}

	backends := make(map[string]Backend, len(cfg.backends))
	for _, b := range cfg.backends {
		backends[b.Provider()] = b
	}
	if cfg.defaultProvider == "" && len(cfg.backends) == 1 {
		cfg.defaultProvider = cfg.backends[0].Provider()
	}

	return &Client{
		backends:        backends,
		defaultProvider: cfg.defaultProvider,
		textModel:       cfg.textModel,
		visionModel:     cfg.visionModel,
		system:          cfg.system,
		middleware:      cfg.middleware,
	}
}

// Complete sends a request to the appropriate backend and returns the response.
func (c *Client) Complete(ctx context.Context, req *Request) (*Response, error) {
	// Resolve provider
	provider := req.Provider
	if provider == "" {
		provider = c.defaultProvider
	}
	if provider == "" {
		return nil, &Error{Kind: ErrConfig, Message: "no provider specified and no default provider set"}
	}

	backend, ok := c.backends[provider]
	if !ok {
		return nil, &Error{Kind: ErrConfig, Provider: provider, Message: "no backend registered for provider"}
	}

	// Resolve model
	hasImage := req.HasImage()
	model := req.Model
	if model == "" {
		if hasImage {
			if c.visionModel == "" {
				return nil, &Error{Kind: ErrUnsupportedInput, Provider: provider, Message: "no vision model configured for image input"}
			}
			model = c.visionModel
		} else {
			model = c.textModel
		}
	}
	if model == "" {
		return nil, &Error{Kind: ErrConfig, Provider: provider, Message: "no model specified and no default model set"}
	}

	resolved := *req
	resolved.Provider = provider
	resolved.Model = model

	core := func(ctx context.Context, req *Request) (*Response, error) {
		resp, err := backend.Complete(ctx, req)
		if err != nil {
			// A retired or unknown vision model means the image can't be handled.
			if hasImage && IsKind(err, ErrNotFound) {
				return nil, &Error{Kind: ErrUnsupportedInput, Provider: provider, Message: "vision model unavailable", Cause: err}
			}
			return nil, err
		}
		return resp, nil
	}

	// Wrap with middleware (first registered = outermost)
	fn := core
	for i := len(c.middleware) - 1; i >= 0; i-- {
		mw := c.middleware[i]
		next := fn
		fn = func(ctx context.Context, req *Request) (*Response, error) {
			return mw(ctx, req, next)
		}
	}

	return fn(ctx, &resolved)
}

// Generate sends history followed by a new user turn and returns the model's text.
func (c *Client) Generate(ctx context.Context, history []Message, prompt string, image *ImageData) (string, error) {
	messages := make([]Message, 0, len(history)+2)
	if c.system != "" {
		messages = append(messages, SystemMessage(c.system))
	}
	messages = append(messages, history...)
	messages = append(messages, UserImageMessage(prompt, image))

	resp, err := c.Complete(ctx, &Request{Messages: messages})
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		if resp.FinishReason.Reason == FinishReasonContentFilter {
			return "", &Error{Kind: ErrContentFilter, Provider: resp.Provider, Message: "response blocked"}
		}
		return "", &Error{Kind: ErrAdapter, Provider: resp.Provider, Message: "response has no text"}
	}
	return text, nil
}
