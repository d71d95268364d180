package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/reportbrief/reportbrief/internal/tracing"
)

// AnthropicOptions configures the Messages API backend.
type AnthropicOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	// HTTPClient overrides the pooled default client. Used by tests.
	HTTPClient *http.Client
}

// Anthropic summarizes rows with the Anthropic Messages API.
type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropic returns an Anthropic backend. Retries are disabled: a failed
// call surfaces to the caller, which marks the report failed.
func NewAnthropic(opts AnthropicOptions) *Anthropic {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newPooledClient()
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(httpClient),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(strings.TrimRight(opts.BaseURL, "/")+"/"))
	}

	return &Anthropic{
		client:      anthropic.NewClient(reqOpts...),
		model:       opts.Model,
		maxTokens:   int64(opts.MaxTokens),
		temperature: opts.Temperature,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

// Summarize sends the sample as a single user message and parses the first
// text block of the reply.
func (a *Anthropic) Summarize(ctx context.Context, in Input) (*Output, error) {
	ctx, span := tracing.StartSummarizerSpan(ctx, a.Name(), a.model, len(in.Rows))
	defer span.End()

	prompt, err := BuildPrompt(in)
	if err != nil {
		return nil, err
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		System:      []anthropic.TextBlockParam{{Text: SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("anthropic: status %d: %w", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
			break
		}
	}
	if text.Len() == 0 {
		err := fmt.Errorf("%w: reply has no text content", ErrMalformedResult)
		tracing.RecordError(ctx, err)
		return nil, err
	}

	res, err := ParseResult(text.String())
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	modelName := string(msg.Model)
	if modelName == "" {
		modelName = a.model
	}
	return &Output{
		Result:     res,
		Model:      modelName,
		TokensUsed: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}, nil
}

// newPooledClient returns an HTTP client with connection pooling. The
// overall deadline comes from the caller's context.
func newPooledClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}
