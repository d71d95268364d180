package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/reportbrief/reportbrief/internal/tokenizer"
	"github.com/reportbrief/reportbrief/internal/tracing"
)

// maxProxyResponse caps how much of a proxy reply is read.
const maxProxyResponse = 1 << 20

// HTTP delegates summarization to a proxy service. It POSTs
// {"rows": [...], "columns": [...]} and expects {"result": {...}} back,
// optionally with a "tokens_used" count. Errors are reported by the proxy
// as {"error": "...", "details": "..."}.
type HTTP struct {
	url    string
	model  string
	client *http.Client
	tok    *tokenizer.Tokenizer
}

// NewHTTP returns a proxy backend posting to url. model is recorded on the
// stored summary and used for token estimates.
func NewHTTP(url, model string) *HTTP {
	return &HTTP{
		url:    url,
		model:  model,
		client: newPooledClient(),
		tok:    tokenizer.New(),
	}
}

func (h *HTTP) Name() string { return "http" }

func (h *HTTP) Summarize(ctx context.Context, in Input) (*Output, error) {
	rows := capRows(in.Rows)
	ctx, span := tracing.StartSummarizerSpan(ctx, h.Name(), h.model, len(rows))
	defer span.End()

	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encoding sample rows: %w", err)
	}
	body, err := sjson.SetRawBytes([]byte(`{}`), "rows", rowsJSON)
	if err != nil {
		return nil, fmt.Errorf("building proxy request: %w", err)
	}
	if cols := columnsOf(in); len(cols) > 0 {
		if body, err = sjson.SetBytes(body, "columns", cols); err != nil {
			return nil, fmt.Errorf("building proxy request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating proxy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectHeaders(ctx, req)

	resp, err := h.client.Do(req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("summarizer proxy %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxProxyResponse))
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("reading proxy response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(data, "error").String()
		if details := gjson.GetBytes(data, "details").String(); details != "" {
			msg += ": " + details
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		err := fmt.Errorf("summarizer proxy: status %d: %s", resp.StatusCode, msg)
		tracing.RecordError(ctx, err)
		return nil, err
	}

	result := gjson.GetBytes(data, "result")
	if !result.IsObject() {
		err := fmt.Errorf("%w: proxy reply has no result object", ErrMalformedResult)
		tracing.RecordError(ctx, err)
		return nil, err
	}
	res, err := ParseResult(result.Raw)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	tokens := int(gjson.GetBytes(data, "tokens_used").Int())
	if tokens == 0 {
		tokens = h.estimate(in, result.Raw)
	}

	return &Output{Result: res, Model: h.model, TokensUsed: tokens}, nil
}

// estimate approximates usage for proxies that do not report it.
func (h *HTTP) estimate(in Input, reply string) int {
	prompt, err := BuildPrompt(in)
	if err != nil {
		return 0
	}
	return h.tok.CountMessages(h.model, []tokenizer.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: prompt},
	}) + h.tok.Count(h.model, reply)
}
