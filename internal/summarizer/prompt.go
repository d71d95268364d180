package summarizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/reportbrief/reportbrief/internal/model"
)

// SystemPrompt instructs the model on the analysis and the reply format.
const SystemPrompt = `You are an expert Salesforce analyst.
Given a small sample of rows from a Salesforce report, produce:
1. A concise executive summary
2. Key metrics detected
3. Notable trends or anomalies
4. Suggested next actions

Rules:
- Do NOT invent data
- Base conclusions ONLY on provided rows
- If unsure, say "Insufficient data"

Return STRICT JSON in this format:
{
    "summary": string,
    "metrics": string[],
    "trends": string[],
    "recommendations": string[]
}`

// ErrMalformedResult is wrapped when a model reply is not a usable summary.
var ErrMalformedResult = errors.New("malformed summarizer result")

// BuildPrompt renders the user message describing the sample.
func BuildPrompt(in Input) (string, error) {
	rows := capRows(in.Rows)
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding sample rows: %w", err)
	}

	var b strings.Builder
	b.WriteString("REPORT DATA:\n")
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(columnsOf(in), ", "))
	fmt.Fprintf(&b, "Number of rows: %d\n\n", len(rows))
	b.WriteString("Sample rows (JSON):\n")
	b.Write(data)
	b.WriteString("\n\nAnalyze this data and respond with ONLY valid JSON matching the specified format. ")
	b.WriteString("Do not include markdown code blocks or any other text.")
	return b.String(), nil
}

// ParseResult decodes a model reply into a SummaryResult. Markdown code
// fences around the JSON are tolerated; anything else that is not a JSON
// object with a non-empty summary is rejected.
func ParseResult(text string) (model.SummaryResult, error) {
	cleaned := stripFences(text)

	var res model.SummaryResult
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		return model.SummaryResult{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	if strings.TrimSpace(res.Summary) == "" {
		return model.SummaryResult{}, fmt.Errorf("%w: missing summary", ErrMalformedResult)
	}
	normalize(&res)
	return res, nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// normalize replaces nil lists so stored summaries always encode as arrays.
func normalize(res *model.SummaryResult) {
	if res.Metrics == nil {
		res.Metrics = []string{}
	}
	if res.Trends == nil {
		res.Trends = []string{}
	}
	if res.Recommendations == nil {
		res.Recommendations = []string{}
	}
}
