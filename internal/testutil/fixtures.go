package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/reportbrief/reportbrief/internal/model"
	"github.com/reportbrief/reportbrief/internal/store"
)

// DealsCSV is a small opportunity export.
const DealsCSV = "Amount,Stage,Owner,Close Date\n" +
	"100,Closed Won,Ana,2026-09-01\n" +
	"200,Prospecting,Ben,2026-09-15\n"

// LargeCSV returns a CSV with n data rows.
func LargeCSV(n int) string {
	var b strings.Builder
	b.WriteString("Id,Amount\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,%d\n", i, i*10)
	}
	return b.String()
}

// SeedReport stores a parsed report for userID with the rows of DealsCSV.
func SeedReport(t *testing.T, st *store.Store, userID, title string) *model.Report {
	t.Helper()
	rows := make([]*model.Row, 0, 2)
	for _, vals := range [][]string{{"100", "Closed Won"}, {"200", "Prospecting"}} {
		r := model.NewRow(2)
		r.Set("Amount", vals[0])
		r.Set("Stage", vals[1])
		rows = append(rows, r)
	}
	report := &model.Report{
		UserID:   userID,
		Title:    title,
		RowCount: len(rows),
		Columns:  []string{"Amount", "Stage"},
	}
	if err := st.CreateReport(context.Background(), report, &model.RowSample{Rows: rows}); err != nil {
		t.Fatalf("seed report: %v", err)
	}
	return report
}

// SampleSummaryJSON is a well-formed summarizer reply.
func SampleSummaryJSON() string {
	data, _ := json.Marshal(model.SummaryResult{
		Summary:         "Two opportunities worth 300 in total.",
		Metrics:         []string{"Total amount: 300"},
		Trends:          []string{"Half the pipeline is closed"},
		Recommendations: []string{"Follow up on prospecting deals"},
	})
	return string(data)
}

// SampleAnthropicResponse returns a Messages API response body whose single
// text block is text.
func SampleAnthropicResponse(text string) []byte {
	resp := map[string]any{
		"id":    "msg_test123",
		"type":  "message",
		"role":  "assistant",
		"model": "claude-sonnet-4-20250514",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  120,
			"output_tokens": 80,
		},
	}
	data, _ := json.Marshal(resp)
	return data
}
