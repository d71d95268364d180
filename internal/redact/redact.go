// Package redact masks personal data in report cells before they are sent
// to an external summarizer, and restores placeholders in the reply.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/reportbrief/reportbrief/internal/model"
)

// Actions.
const (
	// ActionRedact replaces values with numbered placeholders such as
	// [EMAIL_1] that are restored in the summary.
	ActionRedact = "redact"
	// ActionHash replaces values with a short digest. Nothing is restored.
	ActionHash = "hash"
)

// Detection records one masked value.
type Detection struct {
	Type   string `json:"type"`
	Value  string `json:"value"` // masked
	Column string `json:"column"`
}

// Mapping maps placeholders to their original values for one call.
type Mapping struct {
	mu       sync.Mutex
	forward  map[string]string // original -> placeholder
	reverse  map[string]string // placeholder -> original
	counters map[string]int
}

func newMapping() *Mapping {
	return &Mapping{
		forward:  make(map[string]string),
		reverse:  make(map[string]string),
		counters: make(map[string]int),
	}
}

func (m *Mapping) placeholder(original, kind string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ph, ok := m.forward[original]; ok {
		return ph
	}
	m.counters[kind]++
	ph := fmt.Sprintf("[%s_%d]", kind, m.counters[kind])
	m.forward[original] = ph
	m.reverse[ph] = original
	return ph
}

// Restore replaces every known placeholder in text with its original value.
func (m *Mapping) Restore(text string) string {
	if m == nil {
		return text
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for ph, original := range m.reverse {
		text = strings.ReplaceAll(text, ph, original)
	}
	return text
}

// RestoreResult applies Restore to every text field of r.
func (m *Mapping) RestoreResult(r model.SummaryResult) model.SummaryResult {
	if m == nil || len(m.reverse) == 0 {
		return r
	}
	restoreAll := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = m.Restore(s)
		}
		return out
	}
	return model.SummaryResult{
		Summary:         m.Restore(r.Summary),
		Metrics:         restoreAll(r.Metrics),
		Trends:          restoreAll(r.Trends),
		Recommendations: restoreAll(r.Recommendations),
	}
}

// Redactor masks sensitive values in rows.
type Redactor struct {
	patterns  []*Pattern
	action    string
	allowList map[string]bool
}

// New returns a Redactor using DefaultPatterns. An unknown action falls back
// to ActionRedact. Values in allowList are never masked.
func New(action string, allowList []string) *Redactor {
	if action != ActionHash {
		action = ActionRedact
	}
	allow := make(map[string]bool, len(allowList))
	for _, v := range allowList {
		allow[v] = true
	}
	return &Redactor{
		patterns:  DefaultPatterns(),
		action:    action,
		allowList: allow,
	}
}

// Rows returns copies of rows with string cells masked. The input rows are
// not modified.
func (r *Redactor) Rows(rows []*model.Row) ([]*model.Row, *Mapping, []Detection) {
	mapping := newMapping()
	var detections []Detection

	out := make([]*model.Row, len(rows))
	for i, row := range rows {
		cp := model.NewRow(row.Len())
		for _, key := range row.Keys() {
			v, _ := row.Get(key)
			if s, ok := v.(string); ok && s != "" {
				masked, dets := r.Text(s, key, mapping)
				detections = append(detections, dets...)
				v = masked
			}
			cp.Set(key, v)
		}
		out[i] = cp
	}
	return out, mapping, detections
}

// Text masks sensitive values in one string. column labels the detections.
func (r *Redactor) Text(text, column string, mapping *Mapping) (string, []Detection) {
	var detections []Detection
	result := text

	for _, p := range r.patterns {
		for _, match := range p.Regex.FindAllString(result, -1) {
			if r.allowList[match] {
				continue
			}
			if p.Validate != nil && !p.Validate(match) {
				continue
			}

			detections = append(detections, Detection{Type: p.Name, Value: maskValue(match), Column: column})

			var replacement string
			if r.action == ActionHash {
				h := sha256.Sum256([]byte(match))
				replacement = fmt.Sprintf("[%s_HASH_%s]", p.Name, hex.EncodeToString(h[:])[:8])
			} else {
				replacement = mapping.placeholder(match, p.Name)
			}
			result = strings.ReplaceAll(result, match, replacement)
		}
	}
	return result, detections
}

// maskValue keeps the first and last two characters. Values of four
// characters or fewer are fully masked.
func maskValue(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
