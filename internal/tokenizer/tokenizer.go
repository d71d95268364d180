// Package tokenizer estimates token usage for summarizer backends that do
// not report it themselves.
package tokenizer

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Message is one chat turn for counting purposes.
type Message struct {
	Role    string
	Content string
}

// Tokenizer counts tokens with tiktoken encodings. Encoders load lazily and
// are shared by all callers. When an encoder cannot be loaded, counts fall
// back to a four-characters-per-token estimate.
type Tokenizer struct {
	cl100kOnce sync.Once
	cl100kEnc  *tiktoken.Tiktoken
	cl100kErr  error

	o200kOnce sync.Once
	o200kEnc  *tiktoken.Tiktoken
	o200kErr  error
}

// o200kPrefixes are model families tokenized with o200k_base. Everything
// else, Claude included, is approximated with cl100k_base.
var o200kPrefixes = []string{"gpt-4o", "o1", "o3", "o4"}

// New returns a Tokenizer.
func New() *Tokenizer {
	return &Tokenizer{}
}

// Encoding returns the encoding name used for model.
func (t *Tokenizer) Encoding(model string) string {
	lower := strings.ToLower(model)
	if lower == "gpt-4o" {
		return "cl100k_base"
	}
	for _, p := range o200kPrefixes {
		if strings.HasPrefix(lower, p) {
			return "o200k_base"
		}
	}
	return "cl100k_base"
}

func (t *Tokenizer) encoder(model string) (*tiktoken.Tiktoken, error) {
	if t.Encoding(model) == "o200k_base" {
		t.o200kOnce.Do(func() {
			t.o200kEnc, t.o200kErr = tiktoken.GetEncoding("o200k_base")
		})
		return t.o200kEnc, t.o200kErr
	}
	t.cl100kOnce.Do(func() {
		t.cl100kEnc, t.cl100kErr = tiktoken.GetEncoding("cl100k_base")
	})
	return t.cl100kEnc, t.cl100kErr
}

// Count returns the number of tokens in text for model.
func (t *Tokenizer) Count(model, text string) int {
	if text == "" {
		return 0
	}
	enc, err := t.encoder(model)
	if err != nil || enc == nil {
		return approximate(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages returns the prompt size of messages, including four tokens
// of framing per message and three for reply priming.
func (t *Tokenizer) CountMessages(model string, messages []Message) int {
	total := 3
	for _, msg := range messages {
		total += 4 + t.Count(model, msg.Role) + t.Count(model, msg.Content)
	}
	return total
}

func approximate(text string) int {
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
