// Package tokenizer provides token counting for prompt budgeting.
//
// This package wraps the internal tokenizer implementations and provides
// a clean public API for counting tokens before a prompt is sent.
//
// Supported tokenizers:
//   - TikToken: OpenAI BPE encodings (cl100k_base, o200k_base, ...)
//   - Approximate: four bytes per token, no vocabulary needed
//
// Example usage:
//
//	import "github.com/born-ml/textgrad/tokenizer"
//
//	tok, err := tokenizer.NewTikTokenForModel("gpt-4o")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	n := tok.Count("Hello, world!")
package tokenizer

import (
	"github.com/born-ml/textgrad/internal/tokenizer"
)

// Counter reports how many tokens a text occupies.
type Counter = tokenizer.Counter

// Tokenizer is a Counter that can also round-trip text.
type Tokenizer = tokenizer.Tokenizer

// CounterFunc adapts a function to the Counter interface.
type CounterFunc = tokenizer.CounterFunc

// Approximate assumes four bytes per token.
var Approximate = tokenizer.Approximate

// NewTikToken creates a tiktoken tokenizer with the given encoding.
//
// Supported encodings: cl100k_base, p50k_base, r50k_base, o200k_base.
func NewTikToken(encodingName string) (Tokenizer, error) {
	return tokenizer.NewTikToken(encodingName)
}

// NewTikTokenForModel creates a tiktoken tokenizer for a model.
// Models without a known encoding use cl100k_base.
func NewTikTokenForModel(modelName string) (Tokenizer, error) {
	return tokenizer.NewTikTokenForModel(modelName)
}
