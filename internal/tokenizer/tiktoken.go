package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// encodingCL100kBase is the encoding name for GPT-4 and GPT-3.5-turbo.
const encodingCL100kBase = "cl100k_base"

// TikToken wraps the pkoukk/tiktoken-go library for OpenAI tokenizers.
//
// Supported encodings:
//   - o200k_base: GPT-4o, GPT-4o-mini
//   - cl100k_base: GPT-4, GPT-3.5-turbo
//   - p50k_base, r50k_base: GPT-3
type TikToken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTikToken creates a new TikToken tokenizer with the specified encoding.
func NewTikToken(encodingName string) (*TikToken, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}

	return &TikToken{
		encoding: encoding,
		name:     encodingName,
	}, nil
}

// NewTikTokenForModel creates a TikToken tokenizer for a specific model.
//
// Models unknown to tiktoken (llama3, mixtral, ...) fall back to cl100k_base,
// which is close enough for context-window budgeting.
func NewTikTokenForModel(modelName string) (*TikToken, error) {
	encoding, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		tok, ferr := NewTikToken(encodingCL100kBase)
		if ferr != nil {
			return nil, fmt.Errorf("failed to load tiktoken for model %q: %w", modelName, ferr)
		}
		tok.name = modelName
		return tok, nil
	}

	return &TikToken{
		encoding: encoding,
		name:     modelName,
	}, nil
}

// Encode converts text to token IDs.
func (t *TikToken) Encode(text string) ([]int32, error) {
	tokens := t.encoding.Encode(text, nil, nil)

	// Convert []int to []int32.
	result := make([]int32, len(tokens))
	for i, tok := range tokens {
		result[i] = int32(tok) //nolint:gosec // G115: Token ID fits in int32 - vocab size < 2^31.
	}

	return result, nil
}

// Decode converts token IDs back to text.
func (t *TikToken) Decode(tokens []int32) (string, error) {
	intTokens := make([]int, len(tokens))
	for i, tok := range tokens {
		intTokens[i] = int(tok)
	}

	return t.encoding.Decode(intTokens), nil
}

// Count returns the number of tokens in text.
func (t *TikToken) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Name returns the tokenizer name.
func (t *TikToken) Name() string {
	return t.name
}
