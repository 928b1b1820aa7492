// Package tokenizer provides token counting for prompt budgeting.
//
// Engines use a Counter to keep prompt + completion inside a model's context
// window. The tiktoken encodings are an approximation for non-OpenAI models
// (Llama, Mixtral); counts are used for budgeting, never for billing.
package tokenizer

// Counter reports how many tokens a text occupies.
type Counter interface {
	// Count returns the number of tokens in text.
	Count(text string) int
}

// Tokenizer is a Counter that can also round-trip text.
type Tokenizer interface {
	Counter

	// Encode converts text to token IDs.
	Encode(text string) ([]int32, error)

	// Decode converts token IDs back to text.
	Decode(tokens []int32) (string, error)

	// Name returns the encoding or model name.
	Name() string
}

// CounterFunc adapts a function to the Counter interface.
type CounterFunc func(text string) int

// Count calls f.
func (f CounterFunc) Count(text string) int {
	return f(text)
}

// Approximate is a Counter that assumes four bytes per token.
// It needs no vocabulary files and is used when tiktoken cannot load one.
var Approximate Counter = CounterFunc(func(text string) int {
	return (len(text) + 3) / 4
})
