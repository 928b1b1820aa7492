// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package engine provides the language-model engines textgrad calls for
// forward generation, gradient synthesis and parameter updates.
//
// Supported engines:
//   - Chat: OpenAI and Groq chat completions
//   - Retrying: exponential backoff with jitter around any Engine
//   - Cached: in-memory or Badger response cache around any Engine
//   - Scripted: deterministic responses for tests and examples
//
// Example usage:
//
//	import "github.com/born-ml/textgrad/engine"
//
//	eng, err := engine.New(engine.Config{
//	    Model: "llama3",
//	    Retry: engine.DefaultRetryPolicy(),
//	    Cache: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	text, err := eng.Generate(ctx, "Say hi", engine.GenerateOptions{})
package engine

import (
	"github.com/born-ml/textgrad/internal/engine"
)

// Engine generates text from a prompt.
type Engine = engine.Engine

// Func adapts a function to the Engine interface.
type Func = engine.Func

// GenerateOptions are per-call overrides.
type GenerateOptions = engine.GenerateOptions

// DefaultSystemPrompt is used when neither the call nor the engine supplies one.
const DefaultSystemPrompt = engine.DefaultSystemPrompt

// Errors.
var (
	ErrConfig        = engine.ErrConfig
	ErrTransient     = engine.ErrTransient
	ErrExhausted     = engine.ErrExhausted
	ErrEmptyResponse = engine.ErrEmptyResponse
	ErrPromptTooLong = engine.ErrPromptTooLong
)

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	return engine.IsRetryable(err)
}

// Float32 returns a pointer to v, for GenerateOptions fields.
func Float32(v float32) *float32 { return engine.Float32(v) }

// Int returns a pointer to v, for GenerateOptions fields.
func Int(v int) *int { return engine.Int(v) }

// Client is a fully wired engine: provider, retry, rate limit and cache.
type Client = engine.Client

// Config describes a Client.
type Config = engine.Config

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	return engine.New(cfg)
}

// DefaultCacheDir returns the per-user cache root used when Config.CacheDir
// is empty.
func DefaultCacheDir() (string, error) {
	return engine.DefaultCacheDir()
}

// Resolve maps an engine identity such as "llama3" or "groq-mixtral-8x7b-32768"
// to its provider and model name.
func Resolve(identity string) (Provider, string, error) {
	return engine.Resolve(identity)
}

// Provider selects an OpenAI-compatible endpoint.
type Provider = engine.Provider

// Providers.
const (
	ProviderOpenAI = engine.ProviderOpenAI
	ProviderGroq   = engine.ProviderGroq
)

// Chat is an OpenAI-compatible chat completion engine.
type Chat = engine.Chat

// ChatConfig configures a Chat engine.
type ChatConfig = engine.ChatConfig

// NewChat creates a Chat engine. A missing API key fails here.
func NewChat(cfg ChatConfig) (*Chat, error) {
	return engine.NewChat(cfg)
}

// RetryPolicy controls Retrying.
type RetryPolicy = engine.RetryPolicy

// DefaultRetryPolicy returns 5 attempts with 1s base and 5s cap.
func DefaultRetryPolicy() RetryPolicy {
	return engine.DefaultRetryPolicy()
}

// Retrying wraps e with policy.
func Retrying(e Engine, policy RetryPolicy) Engine {
	return engine.Retrying(e, policy)
}

// Cache stores responses.
type Cache = engine.Cache

// CachedOption configures Cached.
type CachedOption = engine.CachedOption

// Cached wraps e with cache.
func Cached(e Engine, cache Cache, opts ...CachedOption) Engine {
	return engine.Cached(e, cache, opts...)
}

// Cached options.
var (
	WithDefaultSystemPrompt = engine.WithDefaultSystemPrompt
	WithCacheLogger         = engine.WithCacheLogger
)

// CacheKey returns the cache key of a call.
func CacheKey(systemPrompt, prompt string) string {
	return engine.CacheKey(systemPrompt, prompt)
}

// MemoryCache is an in-process Cache.
type MemoryCache = engine.MemoryCache

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return engine.NewMemoryCache()
}

// BadgerCache is a Cache backed by Badger.
type BadgerCache = engine.BadgerCache

// BadgerCacheConfig configures a BadgerCache.
type BadgerCacheConfig = engine.BadgerCacheConfig

// OpenBadgerCache opens a BadgerCache.
func OpenBadgerCache(cfg BadgerCacheConfig) (*BadgerCache, error) {
	return engine.OpenBadgerCache(cfg)
}

// Scripted answers from a function and records every call.
type Scripted = engine.Scripted

// Call is one recorded Scripted call.
type Call = engine.Call

// NewScripted creates a Scripted engine.
func NewScripted(respond func(prompt string, opts GenerateOptions) (string, error)) *Scripted {
	return engine.NewScripted(respond)
}
