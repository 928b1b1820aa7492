package engine

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/born-ml/textgrad/internal/tokenizer"
)

// Config describes a fully wired engine: provider client, retry policy and
// optional response cache.
type Config struct {
	// Model is an engine identity such as "llama3", "gpt-4o" or "groq-mixtral-8x7b-32768".
	Model string

	// APIKey overrides the provider's environment variable.
	APIKey string

	// BaseURL overrides the provider's endpoint.
	BaseURL string

	// SystemPrompt overrides DefaultSystemPrompt.
	SystemPrompt string

	// Retry is applied around the provider client.
	Retry RetryPolicy

	// Cache enables the response cache.
	Cache bool

	// CacheDir is the root of the on-disk caches. Each provider and model
	// gets its own subdirectory. Empty uses DefaultCacheDir.
	CacheDir string

	// CacheInMemory keeps the cache in process memory; nothing is persisted.
	CacheInMemory bool

	// RequestsPerSecond enables a client-side rate limit.
	RequestsPerSecond float64

	// Tokenizer counts prompt tokens for context-window clamping.
	// Nil uses tokenizer.Approximate.
	Tokenizer tokenizer.Counter

	// Logger is shared by every layer. Nil uses slog.Default().
	Logger *slog.Logger
}

// model describes a known engine identity.
type model struct {
	provider Provider
	name     string
	window   int
}

// aliases maps short engine identities onto provider models.
var aliases = map[string]model{
	"llama3":        {ProviderGroq, "llama3-8b-8192", 8192},
	"llama3-8b":     {ProviderGroq, "llama3-8b-8192", 8192},
	"llama3-70b":    {ProviderGroq, "llama3-70b-8192", 8192},
	"mixtral":       {ProviderGroq, "mixtral-8x7b-32768", 32768},
	"gpt-4o":        {ProviderOpenAI, "gpt-4o", 128000},
	"gpt-4o-mini":   {ProviderOpenAI, "gpt-4o-mini", 128000},
	"gpt-4-turbo":   {ProviderOpenAI, "gpt-4-turbo", 128000},
	"gpt-3.5-turbo": {ProviderOpenAI, "gpt-3.5-turbo", 16385},
}

// Resolve maps an engine identity to its provider and model name.
//
// Unknown identities fail with ErrConfig.
func Resolve(identity string) (Provider, string, error) {
	m, err := resolve(identity)
	if err != nil {
		return "", "", err
	}
	return m.provider, m.name, nil
}

func resolve(identity string) (model, error) {
	if m, ok := aliases[identity]; ok {
		return m, nil
	}
	switch {
	case strings.HasPrefix(identity, "groq-") && len(identity) > len("groq-"):
		return model{provider: ProviderGroq, name: strings.TrimPrefix(identity, "groq-")}, nil
	case strings.HasPrefix(identity, "gpt-"), strings.HasPrefix(identity, "o1"), strings.HasPrefix(identity, "o3"):
		return model{provider: ProviderOpenAI, name: identity}, nil
	}
	return model{}, configError("unknown engine %q", identity)
}

// DefaultCacheDir returns the per-user cache root, <user cache dir>/textgrad.
func DefaultCacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", configError("locate user cache directory: %v", err)
	}
	return filepath.Join(dir, "textgrad"), nil
}

// modelDirName makes a provider/model pair safe to use as a directory name.
var modelDirName = strings.NewReplacer("/", "_", `\`, "_", ":", "_")

// CachePath returns the on-disk cache directory for cfg's model, or "" when
// the cache is disabled or kept in memory.
func (cfg Config) CachePath() (string, error) {
	if !cfg.Cache || cfg.CacheInMemory {
		return "", nil
	}
	m, err := resolve(cfg.Model)
	if err != nil {
		return "", err
	}
	root := cfg.CacheDir
	if root == "" {
		if root, err = DefaultCacheDir(); err != nil {
			return "", err
		}
	}
	return filepath.Join(root, modelDirName.Replace(string(m.provider)+"_"+m.name)), nil
}

// Client is an Engine assembled by New. Close releases the cache.
type Client struct {
	Engine

	Provider Provider
	Model    string

	closers []func() error
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	var errs []error
	for _, fn := range c.closers {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}

// New builds the engine stack for cfg: Cached(Retrying(Chat)).
//
// Configuration problems (unknown identity, missing credentials, bad retry
// policy) are reported here.
func New(cfg Config) (*Client, error) {
	m, err := resolve(cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = cfg.Logger
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}

	chat, err := NewChat(ChatConfig{
		Provider:          m.provider,
		Model:             m.name,
		APIKey:            cfg.APIKey,
		BaseURL:           cfg.BaseURL,
		SystemPrompt:      cfg.SystemPrompt,
		ContextWindow:     m.window,
		Tokenizer:         cfg.Tokenizer,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	client := &Client{
		Engine:   Retrying(chat, cfg.Retry),
		Provider: m.provider,
		Model:    m.name,
	}

	if cfg.Cache {
		path, err := cfg.CachePath()
		if err != nil {
			return nil, err
		}
		cache, release, err := acquireBadgerCache(BadgerCacheConfig{Dir: path, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
		opts := []CachedOption{WithDefaultSystemPrompt(chat.SystemPrompt())}
		if cfg.Logger != nil {
			opts = append(opts, WithCacheLogger(cfg.Logger))
		}
		client.Engine = Cached(client.Engine, cache, opts...)
		client.closers = append(client.closers, release)
	}

	return client, nil
}
