package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

var (
	ErrNoAPIKey      = errors.New("llm api key is not configured")
	ErrEmptyResponse = errors.New("empty response from model")
)

// ContentGenerator is the slice of the genai models API used here.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Gemini struct {
	mu          sync.Mutex
	apiKeys     []string
	currentKey  int
	model       string
	temperature float32
	maxTokens   int32
	clients     map[int]ContentGenerator
	newClient   func(ctx context.Context, apiKey string) (ContentGenerator, error)
}

// NewGemini creates a model client that rotates through the supplied API keys
// when one of them is rate limited.
func NewGemini(apiKeys []string, model string, temperature float32) *Gemini {
	return &Gemini{
		apiKeys:     apiKeys,
		model:       model,
		temperature: temperature,
		maxTokens:   1024,
		clients:     make(map[int]ContentGenerator, len(apiKeys)),
		newClient:   newGenaiClient,
	}
}

func newGenaiClient(ctx context.Context, apiKey string) (ContentGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

// Complete sends one system-framed prompt and returns the concatenated text parts.
func (g *Gemini) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	if len(g.apiKeys) == 0 {
		return "", ErrNoAPIKey
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		MaxOutputTokens:   g.maxTokens,
	}

	var lastErr error
	for range len(g.apiKeys) {
		keyIndex, key := g.key()

		client, err := g.client(ctx, keyIndex, key)
		if err != nil {
			lastErr = fmt.Errorf("create client: %w", err)
			g.rotate(keyIndex)
			continue
		}

		result, err := client.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		if err != nil {
			if isQuotaError(err) {
				zerolog.Ctx(ctx).Warn().Int("key", keyIndex+1).Msg("llm key rate limited, rotating")
				g.rotate(keyIndex)
				lastErr = err
				continue
			}
			return "", fmt.Errorf("generate content: %w", err)
		}

		text := responseText(result)
		if text == "" {
			return "", ErrEmptyResponse
		}
		return text, nil
	}

	return "", fmt.Errorf("all llm api keys exhausted: %w", lastErr)
}

func (g *Gemini) key() (int, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentKey, g.apiKeys[g.currentKey]
}

// client returns the cached client of a key, creating it on first use.
func (g *Gemini) client(ctx context.Context, index int, key string) (ContentGenerator, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if client, ok := g.clients[index]; ok {
		return client, nil
	}
	client, err := g.newClient(ctx, key)
	if err != nil {
		return nil, err
	}
	g.clients[index] = client
	return client, nil
}

// rotate moves past the failed key unless another caller already did.
func (g *Gemini) rotate(failed int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.currentKey == failed {
		g.currentKey = (g.currentKey + 1) % len(g.apiKeys)
	}
}

func isQuotaError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
