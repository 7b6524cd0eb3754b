package credential

import (
	"fmt"
	"slices"
	"strings"
)

// Provider identifies the third-party service a credential belongs to.
type Provider string

const (
	OpenAI      Provider = "openai"
	Gemini      Provider = "gemini"
	Mistral     Provider = "mistral"
	Cohere      Provider = "cohere"
	Claude      Provider = "claude"
	Perplexity  Provider = "perplexity"
	Together    Provider = "together"
	Groq        Provider = "groq"
	Fireworks   Provider = "fireworks"
	AzureOpenAI Provider = "azureopenai"
	OpenRouter  Provider = "openrouter"
	DeepInfra   Provider = "deepinfra"
	XAI         Provider = "xai"
	DeepSeek    Provider = "deepseek"
)

var providers = []Provider{
	OpenAI, Gemini, Mistral, Cohere, Claude, Perplexity, Together,
	Groq, Fireworks, AzureOpenAI, OpenRouter, DeepInfra, XAI, DeepSeek,
}

// Providers returns the supported providers in their fixed order.
func Providers() []Provider {
	return slices.Clone(providers)
}

// Valid reports whether p is a supported provider.
func (p Provider) Valid() bool {
	return slices.Contains(providers, p)
}

func (p Provider) String() string { return string(p) }

// ParseProvider normalizes s and checks it against the supported set.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return p, nil
}
