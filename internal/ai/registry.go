package ai

import (
	"fmt"
	"strings"
)

// LookupFunc reads configuration such as environment variables.
// os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Registration is one selectable backend variant. A variant is eligible when
// every Required variable is set to a non-empty value.
type Registration struct {
	Name     string
	Required []string
	New      func(lookup LookupFunc, opts BackendOptions) (Backend, error)
}

func (r Registration) missing(lookup LookupFunc) []string {
	var out []string
	for _, key := range r.Required {
		if v, ok := lookup(key); !ok || strings.TrimSpace(v) == "" {
			out = append(out, key)
		}
	}
	return out
}

// Registry is ordered; the first complete variant wins.
type Registry []Registration

// DefaultRegistry prefers OpenAI, then watsonx, then Anthropic.
var DefaultRegistry = Registry{
	{
		Name:     "openai",
		Required: []string{"OPENAI_API_KEY"},
		New: func(lookup LookupFunc, opts BackendOptions) (Backend, error) {
			return NewOpenAICompatibleClient(ChatConfig{
				APIKey:  value(lookup, "OPENAI_API_KEY"),
				BaseURL: value(lookup, "OPENAI_BASE_URL"),
				Model:   value(lookup, "OPENAI_MODEL"),
			}, opts)
		},
	},
	{
		Name:     "watsonx",
		Required: []string{"WATSONX_API_KEY", "WATSONX_URL", "WATSONX_PROJECT_ID", "WATSONX_MODEL_ID"},
		New: func(lookup LookupFunc, opts BackendOptions) (Backend, error) {
			return NewWatsonxClient(WatsonxConfig{
				APIKey:    value(lookup, "WATSONX_API_KEY"),
				URL:       value(lookup, "WATSONX_URL"),
				ProjectID: value(lookup, "WATSONX_PROJECT_ID"),
				ModelID:   value(lookup, "WATSONX_MODEL_ID"),
			}, opts)
		},
	},
	{
		Name:     "anthropic",
		Required: []string{"ANTHROPIC_API_KEY"},
		New: func(lookup LookupFunc, opts BackendOptions) (Backend, error) {
			return NewAnthropicClient(AnthropicConfig{
				APIKey:  value(lookup, "ANTHROPIC_API_KEY"),
				BaseURL: value(lookup, "ANTHROPIC_BASE_URL"),
				Model:   value(lookup, "ANTHROPIC_MODEL"),
			}, opts)
		},
	},
}

// Select builds the first variant whose configuration is complete.
func (r Registry) Select(lookup LookupFunc, opts BackendOptions) (Backend, error) {
	var hints []string
	for _, reg := range r {
		miss := reg.missing(lookup)
		if len(miss) == 0 {
			b, err := reg.New(lookup, opts)
			if err != nil {
				return nil, fmt.Errorf("create %s backend failed: %w", reg.Name, err)
			}
			return b, nil
		}
		hints = append(hints, fmt.Sprintf("%s needs %s", reg.Name, strings.Join(miss, ", ")))
	}
	return nil, fmt.Errorf("%w: %s", ErrBackendUnconfigured, strings.Join(hints, "; "))
}

// Names lists the variants in preference order.
func (r Registry) Names() []string {
	names := make([]string, len(r))
	for i, reg := range r {
		names[i] = reg.Name
	}
	return names
}

func value(lookup LookupFunc, key string) string {
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}
